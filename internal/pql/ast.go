// Package pql implements the Panoptikon Query Language AST (C7), its
// CTE-chaining compiler (C8), and the similarity planner (C9).
//
// Grounded on original_source's panoptikon/db/pql package: the AST shape
// (pql_model.py), the CTE-composition compiler (the sqlalchemy
// CTE-chaining throughout panoptikon/db/pql/filters/*), order_by.py's
// combine/group/coalesce logic, and item_similarity.py's similarity
// aggregation. Expressed here as hand-assembled SQL text (see compiler.go)
// rather than an ORM query-builder, since squirrel (the SQL builder in use
// here) has no CTE support - squirrel still builds each leaf's WHERE
// clause, the CTE-chain wrapping is plain string composition.
package pql

// Direction is an ORDER BY direction. The zero value OrderDefault resolves
// per-column (spec.md §4.7: "last_modified -> desc, all others -> asc").
type Direction string

const (
	OrderAsc     Direction = "asc"
	OrderDesc    Direction = "desc"
	OrderDefault Direction = ""
)

// DistanceFunction selects the vec_distance_* SQL function used by
// SimilarTo (spec.md §4.8).
type DistanceFunction string

const (
	DistanceL2     DistanceFunction = "L2"
	DistanceCosine DistanceFunction = "COSINE"
)

// DistanceAggregation selects how SimilarTo reduces multiple pairwise
// distances per other.item_id when no confidence weighting applies.
type DistanceAggregation string

const (
	AggMin DistanceAggregation = "MIN"
	AggMax DistanceAggregation = "MAX"
	AggAvg DistanceAggregation = "AVG"
)

// MatchOp is one MatchValues comparison operator (kvfilters.py's
// operatorType), generalized to a single (column, op, value) triple
// instead of the original's per-field pydantic model.
type MatchOp string

const (
	OpEq            MatchOp = "eq"
	OpNeq           MatchOp = "neq"
	OpGt            MatchOp = "gt"
	OpGte           MatchOp = "gte"
	OpLt            MatchOp = "lt"
	OpLte           MatchOp = "lte"
	OpStartsWith    MatchOp = "startswith"
	OpNotStartsWith MatchOp = "not_startswith"
	OpEndsWith      MatchOp = "endswith"
	OpNotEndsWith   MatchOp = "not_endswith"
	OpContains      MatchOp = "contains"
	OpNotContains   MatchOp = "not_contains"
	OpIn            MatchOp = "in"
	OpNotIn         MatchOp = "not_in"
)

// Node is any member of the FilterTree sum type: a boolean combinator or a
// leaf filter.
type Node interface {
	// compile lowers this node against parent (nil for the root selector),
	// threading state forward. Returns the new current CTE.
	compile(c *compilation, parent *cte) (*cte, error)
}

// And chains children serially: each narrows the previous CTE's row set.
type And struct{ Children []Node }

// Or compiles children against the same parent and unions their CTEs.
type Or struct{ Children []Node }

// Not emits `parent EXCEPT child`.
type Not struct{ Child Node }

// leafMeta is embedded by every leaf filter: shared priority and
// sortability (spec.md §4.6 "Leaf filters share a priority... and may be
// sortable").
type leafMeta struct {
	Priority int
	OrderBy  bool // when true, contributes an order_rank column
	Order    Direction
}

// MatchCondition is one (column, operator, value) triple within a
// MatchValues filter. Value is a scalar, or a []any for OpIn/OpNotIn and
// the list forms of startswith/endswith/contains (OR'd together, mirroring
// kvfilters.py's list-vs-scalar branch).
type MatchCondition struct {
	Column string
	Op     MatchOp
	Value  any
}

// MatchValues is a per-field equality/range/prefix/contains filter over
// item, file, or text columns (spec.md §4.6).
type MatchValues struct {
	leafMeta
	Conditions []MatchCondition
}

// PathFilter matches files whose path has one of Prefixes (same semantics
// as C3's rules.PathFilter).
type PathFilter struct {
	leafMeta
	Prefixes []string
}

// MimeFilter matches items whose MIME type has one of Prefixes.
type MimeFilter struct {
	leafMeta
	Prefixes []string
}

// MinMaxFilter bounds a numeric item column to [Min, Max].
type MinMaxFilter struct {
	leafMeta
	Column string
	Min    float64
	Max    float64
}

// FTSFilter is a full-text search over extracted_text.text via the
// extracted_text_fts virtual table.
type FTSFilter struct {
	leafMeta
	Text          string
	SourceSetters []string
	Languages     []string
}

// PathFTSFilter is a full-text search over file paths/filenames via the
// files_path_fts virtual table.
type PathFTSFilter struct {
	leafMeta
	Query        string
	OnlyFilename bool
}

// TagMatchFilter matches items tagged with the given tags.
type TagMatchFilter struct {
	leafMeta
	Tags          []string
	Namespace     string
	Setters       []string
	MinConfidence float64
	MatchAll      bool // true: AND (all tags present); false: OR (any tag)
}

// BookmarkFilter matches items bookmarked in a namespace/by a user.
type BookmarkFilter struct {
	leafMeta
	Namespace string
	User      string
}

// SimilarToFilter is the C9 similarity planner's entry node (spec.md §4.8).
type SimilarToFilter struct {
	leafMeta
	TargetSHA256        string
	SetterName           string
	SrcText              *SrcTextFilter
	DistanceFunction     DistanceFunction
	DistanceAggregation  DistanceAggregation
	ClipCrossModal       bool
	CrossModalT2T        bool
	CrossModalI2I        bool
	ConfidenceWeight     float64 // alpha
	LanguageConfWeight   float64 // beta
}

// SrcTextFilter narrows SimilarTo's embeddings CTE to embeddings derived
// from text meeting these constraints (spec.md §4.8 step 2).
type SrcTextFilter struct {
	SourceSetters     []string
	Languages         []string
	MinConfidence     float64
	MinLangConfidence float64
	MinLength         int
}

// TextEmbeddingQueryFilter ranks items by distance to a literal query
// embedding (spec.md §4.6).
type TextEmbeddingQueryFilter struct {
	leafMeta
	EmbeddingBlob       []byte
	SetterName          string
	SrcText             *SrcTextFilter
	DistanceFunction    DistanceFunction
	DistanceAggregation DistanceAggregation
	ConfidenceWeight    float64
	LanguageConfWeight  float64
}

// OrderArgs is one explicit (non-filter-derived) ordering request
// (spec.md §4.6).
type OrderArgs struct {
	OrderBy  string // column name, or "" for default (last_modified)
	Order    Direction
	Priority int
}

// SearchQuery is the top-level PQL request (spec.md §4.6).
type SearchQuery struct {
	Query     Node
	OrderArgs []OrderArgs
	Count     bool
	Page      int
	PageSize  int
}
