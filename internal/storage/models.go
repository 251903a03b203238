package storage

// Domain models that mirror SQL tables in schema.go.
// These are lightweight data transfer structs, NOT ORM models.

// Item is a content-addressed piece of media, identified by sha256.
// One Item can have many Files (filesystem manifestations).
type Item struct {
	ID             int64  // item_id
	SHA256         string // content hash, unique
	MD5            string
	Type           string // MIME type
	Size           int64
	Width          *int
	Height         *int
	Duration       *float64
	AudioTracks    int
	VideoTracks    int
	SubtitleTracks int
	TimeAdded      string // ISO 8601
}

// File is a filesystem manifestation of an Item.
type File struct {
	ID           int64
	ItemID       int64
	Path         string // unique
	Filename     string
	LastModified string // ISO 8601
}

// Setter is a named extractor instance that produces ItemData.
// Unique by (Type, Name).
type Setter struct {
	ID   int64
	Type string // output data type: tags|text|clip|text-embedding|...
	Name string
}

// ItemData is a logical unit of output produced by a setter for an item.
type ItemData struct {
	ID        int64
	ItemID    int64
	SetterID  int64
	DataType  string
	SourceID  *int64 // points to another ItemData, for derived outputs
	DataIndex int
	JobID     int64
}

// ExtractedText holds text-extraction output. ID equals its ItemData.ID.
type ExtractedText struct {
	ID                 int64
	Text               string
	Language           string
	LanguageConfidence float64
	Confidence         float64
	TextLength         int
}

// Embedding holds a fixed-per-setter float32 vector. ID equals its ItemData.ID.
type Embedding struct {
	ID        int64
	Embedding []float32
}

// Tag is a namespaced label.
type Tag struct {
	ID        int64
	Namespace string
	Name      string
}

// TagItem links a Tag to an Item, produced by a Setter with a confidence score.
type TagItem struct {
	ItemID     int64
	TagID      int64
	SetterID   int64
	Confidence float64
}

// ExtractionRule describes eligibility filters gating an extractor.
type ExtractionRule struct {
	ID      int64
	Enabled bool
	Filters RuleItemFilters
	Setters []SetterRef
}

// SetterRef identifies a setter by (type, name) pair, used by rule bindings.
type SetterRef struct {
	Type string
	Name string
}

// RuleItemFilters is the positive/negative filter sets of a rule.
// Defined in full in internal/rules; storage keeps only the serialized
// envelope needed to persist/reload it.
type RuleItemFilters struct {
	Positive []RawFilter
	Negative []RawFilter
}

// RawFilter is the tagged-union wire shape of a single Filter, keyed by its
// discriminator so forward-compatible filter kinds can be added without
// breaking deserialization of already-stored rules.
type RawFilter struct {
	Kind string
	Data []byte // JSON payload specific to Kind
}

// JobLog records one run of the Extraction Job Runner against a Setter.
type JobLog struct {
	ID             int64
	SetterID       int64
	StartTime      string
	EndTime        *string
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	Status         string // running|completed|failed
}

// Bookmark marks an item for a user within a namespace.
type Bookmark struct {
	Namespace string
	SHA256    string
	User      string
	TimeAdded string
	Metadata  *string
}

// GroupSettings persists per-extractor-group batch_size/threshold overrides.
type GroupSettings struct {
	GroupName string
	BatchSize *int
	Threshold *float64
}
