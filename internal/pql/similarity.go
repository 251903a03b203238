package pql

import "fmt"

// C9: the similarity planner. Grounded essentially verbatim in structure and
// formula on original_source's db/pql/filters/sortable/item_similarity.py
// (SimilarTo.build_query), generalized to also serve TextEmbeddingQueryFilter
// (a literal query vector standing in for item_similarity.py's self-joined
// target row). Requires SQLite's math extension (pow()), enabled via the
// mattn/go-sqlite3 `sqlite_math_functions` build tag alongside sqlite-vec's
// vec_distance_L2/vec_distance_cosine scalar functions.

// similarityArgs normalizes the two similarity filter variants into the
// shared seven-step plan: (1) candidate embeddings matching setter_name and
// SrcText constraints, (2) the comparison target (another stored item's
// embedding, or a literal query vector), (3) unique-embeddings dedup,
// (4) cross-modal union, (5) pairwise distance, (6) aggregation/weighting,
// (7) cross-modal gating, joined back to the outer context.
type similarityArgs struct {
	setterName         string
	srcText            *SrcTextFilter
	distanceFn         DistanceFunction
	distanceAgg        DistanceAggregation
	confidenceWeight   float64
	languageConfWeight float64
	clipCrossModal     bool
	crossModalT2T      bool
	crossModalI2I      bool
	targetSHA256       string // SimilarToFilter: self-join target; "" for TextEmbeddingQueryFilter
	literalEmbedding   []byte // TextEmbeddingQueryFilter: bound query vector; nil for SimilarToFilter
}

// compile implements Node for SimilarToFilter.
func (f *SimilarToFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if f.TargetSHA256 == "" || f.SetterName == "" {
		return identity(parent, c), nil
	}
	return c.buildSimilarity(parent, similarityArgs{
		setterName:         f.SetterName,
		srcText:            f.SrcText,
		distanceFn:         f.DistanceFunction,
		distanceAgg:        f.DistanceAggregation,
		confidenceWeight:   f.ConfidenceWeight,
		languageConfWeight: f.LanguageConfWeight,
		clipCrossModal:     f.ClipCrossModal,
		crossModalT2T:      f.CrossModalT2T,
		crossModalI2I:      f.CrossModalI2I,
		targetSHA256:       f.TargetSHA256,
	}, f.leafMeta)
}

// compile implements Node for TextEmbeddingQueryFilter: same plan as
// SimilarTo, but "main" is a single literal vector instead of a self-joined
// stored item, so cross-modal union/gating never applies.
func (f *TextEmbeddingQueryFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if len(f.EmbeddingBlob) == 0 || f.SetterName == "" {
		return identity(parent, c), nil
	}
	return c.buildSimilarity(parent, similarityArgs{
		setterName:         f.SetterName,
		srcText:            f.SrcText,
		distanceFn:         f.DistanceFunction,
		distanceAgg:        f.DistanceAggregation,
		confidenceWeight:   f.ConfidenceWeight,
		languageConfWeight: f.LanguageConfWeight,
		literalEmbedding:   f.EmbeddingBlob,
	}, f.leafMeta)
}

// buildSimilarity lowers a similarityArgs plan into a chain of CTEs,
// returning the final one joined back onto the outer context with an
// order_rank column.
func (c *compilation) buildSimilarity(parent *cte, a similarityArgs, meta leafMeta) (*cte, error) {
	base := parent
	if base == nil {
		base = c.rootCTE()
	}
	weighted := a.confidenceWeight != 0 || a.languageConfWeight != 0

	otherCTE, err := c.uniqueEmbeddingsCTE(base, a.setterName, a.srcText, weighted, a.clipCrossModal)
	if err != nil {
		return nil, err
	}

	var mainCTE *cte
	if a.literalEmbedding != nil {
		mainCTE = c.addCTE(
			"SELECT ? AS embedding, NULL AS confidence, NULL AS language_confidence, ? AS data_type",
			[]any{a.literalEmbedding, "text-embedding"}, false, false,
		)
	} else {
		targetSource, err := c.uniqueEmbeddingsCTE(base, a.setterName, a.srcText, weighted, a.clipCrossModal)
		if err != nil {
			return nil, err
		}
		selectCols := "embedding, data_type"
		if weighted {
			selectCols = "embedding, confidence, language_confidence, data_type"
		}
		mainCTE = c.addCTE(
			fmt.Sprintf("SELECT %s FROM %s WHERE sha256 = ?", selectCols, targetSource.name),
			[]any{a.targetSHA256}, false, false,
		)
	}

	distanceFunc := "vec_distance_L2"
	if a.distanceFn == DistanceCosine {
		distanceFunc = "vec_distance_cosine"
	}
	vecDistance := fmt.Sprintf("%s(main.embedding, other.embedding)", distanceFunc)

	rankExpr, rankArgs := aggregationExpr(vecDistance, a.distanceAgg, a.confidenceWeight, a.languageConfWeight)

	var wherePreds []string
	var whereArgs []any
	if a.targetSHA256 != "" {
		wherePreds = append(wherePreds, "other.sha256 != ?")
		whereArgs = append(whereArgs, a.targetSHA256)
	}
	if a.clipCrossModal {
		if !a.crossModalI2I {
			wherePreds = append(wherePreds, "(main.data_type != 'clip' OR other.data_type != 'clip')")
		}
		if !a.crossModalT2T {
			wherePreds = append(wherePreds, "(main.data_type != 'text-embedding' OR other.data_type != 'text-embedding')")
		}
	}
	whereSQL := ""
	if len(wherePreds) > 0 {
		whereSQL = "WHERE " + joinAnd(wherePreds)
	}

	// otherCTE and mainCTE are referenced by name; their own args are
	// already bound at their own position in the WITH chain. distBody's own
	// placeholders are exactly rankArgs (appearing in the SELECT list)
	// followed by whereArgs (appearing in the trailing WHERE clause).
	distBody := fmt.Sprintf(
		"SELECT other.item_id AS other_item_id, %s AS distance FROM %s AS other JOIN %s AS main %s GROUP BY other.item_id",
		rankExpr, otherCTE.name, mainCTE.name, whereSQL,
	)
	distArgs := append(append([]any{}, rankArgs...), whereArgs...)
	distCTE := c.addCTE(distBody, distArgs, false, false)

	// The join-back body has no placeholders of its own - base and distCTE
	// are both referenced only by name.
	body := fmt.Sprintf(
		"SELECT %s.file_id, %s.item_id%s, dist.distance AS order_rank FROM %s JOIN %s AS dist ON %s.item_id = dist.other_item_id",
		base.name, base.name, dataIDSelect(base, false), base.name, distCTE.name, base.name,
	)
	ct := c.addCTE(body, nil, false, true)
	if meta.OrderBy {
		c.orderFilters = append(c.orderFilters, orderByFilter{cteName: ct.name, direction: meta.Order, priority: meta.Priority, hasDataID: false})
	}
	return ct, nil
}

// uniqueEmbeddingsCTE selects one row per (item_id, embedding id) matching
// setter_name (and, for clip_xmodal, its text-embedding counterpart unioned
// in), narrowed by SrcText when present - item_similarity.py's unqemb_cte.
func (c *compilation) uniqueEmbeddingsCTE(base *cte, setterName string, src *SrcTextFilter, weighted, clipCrossModal bool) (*cte, error) {
	imageCTE, err := c.embeddingRowsCTE(base, setterName, src, weighted, false)
	if err != nil {
		return nil, err
	}
	if !clipCrossModal {
		return imageCTE, nil
	}
	textCTE, err := c.embeddingRowsCTE(base, "t"+setterName, src, weighted, true)
	if err != nil {
		return nil, err
	}
	cols := "item_id, sha256, emb_id, embedding, data_type"
	if weighted {
		cols += ", confidence, language_confidence"
	}
	body := fmt.Sprintf("SELECT %s FROM %s UNION SELECT %s FROM %s", cols, imageCTE.name, cols, textCTE.name)
	// imageCTE/textCTE are referenced by name only; this body has no
	// placeholders of its own.
	return c.addCTE(body, nil, false, false), nil
}

// embeddingRowsCTE is one embeddings_query in item_similarity.py: item_data
// joined to embeddings and setters, with SrcText's source-text join/filters
// applied when present.
func (c *compilation) embeddingRowsCTE(base *cte, setterName string, src *SrcTextFilter, weighted, nullWeightCols bool) (*cte, error) {
	from := fmt.Sprintf(
		"%s JOIN items ON items.id = %s.item_id JOIN item_data ON item_data.item_id = %s.item_id JOIN setters ON setters.id = item_data.setter_id AND setters.name = ? JOIN embeddings ON embeddings.id = item_data.id",
		base.name, base.name, base.name,
	)
	// base is referenced by name only; args holds just this body's own
	// placeholders (setter name, then any SrcText constraints below).
	args := []any{setterName}

	var preds []string
	if src != nil {
		from += " JOIN extracted_text ON extracted_text.id = item_data.source_id"
		if len(src.SourceSetters) > 0 {
			from += " JOIN setters AS src_setters ON src_setters.id = (SELECT setter_id FROM item_data WHERE id = extracted_text.id) AND src_setters.name IN (" + placeholders(len(src.SourceSetters)) + ")"
			for _, s := range src.SourceSetters {
				args = append(args, s)
			}
		}
		if len(src.Languages) > 0 {
			preds = append(preds, "extracted_text.language IN ("+placeholders(len(src.Languages))+")")
			for _, l := range src.Languages {
				args = append(args, l)
			}
		}
		if src.MinConfidence > 0 {
			preds = append(preds, "extracted_text.confidence >= ?")
			args = append(args, src.MinConfidence)
		}
		if src.MinLangConfidence > 0 {
			preds = append(preds, "extracted_text.language_confidence >= ?")
			args = append(args, src.MinLangConfidence)
		}
		if src.MinLength > 0 {
			preds = append(preds, "extracted_text.text_length >= ?")
			args = append(args, src.MinLength)
		}
	}

	where := ""
	if len(preds) > 0 {
		where = "WHERE " + joinAnd(preds)
	}

	confidenceCols := ""
	if weighted {
		if nullWeightCols {
			confidenceCols = ", NULL AS confidence, NULL AS language_confidence"
		} else if src != nil {
			confidenceCols = ", extracted_text.confidence AS confidence, extracted_text.language_confidence AS language_confidence"
		} else {
			confidenceCols = ", NULL AS confidence, NULL AS language_confidence"
		}
	}

	body := fmt.Sprintf(
		"SELECT %s.item_id AS item_id, items.sha256 AS sha256, item_data.id AS emb_id, embeddings.embedding AS embedding, item_data.data_type AS data_type%s FROM %s %s GROUP BY %s.item_id, item_data.id",
		base.name, confidenceCols, from, where, base.name,
	)
	return c.addCTE(body, args, false, false), nil
}

// aggregationExpr builds the rank_column expression: a plain MIN/MAX/AVG of
// the per-pair distance, or - when either weight is set - the weighted-mean
// formula from item_similarity.py's confidence_weight/language_confidence_weight
// docstring (weights raised to the configured exponent, ignoring
// distance_aggregation once any weight is non-zero).
func aggregationExpr(vecDistance string, agg DistanceAggregation, confWeight, langWeight float64) (string, []any) {
	if confWeight == 0 && langWeight == 0 {
		switch agg {
		case AggMin:
			return fmt.Sprintf("MIN(%s)", vecDistance), nil
		case AggMax:
			return fmt.Sprintf("MAX(%s)", vecDistance), nil
		default:
			return fmt.Sprintf("AVG(%s)", vecDistance), nil
		}
	}

	confExpr := "1"
	var args []any
	if confWeight != 0 {
		confExpr = "pow(COALESCE(main.confidence, 1) * COALESCE(other.confidence, 1), ?)"
		args = append(args, confWeight)
	}
	langExpr := "1"
	if langWeight != 0 {
		langExpr = "pow(COALESCE(other.language_confidence, 1) * COALESCE(main.language_confidence, 1), ?)"
		args = append(args, langWeight)
	}
	weights := fmt.Sprintf("(%s) * (%s)", confExpr, langExpr)
	expr := fmt.Sprintf("SUM(%s * %s) / SUM(%s)", vecDistance, weights, weights)
	// weights appears twice in expr (numerator, denominator); its
	// placeholders (in the same order each time) must be duplicated to match.
	return expr, append(append([]any{}, args...), args...)
}

func joinAnd(preds []string) string {
	out := preds[0]
	for _, p := range preds[1:] {
		out += " AND " + p
	}
	return out
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
