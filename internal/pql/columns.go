package pql

import "fmt"

// columnInfo resolves a logical field name to its physical SQL column and
// whether it requires the item_data/extracted_text join (a "text column",
// kvfilters.py's contains_text_columns).
type columnInfo struct {
	sql        string
	textColumn bool
}

var columnTable = map[string]columnInfo{
	"file_id":              {"files.id", false},
	"item_id":              {"items.id", false},
	"path":                 {"files.path", false},
	"filename":             {"files.filename", false},
	"sha256":               {"items.sha256", false},
	"last_modified":        {"files.last_modified", false},
	"type":                 {"items.type", false},
	"size":                 {"items.size", false},
	"width":                {"items.width", false},
	"height":               {"items.height", false},
	"duration":             {"items.duration", false},
	"time_added":           {"items.time_added", false},
	"md5":                  {"items.md5", false},
	"audio_tracks":         {"items.audio_tracks", false},
	"video_tracks":         {"items.video_tracks", false},
	"subtitle_tracks":      {"items.subtitle_tracks", false},
	"data_id":              {"item_data.id", true},
	"language":             {"extracted_text.language", true},
	"language_confidence":  {"extracted_text.language_confidence", true},
	"text":                 {"extracted_text.text", true},
	"confidence":           {"extracted_text.confidence", true},
	"text_length":          {"extracted_text.text_length", true},
	"job_id":               {"item_data.job_id", true},
	"setter_id":            {"item_data.setter_id", true},
	"setter_name":          {"setters.name", true},
	"data_index":           {"item_data.data_index", true},
	"source_id":            {"item_data.source_id", true},
}

func getColumn(name string) (columnInfo, error) {
	info, ok := columnTable[name]
	if !ok {
		return columnInfo{}, fmt.Errorf("pql: unknown column %q", name)
	}
	return info, nil
}

// minMaxColumnSQL resolves the handful of numeric item columns MinMaxFilter
// is allowed to bound (same vocabulary as C3's rules.MinMaxColumn).
func minMaxColumnSQL(column string) (string, error) {
	switch column {
	case "size", "width", "height", "duration", "audio_tracks", "video_tracks", "subtitle_tracks":
		return "items." + column, nil
	default:
		return "", fmt.Errorf("pql: invalid min_max column %q", column)
	}
}
