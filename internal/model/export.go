package model

import "time"

// TableExport is the top-level JSON structure for a roster export.
type TableExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	TableID    string          `json:"table_id"`
	Name       string          `json:"name"`
	Version    int64           `json:"version"`
	Columns    []Column        `json:"columns"`
	Test       *TestRef        `json:"test,omitempty"`
	Managers   []PublicManager `json:"managers"`
	Students   []StudentExport `json:"students"`
}

// StudentExport holds one student's row for export, with cells keyed by
// column name instead of column id.
type StudentExport struct {
	ID        string         `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Cells     map[string]any `json:"cells"`
}
