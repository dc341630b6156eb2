package model

import "time"

// HistoryExport is the top-level JSON structure for the export subcommand.
type HistoryExport struct {
	TaskTitle  string          `json:"task_title"`
	ExportedAt time.Time       `json:"exported_at"`
	Students   []StudentExport `json:"students"`
}

// StudentExport holds one student's full submission history.
type StudentExport struct {
	Name        string       `json:"name"`
	Submissions []Submission `json:"submissions"`
}
