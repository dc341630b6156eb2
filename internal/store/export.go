package store

import (
	"fmt"
	"time"

	"github.com/soundlab/soundcoach/internal/model"
)

// ExportAll builds an export of every student's submission history.
func (s *Store) ExportAll(taskTitle string) (model.HistoryExport, error) {
	names, err := s.ListStudents()
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list students: %w", err)
	}

	export := model.HistoryExport{
		TaskTitle:  taskTitle,
		ExportedAt: time.Now(),
	}
	for _, name := range names {
		subs, err := s.ListSubmissions(name)
		if err != nil {
			return model.HistoryExport{}, fmt.Errorf("list submissions for %s: %w", name, err)
		}
		export.Students = append(export.Students, model.StudentExport{
			Name:        name,
			Submissions: subs,
		})
	}
	return export, nil
}
