package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/kwizkit/internal/model"
)

// ExportTable builds an export-ready view of a table. Cells are keyed by
// column name; columns with duplicate names keep the first one.
func (s *Store) ExportTable(ctx context.Context, tableID string) (model.TableExport, error) {
	tbl, err := s.GetTable(ctx, tableID)
	if err != nil {
		return model.TableExport{}, fmt.Errorf("get table %s: %w", tableID, err)
	}

	names := make(map[string]string, len(tbl.Columns))
	seen := make(map[string]bool, len(tbl.Columns))
	for _, c := range tbl.Columns {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names[c.ID] = c.Name
	}

	students := make([]model.StudentExport, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		cells := make(map[string]any, len(names))
		for id, name := range names {
			if v, ok := r.Data[id]; ok && !model.IsEmpty(v) {
				cells[name] = v
			} else {
				cells[name] = ""
			}
		}
		students = append(students, model.StudentExport{
			ID:        r.ID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Cells:     cells,
		})
	}

	return model.TableExport{
		ExportedAt: now(),
		TableID:    tbl.ID,
		Name:       tbl.Name,
		Version:    tbl.Version,
		Columns:    tbl.Columns,
		Test:       tbl.Test,
		Managers:   tbl.Managers,
		Students:   students,
	}, nil
}
