package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/kwizkit/internal/model"
)

// CreateTable inserts an empty table owned by managerID and returns it joined.
func (s *Store) CreateTable(ctx context.Context, name string, columns []model.Column, managerID string) (*model.Table, error) {
	if len(columns) == 0 {
		columns = model.DefaultColumns()
	}
	cols, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}

	id := uuid.NewString()
	var tbl *model.Table
	err = s.WithTx(ctx, func(tx *Tx) error {
		ts := now()
		if err := tx.exec(ctx,
			`INSERT INTO table_schemas (id, name, columns, version, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
			id, name, string(cols), ts, ts,
		); err != nil {
			return err
		}
		if err := tx.AddTableManager(ctx, id, managerID); err != nil {
			return err
		}
		var err error
		tbl, err = tx.LoadTable(ctx, id)
		return err
	})
	if err != nil {
		slog.Error("failed to create table", "name", name, "manager_id", managerID, "error", err)
		return nil, err
	}
	slog.Info("created table", "id", id, "name", name, "manager_id", managerID)
	return tbl, nil
}

// GetTable returns the fully joined table.
func (s *Store) GetTable(ctx context.Context, id string) (*model.Table, error) {
	return loadTable(ctx, s.db, id)
}

// ListTablesForManager returns every table the manager administers.
func (s *Store) ListTablesForManager(ctx context.Context, managerID string) ([]model.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id FROM table_schemas t
		 JOIN table_managers tm ON tm.table_id = t.id
		 WHERE tm.manager_id = ? ORDER BY t.rowid`, managerID,
	)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]model.Table, 0, len(ids))
	for _, id := range ids {
		t, err := loadTable(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// DeleteTable removes a table with its rows, then every student left without
// any row in the store.
func (s *Store) DeleteTable(ctx context.Context, id string) error {
	err := s.WithTx(ctx, func(tx *Tx) error {
		var exists int
		err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_schemas WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.NotFoundf("table %s", id)
		}

		studentIDs, err := tx.tableStudentIDs(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.exec(ctx, `DELETE FROM table_rows WHERE table_id = ?`, id); err != nil {
			return err
		}
		for _, sid := range studentIDs {
			if _, err := tx.DeleteStudentIfOrphaned(ctx, sid); err != nil {
				return err
			}
		}
		return tx.exec(ctx, `DELETE FROM table_schemas WHERE id = ?`, id)
	})
	if err != nil {
		return err
	}
	slog.Info("deleted table", "id", id)
	return nil
}

// LinkTest associates a table with a test, or clears the link when testID is empty.
func (s *Store) LinkTest(ctx context.Context, tableID, testID string) (*model.Table, error) {
	var tbl *model.Table
	err := s.WithTx(ctx, func(tx *Tx) error {
		var ref any
		if testID != "" {
			var n int
			if err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tests WHERE id = ?`, testID).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return model.NotFoundf("test %s", testID)
			}
			ref = testID
		}
		n, err := tx.execAffecting(ctx,
			`UPDATE table_schemas SET test_id = ?, updated_at = ? WHERE id = ?`, ref, now(), tableID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.NotFoundf("table %s", tableID)
		}
		tbl, err = tx.LoadTable(ctx, tableID)
		return err
	})
	return tbl, err
}

func loadTable(ctx context.Context, q querier, id string) (*model.Table, error) {
	var (
		t      model.Table
		cols   string
		testID sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, columns, version, test_id, created_at, updated_at FROM table_schemas WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &cols, &t.Version, &testID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("table %s", id)
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
		return nil, fmt.Errorf("decode columns of table %s: %w", id, err)
	}

	t.Managers, err = loadTableManagers(ctx, q, id)
	if err != nil {
		return nil, err
	}

	if testID.Valid {
		var ref model.TestRef
		err := q.QueryRowContext(ctx, `SELECT id, name, slug FROM tests WHERE id = ?`, testID.String).
			Scan(&ref.ID, &ref.Name, &ref.Slug)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			t.Test = &ref
		}
	}

	t.Rows, err = loadTableRows(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func loadTableManagers(ctx context.Context, q querier, tableID string) ([]model.PublicManager, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT m.id, m.display_name, m.email FROM managers m
		 JOIN table_managers tm ON tm.manager_id = m.id
		 WHERE tm.table_id = ? ORDER BY m.created_at, m.id`, tableID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	managers := []model.PublicManager{}
	for rows.Next() {
		var m model.PublicManager
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Email); err != nil {
			return nil, err
		}
		managers = append(managers, m)
	}
	return managers, rows.Err()
}

func loadTableRows(ctx context.Context, q querier, tableID string) ([]model.Row, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT s.id, s.first_name, s.last_name, s.email, r.data FROM table_rows r
		 JOIN students s ON s.id = r.student_id
		 WHERE r.table_id = ? ORDER BY r.id`, tableID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Row{}
	for rows.Next() {
		var (
			r    model.Row
			data string
		)
		if err := rows.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("decode row data of student %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
