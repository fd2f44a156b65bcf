package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/kwizkit/internal/model"
)

// Tx is the read/write set available inside WithTx. Every write goes through
// the same *sql.Tx so a failure anywhere rolls back all of them.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	t.s.writes.Add(1)
	return nil
}

func (t *Tx) execAffecting(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	t.s.writes.Add(1)
	return res.RowsAffected()
}

// LoadTable returns the joined table as seen by this transaction.
func (t *Tx) LoadTable(ctx context.Context, id string) (*model.Table, error) {
	return loadTable(ctx, t.tx, id)
}

// AddTableManager attaches a manager to a table.
func (t *Tx) AddTableManager(ctx context.Context, tableID, managerID string) error {
	return t.exec(ctx,
		`INSERT INTO table_managers (table_id, manager_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		tableID, managerID,
	)
}

// UpdateTableMeta overwrites the table name and column list.
func (t *Tx) UpdateTableMeta(ctx context.Context, tableID, name string, columns []model.Column) error {
	cols, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	n, err := t.execAffecting(ctx,
		`UPDATE table_schemas SET name = ?, columns = ?, updated_at = ? WHERE id = ?`,
		name, string(cols), now(), tableID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("table %s", tableID)
	}
	return nil
}

// BumpVersion increments the optimistic concurrency counter of a table.
func (t *Tx) BumpVersion(ctx context.Context, tableID string) error {
	n, err := t.execAffecting(ctx,
		`UPDATE table_schemas SET version = version + 1, updated_at = ? WHERE id = ?`, now(), tableID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("table %s", tableID)
	}
	return nil
}

// DeleteRow removes the row joining a student to a table.
func (t *Tx) DeleteRow(ctx context.Context, tableID, studentID string) error {
	n, err := t.execAffecting(ctx,
		`DELETE FROM table_rows WHERE table_id = ? AND student_id = ?`, tableID, studentID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("row for student %s in table %s", studentID, tableID)
	}
	return nil
}

// StudentRowCount returns how many tables still reference the student.
func (t *Tx) StudentRowCount(ctx context.Context, studentID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM table_rows WHERE student_id = ?`, studentID,
	).Scan(&count)
	return count, err
}

// DeleteStudent removes a student. The foreign key on table_rows refuses the
// delete while any row still references the student.
func (t *Tx) DeleteStudent(ctx context.Context, studentID string) error {
	n, err := t.execAffecting(ctx, `DELETE FROM students WHERE id = ?`, studentID)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("student %s", studentID)
	}
	return nil
}

// DeleteStudentIfOrphaned deletes the student when no row references it and
// reports whether it did.
func (t *Tx) DeleteStudentIfOrphaned(ctx context.Context, studentID string) (bool, error) {
	count, err := t.StudentRowCount(ctx, studentID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := t.DeleteStudent(ctx, studentID); err != nil {
		return false, err
	}
	return true, nil
}

// CreateStudent inserts a student. A colliding email yields ErrConflict.
func (t *Tx) CreateStudent(ctx context.Context, st model.Student) error {
	created := st.CreatedAt
	if created.IsZero() {
		created = now()
	}
	err := t.exec(ctx,
		`INSERT INTO students (id, first_name, last_name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.FirstName, st.LastName, st.Email, st.PasswordHash, created,
	)
	if isUniqueViolation(err) {
		return model.Conflictf("student with email %s already exists", st.Email)
	}
	return err
}

// UpdateStudentName changes the mutable name fields of a student.
func (t *Tx) UpdateStudentName(ctx context.Context, studentID, firstName, lastName string) error {
	n, err := t.execAffecting(ctx,
		`UPDATE students SET first_name = ?, last_name = ? WHERE id = ?`, firstName, lastName, studentID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("student %s", studentID)
	}
	return nil
}

// UpsertRow creates or replaces the data of the (table, student) row.
func (t *Tx) UpsertRow(ctx context.Context, tableID, studentID string, data model.RowData) error {
	if data == nil {
		data = model.RowData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode row data: %w", err)
	}
	return t.exec(ctx,
		`INSERT INTO table_rows (table_id, student_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(table_id, student_id) DO UPDATE SET data = excluded.data`,
		tableID, studentID, string(raw),
	)
}

func (t *Tx) tableStudentIDs(ctx context.Context, tableID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT student_id FROM table_rows WHERE table_id = ? ORDER BY id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
