package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pavelanni/kwizkit/internal/model"
)

// GetStudent returns a student by id, or nil if it does not exist.
func (s *Store) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, password_hash, created_at
		 FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.FirstName, &st.LastName, &st.Email, &st.PasswordHash, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

// StudentCount returns the total number of students in the store.
func (s *Store) StudentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}

// RowCount returns the total number of table rows in the store.
func (s *Store) RowCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_rows`).Scan(&count)
	return count, err
}
