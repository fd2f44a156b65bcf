package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/kwizkit/internal/model"
)

// CreateManager registers a manager account. A duplicate account id yields ErrConflict.
func (s *Store) CreateManager(ctx context.Context, m model.Manager) (*model.Manager, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO managers (id, account_id, display_name, email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.DisplayName, m.Email, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, model.Conflictf("manager account %s already exists", m.AccountID)
	}
	if err != nil {
		slog.Error("failed to create manager", "account_id", m.AccountID, "error", err)
		return nil, err
	}
	slog.Info("created manager", "id", m.ID, "account_id", m.AccountID)
	return &m, nil
}

// GetManagerByAccountID returns a manager by external account id, or nil.
func (s *Store) GetManagerByAccountID(ctx context.Context, accountID string) (*model.Manager, error) {
	var m model.Manager
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, display_name, email, created_at
		 FROM managers WHERE account_id = ?`, accountID,
	).Scan(&m.ID, &m.AccountID, &m.DisplayName, &m.Email, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// ListManagers returns all managers.
func (s *Store) ListManagers(ctx context.Context) ([]model.Manager, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, display_name, email, created_at
		 FROM managers ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var managers []model.Manager
	for rows.Next() {
		var m model.Manager
		if err := rows.Scan(&m.ID, &m.AccountID, &m.DisplayName, &m.Email, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		managers = append(managers, m)
	}
	return managers, rows.Err()
}

// ManagerCount returns the total number of managers.
func (s *Store) ManagerCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM managers`).Scan(&count)
	return count, err
}
