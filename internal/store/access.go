package store

import (
	"context"

	"github.com/pavelanni/kwizkit/internal/model"
)

// ResolveManagerID maps an identity provider account to a manager id.
func (s *Store) ResolveManagerID(ctx context.Context, accountID string) (string, error) {
	m, err := s.GetManagerByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", model.NotFoundf("manager account %s", accountID)
	}
	return m.ID, nil
}

// IsManager reports whether managerID administers tableID. It returns
// ErrNotFound when the table itself does not exist.
func (s *Store) IsManager(ctx context.Context, managerID, tableID string) (bool, error) {
	var tables, links int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM table_schemas WHERE id = ?),
			(SELECT COUNT(*) FROM table_managers WHERE table_id = ? AND manager_id = ?)`,
		tableID, tableID, managerID,
	).Scan(&tables, &links)
	if err != nil {
		return false, err
	}
	if tables == 0 {
		return false, model.NotFoundf("table %s", tableID)
	}
	return links > 0, nil
}

// AddManager grants an additional manager edit rights over a table.
func (s *Store) AddManager(ctx context.Context, tableID, managerID string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.AddTableManager(ctx, tableID, managerID)
	})
}
