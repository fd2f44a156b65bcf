package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/store"
)

var _ Writer = (*store.Tx)(nil)

// Engine reconciles drafts against the entity store.
type Engine struct {
	store      *store.Store
	bcryptCost int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBcryptCost sets the cost used to hash student passwords.
func WithBcryptCost(cost int) Option {
	return func(e *Engine) { e.bcryptCost = cost }
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s, bcryptCost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile brings the stored table in line with draft in one transaction and
// returns the reloaded table. A draft staged from an older version than the
// stored one is rejected with ErrConflict. On any failure the store is left
// unchanged.
func (e *Engine) Reconcile(ctx context.Context, tableID string, draft model.Draft) (*model.Table, error) {
	draft = normalize(draft)
	if err := Validate(draft); err != nil {
		return nil, err
	}

	hashes, err := e.hashCredentials(draft.Rows)
	if err != nil {
		return nil, err
	}

	var (
		result *model.Table
		plan   Plan
	)
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.LoadTable(ctx, tableID)
		if err != nil {
			return err
		}
		if draft.BaseVersion != 0 && draft.BaseVersion != current.Version {
			return model.Conflictf("table %s is at version %d, draft was staged from version %d",
				tableID, current.Version, draft.BaseVersion)
		}
		plan, err = Diff(current, draft)
		if err != nil {
			return err
		}
		if plan.Empty() {
			result = current
			return nil
		}
		if err := Apply(ctx, tx, plan, hashes); err != nil {
			return err
		}
		result, err = tx.LoadTable(ctx, tableID)
		return err
	})
	if err != nil {
		err = classify(err)
		slog.Error("reconcile failed", "table_id", tableID, "error", err)
		return nil, err
	}

	if !plan.Empty() {
		slog.Info("reconciled table",
			"table_id", tableID,
			"version", result.Version,
			"added", len(plan.New),
			"updated", len(plan.Updated),
			"removed", len(plan.Removed),
			"meta_changed", plan.MetaChanged,
		)
	}
	return result, nil
}

// Replace reconciles a table from optional parts. A nil name, columns or rows
// keeps the stored value. Rows without an id are treated as new. The
// upsert/diff path is the same one Reconcile uses.
func (e *Engine) Replace(ctx context.Context, tableID string, name *string, columns []model.Column, rows []model.Row, baseVersion int64) (*model.Table, error) {
	current, err := e.store.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	draft := current.Draft()
	if baseVersion != 0 {
		draft.BaseVersion = baseVersion
	}
	if name != nil {
		draft.Name = *name
	}
	if columns != nil {
		draft.Columns = columns
	}
	if rows != nil {
		draft.Rows = make([]model.Row, len(rows))
		for i, r := range rows {
			r = r.Clone()
			if r.ID == "" {
				r.ID = NewProvisionalID()
			}
			draft.Rows[i] = r
		}
	} else if columns != nil {
		// Stored rows may still carry cells of dropped columns.
		known := make(map[string]bool, len(columns))
		for _, c := range columns {
			known[c.ID] = true
		}
		for i := range draft.Rows {
			for k := range draft.Rows[i].Data {
				if !known[k] {
					delete(draft.Rows[i].Data, k)
				}
			}
		}
	}
	return e.Reconcile(ctx, tableID, draft)
}

// NewProvisionalID returns a fresh id for a row that does not exist in the store.
func NewProvisionalID() string {
	return model.ProvisionalPrefix + uuid.NewString()
}

func normalize(d model.Draft) model.Draft {
	d.Name = strings.TrimSpace(d.Name)
	if d.Columns == nil {
		d.Columns = []model.Column{}
	}
	cols := make([]model.Column, len(d.Columns))
	for i, c := range d.Columns {
		if c.Type == "" {
			c.Type = model.ColumnText
		}
		cols[i] = c
	}
	d.Columns = cols
	rows := make([]model.Row, len(d.Rows))
	for i, r := range d.Rows {
		r.Email = strings.TrimSpace(r.Email)
		rows[i] = r
	}
	d.Rows = rows
	return d
}

func (e *Engine) hashCredentials(rows []model.Row) (map[string]string, error) {
	hashes := make(map[string]string)
	for _, r := range rows {
		if !model.IsProvisional(r.ID) {
			continue
		}
		pw := r.Password
		if pw == "" {
			secret, err := randomSecret()
			if err != nil {
				return nil, err
			}
			pw = secret
		}
		h, err := bcrypt.GenerateFromPassword([]byte(pw), e.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashes[r.ID] = string(h)
	}
	return hashes, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// classify keeps typed failures as they are and wraps any other store error
// as a transaction failure.
func classify(err error) error {
	var (
		ve *model.ValidationError
		te *model.TransactionError
	)
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrConflict),
		errors.As(err, &ve), errors.As(err, &te):
		return err
	}
	return &model.TransactionError{Op: "apply", Err: err}
}
