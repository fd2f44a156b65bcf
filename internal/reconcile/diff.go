// Package reconcile turns a staged draft of a table into the minimal set of
// store mutations and applies them in one transaction.
package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pavelanni/kwizkit/internal/model"
)

// Update is an existing row whose student names or data differ from the store.
type Update struct {
	Row         model.Row
	NameChanged bool
	DataChanged bool
}

// Plan is the ordered write set produced by Diff.
type Plan struct {
	TableID     string
	MetaChanged bool
	Name        string
	Columns     []model.Column
	Removed     []string // student ids, in store order
	New         []model.Row
	Updated     []Update
}

// Empty reports whether applying the plan would write nothing.
func (p Plan) Empty() bool {
	return !p.MetaChanged && len(p.Removed) == 0 && len(p.New) == 0 && len(p.Updated) == 0
}

// Diff partitions the draft rows against the current store state. Rows with a
// provisional id are new, rows whose id exists in the store are updated when
// their names or data differ, and store rows missing from the draft are
// removed.
func Diff(current *model.Table, draft model.Draft) (Plan, error) {
	plan := Plan{
		TableID: current.ID,
		Name:    draft.Name,
		Columns: draft.Columns,
	}
	plan.MetaChanged = draft.Name != current.Name || !slices.Equal(draft.Columns, current.Columns)

	stored := make(map[string]model.Row, len(current.Rows))
	for _, r := range current.Rows {
		stored[r.ID] = r
	}

	kept := make(map[string]bool, len(draft.Rows))
	var bad []model.FieldError
	for i, r := range draft.Rows {
		if model.IsProvisional(r.ID) {
			plan.New = append(plan.New, r)
			continue
		}
		old, ok := stored[r.ID]
		if !ok {
			return Plan{}, model.NotFoundf("student %s in table %s", r.ID, current.ID)
		}
		kept[r.ID] = true
		if !strings.EqualFold(r.Email, old.Email) {
			bad = append(bad, model.FieldError{
				Field: fmt.Sprintf("students[%d].email", i),
				Error: "email of an existing student cannot be changed",
			})
			continue
		}
		u := Update{
			Row:         r,
			NameChanged: r.FirstName != old.FirstName || r.LastName != old.LastName,
			DataChanged: !r.Data.Equal(old.Data),
		}
		if u.NameChanged || u.DataChanged {
			plan.Updated = append(plan.Updated, u)
		}
	}
	if len(bad) > 0 {
		return Plan{}, model.NewValidationError(bad...)
	}

	for _, r := range current.Rows {
		if !kept[r.ID] {
			plan.Removed = append(plan.Removed, r.ID)
		}
	}
	return plan, nil
}
