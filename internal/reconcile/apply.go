package reconcile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/kwizkit/internal/model"
)

// Writer is the transactional write set Apply needs. *store.Tx implements it.
type Writer interface {
	UpdateTableMeta(ctx context.Context, tableID, name string, columns []model.Column) error
	DeleteRow(ctx context.Context, tableID, studentID string) error
	DeleteStudentIfOrphaned(ctx context.Context, studentID string) (bool, error)
	CreateStudent(ctx context.Context, st model.Student) error
	UpdateStudentName(ctx context.Context, studentID, firstName, lastName string) error
	UpsertRow(ctx context.Context, tableID, studentID string, data model.RowData) error
	BumpVersion(ctx context.Context, tableID string) error
}

// Apply executes the plan in a fixed order: table metadata, removed rows and
// their orphaned students, new students with their rows, then updated rows.
// hashes maps provisional row ids to password hashes. An empty plan writes
// nothing.
func Apply(ctx context.Context, w Writer, plan Plan, hashes map[string]string) error {
	if plan.Empty() {
		return nil
	}

	if plan.MetaChanged {
		if err := w.UpdateTableMeta(ctx, plan.TableID, plan.Name, plan.Columns); err != nil {
			return err
		}
	}

	for _, sid := range plan.Removed {
		if err := w.DeleteRow(ctx, plan.TableID, sid); err != nil {
			return err
		}
		deleted, err := w.DeleteStudentIfOrphaned(ctx, sid)
		if err != nil {
			return err
		}
		slog.Debug("removed row", "table_id", plan.TableID, "student_id", sid, "student_deleted", deleted)
	}

	for _, r := range plan.New {
		hash, ok := hashes[r.ID]
		if !ok {
			return model.NewValidationError(model.FieldError{Field: r.ID, Error: "missing credential for new student"})
		}
		st := model.Student{
			ID:           uuid.NewString(),
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			Email:        r.Email,
			PasswordHash: hash,
		}
		if err := w.CreateStudent(ctx, st); err != nil {
			return err
		}
		if err := w.UpsertRow(ctx, plan.TableID, st.ID, r.Data); err != nil {
			return err
		}
		slog.Debug("added row", "table_id", plan.TableID, "student_id", st.ID, "provisional_id", r.ID)
	}

	for _, u := range plan.Updated {
		if u.NameChanged {
			if err := w.UpdateStudentName(ctx, u.Row.ID, u.Row.FirstName, u.Row.LastName); err != nil {
				return err
			}
		}
		if err := w.UpsertRow(ctx, plan.TableID, u.Row.ID, u.Row.Data); err != nil {
			return err
		}
	}

	return w.BumpVersion(ctx, plan.TableID)
}
