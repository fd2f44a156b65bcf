// Package tablesession stages edits to a table in memory and commits them
// through the reconciliation engine.
package tablesession

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/kwizkit/internal/model"
)

// ChangeKind names a staged edit.
type ChangeKind string

const (
	ChangeAddRow        ChangeKind = "add_row"
	ChangeUpdateCell    ChangeKind = "update_cell"
	ChangeUpdateStudent ChangeKind = "update_student"
	ChangeRenameColumn  ChangeKind = "rename_column"
	ChangeAddColumn     ChangeKind = "add_column"
	ChangeDeleteRow     ChangeKind = "delete_row"
	ChangeRenameTable   ChangeKind = "rename_table"
)

// Change is one entry of the edit log.
type Change struct {
	Kind     ChangeKind  `json:"kind"`
	RowID    string      `json:"rowId,omitempty"`
	ColumnID string      `json:"columnId,omitempty"`
	Value    model.Value `json:"value,omitempty"`
	Name     string      `json:"name,omitempty"`
	At       time.Time   `json:"at"`
}

// Committer persists a draft and returns the authoritative table.
type Committer interface {
	Reconcile(ctx context.Context, tableID string, draft model.Draft) (*model.Table, error)
}

// Session holds the committed snapshot of one table and a draft under edit.
// It is safe for concurrent use.
type Session struct {
	id        string
	tableID   string
	committer Committer

	mu       sync.Mutex
	snapshot *model.Table
	draft    *model.Table
	changes  []Change
	editing  bool
}

// New starts a clean session over snapshot.
func New(snapshot *model.Table, c Committer) *Session {
	return &Session{
		id:        uuid.NewString(),
		tableID:   snapshot.ID,
		committer: c,
		snapshot:  snapshot.Clone(),
		draft:     snapshot.Clone(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TableID returns the id of the table being edited. It does not wait for
// an in-flight commit.
func (s *Session) TableID() string { return s.tableID }

func (s *Session) record(c Change) {
	c.At = time.Now().UTC()
	s.changes = append(s.changes, c)
}

func (s *Session) row(id string) *model.Row {
	for i := range s.draft.Rows {
		if s.draft.Rows[i].ID == id {
			return &s.draft.Rows[i]
		}
	}
	return nil
}

// AddRow appends a row with a provisional id and an empty cell for every
// column, and returns the id.
func (s *Session) AddRow() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.ProvisionalPrefix + uuid.NewString()
	data := make(model.RowData, len(s.draft.Columns))
	for _, c := range s.draft.Columns {
		data[c.ID] = model.Text("")
	}
	s.draft.Rows = append(s.draft.Rows, model.Row{ID: id, Data: data})
	s.record(Change{Kind: ChangeAddRow, RowID: id})
	return id
}

// UpdateCell sets one cell of a draft row. Unknown rows are ignored.
func (s *Session) UpdateCell(rowID, columnID string, v model.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.row(rowID)
	if r == nil {
		return
	}
	if r.Data == nil {
		r.Data = make(model.RowData)
	}
	if v == nil {
		v = model.Text("")
	}
	r.Data[columnID] = v
	s.record(Change{Kind: ChangeUpdateCell, RowID: rowID, ColumnID: columnID, Value: v})
}

// UpdateStudent edits the identity fields of a draft row. Unknown rows are ignored.
func (s *Session) UpdateStudent(rowID, firstName, lastName, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.row(rowID)
	if r == nil {
		return
	}
	r.FirstName, r.LastName, r.Email = firstName, lastName, email
	s.record(Change{Kind: ChangeUpdateStudent, RowID: rowID, Name: strings.TrimSpace(firstName + " " + lastName)})
}

// SetPassword stages an initial password for a row that is not committed yet.
func (s *Session) SetPassword(rowID, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.row(rowID)
	if r == nil || !model.IsProvisional(rowID) {
		return
	}
	r.Password = password
	s.record(Change{Kind: ChangeUpdateStudent, RowID: rowID})
}

// RenameColumn changes a column label. Row data is keyed by column id and
// stays untouched.
func (s *Session) RenameColumn(columnID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.draft.Columns {
		if s.draft.Columns[i].ID == columnID {
			s.draft.Columns[i].Name = name
			s.record(Change{Kind: ChangeRenameColumn, ColumnID: columnID, Name: name})
			return
		}
	}
}

// AddColumn appends a column with the next free col-N id and returns the id.
func (s *Session) AddColumn(name string, t model.ColumnType) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == "" {
		t = model.ColumnText
	}
	next := 0
	for _, c := range s.draft.Columns {
		if n, err := strconv.Atoi(strings.TrimPrefix(c.ID, "col-")); err == nil && n >= next {
			next = n + 1
		}
	}
	id := fmt.Sprintf("col-%d", next)
	s.draft.Columns = append(s.draft.Columns, model.Column{ID: id, Name: name, Type: t})
	for i := range s.draft.Rows {
		if s.draft.Rows[i].Data == nil {
			s.draft.Rows[i].Data = make(model.RowData)
		}
		s.draft.Rows[i].Data[id] = model.Text("")
	}
	s.record(Change{Kind: ChangeAddColumn, ColumnID: id, Name: name})
	return id
}

// DeleteRow removes a draft row. It does nothing unless editing is enabled.
func (s *Session) DeleteRow(rowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.editing {
		return
	}
	i := slices.IndexFunc(s.draft.Rows, func(r model.Row) bool { return r.ID == rowID })
	if i < 0 {
		return
	}
	s.draft.Rows = slices.Delete(s.draft.Rows, i, i+1)
	s.record(Change{Kind: ChangeDeleteRow, RowID: rowID})
}

// SetEditing enables or disables destructive edits.
func (s *Session) SetEditing(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = on
}

// Editing reports whether destructive edits are enabled.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// RenameTable sets the draft table name.
func (s *Session) RenameTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.Name = name
	s.record(Change{Kind: ChangeRenameTable, Name: name})
}

// IsDirty reports whether any edit was staged since the last commit or discard.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes) > 0
}

// Changes returns a copy of the edit log.
func (s *Session) Changes() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.changes)
}

// Commit hands the draft to the committer. On success the result becomes both
// snapshot and draft and the log is cleared. On failure nothing changes.
// Edits issued while a commit is in flight wait for it to finish.
func (s *Session) Commit(ctx context.Context) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changes) == 0 {
		return s.snapshot.Clone(), nil
	}
	result, err := s.committer.Reconcile(ctx, s.snapshot.ID, s.draft.Draft())
	if err != nil {
		return nil, err
	}
	s.snapshot = result.Clone()
	s.draft = result.Clone()
	s.changes = nil
	return result.Clone(), nil
}

// Discard drops every staged edit.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = s.snapshot.Clone()
	s.changes = nil
}

// Draft returns a copy of the working table.
func (s *Session) Draft() *model.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Snapshot returns a copy of the last committed table.
func (s *Session) Snapshot() *model.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}
