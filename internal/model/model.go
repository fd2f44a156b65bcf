package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ProvisionalPrefix marks row ids issued locally for rows that do not exist in
// the store yet. Store-issued ids are UUIDs and never carry it.
const ProvisionalPrefix = "row-"

// IsProvisional reports whether id was issued locally for an uncommitted row.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Manager is an educator account with edit rights over tables.
type Manager struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicManager is the manager shape exposed inside a joined table.
type PublicManager struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ColumnType is advisory metadata checked when cells are written.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnNumber  ColumnType = "number"
	ColumnBoolean ColumnType = "boolean"
	ColumnEmail   ColumnType = "email"
	ColumnDate    ColumnType = "date"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnText, ColumnNumber, ColumnBoolean, ColumnEmail, ColumnDate:
		return true
	}
	return false
}

// Column is a schema-level field definition. ID never changes once created.
type Column struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// DefaultColumns is used when a table is created without columns.
func DefaultColumns() []Column {
	return []Column{
		{ID: "col-0", Name: "Group", Type: ColumnText},
		{ID: "col-1", Name: "Notes", Type: ColumnText},
	}
}

// TestRef is the short form of a test linked to a table.
type TestRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Student is a person record usable across tables.
type Student struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Row is one student as seen through a table: identity fields plus the
// per-table data. Password is write-only and never loaded from the store.
type Row struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Data      RowData
}

var rowIdentityKeys = map[string]bool{
	"id": true, "firstName": true, "lastName": true, "email": true, "password": true,
}

// IsReservedColumnID reports whether id collides with a student identity
// field of the flattened row form and so cannot name a column.
func IsReservedColumnID(id string) bool {
	return rowIdentityKeys[id]
}

// MarshalJSON flattens the row into {id, firstName, lastName, email, <columnId>: value}.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		if v != nil {
			out[k] = v
		}
	}
	out["id"] = r.ID
	out["firstName"] = r.FirstName
	out["lastName"] = r.LastName
	out["email"] = r.Email
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened row form. Keys other than the identity
// fields become cells.
func (r *Row) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var row Row
	for k, msg := range raw {
		if rowIdentityKeys[k] {
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			switch k {
			case "id":
				row.ID = s
			case "firstName":
				row.FirstName = s
			case "lastName":
				row.LastName = s
			case "email":
				row.Email = s
			case "password":
				row.Password = s
			}
			continue
		}
		v, err := ParseValue(msg)
		if err != nil {
			return fmt.Errorf("cell %s: %w", k, err)
		}
		if v == nil {
			continue
		}
		if row.Data == nil {
			row.Data = make(RowData)
		}
		row.Data[k] = v
	}
	*r = row
	return nil
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	r.Data = r.Data.Clone()
	return r
}

// Table is a fully joined table schema: columns, managers, linked test and rows.
type Table struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Version   int64           `json:"version"`
	Columns   []Column        `json:"columns"`
	Managers  []PublicManager `json:"managers"`
	Test      *TestRef        `json:"tests"`
	Rows      []Row           `json:"students"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := *t
	c.Columns = slices.Clone(t.Columns)
	c.Managers = slices.Clone(t.Managers)
	if t.Test != nil {
		ref := *t.Test
		c.Test = &ref
	}
	if t.Rows != nil {
		c.Rows = make([]Row, len(t.Rows))
		for i, r := range t.Rows {
			c.Rows[i] = r.Clone()
		}
	}
	return &c
}

// Column returns the column with the given id.
func (t *Table) Column(id string) (Column, bool) {
	for _, c := range t.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Draft builds a reconciliation draft from the table, based on its version.
func (t *Table) Draft() Draft {
	c := t.Clone()
	return Draft{
		Name:        c.Name,
		Columns:     c.Columns,
		Rows:        c.Rows,
		BaseVersion: c.Version,
	}
}

// Draft is the desired state of a table handed to the reconciliation engine.
// BaseVersion is the version the draft was staged from; zero skips the
// staleness check.
type Draft struct {
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	Rows        []Row    `json:"students"`
	BaseVersion int64    `json:"version"`
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionKind is the answer format of a question.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindShortAnswer    QuestionKind = "short_answer"
	KindEssay          QuestionKind = "essay"
)

// Test is a named set of questions authored by a manager.
type Test struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	Questions   []Question `json:"questions,omitempty"`
}

// Ref returns the short form of the test.
func (t Test) Ref() TestRef {
	return TestRef{ID: t.ID, Name: t.Name, Slug: t.Slug}
}

// Question is a single test question.
type Question struct {
	ID         int64        `json:"id"`
	TestID     string       `json:"testId"`
	Text       string       `json:"text" validate:"required"`
	Kind       QuestionKind `json:"kind" validate:"omitempty,oneof=multiple_choice short_answer essay"`
	Choices    []string     `json:"choices,omitempty"`
	Answer     string       `json:"answer"`
	Difficulty Difficulty   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Topic      string       `json:"topic"`
	MaxPoints  int          `json:"maxPoints" validate:"gte=0"`
	Position   int          `json:"position"`
}

// QuestionImport is used for loading question banks from JSON files.
type QuestionImport struct {
	Text       string       `json:"text"`
	Kind       QuestionKind `json:"kind"`
	Choices    []string     `json:"choices"`
	Answer     string       `json:"answer"`
	Difficulty Difficulty   `json:"difficulty"`
	Topic      string       `json:"topic"`
	MaxPoints  int          `json:"max_points"`
}

// ToQuestion converts a question bank entry into an unsaved question.
func (qi QuestionImport) ToQuestion() Question {
	return Question{
		Text:       strings.TrimSpace(qi.Text),
		Kind:       qi.Kind,
		Choices:    qi.Choices,
		Answer:     qi.Answer,
		Difficulty: qi.Difficulty,
		Topic:      qi.Topic,
		MaxPoints:  qi.MaxPoints,
	}
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	BasePath      string // URL prefix for sub-path deployments
	Lang          string
	MaxGenerate   int // upper bound on questions per generation request
	PromptVariant string
}

type managerCtxKey struct{}

// ContextWithManager stores the resolved manager in the request context.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerCtxKey{}, m)
}

// ManagerFromContext retrieves the resolved manager from context, or nil.
func ManagerFromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(managerCtxKey{}).(*Manager)
	return m
}
