package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pavelanni/kwizkit/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "kwizkit.db"))
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestManager(t *testing.T, s *Store, accountID string) *model.Manager {
	t.Helper()
	m, err := s.CreateManager(context.Background(), model.Manager{
		AccountID:   accountID,
		DisplayName: "Manager " + accountID,
		Email:       accountID + "@school.test",
	})
	if err != nil {
		t.Fatalf("createTestManager: %v", err)
	}
	return m
}

// addStudentRow creates a student and joins it to a table in one transaction.
func addStudentRow(t *testing.T, s *Store, tableID, studentID, email string, data model.RowData) {
	t.Helper()
	ctx := context.Background()
	st, err := s.GetStudent(ctx, studentID)
	if err != nil {
		t.Fatalf("addStudentRow: %v", err)
	}
	err = s.WithTx(ctx, func(tx *Tx) error {
		if st == nil {
			if err := tx.CreateStudent(ctx, model.Student{
				ID: studentID, FirstName: "First", LastName: "Last", Email: email, PasswordHash: "x",
			}); err != nil {
				return err
			}
		}
		return tx.UpsertRow(ctx, tableID, studentID, data)
	})
	if err != nil {
		t.Fatalf("addStudentRow: %v", err)
	}
}

func TestManagerCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.ManagerCount(ctx)
	if err != nil {
		t.Fatalf("ManagerCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 managers, got %d", count)
	}

	m := createTestManager(t, s, "acct-1")
	got, err := s.GetManagerByAccountID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetManagerByAccountID: %v", err)
	}
	if got == nil || got.ID != m.ID {
		t.Fatalf("expected manager %s, got %+v", m.ID, got)
	}

	// Missing account returns nil without error.
	got, err = s.GetManagerByAccountID(ctx, "nobody")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for unknown account, got %+v, %v", got, err)
	}

	_, err = s.CreateManager(ctx, model.Manager{AccountID: "acct-1"})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate account, got %v", err)
	}

	list, err := s.ListManagers(ctx)
	if err != nil {
		t.Fatalf("ListManagers: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 manager, got %d", len(list))
	}
}

func TestAccessGateway(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := createTestManager(t, s, "owner")
	other := createTestManager(t, s, "other")

	tbl, err := s.CreateTable(ctx, "Class A", nil, owner.ID)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	id, err := s.ResolveManagerID(ctx, "owner")
	if err != nil || id != owner.ID {
		t.Fatalf("ResolveManagerID: got %q, %v", id, err)
	}
	if _, err := s.ResolveManagerID(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}

	tests := []struct {
		name      string
		managerID string
		tableID   string
		want      bool
		wantErr   error
	}{
		{"owner", owner.ID, tbl.ID, true, nil},
		{"unrelated manager", other.ID, tbl.ID, false, nil},
		{"missing table", owner.ID, "nope", false, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IsManager(ctx, tt.managerID, tt.tableID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if err := s.AddManager(ctx, tbl.ID, other.ID); err != nil {
		t.Fatalf("AddManager: %v", err)
	}
	ok, err := s.IsManager(ctx, other.ID, tbl.ID)
	if err != nil || !ok {
		t.Errorf("expected co-manager access, got %v, %v", ok, err)
	}
}

func TestCreateAndGetTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")

	tbl, err := s.CreateTable(ctx, "Roster", nil, m.ID)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if tbl.Version != 1 {
		t.Errorf("expected version 1, got %d", tbl.Version)
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0].ID != "col-0" {
		t.Errorf("expected default columns, got %+v", tbl.Columns)
	}
	if len(tbl.Managers) != 1 || tbl.Managers[0].ID != m.ID {
		t.Errorf("expected owner in managers, got %+v", tbl.Managers)
	}
	if tbl.Rows == nil || len(tbl.Rows) != 0 {
		t.Errorf("expected empty non-nil rows, got %#v", tbl.Rows)
	}

	cols := []model.Column{{ID: "col-0", Name: "Score", Type: model.ColumnNumber}}
	tbl2, err := s.CreateTable(ctx, "Scores", cols, m.ID)
	if err != nil {
		t.Fatalf("CreateTable with columns: %v", err)
	}
	addStudentRow(t, s, tbl2.ID, "s1", "ann@x.com", model.RowData{"col-0": model.Number(7)})

	got, err := s.GetTable(ctx, tbl2.ID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got.Rows))
	}
	if got.Rows[0].Email != "ann@x.com" || got.Rows[0].Data["col-0"] != model.Number(7) {
		t.Errorf("unexpected row %+v", got.Rows[0])
	}

	list, err := s.ListTablesForManager(ctx, m.ID)
	if err != nil {
		t.Fatalf("ListTablesForManager: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Roster" || list[1].Name != "Scores" {
		t.Errorf("unexpected table list %+v", list)
	}

	if _, err := s.GetTable(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTableOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")

	t1, _ := s.CreateTable(ctx, "T1", nil, m.ID)
	t2, _ := s.CreateTable(ctx, "T2", nil, m.ID)
	addStudentRow(t, s, t1.ID, "shared", "shared@x.com", nil)
	addStudentRow(t, s, t2.ID, "shared", "shared@x.com", nil)
	addStudentRow(t, s, t1.ID, "only", "only@x.com", nil)

	if err := s.DeleteTable(ctx, t1.ID); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}

	if st, _ := s.GetStudent(ctx, "only"); st != nil {
		t.Errorf("expected orphaned student to be deleted")
	}
	if st, _ := s.GetStudent(ctx, "shared"); st == nil {
		t.Errorf("expected shared student to survive")
	}
	other, err := s.GetTable(ctx, t2.ID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if len(other.Rows) != 1 {
		t.Errorf("expected other table to keep its row, got %d", len(other.Rows))
	}

	if err := s.DeleteTable(ctx, t1.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStudentForeignKeyRestrict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	tbl, _ := s.CreateTable(ctx, "T", nil, m.ID)
	addStudentRow(t, s, tbl.ID, "s1", "s1@x.com", nil)

	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.DeleteStudent(ctx, "s1")
	})
	if err == nil {
		t.Fatal("expected delete of referenced student to fail")
	}

	err = s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.DeleteRow(ctx, tbl.ID, "s1"); err != nil {
			return err
		}
		deleted, err := tx.DeleteStudentIfOrphaned(ctx, "s1")
		if err != nil {
			return err
		}
		if !deleted {
			t.Error("expected orphaned student to be deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	tbl, _ := s.CreateTable(ctx, "T", nil, m.ID)

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateStudent(ctx, model.Student{ID: "a", FirstName: "A", LastName: "A", Email: "a@x.com", PasswordHash: "x"}); err != nil {
			return err
		}
		if err := tx.UpsertRow(ctx, tbl.ID, "a", nil); err != nil {
			return err
		}
		return tx.CreateStudent(ctx, model.Student{ID: "b", FirstName: "B", LastName: "B", Email: "a@x.com", PasswordHash: "x"})
	})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	count, err := s.StudentCount(ctx)
	if err != nil {
		t.Fatalf("StudentCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback to leave 0 students, got %d", count)
	}
	rows, _ := s.RowCount(ctx)
	if rows != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", rows)
	}
}

func TestTestsAndQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")

	t1, err := s.CreateTest(ctx, model.Test{Name: "Go Basics", CreatedBy: m.ID})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}
	if t1.Slug != "go-basics" {
		t.Errorf("expected slug go-basics, got %q", t1.Slug)
	}
	t2, err := s.CreateTest(ctx, model.Test{Name: "Go basics!"})
	if err != nil {
		t.Fatalf("CreateTest duplicate name: %v", err)
	}
	if t2.Slug != "go-basics-2" {
		t.Errorf("expected slug go-basics-2, got %q", t2.Slug)
	}

	id1, err := s.InsertQuestion(ctx, model.Question{TestID: t1.ID, Text: "What is Go?", MaxPoints: 5})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	if _, err := s.InsertQuestion(ctx, model.Question{
		TestID: t1.ID, Text: "Pick one", Kind: model.KindMultipleChoice,
		Choices: []string{"a", "b"}, Answer: "a", Difficulty: model.DifficultyEasy,
	}); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	got, err := s.GetTest(ctx, t1.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got.Questions))
	}
	q := got.Questions[0]
	if q.Kind != model.KindShortAnswer || q.Difficulty != model.DifficultyMedium || q.Position != 1 {
		t.Errorf("expected defaults on first question, got %+v", q)
	}
	if len(got.Questions[1].Choices) != 2 || got.Questions[1].Position != 2 {
		t.Errorf("unexpected second question %+v", got.Questions[1])
	}

	if err := s.DeleteQuestion(ctx, t1.ID, id1); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
	if err := s.DeleteQuestion(ctx, t1.ID, id1); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	count, _ := s.QuestionCount(ctx, t1.ID)
	if count != 1 {
		t.Errorf("expected 1 question, got %d", count)
	}

	tests, err := s.ListTests(ctx)
	if err != nil {
		t.Fatalf("ListTests: %v", err)
	}
	if len(tests) != 2 {
		t.Errorf("expected 2 tests, got %d", len(tests))
	}
}

func TestLinkTest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	tbl, _ := s.CreateTable(ctx, "T", nil, m.ID)
	test, _ := s.CreateTest(ctx, model.Test{Name: "Quiz"})

	linked, err := s.LinkTest(ctx, tbl.ID, test.ID)
	if err != nil {
		t.Fatalf("LinkTest: %v", err)
	}
	if linked.Test == nil || linked.Test.Slug != "quiz" {
		t.Fatalf("expected linked test, got %+v", linked.Test)
	}

	if _, err := s.LinkTest(ctx, tbl.ID, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown test, got %v", err)
	}

	// Deleting the test clears the link.
	if err := s.DeleteTest(ctx, test.ID); err != nil {
		t.Fatalf("DeleteTest: %v", err)
	}
	got, _ := s.GetTable(ctx, tbl.ID)
	if got.Test != nil {
		t.Errorf("expected link cleared, got %+v", got.Test)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Go Basics", "go-basics"},
		{"  Élan vital ", "elan-vital"},
		{"Тест 1", "тест-1"},
		{"!!!", "test"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestImportQuestionBankIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	test, err := s.CreateTest(ctx, model.Test{Name: "Bank", CreatedBy: m.ID})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}

	bank := []model.Question{
		{TestID: test.ID, Text: "Q1"},
		{TestID: "missing", Text: "Q2"},
	}
	if _, err := s.ImportQuestionBank(ctx, test.ID+"/bank.json", "h1", bank); err == nil {
		t.Fatal("expected foreign key failure")
	}
	if n, _ := s.QuestionCount(ctx, test.ID); n != 0 {
		t.Errorf("expected no questions after failed import, got %d", n)
	}
	if hash, _ := s.GetImportedFileHash(ctx, test.ID+"/bank.json"); hash != "" {
		t.Errorf("expected no recorded hash, got %q", hash)
	}

	bank[1].TestID = test.ID
	ids, err := s.ImportQuestionBank(ctx, test.ID+"/bank.json", "h1", bank)
	if err != nil {
		t.Fatalf("ImportQuestionBank: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %d", len(ids))
	}
	if hash, _ := s.GetImportedFileHash(ctx, test.ID+"/bank.json"); hash != "h1" {
		t.Errorf("expected hash h1, got %q", hash)
	}

	ids, err = s.InsertQuestions(ctx, []model.Question{{TestID: test.ID, Text: "Q3"}})
	if err != nil || len(ids) != 1 {
		t.Fatalf("InsertQuestions: %v %v", ids, err)
	}
	if n, _ := s.QuestionCount(ctx, test.ID); n != 3 {
		t.Errorf("expected 3 questions, got %d", n)
	}
}

func TestStudentEmailUniqueIgnoresCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	tbl, err := s.CreateTable(ctx, "T", nil, m.ID)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	addStudentRow(t, s, tbl.ID, "s1", "ann@x.com", nil)

	err = s.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateStudent(ctx, model.Student{
			ID: "s2", FirstName: "Ann", LastName: "Lee", Email: "ANN@x.com", PasswordHash: "x",
		})
	})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestExportTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := createTestManager(t, s, "acct")
	cols := []model.Column{
		{ID: "col-0", Name: "Group", Type: model.ColumnText},
		{ID: "col-1", Name: "Score", Type: model.ColumnNumber},
	}
	tbl, _ := s.CreateTable(ctx, "T", cols, m.ID)
	addStudentRow(t, s, tbl.ID, "s1", "s1@x.com", model.RowData{"col-1": model.Number(9)})

	exp, err := s.ExportTable(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("ExportTable: %v", err)
	}
	if len(exp.Students) != 1 {
		t.Fatalf("expected 1 student, got %d", len(exp.Students))
	}
	cells := exp.Students[0].Cells
	if cells["Score"] != model.Number(9) || cells["Group"] != "" {
		t.Errorf("unexpected cells %+v", cells)
	}
}
