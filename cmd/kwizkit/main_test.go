package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "kwizkit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveTest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := resolveTest(ctx, s, "Go Basics")
	if err != nil {
		t.Fatalf("resolveTest: %v", err)
	}
	for _, ref := range []string{created.ID, "Go Basics", "go-basics"} {
		got, err := resolveTest(ctx, s, ref)
		if err != nil {
			t.Fatalf("resolveTest(%q): %v", ref, err)
		}
		if got.ID != created.ID {
			t.Errorf("resolveTest(%q) = %s, want %s", ref, got.ID, created.ID)
		}
	}
	tests, _ := s.ListTests(ctx)
	if len(tests) != 1 {
		t.Errorf("expected 1 test, got %d", len(tests))
	}
}

func TestResolveTestStoreError(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "kwizkit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s.Close()

	_, err = resolveTest(context.Background(), s, "Anything")
	if err == nil {
		t.Fatal("expected an error from a closed store")
	}
	if !strings.Contains(err.Error(), "look up test") {
		t.Errorf("store failure should stop before creating a test, got %v", err)
	}
}

func TestImportFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	test, err := s.CreateTest(ctx, model.Test{Name: "Bank"})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bank.json")
	if err := os.WriteFile(path, []byte(`[{"text": "Q1"}, {"text": "Q2", "kind": "essay"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := importFile(ctx, s, test.ID, path); err != nil {
			t.Fatalf("importFile: %v", err)
		}
	}
	if n, _ := s.QuestionCount(ctx, test.ID); n != 2 {
		t.Errorf("expected 2 questions after a repeated import, got %d", n)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"text": "ok"}, {"text": ""}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := importFile(ctx, s, test.ID, bad); err == nil {
		t.Error("expected validation error")
	}
	if n, _ := s.QuestionCount(ctx, test.ID); n != 2 {
		t.Errorf("invalid bank must not add questions, got %d", n)
	}
}
