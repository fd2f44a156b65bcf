package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/kwizkit/internal/model"
)

// Slugify lowercases name, strips diacritics and joins words with dashes.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "test"
	}
	return slug
}

// CreateTest stores a test with a unique slug derived from its name.
func (s *Store) CreateTest(ctx context.Context, t model.Test) (*model.Test, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = now()
	base := Slugify(t.Name)
	var createdBy any
	if t.CreatedBy != "" {
		createdBy = t.CreatedBy
	}
	for i := 1; ; i++ {
		t.Slug = base
		if i > 1 {
			t.Slug = fmt.Sprintf("%s-%d", base, i)
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tests (id, name, slug, description, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Slug, t.Description, createdBy, t.CreatedAt,
		)
		if isUniqueViolation(err) && i < 100 {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	slog.Info("created test", "id", t.ID, "slug", t.Slug)
	return &t, nil
}

// GetTest returns a test with its questions.
func (s *Store) GetTest(ctx context.Context, id string) (*model.Test, error) {
	var (
		t         model.Test
		createdBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_by, created_at FROM tests WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &createdBy, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("test %s", id)
	}
	if err != nil {
		return nil, err
	}
	t.CreatedBy = createdBy.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.Questions, err = s.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TestOwner returns the id of the manager who created a test, or "" for a
// test created without one.
func (s *Store) TestOwner(ctx context.Context, id string) (string, error) {
	var createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT created_by FROM tests WHERE id = ?`, id).Scan(&createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.NotFoundf("test %s", id)
	}
	return createdBy.String, err
}

// ListTests returns all tests without their questions.
func (s *Store) ListTests(ctx context.Context) ([]model.Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, description, created_by, created_at FROM tests ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tests := []model.Test{}
	for rows.Next() {
		var (
			t         model.Test
			createdBy sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &createdBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedBy = createdBy.String
		t.CreatedAt = t.CreatedAt.UTC()
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// DeleteTest removes a test and its questions. Linked tables lose the link.
func (s *Store) DeleteTest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("test %s", id)
	}
	slog.Info("deleted test", "id", id)
	return nil
}

// InsertQuestion appends a question to its test and returns the new id.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	return insertQuestion(ctx, s.db, q)
}

// InsertQuestion appends a question within the transaction.
func (t *Tx) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	id, err := insertQuestion(ctx, t.tx, q)
	if err != nil {
		return 0, err
	}
	t.s.writes.Add(1)
	return id, nil
}

// InsertQuestions appends questions in one transaction: either all of them
// are stored or none.
func (s *Store) InsertQuestions(ctx context.Context, questions []model.Question) ([]int64, error) {
	return s.ImportQuestionBank(ctx, "", "", questions)
}

// ImportQuestionBank inserts questions and records the content hash of the
// bank they came from in the same transaction. An empty path records nothing.
func (s *Store) ImportQuestionBank(ctx context.Context, path, hash string, questions []model.Question) ([]int64, error) {
	ids := make([]int64, 0, len(questions))
	err := s.WithTx(ctx, func(tx *Tx) error {
		for i, q := range questions {
			id, err := tx.InsertQuestion(ctx, q)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i+1, err)
			}
			ids = append(ids, id)
		}
		if path == "" {
			return nil
		}
		return tx.SetMetadata(ctx, importHashPrefix+path, hash)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertQuestion(ctx context.Context, ex execer, q model.Question) (int64, error) {
	if q.Kind == "" {
		q.Kind = model.KindShortAnswer
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if q.Choices == nil {
		q.Choices = []string{}
	}
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return 0, fmt.Errorf("encode choices: %w", err)
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO questions (test_id, text, kind, choices, answer, difficulty, topic, max_points, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM questions WHERE test_id = ?))`,
		q.TestID, q.Text, q.Kind, string(choices), q.Answer, q.Difficulty, q.Topic, q.MaxPoints, q.TestID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQuestions returns the questions of a test in position order.
func (s *Store) ListQuestions(ctx context.Context, testID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, text, kind, choices, answer, difficulty, topic, max_points, position
		 FROM questions WHERE test_id = ? ORDER BY position, id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questions := []model.Question{}
	for rows.Next() {
		var (
			q       model.Question
			choices string
		)
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Kind, &choices, &q.Answer,
			&q.Difficulty, &q.Topic, &q.MaxPoints, &q.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
			return nil, fmt.Errorf("decode choices of question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a question from a test.
func (s *Store) DeleteQuestion(ctx context.Context, testID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ? AND test_id = ?`, id, testID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFoundf("question %d in test %s", id, testID)
	}
	return nil
}

// QuestionCount returns the number of questions in a test.
func (s *Store) QuestionCount(ctx context.Context, testID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE test_id = ?`, testID).Scan(&count)
	return count, err
}
