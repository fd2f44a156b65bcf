package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Templates embed.FS

var (
	topicInputRegex    = regexp.MustCompile(`(?i)</?\s*topic-input\b[^>]*>`)
	draftQuestionRegex = regexp.MustCompile(`(?i)</?\s*draft-questions\b[^>]*>`)
)

const maxInputRunes = 2000

// PromptVariant selects the tone of generated questions.
type PromptVariant string

const (
	// PromptStrict produces rigorous exam questions.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient produces friendly practice questions.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	draftTemplates  map[PromptVariant]*template.Template
	reviewTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// DraftData holds template data for the first generation step.
type DraftData struct {
	TestName    string
	Description string
	Topic       string
	Difficulty  string
	Count       int
	Existing    []string
}

// ReviewData holds template data for the review step.
type ReviewData struct {
	TestName   string
	Topic      string
	Difficulty string
	Count      int
	Draft      string
}

// Load parses the draft and review templates of every variant from fsys.
// Templates are parsed once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		draftTemplates = make(map[PromptVariant]*template.Template)
		reviewTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			d, err := parse(fsys, "templates/draft_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			draftTemplates[v] = d

			r, err := parse(fsys, "templates/review_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			reviewTemplates[v] = r
		}
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

func lookup(set map[PromptVariant]*template.Template, variant PromptVariant) (*template.Template, error) {
	if set == nil {
		return nil, errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := set[variant]
	if !ok {
		if loadErr != nil {
			return nil, fmt.Errorf("templates load failed: %w", loadErr)
		}
		return nil, errors.New("invalid prompt variant: " + string(variant))
	}
	return tmpl, nil
}

// BuildDraftPrompt renders the prompt asking for new questions.
func BuildDraftPrompt(variant PromptVariant, data DraftData) (string, error) {
	tmpl, err := lookup(draftTemplates, variant)
	if err != nil {
		return "", err
	}
	data.Topic = sanitizeInput(data.Topic)
	data.Description = sanitizeInput(data.Description)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildReviewPrompt renders the prompt asking the model to correct its draft.
func BuildReviewPrompt(variant PromptVariant, data ReviewData) (string, error) {
	tmpl, err := lookup(reviewTemplates, variant)
	if err != nil {
		return "", err
	}
	data.Topic = sanitizeInput(data.Topic)
	data.Draft = draftQuestionRegex.ReplaceAllString(data.Draft, "")
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeInput(s string) string {
	s = topicInputRegex.ReplaceAllString(s, "")
	s = draftQuestionRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxInputRunes {
		s = string([]rune(s)[:maxInputRunes])
	}
	return s
}
