package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pavelanni/kwizkit/internal/llm/prompts"
	"github.com/pavelanni/kwizkit/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// chatCompleter is the part of the OpenAI client the generator uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GenerateRequest describes the questions to draft for a test.
type GenerateRequest struct {
	Test       model.Test
	Topic      string
	Count      int
	Difficulty model.Difficulty
}

type generated struct {
	Questions []model.QuestionImport `json:"questions"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     chatCompleter
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if variant == "" {
		variant = prompts.PromptStandard
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// GenerateQuestions drafts questions for a test and then asks the model to
// review its own draft. The result is not stored.
func (c *Client) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]model.Question, error) {
	if req.Difficulty == "" {
		req.Difficulty = model.DifficultyMedium
	}
	existing := make([]string, 0, len(req.Test.Questions))
	for _, q := range req.Test.Questions {
		existing = append(existing, q.Text)
	}

	draftPrompt, err := prompts.BuildDraftPrompt(c.variant, prompts.DraftData{
		TestName:    req.Test.Name,
		Description: req.Test.Description,
		Topic:       req.Topic,
		Difficulty:  string(req.Difficulty),
		Count:       req.Count,
		Existing:    existing,
	})
	if err != nil {
		return nil, fmt.Errorf("build draft prompt: %w", err)
	}
	draft, err := c.complete(ctx, draftPrompt, 0.7)
	if err != nil {
		return nil, fmt.Errorf("draft questions: %w", err)
	}

	reviewPrompt, err := prompts.BuildReviewPrompt(c.variant, prompts.ReviewData{
		TestName:   req.Test.Name,
		Topic:      req.Topic,
		Difficulty: string(req.Difficulty),
		Count:      req.Count,
		Draft:      draft,
	})
	if err != nil {
		return nil, fmt.Errorf("build review prompt: %w", err)
	}
	reviewed, err := c.complete(ctx, reviewPrompt, 0.2)
	if err != nil {
		return nil, fmt.Errorf("review questions: %w", err)
	}

	questions, err := parseQuestions(reviewed, req)
	if err != nil {
		return nil, err
	}
	slog.Info("generated questions", "test_id", req.Test.ID, "topic", req.Topic, "count", len(questions))
	return questions, nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// parseQuestions decodes the reviewed JSON, drops questions that fail
// validation and caps the result at the requested count.
func parseQuestions(raw string, req GenerateRequest) ([]model.Question, error) {
	var out generated
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	questions := make([]model.Question, 0, len(out.Questions))
	for _, qi := range out.Questions {
		q := qi.ToQuestion()
		q.TestID = req.Test.ID
		if q.Difficulty == "" {
			q.Difficulty = req.Difficulty
		}
		if q.Topic == "" {
			q.Topic = req.Topic
		}
		if q.Kind == model.KindMultipleChoice && !slices.Contains(q.Choices, q.Answer) {
			slog.Warn("dropping multiple choice question with answer outside choices", "text", q.Text)
			continue
		}
		if err := model.ValidateStruct(q); err != nil {
			slog.Warn("dropping invalid generated question", "text", q.Text, "error", err)
			continue
		}
		questions = append(questions, q)
		if req.Count > 0 && len(questions) == req.Count {
			break
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("LLM produced no usable questions")
	}
	return questions, nil
}
