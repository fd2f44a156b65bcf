package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/kwizkit/internal/llm"
	"github.com/pavelanni/kwizkit/internal/model"
)

type createTestRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type generateRequest struct {
	Topic      string           `json:"topic" validate:"required,max=500"`
	Count      int              `json:"count" validate:"gte=1"`
	Difficulty model.Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListTests(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m := model.ManagerFromContext(r.Context())
	t, err := h.store.CreateTest(r.Context(), model.Test{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   m.ID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", h.path("/api/tests/"+t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTest(r.Context(), chi.URLParam(r, "testID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if _, err := h.store.GetTest(r.Context(), testID); err != nil {
		writeError(w, r, err)
		return
	}
	var q model.Question
	if err := parseBody(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.TestID = testID
	id, err := h.store.InsertQuestion(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.ID = id
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("invalid question ID"))
		return
	}
	if err := h.store.DeleteQuestion(r.Context(), chi.URLParam(r, "testID"), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerate drafts questions with the LLM and appends them to the test.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if h.gen == nil {
		writeError(w, r, withCode(errors.New("question generation is not configured"),
			http.StatusServiceUnavailable, "ErrGenerationUnavailable"))
		return
	}
	var req generateRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Count > h.config.MaxGenerate {
		req.Count = h.config.MaxGenerate
	}

	t, err := h.store.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	questions, err := h.gen.GenerateQuestions(r.Context(), llm.GenerateRequest{
		Test:       *t,
		Topic:      req.Topic,
		Count:      req.Count,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeError(w, r, withCode(err, http.StatusBadGateway, "ErrInternal"))
		return
	}

	for i := range questions {
		questions[i].TestID = t.ID
	}
	ids, err := h.store.InsertQuestions(r.Context(), questions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i, id := range ids {
		questions[i].ID = id
	}
	writeJSON(w, http.StatusCreated, questions)
}
