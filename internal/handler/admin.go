package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/kwizkit/internal/i18n"
	"github.com/pavelanni/kwizkit/internal/model"
)

type createManagerRequest struct {
	AccountID   string `json:"accountId" validate:"required"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type importResult struct {
	Imported  int    `json:"imported"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message"`
}

func (h *Handler) handleListManagers(w http.ResponseWriter, r *http.Request) {
	managers, err := h.store.ListManagers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]model.PublicManager, 0, len(managers))
	for _, m := range managers {
		out = append(out, model.PublicManager{ID: m.ID, DisplayName: m.DisplayName, Email: m.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateManager(w http.ResponseWriter, r *http.Request) {
	var req createManagerRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.AccountID
	}
	m, err := h.store.CreateManager(r.Context(), model.Manager{
		AccountID:   req.AccountID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleImportQuestions loads a JSON question bank uploaded as
// questions_file. A file whose content was already imported into the same
// test is skipped.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if _, err := h.store.GetTest(r.Context(), testID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, r, badRequest("file too large"))
		return
	}
	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, r, badRequest("no file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])
	key := testID + "/" + header.Filename

	storedHash, err := h.store.GetImportedFileHash(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, importResult{Duplicate: true, Message: appI18n.T(r.Context(), "ImportDuplicate")})
		return
	}

	var bank []model.QuestionImport
	if err := json.Unmarshal(data, &bank); err != nil {
		writeError(w, r, badRequest("invalid JSON: %v", err))
		return
	}

	questions := make([]model.Question, 0, len(bank))
	for _, qi := range bank {
		q := qi.ToQuestion()
		q.TestID = testID
		if err := model.ValidateStruct(q); err != nil {
			writeError(w, r, err)
			return
		}
		questions = append(questions, q)
	}
	if _, err := h.store.ImportQuestionBank(r.Context(), key, hash, questions); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("uploaded questions via API", "test_id", testID, "filename", header.Filename, "count", len(questions))

	writeJSON(w, http.StatusCreated, importResult{
		Imported: len(questions),
		Message:  appI18n.Tp(r.Context(), "ImportedQuestions", len(questions)),
	})
}
