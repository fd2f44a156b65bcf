package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/kwizkit/internal/model"
)

type createTableRequest struct {
	Name             string         `json:"name" validate:"required"`
	Columns          []model.Column `json:"columns"`
	ManagerAccountID string         `json:"managerAccountId"`
}

type replaceTableRequest struct {
	Name         *string        `json:"name"`
	Columns      []model.Column `json:"columns"`
	StudentsData []model.Row    `json:"studentsData"`
	Version      int64          `json:"version"`
}

type linkTestRequest struct {
	TestID *string `json:"testId"`
}

func (h *Handler) handleListTables(w http.ResponseWriter, r *http.Request) {
	m := model.ManagerFromContext(r.Context())
	if m == nil {
		writeError(w, r, withCode(errMissingAccount, http.StatusUnauthorized, "ErrMissingAccount"))
		return
	}
	tables, err := h.store.ListTablesForManager(r.Context(), m.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (h *Handler) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m := model.ManagerFromContext(r.Context())
	if m == nil {
		if req.ManagerAccountID == "" {
			writeError(w, r, withCode(errMissingAccount, http.StatusUnauthorized, "ErrMissingAccount"))
			return
		}
		var err error
		if m, err = h.resolveManager(r.Context(), req.ManagerAccountID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := validateColumns(req.Columns); err != nil {
		writeError(w, r, err)
		return
	}

	tbl, err := h.store.CreateTable(r.Context(), req.Name, req.Columns, m.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", h.path("/api/tables/"+tbl.ID))
	writeJSON(w, http.StatusCreated, tbl)
}

// validateColumns checks the columns of a new table. Columns without a type
// become text columns.
func validateColumns(cols []model.Column) error {
	var flds []model.FieldError
	seen := make(map[string]bool, len(cols))
	for i := range cols {
		if cols[i].Type == "" {
			cols[i].Type = model.ColumnText
		}
		c := cols[i]
		field := fmt.Sprintf("columns[%d]", i)
		switch {
		case c.ID == "":
			flds = append(flds, model.FieldError{Field: field + ".id", Error: "id is a required field"})
		case model.IsReservedColumnID(c.ID):
			flds = append(flds, model.FieldError{Field: field + ".id", Error: "column id " + c.ID + " is reserved"})
		case seen[c.ID]:
			flds = append(flds, model.FieldError{Field: field + ".id", Error: "duplicate column id " + c.ID})
		}
		seen[c.ID] = true
		if !c.Type.Valid() {
			flds = append(flds, model.FieldError{Field: field + ".type", Error: "unknown column type " + string(c.Type)})
		}
	}
	if len(flds) > 0 {
		return model.NewValidationError(flds...)
	}
	return nil
}

func (h *Handler) handleGetTable(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.store.GetTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}

func (h *Handler) handleReplaceTable(w http.ResponseWriter, r *http.Request) {
	var req replaceTableRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tbl, err := h.engine.Replace(r.Context(), chi.URLParam(r, "tableID"),
		req.Name, req.Columns, req.StudentsData, req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}

func (h *Handler) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	if err := h.store.DeleteTable(r.Context(), tableID); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.CloseTable(tableID)
	slog.Info("table deleted via API", "table_id", tableID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportTable(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ExportTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) handleLinkTest(w http.ResponseWriter, r *http.Request) {
	var req linkTestRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var testID string
	if req.TestID != nil {
		testID = *req.TestID
	}
	tbl, err := h.store.LinkTest(r.Context(), chi.URLParam(r, "tableID"), testID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}
