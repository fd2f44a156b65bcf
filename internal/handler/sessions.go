package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/kwizkit/internal/i18n"
	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/tablesession"
)

// sessionView is the JSON shape of a table session.
type sessionView struct {
	ID             string                `json:"id"`
	TableID        string                `json:"tableId"`
	Dirty          bool                  `json:"dirty"`
	Editing        bool                  `json:"editing"`
	PendingChanges string                `json:"pendingChanges"`
	Changes        []tablesession.Change `json:"changes"`
	Draft          *model.Table          `json:"draft"`
	RowID          string                `json:"rowId,omitempty"`
	ColumnID       string                `json:"columnId,omitempty"`
}

type addRowRequest struct {
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Password  string        `json:"password"`
	Cells     model.RowData `json:"cells"`
}

type updateRowRequest struct {
	FirstName *string       `json:"firstName"`
	LastName  *string       `json:"lastName"`
	Email     *string       `json:"email"`
	Cells     model.RowData `json:"cells"`
}

type addColumnRequest struct {
	Name string           `json:"name" validate:"required"`
	Type model.ColumnType `json:"type" validate:"omitempty,oneof=text number boolean email date"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

type editingRequest struct {
	Editing bool `json:"editing"`
}

func (h *Handler) view(r *http.Request, s *tablesession.Session) sessionView {
	changes := s.Changes()
	return sessionView{
		ID:             s.ID(),
		TableID:        s.TableID(),
		Dirty:          s.IsDirty(),
		Editing:        s.Editing(),
		PendingChanges: appI18n.Tp(r.Context(), "PendingChanges", len(changes)),
		Changes:        changes,
		Draft:          s.Draft(),
	}
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.store.GetTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := h.sessions.Open(tbl)
	w.Header().Set("Location", h.path("/api/sessions/"+s.ID()))
	writeJSON(w, http.StatusCreated, h.view(r, s))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(r, sessionFromContext(r.Context())))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.sessions.Close(chi.URLParam(r, "sessionID"), confirmed); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddRow(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	var req addRowRequest
	if r.ContentLength != 0 {
		if err := parseBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	id := s.AddRow()
	if req.FirstName != "" || req.LastName != "" || req.Email != "" {
		s.UpdateStudent(id, req.FirstName, req.LastName, req.Email)
	}
	if req.Password != "" {
		s.SetPassword(id, req.Password)
	}
	for col, v := range req.Cells {
		s.UpdateCell(id, col, v)
	}

	v := h.view(r, s)
	v.RowID = id
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	rowID := chi.URLParam(r, "rowID")
	var req updateRowRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var row *model.Row
	for _, candidate := range s.Draft().Rows {
		if candidate.ID == rowID {
			row = &candidate
			break
		}
	}
	if row == nil {
		writeError(w, r, model.NotFoundf("row %s", rowID))
		return
	}

	if req.FirstName != nil || req.LastName != nil || req.Email != nil {
		first, last, email := row.FirstName, row.LastName, row.Email
		if req.FirstName != nil {
			first = *req.FirstName
		}
		if req.LastName != nil {
			last = *req.LastName
		}
		if req.Email != nil {
			email = *req.Email
		}
		s.UpdateStudent(rowID, first, last, email)
	}
	for col, v := range req.Cells {
		s.UpdateCell(rowID, col, v)
	}
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.DeleteRow(chi.URLParam(r, "rowID"))
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	var req addColumnRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := s.AddColumn(req.Name, req.Type)
	v := h.view(r, s)
	v.ColumnID = id
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleRenameColumn(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	var req nameRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.RenameColumn(chi.URLParam(r, "columnID"), req.Name)
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleRenameTable(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	var req nameRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.RenameTable(req.Name)
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleSetEditing(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	var req editingRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.SetEditing(req.Editing)
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if _, err := s.Commit(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, s))
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.Discard()
	writeJSON(w, http.StatusOK, h.view(r, s))
}
