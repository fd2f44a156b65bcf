package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/tablesession"
)

const (
	accountHeader = "X-Account-ID"
	accountQuery  = "managerAccountId"
)

type sessionCtxKey struct{}

var errMissingAccount = errors.New("missing manager account id")

func accountID(r *http.Request) string {
	if id := r.URL.Query().Get(accountQuery); id != "" {
		return id
	}
	return r.Header.Get(accountHeader)
}

func (h *Handler) resolveManager(ctx context.Context, account string) (*model.Manager, error) {
	m, err := h.store.GetManagerByAccountID(ctx, account)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, withCode(model.NotFoundf("manager account %s", account), http.StatusUnauthorized, "ErrMissingAccount")
	}
	return m, nil
}

// identify resolves the caller's account id, when one is supplied, to a
// manager stored in the request context.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountID(r)
		if account == "" {
			next.ServeHTTP(w, r)
			return
		}
		m, err := h.resolveManager(r.Context(), account)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithManager(r.Context(), m)))
	})
}

// requireManager rejects requests without a resolved manager.
func (h *Handler) requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.ManagerFromContext(r.Context()) == nil {
			writeError(w, r, withCode(errMissingAccount, http.StatusUnauthorized, "ErrMissingAccount"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) checkTableAccess(r *http.Request, tableID string) error {
	m := model.ManagerFromContext(r.Context())
	if m == nil {
		return withCode(errMissingAccount, http.StatusUnauthorized, "ErrMissingAccount")
	}
	ok, err := h.store.IsManager(r.Context(), m.ID, tableID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("table access denied", "manager_id", m.ID, "table_id", tableID)
		return model.ErrForbidden
	}
	return nil
}

// authorizeTable checks that the caller manages the table in the URL.
func (h *Handler) authorizeTable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.checkTableAccess(r, chi.URLParam(r, "tableID")); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorizeTestChange lets only the author of a test change it. Tests
// created without an author, such as command line imports, stay shared.
func (h *Handler) authorizeTestChange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		owner, err := h.store.TestOwner(r.Context(), testID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		m := model.ManagerFromContext(r.Context())
		if owner != "" && owner != m.ID {
			slog.Warn("test change denied", "manager_id", m.ID, "test_id", testID)
			writeError(w, r, withCode(model.ErrForbidden, http.StatusForbidden, "ErrTestForbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorizeSession loads the session in the URL and checks that the caller
// manages its table.
func (h *Handler) authorizeSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.checkTableAccess(r, sess.TableID()); err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *tablesession.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*tablesession.Session)
	return s
}
