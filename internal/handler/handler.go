package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/kwizkit/internal/i18n"
	"github.com/pavelanni/kwizkit/internal/llm"
	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/reconcile"
	"github.com/pavelanni/kwizkit/internal/store"
	"github.com/pavelanni/kwizkit/internal/tablesession"
)

// Generator drafts questions for a test. It is nil when no LLM is configured.
type Generator interface {
	GenerateQuestions(ctx context.Context, req llm.GenerateRequest) ([]model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	engine   *reconcile.Engine
	sessions *tablesession.Registry
	gen      Generator
	config   model.Config
}

// New creates a new Handler.
func New(s *store.Store, e *reconcile.Engine, sessions *tablesession.Registry, gen Generator, cfg model.Config) (*Handler, error) {
	if cfg.MaxGenerate <= 0 {
		cfg.MaxGenerate = 20
	}
	return &Handler{store: s, engine: e, sessions: sessions, gen: gen, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.NotFound(h.handleNotFound)
	r.Route("/api", func(r chi.Router) {
		r.Use(appI18n.Middleware)
		r.Use(h.identify)

		r.Get("/managers", h.handleListManagers)
		r.Post("/managers", h.handleCreateManager)

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", h.handleListTables)
			r.Post("/", h.handleCreateTable)
			r.Route("/{tableID}", func(r chi.Router) {
				r.Use(h.authorizeTable)
				r.Get("/", h.handleGetTable)
				r.Put("/", h.handleReplaceTable)
				r.Delete("/", h.handleDeleteTable)
				r.Get("/export", h.handleExportTable)
				r.Put("/test", h.handleLinkTest)
				r.Post("/sessions", h.handleOpenSession)
			})
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(h.authorizeSession)
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleCloseSession)
			r.Post("/rows", h.handleAddRow)
			r.Patch("/rows/{rowID}", h.handleUpdateRow)
			r.Delete("/rows/{rowID}", h.handleDeleteRow)
			r.Post("/columns", h.handleAddColumn)
			r.Patch("/columns/{columnID}", h.handleRenameColumn)
			r.Patch("/name", h.handleRenameTable)
			r.Put("/editing", h.handleSetEditing)
			r.Post("/commit", h.handleCommit)
			r.Post("/discard", h.handleDiscard)
		})

		r.Route("/tests", func(r chi.Router) {
			r.Use(h.requireManager)
			r.Get("/", h.handleListTests)
			r.Post("/", h.handleCreateTest)
			r.Route("/{testID}", func(r chi.Router) {
				r.Get("/", h.handleGetTest)
				r.Group(func(r chi.Router) {
					r.Use(h.authorizeTestChange)
					r.Delete("/", h.handleDeleteTest)
					r.Post("/questions", h.handleAddQuestion)
					r.Post("/questions/import", h.handleImportQuestions)
					r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
					r.Post("/generate", h.handleGenerate)
				})
			})
		})
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, model.NotFoundf("route %s", r.URL.Path))
}
