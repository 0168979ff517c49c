package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/workout"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    storage.Backend
	sessions *workout.Manager
	alpha    *alpha.Provider
	log      *slog.Logger
	apiKey   string
	whois    WhoIser
	mcp      http.Handler
	router   chi.Router
}

// New creates a Server with all routes configured. SetTailscale and
// MountMCP rebuild the routes and must be called before serving.
func New(store storage.Backend, sessions *workout.Manager, alphaProvider *alpha.Provider, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: sessions,
		alpha:    alphaProvider,
		log:      log,
		apiKey:   apiKey,
	}
	s.routes()
	return s
}

// SetTailscale switches identity from the dev user to tailnet WhoIs.
func (s *Server) SetTailscale(whois WhoIser) {
	s.whois = whois
	s.routes()
}

// MountMCP serves h under /mcp with the same identity as the REST API.
func (s *Server) MountMCP(h http.Handler) {
	s.mcp = h
	s.routes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) identity() func(http.Handler) http.Handler {
	if s.whois != nil {
		return TailscaleIdentity(s.whois, s.store)
	}
	return DevIdentity
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(RequestLogging(s.log))
	r.Use(CORS)

	// Import endpoints (API key required, attributed to the key owner)
	r.Route("/api/v1/import", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(DevIdentity)
		r.Post("/alpha", s.handleAlphaImport)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.identity())

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/me", s.handleMe)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/", s.handleStartSession)
				r.Delete("/", s.handleCancelSession)
				r.Post("/finish", s.handleFinishSession)
				r.Post("/pause", s.handlePauseSession)
				r.Post("/resume", s.handleResumeSession)
				r.Get("/events", s.handleSessionEvents)

				r.Post("/exercises", s.handleAddExercise)
				r.Route("/exercises/{id}", func(r chi.Router) {
					r.Delete("/", s.handleRemoveExercise)
					r.Put("/sets", s.handleUpdateSets)
					r.Put("/position", s.handleUpdatePosition)
					r.Put("/notes", s.handleUpdateNotes)
					r.Put("/rest", s.handleUpdateRest)
				})

				r.Post("/rest", s.handleStartRest)
				r.Delete("/rest", s.handleSkipRest)
				r.Post("/rest/pause", s.handlePauseRest)
				r.Post("/rest/resume", s.handleResumeRest)
				r.Post("/rest/extend", s.handleExtendRest)
			})

			r.Get("/history", s.handleHistory)
			r.Get("/records", s.handleRecords)
			r.Get("/records/snapshot", s.handleGetSnapshot)
			r.Delete("/records/snapshot", s.handleResetSnapshot)
			r.Get("/stats", s.handleStats)
			r.Get("/stats/muscles", s.handleMuscleStats)

			r.Get("/catalog", s.handleListCatalog)
			r.Post("/catalog", s.handleCreateCatalogItem)
			r.Put("/catalog/{id}", s.handleUpdateCatalogItem)

			r.Get("/routines", s.handleListRoutines)
			r.Post("/routines", s.handleCreateRoutine)

			r.Get("/settings/bodyweight", s.handleGetBodyweight)
			r.Put("/settings/bodyweight", s.handleSetBodyweight)
			r.Get("/import-logs", s.handleImportLogs)
		})

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
			r.Handle("/mcp/*", s.mcp)
		}
	})

	s.router = r
}
