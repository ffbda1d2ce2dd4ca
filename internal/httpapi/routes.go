package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dicearena/client/internal/session"
)

// SetupRoutes exposes the read-only local diagnostics surface: the rendering
// layer's view of the reconciled room model and connection state.
func SetupRoutes(s *session.Session) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", SessionState(s))
	return r
}
