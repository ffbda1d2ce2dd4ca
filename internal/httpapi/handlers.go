package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dicearena/client/internal/session"
)

// SessionState renders a consistent copy of the session: connection state,
// reconciled room model, known rooms, chat channel status and timer
// remainders. Strictly read-only.
func SessionState(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
