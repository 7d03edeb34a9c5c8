package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Daily records.
	r.Get("/daily/summaries", h.ListSummaries)
	r.Get("/daily/{date}", h.GetDay)
	r.Put("/daily/{date}", h.UpdateDiary)

	// Push subscriptions.
	r.Post("/subscriptions", h.CreateSubscription)
	r.Put("/subscriptions/{id}", h.UpdateSubscription)
	r.Get("/subscriptions/{caregiverID}", h.ListSubscriptions)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
