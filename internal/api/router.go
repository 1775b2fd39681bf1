package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/cubedrop/backend/internal/auth"
	"github.com/cubedrop/backend/internal/matchmaking"
	"github.com/cubedrop/backend/internal/metrics"
	"github.com/cubedrop/backend/internal/notify"
	"github.com/cubedrop/backend/internal/results"
	"github.com/cubedrop/backend/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux      *http.ServeMux
	store    *storage.Store
	auth     *auth.Service
	gateway  *matchmaking.Gateway
	recorder *results.Recorder
	hub      *Hub
	notifier *notify.Notifier
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, authService *auth.Service, gateway *matchmaking.Gateway, recorder *results.Recorder, hub *Hub) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		store:    store,
		auth:     authService,
		gateway:  gateway,
		recorder: recorder,
		hub:      hub,
		notifier: notify.New(hub),
	}

	// Matchmaking entry point
	r.mux.HandleFunc("GET /ws/play", r.handlePlay)

	// Account routes
	r.mux.HandleFunc("POST /api/auth/register", r.handleRegister)
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/profile", r.requireAuth(r.handleGetProfile))

	// Game server callback
	r.mux.HandleFunc("POST /api/matches/{id}/result", r.handlePostMatchResult)

	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	metrics.Register(r.mux)

	return r
}

// Handler returns the root handler with response compression
func (r *Router) Handler() http.Handler {
	return gzhttp.GzipHandler(r.mux)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
