package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/auth"
	"github.com/cubedrop/backend/internal/domain"
)

// apiError is the structured error object returned by every endpoint
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]apiError{"error": {Kind: kind, Message: message}})
}

// writeDomainError maps the shared error taxonomy onto status codes
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credential")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such resource")
	case errors.Is(err, domain.ErrRecordConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, domain.ErrEngineUnavailable):
		writeError(w, http.StatusBadGateway, "engine_unavailable", "matchmaking is currently unavailable")
	case errors.Is(err, domain.ErrProvisionerUnavailable):
		writeError(w, http.StatusBadGateway, "provisioner_unavailable", "game servers are currently unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// usernameRegex mirrors the sign-up validation: letters, digits, and a few
// separators only.
var usernameRegex = regexp.MustCompile(`^[A-Za-z_\-0-9.]+$`)

// RegisterRequest is the request body for register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for successful login
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// handleRegister creates a player account with zeroed totals
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid username")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := r.store.CreatePlayer(req.Context(), &domain.Player{
		PlayerID:     body.Username,
		PasswordHash: hash,
		Achievements: []int64{},
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	log.Info().Str("playerId", body.Username).Msg("api: player registered")
	writeJSON(w, http.StatusCreated, map[string]string{"username": body.Username})
}

// handleLogin authenticates a player and returns a JWT token
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var login LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&login); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if login.Username == "" || login.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	player, err := r.store.GetPlayer(req.Context(), login.Username)
	if err != nil || !auth.CheckPassword(login.Password, player.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := r.auth.GenerateToken(player.PlayerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Username: player.PlayerID})
}

// handleGetProfile returns the caller's cumulative stats and achievements
func (r *Router) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	player, err := r.store.GetPlayer(req.Context(), claims.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.PlayerProfile{
		PlayerID:     player.PlayerID,
		TotalScore:   player.TotalScore,
		MatchCount:   player.MatchCount,
		Achievements: player.Achievements,
	})
}

// handlePostMatchResult records a match outcome, idempotently
func (r *Router) handlePostMatchResult(w http.ResponseWriter, req *http.Request) {
	taskID := req.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing match id")
		return
	}

	var result domain.MatchResult
	if err := json.NewDecoder(req.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	applied, err := r.recorder.Apply(req.Context(), taskID, &result)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

// requireAuth is middleware that validates the bearer token before calling
// the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.getAuthClaims(req) == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next(w, req)
	}
}

// getAuthClaims extracts and validates the JWT from the Authorization header
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	token := strings.TrimPrefix(header, "Bearer ")

	claims, err := r.auth.Verify(token)
	if err != nil {
		return nil
	}
	return claims
}
