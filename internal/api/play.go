package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/metrics"
)

// handlePlay is the matchmaking entry point: it verifies the bearer token,
// upgrades to a WebSocket, and submits a ticket for the connection. The
// socket stays open so match progress can be pushed; closing it cancels
// the ticket via the hub's disconnect hook.
//
// Browsers cannot set headers on WebSocket upgrades, so the token rides in
// a query parameter.
func (r *Router) handlePlay(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}

	claims, err := r.auth.Verify(token)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The account must exist; a valid token for a deleted player is still
	// unauthorized.
	player, err := r.store.GetPlayer(req.Context(), claims.PlayerID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown player")
		return
	}

	connectionID, err := r.hub.Register(w, req)
	if err != nil {
		// Upgrade failed; the response is already written
		log.Warn().Err(err).Str("playerId", player.PlayerID).Msg("api: websocket upgrade failed")
		return
	}

	ctx := req.Context()
	if _, err := r.gateway.Submit(ctx, connectionID, player.PlayerID, player.Skill()); err != nil {
		metrics.TicketsSubmitted.WithLabelValues("failure").Inc()
		log.Error().Err(err).Str("connectionId", connectionID).Str("playerId", player.PlayerID).Msg("api: ticket submission failed")
		if nerr := r.notifier.NotifyOne(ctx, connectionID, domain.StatusPayload{
			Status: domain.StatusMatchFailed,
			Reason: "could not enter matchmaking",
		}); nerr != nil {
			log.Warn().Err(nerr).Str("connectionId", connectionID).Msg("api: failure notification undelivered")
		}
		r.notifier.CloseOne(ctx, connectionID)
		return
	}
	metrics.TicketsSubmitted.WithLabelValues("success").Inc()

	if err := r.notifier.NotifyOne(ctx, connectionID, domain.StatusPayload{Status: domain.StatusQueued}); err != nil {
		log.Warn().Err(err).Str("connectionId", connectionID).Msg("api: queued notification undelivered")
	}
}
