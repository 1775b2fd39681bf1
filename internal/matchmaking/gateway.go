// Package matchmaking wraps the external matchmaking engine behind the
// ticket gateway: submit creates the engine ticket and the local ticket row
// together, cancel tears both down.
package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/storage"
	"github.com/cubedrop/backend/internal/ticketid"
)

// Gateway submits and cancels matchmaking tickets.
type Gateway struct {
	engine Engine
	store  *storage.Store
}

// NewGateway creates a gateway over the given engine and ticket store.
func NewGateway(engine Engine, store *storage.Store) *Gateway {
	return &Gateway{engine: engine, store: store}
}

// Submit starts matchmaking for a connection and persists the ticket.
// The ticket id is derived from the connection id, so a resubmit for the
// same connection supersedes the previous request: the old engine ticket is
// stopped best-effort before the new one is started, and the ticket row is
// replaced. Nothing is persisted if the engine call fails.
func (g *Gateway) Submit(ctx context.Context, connectionID, playerID string, skill float64) (string, error) {
	tid := ticketid.Encode(connectionID)

	if prev, err := g.store.GetTicket(ctx, connectionID); err == nil {
		log.Info().Str("connectionId", connectionID).Str("ticketId", prev.TicketID).Msg("gateway: superseding outstanding ticket")
		if err := g.engine.Stop(ctx, prev.TicketID); err != nil {
			log.Warn().Err(err).Str("ticketId", prev.TicketID).Msg("gateway: stopping superseded ticket failed")
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("looking up outstanding ticket: %w", err)
	}

	if err := g.engine.Start(ctx, tid, playerID, skill); err != nil {
		return "", err
	}

	if err := g.store.PutTicket(ctx, &domain.Ticket{
		TicketID:     tid,
		ConnectionID: connectionID,
		PlayerID:     playerID,
		Skill:        skill,
	}); err != nil {
		// Keep the engine side consistent with the store
		if stopErr := g.engine.Stop(ctx, tid); stopErr != nil {
			log.Error().Err(stopErr).Str("ticketId", tid).Msg("gateway: stopping ticket after store failure failed")
		}
		return "", fmt.Errorf("persisting ticket: %w", err)
	}

	log.Info().Str("connectionId", connectionID).Str("ticketId", tid).Str("playerId", playerID).Float64("skill", skill).Msg("gateway: ticket submitted")
	return tid, nil
}

// Cancel stops matchmaking for a connection and deletes its ticket.
// Safe to call with no outstanding ticket: disconnect can race with
// match-found, so both the engine stop and the row delete are idempotent.
func (g *Gateway) Cancel(ctx context.Context, connectionID string) error {
	tid := ticketid.Encode(connectionID)

	if err := g.engine.Stop(ctx, tid); err != nil {
		log.Warn().Err(err).Str("connectionId", connectionID).Str("ticketId", tid).Msg("gateway: engine stop failed, deleting ticket anyway")
	}

	removed, err := g.store.DeleteTicket(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}
	if removed {
		log.Info().Str("connectionId", connectionID).Str("ticketId", tid).Msg("gateway: ticket cancelled")
	}
	return nil
}
