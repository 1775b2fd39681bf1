// Package orchestrator implements the match lifecycle state machine.
//
// Three independent triggers drive it: the engine's match-found and
// ticket-dropped events and the provisioner's task-running event. Delivery
// is at-least-once and unordered across matches, so every handler is
// idempotent and tolerates triggers whose ticket or record is already gone.
// Cross-invocation state lives entirely in the ticket and match stores.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/compute"
	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/metrics"
	"github.com/cubedrop/backend/internal/notify"
	"github.com/cubedrop/backend/internal/storage"
	"github.com/cubedrop/backend/internal/ticketid"
)

// Orchestrator reacts to match lifecycle events.
type Orchestrator struct {
	store          *storage.Store
	provisioner    compute.Provisioner
	notifier       *notify.Notifier
	matchTTL       time.Duration
	stopRetryDelay time.Duration
}

// New creates an orchestrator. matchTTL bounds how long a match record
// stays visible; stopRetryDelay is the pause before the single stop retry
// on the compensation path.
func New(store *storage.Store, provisioner compute.Provisioner, notifier *notify.Notifier, matchTTL, stopRetryDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		store:          store,
		provisioner:    provisioner,
		notifier:       notifier,
		matchTTL:       matchTTL,
		stopRetryDelay: stopRetryDelay,
	}
}

// HandleMatchFound provisions a server task for a found match, persists the
// match record, and tells every participant. The match id doubles as the
// provisioning idempotency token, so duplicate delivery of the same event
// cannot launch a second task.
//
// Persistence is strictly after provisioning: a task with no reachable
// record is a leak, so a failed record write compensates by stopping the
// just-started task.
func (o *Orchestrator) HandleMatchFound(ctx context.Context, ev *domain.MatchFoundEvent) error {
	start := time.Now()
	defer func() { metrics.EventDuration.WithLabelValues("found").Observe(time.Since(start).Seconds()) }()

	players := o.resolvePlayers(ctx, ev.Tickets)
	if len(players) == 0 {
		log.Warn().Str("matchId", ev.MatchID).Msg("orchestrator: match found with no resolvable tickets, dropping")
		metrics.MatchEvents.WithLabelValues("found", "dropped").Inc()
		return nil
	}

	taskID, err := o.provisioner.Start(ctx, ev.MatchID)
	if err != nil {
		log.Error().Err(err).Str("matchId", ev.MatchID).Msg("orchestrator: provisioning failed")
		metrics.MatchesProvisioned.WithLabelValues("failure").Inc()
		o.failPlayers(ctx, players, "could not start a server for the match")
		metrics.MatchEvents.WithLabelValues("found", "failed").Inc()
		return nil
	}

	record := &domain.MatchRecord{
		TaskID:    taskID,
		MatchID:   ev.MatchID,
		Status:    domain.MatchStatusProvisioning,
		Players:   players,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(o.matchTTL),
	}
	if err := o.store.CreateMatch(ctx, record); err != nil {
		if errors.Is(err, domain.ErrRecordConflict) {
			// Duplicate delivery: the record is already there and the
			// idempotency token kept the task singular.
			log.Info().Str("matchId", ev.MatchID).Str("taskId", taskID).Msg("orchestrator: match already recorded, ignoring duplicate")
			metrics.MatchEvents.WithLabelValues("found", "dropped").Inc()
			return nil
		}

		log.Error().Err(err).Str("matchId", ev.MatchID).Str("taskId", taskID).Msg("orchestrator: persisting match failed, compensating")
		o.compensate(ctx, taskID)
		metrics.MatchesProvisioned.WithLabelValues("compensated").Inc()
		o.failPlayers(ctx, players, "the match could not be recorded")
		metrics.MatchEvents.WithLabelValues("found", "failed").Inc()
		return nil
	}
	metrics.MatchesProvisioned.WithLabelValues("success").Inc()

	// Tickets are consumed once their match is launched
	for _, p := range players {
		if _, err := o.store.DeleteTicket(ctx, p.ConnectionID); err != nil {
			log.Warn().Err(err).Str("connectionId", p.ConnectionID).Msg("orchestrator: deleting consumed ticket failed")
		}
	}

	// Informational; the connection stays open for the server address
	o.notifier.NotifyMany(ctx, connectionIDs(players), domain.StatusPayload{Status: domain.StatusMatchFound})

	log.Info().Str("matchId", ev.MatchID).Str("taskId", taskID).Int("players", len(players)).Msg("orchestrator: match provisioned")
	metrics.MatchEvents.WithLabelValues("found", "handled").Inc()
	return nil
}

// HandleComputeRunning resolves the task's public address and pushes it to
// every participant of the recorded match.
//
// A missing record is reported as an error so the event bus redelivers: the
// provisioner's running event can race ahead of our own persistence. A
// record that never appears means the match is stale and the event ages out
// with the redelivery policy. An unresolvable attachment is dropped outright
// since the provisioner also emits duplicate and stale events.
func (o *Orchestrator) HandleComputeRunning(ctx context.Context, ev *domain.ComputeRunningEvent) error {
	start := time.Now()
	defer func() { metrics.EventDuration.WithLabelValues("running").Observe(time.Since(start).Seconds()) }()

	addr, err := o.provisioner.ResolveAddress(ctx, ev.Attachment)
	if err != nil {
		log.Warn().Err(err).Str("taskId", ev.TaskID).Str("attachment", ev.Attachment).Msg("orchestrator: cannot resolve attachment, dropping event")
		metrics.MatchEvents.WithLabelValues("running", "dropped").Inc()
		return nil
	}

	record, err := o.store.GetMatch(ctx, ev.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info().Str("taskId", ev.TaskID).Msg("orchestrator: no match record yet for running task, leaving for redelivery")
			metrics.MatchEvents.WithLabelValues("running", "dropped").Inc()
			return fmt.Errorf("match record for task %s: %w", ev.TaskID, domain.ErrNotFound)
		}
		return fmt.Errorf("loading match record: %w", err)
	}

	if err := o.store.UpdateMatchStatus(ctx, ev.TaskID, domain.MatchStatusRunning); err != nil {
		log.Warn().Err(err).Str("taskId", ev.TaskID).Msg("orchestrator: updating match status failed")
	}

	failed := o.notifier.NotifyMany(ctx, connectionIDs(record.Players), domain.StatusPayload{
		Status: domain.StatusServerStarted,
		IP:     addr,
	})

	log.Info().Str("taskId", ev.TaskID).Str("matchId", record.MatchID).Str("address", addr).Int("players", len(record.Players)).Int("failed", failed).Msg("orchestrator: server address delivered")
	metrics.MatchEvents.WithLabelValues("running", "handled").Inc()
	return nil
}

// HandleTicketDropped notifies and closes every connection whose ticket the
// engine gave up on. Dropped tickets precede match-found by construction,
// so there is no record and no task to compensate.
func (o *Orchestrator) HandleTicketDropped(ctx context.Context, ev *domain.TicketDroppedEvent) error {
	start := time.Now()
	defer func() { metrics.EventDuration.WithLabelValues("dropped").Observe(time.Since(start).Seconds()) }()

	reason := "matchmaking failed"
	if ev.Kind == domain.DropTimedOut {
		reason = "matchmaking timed out"
	}

	for _, ref := range ev.Tickets {
		connectionID, err := ticketid.Decode(ref.TicketID)
		if err != nil {
			log.Warn().Err(err).Str("ticketId", ref.TicketID).Msg("orchestrator: undecodable ticket in dropped event")
			continue
		}

		if _, err := o.store.DeleteTicket(ctx, connectionID); err != nil {
			log.Warn().Err(err).Str("connectionId", connectionID).Msg("orchestrator: deleting dropped ticket failed")
		}

		if err := o.notifier.NotifyOne(ctx, connectionID, domain.StatusPayload{
			Status: domain.StatusMatchFailed,
			Reason: reason,
		}); err != nil {
			log.Warn().Err(err).Str("connectionId", connectionID).Msg("orchestrator: dropped notification failed")
		}
		o.notifier.CloseOne(ctx, connectionID)
	}

	log.Info().Str("kind", ev.Kind).Int("tickets", len(ev.Tickets)).Msg("orchestrator: dropped tickets handled")
	metrics.MatchEvents.WithLabelValues("dropped", "handled").Inc()
	return nil
}

// resolvePlayers recovers the connection id for each ticket and joins in
// the ticket row when it still exists. A missing row is not fatal: the
// connection may still be live even if the ticket was already cleaned up.
func (o *Orchestrator) resolvePlayers(ctx context.Context, refs []domain.TicketRef) []domain.MatchPlayer {
	players := make([]domain.MatchPlayer, 0, len(refs))
	for _, ref := range refs {
		connectionID, err := ticketid.Decode(ref.TicketID)
		if err != nil {
			log.Warn().Err(err).Str("ticketId", ref.TicketID).Msg("orchestrator: undecodable ticket in found event")
			continue
		}

		player := domain.MatchPlayer{ConnectionID: connectionID, TicketID: ref.TicketID}
		if ticket, err := o.store.GetTicket(ctx, connectionID); err == nil {
			player.PlayerID = ticket.PlayerID
		} else {
			log.Warn().Str("connectionId", connectionID).Str("ticketId", ref.TicketID).Msg("orchestrator: found ticket has no store row")
		}
		players = append(players, player)
	}
	return players
}

// failPlayers tells every listed connection the match fell through, closes
// it, and consumes its ticket.
func (o *Orchestrator) failPlayers(ctx context.Context, players []domain.MatchPlayer, reason string) {
	o.notifier.NotifyMany(ctx, connectionIDs(players), domain.StatusPayload{
		Status: domain.StatusMatchFailed,
		Reason: reason,
	})
	for _, p := range players {
		o.notifier.CloseOne(ctx, p.ConnectionID)
		if _, err := o.store.DeleteTicket(ctx, p.ConnectionID); err != nil {
			log.Warn().Err(err).Str("connectionId", p.ConnectionID).Msg("orchestrator: deleting ticket after failure failed")
		}
	}
}

// compensate stops a task whose match record could not be written. The
// task may not be stoppable immediately after creation, so the stop gets a
// single retry after a fixed delay. A task that survives both attempts is
// loudly logged; it carries no record and will not receive traffic.
func (o *Orchestrator) compensate(ctx context.Context, taskID string) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, o.provisioner.Stop(ctx, taskID)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(o.stopRetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		log.Error().Err(err).Str("taskId", taskID).Msg("orchestrator: COMPENSATION FAILED, task may still be running")
		return
	}
	log.Info().Str("taskId", taskID).Msg("orchestrator: task stopped after failed persistence")
}

func connectionIDs(players []domain.MatchPlayer) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ConnectionID
	}
	return ids
}
