// Package notify delivers match status payloads to connected clients over
// an opaque push channel, tolerating per-recipient failure independently.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/metrics"
)

// PushChannel is the duplex client channel, addressed by connection id.
// The websocket hub implements it in-process; the interface keeps the
// orchestrator independent of the transport.
type PushChannel interface {
	Send(ctx context.Context, connectionID string, data []byte) error
	Close(ctx context.Context, connectionID string) error
}

// Notifier wraps a PushChannel with payload encoding and batch delivery.
type Notifier struct {
	channel PushChannel
}

// New creates a Notifier over the given channel.
func New(channel PushChannel) *Notifier {
	return &Notifier{channel: channel}
}

// NotifyOne delivers a payload to a single connection. A failure is soft:
// the caller decides whether to ignore or escalate.
func (n *Notifier) NotifyOne(ctx context.Context, connectionID string, payload domain.StatusPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := n.channel.Send(ctx, connectionID, data); err != nil {
		metrics.NotifyFailures.Inc()
		return fmt.Errorf("sending to %s: %w: %w", connectionID, domain.ErrDeliveryFailed, err)
	}
	return nil
}

// NotifyMany delivers a payload to every connection independently. Failures
// are logged and counted but never abort the batch; the number of failed
// recipients is returned.
func (n *Notifier) NotifyMany(ctx context.Context, connectionIDs []string, payload domain.StatusPayload) int {
	failed := 0
	for _, id := range connectionIDs {
		if err := n.NotifyOne(ctx, id, payload); err != nil {
			log.Warn().Err(err).Str("connectionId", id).Str("status", payload.Status).Msg("notify: delivery failed")
			failed++
		}
	}
	return failed
}

// CloseOne half-closes a client channel, used when a match failed to form.
// Already-closed connections are tolerated.
func (n *Notifier) CloseOne(ctx context.Context, connectionID string) {
	if err := n.channel.Close(ctx, connectionID); err != nil {
		log.Debug().Err(err).Str("connectionId", connectionID).Msg("notify: close failed, connection likely gone")
	}
}
