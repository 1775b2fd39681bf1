package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
)

// Request/reply subjects served by the matchmaking engine
const (
	SubjectEngineStart = "mm.engine.start"
	SubjectEngineStop  = "mm.engine.stop"
)

type startRequest struct {
	TicketID   string  `json:"ticket_id"`
	ConfigName string  `json:"config_name"`
	PlayerID   string  `json:"player_id"`
	Skill      float64 `json:"skill"`
}

type stopRequest struct {
	TicketID string `json:"ticket_id"`
}

type engineReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSEngine talks to the matchmaking engine over NATS request/reply.
type NATSEngine struct {
	nc         *nats.Conn
	configName string
}

// NewNATSEngine creates an engine client bound to a matchmaking
// configuration name.
func NewNATSEngine(nc *nats.Conn, configName string) *NATSEngine {
	return &NATSEngine{nc: nc, configName: configName}
}

func (e *NATSEngine) Start(ctx context.Context, ticketID, playerID string, skill float64) error {
	req := startRequest{
		TicketID:   ticketID,
		ConfigName: e.configName,
		PlayerID:   playerID,
		Skill:      skill,
	}
	if err := e.request(ctx, SubjectEngineStart, req); err != nil {
		return fmt.Errorf("start matchmaking for ticket %s: %w", ticketID, err)
	}
	log.Debug().Str("ticketId", ticketID).Str("playerId", playerID).Msg("engine: matchmaking started")
	return nil
}

func (e *NATSEngine) Stop(ctx context.Context, ticketID string) error {
	if err := e.request(ctx, SubjectEngineStop, stopRequest{TicketID: ticketID}); err != nil {
		return fmt.Errorf("stop matchmaking for ticket %s: %w", ticketID, err)
	}
	log.Debug().Str("ticketId", ticketID).Msg("engine: matchmaking stopped")
	return nil
}

func (e *NATSEngine) request(ctx context.Context, subject string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg, err := e.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, err)
	}
	var reply engineReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("%w: decoding reply: %w", domain.ErrEngineUnavailable, err)
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s", domain.ErrEngineUnavailable, reply.Error)
	}
	return nil
}
