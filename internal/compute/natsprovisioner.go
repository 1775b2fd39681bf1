package compute

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
)

// Request/reply subjects served by the compute provisioner
const (
	SubjectComputeStart   = "compute.ctl.start"
	SubjectComputeStop    = "compute.ctl.stop"
	SubjectComputeResolve = "compute.ctl.resolve"
)

type startRequest struct {
	Token string `json:"token"`
}

type stopRequest struct {
	TaskID string `json:"task_id"`
}

type resolveRequest struct {
	Attachment string `json:"attachment"`
}

type controlReply struct {
	OK      bool   `json:"ok"`
	TaskID  string `json:"task_id,omitempty"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NATSProvisioner talks to the compute provisioner over NATS request/reply.
type NATSProvisioner struct {
	nc *nats.Conn
}

// NewNATSProvisioner creates a provisioner client.
func NewNATSProvisioner(nc *nats.Conn) *NATSProvisioner {
	return &NATSProvisioner{nc: nc}
}

func (p *NATSProvisioner) Start(ctx context.Context, token string) (string, error) {
	reply, err := p.request(ctx, SubjectComputeStart, startRequest{Token: token})
	if err != nil {
		return "", fmt.Errorf("starting task for %s: %w", token, err)
	}
	if reply.TaskID == "" {
		return "", fmt.Errorf("starting task for %s: %w: empty task id", token, domain.ErrProvisionerUnavailable)
	}
	log.Info().Str("token", token).Str("taskId", reply.TaskID).Msg("compute: task started")
	return reply.TaskID, nil
}

func (p *NATSProvisioner) Stop(ctx context.Context, taskID string) error {
	if _, err := p.request(ctx, SubjectComputeStop, stopRequest{TaskID: taskID}); err != nil {
		return fmt.Errorf("stopping task %s: %w", taskID, err)
	}
	log.Info().Str("taskId", taskID).Msg("compute: task stopped")
	return nil
}

func (p *NATSProvisioner) ResolveAddress(ctx context.Context, attachment string) (string, error) {
	reply, err := p.request(ctx, SubjectComputeResolve, resolveRequest{Attachment: attachment})
	if err != nil {
		return "", fmt.Errorf("resolving attachment %s: %w", attachment, err)
	}
	if reply.Address == "" {
		return "", fmt.Errorf("resolving attachment %s: %w: no address", attachment, domain.ErrProvisionerUnavailable)
	}
	return reply.Address, nil
}

func (p *NATSProvisioner) request(ctx context.Context, subject string, body any) (*controlReply, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	msg, err := p.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProvisionerUnavailable, err)
	}
	var reply controlReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("%w: decoding reply: %w", domain.ErrProvisionerUnavailable, err)
	}
	if !reply.OK {
		return nil, fmt.Errorf("%w: %s", domain.ErrProvisionerUnavailable, reply.Error)
	}
	return &reply, nil
}
