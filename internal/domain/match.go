package domain

import "time"

// Match lifecycle status values
const (
	MatchStatusProvisioning = "provisioning"
	MatchStatusRunning      = "running"
	MatchStatusFailed       = "failed"
)

// MatchPlayer is one participant of a provisioned match.
type MatchPlayer struct {
	ConnectionID string `json:"connection_id"`
	TicketID     string `json:"ticket_id"`
	PlayerID     string `json:"player_id"`
}

// MatchRecord is the durable record of a match that has been handed to the
// compute provisioner. It is keyed by the provisioner's task id and is only
// persisted after provisioning succeeded; a record that cannot be persisted
// triggers compensation (the task is stopped) instead.
type MatchRecord struct {
	TaskID    string        `json:"task_id"`
	MatchID   string        `json:"match_id"`
	Status    string        `json:"status"`
	Players   []MatchPlayer `json:"players"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Participant reports whether the given player took part in this match.
func (m *MatchRecord) Participant(playerID string) bool {
	for _, p := range m.Players {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}
