package domain

// Ticket drop kinds reported by the matchmaking engine
const (
	DropTimedOut = "timed_out"
	DropFailed   = "failed"
)

// TicketRef identifies one ticket inside an engine event.
type TicketRef struct {
	TicketID string `json:"ticket_id"`
}

// MatchFoundEvent is emitted by the matchmaking engine when a group of
// tickets has been matched. Delivery is at-least-once and unordered
// relative to other matches.
type MatchFoundEvent struct {
	MatchID string      `json:"match_id"`
	Tickets []TicketRef `json:"tickets"`
}

// TicketDroppedEvent is emitted when matchmaking gives up on a set of
// tickets, either by timeout or by failure.
type TicketDroppedEvent struct {
	Kind    string      `json:"kind"`
	Tickets []TicketRef `json:"tickets"`
}

// ComputeRunningEvent is emitted by the compute provisioner once a task has
// started. Attachment is an opaque network-interface descriptor that must be
// resolved to a reachable address before it is useful.
type ComputeRunningEvent struct {
	TaskID     string `json:"task_id"`
	Attachment string `json:"attachment"`
}
