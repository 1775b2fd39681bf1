package domain

// Ticket represents one player's outstanding matchmaking request.
// TicketID is derived from ConnectionID (see ticketid package), so the row is
// never mutated: it is created on submit and deleted when the request reaches a
// terminal outcome (disconnect, match found, or ticket dropped).
type Ticket struct {
	TicketID     string  `json:"ticket_id"`
	ConnectionID string  `json:"connection_id"`
	PlayerID     string  `json:"player_id"`
	Skill        float64 `json:"skill"`
}
