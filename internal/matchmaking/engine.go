package matchmaking

import "context"

// Engine is the external matchmaking engine, specified at its call boundary.
// Its asynchronous side (match found, ticket dropped) arrives over the event
// bus, not through this interface.
type Engine interface {
	// Start submits a ticket with one player entry carrying the skill
	// attribute.
	Start(ctx context.Context, ticketID, playerID string, skill float64) error
	// Stop cancels matchmaking for a ticket. Absence of the ticket on the
	// engine side is not an error.
	Stop(ctx context.Context, ticketID string) error
}
