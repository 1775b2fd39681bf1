// Package ticketid derives matchmaking ticket ids from client connection ids.
//
// The mapping is a bijection, not a hash: the engine only ever sees ticket
// ids, and every consumer of an engine event must be able to recover the
// connection id without a lookup table. Uppercase base16 keeps the result
// safe for the engine's id character set.
package ticketid

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode returns the ticket id for a connection id.
func Encode(connectionID string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(connectionID)))
}

// Decode recovers the connection id from a ticket id. Fails on input that
// is not the output of Encode for some connection id.
func Decode(ticketID string) (string, error) {
	raw, err := hex.DecodeString(ticketID)
	if err != nil {
		return "", fmt.Errorf("decoding ticket id %q: %w", ticketID, err)
	}
	return string(raw), nil
}
