package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedServer runs an in-process NATS server with JetStream
// enabled, for development and tests. The caller owns shutdown.
func StartEmbeddedServer(storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Port:      -1, // random available port
		JetStream: true,
		StoreDir:  storeDir,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}
	return ns, nil
}
