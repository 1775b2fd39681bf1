// Package compute is the call boundary to the external compute
// provisioner, which starts and stops isolated game server processes and
// later reports their network attachment over the event bus.
package compute

import "context"

// Provisioner starts and stops server tasks.
type Provisioner interface {
	// Start launches exactly one task. Token is an idempotency token:
	// repeated calls with the same token must not launch a second task
	// (the match id is used for this).
	Start(ctx context.Context, token string) (taskID string, err error)
	// Stop terminates a task. May fail transiently right after Start
	// while the task is still materializing; callers retry.
	Stop(ctx context.Context, taskID string) error
	// ResolveAddress dereferences an attachment descriptor from a task
	// running event to an externally reachable address.
	ResolveAddress(ctx context.Context, attachment string) (string, error)
}
