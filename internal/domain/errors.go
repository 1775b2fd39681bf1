package domain

import "errors"

// Error taxonomy shared across the service. Callers classify with errors.Is;
// wrapped causes carry the upstream detail.
var (
	// ErrUnauthorized means a bad, missing or expired credential. Surfaced
	// to the caller, never retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEngineUnavailable means a call to the matchmaking engine failed.
	ErrEngineUnavailable = errors.New("matchmaking engine unavailable")

	// ErrProvisionerUnavailable means a call to the compute provisioner
	// failed.
	ErrProvisionerUnavailable = errors.New("compute provisioner unavailable")

	// ErrRecordConflict means a store write lost a race with an earlier
	// write for the same key. Treated as already-handled, not a failure.
	ErrRecordConflict = errors.New("record already exists")

	// ErrDeliveryFailed means a push to a single client connection failed.
	// Per-recipient: logged, never aborts a batch.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrNotFound means a point lookup missed.
	ErrNotFound = errors.New("not found")
)
