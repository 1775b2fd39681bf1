package domain

// Client status payloads delivered over the push channel
const (
	StatusQueued        = "queued"
	StatusMatchFound    = "found"
	StatusServerStarted = "server_started"
	StatusMatchFailed   = "failed"
)

// StatusPayload is the message pushed to a client as its match progresses.
// IP is only set for server_started.
type StatusPayload struct {
	Status string `json:"status"`
	IP     string `json:"ip,omitempty"`
	Reason string `json:"reason,omitempty"`
}
