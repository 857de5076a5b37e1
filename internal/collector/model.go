// Package collector is a local stand-in for the remote collection service. It
// accepts the same email and event payloads the SDK sends, stores them and
// answers with the production response envelopes. It backs the CLI's
// mock-server command and the SDK tests.
package collector

import "time"

// Event types accepted by the collection API. CONVERSION is created by the
// service itself when an email is captured.
const (
	EventView       = "VIEW"
	EventCTA        = "CTA"
	EventSubmit     = "SUBMIT"
	EventConversion = "CONVERSION"
	EventNavigate   = "NAVIGATE"
)

// Context carries the optional device signals attached to each call.
type Context struct {
	DeviceID   string  `json:"deviceId,omitempty"`
	DeviceType *string `json:"deviceType,omitempty"`
	Referrer   *string `json:"referrer,omitempty"`
	UserAgent  *string `json:"userAgent,omitempty"`
}

// Email is a captured address.
type Email struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Email     string    `json:"email"`
	Context   Context   `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is a recorded interaction.
type Event struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	Type      string         `json:"type"`
	ContentID string         `json:"contentId,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Context   Context        `json:"context"`
	CreatedAt time.Time      `json:"createdAt"`
}
