package tracker

// EventType is the kind of interaction reported by TrackEvent.
type EventType string

const (
	EventView     EventType = "VIEW"
	EventCTA      EventType = "CTA"
	EventSubmit   EventType = "SUBMIT"
	EventNavigate EventType = "NAVIGATE"
	// EventConversion is created by the collection service when an email is
	// captured. TrackEvent refuses to send it.
	EventConversion EventType = "CONVERSION"
)

// Result is the envelope every network operation returns. Failures are
// reported in Error rather than as Go errors; Data is nil on failure.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func succeeded[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data}
}

func failed[T any](msg string) Result[T] {
	return Result[T]{Success: false, Error: msg}
}

type SubmitEmailOptions struct {
	Email string
}

// EmailSubmission is the server's record of a captured address.
type EmailSubmission struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type TrackEventOptions struct {
	Type EventType
	// ContentID attributes the event to a content variant (A/B tests).
	ContentID string
	Meta      map[string]any
}

// TrackedEvent is the server's record of an event.
type TrackedEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	CreatedAt string    `json:"createdAt"`
}
