package domain

// Event types pushed to the presentation layer of a session.
const (
	EventMessage  = "message"
	EventReaction = "reaction"
	EventTyping   = "typing"
	EventTheme    = "theme"
	EventReset    = "reset"
	EventUser     = "user"
)

// Event is a re-render signal for one session. Only the fields relevant to
// Type are set.
type Event struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id"`
	Message   *Message `json:"message,omitempty"`
	Typing    *bool    `json:"typing,omitempty"`
	DarkMode  *bool    `json:"dark_mode,omitempty"`
	Username  *string  `json:"username,omitempty"`
}
