package chat

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable entry of a session transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
