package chat

// Session is a single conversation with an ordered, append-only transcript.
type Session struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Persona    string    `json:"persona"`
	Transcript []Message `json:"transcript"`
}

// Summary describes a session for list views.
type Summary struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Persona      string `json:"persona"`
	MessageCount int    `json:"messageCount"`
	Active       bool   `json:"active"`
}

// Turn reports the outcome of one submitted user message. Reply is nil when the
// agent produced nothing, in which case Notice explains why.
type Turn struct {
	SessionID int      `json:"sessionId"`
	User      Message  `json:"user"`
	Reply     *Message `json:"reply,omitempty"`
	Notice    string   `json:"notice,omitempty"`
}
