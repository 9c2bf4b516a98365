package persona

// Persona captures the greeting profile a chat session is created with.
type Persona struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Tone        string `json:"tone"`
	PromptHint  string `json:"promptHint"`
	OpeningLine string `json:"openingLine"`
	Description string `json:"description,omitempty"`
}

// Persona keys supported by the default table.
const (
	Technical = "technical"
	Manager   = "manager"
	Standard  = "standard"
)

// Seed provides the default persona table.
func Seed() []Persona {
	return []Persona{
		{
			ID:          Technical,
			Title:       "Technical Specialist",
			Tone:        "precise, detailed, pragmatic",
			PromptHint:  "Answer as a senior engineer: name concrete tools, trade-offs and failure modes.",
			OpeningLine: "Hi! I'm your technical specialist. Ask me about code, architecture or infrastructure.",
			Description: "Deep technical answers with implementation detail.",
		},
		{
			ID:          Manager,
			Title:       "Manager",
			Tone:        "concise, outcome-focused",
			PromptHint:  "Answer as an engineering manager: summarize, highlight risks, propose next steps.",
			OpeningLine: "Hello! I'm your manager assistant. Tell me what you need to plan, prioritize or report.",
			Description: "Short summaries, risks and decisions.",
		},
		{
			ID:          Standard,
			Title:       "AI Assistant",
			Tone:        "friendly, helpful",
			PromptHint:  "Answer helpfully and clearly.",
			OpeningLine: "Hello! I'm your AI assistant. How can I help you today?",
			Description: "General-purpose assistant.",
		},
	}
}
