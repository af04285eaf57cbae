package domain

// Turn roles mirror the chat transcript: the player's question and the
// assistant's answer.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one (role, content) entry in a session's conversation history.
// History is owned per session and never persisted with the documents.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
