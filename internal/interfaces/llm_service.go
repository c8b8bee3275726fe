package interfaces

// Message represents a single message in a chat conversation, used as the
// provider-agnostic request shape for llm.ContentRequest (§4.J).
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}
