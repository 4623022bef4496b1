package models

// StreamEventType discriminates the events of the chat stream.
type StreamEventType string

const (
	// StreamEventStart is sent once before any text.
	StreamEventStart StreamEventType = "start"
	// StreamEventChunk carries an increment of the assistant reply.
	StreamEventChunk StreamEventType = "chunk"
	// StreamEventComplete carries the full reply and ends the stream.
	StreamEventComplete StreamEventType = "complete"
	// StreamEventSummary carries a title (and optionally bullets) for the conversation.
	StreamEventSummary StreamEventType = "summary"
	// StreamEventError reports a backend failure and ends the stream.
	StreamEventError StreamEventType = "error"
)

// StreamRequest is the body of the streaming endpoint. OriginalMessageID is required by the
// backend: it names a message the client already created, or starts with "temp-" to ask the
// backend to create it.
type StreamRequest struct {
	Message           string `json:"message"`
	AccountID         string `json:"account_id"`
	ConversationID    string `json:"conversation_id"`
	OriginalMessageID string `json:"original_message_id"`
}

// Summary is the payload of a summary event.
type Summary struct {
	Title   string   `json:"title,omitempty"`
	Bullets []string `json:"bullets,omitempty"`
}

// StreamEvent is one decoded event of the chat stream.
type StreamEvent struct {
	Type StreamEventType

	// Text would be filled if Type is StreamEventChunk or StreamEventComplete.
	Text string
	// Summary would be filled if Type is StreamEventSummary.
	Summary Summary
	// Message would be filled if Type is StreamEventError.
	Message string
}
