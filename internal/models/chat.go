package models

import "time"

// Account mirrors the backend account record. The UI only reads it; the mocked login keeps the
// account id around and everything else is fetched on demand.
type Account struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Settings   AccountSettings   `json:"settings"`
	Statistics AccountStatistics `json:"statistics"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

// AccountSettings holds the per-account preferences stored by the backend.
type AccountSettings struct {
	Theme           string  `json:"theme"`
	DarkMode        bool    `json:"dark_mode"`
	RAGAutoTrim     bool    `json:"rag_auto_trim"`
	RAGSimThreshold float64 `json:"rag_sim_threshold"`
	ModelProfile    string  `json:"model_profile"`
}

// AccountStatistics holds usage counters maintained by the backend.
type AccountStatistics struct {
	TotalMessages int `json:"total_messages"`
	TotalChats    int `json:"total_chats"`
	TotalTokens   int `json:"total_tokens"`
}

// AccountCreate is the payload for registering a new account.
type AccountCreate struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountSettingsUpdate carries a partial settings update. Only non-nil fields are sent.
type AccountSettingsUpdate struct {
	Settings map[string]any `json:"settings"`
}

// Chat represents a conversation container in the chat system. It provides basic identification and
// labeling capabilities for organizing message threads.
type Chat struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ChatCreate is the payload for creating a chat.
type ChatCreate struct {
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
}

// ChatTitleUpdate is the payload for renaming a chat.
type ChatTitleUpdate struct {
	Title string `json:"title"`
}

// Message mirrors a stored backend record. The backend keeps a prompt and its answer together:
// Text holds what the user typed and Response the assistant's reply.
type Message struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	Response  string `json:"response,omitempty"`
	FaissID   *int   `json:"faiss_id,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Title     string `json:"title,omitempty"`
	Role      Role   `json:"role,omitempty"`
	CreatedAt string `json:"created_at"`
}

// MessageCreate is the payload for storing a prompt/response pair.
type MessageCreate struct {
	AccountID string `json:"account_id"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	Response  string `json:"response,omitempty"`
	FaissID   *int   `json:"faiss_id,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Title     string `json:"title,omitempty"`
}

// MessageUpdate carries the fields of a stored message that may change after streaming.
type MessageUpdate struct {
	Text     string `json:"text,omitempty"`
	Response string `json:"response,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Title    string `json:"title,omitempty"`
}

// SearchQuery is the payload of the message search endpoint.
type SearchQuery struct {
	AccountID string `json:"account_id"`
	Query     string `json:"query"`
}

// Model describes a model profile the backend can serve.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	MaxTokens     int    `json:"max_tokens"`
	ContextLength int    `json:"context_length"`
	ModelType     string `json:"model_type"`
}

// ModelList is the body of the models endpoint.
type ModelList struct {
	Models []Model `json:"models"`
}

// Created is the acknowledgement the backend returns for create and update calls.
type Created struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"
)

// ResponseBackup is a locally kept copy of a completed reply.
type ResponseBackup struct {
	ChatID   string    `json:"chat_id"`
	Response string    `json:"response"`
	SavedAt  time.Time `json:"saved_at"`
}
