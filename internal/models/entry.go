package models

import "strings"

// Placeholders the backend stores when one half of a prompt/response pair is missing.
const (
	PlaceholderResponse  = "No response"
	PlaceholderAssistant = "Assistant message"
)

// Streaming states of an Entry as seen by the templates.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)

// ResponseIDSuffix is appended to a stored record id to name the assistant half of the pair.
const ResponseIDSuffix = ":response"

// Entry is one displayed bubble of a conversation. Entries built from backend records are
// permanent. A Pending entry is a user message shown before the backend acknowledged it, and a
// Streaming entry is the assistant reply that is still being received.
type Entry struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt string

	Streaming bool
	Pending   bool
}

// State returns the streaming state used by the templates.
func (e Entry) State() string {
	switch {
	case e.Streaming && e.Content == "":
		return StreamingStateLoading
	case e.Streaming:
		return StreamingStateStreaming
	default:
		return StreamingStateEnded
	}
}

// IsPlaceholder reports whether s carries no real content.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == PlaceholderResponse || s == PlaceholderAssistant
}

// ExpandMessages turns stored prompt/response records into display entries, in order. A record
// yields a user entry for its prompt and an assistant entry for its response; placeholder halves
// are skipped. Records explicitly marked as assistant yield a single assistant entry.
func ExpandMessages(records []Message) []Entry {
	entries := make([]Entry, 0, len(records)*2)
	for _, r := range records {
		if r.Role == RoleAssistant {
			content := r.Response
			if IsPlaceholder(content) {
				content = r.Text
			}
			if IsPlaceholder(content) {
				continue
			}
			entries = append(entries, Entry{
				ID:        r.ID,
				Role:      RoleAssistant,
				Content:   content,
				CreatedAt: r.CreatedAt,
			})
			continue
		}

		if !IsPlaceholder(r.Text) {
			entries = append(entries, Entry{
				ID:        r.ID,
				Role:      RoleUser,
				Content:   r.Text,
				CreatedAt: r.CreatedAt,
			})
		}
		if !IsPlaceholder(r.Response) {
			entries = append(entries, Entry{
				ID:        r.ID + ResponseIDSuffix,
				Role:      RoleAssistant,
				Content:   r.Response,
				CreatedAt: r.CreatedAt,
			})
		}
	}
	return entries
}
