package chat

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/google/uuid"
)

// TempIDPrefix marks ids of entries the backend has not acknowledged yet.
const TempIDPrefix = "temp-"

// Timeline is the displayed message list of one chat. It is fed from two sides: backend fetches
// replace the permanent part, while pending user messages and the streaming reply live locally
// until the backend returns them.
type Timeline struct {
	mu        sync.Mutex
	permanent []models.Entry
	pending   []models.Entry
	streaming *models.Entry
}

// NewTimeline creates an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Load replaces the permanent entries with the fetched records and drops local entries the
// backend now knows about.
func (t *Timeline) Load(records []models.Message) {
	entries := models.ExpandMessages(collapseRecords(records))

	t.mu.Lock()
	defer t.mu.Unlock()

	// Only prompts that appeared since the previous load can stand in for a pending entry, and
	// each of them for a single one.
	vouchers := countUsers(entries)
	for key, n := range countUsers(t.permanent) {
		vouchers[key] -= n
	}
	t.permanent = entries

	kept := t.pending[:0]
	for _, p := range t.pending {
		key := normalize(p.Content)
		if vouchers[key] > 0 {
			vouchers[key]--
			continue
		}
		kept = append(kept, p)
	}
	t.pending = kept

	if t.streaming != nil && !t.streaming.Streaming && len(entries) > 0 {
		last := entries[len(entries)-1]
		if last.Role == models.RoleAssistant && normalize(last.Content) == normalize(t.streaming.Content) {
			t.streaming = nil
		}
	}
}

// AddPending shows a user message before the backend acknowledged it and returns the entry with
// its temporary id.
func (t *Timeline) AddPending(content string) models.Entry {
	e := models.Entry{
		ID:        TempIDPrefix + uuid.NewString(),
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Pending:   true,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, e)
	return e
}

// RemovePending drops a pending entry, e.g. when its send was rejected.
func (t *Timeline) RemovePending(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = slices.DeleteFunc(t.pending, func(e models.Entry) bool { return e.ID == id })
}

// StartStreaming appends an empty assistant entry that receives the reply as it arrives. Any
// previous streaming entry is replaced.
func (t *Timeline) StartStreaming(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaming = &models.Entry{
		ID:        id,
		Role:      models.RoleAssistant,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Streaming: true,
	}
}

// UpdateStreaming sets the accumulated reply of the streaming entry.
func (t *Timeline) UpdateStreaming(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streaming != nil && t.streaming.Streaming {
		t.streaming.Content = content
	}
}

// FinishStreaming makes the streaming entry permanent with its final content. It stays visible
// until a Load returns the same reply.
func (t *Timeline) FinishStreaming(final string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streaming == nil {
		return
	}
	t.streaming.Content = final
	t.streaming.Streaming = false
}

// DiscardStreaming drops the streaming entry, used when the stream failed or was aborted so no
// partial reply becomes permanent.
func (t *Timeline) DiscardStreaming() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaming = nil
}

// Entries returns the list to display: permanent entries, then pending user messages, then the
// streaming reply.
func (t *Timeline) Entries() []models.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Entry, 0, len(t.permanent)+len(t.pending)+1)
	out = append(out, t.permanent...)
	out = append(out, t.pending...)
	if t.streaming != nil {
		out = append(out, *t.streaming)
	}
	return out
}

// collapseRecords merges adjacent records that store the same prompt. This happens when the
// prompt was saved once before streaming and again with its reply, or when the backend and the
// client both stored the pair. A record without a real response gives way to one with a response,
// and identical pairs keep the first.
func collapseRecords(records []models.Message) []models.Message {
	out := make([]models.Message, 0, len(records))
	for _, r := range records {
		if len(out) == 0 || r.Role == models.RoleAssistant {
			out = append(out, r)
			continue
		}
		prev := &out[len(out)-1]
		if prev.Role == models.RoleAssistant || normalize(prev.Text) != normalize(r.Text) {
			out = append(out, r)
			continue
		}

		prevHas := !models.IsPlaceholder(prev.Response)
		curHas := !models.IsPlaceholder(r.Response)
		switch {
		case !prevHas:
			*prev = r
		case !curHas:
		case normalize(prev.Response) == normalize(r.Response):
		default:
			out = append(out, r)
		}
	}
	return out
}

func countUsers(entries []models.Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		if e.Role == models.RoleUser {
			counts[normalize(e.Content)]++
		}
	}
	return counts
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
