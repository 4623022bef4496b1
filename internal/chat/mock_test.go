package chat_test

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

type streamItem struct {
	ev  models.StreamEvent
	err error
}

type mockStreamer struct {
	items []streamItem
	// block keeps the stream open after items until the context is cancelled.
	block   bool
	started chan struct{}

	mu   sync.Mutex
	reqs []models.StreamRequest
}

// sequenceStreamer hands each Stream call to the next streamer in calls.
type sequenceStreamer struct {
	mu    sync.Mutex
	next  int
	calls []*mockStreamer
}

type mockStore struct {
	mu        sync.Mutex
	created   []models.MessageCreate
	messages  []models.Message
	createErr string
	listErr   string
}

type mockBackup struct {
	mu        sync.Mutex
	responses map[string]string
}

func chunk(text string) streamItem {
	return streamItem{ev: models.StreamEvent{Type: models.StreamEventChunk, Text: text}}
}

func complete(text string) streamItem {
	return streamItem{ev: models.StreamEvent{Type: models.StreamEventComplete, Text: text}}
}

func start() streamItem {
	return streamItem{ev: models.StreamEvent{Type: models.StreamEventStart}}
}

func (m *mockStreamer) Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()

	return func(yield func(models.StreamEvent, error) bool) {
		for _, it := range m.items {
			if !yield(it.ev, it.err) {
				return
			}
		}
		if !m.block {
			return
		}
		if m.started != nil {
			close(m.started)
		}
		<-ctx.Done()
		yield(models.StreamEvent{}, ctx.Err())
	}
}

func (s *sequenceStreamer) Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	s.mu.Lock()
	m := s.calls[s.next]
	s.next++
	s.mu.Unlock()
	return m.Stream(ctx, req)
}

func (m *mockStreamer) requests() []models.StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StreamRequest(nil), m.reqs...)
}

func (m *mockStore) CreateMessage(_ context.Context, msg models.MessageCreate) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != "" {
		return backend.Response[models.Created]{Error: m.createErr, Status: 500}
	}
	m.created = append(m.created, msg)
	id := fmt.Sprintf("msg-%d", len(m.created))
	m.messages = append(m.messages, models.Message{
		ID:       id,
		ChatID:   msg.ChatID,
		Text:     msg.Text,
		Response: msg.Response,
		Role:     models.RoleUser,
	})
	return backend.Response[models.Created]{Data: models.Created{ID: id}, Status: 201}
}

func (m *mockStore) ChatMessages(_ context.Context, _ string) backend.Response[[]models.Message] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != "" {
		return backend.Response[[]models.Message]{Error: m.listErr, Status: 500}
	}
	return backend.Response[[]models.Message]{Data: append([]models.Message(nil), m.messages...), Status: 200}
}

func (m *mockStore) createdMessages() []models.MessageCreate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MessageCreate(nil), m.created...)
}

func (b *mockBackup) BackupResponse(chatID, response string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.responses == nil {
		b.responses = make(map[string]string)
	}
	b.responses[chatID] = response
	return nil
}
