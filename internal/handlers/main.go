package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chatwebui "github.com/MegaGrindStone/chat-web-ui"
	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/chat"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Backend is the part of the chat backend the web UI talks to. *backend.Client implements it.
type Backend interface {
	chat.Store

	Account(ctx context.Context, accountID string) backend.Response[models.Account]
	AccountChats(ctx context.Context, accountID string) backend.Response[[]models.Chat]

	Chat(ctx context.Context, chatID string) backend.Response[models.Chat]
	CreateChat(ctx context.Context, create models.ChatCreate) backend.Response[models.Created]
	UpdateChatTitle(ctx context.Context, chatID, title string) backend.Response[models.Created]
	DeleteChat(ctx context.Context, chatID string) backend.Response[models.Created]

	SearchMessages(ctx context.Context, query models.SearchQuery) backend.Response[[]models.Message]
	Models(ctx context.Context) backend.Response[models.ModelList]
	PreloadModel(ctx context.Context, modelID string) backend.Response[models.Created]
}

// LocalStore keeps the state the UI owns: the logged in account and reply backups.
type LocalStore interface {
	RememberAccount(accountID string) error
	RememberedAccount() (string, error)
	ForgetAccount() error

	BackupResponse(chatID, response string) error
	ChatBackup(chatID string) (models.ResponseBackup, bool, error)
	DeleteChatBackup(chatID string) error
}

// Main handles the core functionality of the chat application, managing server-sent events,
// HTML templates, and the conversations streaming from the backend.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	backend  Backend
	streamer chat.Streamer
	local    LocalStore

	saved         *chat.SavedSet
	conversations *conversations
	throttle      time.Duration

	logger *slog.Logger
}

// Option configures Main.
type Option func(*Main)

// conversations holds one chat.Conversation per open chat and one send guard per account, so a
// burst of sends is caught even when each one would start a new chat.
type conversations struct {
	mu     sync.Mutex
	byChat map[string]*chat.Conversation
	owner  map[string]string
	guards map[string]*chat.Guard
}

const (
	chatsSSETopic = "chats"

	defaultChatTitle = "New Chat"

	errLoggerKey = "err"
)

// SSE event types for real-time updates.
var (
	chatsSSEType        = sse.Type("chats")
	messagesSSEType     = sse.Type("messages")
	summarySSEType      = sse.Type("summary")
	closeMessageSSEType = sse.Type("closeMessage")
)

// WithThrottle sets the minimum spacing between two sends in a chat.
func WithThrottle(d time.Duration) Option {
	return func(m *Main) {
		m.throttle = d
	}
}

// WithStreamer streams replies through s instead of the backend stream endpoint. Replies are
// still stored in the backend.
func WithStreamer(s chat.Streamer) Option {
	return func(m *Main) {
		m.streamer = s
	}
}

// NewMain creates a new Main instance over the backend client and the local store. It
// initializes the SSE server and parses the required HTML templates from the embedded
// filesystem. Replies stream from b unless WithStreamer is given, in which case b must still
// implement Backend for everything else.
func NewMain(b Backend, local LocalStore, logger *slog.Logger, opts ...Option) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		chatwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := Main{
		templates: tmpl,
		backend:   b,
		local:     local,
		saved:     chat.NewSavedSet(),
		conversations: &conversations{
			byChat: make(map[string]*chat.Conversation),
			owner:  make(map[string]string),
			guards: make(map[string]*chat.Guard),
		},
		throttle: chat.DefaultThrottle,
		logger:   logger.With(slog.String("module", "main")),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.streamer == nil {
		s, ok := b.(chat.Streamer)
		if !ok {
			return Main{}, fmt.Errorf("backend %T cannot stream and no streamer was given", b)
		}
		m.streamer = s
	}

	m.sseSrv = &sse.Server{
		OnSession: func(_ http.ResponseWriter, r *http.Request) ([]string, bool) {
			// We start with default topics that all clients should subscribe to
			topics := []string{sse.DefaultTopic, chatsSSETopic}

			// We create a message-specific topic if the client requests updates for a particular message
			messageID := r.URL.Query().Get("message_id")
			if messageID != "" {
				topics = append(topics, messageIDTopic(messageID))
			}

			return topics, true
		},
		Logger: func(*http.Request) *slog.Logger {
			return m.logger.With(slog.String("module", "sse"))
		},
	}

	return m, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// HandleSSE serves the event stream. Clients pass message_id to follow a reply as it streams.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// conversation returns the conversation of chatID for accountID, creating it on first use.
func (m Main) conversation(accountID, chatID string) *chat.Conversation {
	c := m.conversations
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.byChat[chatID]
	if ok && c.owner[chatID] == accountID {
		return conv
	}
	if ok {
		conv.Abort()
	}

	session := chat.NewSession(accountID, chatID, m.streamer, m.backend,
		chat.WithSavedSet(m.saved),
		chat.WithBackup(m.local),
		chat.WithLogger(m.logger),
	)
	conv = chat.NewConversation(session, m.backend, c.guard(accountID, m.throttle), m.logger)
	c.byChat[chatID] = conv
	c.owner[chatID] = accountID
	return conv
}

// guard returns the send guard of accountID.
func (m Main) guard(accountID string) *chat.Guard {
	c := m.conversations
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.guard(accountID, m.throttle)
}

// guard must be called with mu held.
func (c *conversations) guard(accountID string, throttle time.Duration) *chat.Guard {
	g, ok := c.guards[accountID]
	if !ok {
		g = chat.NewGuard(throttle)
		c.guards[accountID] = g
	}
	return g
}

// abortOthers aborts the streams of every chat but chatID.
func (m Main) abortOthers(chatID string) {
	c := m.conversations
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, conv := range c.byChat {
		if id != chatID {
			conv.Abort()
		}
	}
}

// dropConversation aborts and forgets the conversation of chatID, or of every chat when chatID
// is empty.
func (m Main) dropConversation(chatID string) {
	c := m.conversations
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, conv := range c.byChat {
		if chatID == "" || id == chatID {
			conv.Abort()
			delete(c.byChat, id)
			delete(c.owner, id)
		}
	}
}

// Shutdown gracefully terminates the Main instance's SSE server. It aborts running streams,
// broadcasts a close message to all connected clients and waits up to 5 seconds for connections
// to terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.dropConversation("")

	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
