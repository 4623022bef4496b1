package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/google/uuid"
)

// Streamer opens the response stream for one user message.
type Streamer interface {
	Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error]
}

// Store is the part of the backend the conversation persists to and reloads from.
type Store interface {
	CreateMessage(ctx context.Context, msg models.MessageCreate) backend.Response[models.Created]
	ChatMessages(ctx context.Context, chatID string) backend.Response[[]models.Message]
}

// Backup keeps a local copy of the latest completed reply.
type Backup interface {
	BackupResponse(chatID, response string) error
}

// Callbacks are invoked while a reply streams. Every field is optional. They run on the
// goroutine that called Send.
type Callbacks struct {
	OnStart func()
	// OnChunk receives the accumulated reply so far, not the increment.
	OnChunk    func(accumulated string)
	OnComplete func(final string)
	// OnSaved receives the backend id of the persisted prompt/response pair.
	OnSaved   func(messageID string)
	OnSummary func(summary models.Summary)
	OnError   func(message string)
}

// State is what the rendering layer needs to know about the current send.
type State struct {
	Response  string
	Streaming bool
	Err       string
	Summary   *models.Summary
}

// Result describes a finished send.
type Result struct {
	Response  string
	Completed bool
	Saved     bool
	MessageID string
	Summary   models.Summary
}

// StreamError is a failure reported by the backend inside the stream.
type StreamError struct {
	Message string
}

var (
	// ErrAborted is returned by Send when the stream was cancelled before completing.
	ErrAborted = errors.New("stream aborted")
	// ErrIncomplete is returned by Send when the stream ended without a complete event.
	ErrIncomplete = errors.New("stream ended before completion")
)

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}

// Session consumes the response stream of one chat. Only one send is in flight at a time: a new
// Send aborts the previous one. A completed reply is persisted together with its prompt at most
// once.
type Session struct {
	accountID string
	chatID    string

	streamer Streamer
	store    Store
	saved    *SavedSet
	backup   Backup

	logger *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	sendID string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

const errLoggerKey = "err"

// WithSavedSet shares a SavedSet between sessions.
func WithSavedSet(saved *SavedSet) SessionOption {
	return func(s *Session) {
		s.saved = saved
	}
}

// WithBackup stores every completed reply locally as well.
func WithBackup(b Backup) SessionOption {
	return func(s *Session) {
		s.backup = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a Session for the given account and chat.
func NewSession(accountID, chatID string, streamer Streamer, store Store, opts ...SessionOption) *Session {
	s := &Session{
		accountID: accountID,
		chatID:    chatID,
		streamer:  streamer,
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.saved == nil {
		s.saved = NewSavedSet()
	}
	s.logger = s.logger.With(slog.String("module", "chat"), slog.String("chatID", chatID))
	return s
}

// ChatID returns the chat the session streams into.
func (s *Session) ChatID() string {
	return s.chatID
}

// State returns a snapshot of the current send.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Summary != nil {
		sum := *st.Summary
		st.Summary = &sum
	}
	return st
}

// Abort cancels the in-flight stream, if any. The partial reply is discarded.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Reset aborts the in-flight stream and clears the state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.sendID = ""
	s.state = State{}
}

// Send streams the reply to message. It blocks until the stream ends. originalMessageID is
// forwarded to the backend; when empty a temporary id is sent in its place.
//
// On a complete event the prompt/response pair is stored once; a repeated complete event is
// ignored. On an error event the partial reply is dropped and a *StreamError is returned. Transport
// failures are not retried. If ctx is cancelled or Abort is called before completion, ErrAborted
// is returned and nothing is stored.
func (s *Session) Send(ctx context.Context, message, originalMessageID string, cb Callbacks) (Result, error) {
	sendID := uuid.NewString()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.sendID = sendID
	s.state = State{Streaming: true}
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.sendID == sendID {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	logger := s.logger.With(slog.String("sendID", sendID))

	if originalMessageID == "" {
		originalMessageID = TempIDPrefix + uuid.NewString()
	}
	req := models.StreamRequest{
		Message:           message,
		AccountID:         s.accountID,
		ConversationID:    s.chatID,
		OriginalMessageID: originalMessageID,
	}

	var (
		res         Result
		accumulated string
		processed   bool
	)

	for ev, err := range s.streamer.Stream(ctx, req) {
		if ctx.Err() != nil {
			if res.Completed {
				break
			}
			return s.abort(sendID, logger, res.Summary)
		}
		if err != nil {
			logger.Error("Stream failed", slog.String(errLoggerKey, err.Error()))
			s.update(sendID, func(st *State) {
				st.Response = ""
				st.Streaming = false
				st.Err = err.Error()
			})
			callError(cb, err.Error())
			return Result{Summary: res.Summary}, fmt.Errorf("failed to stream response: %w", err)
		}

		switch ev.Type {
		case models.StreamEventStart:
			s.update(sendID, func(st *State) { st.Streaming = true })
			if cb.OnStart != nil {
				cb.OnStart()
			}

		case models.StreamEventChunk:
			if processed {
				continue
			}
			accumulated += ev.Text
			s.update(sendID, func(st *State) { st.Response = accumulated })
			if cb.OnChunk != nil {
				cb.OnChunk(accumulated)
			}

		case models.StreamEventComplete:
			if processed {
				logger.Warn("Skipping repeated completion")
				continue
			}
			processed = true

			final := ev.Text
			if final == "" {
				final = accumulated
			}
			accumulated = final
			res.Response = final
			res.Completed = true
			s.update(sendID, func(st *State) { st.Response = final })
			if cb.OnComplete != nil {
				cb.OnComplete(final)
			}

			key := fmt.Sprintf("%s-%s-%d", sendID, s.chatID, len(final))
			if !s.saved.Add(key) {
				logger.Warn("Skipping save of an already saved reply", slog.String("key", key))
				s.update(sendID, func(st *State) { st.Streaming = false })
				continue
			}

			if s.backup != nil {
				if err := s.backup.BackupResponse(s.chatID, final); err != nil {
					logger.Warn("Failed to back up reply", slog.String(errLoggerKey, err.Error()))
				}
			}

			// The pair is stored even if the caller goes away right after completion.
			id, err := s.persist(context.WithoutCancel(ctx), message, final)
			if err != nil {
				logger.Error("Failed to save message pair", slog.String(errLoggerKey, err.Error()))
			} else {
				res.Saved = true
				res.MessageID = id
				if cb.OnSaved != nil {
					cb.OnSaved(id)
				}
			}
			s.update(sendID, func(st *State) { st.Streaming = false })

		case models.StreamEventSummary:
			sum := ev.Summary
			res.Summary = sum
			s.update(sendID, func(st *State) { st.Summary = &sum })
			if cb.OnSummary != nil {
				cb.OnSummary(sum)
			}

		case models.StreamEventError:
			logger.Error("Backend reported a stream error", slog.String(errLoggerKey, ev.Message))
			s.update(sendID, func(st *State) {
				st.Response = ""
				st.Streaming = false
				st.Err = ev.Message
			})
			callError(cb, ev.Message)
			return Result{Summary: res.Summary}, &StreamError{Message: ev.Message}
		}
	}

	if !res.Completed {
		if ctx.Err() != nil {
			return s.abort(sendID, logger, res.Summary)
		}
		logger.Warn("Stream ended without completion", slog.Int("partialLength", len(accumulated)))
		s.update(sendID, func(st *State) {
			st.Response = ""
			st.Streaming = false
			st.Err = ErrIncomplete.Error()
		})
		callError(cb, ErrIncomplete.Error())
		return Result{Summary: res.Summary}, ErrIncomplete
	}

	s.update(sendID, func(st *State) { st.Streaming = false })
	return res, nil
}

func (s *Session) abort(sendID string, logger *slog.Logger, summary models.Summary) (Result, error) {
	logger.Info("Stream aborted")
	s.update(sendID, func(st *State) {
		st.Response = ""
		st.Streaming = false
	})
	return Result{Summary: summary}, ErrAborted
}

func (s *Session) persist(ctx context.Context, message, final string) (string, error) {
	res := s.store.CreateMessage(ctx, models.MessageCreate{
		AccountID: s.accountID,
		ChatID:    s.chatID,
		Text:      message,
		Response:  final,
	})
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Data.ID, nil
}

// update applies fn to the state unless a newer send took over.
func (s *Session) update(sendID string, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendID != sendID {
		return
	}
	fn(&s.state)
}

func callError(cb Callbacks, msg string) {
	if cb.OnError != nil {
		cb.OnError(msg)
	}
}
