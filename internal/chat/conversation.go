package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/google/uuid"
)

// Conversation drives one chat: it admits sends through a Guard, shows them on a Timeline, streams
// the reply through a Session and reloads the timeline from the backend once the reply is stored.
type Conversation struct {
	session  *Session
	store    Store
	guard    *Guard
	timeline *Timeline

	logger *slog.Logger
}

// Turn is a send admitted by Prepare and not yet run.
type Turn struct {
	Message string
	// UserEntry is the pending entry showing the message.
	UserEntry models.Entry
	// ReplyID is the id of the streaming entry that receives the reply.
	ReplyID string

	release func()
}

// NewConversation creates a Conversation over session. guard may be shared with other
// conversations of the same account; a nil guard uses NewGuard(DefaultThrottle).
func NewConversation(session *Session, store Store, guard *Guard, logger *slog.Logger) *Conversation {
	if guard == nil {
		guard = NewGuard(DefaultThrottle)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conversation{
		session:  session,
		store:    store,
		guard:    guard,
		timeline: NewTimeline(),
		logger:   logger.With(slog.String("module", "conversation"), slog.String("chatID", session.ChatID())),
	}
}

// ChatID returns the chat id.
func (c *Conversation) ChatID() string {
	return c.session.ChatID()
}

// Prepare admits message through the guard and begins a turn for it. The returned Turn must be
// passed to Run or Cancel.
func (c *Conversation) Prepare(message string) (Turn, error) {
	msg, release, err := c.guard.Acquire(message)
	if err != nil {
		return Turn{}, err
	}
	return c.Begin(msg, release), nil
}

// Begin adds an already admitted message to the timeline as pending and opens the streaming
// entry for the reply. release is called once the turn is over and may be nil.
func (c *Conversation) Begin(message string, release func()) Turn {
	user := c.timeline.AddPending(message)
	replyID := "stream-" + uuid.NewString()
	c.timeline.StartStreaming(replyID)

	return Turn{
		Message:   message,
		UserEntry: user,
		ReplyID:   replyID,
		release:   release,
	}
}

// Cancel drops a turn that will not be run: its entries leave the timeline and the guard is
// released.
func (c *Conversation) Cancel(turn Turn) {
	c.timeline.DiscardStreaming()
	c.timeline.RemovePending(turn.UserEntry.ID)
	if turn.release != nil {
		turn.release()
	}
}

// Run streams the reply of a prepared turn, keeping the timeline in sync, and releases the guard
// when done. When the stream fails or is aborted the streaming entry and the pending message are
// removed. After a stored reply the timeline is reloaded from the backend.
func (c *Conversation) Run(ctx context.Context, turn Turn, cb Callbacks) (Result, error) {
	if turn.release != nil {
		defer turn.release()
	}

	wrapped := cb
	wrapped.OnChunk = func(acc string) {
		c.timeline.UpdateStreaming(acc)
		if cb.OnChunk != nil {
			cb.OnChunk(acc)
		}
	}
	wrapped.OnComplete = func(final string) {
		c.timeline.FinishStreaming(final)
		if cb.OnComplete != nil {
			cb.OnComplete(final)
		}
	}

	res, err := c.session.Send(ctx, turn.Message, turn.UserEntry.ID, wrapped)
	if err != nil {
		c.timeline.DiscardStreaming()
		c.timeline.RemovePending(turn.UserEntry.ID)
		return res, err
	}

	if res.Saved {
		if err := c.Refresh(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("Failed to reload messages after save", slog.String(errLoggerKey, err.Error()))
		}
	}
	return res, nil
}

// Refresh reloads the stored messages and reconciles them with the local entries.
func (c *Conversation) Refresh(ctx context.Context) error {
	res := c.store.ChatMessages(ctx, c.ChatID())
	if err := res.Err(); err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}
	c.timeline.Load(res.Data)
	return nil
}

// Abort cancels the reply being streamed.
func (c *Conversation) Abort() {
	c.session.Abort()
}

// Sending reports whether a send is in progress.
func (c *Conversation) Sending() bool {
	return c.guard.Sending()
}

// Entries returns the entries to display.
func (c *Conversation) Entries() []models.Entry {
	return c.timeline.Entries()
}

// State returns the streaming state of the current send.
func (c *Conversation) State() State {
	return c.session.State()
}
