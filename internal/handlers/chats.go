package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/chat"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

type messageError struct {
	Message string
}

// HandleChats processes chat interactions through HTTP POST requests, managing both new chat
// creation and message handling. It accepts the user message through the "message" form field
// and an optional "chat_id" field; without chat_id a chat titled "New Chat" is created.
//
// The reply streams in the background and reaches the page through Server-Sent Events on the
// topic of the placeholder AI message. For new chats the whole chatbox is rendered, otherwise the
// user message and the placeholder AI message. Sends are guarded per account: an empty message is
// answered with 400, a send while another is running with 409 and a send too soon after the last
// one, or a duplicate, with 429. A rejected send creates no chat and streams nothing.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID, ok := m.requireAccount(w)
	if !ok {
		return
	}

	// The guard runs before a chat is created so a rejected send leaves nothing behind.
	msg, release, err := m.guard(accountID).Acquire(r.FormValue("message"))
	if err != nil {
		m.logger.Warn("Send rejected", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), sendErrorStatus(err))
		return
	}

	chatID := r.FormValue("chat_id")
	// We track if this is a new chat to determine the appropriate template rendering strategy
	isNewChat := false
	if chatID == "" {
		chatID, err = m.newChat(r.Context(), accountID)
		if err != nil {
			release()
			m.logger.Error("Failed to create new chat", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), apiErrorStatus(err))
			return
		}
		isNewChat = true
	}

	conv := m.conversation(accountID, chatID)
	turn := conv.Begin(msg, release)

	if isNewChat {
		err = m.renderNewChat(w, chatID, conv.Entries())
	} else {
		err = m.renderTurn(w, turn)
	}
	if err != nil {
		m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
		conv.Cancel(turn)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go m.stream(accountID, chatID, conv, turn)
}

func (m Main) renderNewChat(w http.ResponseWriter, chatID string, entries []models.Entry) error {
	msgs, err := renderEntries(entries)
	if err != nil {
		return err
	}
	// The composer targets the message list of an open chat; a new chat replaces the whole box.
	w.Header().Set("HX-Retarget", "#chatbox")
	w.Header().Set("HX-Reswap", "outerHTML")
	w.Header().Set("HX-Push-Url", "/?chat_id="+chatID)
	return m.templates.ExecuteTemplate(w, "chatbox", homePageData{
		CurrentChatID: chatID,
		Messages:      msgs,
	})
}

func (m Main) renderTurn(w http.ResponseWriter, turn chat.Turn) error {
	user, err := models.RenderEntry(turn.UserEntry)
	if err != nil {
		return err
	}
	if err := m.templates.ExecuteTemplate(w, "user_message", user); err != nil {
		return err
	}

	reply, err := models.RenderEntry(models.Entry{
		ID:        turn.ReplyID,
		Role:      models.RoleAssistant,
		Streaming: true,
	})
	if err != nil {
		return err
	}
	return m.templates.ExecuteTemplate(w, "ai_message", reply)
}

// stream runs the turn and relays the reply to the page. Every update carries the whole reply
// rendered so far, so a client that subscribes late only misses the first updates.
func (m Main) stream(accountID, chatID string, conv *chat.Conversation, turn chat.Turn) {
	topic := messageIDTopic(turn.ReplyID)
	logger := m.logger.With(slog.String("chatID", chatID), slog.String("messageID", turn.ReplyID))

	// Ensure SSE connection cleanup on function exit
	defer func() {
		e := &sse.Message{Type: closeMessageSSEType}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e, topic)
	}()

	publish := func(content string, streaming bool) {
		re, err := models.RenderEntry(models.Entry{
			ID:        turn.ReplyID,
			Role:      models.RoleAssistant,
			Content:   content,
			Streaming: streaming,
		})
		if err != nil {
			logger.Error("Failed to render reply", slog.String(errLoggerKey, err.Error()))
			return
		}
		m.publishTemplate(logger, messagesSSEType, "ai_message_content", re, topic)
	}

	_, err := conv.Run(context.Background(), turn, chat.Callbacks{
		OnChunk:    func(acc string) { publish(acc, true) },
		OnComplete: func(final string) { publish(final, false) },
		OnSummary: func(sum models.Summary) {
			m.publishTemplate(logger, summarySSEType, "summary", sum, topic)
			m.applyTitle(accountID, chatID, sum.Title)
		},
	})
	if err == nil {
		return
	}

	msg := err.Error()
	var streamErr *chat.StreamError
	switch {
	case errors.Is(err, chat.ErrAborted):
		logger.Info("Reply aborted")
		msg = "Response stopped."
	case errors.As(err, &streamErr):
		msg = streamErr.Message
	default:
		logger.Error("Reply failed", slog.String(errLoggerKey, err.Error()))
	}
	m.publishTemplate(logger, messagesSSEType, "message_error", messageError{Message: msg}, topic)
}

// applyTitle renames a chat still carrying the default title after the backend summarized it.
func (m Main) applyTitle(accountID, chatID, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}

	ctx := context.Background()
	res := m.backend.Chat(ctx, chatID)
	if err := res.Err(); err != nil {
		m.logger.Error("Failed to get chat", slog.String("chatID", chatID), slog.String(errLoggerKey, err.Error()))
		return
	}
	if res.Data.Title != "" && res.Data.Title != defaultChatTitle {
		return
	}

	if err := m.backend.UpdateChatTitle(ctx, chatID, title).Err(); err != nil {
		m.logger.Error("Failed to update chat title", slog.String("chatID", chatID), slog.String(errLoggerKey, err.Error()))
		return
	}
	m.publishChats(accountID, chatID)
}

// HandleAbort stops the reply streaming in the chat given by the chat_id form field. The partial
// reply is dropped.
func (m Main) HandleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID, ok := m.requireAccount(w)
	if !ok {
		return
	}

	chatID := r.FormValue("chat_id")
	if chatID == "" {
		http.Error(w, "Chat ID is required", http.StatusBadRequest)
		return
	}

	m.conversation(accountID, chatID).Abort()
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteChat deletes the chat given by the chat_id form field and sends the page home.
func (m Main) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID, ok := m.requireAccount(w)
	if !ok {
		return
	}

	chatID := r.FormValue("chat_id")
	if chatID == "" {
		http.Error(w, "Chat ID is required", http.StatusBadRequest)
		return
	}

	m.dropConversation(chatID)
	if err := m.backend.DeleteChat(r.Context(), chatID).Err(); err != nil {
		m.logger.Error("Failed to delete chat", slog.String("chatID", chatID), slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), apiErrorStatus(err))
		return
	}
	if err := m.local.DeleteChatBackup(chatID); err != nil {
		m.logger.Warn("Failed to delete reply backup", slog.String(errLoggerKey, err.Error()))
	}

	m.publishChats(accountID, "")
	redirectHome(w, r)
}

// HandleRenameChat sets the title of the chat given by the chat_id form field.
func (m Main) HandleRenameChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID, ok := m.requireAccount(w)
	if !ok {
		return
	}

	chatID := r.FormValue("chat_id")
	title := strings.TrimSpace(r.FormValue("title"))
	if chatID == "" || title == "" {
		http.Error(w, "Chat ID and title are required", http.StatusBadRequest)
		return
	}

	if err := m.backend.UpdateChatTitle(r.Context(), chatID, title).Err(); err != nil {
		m.logger.Error("Failed to update chat title", slog.String("chatID", chatID), slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), apiErrorStatus(err))
		return
	}

	m.publishChats(accountID, chatID)
	w.WriteHeader(http.StatusNoContent)
}

func (m Main) newChat(ctx context.Context, accountID string) (string, error) {
	res := m.backend.CreateChat(ctx, models.ChatCreate{
		AccountID: accountID,
		Title:     defaultChatTitle,
	})
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("failed to add chat: %w", err)
	}
	if res.Data.ID == "" {
		return "", errors.New("failed to add chat: backend returned no id")
	}

	m.publishChats(accountID, res.Data.ID)
	return res.Data.ID, nil
}

func (m Main) publishChats(accountID, activeID string) {
	divs, err := m.chatDivs(accountID, activeID)
	if err != nil {
		m.logger.Error("Failed to generate chat divs", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)
	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		m.logger.Error("Failed to publish chats", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatDivs(accountID, activeID string) (string, error) {
	chats, err := m.chats(context.Background(), accountID, activeID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ch := range chats {
		if err := m.templates.ExecuteTemplate(&sb, "chat_title", ch); err != nil {
			return "", fmt.Errorf("failed to execute chat_title template: %w", err)
		}
	}
	return sb.String(), nil
}

func (m Main) publishTemplate(logger *slog.Logger, typ sse.EventType, name string, data any, topic string) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, name, data); err != nil {
		logger.Error("Failed to execute template", slog.String("template", name), slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: typ}
	msg.AppendData(sb.String())
	if err := m.sseSrv.Publish(&msg, topic); err != nil {
		logger.Error("Failed to publish message", slog.String(errLoggerKey, err.Error()))
	}
}

func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSendInProgress):
		return http.StatusConflict
	default:
		return http.StatusTooManyRequests
	}
}

// apiErrorStatus maps a backend failure to the status returned to the browser.
func apiErrorStatus(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
