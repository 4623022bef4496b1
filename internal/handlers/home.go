package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

type chatTitle struct {
	ID    string
	Title string

	Active bool
}

type homePageData struct {
	Account       models.Account
	Chats         []chatTitle
	CurrentChatID string
	Messages      []models.RenderedEntry
	Backup        *models.ResponseBackup
	Error         string
}

type loginPageData struct {
	AccountID string
	Error     string
}

// HandleHome renders the chat list of the logged in account and, when chat_id is given, the
// timeline of that chat. Streams of other chats are aborted. Without a logged in account the
// login page is shown.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	accountID, ok := m.accountID(w)
	if !ok {
		return
	}
	if accountID == "" {
		m.renderLogin(w, loginPageData{})
		return
	}

	accRes := m.backend.Account(r.Context(), accountID)
	if err := accRes.Err(); err != nil {
		m.logger.Error("Failed to get account",
			slog.String("accountID", accountID),
			slog.String(errLoggerKey, err.Error()))
		m.renderLogin(w, loginPageData{AccountID: accountID, Error: accRes.Error})
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	m.abortOthers(chatID)

	chats, err := m.chats(r.Context(), accountID, chatID)
	if err != nil {
		m.logger.Error("Failed to get chats", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		Account:       accRes.Data,
		Chats:         chats,
		CurrentChatID: chatID,
	}

	if chatID != "" {
		conv := m.conversation(accountID, chatID)
		if err := conv.Refresh(r.Context()); err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
			data.Error = err.Error()
			data.Backup = m.backup(chatID)
		}
		msgs, err := renderEntries(conv.Entries())
		if err != nil {
			m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Messages = msgs
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleLogin remembers the account given in the account_id form field after checking that the
// backend knows it. There is no password: authentication is out of scope.
func (m Main) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := strings.TrimSpace(r.FormValue("account_id"))
	if accountID == "" {
		w.WriteHeader(http.StatusBadRequest)
		m.renderLogin(w, loginPageData{Error: "Account ID is required"})
		return
	}

	res := m.backend.Account(r.Context(), accountID)
	if err := res.Err(); err != nil {
		m.logger.Warn("Login refused",
			slog.String("accountID", accountID),
			slog.String(errLoggerKey, err.Error()))
		status := res.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		w.WriteHeader(status)
		m.renderLogin(w, loginPageData{AccountID: accountID, Error: res.Error})
		return
	}

	if err := m.local.RememberAccount(accountID); err != nil {
		m.logger.Error("Failed to remember account", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout forgets the account and aborts every running stream.
func (m Main) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.dropConversation("")
	if err := m.local.ForgetAccount(); err != nil {
		m.logger.Error("Failed to forget account", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Main) renderLogin(w http.ResponseWriter, data loginPageData) {
	if err := m.templates.ExecuteTemplate(w, "login.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// accountID returns the remembered account. On failure it writes the error response and
// reports false.
func (m Main) accountID(w http.ResponseWriter) (string, bool) {
	accountID, err := m.local.RememberedAccount()
	if err != nil {
		m.logger.Error("Failed to read remembered account", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return "", false
	}
	return accountID, true
}

// requireAccount is accountID for endpoints that need a logged in account.
func (m Main) requireAccount(w http.ResponseWriter) (string, bool) {
	accountID, ok := m.accountID(w)
	if !ok {
		return "", false
	}
	if accountID == "" {
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return "", false
	}
	return accountID, true
}

func (m Main) chats(ctx context.Context, accountID, activeID string) ([]chatTitle, error) {
	res := m.backend.AccountChats(ctx, accountID)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to get chats: %w", err)
	}

	chats := make([]chatTitle, len(res.Data))
	for i, ch := range res.Data {
		title := ch.Title
		if title == "" {
			title = defaultChatTitle
		}
		chats[i] = chatTitle{
			ID:     ch.ID,
			Title:  title,
			Active: ch.ID == activeID,
		}
	}
	return chats, nil
}

func (m Main) backup(chatID string) *models.ResponseBackup {
	b, found, err := m.local.ChatBackup(chatID)
	if err != nil {
		m.logger.Warn("Failed to read reply backup", slog.String(errLoggerKey, err.Error()))
		return nil
	}
	if !found {
		return nil
	}
	return &b
}

func renderEntries(entries []models.Entry) ([]models.RenderedEntry, error) {
	out := make([]models.RenderedEntry, len(entries))
	for i, e := range entries {
		re, err := models.RenderEntry(e)
		if err != nil {
			return nil, fmt.Errorf("failed to render message %s: %w", e.ID, err)
		}
		out[i] = re
	}
	return out, nil
}
