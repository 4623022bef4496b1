package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

// CreateChat creates a chat and returns its id in Data.ID.
func (c *Client) CreateChat(ctx context.Context, chat models.ChatCreate) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPost, "/chats", chat)
}

// Chat fetches a chat by id.
func (c *Client) Chat(ctx context.Context, chatID string) Response[models.Chat] {
	return Do[models.Chat](ctx, c, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil)
}

// UpdateChatTitle renames a chat.
func (c *Client) UpdateChatTitle(ctx context.Context, chatID, title string) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPut, "/chats/"+url.PathEscape(chatID)+"/title",
		models.ChatTitleUpdate{Title: title})
}

// DeleteChat removes a chat and its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodDelete, "/chats/"+url.PathEscape(chatID), nil)
}

// ChatMessages lists the stored messages of a chat, oldest first.
func (c *Client) ChatMessages(ctx context.Context, chatID string) Response[[]models.Message] {
	return Do[[]models.Message](ctx, c, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil)
}

// RecentMessages lists the latest messages of a chat. A non-positive limit uses the backend default.
func (c *Client) RecentMessages(ctx context.Context, chatID string, limit int) Response[[]models.Message] {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/recent-messages"
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	return Do[[]models.Message](ctx, c, http.MethodGet, endpoint, nil)
}
