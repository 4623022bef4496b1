package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

// CreateMessage stores a prompt/response pair. The backend requires both halves, so a pair with
// an empty half is rejected locally with status 400 and no request is made.
func (c *Client) CreateMessage(ctx context.Context, msg models.MessageCreate) Response[models.Created] {
	if msg.Text == "" || msg.Response == "" {
		c.logger.Error("Message data missing required fields",
			slog.String("chatID", msg.ChatID))
		return Response[models.Created]{
			Error:  "Missing required fields: text and response must both be present",
			Status: http.StatusBadRequest,
		}
	}
	return Do[models.Created](ctx, c, http.MethodPost, "/messages", msg)
}

// SearchMessages runs a semantic search over an account's messages.
func (c *Client) SearchMessages(ctx context.Context, query models.SearchQuery) Response[[]models.Message] {
	return Do[[]models.Message](ctx, c, http.MethodPost, "/messages/search", query)
}

// UpdateMessage changes a stored message, typically its response once streaming is over.
func (c *Client) UpdateMessage(ctx context.Context, messageID string, update models.MessageUpdate) Response[models.Created] {
	if messageID == "" {
		return Response[models.Created]{
			Error:  "Missing message ID",
			Status: http.StatusBadRequest,
		}
	}
	return Do[models.Created](ctx, c, http.MethodPut, "/messages/"+url.PathEscape(messageID), update)
}
