package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

// CreateAccount registers a new account.
func (c *Client) CreateAccount(ctx context.Context, account models.AccountCreate) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPost, "/accounts", account)
}

// Account fetches an account by id.
func (c *Client) Account(ctx context.Context, accountID string) Response[models.Account] {
	return Do[models.Account](ctx, c, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil)
}

// UpdateAccountSettings applies a partial settings update.
func (c *Client) UpdateAccountSettings(
	ctx context.Context,
	accountID string,
	update models.AccountSettingsUpdate,
) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPut, "/accounts/"+url.PathEscape(accountID)+"/settings", update)
}

// UpdateAccountStatistics overwrites the usage counters of an account.
func (c *Client) UpdateAccountStatistics(
	ctx context.Context,
	accountID string,
	stats models.AccountStatistics,
) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPut, "/accounts/"+url.PathEscape(accountID)+"/statistics", stats)
}

// AccountChats lists the chats of an account.
func (c *Client) AccountChats(ctx context.Context, accountID string) Response[[]models.Chat] {
	return Do[[]models.Chat](ctx, c, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/chats", nil)
}
