package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

// Models lists the model profiles the backend can serve.
func (c *Client) Models(ctx context.Context) Response[models.ModelList] {
	return Do[models.ModelList](ctx, c, http.MethodGet, "/chat/models", nil)
}

// PreloadModel asks the backend to load a model ahead of the first request.
func (c *Client) PreloadModel(ctx context.Context, modelID string) Response[models.Created] {
	return Do[models.Created](ctx, c, http.MethodPost, "/chat/models/"+url.PathEscape(modelID)+"/preload", nil)
}
