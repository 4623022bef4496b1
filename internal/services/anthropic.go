package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic streams replies straight from the Anthropic messages API, in place of the backend
// stream.
type Anthropic struct {
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	systemPrompt string
	historySize  int

	client  *http.Client
	history History

	logger *slog.Logger
}

// AnthropicOption configures an Anthropic streamer.
type AnthropicOption func(*Anthropic)

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicAPIVersion  = "2023-06-01"

	// DefaultAnthropicMaxTokens is used when no token limit is configured.
	DefaultAnthropicMaxTokens = 1024
)

// WithAnthropicBaseURL overrides the API endpoint.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(a *Anthropic) {
		a.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAnthropicSystemPrompt sets the system prompt.
func WithAnthropicSystemPrompt(prompt string) AnthropicOption {
	return func(a *Anthropic) {
		a.systemPrompt = prompt
	}
}

// WithAnthropicHistory sends the latest size stored messages of the chat along with the new one.
func WithAnthropicHistory(h History, size int) AnthropicOption {
	return func(a *Anthropic) {
		a.history = h
		if size > 0 {
			a.historySize = size
		}
	}
}

// WithAnthropicHTTPClient sets the HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(a *Anthropic) {
		a.client = hc
	}
}

// WithAnthropicLogger sets the logger.
func WithAnthropicLogger(logger *slog.Logger) AnthropicOption {
	return func(a *Anthropic) {
		a.logger = logger
	}
}

// NewAnthropic creates a new Anthropic streamer with the specified API key, model name, and maximum
// token limit. A non-positive maxTokens uses DefaultAnthropicMaxTokens.
func NewAnthropic(apiKey, model string, maxTokens int, opts ...AnthropicOption) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}
	a := &Anthropic{
		apiKey:      apiKey,
		baseURL:     anthropicAPIEndpoint,
		model:       model,
		maxTokens:   maxTokens,
		historySize: DefaultHistorySize,
		client:      &http.Client{},
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("module", "anthropic"))
	return a
}

// Stream implements the chat stream against the messages API. API errors, whether returned as the
// response status or inside the stream, are reported as error events.
func (a *Anthropic) Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		history := recentHistory(ctx, a.history, req.ConversationID, a.historySize, a.logger)

		jsonBody, err := json.Marshal(anthropicChatRequest{
			Model:     a.model,
			Messages:  anthropicMessages(history, req.Message),
			System:    a.systemPrompt,
			MaxTokens: a.maxTokens,
			Stream:    true,
		})
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error marshaling request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(jsonBody))
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error creating request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", a.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

		resp, err := a.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				yield(models.StreamEvent{}, ctx.Err())
				return
			}
			yield(models.StreamEvent{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			yield(a.errorEvent(body, fmt.Sprintf("HTTP error %d", resp.StatusCode)), nil)
			return
		}

		if !yield(models.StreamEvent{Type: models.StreamEventStart}, nil) {
			return
		}

		var reply strings.Builder
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if ctx.Err() != nil {
					yield(models.StreamEvent{}, ctx.Err())
					return
				}
				yield(models.StreamEvent{}, fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				yield(a.errorEvent([]byte(ev.Data), "Unknown error"), nil)
				return
			case "message_stop":
				yield(models.StreamEvent{Type: models.StreamEventComplete, Text: reply.String()}, nil)
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					a.logger.Warn("Skipping malformed delta", slog.String(errLoggerKey, err.Error()))
					continue
				}
				if res.Delta.Text == "" {
					continue
				}
				reply.WriteString(res.Delta.Text)
				if !yield(models.StreamEvent{Type: models.StreamEventChunk, Text: res.Delta.Text}, nil) {
					return
				}
			default:
				continue
			}
		}
		if ctx.Err() != nil {
			yield(models.StreamEvent{}, ctx.Err())
		}
	}
}

func (a *Anthropic) errorEvent(body []byte, fallback string) models.StreamEvent {
	msg := fallback
	var e anthropicError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	a.logger.Error("Anthropic request failed", slog.String(errLoggerKey, msg))
	return models.StreamEvent{Type: models.StreamEventError, Message: msg}
}

// anthropicMessages builds the conversation for the messages API, which wants user and assistant
// turns to alternate: consecutive turns of the same role are joined.
func anthropicMessages(history []models.Message, message string) []anthropicMessage {
	var msgs []anthropicMessage
	add := func(role, content string) {
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n\n" + content
			return
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: content})
	}

	for _, e := range models.ExpandMessages(history) {
		if e.Role == models.RoleAssistant {
			if len(msgs) == 0 {
				continue
			}
			add(string(models.RoleAssistant), models.RemoveThinkingContent(e.Content))
			continue
		}
		add(string(models.RoleUser), e.Content)
	}
	add(string(models.RoleUser), message)
	return msgs
}

// recentHistory loads the context of a chat for the direct providers. Failures are logged and the
// message is sent without context.
func recentHistory(ctx context.Context, h History, chatID string, size int, logger *slog.Logger) []models.Message {
	if h == nil || chatID == "" {
		return nil
	}
	res := h.RecentMessages(ctx, chatID, size)
	if err := res.Err(); err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn("Failed to load history, sending message without context",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()),
			)
		}
		return nil
	}
	return res.Data
}
