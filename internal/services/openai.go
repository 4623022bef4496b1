package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// History returns the latest stored messages of a chat, oldest first.
type History interface {
	RecentMessages(ctx context.Context, chatID string, limit int) backend.Response[[]models.Message]
}

// OpenAIParameters are the optional sampling parameters sent with every request.
type OpenAIParameters struct {
	Temperature      *float32 `yaml:"temperature"`
	TopP             *float32 `yaml:"topP"`
	MaxTokens        *int     `yaml:"maxTokens"`
	PresencePenalty  *float32 `yaml:"presencePenalty"`
	FrequencyPenalty *float32 `yaml:"frequencyPenalty"`
	Stop             []string `yaml:"stop"`
	Seed             *int     `yaml:"seed"`
}

// OpenAI streams replies straight from an OpenAI compatible chat completion endpoint, in place
// of the backend stream. It produces the same events as the backend: start, chunks, complete and,
// for the first message of a chat, a summary carrying a generated title.
type OpenAI struct {
	baseURL      string
	model        string
	systemPrompt string
	titlePrompt  string
	historySize  int

	params OpenAIParameters

	client  *goopenai.Client
	history History

	logger *slog.Logger
}

// OpenAIOption configures an OpenAI streamer.
type OpenAIOption func(*OpenAI)

// DefaultHistorySize is the number of stored messages sent as context.
const DefaultHistorySize = 10

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
	ollamaDefaultHost     = "http://localhost:11434"

	errLoggerKey = "err"
)

// WithOpenAIBaseURL points the client at an OpenAI compatible server.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(o *OpenAI) {
		o.baseURL = baseURL
	}
}

// WithHistory sends the latest size stored messages of the chat along with the new one.
func WithHistory(h History, size int) OpenAIOption {
	return func(o *OpenAI) {
		o.history = h
		if size > 0 {
			o.historySize = size
		}
	}
}

// WithTitlePrompt enables title generation for new chats with the given system prompt.
func WithTitlePrompt(prompt string) OpenAIOption {
	return func(o *OpenAI) {
		o.titlePrompt = prompt
	}
}

// WithParameters sets the sampling parameters.
func WithParameters(params OpenAIParameters) OpenAIOption {
	return func(o *OpenAI) {
		o.params = params
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = logger
	}
}

// NewOpenAI creates a new OpenAI streamer with the specified API key, model name, and system prompt.
func NewOpenAI(apiKey, model, systemPrompt string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		historySize:  DefaultHistorySize,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	o.client = goopenai.NewClientWithConfig(cfg)
	o.logger = o.logger.With(slog.String("module", "openai"))
	return o
}

// NewOpenRouter creates an OpenAI streamer for OpenRouter, which speaks the same API.
func NewOpenRouter(apiKey, model, systemPrompt string, opts ...OpenAIOption) *OpenAI {
	opts = append([]OpenAIOption{WithOpenAIBaseURL(openRouterAPIEndpoint)}, opts...)
	return NewOpenAI(apiKey, model, systemPrompt, opts...)
}

// NewOllama creates an OpenAI streamer for the OpenAI compatible endpoint of an Ollama host. An
// empty host uses the local default.
func NewOllama(host, model, systemPrompt string, opts ...OpenAIOption) *OpenAI {
	if host == "" {
		host = ollamaDefaultHost
	}
	opts = append([]OpenAIOption{WithOpenAIBaseURL(strings.TrimRight(host, "/") + "/v1")}, opts...)
	// Ollama ignores the key but the client always sends one.
	return NewOpenAI("ollama", model, systemPrompt, opts...)
}

// Stream implements the chat stream against the chat completion API. API failures are reported as
// error events, like the backend does; transport failures and cancellation are returned as errors.
func (o *OpenAI) Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		history := recentHistory(ctx, o.history, req.ConversationID, o.historySize, o.logger)
		creq := o.chatRequest(o.chatMessages(history, req.Message), true)

		stream, err := o.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			yield(o.failure(ctx, fmt.Errorf("error sending request: %w", err)))
			return
		}
		defer stream.Close()

		if !yield(models.StreamEvent{Type: models.StreamEventStart}, nil) {
			return
		}

		var reply strings.Builder
		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				yield(o.failure(ctx, fmt.Errorf("error receiving response: %w", err)))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			text := response.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			reply.WriteString(text)
			if !yield(models.StreamEvent{Type: models.StreamEventChunk, Text: text}, nil) {
				return
			}
		}

		if !yield(models.StreamEvent{Type: models.StreamEventComplete, Text: reply.String()}, nil) {
			return
		}

		if o.titlePrompt == "" || len(history) > 0 {
			return
		}
		title, err := o.GenerateTitle(ctx, req.Message)
		if err != nil {
			o.logger.Warn("Failed to generate title", slog.String(errLoggerKey, err.Error()))
			return
		}
		yield(models.StreamEvent{Type: models.StreamEventSummary, Summary: models.Summary{Title: title}}, nil)
	}
}

// GenerateTitle asks the model for a short title of a conversation that starts with message.
func (o *OpenAI) GenerateTitle(ctx context.Context, message string) (string, error) {
	msgs := []goopenai.ChatCompletionMessage{
		{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.titlePrompt,
		},
		{
			Role:    goopenai.ChatMessageRoleUser,
			Content: message,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, o.chatRequest(msgs, false))
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices found")
	}

	title := models.RemoveThinkingContent(resp.Choices[0].Message.Content)
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}

// failure turns err into what Stream yields: the context error when cancelled, an error event for
// API errors and the error itself otherwise.
func (o *OpenAI) failure(ctx context.Context, err error) (models.StreamEvent, error) {
	if ctx.Err() != nil {
		return models.StreamEvent{}, ctx.Err()
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		o.logger.Error("Chat completion failed", slog.String(errLoggerKey, err.Error()))
		msg := apiErr.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return models.StreamEvent{Type: models.StreamEventError, Message: msg}, nil
	}
	return models.StreamEvent{}, err
}

func (o *OpenAI) chatMessages(history []models.Message, message string) []goopenai.ChatCompletionMessage {
	entries := models.ExpandMessages(history)
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(entries)+2)
	if o.systemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}
	for _, e := range entries {
		role := goopenai.ChatMessageRoleUser
		content := e.Content
		if e.Role == models.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
			content = models.RemoveThinkingContent(content)
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: content,
		})
	}
	return append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: message,
	})
}

func (o *OpenAI) chatRequest(
	messages []goopenai.ChatCompletionMessage,
	stream bool,
) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   stream,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}
	if o.params.PresencePenalty != nil {
		req.PresencePenalty = *o.params.PresencePenalty
	}
	if o.params.FrequencyPenalty != nil {
		req.FrequencyPenalty = *o.params.FrequencyPenalty
	}
	if o.params.Seed != nil {
		req.Seed = o.params.Seed
	}

	return req
}
