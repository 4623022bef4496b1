package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

type streamWireEvent struct {
	Type models.StreamEventType `json:"type"`
	Data json.RawMessage        `json:"data"`
}

type streamWireData struct {
	Text    string   `json:"text"`
	Message string   `json:"message"`
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// maxStreamEventSize bounds a single event. A complete event repeats the whole reply, so the
// default 64KB of go-sse is too small for long answers.
const maxStreamEventSize = 4 << 20

// Stream posts the message to the streaming endpoint and yields the decoded events. Exactly one
// request is made and it is never retried. Events that cannot be decoded are logged and skipped.
// If ctx is cancelled while reading, the context error is yielded.
func (c *Client) Stream(ctx context.Context, req models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		body, err := json.Marshal(req)
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error marshaling request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/http/stream", bytes.NewReader(body))
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error creating request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			text, _ := io.ReadAll(resp.Body)
			msg := strings.TrimSpace(string(text))
			if msg == "" {
				msg = fmt.Sprintf("HTTP error %d", resp.StatusCode)
			}
			yield(models.StreamEvent{}, &APIError{Status: resp.StatusCode, Message: msg})
			return
		}

		for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{MaxEventSize: maxStreamEventSize}) {
			if err != nil {
				if ctx.Err() != nil {
					yield(models.StreamEvent{}, ctx.Err())
					return
				}
				yield(models.StreamEvent{}, fmt.Errorf("error reading stream: %w", err))
				return
			}

			se, ok := decodeStreamEvent(ev.Data)
			if !ok {
				c.logger.Warn("Skipping undecodable stream event", slog.String("data", ev.Data))
				continue
			}
			if !yield(se, nil) {
				return
			}
		}

		// A cancelled body may end the read without an error.
		if ctx.Err() != nil {
			yield(models.StreamEvent{}, ctx.Err())
		}
	}
}

func decodeStreamEvent(data string) (models.StreamEvent, bool) {
	var we streamWireEvent
	if err := json.Unmarshal([]byte(data), &we); err != nil {
		return models.StreamEvent{}, false
	}

	var d streamWireData
	if len(we.Data) > 0 {
		if err := json.Unmarshal(we.Data, &d); err != nil {
			return models.StreamEvent{}, false
		}
	}

	ev := models.StreamEvent{Type: we.Type}
	switch we.Type {
	case models.StreamEventStart:
	case models.StreamEventChunk, models.StreamEventComplete:
		ev.Text = d.Text
	case models.StreamEventSummary:
		ev.Summary = models.Summary{Title: d.Title, Bullets: d.Bullets}
	case models.StreamEventError:
		ev.Message = d.Message
		if ev.Message == "" {
			ev.Message = "Unknown error"
		}
	default:
		return models.StreamEvent{}, false
	}
	return ev, true
}
