package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

type searchResult struct {
	ChatID   string
	Text     string
	Response string
}

type searchData struct {
	Query   string
	Results []searchResult
	Error   string
}

type modelsData struct {
	Models []models.Model
	Error  string
}

const searchSnippetLength = 160

// HandleSearch searches the messages of the logged in account for the "q" query parameter and
// renders the matches.
func (m Main) HandleSearch(w http.ResponseWriter, r *http.Request) {
	accountID, ok := m.requireAccount(w)
	if !ok {
		return
	}

	data := searchData{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if data.Query != "" {
		res := m.backend.SearchMessages(r.Context(), models.SearchQuery{
			AccountID: accountID,
			Query:     data.Query,
		})
		if err := res.Err(); err != nil {
			m.logger.Error("Failed to search messages", slog.String(errLoggerKey, err.Error()))
			data.Error = res.Error
		}
		for _, msg := range res.Data {
			data.Results = append(data.Results, searchResult{
				ChatID:   msg.ChatID,
				Text:     snippet(msg.Text),
				Response: snippet(models.RemoveThinkingContent(msg.Response)),
			})
		}
	}

	if err := m.templates.ExecuteTemplate(w, "search_results", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleModels renders the models the backend offers.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	var data modelsData
	res := m.backend.Models(r.Context())
	if err := res.Err(); err != nil {
		m.logger.Error("Failed to list models", slog.String(errLoggerKey, err.Error()))
		data.Error = res.Error
	}
	data.Models = res.Data.Models

	if err := m.templates.ExecuteTemplate(w, "model_list", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandlePreloadModel asks the backend to load the model given by the model_id form field so the
// first reply does not wait for it.
func (m Main) HandlePreloadModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	modelID := r.FormValue("model_id")
	if modelID == "" {
		http.Error(w, "Model ID is required", http.StatusBadRequest)
		return
	}

	if err := m.backend.PreloadModel(r.Context(), modelID).Err(); err != nil {
		m.logger.Error("Failed to preload model", slog.String("modelID", modelID), slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), apiErrorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if models.IsPlaceholder(s) {
		return ""
	}
	r := []rune(s)
	if len(r) <= searchSnippetLength {
		return s
	}
	return string(r[:searchSnippetLength]) + "…"
}
