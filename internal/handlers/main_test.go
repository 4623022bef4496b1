package handlers_test

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/handlers"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
)

type mockBackend struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	chats    []models.Chat
	messages map[string][]models.Message
	models   []models.Model
	reply    []string
	listErr  string
	deleted  []string
	nextID   int

	preloaded []string

	// hold, when set, receives once the reply chunks are sent; the stream then stays open until
	// it is cancelled, which closes released.
	hold     chan struct{}
	released chan struct{}
}

type mockLocal struct {
	mu        sync.Mutex
	accountID string
	backups   map[string]models.ResponseBackup
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		accounts: map[string]models.Account{"acc-1": {ID: "acc-1", Username: "ada"}},
		chats:    []models.Chat{{ID: "1", AccountID: "acc-1", Title: "Test Chat"}},
		messages: map[string][]models.Message{
			"1": {{ID: "m1", ChatID: "1", Text: "Hello", Response: "Hi there"}},
		},
		models: []models.Model{{ID: "m", Name: "Tiny Model"}},
		reply:  []string{"AI ", "response"},
	}
}

func newMain(t *testing.T, b *mockBackend, local *mockLocal) handlers.Main {
	t.Helper()
	main, err := handlers.NewMain(b, local, nil, handlers.WithThrottle(time.Millisecond))
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	t.Cleanup(func() { _ = main.Shutdown(context.Background()) })
	return main
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNewMain(t *testing.T) {
	main, err := handlers.NewMain(newMockBackend(), &mockLocal{}, nil)
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}

	if main.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}

	// Without a Stream method the backend cannot serve replies on its own.
	noStream := struct{ handlers.Backend }{newMockBackend()}
	if _, err := handlers.NewMain(noStream, &mockLocal{}, nil); err == nil {
		t.Error("NewMain() without a streamer should fail")
	}
}

func TestHandleHome(t *testing.T) {
	b := newMockBackend()
	local := &mockLocal{accountID: "acc-1"}
	main := newMain(t, b, local)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Home page without chat",
			url:        "/",
			wantStatus: http.StatusOK,
			wantBody:   "Test Chat", // Should contain chat title
		},
		{
			name:       "Home page with chat",
			url:        "/?chat_id=1",
			wantStatus: http.StatusOK,
			wantBody:   "Hi there", // Should contain message content
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()

			main.HandleHome(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleHome() status = %v, want %v", w.Code, tt.wantStatus)
			}

			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("HandleHome() body = %v, want to contain %v", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleHomeShowsBackupWhenMessagesFail(t *testing.T) {
	b := newMockBackend()
	b.listErr = "Connection error: refused. Please check your network connection and try again."
	local := &mockLocal{accountID: "acc-1"}
	if err := local.BackupResponse("1", "Kept reply"); err != nil {
		t.Fatal(err)
	}
	main := newMain(t, b, local)

	w := httptest.NewRecorder()
	main.HandleHome(w, httptest.NewRequest(http.MethodGet, "/?chat_id=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}
	for _, want := range []string{"Connection error", "Kept reply"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("HandleHome() body does not contain %q", want)
		}
	}
}

func TestHandleHomeWithoutAccount(t *testing.T) {
	main := newMain(t, newMockBackend(), &mockLocal{})

	w := httptest.NewRecorder()
	main.HandleHome(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `name="account_id"`) {
		t.Error("HandleHome() should render the login form")
	}
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name        string
		accountID   string
		wantStatus  int
		wantAccount string
	}{
		{
			name:       "Missing account",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown account",
			accountID:  "nobody",
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "Known account",
			accountID:   "acc-1",
			wantStatus:  http.StatusSeeOther,
			wantAccount: "acc-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &mockLocal{}
			main := newMain(t, newMockBackend(), local)

			w := httptest.NewRecorder()
			main.HandleLogin(w, postForm("/login", url.Values{"account_id": {tt.accountID}}))

			if w.Code != tt.wantStatus {
				t.Errorf("HandleLogin() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if got, _ := local.RememberedAccount(); got != tt.wantAccount {
				t.Errorf("remembered account = %q, want %q", got, tt.wantAccount)
			}
		})
	}
}

func TestHandleLogout(t *testing.T) {
	local := &mockLocal{accountID: "acc-1"}
	main := newMain(t, newMockBackend(), local)

	w := httptest.NewRecorder()
	main.HandleLogout(w, postForm("/logout", nil))

	if w.Code != http.StatusSeeOther {
		t.Errorf("HandleLogout() status = %v, want %v", w.Code, http.StatusSeeOther)
	}
	if got, _ := local.RememberedAccount(); got != "" {
		t.Errorf("remembered account = %q after logout", got)
	}
}

func TestHandleChats(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		message    string
		chatID     string
		wantStatus int
		wantBody   string
		// wantStoredIn is the chat whose reply is stored once the stream completes.
		wantStoredIn string
		wantStored   int
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Empty message",
			method:     http.MethodPost,
			message:    "   ",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "New chat",
			method:       http.MethodPost,
			message:      "Hello",
			wantStatus:   http.StatusOK,
			wantBody:     `id="chatbox"`,
			wantStoredIn: "chat-1",
			wantStored:   1,
		},
		{
			name:         "Existing chat",
			method:       http.MethodPost,
			message:      "How are you",
			chatID:       "1",
			wantStatus:   http.StatusOK,
			wantBody:     "sse-connect",
			wantStoredIn: "1",
			wantStored:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMockBackend()
			main := newMain(t, b, &mockLocal{accountID: "acc-1"})

			req := postForm("/chats", url.Values{"message": {tt.message}, "chat_id": {tt.chatID}})
			req.Method = tt.method
			w := httptest.NewRecorder()

			main.HandleChats(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleChats() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("HandleChats() body = %v, want to contain %v", w.Body.String(), tt.wantBody)
			}

			if tt.wantStoredIn == "" {
				if got := b.chatCount(); got != 1 {
					t.Errorf("chat count = %d, want 1", got)
				}
				return
			}
			if tt.chatID == "" {
				if got := b.chatTitle(tt.wantStoredIn); got != "New Chat" {
					t.Errorf("new chat title = %q, want %q", got, "New Chat")
				}
			}

			// The reply is stored in the background once the stream completes.
			waitForMessages(t, b, tt.wantStoredIn, tt.wantStored)
			if got := b.lastResponse(tt.wantStoredIn); got != "AI response" {
				t.Errorf("stored response = %q, want %q", got, "AI response")
			}
		})
	}
}

func TestHandleChatsRejectsRapidResend(t *testing.T) {
	b := newMockBackend()
	main, err := handlers.NewMain(b, &mockLocal{accountID: "acc-1"}, nil, handlers.WithThrottle(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer main.Shutdown(context.Background())

	send := func(msg string) int {
		w := httptest.NewRecorder()
		main.HandleChats(w, postForm("/chats", url.Values{"message": {msg}, "chat_id": {"1"}}))
		return w.Code
	}

	if code := send("first"); code != http.StatusOK {
		t.Fatalf("first send status = %v, want %v", code, http.StatusOK)
	}
	code := send("second")
	if code != http.StatusConflict && code != http.StatusTooManyRequests {
		t.Errorf("second send status = %v, want %v or %v", code, http.StatusConflict, http.StatusTooManyRequests)
	}
}

func TestHandleChatsRejectsRapidResendToNewChat(t *testing.T) {
	b := newMockBackend()
	main, err := handlers.NewMain(b, &mockLocal{accountID: "acc-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer main.Shutdown(context.Background())

	var codes []int
	for range 2 {
		w := httptest.NewRecorder()
		main.HandleChats(w, postForm("/chats", url.Values{"message": {"same text"}}))
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK {
		t.Fatalf("first send status = %v, want %v", codes[0], http.StatusOK)
	}
	if codes[1] != http.StatusConflict && codes[1] != http.StatusTooManyRequests {
		t.Errorf("second send status = %v, want %v or %v", codes[1], http.StatusConflict, http.StatusTooManyRequests)
	}
	if got := b.chatCount(); got != 2 {
		t.Errorf("chat count = %d, want 2", got)
	}

	waitForMessages(t, b, "chat-1", 1)
	time.Sleep(50 * time.Millisecond)
	if got := b.totalMessages(); got != 2 {
		t.Errorf("stored messages = %d, want 2", got)
	}
}

func TestHandleChatsGuardSpansChats(t *testing.T) {
	b := newMockBackend()
	main, err := handlers.NewMain(b, &mockLocal{accountID: "acc-1"}, nil, handlers.WithThrottle(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer main.Shutdown(context.Background())

	w := httptest.NewRecorder()
	main.HandleChats(w, postForm("/chats", url.Values{"message": {"first"}, "chat_id": {"1"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("first send status = %v, want %v", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	main.HandleChats(w, postForm("/chats", url.Values{"message": {"second"}}))
	if w.Code != http.StatusConflict && w.Code != http.StatusTooManyRequests {
		t.Errorf("send to a new chat status = %v, want %v or %v", w.Code, http.StatusConflict, http.StatusTooManyRequests)
	}
	if got := b.chatCount(); got != 1 {
		t.Errorf("chat count = %d, want 1", got)
	}
}

func waitForMessages(t *testing.T, b *mockBackend, chatID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.messageCount(chatID) < n {
		if time.Now().After(deadline) {
			t.Fatalf("messages of chat %s = %d, want %d", chatID, b.messageCount(chatID), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConversationOfOtherAccountIsAborted(t *testing.T) {
	b := newMockBackend()
	b.accounts["acc-2"] = models.Account{ID: "acc-2", Username: "grace"}
	b.hold = make(chan struct{}, 1)
	b.released = make(chan struct{})
	local := &mockLocal{accountID: "acc-1"}
	main := newMain(t, b, local)

	w := httptest.NewRecorder()
	main.HandleChats(w, postForm("/chats", url.Values{"message": {"Hello"}, "chat_id": {"1"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("HandleChats() status = %v, want %v", w.Code, http.StatusOK)
	}
	select {
	case <-b.hold:
	case <-time.After(2 * time.Second):
		t.Fatal("reply did not start streaming")
	}

	_ = local.RememberAccount("acc-2")
	w = httptest.NewRecorder()
	main.HandleHome(w, httptest.NewRequest(http.MethodGet, "/?chat_id=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}

	select {
	case <-b.released:
	case <-time.After(2 * time.Second):
		t.Fatal("stream of the previous account was not aborted")
	}
	if got := b.messageCount("1"); got != 1 {
		t.Errorf("messages of chat 1 = %d, want 1", got)
	}
}

func TestHandleChatsRequiresLogin(t *testing.T) {
	main := newMain(t, newMockBackend(), &mockLocal{})

	w := httptest.NewRecorder()
	main.HandleChats(w, postForm("/chats", url.Values{"message": {"Hello"}}))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("HandleChats() status = %v, want %v", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleAbort(t *testing.T) {
	main := newMain(t, newMockBackend(), &mockLocal{accountID: "acc-1"})

	w := httptest.NewRecorder()
	main.HandleAbort(w, postForm("/chats/abort", url.Values{"chat_id": {"1"}}))
	if w.Code != http.StatusNoContent {
		t.Errorf("HandleAbort() status = %v, want %v", w.Code, http.StatusNoContent)
	}

	w = httptest.NewRecorder()
	main.HandleAbort(w, postForm("/chats/abort", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("HandleAbort() without chat status = %v, want %v", w.Code, http.StatusBadRequest)
	}
}

func TestHandleDeleteChat(t *testing.T) {
	b := newMockBackend()
	local := &mockLocal{accountID: "acc-1"}
	if err := local.BackupResponse("1", "kept"); err != nil {
		t.Fatal(err)
	}
	main := newMain(t, b, local)

	req := postForm("/chats/delete", url.Values{"chat_id": {"1"}})
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()
	main.HandleDeleteChat(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("HandleDeleteChat() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("HX-Redirect"); got != "/" {
		t.Errorf("HX-Redirect = %q, want %q", got, "/")
	}
	if !slices.Equal(b.deleted, []string{"1"}) {
		t.Errorf("deleted chats = %v", b.deleted)
	}
	if _, found, _ := local.ChatBackup("1"); found {
		t.Error("backup of the deleted chat should be removed")
	}
}

func TestHandleRenameChat(t *testing.T) {
	b := newMockBackend()
	main := newMain(t, b, &mockLocal{accountID: "acc-1"})

	w := httptest.NewRecorder()
	main.HandleRenameChat(w, postForm("/chats/title", url.Values{"chat_id": {"1"}, "title": {" "}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("HandleRenameChat() empty title status = %v, want %v", w.Code, http.StatusBadRequest)
	}

	w = httptest.NewRecorder()
	main.HandleRenameChat(w, postForm("/chats/title", url.Values{"chat_id": {"1"}, "title": {"Renamed"}}))
	if w.Code != http.StatusNoContent {
		t.Errorf("HandleRenameChat() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if got := b.chatTitle("1"); got != "Renamed" {
		t.Errorf("chat title = %q, want %q", got, "Renamed")
	}
}

func TestHandleSearchAndModels(t *testing.T) {
	main := newMain(t, newMockBackend(), &mockLocal{accountID: "acc-1"})

	w := httptest.NewRecorder()
	main.HandleSearch(w, httptest.NewRequest(http.MethodGet, "/search?q=hello", nil))
	if w.Code != http.StatusOK {
		t.Errorf("HandleSearch() status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Hi there") {
		t.Errorf("HandleSearch() body = %v, want to contain the match", w.Body.String())
	}

	w = httptest.NewRecorder()
	main.HandleModels(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	if !strings.Contains(w.Body.String(), "Tiny Model") {
		t.Errorf("HandleModels() body = %v, want to contain the model name", w.Body.String())
	}
}

func TestHandlePreloadModel(t *testing.T) {
	b := newMockBackend()
	main := newMain(t, b, &mockLocal{accountID: "acc-1"})

	tests := []struct {
		name       string
		method     string
		modelID    string
		wantStatus int
	}{
		{name: "Invalid method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "Missing model", method: http.MethodPost, wantStatus: http.StatusBadRequest},
		{name: "Unknown model", method: http.MethodPost, modelID: "huge", wantStatus: http.StatusNotFound},
		{name: "Known model", method: http.MethodPost, modelID: "m", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := postForm("/models/preload", url.Values{"model_id": {tt.modelID}})
			req.Method = tt.method
			w := httptest.NewRecorder()

			main.HandlePreloadModel(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandlePreloadModel() status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}

	if !slices.Equal(b.preloaded, []string{"m"}) {
		t.Errorf("preloaded = %v, want [m]", b.preloaded)
	}

	w := httptest.NewRecorder()
	main.HandleModels(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	if !strings.Contains(w.Body.String(), `hx-post="/models/preload"`) {
		t.Errorf("HandleModels() body = %v, want a preload action", w.Body.String())
	}
}

func (m *mockBackend) Stream(ctx context.Context, _ models.StreamRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		if !yield(models.StreamEvent{Type: models.StreamEventStart}, nil) {
			return
		}
		for _, text := range m.reply {
			if !yield(models.StreamEvent{Type: models.StreamEventChunk, Text: text}, nil) {
				return
			}
		}
		if m.hold != nil {
			m.hold <- struct{}{}
			<-ctx.Done()
			close(m.released)
			yield(models.StreamEvent{}, ctx.Err())
			return
		}
		yield(models.StreamEvent{Type: models.StreamEventComplete}, nil)
	}
}

func (m *mockBackend) Account(_ context.Context, accountID string) backend.Response[models.Account] {
	acc, ok := m.accounts[accountID]
	if !ok {
		return backend.Response[models.Account]{Error: "Account not found", Status: http.StatusNotFound}
	}
	return backend.Response[models.Account]{Data: acc, Status: http.StatusOK}
}

func (m *mockBackend) AccountChats(_ context.Context, accountID string) backend.Response[[]models.Chat] {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chats []models.Chat
	for _, ch := range m.chats {
		if ch.AccountID == accountID {
			chats = append(chats, ch)
		}
	}
	return backend.Response[[]models.Chat]{Data: chats, Status: http.StatusOK}
}

func (m *mockBackend) Chat(_ context.Context, chatID string) backend.Response[models.Chat] {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.chats {
		if ch.ID == chatID {
			return backend.Response[models.Chat]{Data: ch, Status: http.StatusOK}
		}
	}
	return backend.Response[models.Chat]{Error: "Chat not found", Status: http.StatusNotFound}
}

func (m *mockBackend) CreateChat(_ context.Context, create models.ChatCreate) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("chat-%d", m.nextID)
	m.chats = append(m.chats, models.Chat{ID: id, AccountID: create.AccountID, Title: create.Title})
	return backend.Response[models.Created]{Data: models.Created{ID: id}, Status: http.StatusCreated}
}

func (m *mockBackend) UpdateChatTitle(_ context.Context, chatID, title string) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := slices.IndexFunc(m.chats, func(c models.Chat) bool { return c.ID == chatID })
	if idx == -1 {
		return backend.Response[models.Created]{Error: "Chat not found", Status: http.StatusNotFound}
	}
	m.chats[idx].Title = title
	return backend.Response[models.Created]{Data: models.Created{ID: chatID}, Status: http.StatusOK}
}

func (m *mockBackend) DeleteChat(_ context.Context, chatID string) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, chatID)
	m.chats = slices.DeleteFunc(m.chats, func(c models.Chat) bool { return c.ID == chatID })
	return backend.Response[models.Created]{Data: models.Created{ID: chatID}, Status: http.StatusOK}
}

func (m *mockBackend) CreateMessage(_ context.Context, msg models.MessageCreate) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], models.Message{
		ID:       id,
		ChatID:   msg.ChatID,
		Text:     msg.Text,
		Response: msg.Response,
	})
	return backend.Response[models.Created]{Data: models.Created{ID: id}, Status: http.StatusCreated}
}

func (m *mockBackend) ChatMessages(_ context.Context, chatID string) backend.Response[[]models.Message] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != "" {
		return backend.Response[[]models.Message]{Error: m.listErr}
	}
	return backend.Response[[]models.Message]{Data: slices.Clone(m.messages[chatID]), Status: http.StatusOK}
}

func (m *mockBackend) SearchMessages(_ context.Context, query models.SearchQuery) backend.Response[[]models.Message] {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []models.Message
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if strings.Contains(strings.ToLower(msg.Text), strings.ToLower(query.Query)) {
				found = append(found, msg)
			}
		}
	}
	return backend.Response[[]models.Message]{Data: found, Status: http.StatusOK}
}

func (m *mockBackend) Models(_ context.Context) backend.Response[models.ModelList] {
	return backend.Response[models.ModelList]{Data: models.ModelList{Models: m.models}, Status: http.StatusOK}
}

func (m *mockBackend) PreloadModel(_ context.Context, modelID string) backend.Response[models.Created] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.ContainsFunc(m.models, func(md models.Model) bool { return md.ID == modelID }) {
		return backend.Response[models.Created]{Error: "Model not found", Status: http.StatusNotFound}
	}
	m.preloaded = append(m.preloaded, modelID)
	return backend.Response[models.Created]{Data: models.Created{ID: modelID}, Status: http.StatusOK}
}

func (m *mockBackend) chatTitle(chatID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.chats {
		if ch.ID == chatID {
			return ch.Title
		}
	}
	return ""
}

func (m *mockBackend) messageCount(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[chatID])
}

func (m *mockBackend) chatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats)
}

func (m *mockBackend) totalMessages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msgs := range m.messages {
		n += len(msgs)
	}
	return n
}

func (m *mockBackend) lastResponse(chatID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Response
}

func (l *mockLocal) RememberAccount(accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountID = accountID
	return nil
}

func (l *mockLocal) RememberedAccount() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountID, nil
}

func (l *mockLocal) ForgetAccount() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountID = ""
	return nil
}

func (l *mockLocal) BackupResponse(chatID, response string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backups == nil {
		l.backups = make(map[string]models.ResponseBackup)
	}
	l.backups[chatID] = models.ResponseBackup{ChatID: chatID, Response: response, SavedAt: time.Now()}
	return nil
}

func (l *mockLocal) ChatBackup(chatID string) (models.ResponseBackup, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.backups[chatID]
	return b, ok, nil
}

func (l *mockLocal) DeleteChatBackup(chatID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.backups, chatID)
	return nil
}
