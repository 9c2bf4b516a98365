package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/flowchat/internal/middleware"
	"github.com/zhouzirui/flowchat/internal/model/chat"
	"github.com/zhouzirui/flowchat/internal/model/persona"
	"github.com/zhouzirui/flowchat/internal/service/agent"
	chatservice "github.com/zhouzirui/flowchat/internal/service/chat"
)

type stubResponder struct {
	reply string
	err   error
}

func (s stubResponder) GenerateResponse(context.Context, int, persona.Persona, []chat.Message, string) (string, error) {
	return s.reply, s.err
}

func setupRouter(responder chatservice.Responder) (*chi.Mux, *chatservice.Store) {
	personas := persona.NewMemoryStore(persona.Seed())
	store := chatservice.NewStore("test", personas, nil)
	svc := chatservice.NewService(responder, personas, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithStore(req.Context(), store)))
		})
	})
	New(svc, nil).RegisterRoutes(r)
	return r, store
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionValidPersona(t *testing.T) {
	r, store := setupRouter(stubResponder{})

	resp := doJSON(r, http.MethodPost, "/sessions", map[string]string{"persona": "technical"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if session.ID != 2 || session.Persona != persona.Technical || len(session.Transcript) != 1 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if store.ActiveID() != 2 {
		t.Fatalf("new session should be active, got %d", store.ActiveID())
	}
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _ := setupRouter(stubResponder{})

	resp := doJSON(r, http.MethodPost, "/sessions", map[string]string{"persona": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionMissingPersona(t *testing.T) {
	r, _ := setupRouter(stubResponder{})

	resp := doJSON(r, http.MethodPost, "/sessions", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListSessions(t *testing.T) {
	r, store := setupRouter(stubResponder{})
	store.CreateSession(persona.Manager)

	resp := doJSON(r, http.MethodGet, "/sessions", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var got stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got.ActiveID != 2 || len(got.Sessions) != 2 {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestSelectAndDeleteSession(t *testing.T) {
	r, store := setupRouter(stubResponder{})
	store.CreateSession(persona.Manager)
	store.CreateSession(persona.Technical)

	resp := doJSON(r, http.MethodPost, "/sessions/1/select", nil)
	if resp.Code != http.StatusOK || store.ActiveID() != 1 {
		t.Fatalf("select failed: %d active=%d", resp.Code, store.ActiveID())
	}

	resp = doJSON(r, http.MethodDelete, "/sessions/1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got.ActiveID != 3 {
		t.Fatalf("expected highest remaining id 3, got %d", got.ActiveID)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	r, _ := setupRouter(stubResponder{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sessions/9"},
		{http.MethodPost, "/sessions/9/select"},
		{http.MethodDelete, "/sessions/9"},
	} {
		if resp := doJSON(r, tc.method, tc.path, nil); resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, resp.Code)
		}
	}

	resp := doJSON(r, http.MethodPost, "/sessions/9/messages", map[string]string{"content": "hi"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestInvalidSessionID(t *testing.T) {
	r, _ := setupRouter(stubResponder{})

	if resp := doJSON(r, http.MethodGet, "/sessions/abc", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSubmitMessage(t *testing.T) {
	r, store := setupRouter(stubResponder{reply: "hi there"})

	resp := doJSON(r, http.MethodPost, "/sessions/1/messages", map[string]string{"content": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var turn chat.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if turn.Reply == nil || turn.Reply.Content != "hi there" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if got := len(store.Active().Transcript); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestSubmitMessageAgentFailure(t *testing.T) {
	r, store := setupRouter(stubResponder{err: &agent.RequestError{Op: "agent call", Err: errors.New("connection refused")}})

	resp := doJSON(r, http.MethodPost, "/sessions/1/messages", map[string]string{"content": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("remote failures must not be server errors, got %d", resp.Code)
	}

	var turn chat.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if turn.Reply != nil || turn.Notice == "" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if store.TakeNotice() != "" {
		t.Fatal("notice delivered in the response should not linger")
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	r, _ := setupRouter(stubResponder{})

	resp := doJSON(r, http.MethodPost, "/sessions/1/messages", map[string]string{"content": "  "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
