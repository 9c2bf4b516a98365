package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/zhouzirui/flowchat/internal/model/chat"
	"github.com/zhouzirui/flowchat/internal/model/persona"
	"github.com/zhouzirui/flowchat/internal/service/agent"
)

// Responder produces the assistant reply for a user message.
type Responder interface {
	GenerateResponse(ctx context.Context, sessionID int, p persona.Persona, history []chat.Message, userText string) (string, error)
}

// Service runs conversation turns against a Store.
type Service struct {
	responder Responder
	personas  persona.Store
	logger    *slog.Logger
}

// NewService wires a responder and persona table into a turn runner.
func NewService(responder Responder, personas persona.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{responder: responder, personas: personas, logger: logger}
}

// Submit appends the user's text to a session and asks the agent for a reply.
// Agent failures are not returned as errors: the user message stays in the
// transcript, no reply is appended and the turn carries a notice instead.
func (s *Service) Submit(ctx context.Context, store *Store, sessionID int, text string) (chat.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Turn{}, ErrEmptyMessage
	}

	if !store.beginTurn() {
		return chat.Turn{}, ErrTurnInProgress
	}
	defer store.endTurn()

	session, err := store.Session(sessionID)
	if err != nil {
		return chat.Turn{}, err
	}

	userMsg := chat.Message{Role: chat.RoleUser, Content: text}
	if err := store.AppendMessage(sessionID, userMsg.Role, userMsg.Content); err != nil {
		return chat.Turn{}, err
	}
	turn := chat.Turn{SessionID: sessionID, User: userMsg}

	p, ok := s.personas.FindByID(session.Persona)
	if !ok {
		p = persona.Persona{ID: session.Persona, Title: session.Title}
	}

	reply, err := s.responder.GenerateResponse(ctx, sessionID, p, session.Transcript, text)
	if err != nil {
		turn.Notice = describeFailure(err)
		store.SetNotice(turn.Notice)
		s.logger.Warn("agent turn failed", "ui", store.Key(), "session", sessionID, "error", err)
		return turn, nil
	}

	replyMsg := chat.Message{Role: chat.RoleAssistant, Content: reply}
	if err := store.AppendMessage(sessionID, replyMsg.Role, replyMsg.Content); err != nil {
		// The session was deleted while the agent was answering.
		s.logger.Error("dropping reply", "ui", store.Key(), "session", sessionID, "error", err)
		return turn, nil
	}
	turn.Reply = &replyMsg
	return turn, nil
}

func describeFailure(err error) string {
	var reqErr *agent.RequestError
	var formatErr *agent.ResponseFormatError
	switch {
	case errors.As(err, &reqErr):
		return "Error making API request: " + reqErr.Error()
	case errors.As(err, &formatErr):
		return "Failed to parse API response: " + formatErr.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The assistant did not answer in time."
	default:
		return "The assistant is unavailable: " + err.Error()
	}
}
