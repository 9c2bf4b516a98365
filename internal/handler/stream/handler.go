package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/flowchat/internal/middleware"
	chatService "github.com/zhouzirui/flowchat/internal/service/chat"
	"github.com/zhouzirui/flowchat/pkg/utils"
)

// Handler reports the progress of one turn via Server-Sent Events: a start
// event while the agent is working, then the reply or a notice, then end.
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// Event is the payload of every SSE frame.
type Event struct {
	SessionID int    `json:"sessionId"`
	Status    string `json:"status,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Notice    string `json:"notice,omitempty"`
	Error     string `json:"error,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
}

// RegisterRoutes mounts the stream endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "ui session unavailable")
		return
	}

	sessionID, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if _, err := store.Session(sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "start", Event{SessionID: sessionID, Status: "working"}); err != nil {
		return
	}

	turn, err := h.chatSvc.Submit(r.Context(), store, sessionID, message)
	if err != nil {
		if !errors.Is(err, chatService.ErrTurnInProgress) {
			h.logger.Warn("stream turn rejected", "session", sessionID, "error", err)
		}
		utils.SendSSEEvent(w, flusher, "error", Event{SessionID: sessionID, Error: err.Error()})
		return
	}

	if turn.Reply != nil {
		utils.SendSSEEvent(w, flusher, "reply", Event{
			SessionID: sessionID,
			Role:      string(turn.Reply.Role),
			Content:   turn.Reply.Content,
		})
	} else if turn.Notice != "" {
		store.TakeNotice()
		utils.SendSSEEvent(w, flusher, "notice", Event{SessionID: sessionID, Notice: turn.Notice})
	}

	utils.SendSSEEvent(w, flusher, "end", Event{SessionID: sessionID, Finished: true})
}
