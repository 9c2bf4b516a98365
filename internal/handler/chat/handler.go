package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/flowchat/internal/middleware"
	"github.com/zhouzirui/flowchat/internal/model/chat"
	chatService "github.com/zhouzirui/flowchat/internal/service/chat"
	"github.com/zhouzirui/flowchat/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/select", h.handleSelectSession)
			r.Post("/messages", h.handleSubmitMessage)
		})
	})
}

type stateResponse struct {
	ActiveID int            `json:"activeId"`
	Pending  bool           `json:"pending"`
	Sessions []chat.Summary `json:"sessions"`
}

func state(store *chatService.Store) stateResponse {
	return stateResponse{
		ActiveID: store.ActiveID(),
		Pending:  store.Pending(),
		Sessions: store.Summaries(),
	}
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFor(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, state(store))
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Persona string `json:"persona"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Persona == "" {
		utils.RespondError(w, http.StatusBadRequest, "persona is required")
		return
	}

	id, err := store.CreateSession(payload.Persona)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	session, err := store.Session(id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	store, id, ok := storeAndID(w, r)
	if !ok {
		return
	}

	session, err := store.Session(id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	store, id, ok := storeAndID(w, r)
	if !ok {
		return
	}

	if err := store.SelectSession(id); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state(store))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	store, id, ok := storeAndID(w, r)
	if !ok {
		return
	}

	if err := store.DeleteSession(id); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state(store))
}

func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	store, id, ok := storeAndID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.chatSvc.Submit(r.Context(), store, id, payload.Content)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	// 远端失败时 turn 中携带 notice，通知已经展示，无需重复保留。
	if turn.Notice != "" {
		store.TakeNotice()
	}
	utils.RespondJSON(w, http.StatusOK, turn)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		h.logger.Warn("request for unknown session", "error", err)
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrUnknownPersona),
		errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrInvalidRole):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrTurnInProgress):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("chat request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func storeFor(w http.ResponseWriter, r *http.Request) (*chatService.Store, bool) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "ui session unavailable")
		return nil, false
	}
	return store, true
}

func storeAndID(w http.ResponseWriter, r *http.Request) (*chatService.Store, int, bool) {
	store, ok := storeFor(w, r)
	if !ok {
		return nil, 0, false
	}

	id, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid session id")
		return nil, 0, false
	}
	return store, id, true
}
