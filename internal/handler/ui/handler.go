package ui

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/flowchat/internal/middleware"
	"github.com/zhouzirui/flowchat/internal/model/chat"
	"github.com/zhouzirui/flowchat/internal/model/persona"
	chatService "github.com/zhouzirui/flowchat/internal/service/chat"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler renders the browser chat page and turns form posts into store operations.
type Handler struct {
	chatSvc  *chatService.Service
	personas persona.Store
	logger   *slog.Logger
}

// New 创建页面处理器
func New(chatSvc *chatService.Service, personas persona.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, personas: personas, logger: logger}
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/chats", h.handleCreate)
	r.Route("/chats/{sessionID}", func(r chi.Router) {
		r.Post("/select", h.withSessionID(h.handleSelect))
		r.Post("/delete", h.withSessionID(h.handleDelete))
		r.Post("/messages", h.withSessionID(h.handleSubmit))
	})
}

type pageData struct {
	Personas []persona.Persona
	Sessions []chat.Summary
	Active   chat.Session
	Notice   string
	Pending  bool
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		http.Error(w, "ui session unavailable", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Personas: h.personas.List(),
		Sessions: store.Summaries(),
		Active:   store.Active(),
		Notice:   store.TakeNotice(),
		Pending:  store.Pending(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("render page", "error", err)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		http.Error(w, "ui session unavailable", http.StatusInternalServerError)
		return
	}

	if _, err := store.CreateSession(r.PostFormValue("persona")); err != nil {
		h.logger.Warn("create chat", "error", err)
		store.SetNotice("Unknown persona, pick one from the list.")
	}
	redirectHome(w, r)
}

// sessionAction is bound to the session id parsed from its own route, so each
// list entry's form acts on exactly the id it was rendered with.
type sessionAction func(w http.ResponseWriter, r *http.Request, store *chatService.Store, id int)

func (h *Handler) withSessionID(action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := middleware.StoreFrom(r.Context())
		if !ok {
			http.Error(w, "ui session unavailable", http.StatusInternalServerError)
			return
		}

		id, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		action(w, r, store, id)
	}
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request, store *chatService.Store, id int) {
	h.ignoreMissing(store.SelectSession(id))
	redirectHome(w, r)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, store *chatService.Store, id int) {
	h.ignoreMissing(store.DeleteSession(id))
	redirectHome(w, r)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request, store *chatService.Store, id int) {
	_, err := h.chatSvc.Submit(r.Context(), store, id, r.PostFormValue("content"))
	switch {
	case err == nil, errors.Is(err, chatService.ErrEmptyMessage):
	case errors.Is(err, chatService.ErrTurnInProgress):
		store.SetNotice("Still waiting for the previous reply.")
	default:
		h.ignoreMissing(err)
	}
	redirectHome(w, r)
}

// ignoreMissing logs operations on ids the page should never have offered.
func (h *Handler) ignoreMissing(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, chatService.ErrSessionNotFound) {
		h.logger.Error("ui referenced unknown session", "error", err)
		return
	}
	h.logger.Warn("ui action failed", "error", err)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
