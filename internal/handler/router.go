package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/flowchat/internal/handler/chat"
	"github.com/zhouzirui/flowchat/internal/handler/live"
	"github.com/zhouzirui/flowchat/internal/handler/persona"
	"github.com/zhouzirui/flowchat/internal/handler/stream"
	"github.com/zhouzirui/flowchat/internal/handler/ui"
	middlewarePkg "github.com/zhouzirui/flowchat/internal/middleware"
	personaModel "github.com/zhouzirui/flowchat/internal/model/persona"
	chatService "github.com/zhouzirui/flowchat/internal/service/chat"
	"github.com/zhouzirui/flowchat/pkg/utils"
)

// Dependencies bundles what the router needs.
type Dependencies struct {
	Personas   personaModel.Store
	Registry   *chatService.Registry
	ChatSvc    *chatService.Service
	Hub        *live.Hub
	CookieName string
	Logger     *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"uiSessions": deps.Registry.Len(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middlewarePkg.UISession(deps.Registry, deps.CookieName))

		ui.New(deps.ChatSvc, deps.Personas, deps.Logger).RegisterRoutes(r)
		deps.Hub.RegisterRoutes(r)

		r.Route("/api", func(api chi.Router) {
			api.Use(middlewarePkg.CORS)

			persona.New(deps.Personas).RegisterRoutes(api)
			chat.New(deps.ChatSvc, deps.Logger).RegisterRoutes(api)
			stream.New(deps.ChatSvc, deps.Logger).RegisterRoutes(api)
		})
	})

	return r
}
