package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/anchor-coach/backend/internal/handler/companion"
	"github.com/zhouzirui/anchor-coach/backend/internal/handler/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/handler/session"
	"github.com/zhouzirui/anchor-coach/backend/internal/handler/stress"
	middlewarePkg "github.com/zhouzirui/anchor-coach/backend/internal/middleware"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/pkg/utils"
)

// Deps 是路由需要的服务，Archive 与 History 可以为 nil。
type Deps struct {
	Pipeline *pipeline.Pipeline
	Archive  session.Archive
	History  session.History
	// Features 在健康检查中报告各外部能力是否启用
	Features map[string]bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	started := time.Now()

	r.Route("/api", func(api chi.Router) {
		stress.New(deps.Pipeline).RegisterRoutes(api)
		session.New(deps.Pipeline, deps.Archive, deps.History).RegisterRoutes(api)
		conversation.New(deps.Pipeline).RegisterRoutes(api)
		if hub := deps.Pipeline.Hub(); hub != nil {
			companion.New(hub).RegisterRoutes(api)
		}

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			features := deps.Features
			if features == nil {
				features = map[string]bool{}
			}
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"uptime":   time.Since(started).Round(time.Second).String(),
				"features": features,
			})
		})
	})

	return r
}
