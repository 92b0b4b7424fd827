// Package companion 把穿戴设备的 WebSocket 连接接入伴侣连接中心。
package companion

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	hubservice "github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
)

// Handler WebSocket 接入处理器
type Handler struct {
	hub      *hubservice.Hub
	upgrader websocket.Upgrader
}

// New 创建处理器
func New(hub *hubservice.Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/companion/ws", h.handleWebSocket)
}

// handleWebSocket 设备可以用 ?device= 指定固定 ID，重连时会替换旧连接。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("device")
	if id == "" {
		id = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[companion] upgrade failed: %v", err)
		return
	}

	h.hub.Serve(r.Context(), id, conn)
}
