// Package stress 提供读数上报、压力状态查询与等级变化推送接口。
package stress

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	model "github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/sensing"
	"github.com/zhouzirui/anchor-coach/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler 压力相关的 HTTP 处理器
type Handler struct {
	pipeline  *pipeline.Pipeline
	heartbeat time.Duration
}

// New 创建处理器
func New(p *pipeline.Pipeline) *Handler {
	return &Handler{pipeline: p, heartbeat: defaultHeartbeat}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/readings", h.handleIngest)
	r.Get("/stress", h.handleStatus)
	r.Get("/stress/stream", h.handleStream)
}

// readingPayload 可以直接携带归一化读数，也可以携带原始体征。
type readingPayload struct {
	Timestamp  *time.Time      `json:"timestamp"`
	Stress     *float64        `json:"stress"`
	Breathing  *float64        `json:"breathing"`
	Engagement *float64        `json:"engagement"`
	Vitals     *sensing.Vitals `json:"vitals"`
}

func (p readingPayload) toReading(now time.Time) (model.Reading, bool) {
	if p.Vitals != nil {
		return sensing.FromVitals(*p.Vitals), true
	}
	if p.Stress == nil {
		return model.Reading{}, false
	}
	ts := now
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		ts = *p.Timestamp
	}
	breathing, engagement := 0.5, 0.5
	if p.Breathing != nil {
		breathing = *p.Breathing
	}
	if p.Engagement != nil {
		engagement = *p.Engagement
	}
	return model.NewReading(ts, *p.Stress, breathing, engagement), true
}

type ingestResponse struct {
	Level      model.Level          `json:"level"`
	MeanStress float64              `json:"meanStress"`
	Transition *analysis.Transition `json:"transition,omitempty"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload readingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reading, ok := payload.toReading(time.Now().UTC())
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "stress or vitals is required")
		return
	}

	transition, changed := h.pipeline.Ingest(reading)
	snap := h.pipeline.Snapshot()
	resp := ingestResponse{Level: snap.Level, MeanStress: snap.MeanStress}
	if changed {
		resp.Transition = &transition
	}
	utils.RespondJSON(w, http.StatusAccepted, resp)
}

type statusResponse struct {
	analysis.Snapshot
	Color       string     `json:"color"`
	Description string     `json:"description"`
	Companions  int        `json:"companions"`
	LastAlert   *time.Time `json:"lastAlert,omitempty"`
}

func (h *Handler) status() statusResponse {
	snap := h.pipeline.Snapshot()
	resp := statusResponse{
		Snapshot:    snap,
		Color:       snap.Level.Color(),
		Description: snap.Level.Description(),
	}
	if hub := h.pipeline.Hub(); hub != nil {
		resp.Companions = hub.Count()
		if at, ok := hub.LastStressAlert(); ok {
			resp.LastAlert = &at
		}
	}
	return resp
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.status())
}

// handleStream 先推送当前状态，之后推送每次等级变化，并定期发送心跳。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	transitions, cancel := h.pipeline.Subscribe(8)
	defer cancel()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "status", h.status()); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] stress stream closed")
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "transition", t); err != nil {
				log.Printf("[sse] write transition failed: %v", err)
				return
			}
		case now := <-ticker.C:
			err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": now.UTC().Format(time.RFC3339),
			})
			if err != nil {
				return
			}
		}
	}
}
