// Package session 提供会话开启、结束与总结接口。
package session

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
	model "github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/store"
	"github.com/zhouzirui/anchor-coach/backend/pkg/utils"
)

// Archive 按 ID 读取已归档的会话。
type Archive interface {
	Load(ctx context.Context, id string) (model.Session, error)
}

// History 读取策略效果记录。
type History interface {
	History(ctx context.Context) ([]model.StrategyEffectiveness, error)
}

// Handler 会话相关的 HTTP 处理器
type Handler struct {
	pipeline *pipeline.Pipeline
	archive  Archive
	history  History
	now      func() time.Time
}

// New 创建处理器，archive 与 history 可以为 nil。
func New(p *pipeline.Pipeline, archive Archive, history History) *Handler {
	return &Handler{pipeline: p, archive: archive, history: history, now: time.Now}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleStart)
	r.Post("/session/end", h.handleEnd)
	r.Get("/session", h.handleCurrent)
	r.Get("/sessions/{sessionID}", h.handleSummary)
	r.Get("/strategies/history", h.handleHistory)
}

// Summary 是会话总结页使用的视图。
type Summary struct {
	Session         model.Session `json:"session"`
	DurationSeconds float64       `json:"durationSeconds"`
	AverageStress   float64       `json:"averageStress"`
	StressReduction float64       `json:"stressReduction"`
}

func (h *Handler) summarize(s model.Session) Summary {
	return Summary{
		Session:         s,
		DurationSeconds: s.Duration(h.now()).Seconds(),
		AverageStress:   s.AverageStress(),
		StressReduction: s.StressReduction(),
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	s, err := h.pipeline.Start(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidState) {
			utils.RespondAppError(w, http.StatusConflict, err)
			return
		}
		utils.RespondAppError(w, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, s)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	conv := h.pipeline.Conversation()
	s, ok := h.pipeline.End(r.Context())
	if !ok {
		// 重复结束不视为错误
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"ended":   false,
			"rewards": conv.Rewards(),
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"ended":   true,
		"summary": h.summarize(s),
		"rewards": conv.Rewards(),
	})
}

type currentResponse struct {
	State   conversation.State   `json:"state"`
	Active  *Summary             `json:"active,omitempty"`
	Last    *Summary             `json:"last,omitempty"`
	Rewards conversation.Rewards `json:"rewards"`
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	conv := h.pipeline.Conversation()
	resp := currentResponse{State: conv.State(), Rewards: conv.Rewards()}
	if s, ok := conv.CurrentSession(); ok {
		summary := h.summarize(s)
		resp.Active = &summary
	}
	if s, ok := conv.LastSession(); ok {
		summary := h.summarize(s)
		resp.Last = &summary
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	conv := h.pipeline.Conversation()

	if s, ok := conv.LastSession(); ok && s.ID == id {
		utils.RespondJSON(w, http.StatusOK, h.summarize(s))
		return
	}
	if s, ok := conv.CurrentSession(); ok && s.ID == id {
		utils.RespondJSON(w, http.StatusOK, h.summarize(s))
		return
	}
	if h.archive == nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	s, err := h.archive.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("[session] load %s failed: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.summarize(s))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		utils.RespondJSON(w, http.StatusOK, []model.StrategyEffectiveness{})
		return
	}
	records, err := h.history.History(r.Context())
	if err != nil {
		log.Printf("[session] load strategy history failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []model.StrategyEffectiveness{}
	}
	utils.RespondJSON(w, http.StatusOK, records)
}
