// Package conversation 提供文本与语音对话接口。
package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/chat"
	convservice "github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/pkg/utils"
)

// Handler 对话相关的 HTTP 处理器
type Handler struct {
	pipeline *pipeline.Pipeline
}

// New 创建处理器
func New(p *pipeline.Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSend)
	r.Get("/messages", h.handleList)
	r.Post("/voice", h.handleVoice)
	r.Post("/speech/stop", h.handleStopSpeech)
}

type messagePayload struct {
	Text string `json:"text"`
}

func decodeText(r *http.Request) (string, error) {
	var payload messagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Text, nil
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	text, err := decodeText(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.pipeline.Send(r.Context(), text)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, turn)
}

// handleVoice 等待回复播报结束后才返回，处理期间的新输入返回 409。
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	text, err := decodeText(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.pipeline.Voice(r.Context(), text)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, turn)
}

func respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, convservice.ErrEmptyMessage):
		utils.RespondAppError(w, http.StatusBadRequest, err)
	case errors.Is(err, convservice.ErrProcessing):
		utils.RespondAppError(w, http.StatusConflict, err)
	default:
		utils.RespondAppError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	messages := h.pipeline.Conversation().Messages()
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":   messages,
		"processing": h.pipeline.Conversation().Processing(),
	})
}

func (h *Handler) handleStopSpeech(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Conversation().StopSpeaking()
	w.WriteHeader(http.StatusNoContent)
}
