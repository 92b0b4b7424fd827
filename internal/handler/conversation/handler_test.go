package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/chat"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	convservice "github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/strategy"
)

// gatedSynth 在 gate 关闭前阻塞朗读。
type gatedSynth struct {
	started chan struct{}
	gate    chan struct{}
}

func (s *gatedSynth) Speak(ctx context.Context, _ string) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func setupRouter(synth speech.Synthesizer) *chi.Mux {
	conv := convservice.NewOrchestrator(convservice.Deps{
		Generator:   ai.NewGenerator(nil, ai.Config{}),
		Recommender: strategy.NewService(nil, nil),
		Speaker:     speech.NewOrchestrator(nil, synth, nil, nil),
	})
	p := pipeline.New(analysis.NewMonitor(analysis.Config{}), conv, nil, pipeline.Options{})

	r := chi.NewRouter()
	New(p).RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSendMessage(t *testing.T) {
	r := setupRouter(nil)
	resp := post(r, "/messages", `{"text":"I feel anxious"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var turn convservice.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if turn.User.Content != "I feel anxious" || turn.Reply.Role != chat.RoleAssistant || turn.Reply.Content == "" {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	list := httptest.NewRecorder()
	r.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/messages", nil))
	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	json.NewDecoder(list.Body).Decode(&body)
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
}

func TestSendMessageValidation(t *testing.T) {
	r := setupRouter(nil)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"text":`},
		{"blank", `{"text":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := post(r, "/messages", tt.body); resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}
}

func TestVoiceConflictWhileProcessing(t *testing.T) {
	synth := &gatedSynth{started: make(chan struct{}, 1), gate: make(chan struct{})}
	r := setupRouter(synth)

	first := make(chan int, 1)
	go func() {
		first <- post(r, "/voice", `{"text":"first"}`).Code
	}()

	select {
	case <-synth.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first reply never started speaking")
	}

	if resp := post(r, "/voice", `{"text":"second"}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	close(synth.gate)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first voice request: expected 200, got %d", code)
	}
}

func TestStopSpeech(t *testing.T) {
	r := setupRouter(nil)
	if resp := post(r, "/speech/stop", ``); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}
