package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/strategy"
)

func newTestRouter() http.Handler {
	conv := conversation.NewOrchestrator(conversation.Deps{
		Generator:   ai.NewGenerator(nil, ai.Config{}),
		Recommender: strategy.NewService(nil, nil),
		Speaker:     speech.NewOrchestrator(nil, nil, nil, nil),
	})
	p := pipeline.New(analysis.NewMonitor(analysis.Config{}), conv, companion.NewHub(companion.DefaultOptions()), pipeline.Options{})
	return NewRouter(Deps{Pipeline: p, Features: map[string]bool{"ai": false}})
}

func TestHealth(t *testing.T) {
	r := newTestRouter()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Status   string          `json:"status"`
		Features map[string]bool `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("unexpected status %q", body.Status)
	}
	if enabled, ok := body.Features["ai"]; !ok || enabled {
		t.Fatalf("unexpected features: %v", body.Features)
	}
}

func TestRoutesMounted(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/stress", http.StatusOK},
		{http.MethodGet, "/api/session", http.StatusOK},
		{http.MethodGet, "/api/messages", http.StatusOK},
		{http.MethodGet, "/api/strategies/history", http.StatusOK},
		{http.MethodGet, "/api/sessions/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/messages", http.StatusNoContent},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(tt.method, tt.path, nil))
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}
