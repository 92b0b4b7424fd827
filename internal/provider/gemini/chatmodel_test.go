package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *ChatModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewChatModel(Config{APIKey: "test-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new chat model: %v", err)
	}
	return m
}

func TestGenerateSendsContentsAndConfig(t *testing.T) {
	var captured generateRequest
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Breathe "},{"text":"with me."}]}}]}`))
	})

	input := []*schema.Message{
		schema.SystemMessage("You are Anchor."),
		schema.UserMessage("I feel tense"),
		schema.AssistantMessage("I'm here.", nil),
		schema.UserMessage("Still tense"),
	}
	msg, err := m.Generate(context.Background(), input,
		model.WithTemperature(0.7), model.WithMaxTokens(150), model.WithTopP(0.95), WithTopK(40))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if msg.Content != "Breathe with me." {
		t.Fatalf("unexpected content: %q", msg.Content)
	}

	wantRoles := []string{"user", "user", "model", "user"}
	if len(captured.Contents) != len(wantRoles) {
		t.Fatalf("unexpected contents length: %d", len(captured.Contents))
	}
	for i, role := range wantRoles {
		if captured.Contents[i].Role != role {
			t.Fatalf("unexpected role at %d: got %s want %s", i, captured.Contents[i].Role, role)
		}
	}

	cfg := captured.GenerationConfig
	if cfg == nil || *cfg.Temperature != 0.7 || *cfg.MaxOutputTokens != 150 || *cfg.TopK != 40 || *cfg.TopP != 0.95 {
		t.Fatalf("unexpected generation config: %+v", cfg)
	}
}

func TestGenerateErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
			},
			want: apperr.ErrProvider,
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
			want: apperr.ErrEmptyResponse,
		},
		{
			name: "empty text",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`))
			},
			want: apperr.ErrEmptyResponse,
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":`))
			},
			want: apperr.ErrDecode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, tc.handler)
			_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
			if !errors.Is(err, tc.want) {
				t.Fatalf("unexpected error: got %v want %v", err, tc.want)
			}
		})
	}
}

func TestGenerateProviderErrorCarriesStatus(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"key invalid","status":"PERMISSION_DENIED"}}`))
	})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})

	var pe *apperr.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusForbidden || pe.Message != "PERMISSION_DENIED: key invalid" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

func TestGenerateTimeoutIsProviderError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) || !pe.Timeout {
		t.Fatalf("expected timeout provider error, got %v", err)
	}
}

func TestGenerateUnreachableIsTransport(t *testing.T) {
	m, err := NewChatModel(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new chat model: %v", err)
	}
	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNewChatModelRequiresKey(t *testing.T) {
	if _, err := NewChatModel(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
