package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

func TestSynthesizeSendsExpectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/"+DefaultVoiceID {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		var body synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Text != "hello" || body.ModelID != DefaultModelID || body.VoiceSettings != DefaultVoiceSettings() {
			t.Errorf("unexpected body: %+v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, HTTPClient: srv.Client()})
	audio, err := client.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(audio) != 3 {
		t.Fatalf("unexpected audio length: %d", len(audio))
	}
}

func TestSynthesizeFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }, apperr.ErrProvider},
		{"empty audio", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }, apperr.ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			client := NewClient(Config{APIKey: "secret", BaseURL: srv.URL})
			if _, err := client.Synthesize(context.Background(), "hi"); !errors.Is(err, tc.want) {
				t.Fatalf("unexpected error: got %v want %v", err, tc.want)
			}
		})
	}
}

func TestSynthesizeWithoutKey(t *testing.T) {
	client := NewClient(Config{})
	if client.Configured() {
		t.Fatalf("client without key should not be configured")
	}
	if _, err := client.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
