package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, http.StatusConflict, "busy")

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "busy" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRespondAppErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"invalid state", fmt.Errorf("%w: session already active", apperr.ErrInvalidState), "invalid_state"},
		{"provider", &apperr.ProviderError{Provider: "gemini", StatusCode: 503}, "provider"},
		{"unclassified", errors.New("boom"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			RespondAppError(resp, http.StatusConflict, tc.err)

			var body ErrorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tc.err.Error() || body.Kind != tc.kind {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestRespondJSONNilPayload(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondJSON(resp, http.StatusNoContent, nil)
	if resp.Code != http.StatusNoContent || resp.Body.Len() != 0 {
		t.Fatalf("expected bare 204, got %d %q", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		t.Fatalf("no content type expected, got %q", ct)
	}
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	if err := SendSSEEvent(resp, resp, "transition", map[string]string{"to": "calm"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := "event: transition\ndata: {\"to\":\"calm\"}\n\n"
	if got := resp.Body.String(); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if !resp.Flushed {
		t.Fatalf("event should be flushed")
	}
}

func TestSendSSEEventRejectsUnencodable(t *testing.T) {
	resp := httptest.NewRecorder()
	if err := SendSSEEvent(resp, resp, "bad", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
	if resp.Body.Len() != 0 {
		t.Fatalf("nothing should be written")
	}
}
