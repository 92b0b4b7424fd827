package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("generate: %w", &ProviderError{Provider: "gemini", StatusCode: 503, Message: "unavailable"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider match for %v", err)
	}

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 503 {
		t.Fatalf("expected status 503, got %+v", pe)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Transport("gemini", context.DeadlineExceeded), "transport"},
		{Decode("gemini", errors.New("bad json")), "decode"},
		{Empty("elevenlabs"), "empty_response"},
		{&ProviderError{Provider: "gemini", Timeout: true}, "provider"},
		{fmt.Errorf("x: %w", ErrInvalidState), "invalid_state"},
		{errors.New("boom"), "unknown"},
	}

	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("unexpected kind for %v: got %s want %s", tc.err, got, tc.want)
		}
	}
}
