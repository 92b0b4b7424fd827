package sensing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

func TestFromVitals(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		pulse, breaths      float64
		wantStress, wantBre float64
	}{
		{60, 12, 0, 1},
		{80, 19.5, 0.5, 0.5},
		{100, 27, 1, 0},
		{140, 40, 1, 0},
		{45, 8, 0, 1},
	}
	for _, tc := range cases {
		r := FromVitals(Vitals{Timestamp: ts, PulseBPM: tc.pulse, BreathsPerMinute: tc.breaths})
		if math.Abs(r.Stress-tc.wantStress) > 1e-9 || math.Abs(r.Breathing-tc.wantBre) > 1e-9 {
			t.Fatalf("unexpected reading for pulse=%.0f breaths=%.1f: %+v", tc.pulse, tc.breaths, r)
		}
		if r.Engagement != 0.5 || !r.Timestamp.Equal(ts) {
			t.Fatalf("unexpected defaults: %+v", r)
		}
	}
}

func TestSimulatedSourceStaysInRange(t *testing.T) {
	src := NewSimulatedSource(0.5, 42)
	src.SetDrift(0.05)
	for i := 0; i < 200; i++ {
		r, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if r.Stress < 0 || r.Stress > 1 || r.Breathing < 0 || r.Breathing > 1 {
			t.Fatalf("reading out of range: %+v", r)
		}
	}
	r, _ := src.Read(context.Background())
	if r.Stress < 0.9 {
		t.Fatalf("positive drift should saturate stress, got %.2f", r.Stress)
	}
}

func TestSamplerForwardsReadings(t *testing.T) {
	var mu sync.Mutex
	var got []stress.Reading
	sampler := NewSampler(NewSimulatedSource(0.2, 1), func(r stress.Reading) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := sampler.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) < 3 {
		t.Fatalf("expected several readings, got %d", len(got))
	}
}
