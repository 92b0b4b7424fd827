package stress

import (
	"testing"
	"time"

	model "github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func feed(m *Monitor, start time.Time, values ...float64) time.Time {
	ts := start
	for _, v := range values {
		m.Ingest(model.NewReading(ts, v, 0.5, 0.5))
		ts = ts.Add(time.Second)
	}
	return ts
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		mean float64
		want model.Level
	}{
		{0, model.Calm},
		{0.299, model.Calm},
		{0.3, model.Rising},
		{0.699, model.Rising},
		{0.7, model.Spiking},
		{1, model.Spiking},
	}
	for _, tc := range cases {
		if got := Classify(tc.mean); got != tc.want {
			t.Fatalf("unexpected level for %.3f: got %s want %s", tc.mean, got, tc.want)
		}
	}
}

func TestIngestRisesToSpiking(t *testing.T) {
	m := NewMonitor(Config{})
	feed(m, base, repeat(0.85, 10)...)

	if got := m.Level(); got != model.Spiking {
		t.Fatalf("unexpected level: got %s want %s", got, model.Spiking)
	}
}

func TestIngestReportsTransitionOnlyOnChange(t *testing.T) {
	m := NewMonitor(Config{})
	if _, changed := m.Ingest(model.NewReading(base, 0.1, 0.5, 0.5)); changed {
		t.Fatalf("calm reading should not change initial calm level")
	}
	tr, changed := m.Ingest(model.NewReading(base.Add(time.Second), 0.9, 0.5, 0.5))
	if !changed || tr.From != model.Calm || tr.To != model.Rising {
		t.Fatalf("unexpected transition: %+v changed=%v", tr, changed)
	}
	if _, changed := m.Ingest(model.NewReading(base.Add(2*time.Second), 0.5, 0.5, 0.5)); changed {
		t.Fatalf("level should stay rising")
	}
}

func TestWindowEvictsOldReadings(t *testing.T) {
	m := NewMonitor(Config{})
	feed(m, base, repeat(0.9, 10)...)
	m.Ingest(model.NewReading(base.Add(2*time.Minute), 0.1, 0.5, 0.5))

	if got := m.Len(); got != 1 {
		t.Fatalf("unexpected buffered count: got %d want 1", got)
	}
	if got := m.Level(); got != model.Calm {
		t.Fatalf("unexpected level after eviction: got %s", got)
	}
}

func TestWindowKeepsReadingsAtBoundary(t *testing.T) {
	m := NewMonitor(Config{})
	m.Ingest(model.NewReading(base, 0.5, 0.5, 0.5))
	m.Ingest(model.NewReading(base.Add(60*time.Second), 0.5, 0.5, 0.5))
	if got := m.Len(); got != 2 {
		t.Fatalf("reading exactly 60s old should be kept, got %d", got)
	}
}

func TestOutOfOrderReadingDropped(t *testing.T) {
	m := NewMonitor(Config{})
	m.Ingest(model.NewReading(base.Add(5*time.Second), 0.2, 0.5, 0.5))
	m.Ingest(model.NewReading(base, 0.9, 0.5, 0.5))
	if got := m.Len(); got != 1 {
		t.Fatalf("out-of-order reading should be dropped, got %d readings", got)
	}
}

func TestHasDeEscalated(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		m := NewMonitor(Config{})
		feed(m, base, repeat(0.9, 19)...)
		if m.HasDeEscalated() {
			t.Fatalf("expected false with 19 readings")
		}
	})

	t.Run("drop past threshold", func(t *testing.T) {
		m := NewMonitor(Config{})
		values := append(repeat(0.8, 10), repeat(0.5, 10)...)
		feed(m, base, values...)
		if !m.HasDeEscalated() {
			t.Fatalf("expected de-escalation when last mean is below 0.7x first mean")
		}
	})

	t.Run("drop short of threshold", func(t *testing.T) {
		m := NewMonitor(Config{})
		values := append(repeat(0.8, 10), repeat(0.6, 10)...)
		feed(m, base, values...)
		if m.HasDeEscalated() {
			t.Fatalf("0.6 vs 0.8 is only a 25%% drop")
		}
	})

	t.Run("flat stress", func(t *testing.T) {
		m := NewMonitor(Config{})
		feed(m, base, repeat(0.8, 20)...)
		if m.HasDeEscalated() {
			t.Fatalf("flat stress should not count as de-escalation")
		}
	})

	t.Run("zero baseline", func(t *testing.T) {
		m := NewMonitor(Config{})
		feed(m, base, repeat(0, 20)...)
		if m.HasDeEscalated() {
			t.Fatalf("zero first-half mean should not count as de-escalation")
		}
	})
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	m := NewMonitor(Config{})
	ch, cancel := m.Subscribe(4)
	defer cancel()

	feed(m, base, repeat(0.95, 10)...)

	select {
	case tr := <-ch:
		if tr.From != model.Calm || tr.To != model.Spiking {
			t.Fatalf("unexpected first transition: %+v", tr)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected transition event")
	}

	cancel()
	cancel()
	if _, ok := <-drain(ch); ok {
		t.Fatalf("channel should be closed after cancel")
	}
}

func drain(ch <-chan Transition) <-chan Transition {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return ch
			}
		default:
			return ch
		}
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMonitor(Config{})
	if snap := m.Snapshot(); snap.Latest != nil || snap.Count != 0 || snap.Level != model.Calm {
		t.Fatalf("unexpected empty snapshot: %+v", snap)
	}
	feed(m, base, 0.4, 0.6)
	snap := m.Snapshot()
	if snap.Count != 2 || snap.Latest == nil || snap.Latest.Stress != 0.6 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := m.Recent(5); len(got) != 2 {
		t.Fatalf("unexpected recent length: %d", len(got))
	}
}
