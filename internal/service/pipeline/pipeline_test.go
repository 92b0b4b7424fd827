package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ledger"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/strategy"
	"github.com/zhouzirui/anchor-coach/backend/internal/store"
)

func newPipeline(opts Options) (*Pipeline, *companion.Hub) {
	conv := conversation.NewOrchestrator(conversation.Deps{
		Generator:   ai.NewGenerator(nil, ai.Config{}),
		Recommender: strategy.NewService(strategy.NewKVHistory(store.NewMemoryStore()), nil),
		Speaker:     speech.NewOrchestrator(nil, nil, nil, nil),
		Minter:      ledger.NewSimulatedMinter(ledger.Config{MintAddress: "calm-mint"}),
	})
	hub := companion.NewHub(companion.DefaultOptions())
	return New(analysis.NewMonitor(analysis.Config{}), conv, hub, opts), hub
}

func TestIngestFeedsMonitorAndSession(t *testing.T) {
	p, _ := newPipeline(Options{})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	p.Ingest(stress.NewReading(base, 0.5, 0.5, 0.5))
	if _, err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var changed bool
	for i := 1; i <= 5; i++ {
		if _, ok := p.Ingest(stress.NewReading(base.Add(time.Duration(i)*time.Second), 0.9, 0.2, 0.5)); ok {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("expected a level transition")
	}

	session, ok := p.Conversation().CurrentSession()
	if !ok {
		t.Fatalf("session should be active")
	}
	if len(session.Readings) != 6 {
		t.Fatalf("expected 6 session readings, got %d", len(session.Readings))
	}
	if session.Readings[0].Stress != 0.5 {
		t.Fatalf("session should start from latest reading, got %.2f", session.Readings[0].Stress)
	}
}

func TestStartWithoutReadingsUsesNeutral(t *testing.T) {
	p, _ := newPipeline(Options{Greet: true})
	session, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := session.Readings[0]; got.Stress != 0.5 || got.Breathing != 0.5 {
		t.Fatalf("expected neutral initial reading, got %+v", got)
	}
	msgs := p.Conversation().Messages()
	if len(msgs) != 1 || msgs[0].Content != conversation.GreetingMessage {
		t.Fatalf("expected greeting, got %+v", msgs)
	}
}

func TestEndUsesMonitorVerdict(t *testing.T) {
	p, _ := newPipeline(Options{})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		p.Ingest(stress.NewReading(base.Add(time.Duration(i)*time.Second), 0.8, 0.3, 0.5))
	}
	p.Start(ctx)
	for i := 10; i < 20; i++ {
		p.Ingest(stress.NewReading(base.Add(time.Duration(i)*time.Second), 0.3, 0.8, 0.5))
	}

	session, ok := p.End(ctx)
	if !ok {
		t.Fatalf("expected session to end")
	}
	if !session.Successful {
		t.Fatalf("expected de-escalated session")
	}
	if got := session.Readings[len(session.Readings)-1].Stress; got != 0.3 {
		t.Fatalf("final reading should be latest monitor reading, got %.2f", got)
	}
	if p.Conversation().Rewards().CalmTokens != 1 {
		t.Fatalf("expected one calm token")
	}
}

func TestStressAlertStartsSession(t *testing.T) {
	p, hub := newPipeline(Options{AutoStartOnAlert: true})
	hub.Handle(companion.Inbound{StressAlert: true})
	if _, ok := p.Conversation().CurrentSession(); !ok {
		t.Fatalf("alert should open a session")
	}

	hub.Handle(companion.Inbound{StressAlert: true})
	if p.Conversation().State() != conversation.StateSessionActive {
		t.Fatalf("second alert should keep the session")
	}
}

func TestStressAlertIgnoredByDefault(t *testing.T) {
	p, hub := newPipeline(Options{})
	hub.Handle(companion.Inbound{StressAlert: true})
	if _, ok := p.Conversation().CurrentSession(); ok {
		t.Fatalf("alert should not open a session")
	}
	if _, ok := hub.LastStressAlert(); !ok {
		t.Fatalf("alert should still be recorded")
	}
}

func TestSendUsesMonitorLevel(t *testing.T) {
	p, _ := newPipeline(Options{})
	turn, err := p.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Strategy != stress.Mindfulness {
		t.Fatalf("calm level should recommend mindfulness, got %q", turn.Strategy)
	}
}

func TestConcurrentIngestKeepsSessionInStepWithMonitor(t *testing.T) {
	p, _ := newPipeline(Options{})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p.Ingest(stress.NewReading(base, 0.5, 0.5, 0.5))
	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Ingest(stress.NewReading(base.Add(time.Duration(i)*100*time.Millisecond), 0.4, 0.6, 0.5))
		}(i)
	}
	wg.Wait()

	session, _ := p.Conversation().CurrentSession()
	accepted := session.Readings[1:]
	buffered := p.monitor.Recent(p.monitor.Len())[1:]
	if len(accepted) != len(buffered) {
		t.Fatalf("session kept %d readings, monitor kept %d", len(accepted), len(buffered))
	}
	for i := range accepted {
		if !accepted[i].Timestamp.Equal(buffered[i].Timestamp) {
			t.Fatalf("reading %d differs: session %s monitor %s", i, accepted[i].Timestamp, buffered[i].Timestamp)
		}
	}
}
