package sensing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

// SimulatedSource 生成有界随机游走的读数，可通过 Drift 推动压力升降。
type SimulatedSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	stress float64
	drift  float64
	now    func() time.Time
}

// NewSimulatedSource 从 initial 压力开始游走。
func NewSimulatedSource(initial float64, seed uint64) *SimulatedSource {
	return &SimulatedSource{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		stress: stress.Clamp01(initial),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetDrift 设置每次采样的平均变化量，负数表示逐渐平复。
func (s *SimulatedSource) SetDrift(d float64) {
	s.mu.Lock()
	s.drift = d
	s.mu.Unlock()
}

// WithClock 替换时间来源，模拟器用它加速时间。
func (s *SimulatedSource) WithClock(now func() time.Time) *SimulatedSource {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *SimulatedSource) Read(ctx context.Context) (stress.Reading, error) {
	if err := ctx.Err(); err != nil {
		return stress.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stress = stress.Clamp01(s.stress + s.drift + (s.rng.Float64()-0.5)*0.08)
	breathing := stress.Clamp01(1 - s.stress + (s.rng.Float64()-0.5)*0.1)
	engagement := stress.Clamp01(0.5 + (s.rng.Float64()-0.5)*0.2)
	return stress.NewReading(s.now(), s.stress, breathing, engagement), nil
}
