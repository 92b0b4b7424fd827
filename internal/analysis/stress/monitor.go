// Package stress 实现基于滑动窗口的压力等级分类器。
package stress

import (
	"log"
	"sync"
	"time"

	model "github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

const (
	defaultWindow         = 60 * time.Second
	defaultRecentCount    = 10
	defaultDeEscalationN  = 20
	defaultDeEscalationRt = 0.7

	calmCutoff    = 0.3
	spikingCutoff = 0.7
)

// Config 控制窗口长度与降级判定参数，零值使用默认值。
type Config struct {
	Window          time.Duration
	RecentCount     int
	DeEscalationMin int
	// DeEscalationRatio 后段均值不超过前段均值乘以该比例即视为已降级。
	DeEscalationRatio float64
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.RecentCount <= 0 {
		c.RecentCount = defaultRecentCount
	}
	if c.DeEscalationMin < 2*c.RecentCount {
		c.DeEscalationMin = max(defaultDeEscalationN, 2*c.RecentCount)
	}
	if c.DeEscalationRatio <= 0 {
		c.DeEscalationRatio = defaultDeEscalationRt
	}
	return c
}

// Transition 描述一次等级变化。
type Transition struct {
	From       model.Level `json:"from"`
	To         model.Level `json:"to"`
	MeanStress float64     `json:"meanStress"`
	At         time.Time   `json:"at"`
}

// Snapshot 是监视器当前状态的只读视图。
type Snapshot struct {
	Level          model.Level    `json:"level"`
	MeanStress     float64        `json:"meanStress"`
	HasDeEscalated bool           `json:"hasDeEscalated"`
	Count          int            `json:"count"`
	Latest         *model.Reading `json:"latest,omitempty"`
}

// Monitor 维护最近窗口内的读数并给出当前压力等级。
type Monitor struct {
	cfg Config

	mu       sync.RWMutex
	readings []model.Reading
	level    model.Level
	mean     float64

	subMu  sync.Mutex
	subs   map[int]chan Transition
	nextID int
}

// NewMonitor 创建监视器，初始等级为 calm。
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:      cfg.withDefaults(),
		readings: make([]model.Reading, 0, 64),
		level:    model.Calm,
		subs:     make(map[int]chan Transition),
	}
}

// Classify 把平均压力映射为等级。
func Classify(mean float64) model.Level {
	switch {
	case mean < calmCutoff:
		return model.Calm
	case mean < spikingCutoff:
		return model.Rising
	default:
		return model.Spiking
	}
}

// Ingest 追加读数、淘汰过期读数并重新分类，仅在等级变化时返回 true。
// 时间戳早于最新读数的读数会被丢弃。
func (m *Monitor) Ingest(r model.Reading) (Transition, bool) {
	r = r.Normalize()

	m.mu.Lock()
	if n := len(m.readings); n > 0 && r.Timestamp.Before(m.readings[n-1].Timestamp) {
		m.mu.Unlock()
		log.Printf("[stress] drop out-of-order reading ts=%s", r.Timestamp.Format(time.RFC3339Nano))
		return Transition{}, false
	}

	m.readings = append(m.readings, r)
	m.evictLocked(r.Timestamp)

	m.mean = meanStress(m.recentLocked(m.cfg.RecentCount))
	next := Classify(m.mean)
	if next == m.level {
		m.mu.Unlock()
		return Transition{}, false
	}

	transition := Transition{From: m.level, To: next, MeanStress: m.mean, At: r.Timestamp}
	m.level = next
	m.mu.Unlock()

	log.Printf("[stress] level %s -> %s (mean=%.2f)", transition.From, transition.To, transition.MeanStress)
	m.publish(transition)
	return transition, true
}

func (m *Monitor) evictLocked(newest time.Time) {
	cut := 0
	for cut < len(m.readings) && newest.Sub(m.readings[cut].Timestamp) > m.cfg.Window {
		cut++
	}
	if cut == 0 {
		return
	}
	m.readings = append(m.readings[:0], m.readings[cut:]...)
}

func (m *Monitor) recentLocked(n int) []model.Reading {
	if n > len(m.readings) {
		n = len(m.readings)
	}
	return m.readings[len(m.readings)-n:]
}

// HasDeEscalated 判断后段平均压力是否较前段下降了足够比例。
func (m *Monitor) HasDeEscalated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasDeEscalatedLocked()
}

func (m *Monitor) hasDeEscalatedLocked() bool {
	if len(m.readings) < m.cfg.DeEscalationMin {
		return false
	}
	k := m.cfg.RecentCount
	first := meanStress(m.readings[:k])
	last := meanStress(m.readings[len(m.readings)-k:])
	if first <= 0 {
		return false
	}
	return last <= m.cfg.DeEscalationRatio*first
}

// Level 返回当前等级。
func (m *Monitor) Level() model.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// Latest 返回最新读数。
func (m *Monitor) Latest() (model.Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.readings) == 0 {
		return model.Reading{}, false
	}
	return m.readings[len(m.readings)-1], true
}

// Recent 返回最近 n 条读数的副本。
func (m *Monitor) Recent(n int) []model.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.recentLocked(n)
	out := make([]model.Reading, len(src))
	copy(out, src)
	return out
}

// Len 返回窗口内的读数数量。
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}

// Snapshot 返回当前状态。
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Level:          m.level,
		MeanStress:     m.mean,
		HasDeEscalated: m.hasDeEscalatedLocked(),
		Count:          len(m.readings),
	}
	if n := len(m.readings); n > 0 {
		latest := m.readings[n-1]
		snap.Latest = &latest
	}
	return snap
}

// Subscribe 注册等级变化监听，返回的函数用于取消订阅。
// 订阅方处理过慢时事件会被丢弃，不会阻塞 Ingest。
func (m *Monitor) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Monitor) publish(t Transition) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- t:
		default:
			log.Printf("[stress] subscriber %d is slow, drop transition", id)
		}
	}
}

func meanStress(readings []model.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.Stress
	}
	return sum / float64(len(readings))
}
