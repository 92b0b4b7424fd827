package sensing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

// ErrNoReading 表示本轮没有新的读数。
var ErrNoReading = errors.New("no reading available")

// Source 提供最新的读数。
type Source interface {
	Read(ctx context.Context) (stress.Reading, error)
}

// Sink 消费读数，实现方不应长时间阻塞。
type Sink func(stress.Reading)

// Sampler 以固定间隔轮询 Source。
type Sampler struct {
	source   Source
	sink     Sink
	interval time.Duration
}

func NewSampler(source Source, sink Sink, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{source: source, sink: sink, interval: interval}
}

// Run 阻塞直到 ctx 结束，单次读取失败只记录日志。
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reading, err := s.source.Read(ctx)
			if err != nil {
				if !errors.Is(err, ErrNoReading) && ctx.Err() == nil {
					log.Printf("[sensing] read failed: %v", err)
				}
				continue
			}
			s.sink(reading)
		}
	}
}
