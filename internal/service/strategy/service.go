// Package strategy 根据压力等级与历史效果推荐应对策略。
package strategy

import (
	"context"
	"log"
	"time"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

// Input 是评分函数的输入。
type Input struct {
	Level   stress.Level
	Recent  []stress.Reading
	History []stress.StrategyEffectiveness
}

// Scorer 从候选目录中挑选一个策略。
type Scorer interface {
	Score(ctx context.Context, in Input) (stress.CopingStrategy, error)
}

// Baseline 返回冷启动策略表的结果。
func Baseline(level stress.Level) (stress.CopingStrategy, bool) {
	switch level {
	case stress.Calm:
		return stress.Mindfulness, true
	case stress.Rising:
		return stress.BreathingExercise, true
	case stress.Spiking:
		return stress.Grounding, true
	default:
		return "", false
	}
}

// BaselineScorer 只使用策略表，忽略历史。
type BaselineScorer struct{}

func (BaselineScorer) Score(_ context.Context, in Input) (stress.CopingStrategy, error) {
	s, ok := Baseline(in.Level)
	if !ok {
		return "", errUnknownLevel
	}
	return s, nil
}

// DefaultScoreTimeout 是单次评分的默认上限，与生成超时一致。
const DefaultScoreTimeout = 30 * time.Second

// Service 负责策略推荐与效果记录。
type Service struct {
	history      HistoryStore
	scorer       Scorer
	scoreTimeout time.Duration
	now          func() time.Time
}

// NewService 创建推荐服务，scorer 为空时只使用策略表。
func NewService(history HistoryStore, scorer Scorer) *Service {
	if scorer == nil {
		scorer = BaselineScorer{}
	}
	return &Service{history: history, scorer: scorer, scoreTimeout: DefaultScoreTimeout, now: time.Now}
}

// SetScoreTimeout 调整评分超时，非正值保持默认。
func (s *Service) SetScoreTimeout(d time.Duration) {
	if d > 0 {
		s.scoreTimeout = d
	}
}

// Recommend 返回推荐策略。历史为空或评分失败时回退到策略表。
func (s *Service) Recommend(ctx context.Context, level stress.Level, recent []stress.Reading) (stress.CopingStrategy, bool) {
	baseline, ok := Baseline(level)
	if !ok {
		return "", false
	}

	var history []stress.StrategyEffectiveness
	if s.history != nil {
		records, err := s.history.Load(ctx)
		if err != nil {
			log.Printf("[strategy] load history failed, use baseline: %v", err)
			return baseline, true
		}
		history = records
	}

	if len(history) == 0 {
		return baseline, true
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()
	chosen, err := s.scorer.Score(scoreCtx, Input{Level: level, Recent: recent, History: history})
	if err != nil || !chosen.Valid() {
		if err != nil {
			log.Printf("[strategy] scorer failed, use baseline: %v", err)
		}
		return baseline, true
	}
	return chosen, true
}

// RecordEffectiveness 追加一条效果记录，调用方只需记录日志。
func (s *Service) RecordEffectiveness(ctx context.Context, strategy stress.CopingStrategy, initialStress, finalStress float64) error {
	if s.history == nil {
		return nil
	}
	record := stress.StrategyEffectiveness{
		Strategy:        strategy,
		StressReduction: initialStress - finalStress,
		Timestamp:       s.now().UTC(),
	}
	return s.history.Append(ctx, record)
}

// History 返回完整历史，供会话总结等只读场景使用。
func (s *Service) History(ctx context.Context) ([]stress.StrategyEffectiveness, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Load(ctx)
}
