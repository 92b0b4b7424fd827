package stress

import (
	"fmt"
	"strings"
	"time"
)

// CopingStrategy 是固定目录中的应对干预方式。
type CopingStrategy string

const (
	BreathingExercise  CopingStrategy = "breathing_exercise"
	CognitiveReframing CopingStrategy = "cognitive_reframing"
	MicroPlanning      CopingStrategy = "micro_planning"
	Grounding          CopingStrategy = "grounding"
	Mindfulness        CopingStrategy = "mindfulness"
)

// Strategies 是完整的策略目录。
var Strategies = []CopingStrategy{BreathingExercise, CognitiveReframing, MicroPlanning, Grounding, Mindfulness}

// DisplayName 返回可读名称，用于提示词与客户端展示。
func (s CopingStrategy) DisplayName() string {
	switch s {
	case BreathingExercise:
		return "Breathing Exercise"
	case CognitiveReframing:
		return "Cognitive Reframing"
	case MicroPlanning:
		return "Micro Planning"
	case Grounding:
		return "Grounding"
	case Mindfulness:
		return "Mindfulness"
	default:
		return string(s)
	}
}

// Valid reports whether s belongs to the catalog.
func (s CopingStrategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStrategy 接受原始值或展示名称。
func ParseStrategy(raw string) (CopingStrategy, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	s := CopingStrategy(normalized)
	if !s.Valid() {
		return "", fmt.Errorf("unknown coping strategy %q", raw)
	}
	return s, nil
}

// StrategyEffectiveness 记录一次策略使用后的压力变化，正数表示压力下降。
type StrategyEffectiveness struct {
	Strategy        CopingStrategy `json:"strategy"`
	StressReduction float64        `json:"stressReduction"`
	Timestamp       time.Time      `json:"timestamp"`
}
