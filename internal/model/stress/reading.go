// Package stress 定义压力读数、压力等级、应对策略与会话等领域模型。
package stress

import "time"

// Reading 是一次生理信号采样，所有数值都已归一化到 [0,1]。
type Reading struct {
	Timestamp  time.Time `json:"timestamp"`
	Stress     float64   `json:"stress"`
	Breathing  float64   `json:"breathing"`
	Engagement float64   `json:"engagement"`
}

// NewReading 构造读数并把数值截断到 [0,1]。
func NewReading(ts time.Time, stress, breathing, engagement float64) Reading {
	return Reading{
		Timestamp:  ts,
		Stress:     Clamp01(stress),
		Breathing:  Clamp01(breathing),
		Engagement: Clamp01(engagement),
	}
}

// Normalize 返回数值截断后的副本，用于处理外部传入的读数。
func (r Reading) Normalize() Reading {
	return NewReading(r.Timestamp, r.Stress, r.Breathing, r.Engagement)
}

// Clamp01 把数值限制在 [0,1]，NaN 视为 0。
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
