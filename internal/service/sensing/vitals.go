// Package sensing 把生理信号采集结果转换为归一化读数并按固定频率推送。
package sensing

import (
	"time"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

const (
	restingPulse    = 60.0
	pulseSpan       = 40.0
	calmBreathing   = 12.0
	breathingSpan   = 15.0
	engagementBasis = 0.5
)

// Vitals 是采集端给出的原始体征。
type Vitals struct {
	Timestamp        time.Time `json:"timestamp"`
	PulseBPM         float64   `json:"pulse"`
	BreathsPerMinute float64   `json:"breathing"`
	Engagement       *float64  `json:"engagement,omitempty"`
}

// FromVitals 把脉搏映射为压力（60→0，100→1），呼吸频率映射为平稳度（12/min→1，27/min→0）。
func FromVitals(v Vitals) stress.Reading {
	engagement := engagementBasis
	if v.Engagement != nil {
		engagement = *v.Engagement
	}
	ts := v.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return stress.NewReading(
		ts,
		(v.PulseBPM-restingPulse)/pulseSpan,
		1-(v.BreathsPerMinute-calmBreathing)/breathingSpan,
		engagement,
	)
}
