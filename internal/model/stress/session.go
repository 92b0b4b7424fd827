package stress

import "time"

// Session 描述一次陪伴会话。
type Session struct {
	ID          string           `json:"id"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Readings    []Reading        `json:"stressLevels"`
	Strategies  []CopingStrategy `json:"copingStrategies"`
	Successful  bool             `json:"successful"`
	MintReceipt string           `json:"mintReceipt,omitempty"`
}

// Closed 表示会话是否已经结束。
func (s Session) Closed() bool {
	return s.EndTime != nil
}

// Duration 返回会话时长，未结束时按 now 计算。
func (s Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}

// AverageStress 返回会话内所有读数的平均压力。
func (s Session) AverageStress() float64 {
	if len(s.Readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.Readings {
		sum += r.Stress
	}
	return sum / float64(len(s.Readings))
}

// StressReduction 返回首个读数与最后读数的压力差。
func (s Session) StressReduction() float64 {
	if len(s.Readings) < 2 {
		return 0
	}
	return s.Readings[0].Stress - s.Readings[len(s.Readings)-1].Stress
}

// Clone 返回深拷贝，避免调用方修改内部切片。
func (s Session) Clone() Session {
	out := s
	out.Readings = append([]Reading(nil), s.Readings...)
	out.Strategies = append([]CopingStrategy(nil), s.Strategies...)
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return out
}
