package stress

import (
	"fmt"
	"strings"
)

// Level 表示离散的压力等级。
type Level string

const (
	Calm    Level = "calm"
	Rising  Level = "rising"
	Spiking Level = "spiking"
)

// Levels 按严重程度升序列出全部等级。
var Levels = []Level{Calm, Rising, Spiking}

// Severity 返回 0..2 的严重程度。
func (l Level) Severity() int {
	switch l {
	case Rising:
		return 1
	case Spiking:
		return 2
	default:
		return 0
	}
}

// Color 返回客户端展示用的十六进制颜色。
func (l Level) Color() string {
	switch l {
	case Rising:
		return "FF9800"
	case Spiking:
		return "F44336"
	default:
		return "4CAF50"
	}
}

// Description 返回面向用户的简短描述。
func (l Level) Description() string {
	switch l {
	case Rising:
		return "Let's take a moment"
	case Spiking:
		return "I'm here with you"
	default:
		return "You're doing well"
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case Calm, Rising, Spiking:
		return true
	}
	return false
}

// ParseLevel 解析等级字符串，大小写不敏感。
func ParseLevel(raw string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(raw)))
	if !level.Valid() {
		return "", fmt.Errorf("unknown stress level %q", raw)
	}
	return level, nil
}
