package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

const shallowBreathingHint = 0.4

// PromptContext 是构建系统提示词所需的状态。
type PromptContext struct {
	Level         stress.Level
	Strategy      stress.CopingStrategy
	BreathingRate *float64
	HeartRate     *float64
}

// DescribeBreathing 把呼吸代理值分档，不暴露原始数值。
func DescribeBreathing(v float64) string {
	switch {
	case v < 0.3:
		return "very shallow or rapid"
	case v < 0.5:
		return "somewhat irregular"
	case v < 0.7:
		return "moderately steady"
	default:
		return "calm and steady"
	}
}

var levelGuidance = map[stress.Level]string{
	stress.Calm: "The user is calm. Stay warm and supportive, keep replies brief, " +
		"and feel free to ask open questions about their day or what is on their mind.",
	stress.Rising: "The user's stress is rising. Be attentive and offer gentle, specific guidance. " +
		"Ask concrete questions such as what is making them feel stressed right now, or whether a breathing exercise would help. " +
		"Keep replies moderate in length.",
	stress.Spiking: "The user is under high stress. Be calm and reassuring. Use short, simple sentences. " +
		"Ask grounding questions such as naming three things they can see, or invite them to take one deep breath with you. " +
		"Prioritise immediate calming techniques.",
}

// BuildSystemPrompt 根据压力状态组装系统提示词。
func BuildSystemPrompt(pc PromptContext) string {
	var builder strings.Builder
	builder.WriteString("You are Anchor, a compassionate companion helping someone manage anxiety in real time. ")
	builder.WriteString("You receive live physiological signals about their state.\n\n")
	fmt.Fprintf(&builder, "Current stress level: %s\n", pc.Level)

	if pc.BreathingRate != nil {
		fmt.Fprintf(&builder, "Breathing pattern: %s\n", DescribeBreathing(*pc.BreathingRate))
	}
	if pc.HeartRate != nil {
		builder.WriteString("Heart rate: elevated\n")
	}
	if pc.Strategy != "" {
		fmt.Fprintf(&builder, "Recommended coping strategy: %s\n", pc.Strategy.DisplayName())
	}

	var hints []string
	if pc.BreathingRate != nil && *pc.BreathingRate < shallowBreathingHint {
		hints = append(hints, "Their breathing looks quick or shallow. Gently mention it and invite them to slow down with you.")
	}
	if pc.HeartRate != nil {
		hints = append(hints, "Their heart rate is elevated. Ask softly what is happening for them right now.")
	}
	if len(hints) > 0 {
		builder.WriteString("\nAdaptive questioning:\n- ")
		builder.WriteString(strings.Join(hints, "\n- "))
		builder.WriteString("\n")
	}

	if guidance, ok := levelGuidance[pc.Level]; ok {
		builder.WriteString("\n")
		builder.WriteString(guidance)
	}

	builder.WriteString("\n\nRespond directly to what the user just said and address their actual words. ")
	builder.WriteString("Be conversational and natural, not clinical. ")
	builder.WriteString("Stay empathetic and non-judgmental, and remember you are not a replacement for professional care.")
	return builder.String()
}

// fallbackLines 是未配置模型时按等级选择的固定回复，%s 为策略名称。
var fallbackLines = map[stress.Level][]string{
	stress.Calm: {
		"I'm here with you, and you're doing well. How can I support you today?",
		"It's good to hear from you. I'm listening if anything is on your mind.",
		"You seem steady right now. Is there anything you'd like to talk through?",
	},
	stress.Rising: {
		"I notice things might feel a little tense. Let's pause together. Would a breathing exercise help?",
		"It sounds like a lot is going on. I'm right here. Shall we try some %s?",
		"Take one slow breath with me. What's weighing on you right now?",
	},
	stress.Spiking: {
		"I'm right here with you. Let's get you grounded. Can you tell me what you're feeling?",
		"You're safe. Let's breathe together for a moment. In slowly... and out.",
		"This feels hard, and you don't have to face it alone. Let's use %s to get through this moment.",
	},
}

func fallbackLine(level stress.Level, strategy stress.CopingStrategy, pick func(int) int) string {
	lines, ok := fallbackLines[level]
	if !ok {
		lines = fallbackLines[stress.Calm]
	}
	line := lines[pick(len(lines))]
	if !strings.Contains(line, "%s") {
		return line
	}
	name := "calming techniques"
	if strategy != "" {
		name = strings.ToLower(strategy.DisplayName())
	}
	return fmt.Sprintf(line, name)
}
