// Package ai 负责生成陪伴回复。
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/chat"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/provider/gemini"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultHistoryLimit = 10
)

// Config 控制生成超时与历史长度。
type Config struct {
	Timeout      time.Duration
	HistoryLimit int
}

// Request 是一次生成所需的上下文。History 应已包含用户最新的消息。
type Request struct {
	Level         stress.Level
	Strategy      stress.CopingStrategy
	History       []chat.Message
	BreathingRate *float64
	HeartRate     *float64
}

// Generator 通过聊天模型生成回复，未配置模型时使用固定回复。
type Generator struct {
	chatModel    model.BaseChatModel
	template     prompt.ChatTemplate
	timeout      time.Duration
	historyLimit int
	pick         func(n int) int
}

// NewGenerator 创建生成器，chatModel 可以为 nil。
func NewGenerator(chatModel model.BaseChatModel, cfg Config) *Generator {
	g := &Generator{
		chatModel:    chatModel,
		timeout:      cfg.Timeout,
		historyLimit: cfg.HistoryLimit,
		pick:         rand.IntN,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
		),
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.historyLimit <= 0 {
		g.historyLimit = defaultHistoryLimit
	}
	return g
}

// Configured 表示是否接入了真实模型。
func (g *Generator) Configured() bool {
	return g != nil && g.chatModel != nil
}

// Generate 返回回复文本。模型调用失败时返回分类后的错误，不做静默替换。
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if !g.Configured() {
		return fallbackLine(req.Level, req.Strategy, g.pick), nil
	}

	// {system} 中的花括号会被 FString 当作占位符，所以整段作为变量注入
	messages, err := g.template.Format(ctx, map[string]any{
		"system":  BuildSystemPrompt(PromptContext{Level: req.Level, Strategy: req.Strategy, BreathingRate: req.BreathingRate, HeartRate: req.HeartRate}),
		"history": buildHistoryMessages(req.History, g.historyLimit),
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	msg, err := g.chatModel.Generate(callCtx, messages, GenerationOptions(req.Level)...)
	if err != nil {
		classified := classify(callCtx, err)
		log.Printf("[ai] generate failed level=%s kind=%s: %v", req.Level, apperr.Kind(classified), classified)
		return "", classified
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", apperr.Empty("chat model")
	}

	log.Printf("[ai] generated response level=%s strategy=%s length=%d elapsed=%s", req.Level, req.Strategy, len(msg.Content), time.Since(started).Round(time.Millisecond))
	return strings.TrimSpace(msg.Content), nil
}

// GenerationOptions 返回按压力等级调整的采样参数，高压时回复更短更稳定。
func GenerationOptions(level stress.Level) []model.Option {
	temperature, maxTokens := float32(0.9), 300
	if level == stress.Spiking {
		temperature, maxTokens = 0.7, 150
	}
	return []model.Option{
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
		model.WithTopP(0.95),
		gemini.WithTopK(40),
	}
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		default:
			history = append(history, schema.UserMessage(msg.Content))
		}
	}
	return history
}

// classify 保留已分类的错误，其余统一视为上游错误。
func classify(ctx context.Context, err error) error {
	for _, known := range []error{apperr.ErrTransport, apperr.ErrProvider, apperr.ErrEmptyResponse, apperr.ErrDecode} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.ProviderError{Provider: "chat model", Timeout: true}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &apperr.ProviderError{Provider: "chat model", Message: err.Error()}
}
