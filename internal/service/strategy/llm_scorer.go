package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

var errUnknownLevel = errors.New("unknown stress level")

// LLMScorer 让大模型结合历史效果挑选策略。
type LLMScorer struct {
	chain       compose.Runnable[map[string]any, *schema.Message]
	recentLimit int
}

// NewLLMScorer 编译评分链，chatModel 为空时返回 nil。
func NewLLMScorer(ctx context.Context, chatModel model.ChatModel) (*LLMScorer, error) {
	if chatModel == nil {
		return nil, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(scorerSystemPrompt),
		schema.UserMessage(scorerUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile strategy scorer chain: %w", err)
	}
	return &LLMScorer{chain: runnable, recentLimit: 10}, nil
}

func (s *LLMScorer) Score(ctx context.Context, in Input) (stress.CopingStrategy, error) {
	input := map[string]any{
		"level":   string(in.Level),
		"recent":  formatRecent(in.Recent, s.recentLimit),
		"history": summarizeHistory(in.History),
		"catalog": catalogList(),
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("invoke strategy scorer: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("strategy scorer returned empty output")
	}

	payload, err := parseScorerOutput(msg.Content)
	if err != nil {
		return "", err
	}
	return stress.ParseStrategy(payload.Strategy)
}

type scorerPayload struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// parseScorerOutput 截取输出中的 JSON 对象。
func parseScorerOutput(content string) (*scorerPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &scorerPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatRecent(readings []stress.Reading, limit int) string {
	if len(readings) == 0 {
		return "no recent readings"
	}
	start := len(readings) - limit
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, len(readings)-start)
	for _, r := range readings[start:] {
		parts = append(parts, fmt.Sprintf("%.2f", r.Stress))
	}
	return strings.Join(parts, ", ")
}

// summarizeHistory 按策略汇总平均压力下降值。
func summarizeHistory(records []stress.StrategyEffectiveness) string {
	if len(records) == 0 {
		return "no history"
	}

	type agg struct {
		sum   float64
		count int
	}
	totals := make(map[stress.CopingStrategy]*agg)
	for _, r := range records {
		a, ok := totals[r.Strategy]
		if !ok {
			a = &agg{}
			totals[r.Strategy] = a
		}
		a.sum += r.StressReduction
		a.count++
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		a := totals[stress.CopingStrategy(k)]
		fmt.Fprintf(&builder, "%s: used %d times, mean reduction %.2f\n", k, a.count, a.sum/float64(a.count))
	}
	return strings.TrimSpace(builder.String())
}

func catalogList() string {
	names := make([]string, len(stress.Strategies))
	for i, s := range stress.Strategies {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

const scorerSystemPrompt = "You select one coping strategy for a person experiencing anxiety. Prefer strategies with a higher mean stress reduction for this person, but keep spiking stress on short, body-based techniques. Reply with a single JSON object: {{\"strategy\": one of the catalog values, \"reason\": short sentence}}. No other text."

const scorerUserPrompt = "Catalog: {catalog}\nCurrent level: {level}\nRecent stress readings (oldest first): {recent}\nPast effectiveness:\n{history}"
