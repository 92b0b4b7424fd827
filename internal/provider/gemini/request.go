package gemini

import (
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Options 是 Gemini 特有的生成参数。
type Options struct {
	TopK *int
}

// WithTopK 设置 topK 采样参数。
func WithTopK(k int) model.Option {
	return model.WrapImplSpecificOptFn(func(o *Options) {
		o.TopK = &k
	})
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		builder.WriteString(p.Text)
	}
	return builder.String()
}

// mapRole 把 eino 角色映射为 Gemini 的两方角色，system 作为首个 user 轮次发送。
func mapRole(role schema.RoleType) string {
	if role == schema.Assistant {
		return "model"
	}
	return "user"
}

func buildRequest(input []*schema.Message, opts ...model.Option) generateRequest {
	contents := make([]content, 0, len(input))
	for _, msg := range input {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		contents = append(contents, content{
			Role:  mapRole(msg.Role),
			Parts: []part{{Text: msg.Content}},
		})
	}

	common := model.GetCommonOptions(&model.Options{}, opts...)
	specific := model.GetImplSpecificOptions(&Options{}, opts...)

	cfg := &generationConfig{
		Temperature:     common.Temperature,
		TopP:            common.TopP,
		MaxOutputTokens: common.MaxTokens,
		StopSequences:   common.Stop,
		TopK:            specific.TopK,
	}
	if cfg.Temperature == nil && cfg.TopP == nil && cfg.MaxOutputTokens == nil && cfg.TopK == nil && len(cfg.StopSequences) == 0 {
		cfg = nil
	}

	return generateRequest{Contents: contents, GenerationConfig: cfg}
}
