package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

// GenAIConfig 选择 Vertex AI 或 Gemini API 后端。
type GenAIConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// GenAIChatModel 通过官方 genai SDK 调用 Gemini。
type GenAIChatModel struct {
	client *genai.Client
	model  string
}

var _ model.ChatModel = (*GenAIChatModel)(nil)

// NewGenAIChatModel 在提供 Project/Location 时使用 Vertex AI，否则使用 APIKey。
func NewGenAIChatModel(ctx context.Context, cfg GenAIConfig) (*GenAIChatModel, error) {
	clientCfg := &genai.ClientConfig{}
	switch {
	case cfg.Project != "" && cfg.Location != "":
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	case cfg.APIKey != "":
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	default:
		return nil, errors.New("genai requires GOOGLE_CLOUD_PROJECT/LOCATION or an API key")
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	return &GenAIChatModel{client: client, model: modelName}, nil
}

func (m *GenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	common := model.GetCommonOptions(&model.Options{}, opts...)
	specific := model.GetImplSpecificOptions(&Options{}, opts...)

	cfg := &genai.GenerateContentConfig{
		Temperature:   common.Temperature,
		TopP:          common.TopP,
		StopSequences: common.Stop,
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if common.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*common.MaxTokens)
	}
	if specific.TopK != nil {
		k := float32(*specific.TopK)
		cfg.TopK = &k
	}

	res, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return nil, classifyGenAI(ctx, err)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Empty(providerName)
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *GenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *GenAIChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("genai chat model does not support tools")
}

func classifyGenAI(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Status != "" {
			msg = apiErr.Status + ": " + msg
		}
		return &apperr.ProviderError{Provider: providerName, StatusCode: apiErr.Code, Message: msg}
	}
	return classifyTransport(ctx, err)
}
