// Package gemini 实现基于 generateContent REST 接口的 eino ChatModel。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

const (
	providerName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

// Config 描述 REST 客户端配置。
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// ChatModel 通过 HTTP 调用 Gemini，实现 model.ChatModel。
type ChatModel struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

var _ model.ChatModel = (*ChatModel)(nil)

// NewChatModel 创建客户端，APIKey 为空时返回错误。
func NewChatModel(cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	m := &ChatModel{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
	}
	if m.model == "" {
		m.model = DefaultModel
	}
	if m.baseURL == "" {
		m.baseURL = DefaultBaseURL
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{}
	}
	return m, nil
}

// Name 返回提供方名称。
func (m *ChatModel) Name() string {
	return providerName
}

// Generate 发送完整上下文并返回第一个候选回复。
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	body, err := json.Marshal(buildRequest(input, opts...))
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", m.baseURL, m.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp)
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifyTransport(ctx, ctxErr)
		}
		return nil, apperr.Decode(providerName, err)
	}

	text := payload.text()
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Empty(providerName)
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 以单块流的形式返回完整回复。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 不支持工具调用。
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("gemini chat model does not support tools")
}

// classifyTransport 把超时映射为 ProviderError，其余网络错误映射为 TransportError。
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.ProviderError{Provider: providerName, Timeout: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apperr.ProviderError{Provider: providerName, Timeout: true}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Transport(providerName, err)
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// parseError 把非 2xx 响应转为 ProviderError。
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	pe := &apperr.ProviderError{Provider: providerName, StatusCode: resp.StatusCode}

	var parsed geminiError
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		pe.Message = strings.TrimSpace(string(body))
		return pe
	}

	pe.Message = parsed.Error.Message
	if parsed.Error.Status != "" {
		pe.Message = parsed.Error.Status + ": " + parsed.Error.Message
	}
	return pe
}
