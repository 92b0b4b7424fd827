// Package elevenlabs 提供 ElevenLabs 文本转语音的 HTTP 客户端。
package elevenlabs

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

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

const (
	providerName    = "elevenlabs"
	DefaultBaseURL  = "https://api.elevenlabs.io/v1"
	DefaultVoiceID  = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID  = "eleven_turbo_v2"
	maxErrorBodyLen = 8 << 10
)

// ErrNotConfigured 表示未提供 API Key。
var ErrNotConfigured = errors.New("elevenlabs api key not configured")

// VoiceSettings 对应请求体中的 voice_settings。
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings 返回平稳柔和的默认音色参数。
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0, UseSpeakerBoost: true}
}

// Config 描述客户端配置。
type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	Settings   *VoiceSettings
	HTTPClient *http.Client
}

// Client 调用 text-to-speech 接口返回 mpeg 音频。
type Client struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	settings   VoiceSettings
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		voiceID:    cfg.VoiceID,
		modelID:    cfg.ModelID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		settings:   DefaultVoiceSettings(),
		httpClient: cfg.HTTPClient,
	}
	if c.voiceID == "" {
		c.voiceID = DefaultVoiceID
	}
	if c.modelID == "" {
		c.modelID = DefaultModelID
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if cfg.Settings != nil {
		c.settings = *cfg.Settings
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

func (c *Client) Name() string {
	return providerName
}

// Configured 表示是否具备调用条件。
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize 返回完整音频。只有 2xx 且音频非空才算成功。
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.modelID, VoiceSettings: c.settings})
	if err != nil {
		return nil, fmt.Errorf("encode elevenlabs request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, &apperr.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if len(audio) == 0 {
		return nil, apperr.Empty(providerName)
	}
	return audio, nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &apperr.ProviderError{Provider: providerName, Timeout: true}
	}
	return apperr.Transport(providerName, err)
}
