package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/anchor-coach/backend/internal/provider/gemini"
)

// 支持的模型提供方。
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server          ServerConfig
	AI              AIConfig
	Speech          SpeechConfig
	Personalization PersonalizationConfig
	Session         SessionConfig
	Store           StoreConfig
	Ledger          LedgerConfig
	Sensing         SensingConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	personalization, err := loadPersonalizationConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	sensing, err := loadSensingConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:          server,
		AI:              ai,
		Speech:          speech,
		Personalization: personalization,
		Session:         session,
		Store:           loadStoreConfig(),
		Ledger:          loadLedgerConfig(),
		Sensing:         sensing,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述回复生成所用模型的配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	Project      string
	Location     string
	Timeout      time.Duration
	HistoryLimit int

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Enabled 表示所选提供方的凭证是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderVertex:
		return c.Project != "" && c.Location != ""
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return c.APIKey != ""
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	switch c.Provider {
	case ProviderVertex:
		return gemini.NewGenAIChatModel(ctx, gemini.GenAIConfig{
			APIKey:   c.APIKey,
			Project:  c.Project,
			Location: c.Location,
			Model:    c.Model,
		})
	case ProviderArk:
		return c.newArkChatModel(ctx)
	default:
		return gemini.NewChatModel(gemini.Config{
			APIKey:  c.APIKey,
			Model:   c.Model,
			BaseURL: c.BaseURL,
		})
	}
}

func (c AIConfig) newArkChatModel(ctx context.Context) (model.ChatModel, error) {
	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderVertex, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 1)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	return AIConfig{
		Provider:     provider,
		APIKey:       apiKey,
		Model:        getEnvOrDefault("GEMINI_MODEL", gemini.DefaultModel),
		BaseURL:      getEnvOrDefault("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		Project:      strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
		Location:     getEnvOrDefault("GOOGLE_CLOUD_LOCATION", "us-central1"),
		Timeout:      timeout,
		HistoryLimit: historyLimit,
		ArkAPIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}, nil
}

// SpeechConfig 描述语音播报配置。
type SpeechConfig struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
	// PlayerCommand 播放 mpeg 音频的本地命令，文件路径追加在末尾
	PlayerCommand string
	// FallbackCommand 本地合成命令，文本追加在末尾
	FallbackCommand string
	Stability       *float64
	SimilarityBoost *float64
}

// Enabled 表示是否配置了云端语音合成。
func (c SpeechConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	stability, err := parseOptionalFloatEnv("ELEVENLABS_STABILITY")
	if err != nil {
		return SpeechConfig{}, err
	}

	similarity, err := parseOptionalFloatEnv("ELEVENLABS_SIMILARITY_BOOST")
	if err != nil {
		return SpeechConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("ELEVEN_LABS_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY"))
	}

	return SpeechConfig{
		APIKey:          apiKey,
		VoiceID:         getEnvOrDefault("ELEVENLABS_VOICE_ID", ""),
		ModelID:         getEnvOrDefault("ELEVENLABS_MODEL_ID", ""),
		BaseURL:         getEnvOrDefault("ELEVENLABS_BASE_URL", ""),
		Timeout:         timeout,
		PlayerCommand:   getEnvOrDefault("SPEECH_PLAYER_CMD", ""),
		FallbackCommand: getEnvOrDefault("SPEECH_FALLBACK_CMD", ""),
		Stability:       stability,
		SimilarityBoost: similarity,
	}, nil
}

// PersonalizationConfig 控制策略推荐是否使用模型评分。
type PersonalizationConfig struct {
	LLMEnabled bool
}

func loadPersonalizationConfig() (PersonalizationConfig, error) {
	enabled, err := parseBoolEnv("PERSONALIZATION_LLM_ENABLED", false)
	if err != nil {
		return PersonalizationConfig{}, err
	}
	return PersonalizationConfig{LLMEnabled: enabled}, nil
}

// SessionConfig 控制会话的自动行为。
type SessionConfig struct {
	Greet            bool
	AutoStartOnAlert bool
}

func loadSessionConfig() (SessionConfig, error) {
	greet, err := parseBoolEnv("SESSION_GREETING", true)
	if err != nil {
		return SessionConfig{}, err
	}
	autoStart, err := parseBoolEnv("SESSION_AUTOSTART_ON_ALERT", false)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{Greet: greet, AutoStartOnAlert: autoStart}, nil
}

// StoreConfig 选择持久化后端：memory、duckdb 或 postgres。
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
		DSN:    strings.TrimSpace(os.Getenv("STORE_DSN")),
	}
}

// LedgerConfig 描述代币发放目标。
type LedgerConfig struct {
	Network     string
	MintAddress string
}

func loadLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Network:     getEnvOrDefault("SOLANA_NETWORK", "devnet"),
		MintAddress: strings.TrimSpace(os.Getenv("CALM_TOKEN_MINT")),
	}
}

// SensingConfig 控制内置的模拟读数源。
type SensingConfig struct {
	Simulate bool
	Interval time.Duration
	Initial  float64
	Seed     uint64
}

func loadSensingConfig() (SensingConfig, error) {
	simulate, err := parseBoolEnv("SENSING_SIMULATE", false)
	if err != nil {
		return SensingConfig{}, err
	}

	interval, err := parseDurationEnv("SENSING_INTERVAL", time.Second)
	if err != nil {
		return SensingConfig{}, err
	}

	initial := 0.5
	if override, err := parseOptionalFloatEnv("SENSING_INITIAL_STRESS"); err != nil {
		return SensingConfig{}, err
	} else if override != nil {
		initial = *override
	}

	var seed uint64
	if raw := strings.TrimSpace(os.Getenv("SENSING_SEED")); raw != "" {
		seed, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return SensingConfig{}, fmt.Errorf("invalid SENSING_SEED value %q: %w", raw, err)
		}
	}

	return SensingConfig{Simulate: simulate, Interval: interval, Initial: initial, Seed: seed}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 "15s" 这样的时长，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
