package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Telephony TelephonyConfig
	Storage   StorageConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses configuration from the supplied variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr
	cfg.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.PublicBaseURL), "/")

	switch cfg.Storage.Driver {
	case StorageMemory, StorageSQLite:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER value %q", cfg.Storage.Driver)
	}

	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER value %q", cfg.AI.Provider)
	}

	if cfg.AI.MaxTokens < 1 {
		return nil, fmt.Errorf("invalid AI_MAX_TOKENS value %d", cfg.AI.MaxTokens)
	}
	if cfg.Telephony.GatherTimeout < 1 {
		cfg.Telephony.GatherTimeout = 3
	}

	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	// APIKey protects operator endpoints such as the outbound call trigger.
	APIKey string `env:"API_KEY"`
	// PublicBaseURL is the externally reachable origin used in telephony callback URLs.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	Addr string
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" envDefault:"openai"`

	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`

	ArkAPIKey    string `env:"ARK_API_KEY"`
	ArkAccessKey string `env:"ARK_ACCESS_KEY"`
	ArkSecretKey string `env:"ARK_SECRET_KEY"`
	ArkModel     string `env:"ARK_MODEL"`
	ArkBaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `env:"ARK_REGION" envDefault:"cn-beijing"`

	// MaxTokens and Temperature are fixed per deployment; every turn uses the same values.
	MaxTokens   int           `env:"AI_MAX_TOKENS" envDefault:"500"`
	Temperature float64       `env:"AI_TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"AI_TIMEOUT" envDefault:"0s"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return c.Model != "" && c.APIKey != ""
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	if c.Provider == ProviderArk {
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      c.ArkAPIKey,
			AccessKey:   c.ArkAccessKey,
			SecretKey:   c.ArkSecretKey,
			Model:       c.ArkModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     c.Timeout,
	})
}

// TelephonyConfig 描述 Twilio 语音通道配置
type TelephonyConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `env:"TWILIO_PHONE_NUMBER"`
	APIBaseURL string `env:"TWILIO_API_BASE_URL" envDefault:"https://api.twilio.com"`

	ValidateSignature bool          `env:"TWILIO_VALIDATE_SIGNATURE" envDefault:"false"`
	Language          string        `env:"VOICE_LANGUAGE" envDefault:"en-US"`
	Voice             string        `env:"VOICE_NAME" envDefault:"alice"`
	GatherTimeout     int           `env:"VOICE_GATHER_TIMEOUT" envDefault:"3"`
	RequestTimeout    time.Duration `env:"TWILIO_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether outbound calling can reach the provider.
func (c TelephonyConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// StorageConfig selects the conversation store and the agent catalog source.
type StorageConfig struct {
	Driver     string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/conversations.db"`
	AgentsFile string `env:"AGENTS_FILE"`
}
