package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

const (
	// APIKeyEnv 是 Langflow 凭证所在的环境变量。
	APIKeyEnv = "LANGFLOW_API_KEY"

	defaultEndpoint = "http://localhost:7860/api/v1/run/c804dda5-f459-472d-a364-f83e4d7cb1e8"
)

// Backend names the service that produces assistant replies.
type Backend string

const (
	BackendLangflow Backend = "langflow"
	BackendArk      Backend = "ark"
)

// ConfigurationError reports a missing or unusable setting that prevents startup.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Agent    AgentConfig
	UI       UIConfig
	LogLevel slog.Level
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	ui, err := loadUIConfig()
	if err != nil {
		return nil, err
	}

	level, err := parseLevelEnv("LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Agent: agent, UI: ui, LogLevel: level}, nil
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
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AgentConfig 描述远端对话代理的配置。
type AgentConfig struct {
	Backend  Backend
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Strategy string
	Fallback string
	Ark      ArkConfig
}

// ArkConfig holds the optional Ark model settings used when Backend is ark.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// Timeout bounds each Ark HTTP call. Filled from AGENT_TIMEOUT_SECONDS.
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, &ConfigurationError{
			Key:     "ARK_API_KEY",
			Message: "Ark credentials or model missing: set ARK_MODEL and ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY)",
		}
	}

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

	var timeout *time.Duration
	if c.Timeout > 0 {
		t := c.Timeout
		timeout = &t
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		Timeout:     timeout,
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return chatModel, nil
}

func loadAgentConfig() (AgentConfig, error) {
	backend := Backend(strings.ToLower(getEnvOrDefault("AGENT_BACKEND", string(BackendLangflow))))
	if backend != BackendLangflow && backend != BackendArk {
		return AgentConfig{}, fmt.Errorf("invalid AGENT_BACKEND value %q: want langflow or ark", backend)
	}

	timeoutSeconds := 10
	if override, err := parseOptionalIntEnv("AGENT_TIMEOUT_SECONDS"); err != nil {
		return AgentConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AgentConfig{}, fmt.Errorf("invalid AGENT_TIMEOUT_SECONDS value %d: must be positive", *override)
		}
		timeoutSeconds = *override
	}

	strategy, err := parseChoiceEnv("LANGFLOW_RESPONSE_SHAPE", "auto", "auto", "flat", "nested")
	if err != nil {
		return AgentConfig{}, err
	}

	fallback, err := parseChoiceEnv("LANGFLOW_RESPONSE_FALLBACK", "stringify", "stringify", "strict")
	if err != nil {
		return AgentConfig{}, err
	}

	arkCfg, err := loadArkConfig()
	if err != nil {
		return AgentConfig{}, err
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	arkCfg.Timeout = timeout

	cfg := AgentConfig{
		Backend:  backend,
		APIKey:   strings.TrimSpace(os.Getenv(APIKeyEnv)),
		Endpoint: getEnvOrDefault("LANGFLOW_API_URL", defaultEndpoint),
		Timeout:  timeout,
		Strategy: strategy,
		Fallback: fallback,
		Ark:      arkCfg,
	}

	switch backend {
	case BackendLangflow:
		if cfg.APIKey == "" {
			return AgentConfig{}, &ConfigurationError{
				Key: APIKeyEnv,
				Message: APIKeyEnv + " environment variable not found. " +
					"Please set your API key in the environment variables or the .env file.",
			}
		}
	case BackendArk:
		if !arkCfg.Enabled() {
			return AgentConfig{}, &ConfigurationError{
				Key:     "ARK_API_KEY",
				Message: "AGENT_BACKEND=ark requires ARK_MODEL and ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY)",
			}
		}
	}

	return cfg, nil
}

func loadArkConfig() (ArkConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ArkConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return ArkConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ArkConfig{}, err
	}

	return ArkConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// UIConfig 描述浏览器会话相关配置。
type UIConfig struct {
	CookieName string
	SessionTTL time.Duration
}

func loadUIConfig() (UIConfig, error) {
	ttl, err := parseDurationEnv("UI_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return UIConfig{}, err
	}

	return UIConfig{
		CookieName: getEnvOrDefault("UI_COOKIE_NAME", "flowchat_session"),
		SessionTTL: ttl,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseChoiceEnv(key, defaultValue string, allowed ...string) (string, error) {
	raw := strings.ToLower(getEnvOrDefault(key, defaultValue))
	for _, candidate := range allowed {
		if raw == candidate {
			return raw, nil
		}
	}
	return "", fmt.Errorf("invalid %s value %q: want one of %s", key, raw, strings.Join(allowed, ", "))
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseLevelEnv(key string, defaultValue slog.Level) (slog.Level, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return defaultValue, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return level, nil
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
