package config

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "secret")
	t.Setenv("PORT", "")
	t.Setenv("AGENT_BACKEND", "")
	t.Setenv("LANGFLOW_API_URL", "")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "")
	t.Setenv("LANGFLOW_RESPONSE_SHAPE", "")
	t.Setenv("LANGFLOW_RESPONSE_FALLBACK", "")
	t.Setenv("UI_SESSION_TTL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Agent.Backend != BackendLangflow {
		t.Fatalf("unexpected backend: %s", cfg.Agent.Backend)
	}
	if cfg.Agent.APIKey != "secret" {
		t.Fatalf("unexpected api key: %s", cfg.Agent.APIKey)
	}
	if cfg.Agent.Endpoint != defaultEndpoint {
		t.Fatalf("unexpected endpoint: %s", cfg.Agent.Endpoint)
	}
	if cfg.Agent.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Agent.Timeout)
	}
	if cfg.Agent.Strategy != "auto" || cfg.Agent.Fallback != "stringify" {
		t.Fatalf("unexpected extraction settings: %s/%s", cfg.Agent.Strategy, cfg.Agent.Fallback)
	}
	if cfg.UI.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %s", cfg.UI.SessionTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	t.Setenv("AGENT_BACKEND", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing api key")
	}

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Key != APIKeyEnv {
		t.Fatalf("unexpected key: %s", cfgErr.Key)
	}
	if !strings.Contains(cfgErr.Error(), "Please set your API key") {
		t.Fatalf("message should tell the operator what to do: %q", cfgErr.Error())
	}
}

func TestLoadArkBackendRequiresModel(t *testing.T) {
	t.Setenv("AGENT_BACKEND", "ark")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "")

	_, err := Load()

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoadArkBackendSkipsLangflowKey(t *testing.T) {
	t.Setenv("AGENT_BACKEND", "ark")
	t.Setenv(APIKeyEnv, "")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "doubao")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Agent.Backend != BackendArk || cfg.Agent.Ark.Model != "doubao" {
		t.Fatalf("unexpected agent config: %+v", cfg.Agent)
	}
}

func TestLoadArkInheritsAgentTimeout(t *testing.T) {
	t.Setenv("AGENT_BACKEND", "ark")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "doubao")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Agent.Ark.Timeout != 4*time.Second {
		t.Fatalf("ark timeout: got %s want 4s", cfg.Agent.Ark.Timeout)
	}
}

func TestArkChatModelTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	chatModel, err := ArkConfig{
		APIKey:  "key",
		Model:   "endpoint-id",
		BaseURL: srv.URL,
		Timeout: 200 * time.Millisecond,
	}.NewChatModel(context.Background())
	if err != nil {
		t.Fatalf("NewChatModel err: %v", err)
	}

	start := time.Now()
	if _, err := chatModel.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("ark call ignored timeout: took %s", elapsed)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AGENT_BACKEND":              "openai",
		"AGENT_TIMEOUT_SECONDS":      "ten",
		"LANGFLOW_RESPONSE_SHAPE":    "deep",
		"LANGFLOW_RESPONSE_FALLBACK": "maybe",
		"UI_SESSION_TTL":             "forever",
		"LOG_LEVEL":                  "loud",
		"PORT":                       "80 80",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(APIKeyEnv, "secret")
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(APIKeyEnv, "secret")
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "3")
	t.Setenv("LANGFLOW_RESPONSE_SHAPE", "Nested")
	t.Setenv("LANGFLOW_RESPONSE_FALLBACK", "strict")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Agent.Timeout != 3*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Agent.Timeout)
	}
	if cfg.Agent.Strategy != "nested" || cfg.Agent.Fallback != "strict" {
		t.Fatalf("unexpected extraction settings: %s/%s", cfg.Agent.Strategy, cfg.Agent.Fallback)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}
