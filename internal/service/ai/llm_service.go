package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/flowchat/internal/config"
	"github.com/zhouzirui/flowchat/internal/model/chat"
	"github.com/zhouzirui/flowchat/internal/model/persona"
	"github.com/zhouzirui/flowchat/internal/service/agent"
)

// historyLimit caps how many transcript messages are replayed to the model.
const historyLimit = 10

// Service runs a persona prompt template and a chat model as one eino chain.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
	logger  *slog.Logger
}

// NewService compiles the prompt chain around chatModel. A positive timeout
// bounds every GenerateResponse call.
func NewService(ctx context.Context, chatModel model.BaseChatModel, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	return &Service{chain: runnable, timeout: timeout, logger: logger}, nil
}

// NewServiceFromConfig builds the chat model selected by cfg.Backend.
func NewServiceFromConfig(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (*Service, error) {
	switch cfg.Backend {
	case config.BackendArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		return NewService(ctx, chatModel, cfg.Timeout, logger)
	default:
		strategy, err := agent.ParseStrategy(cfg.Strategy)
		if err != nil {
			return nil, err
		}
		fallback, err := agent.ParseFallback(cfg.Fallback)
		if err != nil {
			return nil, err
		}
		client := agent.NewClient(agent.Options{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
			Strategy: strategy,
			Fallback: fallback,
			Logger:   logger,
		})
		return NewService(ctx, NewFlowChatModel(client), cfg.Timeout, logger)
	}
}

// GenerateResponse asks the model for a reply to userText. history is the
// transcript before userText was appended.
func (s *Service) GenerateResponse(ctx context.Context, sessionID int, p persona.Persona, history []chat.Message, userText string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	response, err := s.chain.Invoke(ctx, buildChainInput(p, history, userText))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	s.logger.Info("generated reply", "session", sessionID, "persona", p.ID, "length", len(response.Content))
	return response.Content, nil
}

func buildChainInput(p persona.Persona, history []chat.Message, userText string) map[string]any {
	return map[string]any{
		"system":  systemPrompt(p),
		"history": buildHistoryMessages(history),
		"query":   userText,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func systemPrompt(p persona.Persona) string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, fmt.Sprintf("You are %s.", p.Title))
	}
	if p.Tone != "" {
		parts = append(parts, "Tone: "+p.Tone+".")
	}
	if p.PromptHint != "" {
		parts = append(parts, p.PromptHint)
	}
	if len(parts) == 0 {
		return "You are a helpful assistant."
	}
	return strings.Join(parts, " ")
}
