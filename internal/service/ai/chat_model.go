package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/flowchat/internal/service/agent"
)

// Sender is the part of the agent client the chat model needs.
type Sender interface {
	Send(ctx context.Context, userText string) (agent.Reply, error)
}

// FlowChatModel exposes a Langflow flow as an eino chat model. The flow keeps
// its own memory, so only the latest user message is forwarded.
type FlowChatModel struct {
	sender Sender
}

var _ model.BaseChatModel = (*FlowChatModel)(nil)

// NewFlowChatModel wraps sender.
func NewFlowChatModel(sender Sender) *FlowChatModel {
	return &FlowChatModel{sender: sender}
}

// Generate sends the last user message and returns the flow's reply.
func (m *FlowChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	query, err := lastUserMessage(input)
	if err != nil {
		return nil, err
	}

	reply, err := m.sender.Send(ctx, query)
	if err != nil {
		return nil, err
	}

	msg := schema.AssistantMessage(reply.Text, nil)
	msg.Extra = map[string]any{"shape": string(reply.Shape), "field": reply.Field}
	return msg, nil
}

// Stream delivers the whole reply as a single chunk; the flow run API is not incremental.
func (m *FlowChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func lastUserMessage(input []*schema.Message) (string, error) {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content, nil
		}
	}
	return "", errors.New("no user message in input")
}
