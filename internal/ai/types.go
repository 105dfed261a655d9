package ai

import (
	"context"

	"talkbot/internal/ai/tools"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is a provider-neutral chat message. The system prompt is not a
// message; it travels in Request.System.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Name       string      `json:"name,omitempty"`         // For tool messages
	ToolCallID string      `json:"tool_call_id,omitempty"` // For tool response messages
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`   // For assistant messages
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []tools.Tool
	ForceTool   string // name of a tool the model must call, if any
	NoToolUse   bool   // declare Tools but forbid calling them
	Temperature float32
	MaxTokens   int
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}
