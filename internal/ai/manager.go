package ai

import (
	"context"
	"fmt"
	"strings"

	"talkbot/internal"
	"talkbot/internal/ai/tools"
	"talkbot/internal/logger"
)

// Call is one talk_to_ai invocation produced by the manager. ID is empty
// when the model answered with plain JSON content instead of a tool call.
type Call struct {
	ID        string
	Name      string
	Arguments string
	// Text is any free text the model sent next to the call.
	Text string
}

// Manager is the model that answers only through talk_to_ai. It keeps the
// chat history of a single session and is not safe for concurrent use.
type Manager struct {
	provider Provider
	settings Settings
	tools    []tools.Tool
	history  []Message
}

func NewManager(p Provider, settings Settings, registry *tools.ToolRegistry) *Manager {
	return &Manager{
		provider: p,
		settings: settings,
		tools:    registry.GetAllTools(),
	}
}

// Begin records the human's purpose as the first message.
func (m *Manager) Begin(purpose string) {
	m.history = append(m.history, Message{Role: RoleUser, Content: "Human> " + strings.TrimSpace(purpose)})
}

// Next asks the model for its next talk_to_ai call.
func (m *Manager) Next(ctx context.Context) (Call, error) {
	ctx, cancel := withTimeout(ctx, m.settings.Timeout)
	defer cancel()

	resp, err := m.provider.Complete(ctx, Request{
		Model:       m.settings.Model,
		System:      m.settings.SystemPrompt,
		Messages:    m.history,
		Tools:       m.tools,
		ForceTool:   internal.TOOL_NAME,
		Temperature: m.settings.Temperature,
		MaxTokens:   m.settings.MaxTokens,
	})
	if err != nil {
		logger.Errorf("%s API error: %v", m.provider.Name(), err)
		return Call{}, err
	}

	if len(resp.ToolCalls) > 0 {
		if len(resp.ToolCalls) > 1 {
			logger.Warnf("Manager returned %d tool calls, only the first one is used", len(resp.ToolCalls))
		}
		tc := resp.ToolCalls[0]
		// Only the first call is kept so every call in history gets a result.
		m.history = append(m.history, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: []ToolCall{tc},
		})
		logger.DispatchDebugf("Manager called %s: %s", tc.Name, tc.Arguments)
		return Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments, Text: resp.Content}, nil
	}

	if strings.TrimSpace(resp.Content) == "" {
		return Call{}, ErrEmptyResponse
	}

	m.history = append(m.history, Message{Role: RoleAssistant, Content: resp.Content})
	logger.DispatchDebugf("Manager answered without a tool call, reading content as JSON")
	return Call{Name: internal.TOOL_NAME, Arguments: ExtractJSON(resp.Content)}, nil
}

// Observe feeds the result of a call back to the model.
func (m *Manager) Observe(call Call, result string) {
	if call.ID != "" {
		m.history = append(m.history, Message{
			Role:       RoleTool,
			Content:    result,
			Name:       call.Name,
			ToolCallID: call.ID,
		})
		return
	}
	m.history = append(m.history, Message{Role: RoleUser, Content: result})
}

// Summarize asks for a Markdown report of the whole conversation.
func (m *Manager) Summarize(ctx context.Context) (string, error) {
	ctx, cancel := withTimeout(ctx, m.settings.Timeout)
	defer cancel()

	m.history = append(m.history, Message{Role: RoleUser, Content: summaryPrompt})

	// The history holds tool calls, so the tools are declared but not usable.
	resp, err := m.provider.Complete(ctx, Request{
		Model:       m.settings.Model,
		System:      m.settings.SystemPrompt,
		Messages:    m.history,
		Tools:       m.tools,
		NoToolUse:   true,
		Temperature: m.settings.Temperature,
		MaxTokens:   m.settings.MaxTokens,
	})
	if err != nil {
		logger.Errorf("Summary generation error: %v", err)
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("summary: %w", ErrEmptyResponse)
	}

	m.history = append(m.history, Message{Role: RoleAssistant, Content: resp.Content})
	return resp.Content, nil
}

// History returns a copy of the conversation so far.
func (m *Manager) History() []Message {
	out := make([]Message, len(m.history))
	copy(out, m.history)
	return out
}

// ExtractJSON pulls a JSON object out of model text, tolerating code fences
// and prose around it. The input is returned unchanged if no object is found.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
