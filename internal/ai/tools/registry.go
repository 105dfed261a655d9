// Package tools describes the functions advertised to the manager model,
// most importantly the talk_to_ai contract in its nested and flat shapes.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sashabaranov/go-openai"
	"talkbot/internal/logger"
)

// ToolRegistry manages the collection of available tools.
// It provides thread-safe registration and retrieval.
type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// NewTalkRegistry returns a registry holding the talk_to_ai tool in the
// requested shape ("nested" or "flat").
func NewTalkRegistry(schema string) (*ToolRegistry, error) {
	r := NewToolRegistry()
	switch schema {
	case SchemaNested:
		r.RegisterTool(NewTalkToAITool())
	case SchemaFlat:
		r.RegisterTool(NewLegacyTalkToAITool())
	default:
		return nil, fmt.Errorf("unknown talk_to_ai schema %q", schema)
	}
	return r, nil
}

// RegisterTool adds a new tool to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *ToolRegistry) RegisterTool(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		logger.Warnf("Replacing existing tool: %s", name)
	}

	r.tools[name] = tool
	logger.DispatchDebugf("Registered tool: %s", name)
}

// GetTool returns a tool by name.
// If the tool doesn't exist, an error is returned.
func (r *ToolRegistry) GetTool(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found", name)
	}

	return tool, nil
}

// GetAllTools returns all registered tools sorted by name.
func (r *ToolRegistry) GetAllTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})

	return tools
}

// GetOpenAITools converts all registered tools to OpenAI's Tool format.
func (r *ToolRegistry) GetOpenAITools() []openai.Tool {
	all := r.GetAllTools()
	tools := make([]openai.Tool, 0, len(all))
	for _, tool := range all {
		tools = append(tools, tool.ToOpenAITool())
	}
	return tools
}
