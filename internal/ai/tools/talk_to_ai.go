package tools

import (
	"github.com/sashabaranov/go-openai/jsonschema"
	"talkbot/internal"
	"talkbot/internal/dispatch"
)

const (
	SchemaNested = "nested"
	SchemaFlat   = "flat"
)

// TalkToAITool is the talk_to_ai function. The nested and legacy variants
// share a name and differ only in their parameter schema.
type TalkToAITool struct {
	BaseTool
	Shape dispatch.Shape
}

// NewTalkToAITool creates the current talk_to_ai declaration:
// {"metadata":{"continue":bool},"payload":{"to":"HUMAN"|"AI","message":string}}.
func NewTalkToAITool() *TalkToAITool {
	params := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"metadata": {
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"continue": {
						Type:        jsonschema.Boolean,
						Description: "Whether this conversation should continue. true to keep going, false to finish.",
					},
				},
				Required: []string{"continue"},
			},
			"payload": {
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"to": {
						Type:        jsonschema.String,
						Enum:        dispatch.Recipients(),
						Description: "Who receives this message.",
					},
					"message": {
						Type:        jsonschema.String,
						Description: "The content of the message.",
					},
				},
				Required: []string{"to", "message"},
			},
		},
		Required: []string{"metadata", "payload"},
	}

	return &TalkToAITool{
		BaseTool: BaseTool{
			ToolName:        internal.TOOL_NAME,
			ToolDescription: internal.TOOL_DESCRIPTION,
			ToolParameters:  params,
		},
		Shape: dispatch.ShapeNested,
	}
}

// NewLegacyTalkToAITool creates the older continuation-only declaration:
// {"continue":bool}.
func NewLegacyTalkToAITool() *TalkToAITool {
	params := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"continue": {
				Type:        jsonschema.Boolean,
				Description: "Whether this conversation should continue.",
			},
		},
		Required: []string{"continue"},
	}

	return &TalkToAITool{
		BaseTool: BaseTool{
			ToolName:        internal.TOOL_NAME,
			ToolDescription: internal.TOOL_DESCRIPTION,
			ToolParameters:  params,
		},
		Shape: dispatch.ShapeFlat,
	}
}
