package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape tells which of the two accepted wire shapes a call arrived in.
type Shape uint8

const (
	// ShapeFlat is the legacy continuation-only form: {"continue": bool}.
	ShapeFlat Shape = iota + 1
	// ShapeNested is the current form with metadata and payload objects.
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Payload is the routable part of a nested call.
type Payload struct {
	To      Recipient `json:"to"`
	Message string    `json:"message"`
}

// ToolCall is a normalized talk_to_ai call. Payload is nil for
// continuation-only calls (every flat call and nested calls without a payload).
type ToolCall struct {
	Shape    Shape
	Continue bool
	Payload  *Payload
}

func (c ToolCall) HasPayload() bool {
	return c.Payload != nil
}

// MarshalJSON renders the call back in its wire shape.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	if c.Shape == ShapeFlat {
		return json.Marshal(map[string]interface{}{"continue": c.Continue})
	}
	out := map[string]interface{}{
		"metadata": map[string]interface{}{"continue": c.Continue},
	}
	if c.Payload != nil {
		out["payload"] = c.Payload
	}
	return json.Marshal(out)
}

// continue_ is what older prompts asked models to emit.
var continueKeys = []string{"continue", "continue_"}

// Validate normalizes a decoded tool call. A call that carries a "payload" or
// "metadata" key is read as the nested shape, and in that case a top-level
// "continue" is ignored. Anything else must be the flat shape. A top-level
// "to" or "message" is rejected in either shape.
func Validate(raw map[string]interface{}) (ToolCall, error) {
	if raw == nil {
		return ToolCall{}, violation("", "tool call must be a JSON object")
	}

	for _, key := range []string{"to", "message"} {
		if _, ok := raw[key]; ok {
			return ToolCall{}, violation(key, "belongs inside payload, use the nested shape to route a message")
		}
	}

	_, hasPayload := raw["payload"]
	_, hasMetadata := raw["metadata"]
	if hasPayload || hasMetadata {
		return validateNested(raw)
	}
	return validateFlat(raw)
}

// ValidateJSON decodes raw tool arguments and validates them.
func ValidateJSON(data []byte) (ToolCall, error) {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return ToolCall{}, violation("", "invalid JSON: %v", err)
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return ToolCall{}, violation("", "tool call must be a JSON object, got %s", jsonType(decoded))
	}
	return Validate(obj)
}

func validateFlat(raw map[string]interface{}) (ToolCall, error) {
	cont, err := continueFlag(raw, "")
	if err != nil {
		return ToolCall{}, err
	}
	return ToolCall{Shape: ShapeFlat, Continue: cont}, nil
}

func validateNested(raw map[string]interface{}) (ToolCall, error) {
	metaRaw, ok := raw["metadata"]
	if !ok {
		return ToolCall{}, violation("metadata", "is required when payload is present")
	}
	meta, ok := metaRaw.(map[string]interface{})
	if !ok {
		return ToolCall{}, violation("metadata", "must be an object, got %s", jsonType(metaRaw))
	}
	cont, err := continueFlag(meta, "metadata")
	if err != nil {
		return ToolCall{}, err
	}

	call := ToolCall{Shape: ShapeNested, Continue: cont}

	payloadRaw, ok := raw["payload"]
	if !ok {
		return call, nil
	}
	payload, ok := payloadRaw.(map[string]interface{})
	if !ok {
		return ToolCall{}, violation("payload", "must be an object, got %s", jsonType(payloadRaw))
	}

	to, err := requiredString(payload, "payload", "to")
	if err != nil {
		return ToolCall{}, err
	}
	recipient, err := ParseRecipient(to)
	if err != nil {
		return ToolCall{}, violation("payload.to", "must be one of %s, got %q",
			strings.Join(Recipients(), ", "), to)
	}

	message, err := requiredString(payload, "payload", "message")
	if err != nil {
		return ToolCall{}, err
	}

	call.Payload = &Payload{To: recipient, Message: message}
	return call, nil
}

func continueFlag(obj map[string]interface{}, prefix string) (bool, error) {
	for _, key := range continueKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return false, violation(fieldPath(prefix, key), "must be a boolean, got %s", jsonType(v))
		}
		return b, nil
	}
	return false, violation(fieldPath(prefix, "continue"), "is required")
}

func requiredString(obj map[string]interface{}, prefix, key string) (string, error) {
	field := fieldPath(prefix, key)
	v, ok := obj[key]
	if !ok {
		return "", violation(field, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", violation(field, "must be a string, got %s", jsonType(v))
	}
	if strings.TrimSpace(s) == "" {
		return "", violation(field, "must not be empty")
	}
	return s, nil
}

func fieldPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
