package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestValidateNestedPreservesFields(t *testing.T) {
	tests := []struct {
		raw     string
		to      Recipient
		message string
		cont    bool
	}{
		{`{"metadata":{"continue":true},"payload":{"to":"HUMAN","message":"hi"}}`, RecipientHuman, "hi", true},
		{`{"metadata":{"continue":false},"payload":{"to":"AI","message":"  spaced  "}}`, RecipientAI, "  spaced  ", false},
		{`{"metadata":{"continue":true},"payload":{"to":"AI","message":"line1\nline2"}}`, RecipientAI, "line1\nline2", true},
	}

	for _, tt := range tests {
		call, err := ValidateJSON([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, ShapeNested, call.Shape)
		assert.Equal(t, tt.cont, call.Continue)
		require.NotNil(t, call.Payload)
		assert.Equal(t, tt.to, call.Payload.To)
		assert.Equal(t, tt.message, call.Payload.Message)
	}
}

func TestValidateFlat(t *testing.T) {
	call, err := Validate(decode(t, `{"continue":false}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeFlat, call.Shape)
	assert.False(t, call.Continue)
	assert.False(t, call.HasPayload())
}

func TestValidateNestedTakesPrecedenceOverTopLevelContinue(t *testing.T) {
	call, err := Validate(decode(t,
		`{"continue":false,"metadata":{"continue":true},"payload":{"to":"AI","message":"go on"}}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeNested, call.Shape)
	assert.True(t, call.Continue)
}

func TestValidateMetadataOnlyIsContinuationOnly(t *testing.T) {
	call, err := Validate(decode(t, `{"metadata":{"continue":true}}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeNested, call.Shape)
	assert.Nil(t, call.Payload)
}

func TestValidateAcceptsContinueUnderscoreAlias(t *testing.T) {
	call, err := Validate(decode(t,
		`{"metadata":{"continue_":true},"payload":{"to":"AI","message":"task"}}`))
	require.NoError(t, err)
	assert.True(t, call.Continue)

	call, err = Validate(decode(t, `{"metadata":{"continue":false,"continue_":true}}`))
	require.NoError(t, err)
	assert.False(t, call.Continue, "continue wins over continue_")
}

func TestValidateViolations(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"unknown recipient", `{"metadata":{"continue":true},"payload":{"to":"ROBOT","message":"x"}}`, "payload.to"},
		{"lowercase recipient", `{"metadata":{"continue":true},"payload":{"to":"human","message":"x"}}`, "payload.to"},
		{"empty recipient", `{"metadata":{"continue":true},"payload":{"to":"","message":"x"}}`, "payload.to"},
		{"recipient not a string", `{"metadata":{"continue":true},"payload":{"to":1,"message":"x"}}`, "payload.to"},
		{"missing recipient", `{"metadata":{"continue":true},"payload":{"message":"x"}}`, "payload.to"},
		{"missing message", `{"metadata":{"continue":true},"payload":{"to":"AI"}}`, "payload.message"},
		{"empty message", `{"metadata":{"continue":true},"payload":{"to":"AI","message":""}}`, "payload.message"},
		{"blank message", `{"metadata":{"continue":true},"payload":{"to":"AI","message":"   "}}`, "payload.message"},
		{"message not a string", `{"metadata":{"continue":true},"payload":{"to":"AI","message":42}}`, "payload.message"},
		{"payload not an object", `{"metadata":{"continue":true},"payload":"hello"}`, "payload"},
		{"payload null", `{"metadata":{"continue":true},"payload":null}`, "payload"},
		{"metadata missing", `{"payload":{"to":"AI","message":"x"}}`, "metadata"},
		{"metadata missing with flat continue", `{"continue":true,"payload":{"to":"AI","message":"x"}}`, "metadata"},
		{"metadata not an object", `{"metadata":true,"payload":{"to":"AI","message":"x"}}`, "metadata"},
		{"metadata continue missing", `{"metadata":{},"payload":{"to":"AI","message":"x"}}`, "metadata.continue"},
		{"metadata continue string", `{"metadata":{"continue":"yes"},"payload":{"to":"AI","message":"x"}}`, "metadata.continue"},
		{"flat continue missing", `{}`, "continue"},
		{"flat continue number", `{"continue":1}`, "continue"},
		{"flat continue null", `{"continue":null}`, "continue"},
		{"flat with top-level recipient", `{"continue":true,"to":"BOB","message":"hi"}`, "to"},
		{"flat with valid top-level recipient", `{"continue":true,"to":"HUMAN"}`, "to"},
		{"flat with top-level message", `{"continue":false,"message":"bye"}`, "message"},
		{"nested with top-level recipient", `{"metadata":{"continue":true},"to":"AI","payload":{"to":"AI","message":"x"}}`, "to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJSON([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation))

			var verr *ViolationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateJSONRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"continue"`, `true`, `null`, `{`} {
		_, err := ValidateJSON([]byte(raw))
		assert.ErrorIs(t, err, ErrSchemaViolation, raw)
	}

	_, err := Validate(nil)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateIsIdempotent(t *testing.T) {
	raw := decode(t, `{"metadata":{"continue":true},"payload":{"to":"AI","message":"plan the trip"}}`)

	first, err := Validate(raw)
	require.NoError(t, err)
	second, err := Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first.Payload, second.Payload)
}

func TestToolCallMarshalJSON(t *testing.T) {
	nested, err := ValidateJSON([]byte(`{"metadata":{"continue_":true},"payload":{"to":"HUMAN","message":"done"}}`))
	require.NoError(t, err)
	data, err := json.Marshal(nested)
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata":{"continue":true},"payload":{"to":"HUMAN","message":"done"}}`, string(data))

	again, err := ValidateJSON(data)
	require.NoError(t, err)
	assert.Equal(t, nested, again)

	flat := ToolCall{Shape: ShapeFlat, Continue: false}
	data, err = json.Marshal(flat)
	require.NoError(t, err)
	assert.JSONEq(t, `{"continue":false}`, string(data))
}

func TestRecipientParsing(t *testing.T) {
	r, err := ParseRecipient("HUMAN")
	require.NoError(t, err)
	assert.Equal(t, RecipientHuman, r)

	r, err = ParseRecipient("AI")
	require.NoError(t, err)
	assert.Equal(t, RecipientAI, r)

	_, err = ParseRecipient("Ai")
	assert.Error(t, err)

	var zero Recipient
	assert.False(t, zero.Valid())
	_, err = json.Marshal(zero)
	assert.Error(t, err)

	var decoded Recipient
	require.NoError(t, json.Unmarshal([]byte(`"AI"`), &decoded))
	assert.Equal(t, RecipientAI, decoded)
	assert.Error(t, json.Unmarshal([]byte(`"BOT"`), &decoded))

	assert.Equal(t, []string{"HUMAN", "AI"}, Recipients())
}
