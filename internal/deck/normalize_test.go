package deck

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeChatContentString(t *testing.T) {
	got := NormalizeChatContent(json.RawMessage(`"just a plain message"`))
	assert.Equal(t, "just a plain message", got.Message)
	assert.Empty(t, got.Options)
}

func TestNormalizeChatContentObject(t *testing.T) {
	got := NormalizeChatContent(json.RawMessage(`{
		"message": "Pick a theme",
		"context": "design",
		"options": ["dark", "light"],
		"question_id": "q_theme",
		"required": true
	}`))
	assert.Equal(t, "Pick a theme", got.Message)
	assert.Equal(t, "design", got.Context)
	assert.Equal(t, []string{"dark", "light"}, got.Options)
	assert.Equal(t, "q_theme", got.QuestionID)
	assert.True(t, got.Required)
}

func TestNormalizeChatContentDegenerateShapes(t *testing.T) {
	assert.Zero(t, NormalizeChatContent(nil))
	assert.Zero(t, NormalizeChatContent(json.RawMessage(``)))
	assert.Zero(t, NormalizeChatContent(json.RawMessage(`42`)))
	assert.Zero(t, NormalizeChatContent(json.RawMessage(`[1,2,3]`)))
	assert.Zero(t, NormalizeChatContent(json.RawMessage(`{broken`)))
}
