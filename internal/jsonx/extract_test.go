package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

type verdict struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

func TestExtractObjectStrict(t *testing.T) {
	var v verdict
	require.NoError(t, ExtractObject(`{"action": "click", "target": "#go"}`, &v))
	assert.Equal(t, "click", v.Action)
}

func TestExtractObjectFromProse(t *testing.T) {
	var v verdict
	text := "Sure, here's what to do next:\n\n{\"action\": \"click\", \"target\": \"#go\"}\n\nGood luck!"
	require.NoError(t, ExtractObject(text, &v))
	assert.Equal(t, "#go", v.Target)
}

func TestExtractObjectFromMarkdownFence(t *testing.T) {
	var v verdict
	text := "```json\n{\"action\": \"wait\"}\n```"
	require.NoError(t, ExtractObject(text, &v))
	assert.Equal(t, "wait", v.Action)
}

func TestExtractObjectRepairsSloppyJSON(t *testing.T) {
	var v verdict
	require.NoError(t, ExtractObject(`{action: 'click', target: '#go',}`, &v))
	assert.Equal(t, "click", v.Action)
}

func TestExtractObjectRepairsUnterminatedObject(t *testing.T) {
	var v verdict
	require.NoError(t, ExtractObject(`{"action": "click", "target": "#go"`, &v))
	assert.Equal(t, "click", v.Action)
}

func TestExtractObjectHonorsBracesInsideStrings(t *testing.T) {
	var v verdict
	require.NoError(t, ExtractObject(`{"action": "type", "target": "a {weird} selector"}`, &v))
	assert.Equal(t, "a {weird} selector", v.Target)
}

func TestExtractObjectNoObject(t *testing.T) {
	var v verdict
	err := ExtractObject("there is no JSON here at all", &v)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindBadResponse))
}
