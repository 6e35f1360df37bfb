package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type fakePrimary struct {
	text string
	obj  map[string]any
	err  error
}

func (p fakePrimary) Embed(context.Context, []string) ([][]float32, error) { return nil, p.err }
func (p fakePrimary) GenerateText(context.Context, string, string) (string, error) {
	return p.text, p.err
}
func (p fakePrimary) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return p.obj, p.err
}
func (p fakePrimary) Model() string      { return "primary-model" }
func (p fakePrimary) EmbedModel() string { return "primary-embed" }

type fakeFallback struct {
	text   string
	err    error
	system string
}

func (f *fakeFallback) Name() string { return "fallback-model" }
func (f *fakeFallback) GenerateWithSystem(_ context.Context, system, _ string) (string, error) {
	f.system = system
	return f.text, f.err
}

func TestGatewayPrefersPrimary(t *testing.T) {
	g := NewLLMGateway(logger.Nop(), fakePrimary{text: " answer "}, &fakeFallback{text: "other"})
	res, err := g.Invoke(context.Background(), "q", "sys")
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Text)
	assert.Equal(t, "primary-model", res.ModelName)
	assert.False(t, res.UsedFallback)
}

func TestGatewayFallsBackOnErrorAndEmptyOutput(t *testing.T) {
	for name, primary := range map[string]fakePrimary{
		"error": {err: errors.New("boom")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			g := NewLLMGateway(logger.Nop(), primary, &fakeFallback{text: "backup"})
			res, err := g.Invoke(context.Background(), "q", "sys")
			require.NoError(t, err)
			assert.Equal(t, "backup", res.Text)
			assert.Equal(t, "fallback-model", res.ModelName)
			assert.True(t, res.UsedFallback)
		})
	}
}

func TestGatewayWithoutUsableOutput(t *testing.T) {
	g := NewLLMGateway(logger.Nop(), fakePrimary{err: errors.New("down")}, &fakeFallback{text: ""})
	_, err := g.Invoke(context.Background(), "q", "sys")
	require.ErrorIs(t, err, ErrNoLLMOutput)

	none := NewLLMGateway(logger.Nop(), nil, nil)
	assert.False(t, none.Available())
	_, err = none.Invoke(context.Background(), "q", "sys")
	require.ErrorIs(t, err, ErrNoLLMOutput)
}

func TestGatewayJSONFallbackParsesFencedOutput(t *testing.T) {
	fb := &fakeFallback{text: "Sure:\n```json\n{\"summary\": \"short\", \"key_points\": [\"a\"]}\n```"}
	g := NewLLMGateway(logger.Nop(), fakePrimary{err: errors.New("down")}, fb)

	obj, res, err := g.InvokeJSON(context.Background(), "q", "sys", "s", map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "short", obj["summary"])
	assert.Contains(t, fb.system, "JSON schema")
}

func TestGatewayJSONFallbackRejectsProse(t *testing.T) {
	g := NewLLMGateway(logger.Nop(), nil, &fakeFallback{text: "no json here"})
	_, _, err := g.InvokeJSON(context.Background(), "q", "sys", "s", nil)
	require.ErrorIs(t, err, ErrNoLLMOutput)
}
