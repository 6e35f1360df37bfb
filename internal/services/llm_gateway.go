package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/openai"
)

var ErrNoLLMOutput = errors.New("llm gateway: no usable output")

// LLMResult names the model that produced Text and whether the degraded provider did.
type LLMResult struct {
	Text         string
	ModelName    string
	UsedFallback bool
}

// FallbackModel is the degraded provider. fallbackllm.Model satisfies it.
type FallbackModel interface {
	Name() string
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMGateway is the only path to generative models.
type LLMGateway interface {
	Invoke(ctx context.Context, prompt, system string) (LLMResult, error)
	InvokeJSON(ctx context.Context, prompt, system, schemaName string, schema map[string]any) (map[string]any, LLMResult, error)
	Available() bool
}

type llmGateway struct {
	log      *logger.Logger
	primary  openai.Client
	fallback FallbackModel
}

// NewLLMGateway accepts a nil primary or fallback. With neither, every call returns
// ErrNoLLMOutput.
func NewLLMGateway(log *logger.Logger, primary openai.Client, fallback FallbackModel) LLMGateway {
	return &llmGateway{log: log.With("service", "LLMGateway"), primary: primary, fallback: fallback}
}

func (g *llmGateway) Available() bool { return g.primary != nil || g.fallback != nil }

func (g *llmGateway) Invoke(ctx context.Context, prompt, system string) (LLMResult, error) {
	var primaryErr error
	if g.primary != nil {
		text, err := g.primary.GenerateText(ctx, system, prompt)
		if err == nil && strings.TrimSpace(text) != "" {
			return LLMResult{Text: strings.TrimSpace(text), ModelName: g.primary.Model()}, nil
		}
		primaryErr = emptyAs(err)
		if ctx.Err() != nil {
			return LLMResult{}, ctx.Err()
		}
		g.log.Warn("primary llm failed", "model", g.primary.Model(), "error", primaryErr)
	}
	if g.fallback == nil {
		return LLMResult{}, joinNoOutput(primaryErr)
	}
	text, err := g.fallback.GenerateWithSystem(ctx, system, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		g.log.Warn("fallback llm failed", "model", g.fallback.Name(), "error", emptyAs(err))
		return LLMResult{}, joinNoOutput(primaryErr, emptyAs(err))
	}
	return LLMResult{Text: strings.TrimSpace(text), ModelName: g.fallback.Name(), UsedFallback: true}, nil
}

// InvokeJSON asks the primary for schema-constrained JSON; the fallback is prompted for bare
// JSON and its reply is parsed leniently.
func (g *llmGateway) InvokeJSON(ctx context.Context, prompt, system, schemaName string, schema map[string]any) (map[string]any, LLMResult, error) {
	var primaryErr error
	if g.primary != nil {
		obj, err := g.primary.GenerateJSON(ctx, system, prompt, schemaName, schema)
		if err == nil && len(obj) > 0 {
			return obj, LLMResult{ModelName: g.primary.Model()}, nil
		}
		primaryErr = emptyAs(err)
		if ctx.Err() != nil {
			return nil, LLMResult{}, ctx.Err()
		}
		g.log.Warn("primary llm json failed", "model", g.primary.Model(), "schema", schemaName, "error", primaryErr)
	}
	if g.fallback == nil {
		return nil, LLMResult{}, joinNoOutput(primaryErr)
	}
	sys := strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	if schema != nil {
		if b, err := json.Marshal(schema); err == nil {
			sys += "\nThe object must match this JSON schema: " + string(b)
		}
	}
	text, err := g.fallback.GenerateWithSystem(ctx, sys, prompt)
	if err != nil {
		return nil, LLMResult{}, joinNoOutput(primaryErr, err)
	}
	obj, perr := parseJSONObject(text)
	if perr != nil {
		g.log.Warn("fallback llm returned unparseable json", "model", g.fallback.Name(), "error", perr)
		return nil, LLMResult{}, joinNoOutput(primaryErr, perr)
	}
	return obj, LLMResult{ModelName: g.fallback.Name(), UsedFallback: true}, nil
}

// parseJSONObject decodes the outermost {...} in s, tolerating code fences and prose.
func parseJSONObject(s string) (map[string]any, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json object in output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("empty json object")
	}
	return obj, nil
}

func emptyAs(err error) error {
	if err != nil {
		return err
	}
	return errors.New("empty output")
}

func joinNoOutput(errs ...error) error {
	return errors.Join(append([]error{ErrNoLLMOutput}, errs...)...)
}
