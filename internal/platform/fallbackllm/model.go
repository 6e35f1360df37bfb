// Package fallbackllm provides the degraded-mode text generator used when the primary
// provider fails. It wraps a langchaingo model so the provider is a deployment choice.
package fallbackllm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

func ConfigFromEnv() Config {
	return Config{
		Provider:    strings.ToLower(envutil.String("LLM_FALLBACK_PROVIDER", ProviderOllama)),
		Model:       envutil.String("LLM_FALLBACK_MODEL", "llama3.1"),
		APIKey:      envutil.String("LLM_FALLBACK_API_KEY", ""),
		BaseURL:     envutil.String("LLM_FALLBACK_BASE_URL", "http://localhost:11434"),
		Temperature: envutil.Float("LLM_FALLBACK_TEMPERATURE", 0.2),
		MaxTokens:   envutil.Int("LLM_FALLBACK_MAX_TOKENS", 1024),
	}
}

// Model generates text through a langchaingo backend.
type Model struct {
	llm       llms.Model
	modelName string
	opts      []llms.CallOption
}

func New(cfg Config) (*Model, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("fallback openai api key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("fallback anthropic api key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported fallback provider: %s", cfg.Provider)
	}
	m := NewWithModel(model, cfg.Provider+":"+cfg.Model)
	if cfg.Temperature > 0 {
		m.opts = append(m.opts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		m.opts = append(m.opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return m, nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, name string) *Model {
	return &Model{llm: model, modelName: name}
}

func (m *Model) Name() string { return m.modelName }

// GenerateWithSystem sends one system and one human message and returns the first choice.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	resp, err := m.llm.GenerateContent(ctx, messages, m.opts...)
	if err != nil {
		return "", fmt.Errorf("fallback generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("fallback generate: no response choices")
	}
	return resp.Choices[0].Content, nil
}
