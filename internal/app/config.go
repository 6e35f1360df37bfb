package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	HTTPAddr     string
	JWTSecretKey string
	CORSOrigins  []string

	TranscribeBucket string
	TranscribePrefix string

	LLMFallbackEnabled bool

	Fetch fetch.Config
}

// LoadConfig applies the optional PIPELINE_CONFIG_FILE overlay and then reads the environment.
// Every package-level ConfigFromEnv sees the overlay too, since it is applied to the process env.
func LoadConfig(log *logger.Logger) (Config, error) {
	if path := strings.TrimSpace(os.Getenv("PIPELINE_CONFIG_FILE")); path != "" {
		n, err := applyConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		log.Info("Config overlay applied", "path", path, "keys", n)
	}

	cfg := Config{
		ServiceName:        envutil.String("SERVICE_NAME", "neurobridge-content"),
		Environment:        envutil.String("ENVIRONMENT", "development"),
		Version:            envutil.String("SERVICE_VERSION", "dev"),
		HTTPAddr:           envutil.String("HTTP_ADDR", ":8080"),
		JWTSecretKey:       envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:        envutil.CSV("CORS_ALLOW_ORIGINS", nil),
		TranscribeBucket:   envutil.String("TRANSCRIBE_BUCKET", ""),
		TranscribePrefix:   envutil.String("TRANSCRIBE_PREFIX", "transcribe"),
		LLMFallbackEnabled: envutil.Bool("LLM_FALLBACK_ENABLED", false),
		Fetch: fetch.Config{
			Timeout:       envutil.Seconds("FETCH_TIMEOUT_SECONDS", 30*time.Second),
			MaxBytes:      envutil.Int64("FETCH_MAX_BYTES", 10<<20),
			MaxRedirects:  envutil.Int("FETCH_MAX_REDIRECTS", 5),
			UserAgent:     envutil.String("FETCH_USER_AGENT", ""),
			RatePerSecond: envutil.Float("FETCH_RATE_PER_SEC", 4),
			Burst:         envutil.Int("FETCH_BURST", 4),
		},
	}
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY is empty; every API request will be rejected")
	}
	return cfg, nil
}

// applyConfigFile reads a flat YAML map of env names to values and sets the ones the
// environment does not already define. Lists are joined with commas.
func applyConfigFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return 0, fmt.Errorf("parse config file %s: %w", path, err)
	}
	applied := 0
	for k, v := range values {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" || v == nil {
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		val := overlayValue(v)
		if val == "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return applied, fmt.Errorf("set %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}

func overlayValue(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := overlayValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
