package qdrant

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
)

type Config struct {
	URL             string
	APIKey          string
	Collection      string
	NamespacePrefix string
	Distance        string
	Timeout         time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidDistance   ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("invalid QDRANT_DISTANCE=%q; expected Cosine, Dot, Euclid or Manhattan", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Enabled reports whether a vector index is configured at all. An empty QDRANT_URL is not an
// error: the pipeline then runs without indexing.
func Enabled() bool {
	return strings.TrimSpace(envutil.String("QDRANT_URL", "")) != ""
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             envutil.String("QDRANT_URL", ""),
		APIKey:          envutil.String("QDRANT_API_KEY", ""),
		Collection:      envutil.String("QDRANT_COLLECTION", "content_chunks"),
		NamespacePrefix: envutil.String("QDRANT_NAMESPACE_PREFIX", "nb"),
		Distance:        envutil.String("QDRANT_DISTANCE", "Cosine"),
		Timeout:         envutil.Seconds("QDRANT_TIMEOUT_SECONDS", 10*time.Second),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Distance)) {
	case "", "cosine", "dot", "euclid", "manhattan":
	default:
		return &ConfigError{Code: ConfigErrorInvalidDistance, Value: cfg.Distance}
	}
	return nil
}
