package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_NAMESPACE_PREFIX", "")
	t.Setenv("QDRANT_DISTANCE", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != "content_chunks" || cfg.NamespacePrefix != "nb" || cfg.Distance != "Cosine" {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	cases := map[ConfigErrorCode]Config{
		ConfigErrorMissingURL:        {Collection: "c"},
		ConfigErrorInvalidURL:        {URL: "qdrant:6333", Collection: "c"},
		ConfigErrorMissingCollection: {URL: "http://qdrant:6333"},
		ConfigErrorInvalidDistance:   {URL: "http://qdrant:6333", Collection: "c", Distance: "hamming"},
	}
	for code, cfg := range cases {
		err := ValidateConfig(cfg)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Code != code {
			t.Fatalf("%s: got %v", code, err)
		}
	}
}

func TestEnabled(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	if Enabled() {
		t.Fatalf("empty QDRANT_URL must disable the index")
	}
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	if !Enabled() {
		t.Fatalf("QDRANT_URL set must enable the index")
	}
}
