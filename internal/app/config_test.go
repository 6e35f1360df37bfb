package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

func TestApplyConfigFileFillsUnsetKeysOnly(t *testing.T) {
	t.Setenv("WORKER_MAX_RETRIES", "7")
	t.Setenv("QA_TOP_K", "")
	os.Unsetenv("QA_TOP_K")
	os.Unsetenv("WORKER_BACKOFF_SECONDS")
	os.Unsetenv("CORS_ALLOW_ORIGINS")
	t.Cleanup(func() {
		os.Unsetenv("QA_TOP_K")
		os.Unsetenv("WORKER_BACKOFF_SECONDS")
		os.Unsetenv("CORS_ALLOW_ORIGINS")
	})

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	body := []byte(`
worker_max_retries: 2
qa_top_k: 9
worker_backoff_seconds: [1, 4, 9]
cors_allow_origins:
  - https://a.example
  - https://b.example
llm_fallback_enabled: false
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := applyConfigFile(path)
	if err != nil {
		t.Fatalf("applyConfigFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("applied: want=3 got=%d", n)
	}
	if got := os.Getenv("WORKER_MAX_RETRIES"); got != "7" {
		t.Fatalf("env must win: got=%q", got)
	}
	if got := os.Getenv("QA_TOP_K"); got != "9" {
		t.Fatalf("QA_TOP_K: got=%q", got)
	}
	if got := os.Getenv("WORKER_BACKOFF_SECONDS"); got != "1,4,9" {
		t.Fatalf("WORKER_BACKOFF_SECONDS: got=%q", got)
	}
	if got := os.Getenv("CORS_ALLOW_ORIGINS"); got != "https://a.example,https://b.example" {
		t.Fatalf("CORS_ALLOW_ORIGINS: got=%q", got)
	}
}

func TestApplyConfigFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("a: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := applyConfigFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigReadsFetchSettings(t *testing.T) {
	t.Setenv("PIPELINE_CONFIG_FILE", "")
	t.Setenv("FETCH_MAX_REDIRECTS", "3")
	t.Setenv("FETCH_MAX_BYTES", "1024")
	t.Setenv("FETCH_RATE_PER_SEC", "0.5")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Fetch.MaxRedirects != 3 || cfg.Fetch.MaxBytes != 1024 || cfg.Fetch.RatePerSecond != 0.5 {
		t.Fatalf("fetch config: %+v", cfg.Fetch)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("HTTPAddr: got=%q", cfg.HTTPAddr)
	}
}

func TestLoadConfigLeavesLLMFallbackOffByDefault(t *testing.T) {
	t.Setenv("PIPELINE_CONFIG_FILE", "")
	t.Setenv("LLM_FALLBACK_ENABLED", "")
	os.Unsetenv("LLM_FALLBACK_ENABLED")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLMFallbackEnabled {
		t.Fatalf("LLMFallbackEnabled: want=false when unset")
	}

	t.Setenv("LLM_FALLBACK_ENABLED", "true")
	cfg, err = LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.LLMFallbackEnabled {
		t.Fatalf("LLMFallbackEnabled: want=true when set")
	}
}
