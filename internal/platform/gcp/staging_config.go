package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
)

// StagingMode selects the backend staged audio is written to.
type StagingMode string

const (
	StagingModeGCS      StagingMode = "gcs"
	StagingModeEmulator StagingMode = "gcs_emulator"
)

// StagingConfig describes where long recordings are staged before recognition.
type StagingConfig struct {
	Mode         StagingMode
	EmulatorHost string
	Bucket       string
	Prefix       string
	// ImpliedMode is set when the emulator was picked only because STORAGE_EMULATOR_HOST is set.
	ImpliedMode bool
}

type StagingConfigErrorCode string

const (
	StagingConfigErrorMissingBucket       StagingConfigErrorCode = "missing_bucket"
	StagingConfigErrorInvalidMode         StagingConfigErrorCode = "invalid_mode"
	StagingConfigErrorMissingEmulatorHost StagingConfigErrorCode = "missing_emulator_host"
	StagingConfigErrorInvalidEmulatorHost StagingConfigErrorCode = "invalid_emulator_host"
)

type StagingConfigError struct {
	Code  StagingConfigErrorCode
	Value string
	Cause error
}

func (e *StagingConfigError) Error() string {
	if e == nil {
		return "invalid audio staging config"
	}
	switch e.Code {
	case StagingConfigErrorMissingBucket:
		return "audio staging requires TRANSCRIBE_BUCKET"
	case StagingConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, StagingModeGCS, StagingModeEmulator)
	case StagingConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", StagingModeEmulator)
	case StagingConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected a URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid audio staging config"
	}
}

func (e *StagingConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// StagingConfigFromEnv combines the bucket and prefix with OBJECT_STORAGE_MODE and
// STORAGE_EMULATOR_HOST. An unset mode means gcs unless an emulator host is present.
func StagingConfigFromEnv(bucket, prefix string) (StagingConfig, error) {
	cfg := StagingConfig{
		Bucket:       strings.TrimSpace(bucket),
		Prefix:       strings.Trim(strings.TrimSpace(prefix), "/"),
		EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
	}
	raw := envutil.String("OBJECT_STORAGE_MODE", "")
	switch StagingMode(strings.ToLower(raw)) {
	case "":
		cfg.Mode = StagingModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StagingModeEmulator
			cfg.ImpliedMode = true
		}
	case StagingModeGCS:
		cfg.Mode = StagingModeGCS
	case StagingModeEmulator:
		cfg.Mode = StagingModeEmulator
	default:
		return cfg, &StagingConfigError{Code: StagingConfigErrorInvalidMode, Value: raw}
	}
	return cfg, cfg.Validate()
}

func (cfg StagingConfig) Validate() error {
	if cfg.Bucket == "" {
		return &StagingConfigError{Code: StagingConfigErrorMissingBucket}
	}
	switch cfg.Mode {
	case StagingModeGCS:
		return nil
	case StagingModeEmulator:
	default:
		return &StagingConfigError{Code: StagingConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if cfg.EmulatorHost == "" {
		return &StagingConfigError{Code: StagingConfigErrorMissingEmulatorHost}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &StagingConfigError{Code: StagingConfigErrorInvalidEmulatorHost, Value: cfg.EmulatorHost, Cause: err}
	}
	return nil
}

// ClientOptions points the storage client at the emulator without credentials, or at GCS with
// the credentials from the environment.
func (cfg StagingConfig) ClientOptions() []option.ClientOption {
	if cfg.Mode == StagingModeEmulator {
		return []option.ClientOption{
			option.WithEndpoint(strings.TrimRight(cfg.EmulatorHost, "/") + "/storage/v1/"),
			option.WithoutAuthentication(),
		}
	}
	return ClientOptionsFromEnv()
}
