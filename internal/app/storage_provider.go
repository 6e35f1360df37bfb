package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-content/internal/platform/gcp"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

var newAudioStager = gcp.NewAudioStager

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "audio staging bootstrap failed"
	}
	return fmt.Sprintf(
		"audio staging bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveAudioStager returns nil when no TRANSCRIBE_BUCKET is configured; transcription then
// sends audio inline.
func resolveAudioStager(ctx context.Context, log *logger.Logger, cfg Config) (gcp.AudioStager, error) {
	if strings.TrimSpace(cfg.TranscribeBucket) == "" {
		log.Info("Audio staging disabled (TRANSCRIBE_BUCKET unset); long recordings are sent inline")
		return nil, nil
	}

	stagingCfg, err := gcp.StagingConfigFromEnv(cfg.TranscribeBucket, cfg.TranscribePrefix)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(stagingCfg, err)
		log.Error(
			"Audio staging config invalid",
			"mode", stagingCfg.Mode,
			"emulator_host", stagingCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting audio staging bucket",
		"mode", stagingCfg.Mode,
		"implied_mode", stagingCfg.ImpliedMode,
		"emulator_host", stagingCfg.EmulatorHost,
		"bucket", stagingCfg.Bucket,
		"prefix", stagingCfg.Prefix,
	)

	stager, err := newAudioStager(ctx, log, stagingCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(stagingCfg, err)
		log.Error("Audio staging bootstrap failed", "error_code", storageProviderBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}
	return stager, nil
}

func classifyStorageProviderBootstrapError(stagingCfg gcp.StagingConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.StagingConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.StagingConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.StagingConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.StagingConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case gcp.StagingConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		}
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(stagingCfg.Mode),
		EmulatorHost: stagingCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
