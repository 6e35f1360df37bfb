package app

import (
	"errors"
	"fmt"

	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

var newQdrantVectorStore = qdrant.NewVectorStore

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorMissingQdrantURL   VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL   VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl  VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidDistance    VectorProviderBootstrapErrorCode = "invalid_qdrant_distance"
	VectorProviderBootstrapErrorQdrantConfigFailed VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorProviderInitFailed VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code       VectorProviderBootstrapErrorCode
	Collection string
	Cause      error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s collection=%q): %v", e.Code, e.Collection, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore returns nil without error when QDRANT_URL is unset. The vector index then
// degrades to lexical retrieval and the pipeline skips indexing.
func resolveVectorStore(log *logger.Logger) (qdrant.VectorStore, error) {
	if !qdrant.Enabled() {
		log.Warn("Vector store disabled (QDRANT_URL unset); QA falls back to lexical retrieval")
		return nil, nil
	}
	cfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		classified := classifyVectorProviderBootstrapError(cfg.Collection, err)
		log.Error("Vector store config invalid", "error_code", vectorProviderBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}

	log.Info(
		"Selecting vector store provider",
		"provider", "qdrant",
		"qdrant_url", cfg.URL,
		"qdrant_collection", cfg.Collection,
		"qdrant_namespace_prefix", cfg.NamespacePrefix,
		"qdrant_distance", cfg.Distance,
	)
	vs, err := newQdrantVectorStore(log, cfg)
	if err != nil {
		classified := &VectorProviderBootstrapError{
			Code:       VectorProviderBootstrapErrorProviderInitFailed,
			Collection: cfg.Collection,
			Cause:      err,
		}
		log.Error("Vector store bootstrap failed", "error_code", classified.Code, "error", classified)
		return nil, classified
	}
	return instrumentVectorStore("qdrant", vs), nil
}

func classifyVectorProviderBootstrapError(collection string, err error) error {
	code := VectorProviderBootstrapErrorQdrantConfigFailed
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidDistance:
			code = VectorProviderBootstrapErrorInvalidDistance
		}
	}
	return &VectorProviderBootstrapError{Code: code, Collection: collection, Cause: err}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorProviderInitFailed
}
