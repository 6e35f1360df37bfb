package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

// AudioStager writes audio to a bucket so long recordings can be recognized by URI.
type AudioStager interface {
	Stage(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

type audioStager struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewAudioStager(ctx context.Context, log *logger.Logger, cfg StagingConfig) (AudioStager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := storage.NewClient(ctxutil.Default(ctx), cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &audioStager{
		log:    log.With("service", "gcp.AudioStager", "mode", string(cfg.Mode)),
		client: c,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *audioStager) objectName(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Stage uploads r and returns its gs:// URI.
func (s *audioStager) Stage(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	ctx = ctxutil.Default(ctx)
	name := s.objectName(key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write audio to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	uri := GCSURI(s.bucket, name)
	s.log.Debug("audio staged", "uri", uri, "bytes", n)
	return uri, nil
}

func (s *audioStager) Remove(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctxutil.Default(ctx))
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete staged audio: %w", err)
	}
	return nil
}

func (s *audioStager) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func GCSURI(bucket, object string) string {
	return "gs://" + bucket + "/" + strings.TrimLeft(object, "/")
}
