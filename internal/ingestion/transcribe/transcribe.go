// Package transcribe turns a remote audio stream into timed segments.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/gcp"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

var (
	ErrAudioTooLong  = errors.New("transcribe: audio exceeds maximum duration")
	ErrAudioTooLarge = errors.New("transcribe: audio exceeds maximum size")
	ErrNoAudio       = errors.New("transcribe: audio url required")
)

type Config struct {
	MaxDurationSec int
	MaxBytes       int64
	// InlineMaxBytes bounds audio sent inline when no staging bucket is configured.
	InlineMaxBytes int64
	WindowSec      float64
	Model          string
}

func ConfigFromEnv() Config {
	return Config{
		MaxDurationSec: envutil.Int("TRANSCRIBE_MAX_DURATION_SECONDS", 3*60*60),
		MaxBytes:       envutil.Int64("TRANSCRIBE_MAX_BYTES", 200<<20),
		InlineMaxBytes: envutil.Int64("TRANSCRIBE_INLINE_MAX_BYTES", 10<<20),
		WindowSec:      envutil.Float("TRANSCRIBE_WINDOW_SECONDS", 10),
		Model:          envutil.String("TRANSCRIBE_MODEL", ""),
	}
}

func (c *Config) defaults() {
	if c.MaxDurationSec <= 0 {
		c.MaxDurationSec = 3 * 60 * 60
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 200 << 20
	}
	if c.InlineMaxBytes <= 0 {
		c.InlineMaxBytes = 10 << 20
	}
	if c.WindowSec <= 0 {
		c.WindowSec = 10
	}
}

type Request struct {
	AudioURL    string
	Language    string
	DurationSec int
	ContentID   uuid.UUID
}

type Result struct {
	Provider  string
	SourceURI string
	Language  string
	Text      string
	Segments  []content.RawSegment
}

type Service interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

type service struct {
	log     *logger.Logger
	fetcher fetch.Client
	speech  gcp.Speech
	stager  gcp.AudioStager
	cfg     Config
}

// New builds the service. stager may be nil, in which case audio is sent inline and capped
// at cfg.InlineMaxBytes.
func New(log *logger.Logger, fetcher fetch.Client, speech gcp.Speech, stager gcp.AudioStager, cfg Config) Service {
	cfg.defaults()
	return &service{
		log:     log.With("service", "Transcribe"),
		fetcher: fetcher,
		speech:  speech,
		stager:  stager,
		cfg:     cfg,
	}
}

func (s *service) Transcribe(ctx context.Context, req Request) (*Result, error) {
	audioURL := strings.TrimSpace(req.AudioURL)
	if audioURL == "" {
		return nil, ErrNoAudio
	}
	if req.DurationSec > s.cfg.MaxDurationSec {
		return nil, fmt.Errorf("%w: %ds > %ds", ErrAudioTooLong, req.DurationSec, s.cfg.MaxDurationSec)
	}
	limit := s.byteLimit()

	if err := s.checkDeclaredSize(ctx, audioURL, limit); err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Open(ctx, http.MethodGet, audioURL)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrAudioTooLarge, resp.ContentLength, limit)
	}
	mimeType := audioMimeType(resp.Header.Get("Content-Type"), audioURL)
	body := &limitedReader{r: resp.Body, limit: limit}

	speechCfg := gcp.SpeechConfig{
		LanguageCode:               speechLanguage(req.Language),
		Model:                      s.cfg.Model,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		WindowSec:                  s.cfg.WindowSec,
	}

	var sr *gcp.SpeechResult
	if s.stager != nil {
		key := stageKey(req.ContentID, audioURL)
		uri, err := s.stager.Stage(ctx, key, body, mimeType)
		if err != nil {
			return nil, fmt.Errorf("stage audio: %w", err)
		}
		defer func() {
			if rmErr := s.stager.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
				s.log.Warn("staged audio cleanup failed", "uri", uri, "error", rmErr)
			}
		}()
		sr, err = s.speech.TranscribeAudioGCS(ctx, uri, speechCfg)
		if err != nil {
			return nil, err
		}
	} else {
		audio, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read audio: %w", err)
		}
		sr, err = s.speech.TranscribeAudioBytes(ctx, audio, mimeType, speechCfg)
		if err != nil {
			return nil, err
		}
	}

	out := &Result{
		Provider:  sr.Provider,
		SourceURI: firstNonEmpty(sr.SourceURI, audioURL),
		Language:  speechCfg.LanguageCode,
		Text:      strings.TrimSpace(sr.PrimaryText),
	}
	for _, seg := range sr.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, content.RawSegment{Text: text, StartMs: seg.StartMs, EndMs: seg.EndMs})
	}
	if len(out.Segments) == 0 && out.Text != "" {
		out.Segments = []content.RawSegment{{Text: out.Text}}
	}
	s.log.Info("audio transcribed", "bytes", body.n, "segments", len(out.Segments), "staged", s.stager != nil)
	return out, nil
}

func (s *service) byteLimit() int64 {
	if s.stager == nil && s.cfg.InlineMaxBytes < s.cfg.MaxBytes {
		return s.cfg.InlineMaxBytes
	}
	return s.cfg.MaxBytes
}

// checkDeclaredSize rejects audio whose HEAD response declares a size over limit. Servers
// that refuse HEAD are tolerated; the streaming guard still applies.
func (s *service) checkDeclaredSize(ctx context.Context, audioURL string, limit int64) error {
	resp, err := s.fetcher.Open(ctx, http.MethodHead, audioURL)
	if err != nil {
		var se *httpx.StatusError
		if errors.Is(err, fetch.ErrBlocked) || errors.Is(err, fetch.ErrTooManyRedirects) || ctx.Err() != nil {
			return fmt.Errorf("probe audio: %w", err)
		}
		if errors.As(err, &se) {
			s.log.Debug("audio HEAD refused", "status", se.StatusCode)
			return nil
		}
		s.log.Debug("audio HEAD failed", "error", err)
		return nil
	}
	resp.Body.Close()
	if resp.ContentLength > limit {
		return fmt.Errorf("%w: %d bytes > %d", ErrAudioTooLarge, resp.ContentLength, limit)
	}
	return nil
}

// limitedReader fails once more than limit bytes have been read.
type limitedReader struct {
	r     io.Reader
	limit int64
	n     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrAudioTooLarge, l.limit)
	}
	return n, err
}

func audioMimeType(header, audioURL string) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "audio/") {
		return mt
	}
	switch strings.ToLower(path.Ext(strings.SplitN(audioURL, "?", 2)[0])) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4", ".aac":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}

func speechLanguage(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "en-US"
	}
	if len(hint) == 2 && strings.EqualFold(hint, "en") {
		return "en-US"
	}
	return hint
}

func stageKey(contentID uuid.UUID, audioURL string) string {
	ext := path.Ext(strings.SplitN(audioURL, "?", 2)[0])
	if len(ext) > 6 {
		ext = ""
	}
	owner := "adhoc"
	if contentID != uuid.Nil {
		owner = contentID.String()
	}
	return "transcribe/" + owner + "/" + uuid.NewString() + ext
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
