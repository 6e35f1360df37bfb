package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/neurobridge-content/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const speechProvider = "gcp_speech"

type Speech interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error)
	TranscribeAudioGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string

	EnableAutomaticPunctuation bool
	EnableWordTimeOffsets      bool

	// WindowSec groups word offsets into segments of roughly this length.
	WindowSec float64
	Encoding  speechpb.RecognitionConfig_AudioEncoding
}

// TimedSegment is one transcript window. Times are milliseconds from the start of the audio;
// both are nil when the provider returned no word offsets.
type TimedSegment struct {
	Text       string
	StartMs    *int64
	EndMs      *int64
	Confidence *float64
}

type SpeechResult struct {
	Provider    string
	SourceURI   string
	PrimaryText string
	Segments    []TimedSegment
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewSpeech(ctx context.Context, log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctxutil.Default(ctx), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{
		log:        log.With("service", "gcp.Speech"),
		client:     c,
		maxRetries: 4,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 5*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{Provider: speechProvider}, nil
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(mimeType, "", cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := s.recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize(bytes): %w", err)
	}
	return parseSpeechResponse("", resp, cfg), nil
}

func (s *speechService) TranscribeAudioGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig("", gcsURI, cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI}},
	}
	resp, err := s.recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize(gcs): %w", err)
	}
	return parseSpeechResponse(gcsURI, resp, cfg), nil
}

func (s *speechService) recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err == nil {
			resp, waitErr := op.Wait(ctx)
			if waitErr == nil {
				return resp, nil
			}
			err = waitErr
		}
		last = err
		if !retryableSpeechCode(status.Code(err)) || attempt == s.maxRetries {
			break
		}
		s.log.Warn("speech recognize retrying", "attempt", attempt+1, "error", err)
		if err := httpx.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func retryableSpeechCode(c codes.Code) bool {
	return c == codes.Unavailable || c == codes.ResourceExhausted || c == codes.DeadlineExceeded
}

func buildRecognitionConfig(mimeType, gcsURI string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	enc := cfg.Encoding
	if enc == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		enc = inferSpeechEncoding(mimeType, gcsURI)
	}
	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      cfg.EnableWordTimeOffsets,
		Encoding:                   enc,
	}
}

func inferSpeechEncoding(mimeType, uri string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(uri))
	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg") || strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm") || ext == ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type speechWord struct {
	text  string
	start time.Duration
	end   time.Duration
	conf  float64
}

func parseSpeechResponse(sourceURI string, resp *speechpb.LongRunningRecognizeResponse, cfg SpeechConfig) *SpeechResult {
	out := &SpeechResult{Provider: speechProvider, SourceURI: sourceURI}
	if resp == nil {
		return out
	}
	var (
		words []speechWord
		full  strings.Builder
	)
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
		if !cfg.EnableWordTimeOffsets {
			continue
		}
		for _, w := range alt.Words {
			if w == nil || strings.TrimSpace(w.Word) == "" {
				continue
			}
			words = append(words, speechWord{
				text:  w.Word,
				start: toDuration(w.StartTime),
				end:   toDuration(w.EndTime),
				conf:  float64(w.Confidence),
			})
		}
	}
	out.PrimaryText = full.String()
	if out.PrimaryText == "" {
		return out
	}
	if len(words) > 0 {
		out.Segments = groupByTime(words, cfg.WindowSec)
	} else {
		out.Segments = []TimedSegment{{Text: out.PrimaryText}}
	}
	return out
}

func groupByTime(words []speechWord, windowSec float64) []TimedSegment {
	if windowSec <= 0 {
		windowSec = 10
	}
	window := time.Duration(windowSec * float64(time.Second))

	var (
		segs     []TimedSegment
		buf      strings.Builder
		curStart = words[0].start
		curEnd   = words[0].end
		confSum  float64
		confN    int
	)
	flush := func() {
		txt := strings.TrimSpace(buf.String())
		if txt == "" {
			return
		}
		startMs, endMs := curStart.Milliseconds(), curEnd.Milliseconds()
		seg := TimedSegment{Text: txt, StartMs: &startMs, EndMs: &endMs}
		if confN > 0 {
			c := confSum / float64(confN)
			seg.Confidence = &c
		}
		segs = append(segs, seg)
		buf.Reset()
		confSum, confN = 0, 0
	}
	for _, w := range words {
		if w.start-curStart >= window && buf.Len() > 0 {
			flush()
			curStart, curEnd = w.start, w.end
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.text)
		if w.end > curEnd {
			curEnd = w.end
		}
		if w.conf > 0 {
			confSum += w.conf
			confN++
		}
	}
	flush()
	return segs
}

func toDuration(d *durationpb.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return d.AsDuration()
}
