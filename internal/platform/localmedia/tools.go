package localmedia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

// Tools wraps the system binaries used by video ingestion.
//
// REQUIRED BINARIES in worker runtime:
// - yt-dlp for video metadata, caption tracks and stream urls
//
// Calls are synchronous and belong in worker jobs, not request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error
	ProbeVideo(ctx context.Context, url string) (*VideoInfo, error)
}

// VideoInfo is the subset of `yt-dlp --dump-single-json` the pipeline reads.
type VideoInfo struct {
	ID                string                    `json:"id"`
	Title             string                    `json:"title"`
	Description       string                    `json:"description"`
	Language          string                    `json:"language"`
	WebpageURL        string                    `json:"webpage_url"`
	Duration          float64                   `json:"duration"`
	Subtitles         map[string][]CaptionTrack `json:"subtitles"`
	AutomaticCaptions map[string][]CaptionTrack `json:"automatic_captions"`
	Formats           []Format                  `json:"formats"`
}

type CaptionTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

type Format struct {
	FormatID       string  `json:"format_id"`
	URL            string  `json:"url"`
	Ext            string  `json:"ext"`
	ACodec         string  `json:"acodec"`
	VCodec         string  `json:"vcodec"`
	ABR            float64 `json:"abr"`
	ASR            float64 `json:"asr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

// HasAudio reports whether the format carries an audio stream at a fetchable url.
func (f Format) HasAudio() bool {
	return f.URL != "" && f.ACodec != "" && f.ACodec != "none"
}

// AudioOnly reports an audio stream without video.
func (f Format) AudioOnly() bool {
	return f.HasAudio() && (f.VCodec == "" || f.VCodec == "none")
}

type tools struct {
	log          *logger.Logger
	ytdlpPath    string
	probeTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:          log.With("service", "MediaTools"),
		ytdlpPath:    envutil.String("YTDLP_PATH", "yt-dlp"),
		probeTimeout: envutil.Seconds("YTDLP_TIMEOUT_SECONDS", 90*time.Second),
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(m.ytdlpPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", m.ytdlpPath, err)
	}
	return nil
}

func (m *tools) ProbeVideo(ctx context.Context, url string) (*VideoInfo, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url required")
	}
	if err := m.AssertReady(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ytdlpPath,
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--",
		url,
	)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w; stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	m.log.Debug("video probed", "id", info.ID, "formats", len(info.Formats),
		"subtitle_langs", len(info.Subtitles), "auto_caption_langs", len(info.AutomaticCaptions))
	return &info, nil
}
