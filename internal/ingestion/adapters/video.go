package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/localmedia"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

// VideoProbe returns stream and caption metadata for a video page.
type VideoProbe interface {
	ProbeVideo(ctx context.Context, url string) (*localmedia.VideoInfo, error)
}

var captionFormatRank = map[string]int{"json3": 0, "vtt": 1, "srv3": 2, "srv1": 3, "srv2": 4, "ttml": 5}

const maxCaptionAttempts = 3

type captionCandidate struct {
	Lang  string
	Auto  bool
	Track localmedia.CaptionTrack
}

type VideoAdapter struct {
	log     *logger.Logger
	gate    netguard.Validator
	fetcher fetch.Client
	probe   VideoProbe
	cfg     Config
}

func NewVideoAdapter(log *logger.Logger, gate netguard.Validator, fetcher fetch.Client, probe VideoProbe, cfg Config) *VideoAdapter {
	cfg.defaults()
	return &VideoAdapter{log: log.With("adapter", "video"), gate: gate, fetcher: fetcher, probe: probe, cfg: cfg}
}

func (a *VideoAdapter) Kind() SourceKind { return KindVideo }

// Ingest prefers caption tracks (manual English, auto English, any manual, any auto). Without
// usable captions the description stands in and the best audio stream is handed to
// transcription.
func (a *VideoAdapter) Ingest(ctx context.Context, rawURL string, meta ContentMeta) (*content.IngestedContent, error) {
	if err := a.gate.Validate(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrBlocked, err)
	}
	info, err := a.probe.ProbeVideo(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	out := &content.IngestedContent{
		SourceType:  content.SourceVideo,
		Language:    strings.TrimSpace(info.Language),
		Title:       firstNonEmpty(info.Title, meta.Title),
		DurationSec: meta.DurationSec,
		Metadata: map[string]any{
			"video_id":    info.ID,
			"webpage_url": firstNonEmpty(info.WebpageURL, rawURL),
		},
	}
	if info.Duration > 0 {
		out.DurationSec = int(math.Round(info.Duration))
	}

	attempts := 0
	for _, cand := range captionCandidates(info) {
		if attempts >= maxCaptionAttempts {
			break
		}
		attempts++
		segs, body, err := a.loadCaptions(ctx, cand)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.log.Warn("caption track unusable", "lang", cand.Lang, "auto", cand.Auto, "ext", cand.Track.Ext, "error", err)
			continue
		}
		out.Segments = segs
		out.Text = joinSegments(segs)
		out.Language = firstNonEmpty(out.Language, baseLang(cand.Lang))
		out.Metadata["caption_source"] = captionSource(cand)
		out.Assets = append(out.Assets, content.RawAsset{
			Kind: content.AssetTranscript,
			URI:  cand.Track.URL,
			Body: string(body),
			Metadata: map[string]any{
				"lang":   cand.Lang,
				"auto":   cand.Auto,
				"format": cand.Track.Ext,
			},
		})
		a.log.Debug("captions loaded", "lang", cand.Lang, "auto", cand.Auto, "segments", len(segs))
		return out, nil
	}

	out.Metadata["caption_source"] = "none"
	if desc := strings.TrimSpace(info.Description); desc != "" {
		out.Segments = segmenter.SegmentText(desc, "description", a.cfg.SegmentMaxChars)
		out.Text = joinSegments(out.Segments)
	}
	if f, ok := bestAudio(info.Formats); ok {
		out.NeedsTranscription = true
		out.AudioURL = f.URL
		out.Metadata["audio_format"] = f.FormatID
	}
	if !out.NeedsTranscription && len(out.Segments) == 0 {
		return nil, errors.New("video has no captions, description or audio stream")
	}
	return out, nil
}

func (a *VideoAdapter) loadCaptions(ctx context.Context, cand captionCandidate) ([]content.RawSegment, []byte, error) {
	resp, err := a.fetcher.Get(ctx, cand.Track.URL)
	if err != nil {
		return nil, nil, err
	}
	cues, err := parseCaptions(cand.Track.Ext, resp.Body)
	if err != nil {
		return nil, nil, err
	}
	segs := mergeCues(cues, a.cfg.CaptionMergeChars, a.cfg.CaptionMergeMs)
	if len(segs) == 0 {
		return nil, nil, errors.New("caption track is empty")
	}
	return segs, resp.Body, nil
}

// captionCandidates orders tracks by preference, one track (best format) per language:
// manual English, auto English, other manual, other auto.
func captionCandidates(info *localmedia.VideoInfo) []captionCandidate {
	manualEn, manualOther := splitTracks(info.Subtitles, false)
	autoEn, autoOther := splitTracks(info.AutomaticCaptions, true)
	out := make([]captionCandidate, 0, len(manualEn)+len(autoEn)+len(manualOther)+len(autoOther))
	out = append(out, manualEn...)
	out = append(out, autoEn...)
	out = append(out, manualOther...)
	return append(out, autoOther...)
}

func splitTracks(tracks map[string][]localmedia.CaptionTrack, auto bool) (english, other []captionCandidate) {
	langs := make([]string, 0, len(tracks))
	for lang := range tracks {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		track, ok := bestTrack(tracks[lang])
		if !ok {
			continue
		}
		c := captionCandidate{Lang: lang, Auto: auto, Track: track}
		if isEnglish(lang) {
			english = append(english, c)
		} else {
			other = append(other, c)
		}
	}
	sortEnglish(english)
	return english, other
}

// sortEnglish puts plain "en" ahead of regional variants.
func sortEnglish(c []captionCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Lang == "en" && c[j].Lang != "en"
	})
}

func bestTrack(tracks []localmedia.CaptionTrack) (localmedia.CaptionTrack, bool) {
	var best localmedia.CaptionTrack
	bestRank := math.MaxInt
	for _, t := range tracks {
		rank, ok := captionFormatRank[strings.ToLower(t.Ext)]
		if !ok || t.URL == "" {
			continue
		}
		if rank < bestRank {
			best, bestRank = t, rank
		}
	}
	return best, bestRank != math.MaxInt
}

// bestAudio prefers audio-only streams, then higher bitrate, then higher sample rate.
func bestAudio(formats []localmedia.Format) (localmedia.Format, bool) {
	var cands []localmedia.Format
	for _, f := range formats {
		if f.HasAudio() {
			cands = append(cands, f)
		}
	}
	if len(cands) == 0 {
		return localmedia.Format{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.AudioOnly() != b.AudioOnly() {
			return a.AudioOnly()
		}
		if a.ABR != b.ABR {
			return a.ABR > b.ABR
		}
		return a.ASR > b.ASR
	})
	return cands[0], true
}

func isEnglish(lang string) bool {
	l := strings.ToLower(lang)
	return l == "en" || strings.HasPrefix(l, "en-") || strings.HasPrefix(l, "en_")
}

func baseLang(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return lang[:i]
	}
	return lang
}

func captionSource(c captionCandidate) string {
	if c.Auto {
		return "auto"
	}
	return "manual"
}
