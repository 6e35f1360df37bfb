// Package adapters turns a source URL into IngestedContent. The set of adapters is closed:
// blog (default), video and podcast.
package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
)

type SourceKind string

const (
	KindBlog    SourceKind = content.SourceBlog
	KindVideo   SourceKind = content.SourceVideo
	KindPodcast SourceKind = content.SourcePodcast
)

// ContentMeta is the catalog metadata an adapter may use.
type ContentMeta struct {
	Provider    string
	ContentType string
	Title       string
	DurationSec int
}

type Adapter interface {
	Kind() SourceKind
	Ingest(ctx context.Context, rawURL string, meta ContentMeta) (*content.IngestedContent, error)
}

type Config struct {
	SegmentMaxChars int
	// BlogMaxChars caps the text kept from one article.
	BlogMaxChars int
	// MinArticleChars is the least readable text before the blog adapter falls back to tag
	// stripping.
	MinArticleChars int
	// CaptionMergeChars bounds how many caption characters are merged into one segment.
	CaptionMergeChars int
	// CaptionMergeMs bounds the time span of one merged caption segment.
	CaptionMergeMs int64
}

func ConfigFromEnv() Config {
	return Config{
		SegmentMaxChars:   envutil.Int("SEGMENT_MAX_CHARS", segmenter.DefaultMaxChars),
		BlogMaxChars:      envutil.Int("BLOG_MAX_CHARS", 60000),
		MinArticleChars:   envutil.Int("BLOG_MIN_ARTICLE_CHARS", 200),
		CaptionMergeChars: envutil.Int("CAPTION_MERGE_CHARS", 600),
		CaptionMergeMs:    envutil.Int64("CAPTION_MERGE_MS", 30000),
	}
}

func (c *Config) defaults() {
	if c.SegmentMaxChars <= 0 {
		c.SegmentMaxChars = segmenter.DefaultMaxChars
	}
	if c.BlogMaxChars <= 0 {
		c.BlogMaxChars = 60000
	}
	if c.MinArticleChars <= 0 {
		c.MinArticleChars = 200
	}
	if c.CaptionMergeChars <= 0 {
		c.CaptionMergeChars = 600
	}
	if c.CaptionMergeMs <= 0 {
		c.CaptionMergeMs = 30000
	}
}

var (
	videoProviders = map[string]bool{
		"youtube": true, "youtu.be": true, "vimeo": true, "dailymotion": true, "twitch": true, "video": true,
	}
	podcastProviders = map[string]bool{
		"podcast": true, "spotify": true, "apple_podcasts": true, "apple": true, "soundcloud": true,
		"anchor": true, "buzzsprout": true, "libsyn": true, "podbean": true, "simplecast": true,
		"transistor": true, "megaphone": true, "audio": true,
	}
	videoHosts   = []string{"youtube.com", "youtu.be", "vimeo.com", "dailymotion.com", "twitch.tv"}
	podcastHosts = []string{"podcasts.apple.com", "open.spotify.com", "soundcloud.com", "anchor.fm",
		"buzzsprout.com", "libsyn.com", "podbean.com", "simplecast.com", "transistor.fm", "megaphone.fm"}
)

// Resolve picks the adapter kind from the catalog tags, then from the URL host. Anything
// unrecognized is treated as a blog article.
func Resolve(meta ContentMeta, rawURL string) SourceKind {
	provider := strings.ToLower(strings.TrimSpace(meta.Provider))
	ctype := strings.ToLower(strings.TrimSpace(meta.ContentType))
	switch {
	case ctype == "video" || videoProviders[provider]:
		return KindVideo
	case ctype == "podcast" || ctype == "audio" || podcastProviders[provider]:
		return KindPodcast
	}
	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(u.Hostname())
		if hostMatches(host, videoHosts) {
			return KindVideo
		}
		if hostMatches(host, podcastHosts) {
			return KindPodcast
		}
	}
	return KindBlog
}

func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Set holds one adapter per kind and dispatches to them.
type Set struct {
	adapters map[SourceKind]Adapter
}

func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: map[SourceKind]Adapter{}}
	for _, a := range adapters {
		if a != nil {
			s.adapters[a.Kind()] = a
		}
	}
	return s
}

func (s *Set) For(kind SourceKind) (Adapter, error) {
	a, ok := s.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q", kind)
	}
	return a, nil
}

// Ingest resolves the adapter once and runs it.
func (s *Set) Ingest(ctx context.Context, rawURL string, meta ContentMeta) (*content.IngestedContent, error) {
	a, err := s.For(Resolve(meta, rawURL))
	if err != nil {
		return nil, err
	}
	return a.Ingest(ctx, rawURL, meta)
}

func joinSegments(segs []content.RawSegment) string {
	var b strings.Builder
	for _, s := range segs {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t)
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
