package adapters

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

const maxFeedAssetBytes = 256 * 1024

// feedDoc decodes both RSS 2.0 and Atom; only one side is populated.
type feedDoc struct {
	XMLName xml.Name
	Channel struct {
		Title       string    `xml:"title"`
		Description string    `xml:"description"`
		Language    string    `xml:"language"`
		Items       []rssItem `xml:"item"`
	} `xml:"channel"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Encoded     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	Summary     string `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd summary"`
	Duration    string `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
	PubDate     string `xml:"pubDate"`
	Enclosure   struct {
		URL    string `xml:"url,attr"`
		Type   string `xml:"type,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
}

type atomEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Content   string `xml:"content"`
	Updated   string `xml:"updated"`
	Published string `xml:"published"`
	Links     []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}

// episode is the normalized latest feed entry.
type episode struct {
	FeedTitle   string
	Title       string
	Description string
	Language    string
	AudioURL    string
	AudioType   string
	DurationSec int
	Published   time.Time
	Link        string
}

type PodcastAdapter struct {
	log     *logger.Logger
	gate    netguard.Validator
	fetcher fetch.Client
	cfg     Config
}

func NewPodcastAdapter(log *logger.Logger, gate netguard.Validator, fetcher fetch.Client, cfg Config) *PodcastAdapter {
	cfg.defaults()
	return &PodcastAdapter{log: log.With("adapter", "podcast"), gate: gate, fetcher: fetcher, cfg: cfg}
}

func (a *PodcastAdapter) Kind() SourceKind { return KindPodcast }

// Ingest reads the URL as a feed, or as a page that advertises one, and takes the latest
// episode. Episode audio always needs transcription; the description is kept as text.
func (a *PodcastAdapter) Ingest(ctx context.Context, rawURL string, meta ContentMeta) (*content.IngestedContent, error) {
	if err := a.gate.Validate(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrBlocked, err)
	}
	resp, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch podcast page: %w", err)
	}

	feedURL, feedBody := "", []byte(nil)
	var pm pageMeta
	if looksLikeFeed(resp.ContentType, resp.Body) {
		feedURL, feedBody = resp.URL, resp.Body
	} else if doc, perr := html.Parse(bytes.NewReader(resp.Body)); perr == nil {
		pm = readPageMeta(doc)
		for _, href := range pm.FeedURLs {
			abs, rerr := resolveRef(resp.URL, href)
			if rerr != nil {
				continue
			}
			fr, ferr := a.fetcher.Get(ctx, abs)
			if ferr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				a.log.Warn("feed fetch failed", "feed", abs, "error", ferr)
				continue
			}
			feedURL, feedBody = fr.URL, fr.Body
			break
		}
	}

	var ep *episode
	if feedBody != nil {
		if ep, err = latestEpisode(feedBody); err != nil {
			a.log.Warn("feed unreadable, using page metadata", "feed", feedURL, "error", err)
			ep = nil
		}
	}
	if ep == nil {
		ep = &episode{Title: firstNonEmpty(pm.OGTitle, pm.Title), Description: pm.Description, Language: pm.Language}
	}

	out := &content.IngestedContent{
		SourceType:  content.SourcePodcast,
		Language:    strings.TrimSpace(ep.Language),
		Title:       firstNonEmpty(ep.Title, meta.Title, ep.FeedTitle),
		DurationSec: meta.DurationSec,
		Metadata: map[string]any{
			"page_url":   resp.URL,
			"feed_url":   feedURL,
			"feed_title": ep.FeedTitle,
		},
	}
	if ep.DurationSec > 0 {
		out.DurationSec = ep.DurationSec
	}
	if !ep.Published.IsZero() {
		out.Metadata["published_at"] = ep.Published.UTC().Format(time.RFC3339)
	}
	if desc := descriptionText(ep.Description); desc != "" {
		out.Segments = segmenter.SegmentText(desc, "description", a.cfg.SegmentMaxChars)
		out.Text = joinSegments(out.Segments)
	}
	if ep.AudioURL != "" {
		abs, rerr := resolveRef(firstNonEmpty(feedURL, resp.URL), ep.AudioURL)
		if rerr == nil {
			out.AudioURL = abs
			out.NeedsTranscription = true
		}
	}
	if feedBody != nil {
		body := feedBody
		if len(body) > maxFeedAssetBytes {
			body = body[:maxFeedAssetBytes]
		}
		out.Assets = append(out.Assets, content.RawAsset{Kind: content.AssetFeed, URI: feedURL, Body: string(body)})
	}
	out.Assets = append(out.Assets, content.RawAsset{
		Kind: content.AssetMetadata,
		URI:  resp.URL,
		Metadata: map[string]any{
			"episode_title": ep.Title,
			"audio_url":     out.AudioURL,
			"audio_type":    ep.AudioType,
			"link":          ep.Link,
			"duration_sec":  out.DurationSec,
		},
	})
	if !out.NeedsTranscription && len(out.Segments) == 0 {
		return nil, fmt.Errorf("no episode audio or description found at %s", resp.URL)
	}
	return out, nil
}

func looksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}
	if strings.Contains(ct, "html") {
		return false
	}
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.ToLower(head)
	return bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed"))
}

func latestEpisode(body []byte) (*episode, error) {
	var doc feedDoc
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	switch strings.ToLower(doc.XMLName.Local) {
	case "rss":
		return latestRSS(&doc)
	case "feed":
		return latestAtom(&doc)
	}
	return nil, fmt.Errorf("unsupported feed root %q", doc.XMLName.Local)
}

func latestRSS(doc *feedDoc) (*episode, error) {
	items := doc.Channel.Items
	if len(items) == 0 {
		return nil, fmt.Errorf("feed has no items")
	}
	best, bestAt := 0, time.Time{}
	for i, it := range items {
		if at := parseFeedTime(it.PubDate); at.After(bestAt) {
			best, bestAt = i, at
		}
	}
	it := items[best]
	return &episode{
		FeedTitle:   strings.TrimSpace(doc.Channel.Title),
		Title:       strings.TrimSpace(it.Title),
		Description: firstNonEmpty(it.Encoded, it.Description, it.Summary),
		Language:    strings.TrimSpace(doc.Channel.Language),
		AudioURL:    strings.TrimSpace(it.Enclosure.URL),
		AudioType:   strings.TrimSpace(it.Enclosure.Type),
		DurationSec: parseDuration(it.Duration),
		Published:   bestAt,
		Link:        strings.TrimSpace(it.Link),
	}, nil
}

func latestAtom(doc *feedDoc) (*episode, error) {
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("feed has no entries")
	}
	best, bestAt := 0, time.Time{}
	for i, e := range doc.Entries {
		if at := parseFeedTime(firstNonEmpty(e.Published, e.Updated)); at.After(bestAt) {
			best, bestAt = i, at
		}
	}
	e := doc.Entries[best]
	ep := &episode{
		FeedTitle:   strings.TrimSpace(doc.Title),
		Title:       strings.TrimSpace(e.Title),
		Description: firstNonEmpty(e.Content, e.Summary),
		Published:   bestAt,
	}
	for _, l := range e.Links {
		switch strings.ToLower(l.Rel) {
		case "enclosure":
			if ep.AudioURL == "" {
				ep.AudioURL, ep.AudioType = strings.TrimSpace(l.Href), l.Type
			}
		case "", "alternate":
			if ep.Link == "" {
				ep.Link = strings.TrimSpace(l.Href)
			}
		}
	}
	return ep, nil
}

var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2006-01-02",
}

func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseDuration reads itunes:duration as seconds, mm:ss, or hh:mm:ss.
func parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	total := 0
	for _, p := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// descriptionText flattens an HTML episode description into paragraphs.
func descriptionText(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	if !strings.Contains(desc, "<") {
		return html.UnescapeString(desc)
	}
	marked := blockBoundary.ReplaceAllString(desc, "\n\n<$1>")
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(marked)))
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
