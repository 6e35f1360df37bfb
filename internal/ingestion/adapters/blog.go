package adapters

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

const (
	extractorReadability = "readability"
	extractorStripped    = "stripped"
)

// stripPolicy removes every tag.
var stripPolicy = bluemonday.StrictPolicy()

var blockBoundary = regexp.MustCompile(`(?i)<\s*(/?(p|div|section|article|li|ul|ol|h[1-6]|blockquote|pre|tr|table|header|footer|main)\b[^>]*|br\s*/?)>`)

// BlogAdapter extracts readable article text from an HTML page.
type BlogAdapter struct {
	log     *logger.Logger
	gate    netguard.Validator
	fetcher fetch.Client
	cfg     Config
	md      *converter.Converter
}

func NewBlogAdapter(log *logger.Logger, gate netguard.Validator, fetcher fetch.Client, cfg Config) *BlogAdapter {
	cfg.defaults()
	return &BlogAdapter{
		log:     log.With("adapter", "blog"),
		gate:    gate,
		fetcher: fetcher,
		cfg:     cfg,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (a *BlogAdapter) Kind() SourceKind { return KindBlog }

func (a *BlogAdapter) Ingest(ctx context.Context, rawURL string, meta ContentMeta) (*content.IngestedContent, error) {
	if err := a.gate.Validate(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrBlocked, err)
	}
	resp, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch article: %w", err)
	}
	return a.fromHTML(resp.URL, resp.Body, meta)
}

func (a *BlogAdapter) fromHTML(finalURL string, body []byte, meta ContentMeta) (*content.IngestedContent, error) {
	rawHTML := string(body)
	doc, parseErr := html.Parse(bytes.NewReader(body))

	var (
		segs      []content.RawSegment
		pm        pageMeta
		art       *article
		extractor = extractorReadability
	)
	if parseErr == nil {
		pm = readPageMeta(doc)
		art = extractArticle(doc, a.cfg.MinArticleChars)
		if art.textLen() >= a.cfg.MinArticleChars {
			segs = a.articleSegments(art)
		}
	} else {
		a.log.Warn("html parse failed, stripping tags", "url", finalURL, "error", parseErr)
	}
	if len(segs) == 0 {
		extractor = extractorStripped
		segs = a.strippedSegments(rawHTML)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("no readable text at %s", finalURL)
	}

	title := firstNonEmpty(pm.OGTitle, pm.Title, meta.Title)
	if art != nil {
		title = firstNonEmpty(pm.OGTitle, pm.Title, art.Title, meta.Title)
	}
	text := joinSegments(segs)

	assets := []content.RawAsset{
		{Kind: content.AssetRawHTML, URI: finalURL, Body: rawHTML},
		{Kind: content.AssetCleanText, URI: finalURL, Body: text},
	}
	mdSource := rawHTML
	if art != nil && art.Root != nil && extractor == extractorReadability {
		mdSource = renderNode(art.Root)
	}
	if md := a.markdown(mdSource, finalURL); md != "" {
		assets = append(assets, content.RawAsset{Kind: content.AssetMarkdown, URI: finalURL, Body: md})
	}

	a.log.Debug("article extracted", "url", finalURL, "extractor", extractor, "segments", len(segs), "chars", len(text))
	return &content.IngestedContent{
		SourceType: content.SourceBlog,
		Language:   strings.TrimSpace(pm.Language),
		Title:      title,
		Text:       text,
		Segments:   segs,
		Assets:     assets,
		Metadata: map[string]any{
			"final_url":   finalURL,
			"extractor":   extractor,
			"description": pm.Description,
			"canonical":   pm.Canonical,
		},
	}, nil
}

func (a *BlogAdapter) articleSegments(art *article) []content.RawSegment {
	var out []content.RawSegment
	budget := a.cfg.BlogMaxChars
	for _, sec := range art.Sections {
		for _, p := range sec.Paragraphs {
			if len(p) > budget {
				return append(out, segmenter.SegmentText(truncateAtWord(p, budget), sec.Path, a.cfg.SegmentMaxChars)...)
			}
			budget -= len(p)
			out = append(out, segmenter.SegmentText(p, sec.Path, a.cfg.SegmentMaxChars)...)
		}
	}
	return out
}

// strippedSegments sanitizes every tag away, keeping block boundaries as blank lines.
func (a *BlogAdapter) strippedSegments(rawHTML string) []content.RawSegment {
	marked := blockBoundary.ReplaceAllString(rawHTML, "\n\n<$1>")
	text := html.UnescapeString(stripPolicy.Sanitize(marked))
	if len(text) > a.cfg.BlogMaxChars {
		text = truncateAtWord(text, a.cfg.BlogMaxChars)
	}
	return segmenter.SegmentText(text, "", a.cfg.SegmentMaxChars)
}

func (a *BlogAdapter) markdown(src, finalURL string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	md, err := a.md.ConvertString(src, converter.WithDomain(finalURL))
	if err != nil {
		a.log.Warn("markdown conversion failed", "url", finalURL, "error", err)
		return ""
	}
	return strings.TrimSpace(md)
}

func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndexAny(s[:max], " \n\t")
	if cut <= 0 {
		cut = max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return strings.TrimSpace(s[:cut])
}
