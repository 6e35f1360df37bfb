package segmenter

import (
	"regexp"
	"strings"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
)

const DefaultMaxChars = 1200

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// SegmentText splits text on blank lines and re-splits any paragraph longer than maxChars on
// whitespace. Every piece carries sectionPath.
func SegmentText(text, sectionPath string, maxChars int) []content.RawSegment {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []content.RawSegment
	for _, para := range paragraphBreak.Split(text, -1) {
		para = collapseWhitespace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			out = append(out, content.RawSegment{Text: para, SectionPath: sectionPath})
			continue
		}
		for _, sp := range windowSpans(para, maxChars, 0) {
			out = append(out, content.RawSegment{Text: para[sp.start:sp.end], SectionPath: sectionPath})
		}
	}
	return out
}

// SplitLong re-splits untimed segments that exceed maxChars. Timed segments are kept whole
// so their time range stays exact.
func SplitLong(segs []content.RawSegment, maxChars int) []content.RawSegment {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	out := make([]content.RawSegment, 0, len(segs))
	for _, s := range segs {
		text := collapseWhitespace(s.Text)
		if text == "" {
			continue
		}
		if s.StartMs != nil || len(text) <= maxChars {
			s.Text = text
			out = append(out, s)
			continue
		}
		for _, sp := range windowSpans(text, maxChars, 0) {
			out = append(out, content.RawSegment{Text: text[sp.start:sp.end], SectionPath: s.SectionPath})
		}
	}
	return out
}

// EstimateTokens is a rough count: words * 1.3, at least 1.
func EstimateTokens(text string) int {
	n := int(float64(len(strings.Fields(text))) * 1.3)
	if n < 1 {
		return 1
	}
	return n
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

type span struct {
	start int
	end   int
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

// windowSpans cuts text into windows of at most size bytes that start and end on word
// boundaries. Consecutive windows share roughly overlap bytes. A single word longer than size
// becomes its own window.
func windowSpans(text string, size, overlap int) []span {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	n := len(text)
	var out []span
	start := skipSpace(text, 0)
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else if !isSpace(text[end]) {
			if cut := strings.LastIndexAny(text[start:end], " \t\n\r"); cut > 0 {
				end = start + cut
			} else if nx := strings.IndexAny(text[end:], " \t\n\r"); nx >= 0 {
				end += nx
			} else {
				end = n
			}
		}
		trimmed := end
		for trimmed > start && isSpace(text[trimmed-1]) {
			trimmed--
		}
		if trimmed > start {
			out = append(out, span{start: start, end: trimmed})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		if next < end && next > 0 && !isSpace(text[next-1]) {
			for next < end && !isSpace(text[next]) {
				next++
			}
		}
		start = skipSpace(text, next)
	}
	return out
}
