package adapters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/yungbote/neurobridge-content/internal/domain/content"
)

// cue is one timed caption line.
type cue struct {
	StartMs int64
	EndMs   int64
	Text    string
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	vttTimestamp = regexp.MustCompile(`^((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})\s+-->\s+((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})`)
)

// parseCaptions decodes json3, WebVTT, or srv1/srv2/srv3 timed text. ext is a hint; the body
// is sniffed when the hint is unknown.
func parseCaptions(ext string, body []byte) ([]cue, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	switch strings.ToLower(ext) {
	case "json3":
		return parseJSON3(trimmed)
	case "vtt":
		return parseVTT(trimmed)
	case "srv1", "srv2", "srv3", "ttml", "xml":
		return parseTimedText(trimmed)
	}
	switch {
	case bytes.HasPrefix(trimmed, []byte("WEBVTT")):
		return parseVTT(trimmed)
	case bytes.HasPrefix(trimmed, []byte("{")):
		return parseJSON3(trimmed)
	case bytes.HasPrefix(trimmed, []byte("<")):
		return parseTimedText(trimmed)
	}
	return nil, fmt.Errorf("unrecognized caption format %q", ext)
}

type json3Doc struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(body []byte) ([]cue, error) {
	var doc json3Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode json3: %w", err)
	}
	out := make([]cue, 0, len(doc.Events))
	for _, ev := range doc.Events {
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		text := collapse(b.String())
		if text == "" {
			continue
		}
		out = append(out, cue{StartMs: ev.StartMs, EndMs: ev.StartMs + ev.DurationMs, Text: text})
	}
	return out, nil
}

// parseVTT reads WebVTT cues. Auto-generated tracks repeat the previous line at the top of
// each cue; lines already emitted by the previous cue are dropped.
func parseVTT(body []byte) ([]cue, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		out      []cue
		cur      *cue
		lines    []string
		previous = map[string]bool{}
	)
	emit := func() {
		if cur == nil {
			return
		}
		seen := map[string]bool{}
		var kept []string
		for _, l := range lines {
			if previous[l] || seen[l] {
				continue
			}
			seen[l] = true
			kept = append(kept, l)
		}
		if len(lines) > 0 {
			previous = map[string]bool{}
			for _, l := range lines {
				previous[l] = true
			}
		}
		if text := strings.Join(kept, " "); text != "" {
			cur.Text = text
			out = append(out, *cur)
		}
		cur, lines = nil, nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := vttTimestamp.FindStringSubmatch(line); m != nil {
			emit()
			start, err := parseClock(m[1])
			if err != nil {
				return nil, err
			}
			end, err := parseClock(m[2])
			if err != nil {
				return nil, err
			}
			cur = &cue{StartMs: start, EndMs: end}
			continue
		}
		if line == "" {
			emit()
			continue
		}
		if cur == nil {
			continue
		}
		if text := collapse(html.UnescapeString(tagPattern.ReplaceAllString(line, ""))); text != "" {
			lines = append(lines, text)
		}
	}
	emit()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vtt: %w", err)
	}
	return out, nil
}

// parseClock turns [hh:]mm:ss.mmm into milliseconds.
func parseClock(s string) (int64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	var h, m int64
	var err error
	if len(parts) == 3 {
		if h, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		parts = parts[1:]
	}
	if m, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	sec, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return (h*3600+m*60)*1000 + int64(sec*1000+0.5), nil
}

type timedTextDoc struct {
	// srv1: <transcript><text start="1.2" dur="3.4">...</text></transcript>
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Inner string `xml:",innerxml"`
	} `xml:"text"`
	// srv3: <timedtext><body><p t="1200" d="3400">...</p></body></timedtext>
	Body struct {
		Ps []struct {
			T     int64  `xml:"t,attr"`
			D     int64  `xml:"d,attr"`
			Inner string `xml:",innerxml"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseTimedText(body []byte) ([]cue, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode timed text: %w", err)
	}
	var out []cue
	for _, t := range doc.Texts {
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		text := markupText(t.Inner)
		if text == "" {
			continue
		}
		startMs := int64(start*1000 + 0.5)
		out = append(out, cue{StartMs: startMs, EndMs: startMs + int64(dur*1000+0.5), Text: text})
	}
	for _, p := range doc.Body.Ps {
		text := markupText(p.Inner)
		if text == "" {
			continue
		}
		out = append(out, cue{StartMs: p.T, EndMs: p.T + p.D, Text: text})
	}
	return out, nil
}

// markupText strips inline tags; srv bodies are double escaped in places.
func markupText(inner string) string {
	s := tagPattern.ReplaceAllString(inner, "")
	s = html.UnescapeString(html.UnescapeString(s))
	return collapse(s)
}

// mergeCues packs consecutive cues into segments bounded by maxChars and maxSpanMs. Each
// segment keeps the first cue's start and the last cue's end.
func mergeCues(cues []cue, maxChars int, maxSpanMs int64) []content.RawSegment {
	var (
		out   []content.RawSegment
		b     strings.Builder
		start int64
		end   int64
		open  bool
	)
	flush := func() {
		if !open {
			return
		}
		s, e := start, end
		out = append(out, content.RawSegment{Text: b.String(), StartMs: &s, EndMs: &e})
		b.Reset()
		open = false
	}
	for _, c := range cues {
		if open && (b.Len()+1+len(c.Text) > maxChars || c.EndMs-start > maxSpanMs) {
			flush()
		}
		if !open {
			start, end, open = c.StartMs, c.EndMs, true
		} else {
			b.WriteByte(' ')
			if c.EndMs > end {
				end = c.EndMs
			}
		}
		b.WriteString(c.Text)
	}
	flush()
	return out
}
