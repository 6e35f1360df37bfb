package segmenter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	types "github.com/yungbote/neurobridge-content/internal/domain"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
)

// Chunk is an embedding-sized slice of one segment. Offsets are byte offsets into the
// segment text.
type Chunk struct {
	ID              uuid.UUID
	ContentID       uuid.UUID
	SegmentID       uuid.UUID
	Position        int
	SegmentPosition int
	StartOffset     int
	EndOffset       int
	Text            string
	SectionPath     string
	StartMs         *int64
	EndMs           *int64
}

type ChunkOptions struct {
	Size    int
	Overlap int
	// Splitter produces the windows; nil uses the built-in whitespace splitter.
	Splitter textsplitter.TextSplitter
}

func (o *ChunkOptions) defaults() {
	if o.Size <= 0 {
		o.Size = DefaultChunkSize
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = DefaultChunkOverlap
		if o.Overlap >= o.Size {
			o.Overlap = o.Size / 4
		}
	}
}

// NewWindowSplitter returns the recursive character splitter used for chunk windows.
func NewWindowSplitter(size, overlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " "}),
	)
}

// BuildChunks windows every segment into overlapping chunks in segment order. Each chunk keeps
// its segment id, position and offsets so citations can point back at the source.
func BuildChunks(segments []*types.Segment, opts ChunkOptions) []Chunk {
	opts.defaults()
	var out []Chunk
	for _, seg := range segments {
		if seg == nil {
			continue
		}
		text := seg.Text
		if strings.TrimSpace(text) == "" {
			continue
		}
		spans := splitSpans(text, opts)
		for i, sp := range spans {
			out = append(out, Chunk{
				ID:              ChunkID(seg.ID, i),
				ContentID:       seg.ContentID,
				SegmentID:       seg.ID,
				Position:        len(out),
				SegmentPosition: seg.Position,
				StartOffset:     sp.start,
				EndOffset:       sp.end,
				Text:            text[sp.start:sp.end],
				SectionPath:     seg.SectionPath,
				StartMs:         seg.StartMs,
				EndMs:           seg.EndMs,
			})
		}
	}
	return out
}

// ChunkID is stable for a (segment, index) pair.
func ChunkID(segmentID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(segmentID, []byte(fmt.Sprintf("chunk:%d", index)))
}

func splitSpans(text string, opts ChunkOptions) []span {
	if len(text) <= opts.Size {
		start := skipSpace(text, 0)
		end := len(text)
		for end > start && isSpace(text[end-1]) {
			end--
		}
		if end <= start {
			return nil
		}
		return []span{{start: start, end: end}}
	}
	if opts.Splitter != nil {
		if spans, ok := locate(text, opts.Splitter); ok {
			return spans
		}
	}
	return windowSpans(text, opts.Size, opts.Overlap)
}

// locate maps splitter output back onto text. It fails when a piece cannot be found in
// order, which happens when the splitter rewrote whitespace.
func locate(text string, splitter textsplitter.TextSplitter) ([]span, bool) {
	pieces, err := splitter.SplitText(text)
	if err != nil || len(pieces) == 0 {
		return nil, false
	}
	out := make([]span, 0, len(pieces))
	from := 0
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idx := strings.Index(text[from:], p)
		if idx < 0 {
			return nil, false
		}
		start := from + idx
		out = append(out, span{start: start, end: start + len(p)})
		from = start + 1
	}
	return out, len(out) > 0
}
