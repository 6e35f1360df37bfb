package content

const (
	SourceBlog    = "blog"
	SourceVideo   = "video"
	SourcePodcast = "podcast"
)

// RawSegment is adapter output before persistence. Times are in milliseconds.
type RawSegment struct {
	Text        string
	SectionPath string
	StartMs     *int64
	EndMs       *int64
}

// RawAsset is adapter output before persistence.
type RawAsset struct {
	Kind     string
	URI      string
	Body     string
	Metadata map[string]any
}

// IngestedContent is what every adapter returns.
type IngestedContent struct {
	SourceType         string
	Language           string
	Title              string
	Text               string
	Segments           []RawSegment
	Assets             []RawAsset
	NeedsTranscription bool
	AudioURL           string
	DurationSec        int
	Metadata           map[string]any
}
