package localmedia

import (
	"encoding/json"
	"testing"
)

func TestVideoInfoDecodesYtDlpShape(t *testing.T) {
	raw := `{
		"id": "abc",
		"title": "Mars",
		"duration": 61.5,
		"subtitles": {"en": [{"ext": "vtt", "url": "https://example.com/en.vtt"}]},
		"automatic_captions": {"en": [{"ext": "json3", "url": "https://example.com/en.json3"}]},
		"formats": [
			{"format_id": "140", "url": "https://example.com/a", "acodec": "mp4a.40.2", "vcodec": "none", "abr": 129.5},
			{"format_id": "18", "url": "https://example.com/v", "acodec": "mp4a.40.2", "vcodec": "avc1"},
			{"format_id": "sb0", "url": "https://example.com/s", "acodec": "none", "vcodec": "none"}
		]
	}`
	var info VideoInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Duration != 61.5 || len(info.Subtitles["en"]) != 1 || len(info.AutomaticCaptions["en"]) != 1 {
		t.Fatalf("decoded info: %+v", info)
	}
	if !info.Formats[0].AudioOnly() {
		t.Fatalf("format 140 should be audio only")
	}
	if info.Formats[1].AudioOnly() || !info.Formats[1].HasAudio() {
		t.Fatalf("format 18 should be muxed")
	}
	if info.Formats[2].HasAudio() {
		t.Fatalf("storyboard should carry no audio")
	}
}
