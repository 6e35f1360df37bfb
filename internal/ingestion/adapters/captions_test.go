package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVTTDropsRollingDuplicates(t *testing.T) {
	vtt := `WEBVTT
Kind: captions
Language: en

00:00:00.000 --> 00:00:02.500 align:start position:0%
the red<00:00:00.400><c> planet</c>

00:00:02.500 --> 00:00:02.510 align:start position:0%
the red planet

00:00:02.510 --> 00:00:05.000 align:start position:0%
the red planet
is covered in &amp; dust

1:02:03.250 --> 1:02:04.000
late cue
`
	cues, err := parseCaptions("vtt", []byte(vtt))
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, cue{StartMs: 0, EndMs: 2500, Text: "the red planet"}, cues[0])
	assert.Equal(t, "is covered in & dust", cues[1].Text)
	assert.Equal(t, int64(2510), cues[1].StartMs)
	assert.Equal(t, int64(3723250), cues[2].StartMs)
}

func TestParseJSON3(t *testing.T) {
	body := `{"events":[
		{"tStartMs":0,"dDurationMs":1000,"segs":[{"utf8":"hello"},{"utf8":" world"}]},
		{"tStartMs":1000,"dDurationMs":10,"segs":[{"utf8":"\n"}]},
		{"tStartMs":1200,"dDurationMs":800}
	]}`
	cues, err := parseCaptions("", []byte(body))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, cue{StartMs: 0, EndMs: 1000, Text: "hello world"}, cues[0])
}

func TestParseTimedTextVariants(t *testing.T) {
	srv1 := `<?xml version="1.0" encoding="utf-8"?><transcript><text start="1.5" dur="2">it&amp;#39;s red</text></transcript>`
	cues, err := parseCaptions("srv1", []byte(srv1))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, cue{StartMs: 1500, EndMs: 3500, Text: "it's red"}, cues[0])

	srv3 := `<timedtext format="3"><body><p t="100" d="900"><s>dusty</s><s t="300"> plains</s></p><p t="1000" d="5"></p></body></timedtext>`
	cues, err = parseCaptions("srv3", []byte(srv3))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, cue{StartMs: 100, EndMs: 1000, Text: "dusty plains"}, cues[0])
}

func TestParseCaptionsUnknownFormat(t *testing.T) {
	_, err := parseCaptions("txt", []byte("plain words"))
	assert.Error(t, err)
}

func TestMergeCuesRespectsBounds(t *testing.T) {
	cues := []cue{
		{StartMs: 0, EndMs: 1000, Text: "one two"},
		{StartMs: 1000, EndMs: 2000, Text: "three four"},
		{StartMs: 2000, EndMs: 40000, Text: "five"},
		{StartMs: 40000, EndMs: 41000, Text: "six seven eight nine ten"},
	}
	segs := mergeCues(cues, 20, 30000)
	require.Len(t, segs, 3)
	assert.Equal(t, "one two three four", segs[0].Text)
	assert.Equal(t, int64(0), *segs[0].StartMs)
	assert.Equal(t, int64(2000), *segs[0].EndMs)
	assert.Equal(t, "five", segs[1].Text)
	assert.Equal(t, "six seven eight nine ten", segs[2].Text)
	assert.Equal(t, int64(41000), *segs[2].EndMs)
}
