package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/gcp"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

type hostGate struct {
	allowed string
	inner   *netguard.Gate
}

func (g hostGate) Validate(ctx context.Context, rawURL string) error {
	if u, err := url.Parse(rawURL); err == nil && u.Host == g.allowed {
		return nil
	}
	return g.inner.Validate(ctx, rawURL)
}

type noResolver struct{}

func (noResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return nil, errors.New("lookups disabled in tests")
}

func newFetcher(t *testing.T, srv *httptest.Server) *fetch.Fetcher {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	f, err := fetch.New(logger.Nop(), hostGate{allowed: u.Host, inner: netguard.New(noResolver{})},
		fetch.Config{MaxBytes: 1 << 30}, fetch.WithHTTPClient(&http.Client{}))
	require.NoError(t, err)
	return f
}

type fakeSpeech struct {
	result   *gcp.SpeechResult
	audio    []byte
	mimeType string
	gcsURI   string
	calls    int
}

func (f *fakeSpeech) TranscribeAudioBytes(_ context.Context, audio []byte, mimeType string, _ gcp.SpeechConfig) (*gcp.SpeechResult, error) {
	f.calls++
	f.audio, f.mimeType = audio, mimeType
	return f.result, nil
}

func (f *fakeSpeech) TranscribeAudioGCS(_ context.Context, uri string, _ gcp.SpeechConfig) (*gcp.SpeechResult, error) {
	f.calls++
	f.gcsURI = uri
	return f.result, nil
}

func (f *fakeSpeech) Close() error { return nil }

type fakeStager struct {
	staged  map[string][]byte
	removed []string
}

func (s *fakeStager) Stage(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if s.staged == nil {
		s.staged = map[string][]byte{}
	}
	s.staged[key] = b
	return gcp.GCSURI("bucket", key), nil
}

func (s *fakeStager) Remove(_ context.Context, key string) error {
	s.removed = append(s.removed, key)
	return nil
}

func (s *fakeStager) Close() error { return nil }

func ptr(v int64) *int64 { return &v }

func audioServer(body []byte, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}))
}

func TestRejectsLongAudioBeforeAnyRequest(t *testing.T) {
	var hits int32
	srv := audioServer([]byte("abc"), &hits)
	defer srv.Close()

	speech := &fakeSpeech{}
	svc := New(logger.Nop(), newFetcher(t, srv), speech, nil, Config{MaxDurationSec: 60})
	_, err := svc.Transcribe(context.Background(), Request{AudioURL: srv.URL + "/ep.mp3", DurationSec: 61})
	require.ErrorIs(t, err, ErrAudioTooLong)
	assert.Zero(t, atomic.LoadInt32(&hits))
	assert.Zero(t, speech.calls)
}

func TestRejectsDeclaredOversizeAudio(t *testing.T) {
	var hits int32
	srv := audioServer(bytes.Repeat([]byte("a"), 500), &hits)
	defer srv.Close()

	speech := &fakeSpeech{}
	svc := New(logger.Nop(), newFetcher(t, srv), speech, nil, Config{MaxBytes: 100, InlineMaxBytes: 100})
	_, err := svc.Transcribe(context.Background(), Request{AudioURL: srv.URL + "/ep.mp3"})
	require.ErrorIs(t, err, ErrAudioTooLarge)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "only the HEAD probe should be sent")
	assert.Zero(t, speech.calls)
}

func TestStreamingGuardAbortsUndeclaredOversize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		for i := 0; i < 10; i++ {
			_, _ = w.Write(bytes.Repeat([]byte("a"), 64))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	speech := &fakeSpeech{}
	svc := New(logger.Nop(), newFetcher(t, srv), speech, nil, Config{MaxBytes: 200, InlineMaxBytes: 200})
	_, err := svc.Transcribe(context.Background(), Request{AudioURL: srv.URL + "/stream"})
	require.ErrorIs(t, err, ErrAudioTooLarge)
	assert.Zero(t, speech.calls)
}

func TestInlineTranscriptionKeepsWordTimings(t *testing.T) {
	var hits int32
	srv := audioServer([]byte("fake-mp3"), &hits)
	defer srv.Close()

	speech := &fakeSpeech{result: &gcp.SpeechResult{
		Provider:    "gcp_speech",
		PrimaryText: "mars is red. it has two moons.",
		Segments: []gcp.TimedSegment{
			{Text: "mars is red.", StartMs: ptr(0), EndMs: ptr(9800)},
			{Text: " ", StartMs: ptr(9800), EndMs: ptr(9900)},
			{Text: "it has two moons.", StartMs: ptr(10000), EndMs: ptr(14000)},
		},
	}}
	svc := New(logger.Nop(), newFetcher(t, srv), speech, nil, Config{})
	out, err := svc.Transcribe(context.Background(), Request{AudioURL: srv.URL + "/ep.mp3", Language: "en", DurationSec: 15})
	require.NoError(t, err)

	assert.Equal(t, []byte("fake-mp3"), speech.audio)
	assert.Equal(t, "audio/mpeg", speech.mimeType)
	assert.Equal(t, "en-US", out.Language)
	require.Len(t, out.Segments, 2)
	assert.Equal(t, int64(10000), *out.Segments[1].StartMs)
	assert.Equal(t, int64(14000), *out.Segments[1].EndMs)
}

func TestStagedTranscriptionUsesBucketAndCleansUp(t *testing.T) {
	var hits int32
	srv := audioServer([]byte("long-audio"), &hits)
	defer srv.Close()

	speech := &fakeSpeech{result: &gcp.SpeechResult{Provider: "gcp_speech", PrimaryText: "whole utterance"}}
	stager := &fakeStager{}
	contentID := uuid.New()
	svc := New(logger.Nop(), newFetcher(t, srv), speech, stager, Config{})
	out, err := svc.Transcribe(context.Background(), Request{AudioURL: srv.URL + "/ep.mp3", ContentID: contentID})
	require.NoError(t, err)

	require.Len(t, stager.staged, 1)
	for key, body := range stager.staged {
		assert.Contains(t, key, contentID.String())
		assert.Equal(t, []byte("long-audio"), body)
		assert.Equal(t, gcp.GCSURI("bucket", key), speech.gcsURI)
		assert.Equal(t, []string{key}, stager.removed)
	}
	require.Len(t, out.Segments, 1)
	assert.Equal(t, "whole utterance", out.Segments[0].Text)
	assert.Nil(t, out.Segments[0].StartMs)
}

func TestAudioMimeType(t *testing.T) {
	assert.Equal(t, "audio/mp4", audioMimeType("", "https://x/ep.m4a?sig=1"))
	assert.Equal(t, "audio/ogg", audioMimeType("audio/ogg; codecs=opus", "https://x/a"))
	assert.Equal(t, "audio/mpeg", audioMimeType("application/octet-stream", "https://x/a.mp3"))
	assert.Equal(t, "application/octet-stream", audioMimeType("", "https://x/a"))
}
