package content_ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/data/graph"
	contentrepo "github.com/yungbote/neurobridge-content/internal/data/repos/content"
	"github.com/yungbote/neurobridge-content/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	"github.com/yungbote/neurobridge-content/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/ingestion/adapters"
	"github.com/yungbote/neurobridge-content/internal/ingestion/transcribe"
	jobrt "github.com/yungbote/neurobridge-content/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/services"
)

type stubIngester struct {
	out  *content.IngestedContent
	err  error
	meta adapters.ContentMeta
	url  string
}

func (s *stubIngester) Ingest(_ context.Context, rawURL string, meta adapters.ContentMeta) (*content.IngestedContent, error) {
	s.url, s.meta = rawURL, meta
	return s.out, s.err
}

type stubTranscriber struct {
	res   *transcribe.Result
	err   error
	calls int
}

func (s *stubTranscriber) Transcribe(context.Context, transcribe.Request) (*transcribe.Result, error) {
	s.calls++
	return s.res, s.err
}

type harness struct {
	pipe  *Pipeline
	jc    *jobrt.Context
	jobs  jobs.ContentIngestJobRepo
	learn learning.LearningRepo
	dbc   dbctx.Context
	item  *types.Content
}

func newHarness(t *testing.T, ing Ingester, tr transcribe.Service) *harness {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	jobRepo := jobs.NewContentIngestJobRepo(db, log)
	learnRepo := learning.NewLearningRepo(db, log)
	catalog := contentrepo.NewCatalogRepo(db, log)

	userID := uuid.New()
	item := testutil.SeedContent(t, ctx, db, userID, "example", "article", "https://example.com/mars")
	_, err := jobRepo.CreateOrReuse(dbc, userID, item.ID, "v1", false)
	require.NoError(t, err)
	claimed, err := jobRepo.ClaimNextPending(dbc, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	gw := services.NewLLMGateway(log, nil, nil)
	pipe := New(
		log,
		catalog,
		learnRepo,
		ing,
		tr,
		services.NewVectorIndex(log, nil, nil, services.VectorIndexConfig{}),
		services.NewAnalysisService(log, gw, learnRepo, graph.NewConceptMirror(nil, log), services.AnalysisConfig{}),
		services.NewQuizService(log, gw, learnRepo, services.QuizConfig{}),
		Config{QuizQuestions: 3},
	)
	jc := jobrt.NewContext(ctx, claimed, jobRepo, services.NewJobNotifier(nil, log), jobrt.NewPermits(1, 1))
	return &harness{pipe: pipe, jc: jc, jobs: jobRepo, learn: learnRepo, dbc: dbc, item: item}
}

func blogContent() *content.IngestedContent {
	return &content.IngestedContent{
		SourceType: content.SourceBlog,
		Title:      "Mars",
		Text:       "Mars is the fourth planet from the Sun.",
		Segments: []content.RawSegment{
			{Text: "Mars is the fourth planet from the Sun. Mars is called the red planet because iron oxide dust covers its surface.", SectionPath: "Mars"},
			{Text: "The atmosphere of Mars is thin and made mostly of carbon dioxide. Dust storms on Mars can cover the whole planet.", SectionPath: "Mars > Atmosphere"},
			{Text: "Mars has two small moons named Phobos and Deimos. Phobos orbits Mars closer than any other moon orbits its planet.", SectionPath: "Mars > Moons"},
		},
		Assets: []content.RawAsset{{Kind: content.AssetCleanText, URI: "https://example.com/mars", Body: "Mars"}},
	}
}

func TestRunCompletesEveryStage(t *testing.T) {
	ing := &stubIngester{out: blogContent()}
	h := newHarness(t, ing, nil)

	require.NoError(t, h.pipe.Run(h.jc))
	assert.Equal(t, "https://example.com/mars", ing.url)
	assert.Equal(t, "article", ing.meta.ContentType)

	job, err := h.jobs.GetByID(h.dbc, h.jc.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.StatusCompleted, job.Status)
	assert.Equal(t, jobstate.StageDone, job.Stage)
	assert.Equal(t, 100, job.ProgressPct())
	// No model is configured, so analysis ran on heuristics.
	assert.True(t, job.FallbackUsed)
	assert.Equal(t, jobstate.ErrorCodeFallbackUsed, job.ErrorCode)

	segs, err := h.learn.ListSegments(h.dbc, h.item.ID)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "Mars > Moons", segs[2].SectionPath)
	assert.Positive(t, segs[0].TokenEstimate)

	for _, kind := range []string{content.ArtifactSummaryGlobal, content.ArtifactSummarySection, content.ArtifactQASeed, content.ArtifactQuizSeed} {
		art, err := h.learn.LatestArtifact(h.dbc, h.item.ID, kind)
		require.NoError(t, err)
		assert.NotNil(t, art, kind)
	}

	concepts, _, err := h.learn.ListConcepts(h.dbc, h.item.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, concepts)
}

func TestRunTranscribesAudio(t *testing.T) {
	start, mid, end := int64(0), int64(10000), int64(20000)
	ing := &stubIngester{out: &content.IngestedContent{
		SourceType:         content.SourcePodcast,
		Text:               "An episode about Mars.",
		NeedsTranscription: true,
		AudioURL:           "https://cdn.example.com/ep1.mp3",
		DurationSec:        20,
	}}
	tr := &stubTranscriber{res: &transcribe.Result{
		Provider:  "google_speech",
		SourceURI: "gs://bucket/ep1.mp3",
		Language:  "en-US",
		Text:      "Mars is the red planet of the solar system. Phobos is the larger moon that orbits Mars.",
		Segments: []content.RawSegment{
			{Text: "Mars is the red planet of the solar system.", StartMs: &start, EndMs: &mid},
			{Text: "Phobos is the larger moon that orbits Mars.", StartMs: &mid, EndMs: &end},
		},
	}}
	h := newHarness(t, ing, tr)

	require.NoError(t, h.pipe.Run(h.jc))
	assert.Equal(t, 1, tr.calls)

	segs, err := h.learn.ListSegments(h.dbc, h.item.ID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.NotNil(t, segs[1].StartMs)
	assert.Equal(t, int64(10000), *segs[1].StartMs)

	assets, err := h.learn.ListAssets(h.dbc, h.item.ID, content.AssetTranscript)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "gs://bucket/ep1.mp3", assets[0].URI)
}

func TestRunKeepsDescriptionWhenTranscriptionFails(t *testing.T) {
	ing := &stubIngester{out: &content.IngestedContent{
		SourceType:         content.SourceVideo,
		Text:               "A tour of Mars and its two moons Phobos and Deimos.",
		NeedsTranscription: true,
		AudioURL:           "https://cdn.example.com/audio.m4a",
	}}
	tr := &stubTranscriber{err: transcribe.ErrAudioTooLong}
	h := newHarness(t, ing, tr)

	require.NoError(t, h.pipe.Run(h.jc))
	segs, err := h.learn.ListSegments(h.dbc, h.item.ID)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].Text, "Phobos")
}

func TestRunFailsWithoutAnyText(t *testing.T) {
	ing := &stubIngester{out: &content.IngestedContent{
		SourceType:         content.SourcePodcast,
		NeedsTranscription: true,
		AudioURL:           "https://cdn.example.com/ep.mp3",
	}}
	h := newHarness(t, ing, nil)

	err := h.pipe.Run(h.jc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobstate.StageTranscribe)

	job, err := h.jobs.GetByID(h.dbc, h.jc.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.StatusRunning, job.Status)
	assert.Equal(t, jobstate.StageTranscribe, job.Stage)
}

func TestRunReturnsAdapterError(t *testing.T) {
	boom := errors.New("upstream 502")
	h := newHarness(t, &stubIngester{err: boom}, nil)

	err := h.pipe.Run(h.jc)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, jobstate.StageFetch, h.jc.Job.Stage)
}
