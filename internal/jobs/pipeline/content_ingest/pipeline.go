package content_ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/ingestion/adapters"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/ingestion/transcribe"
	jobrt "github.com/yungbote/neurobridge-content/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-content/internal/observability"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/services"
)

var ErrNoText = errors.New("content_ingest: no text extracted")

// run carries values between stages of one attempt.
type run struct {
	item     *types.Content
	ingested *content.IngestedContent
	segments []*types.Segment
}

// Run executes every stage in order. A returned error is retryable; the worker owns retries
// and terminal failure.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	r := &run{}
	steps := []struct {
		stage string
		fn    func(*jobrt.Context, *run) error
	}{
		{jobstate.StageResolve, p.resolve},
		{jobstate.StageFetch, p.fetch},
		{jobstate.StageTranscribe, p.transcribe},
		{jobstate.StageSegment, p.segment},
		{jobstate.StageEmbed, p.embed},
		{jobstate.StageSummarize, p.summarize},
		{jobstate.StageConceptExtract, p.concepts},
		{jobstate.StageQuizGenerate, p.generateQuiz},
	}
	for _, s := range steps {
		if err := jc.Ctx.Err(); err != nil {
			return err
		}
		if s.stage == jobstate.StageTranscribe && !p.needsTranscription(r.ingested) {
			continue
		}
		if err := p.step(jc, r, s.stage, s.fn); err != nil {
			return fmt.Errorf("%s: %w", s.stage, err)
		}
	}
	return jc.Succeed()
}

func (p *Pipeline) step(jc *jobrt.Context, r *run, stage string, fn func(*jobrt.Context, *run) error) (err error) {
	if err := jc.Stage(stage); err != nil {
		return err
	}
	ctx, span := observability.StartSpan(jc.Ctx, "pipeline."+stage,
		attribute.String("job.id", jc.Job.ID.String()),
		attribute.String("content.id", jc.Job.ContentID.String()),
		attribute.Int("job.attempt", jc.Job.AttemptCount),
	)
	defer func() { observability.EndSpan(span, err) }()

	prev := jc.Ctx
	jc.Ctx = ctx
	defer func() { jc.Ctx = prev }()

	p.log.Debug("stage start", "job_id", jc.Job.ID, "stage", stage)
	return fn(jc, r)
}

func (p *Pipeline) resolve(jc *jobrt.Context, r *run) error {
	item, err := p.catalog.GetContentByID(dbctx.Context{Ctx: jc.Ctx}, jc.Job.ContentID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("content %s not found", jc.Job.ContentID)
	}
	if strings.TrimSpace(item.SourceURL()) == "" {
		return fmt.Errorf("content %s has no url", item.ID)
	}
	r.item = item
	return nil
}

func (p *Pipeline) fetch(jc *jobrt.Context, r *run) error {
	meta := adapters.ContentMeta{
		Provider:    r.item.Provider,
		ContentType: r.item.ContentType,
		Title:       r.item.Title,
	}
	if r.item.DurationSec != nil {
		meta.DurationSec = *r.item.DurationSec
	}
	return jc.Ingest(func(ctx context.Context) error {
		out, err := p.adapters.Ingest(ctx, r.item.SourceURL(), meta)
		if err != nil {
			return err
		}
		if out == nil {
			return ErrNoText
		}
		r.ingested = out
		return nil
	})
}

func (p *Pipeline) needsTranscription(in *content.IngestedContent) bool {
	return in != nil && in.NeedsTranscription && strings.TrimSpace(in.AudioURL) != ""
}

// transcribe replaces adapter segments with the transcript. When the provider is missing or
// fails, content that already carries text (a description) continues without it.
func (p *Pipeline) transcribe(jc *jobrt.Context, r *run) error {
	in := r.ingested
	if p.transcriber == nil {
		if hasText(in) {
			p.log.Warn("transcription unavailable, keeping adapter text", "job_id", jc.Job.ID)
			return nil
		}
		return errors.New("transcription required but no provider configured")
	}
	var res *transcribe.Result
	err := jc.Ingest(func(ctx context.Context) error {
		var err error
		res, err = p.transcriber.Transcribe(ctx, transcribe.Request{
			AudioURL:    in.AudioURL,
			Language:    in.Language,
			DurationSec: in.DurationSec,
			ContentID:   jc.Job.ContentID,
		})
		return err
	})
	if err != nil {
		if hasText(in) && !errors.Is(err, context.Canceled) {
			p.log.Warn("transcription failed, keeping adapter text", "job_id", jc.Job.ID, "error", err)
			return nil
		}
		return err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		if hasText(in) {
			return nil
		}
		return ErrNoText
	}
	in.Segments = res.Segments
	in.Text = res.Text
	if res.Language != "" {
		in.Language = res.Language
	}
	in.Assets = append(in.Assets, content.RawAsset{
		Kind: content.AssetTranscript,
		URI:  res.SourceURI,
		Body: res.Text,
		Metadata: map[string]any{
			"provider": res.Provider,
			"language": res.Language,
		},
	})
	in.NeedsTranscription = false
	return nil
}

func (p *Pipeline) segment(jc *jobrt.Context, r *run) error {
	in := r.ingested
	raw := in.Segments
	if len(raw) == 0 && strings.TrimSpace(in.Text) != "" {
		raw = segmenter.SegmentText(in.Text, "", p.cfg.SegmentMaxChars)
	}
	raw = segmenter.SplitLong(raw, p.cfg.SegmentMaxChars)
	if len(raw) == 0 {
		return ErrNoText
	}

	segMeta := jsonOf(map[string]any{"source_type": in.SourceType, "language": in.Language})
	segs := make([]*types.Segment, 0, len(raw))
	for _, s := range raw {
		segs = append(segs, &types.Segment{
			ContentID:     jc.Job.ContentID,
			Text:          s.Text,
			SectionPath:   s.SectionPath,
			StartMs:       s.StartMs,
			EndMs:         s.EndMs,
			TokenEstimate: segmenter.EstimateTokens(s.Text),
			Metadata:      segMeta,
		})
	}

	assets := make([]*types.Asset, 0, len(in.Assets)+1)
	hasMeta := false
	for _, a := range in.Assets {
		hasMeta = hasMeta || a.Kind == content.AssetMetadata
		assets = append(assets, &types.Asset{
			ContentID: jc.Job.ContentID,
			Kind:      a.Kind,
			URI:       a.URI,
			Body:      a.Body,
			Metadata:  jsonOf(a.Metadata),
		})
	}
	if !hasMeta && len(in.Metadata) > 0 {
		assets = append(assets, &types.Asset{
			ContentID: jc.Job.ContentID,
			Kind:      content.AssetMetadata,
			URI:       r.item.SourceURL(),
			Metadata:  jsonOf(in.Metadata),
		})
	}

	stored, err := p.learn.ReplaceIngestion(dbctx.Context{Ctx: jc.Ctx}, jc.Job.ContentID, segs, assets)
	if err != nil {
		return err
	}
	r.segments = stored
	p.log.Info("segments stored", "job_id", jc.Job.ID, "segments", len(stored), "assets", len(assets))
	return nil
}

func (p *Pipeline) embed(jc *jobrt.Context, r *run) error {
	chunks := segmenter.BuildChunks(r.segments, segmenter.ChunkOptions{
		Size:     p.cfg.ChunkSize,
		Overlap:  p.cfg.ChunkOverlap,
		Splitter: segmenter.NewWindowSplitter(p.cfg.ChunkSize, p.cfg.ChunkOverlap),
	})
	var res services.IndexResult
	err := jc.Analyze(func(ctx context.Context) error {
		var err error
		res, err = p.index.IndexChunks(ctx, jc.Job.ContentID, jc.Job.UserID, chunks)
		return err
	})
	if err != nil {
		return err
	}
	p.log.Info("chunks indexed", "job_id", jc.Job.ID, "chunks", len(chunks), "indexed", res.Indexed, "dim", res.Dim)
	return p.degraded(jc, res.UsedFallback)
}

func (p *Pipeline) analysisInput(jc *jobrt.Context, r *run) services.AnalysisInput {
	title := r.item.Title
	if title == "" && r.ingested != nil {
		title = r.ingested.Title
	}
	return services.AnalysisInput{ContentID: jc.Job.ContentID, Title: title, Segments: r.segments}
}

func (p *Pipeline) summarize(jc *jobrt.Context, r *run) error {
	var res *services.SummaryResult
	err := jc.Analyze(func(ctx context.Context) error {
		var err error
		res, err = p.analysis.Summarize(ctx, p.analysisInput(jc, r))
		return err
	})
	if err != nil {
		return err
	}
	return p.degraded(jc, res != nil && res.UsedFallback)
}

func (p *Pipeline) concepts(jc *jobrt.Context, r *run) error {
	var res *services.ConceptResult
	err := jc.Analyze(func(ctx context.Context) error {
		var err error
		res, err = p.analysis.ExtractConcepts(ctx, p.analysisInput(jc, r))
		return err
	})
	if err != nil {
		return err
	}
	return p.degraded(jc, res != nil && res.UsedFallback)
}

func (p *Pipeline) generateQuiz(jc *jobrt.Context, r *run) error {
	var set *types.QuizSet
	err := jc.Analyze(func(ctx context.Context) error {
		var err error
		set, err = p.quiz.Generate(ctx, services.GenerateQuizInput{
			ContentID:     jc.Job.ContentID,
			UserID:        jc.Job.UserID,
			Difficulty:    p.cfg.QuizDifficulty,
			QuestionCount: p.cfg.QuizQuestions,
		})
		return err
	})
	if err != nil {
		return err
	}
	return p.degraded(jc, set != nil && set.UsedFallback)
}

func (p *Pipeline) degraded(jc *jobrt.Context, used bool) error {
	if !used {
		return nil
	}
	return jc.FallbackUsed()
}

func hasText(in *content.IngestedContent) bool {
	if in == nil {
		return false
	}
	if strings.TrimSpace(in.Text) != "" {
		return true
	}
	for _, s := range in.Segments {
		if strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

func jsonOf(v map[string]any) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
