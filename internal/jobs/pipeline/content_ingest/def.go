package content_ingest

import (
	"context"

	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/ingestion/adapters"
	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/ingestion/transcribe"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/services"
)

// Ingester is satisfied by *adapters.Set.
type Ingester interface {
	Ingest(ctx context.Context, rawURL string, meta adapters.ContentMeta) (*content.IngestedContent, error)
}

type Config struct {
	SegmentMaxChars int
	ChunkSize       int
	ChunkOverlap    int
	QuizQuestions   int
	QuizDifficulty  string
}

func ConfigFromEnv() Config {
	return Config{
		SegmentMaxChars: envutil.Int("SEGMENT_MAX_CHARS", segmenter.DefaultMaxChars),
		ChunkSize:       envutil.Int("CHUNK_SIZE", segmenter.DefaultChunkSize),
		ChunkOverlap:    envutil.Int("CHUNK_OVERLAP", segmenter.DefaultChunkOverlap),
		QuizQuestions:   envutil.Int("PIPELINE_QUIZ_QUESTIONS", 5),
		QuizDifficulty:  envutil.String("PIPELINE_QUIZ_DIFFICULTY", "medium"),
	}
}

func (c *Config) defaults() {
	if c.SegmentMaxChars <= 0 {
		c.SegmentMaxChars = segmenter.DefaultMaxChars
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = segmenter.DefaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 8
	}
	if c.QuizQuestions <= 0 {
		c.QuizQuestions = 5
	}
	if c.QuizDifficulty == "" {
		c.QuizDifficulty = "medium"
	}
}

type Pipeline struct {
	log         *logger.Logger
	catalog     services.ContentCatalog
	learn       learning.LearningRepo
	adapters    Ingester
	transcriber transcribe.Service
	index       services.VectorIndex
	analysis    services.AnalysisService
	quiz        services.QuizService
	cfg         Config
}

// New builds the pipeline. transcriber may be nil; audio-only content then keeps whatever
// text its adapter produced.
func New(
	baseLog *logger.Logger,
	catalog services.ContentCatalog,
	learn learning.LearningRepo,
	ingester Ingester,
	transcriber transcribe.Service,
	index services.VectorIndex,
	analysis services.AnalysisService,
	quiz services.QuizService,
	cfg Config,
) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		log:         baseLog.With("job", "content_ingest"),
		catalog:     catalog,
		learn:       learn,
		adapters:    ingester,
		transcriber: transcriber,
		index:       index,
		analysis:    analysis,
		quiz:        quiz,
		cfg:         cfg,
	}
}

func (p *Pipeline) Type() string { return "content_ingest" }
