package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

// ConceptEdgeInput names its endpoints by concept key; ids are resolved on insert.
type ConceptEdgeInput struct {
	FromKey  string
	ToKey    string
	Relation string
	Weight   float64
}

// ConceptOutcome is one mastery observation produced by grading.
type ConceptOutcome struct {
	ConceptKey string
	Outcome    float64
}

// AttemptReport is an attempt with its answers and the questions they refer to.
type AttemptReport struct {
	Attempt   *types.QuizAttempt
	QuizSet   *types.QuizSet
	Questions map[uuid.UUID]*types.QuizQuestion
}

// LearningRepo persists everything the pipeline derives from a content item. Per-content
// collections (segments, assets, concepts) are replaced wholesale; artifacts are append-only.
type LearningRepo interface {
	ReplaceIngestion(dbc dbctx.Context, contentID uuid.UUID, segments []*types.Segment, assets []*types.Asset) ([]*types.Segment, error)
	ReplaceSegments(dbc dbctx.Context, contentID uuid.UUID, segments []*types.Segment) ([]*types.Segment, error)
	ListSegments(dbc dbctx.Context, contentID uuid.UUID) ([]*types.Segment, error)
	ReplaceAssets(dbc dbctx.Context, contentID uuid.UUID, assets []*types.Asset) error
	ListAssets(dbc dbctx.Context, contentID uuid.UUID, kind string) ([]*types.Asset, error)

	AppendArtifact(dbc dbctx.Context, artifact *types.Artifact) (*types.Artifact, error)
	LatestArtifact(dbc dbctx.Context, contentID uuid.UUID, artifactType string) (*types.Artifact, error)

	ReplaceConcepts(dbc dbctx.Context, contentID uuid.UUID, concepts []*types.Concept, edges []ConceptEdgeInput) ([]*types.Concept, []*types.ConceptEdge, error)
	ListConcepts(dbc dbctx.Context, contentID uuid.UUID) ([]*types.Concept, []*types.ConceptEdge, error)

	CreateQuizSet(dbc dbctx.Context, set *types.QuizSet) (*types.QuizSet, error)
	GetQuizSet(dbc dbctx.Context, id uuid.UUID) (*types.QuizSet, error)
	SubmitAttempt(dbc dbctx.Context, contentID uuid.UUID, attempt *types.QuizAttempt, outcomes []ConceptOutcome, rate float64) (*types.QuizAttempt, bool, error)
	GetAttempt(dbc dbctx.Context, id uuid.UUID) (*types.QuizAttempt, error)
	GetAttemptReport(dbc dbctx.Context, id uuid.UUID) (*AttemptReport, error)

	UpdateMastery(dbc dbctx.Context, userID, contentID uuid.UUID, conceptKey string, outcome, rate float64) (*types.UserConceptMastery, error)
	ListMastery(dbc dbctx.Context, userID, contentID uuid.UUID) ([]*types.UserConceptMastery, error)
}

type learningRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningRepo(db *gorm.DB, baseLog *logger.Logger) LearningRepo {
	return &learningRepo{db: db, log: baseLog.With("repo", "LearningRepo")}
}

func (r *learningRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}
