package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-content/internal/data/repos/content"
	"github.com/yungbote/neurobridge-content/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type ContentIngestJobRepo = jobs.ContentIngestJobRepo
type LearningRepo = learning.LearningRepo
type CatalogRepo = content.CatalogRepo

type ConceptEdgeInput = learning.ConceptEdgeInput
type ConceptOutcome = learning.ConceptOutcome
type AttemptReport = learning.AttemptReport

func NewContentIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) ContentIngestJobRepo {
	return jobs.NewContentIngestJobRepo(db, baseLog)
}

func NewLearningRepo(db *gorm.DB, baseLog *logger.Logger) LearningRepo {
	return learning.NewLearningRepo(db, baseLog)
}

func NewCatalogRepo(db *gorm.DB, baseLog *logger.Logger) CatalogRepo {
	return content.NewCatalogRepo(db, baseLog)
}

// Set bundles every repository the service needs.
type Set struct {
	Jobs     ContentIngestJobRepo
	Learning LearningRepo
	Catalog  CatalogRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Jobs:     NewContentIngestJobRepo(db, baseLog),
		Learning: NewLearningRepo(db, baseLog),
		Catalog:  NewCatalogRepo(db, baseLog),
	}
}
