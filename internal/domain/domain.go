package domain

import (
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/domain/learning"
)

type ContentIngestJob = jobs.ContentIngestJob

type Content = content.Content
type UserContent = content.UserContent
type Segment = content.Segment
type Asset = content.Asset
type Artifact = content.Artifact
type IngestedContent = content.IngestedContent

type Concept = learning.Concept
type ConceptEdge = learning.ConceptEdge
type QuizSet = learning.QuizSet
type QuizQuestion = learning.QuizQuestion
type QuizAttempt = learning.QuizAttempt
type QuizAnswer = learning.QuizAnswer
type UserConceptMastery = learning.UserConceptMastery

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&Content{},
		&UserContent{},
		&ContentIngestJob{},
		&Segment{},
		&Asset{},
		&Artifact{},
		&Concept{},
		&ConceptEdge{},
		&QuizSet{},
		&QuizQuestion{},
		&QuizAttempt{},
		&QuizAnswer{},
		&UserConceptMastery{},
	}
}
