package learning

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

// ReplaceConcepts swaps the concept graph of contentID. Duplicate keys keep the first
// occurrence; edges whose endpoints are unknown, or that loop to themselves, are dropped.
func (r *learningRepo) ReplaceConcepts(dbc dbctx.Context, contentID uuid.UUID, concepts []*types.Concept, edges []ConceptEdgeInput) ([]*types.Concept, []*types.ConceptEdge, error) {
	if contentID == uuid.Nil {
		return nil, nil, errors.New("content id required")
	}

	keep := make([]*types.Concept, 0, len(concepts))
	seen := map[string]bool{}
	for _, c := range concepts {
		if c == nil {
			continue
		}
		key := strings.TrimSpace(c.Key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.Key = key
		c.ContentID = contentID
		c.ID = uuid.Nil
		keep = append(keep, c)
	}

	var outEdges []*types.ConceptEdge
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("content_id = ?", contentID).Delete(&types.ConceptEdge{}).Error; err != nil {
			return err
		}
		if err := txx.Where("content_id = ?", contentID).Delete(&types.Concept{}).Error; err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		if err := txx.CreateInBatches(keep, insertBatchSize).Error; err != nil {
			return err
		}

		idByKey := make(map[string]uuid.UUID, len(keep))
		for _, c := range keep {
			idByKey[c.Key] = c.ID
		}
		for _, e := range edges {
			from, okFrom := idByKey[strings.TrimSpace(e.FromKey)]
			to, okTo := idByKey[strings.TrimSpace(e.ToKey)]
			if !okFrom || !okTo || from == to {
				continue
			}
			rel := strings.TrimSpace(e.Relation)
			if rel == "" {
				rel = "related"
			}
			outEdges = append(outEdges, &types.ConceptEdge{
				ContentID:     contentID,
				FromConceptID: from,
				ToConceptID:   to,
				Relation:      rel,
				Weight:        e.Weight,
			})
		}
		if len(outEdges) == 0 {
			return nil
		}
		return txx.CreateInBatches(outEdges, insertBatchSize).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return keep, outEdges, nil
}

func (r *learningRepo) ListConcepts(dbc dbctx.Context, contentID uuid.UUID) ([]*types.Concept, []*types.ConceptEdge, error) {
	var concepts []*types.Concept
	var edges []*types.ConceptEdge
	if err := r.tx(dbc).Where("content_id = ?", contentID).
		Order("importance DESC").Order("key ASC").
		Find(&concepts).Error; err != nil {
		return nil, nil, err
	}
	if err := r.tx(dbc).Where("content_id = ?", contentID).
		Order("created_at ASC").
		Find(&edges).Error; err != nil {
		return nil, nil, err
	}
	return concepts, edges, nil
}
