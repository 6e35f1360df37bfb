package learning

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

const insertBatchSize = 200

func (r *learningRepo) ReplaceIngestion(dbc dbctx.Context, contentID uuid.UUID, segments []*types.Segment, assets []*types.Asset) ([]*types.Segment, error) {
	var out []*types.Segment
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		var err error
		if out, err = r.ReplaceSegments(inner, contentID, segments); err != nil {
			return err
		}
		return r.ReplaceAssets(inner, contentID, assets)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceSegments deletes every segment of contentID and inserts segments in order,
// renumbering positions from 0.
func (r *learningRepo) ReplaceSegments(dbc dbctx.Context, contentID uuid.UUID, segments []*types.Segment) ([]*types.Segment, error) {
	if contentID == uuid.Nil {
		return nil, errors.New("content id required")
	}
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("content_id = ?", contentID).Delete(&types.Segment{}).Error; err != nil {
			return err
		}
		if len(segments) == 0 {
			return nil
		}
		for i, s := range segments {
			s.ContentID = contentID
			s.Position = i
		}
		return txx.CreateInBatches(segments, insertBatchSize).Error
	})
	if err != nil {
		return nil, err
	}
	if segments == nil {
		segments = []*types.Segment{}
	}
	return segments, nil
}

func (r *learningRepo) ListSegments(dbc dbctx.Context, contentID uuid.UUID) ([]*types.Segment, error) {
	var out []*types.Segment
	if contentID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("content_id = ?", contentID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *learningRepo) ReplaceAssets(dbc dbctx.Context, contentID uuid.UUID, assets []*types.Asset) error {
	if contentID == uuid.Nil {
		return errors.New("content id required")
	}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("content_id = ?", contentID).Delete(&types.Asset{}).Error; err != nil {
			return err
		}
		if len(assets) == 0 {
			return nil
		}
		for _, a := range assets {
			a.ContentID = contentID
		}
		return txx.CreateInBatches(assets, insertBatchSize).Error
	})
}

// ListAssets returns the assets of contentID; an empty kind matches all kinds.
func (r *learningRepo) ListAssets(dbc dbctx.Context, contentID uuid.UUID, kind string) ([]*types.Asset, error) {
	var out []*types.Asset
	q := r.tx(dbc).Where("content_id = ?", contentID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *learningRepo) AppendArtifact(dbc dbctx.Context, artifact *types.Artifact) (*types.Artifact, error) {
	if artifact == nil || artifact.ContentID == uuid.Nil || artifact.ArtifactType == "" {
		return nil, errors.New("artifact requires content id and type")
	}
	artifact.ID = uuid.Nil
	if err := r.tx(dbc).Create(artifact).Error; err != nil {
		return nil, err
	}
	return artifact, nil
}

// LatestArtifact returns nil when no artifact of that type exists.
func (r *learningRepo) LatestArtifact(dbc dbctx.Context, contentID uuid.UUID, artifactType string) (*types.Artifact, error) {
	var row types.Artifact
	err := r.tx(dbc).
		Where("content_id = ? AND artifact_type = ?", contentID, artifactType).
		Order("created_at DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
