package content

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

// CatalogRepo reads the catalog tables maintained by the content service.
type CatalogRepo interface {
	GetContentByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error)
	GetUserContent(dbc dbctx.Context, userID, contentID uuid.UUID) (*types.UserContent, error)
}

type catalogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCatalogRepo(db *gorm.DB, baseLog *logger.Logger) CatalogRepo {
	return &catalogRepo{db: db, log: baseLog.With("repo", "CatalogRepo")}
}

func (r *catalogRepo) GetContentByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Content
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *catalogRepo) GetUserContent(dbc dbctx.Context, userID, contentID uuid.UUID) (*types.UserContent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || contentID == uuid.Nil {
		return nil, nil
	}
	var row types.UserContent
	err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
