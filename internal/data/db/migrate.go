package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == DriverPostgres {
		return EnsurePostgresIndexes(db)
	}
	return nil
}

// EnsurePostgresIndexes adds indexes gorm tags cannot express.
func EnsurePostgresIndexes(db *gorm.DB) error {
	// Claim scans only pending rows in FIFO order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ingest_job_pending_fifo
		ON content_ingest_job (created_at)
		WHERE status = 'pending';
	`).Error; err != nil {
		return fmt.Errorf("create idx_ingest_job_pending_fifo: %w", err)
	}
	// Lexical fallback retrieval over segments.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_content_segment_fts
		ON content_segment
		USING GIN (to_tsvector('english', text));
	`).Error; err != nil {
		return fmt.Errorf("create idx_content_segment_fts: %w", err)
	}
	return nil
}
