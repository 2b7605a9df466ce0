package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/questweaver/internal/domain/runs"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&runs.QuestRun{},
	)
}

// EnsureQuestRunIndexes adds the Postgres-only indexes AutoMigrate cannot
// express.
func EnsureQuestRunIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quest_run_active
		ON quest_run(updated_at)
		WHERE deleted_at IS NULL AND status IN ('queued', 'running');
	`).Error; err != nil {
		return fmt.Errorf("create idx_quest_run_active: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quest_run_output_title
		ON quest_run ((output->'preview'->>'title'))
		WHERE status = 'succeeded';
	`).Error; err != nil {
		return fmt.Errorf("create idx_quest_run_output_title: %w", err)
	}
	return nil
}
