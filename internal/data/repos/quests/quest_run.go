package quests

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/questweaver/internal/data/dbctx"
	"github.com/yungbote/questweaver/internal/domain/runs"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

var ErrNotFound = errors.New("quest run not found")

type QuestRunRepo interface {
	Create(dbc dbctx.Context, run *runs.QuestRun) error
	GetByID(dbc dbctx.Context, id string) (*runs.QuestRun, error)
	GetByQuestID(dbc dbctx.Context, questID string) (*runs.QuestRun, error)
	ListRecent(dbc dbctx.Context, subject string, limit int) ([]*runs.QuestRun, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	// FailStale marks queued or running rows untouched since before cutoff
	// as failed. Returns the number of rows changed.
	FailStale(dbc dbctx.Context, cutoff time.Time, reason string) (int64, error)
}

type questRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestRunRepo(db *gorm.DB, baseLog *logger.Logger) QuestRunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &questRunRepo{db: db, log: baseLog.With("repo", "QuestRunRepo")}
}

func (r *questRunRepo) Create(dbc dbctx.Context, run *runs.QuestRun) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("quest run id required")
	}
	if run.Status == "" {
		run.Status = runs.StatusQueued
	}
	return dbc.DB(r.db).Create(run).Error
}

func (r *questRunRepo) GetByID(dbc dbctx.Context, id string) (*runs.QuestRun, error) {
	return r.first(dbc, "id = ?", id)
}

func (r *questRunRepo) GetByQuestID(dbc dbctx.Context, questID string) (*runs.QuestRun, error) {
	if strings.TrimSpace(questID) == "" {
		return nil, ErrNotFound
	}
	return r.first(dbc, "quest_id = ? AND status = ?", questID, runs.StatusSucceeded)
}

func (r *questRunRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*runs.QuestRun, error) {
	var run runs.QuestRun
	err := dbc.DB(r.db).Where(query, args...).Order("created_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *questRunRepo) ListRecent(dbc dbctx.Context, subject string, limit int) ([]*runs.QuestRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := dbc.DB(r.db).Order("created_at DESC").Limit(limit)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var out []*runs.QuestRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questRunRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).Model(&runs.QuestRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *questRunRepo) FailStale(dbc dbctx.Context, cutoff time.Time, reason string) (int64, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&runs.QuestRun{}).
		Where("status IN ? AND updated_at < ?", []runs.Status{runs.StatusQueued, runs.StatusRunning}, cutoff).
		Updates(map[string]interface{}{
			"status":      runs.StatusFailed,
			"error":       reason,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("failed stale quest runs", "count", res.RowsAffected, "cutoff", cutoff)
	}
	return res.RowsAffected, nil
}
