package quests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/questweaver/internal/data/dbctx"
	"github.com/yungbote/questweaver/internal/data/repos/testutil"
	"github.com/yungbote/questweaver/internal/domain/runs"
)

func newRun(subject string) *runs.QuestRun {
	return &runs.QuestRun{
		ID:      uuid.NewString(),
		Subject: subject,
		Mode:    "direct",
		Request: datatypes.JSON([]byte(`{"prompt":"丸の内"}`)),
	}
}

func TestQuestRunRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	run := newRun("user-1")
	if err := repo.Create(dbc, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != runs.StatusQueued || got.Subject != "user-1" {
		t.Fatalf("unexpected run: %#v", got)
	}

	if err := repo.UpdateFields(dbc, run.ID, map[string]interface{}{
		"status":   runs.StatusSucceeded,
		"quest_id": "quest-7",
		"progress": 100,
		"output":   datatypes.JSON([]byte(`{"quest_id":"quest-7"}`)),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	byQuest, err := repo.GetByQuestID(dbc, "quest-7")
	if err != nil {
		t.Fatalf("GetByQuestID: %v", err)
	}
	if byQuest.ID != run.ID || byQuest.Progress != 100 {
		t.Fatalf("unexpected run by quest: %#v", byQuest)
	}
}

func TestQuestRunRepoNotFound(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, nil)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := repo.GetByID(dbc, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByQuestID(dbc, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty quest id, got %v", err)
	}
	if err := repo.UpdateFields(dbc, "missing", map[string]interface{}{"stage": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := repo.Create(dbc, &runs.QuestRun{}); err == nil {
		t.Fatalf("expected error for run without id")
	}
}

func TestQuestRunRepoGetByQuestIDIgnoresUnfinished(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, nil)
	dbc := dbctx.Context{Ctx: context.Background()}

	run := newRun("")
	run.QuestID = "quest-9"
	run.Status = runs.StatusRunning
	if err := repo.Create(dbc, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.GetByQuestID(dbc, "quest-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("running quest should not be served, got %v", err)
	}
}

func TestQuestRunRepoListRecent(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, nil)
	dbc := dbctx.Context{Ctx: context.Background()}

	base := time.Now().UTC().Add(-time.Hour)
	for i, subject := range []string{"a", "b", "a"} {
		run := newRun(subject)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(dbc, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	got, err := repo.ListRecent(dbc, "a", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Fatalf("expected two runs newest first, got %d", len(got))
	}
	all, err := repo.ListRecent(dbc, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListRecent all: %d %v", len(all), err)
	}
}

func TestQuestRunRepoFailStale(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, nil)
	dbc := dbctx.Context{Ctx: context.Background()}

	stale := newRun("")
	stale.Status = runs.StatusRunning
	done := newRun("")
	done.Status = runs.StatusSucceeded
	for _, r := range []*runs.QuestRun{stale, done} {
		if err := repo.Create(dbc, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := db.Model(&runs.QuestRun{}).Where("1 = 1").UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("age rows: %v", err)
	}

	n, err := repo.FailStale(dbc, time.Now().UTC().Add(-time.Hour), "interrupted")
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale run, got %d", n)
	}
	got, _ := repo.GetByID(dbc, stale.ID)
	if got.Status != runs.StatusFailed || got.Error != "interrupted" || got.FinishedAt == nil {
		t.Fatalf("stale run not failed: %#v", got)
	}
}

func TestQuestRunRepoInTransaction(t *testing.T) {
	db := testutil.DB(t)
	repo := NewQuestRunRepo(db, nil)
	tx := testutil.Tx(t, db)
	run := newRun("")
	if err := repo.Create(dbctx.Context{Ctx: context.Background(), Tx: tx}, run); err != nil {
		t.Fatalf("Create in tx: %v", err)
	}
	if err := tx.Rollback().Error; err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, run.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back run should not exist, got %v", err)
	}
}
