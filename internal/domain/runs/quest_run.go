// Package runs holds the persisted record of a quest generation request.
package runs

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

type QuestRun struct {
	ID         string         `gorm:"primaryKey;size:64" json:"id"`
	QuestID    string         `gorm:"column:quest_id;size:64;index" json:"quest_id,omitempty"`
	Subject    string         `gorm:"column:subject;size:128;index" json:"-"`
	Status     Status         `gorm:"column:status;size:16;not null;index" json:"status"`
	Stage      string         `gorm:"column:stage;size:32" json:"stage"`
	Progress   int            `gorm:"column:progress;not null" json:"progress"`
	Mode       string         `gorm:"column:mode;size:16" json:"mode"`
	Backend    string         `gorm:"column:backend;size:16" json:"backend,omitempty"`
	FellBack   bool           `gorm:"column:fell_back" json:"fell_back"`
	Request    datatypes.JSON `gorm:"column:request;type:jsonb" json:"request"`
	Output     datatypes.JSON `gorm:"column:output;type:jsonb" json:"output,omitempty"`
	Validation datatypes.JSON `gorm:"column:validation;type:jsonb" json:"validation,omitempty"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	ArchiveURL string         `gorm:"column:archive_url" json:"archive_url,omitempty"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (QuestRun) TableName() string { return "quest_run" }
