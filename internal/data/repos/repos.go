package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/questweaver/internal/data/repos/quests"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type QuestRunRepo = quests.QuestRunRepo

type Repos struct {
	QuestRuns QuestRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		QuestRuns: quests.NewQuestRunRepo(db, log),
	}
}
