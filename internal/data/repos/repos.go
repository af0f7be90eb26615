package repos

import (
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/analysis"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/auth"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/chat"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/files"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/jobs"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/project"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/user"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo
type UserTokenRepo = auth.UserTokenRepo

type ProjectRepo = project.ProjectRepo
type ProjectMemberRepo = project.ProjectMemberRepo

type DataFileRepo = files.DataFileRepo

type AnalysisSessionRepo = analysis.AnalysisSessionRepo
type AnalysisStepRepo = analysis.AnalysisStepRepo
type SessionSnapshotRepo = analysis.SessionSnapshotRepo

type ChatMessageRepo = chat.ChatMessageRepo

type IngestJobRepo = jobs.IngestJobRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, baseLog)
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return project.NewProjectRepo(db, baseLog)
}
func NewProjectMemberRepo(db *gorm.DB, baseLog *logger.Logger) ProjectMemberRepo {
	return project.NewProjectMemberRepo(db, baseLog)
}

func NewDataFileRepo(db *gorm.DB, baseLog *logger.Logger) DataFileRepo {
	return files.NewDataFileRepo(db, baseLog)
}

func NewAnalysisSessionRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisSessionRepo {
	return analysis.NewAnalysisSessionRepo(db, baseLog)
}
func NewAnalysisStepRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisStepRepo {
	return analysis.NewAnalysisStepRepo(db, baseLog)
}
func NewSessionSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SessionSnapshotRepo {
	return analysis.NewSessionSnapshotRepo(db, baseLog)
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, baseLog)
}

func NewIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) IngestJobRepo {
	return jobs.NewIngestJobRepo(db, baseLog)
}

// All bundles every repo behind one constructor for wiring.
type All struct {
	User    UserRepo
	Token   UserTokenRepo
	Project ProjectRepo
	Member  ProjectMemberRepo
	File    DataFileRepo
	Session AnalysisSessionRepo
	Step    AnalysisStepRepo
	Snap    SessionSnapshotRepo
	Chat    ChatMessageRepo
	Job     IngestJobRepo
}

func NewAll(db *gorm.DB, baseLog *logger.Logger) All {
	return All{
		User:    NewUserRepo(db, baseLog),
		Token:   NewUserTokenRepo(db, baseLog),
		Project: NewProjectRepo(db, baseLog),
		Member:  NewProjectMemberRepo(db, baseLog),
		File:    NewDataFileRepo(db, baseLog),
		Session: NewAnalysisSessionRepo(db, baseLog),
		Step:    NewAnalysisStepRepo(db, baseLog),
		Snap:    NewSessionSnapshotRepo(db, baseLog),
		Chat:    NewChatMessageRepo(db, baseLog),
		Job:     NewIngestJobRepo(db, baseLog),
	}
}
