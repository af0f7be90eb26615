package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
)

// IngestPayload is the queued work order for one uploaded file: where
// the raw bytes landed and which columns are reserved.
type IngestPayload struct {
	FileID        uuid.UUID `json:"file_id"`
	RawPath       string    `json:"raw_path"`
	SubjectColumn string    `json:"subject_column,omitempty"`
	ValueColumn   string    `json:"value_column,omitempty"`
}

type UploadFileInput struct {
	ProjectID     uuid.UUID
	OriginalName  string
	SubjectColumn string
	ValueColumn   string
	Content       io.Reader
}

// FileService accepts raw tabular uploads and hands them to the ingest
// queue. The upload itself never parses the file; a worker does that
// asynchronously and flips the file's status when done.
type FileService interface {
	UploadFile(ctx context.Context, in UploadFileInput) (*types.DataFile, *types.IngestJob, error)
	GetFile(ctx context.Context, fileID uuid.UUID) (*types.DataFile, error)
	ListFiles(ctx context.Context, projectID uuid.UUID) ([]*types.DataFile, error)
	DeleteFile(ctx context.Context, fileID uuid.UUID) error
}

type fileService struct {
	db          *gorm.DB
	log         *logger.Logger
	fileRepo    repos.DataFileRepo
	jobRepo     repos.IngestJobRepo
	projectSvc  ProjectService
	objectStore storage.ObjectStore
}

func NewFileService(db *gorm.DB, log *logger.Logger, fileRepo repos.DataFileRepo, jobRepo repos.IngestJobRepo, projectSvc ProjectService, objectStore storage.ObjectStore) FileService {
	return &fileService{
		db:          db,
		log:         log.With("service", "FileService"),
		fileRepo:    fileRepo,
		jobRepo:     jobRepo,
		projectSvc:  projectSvc,
		objectStore: objectStore,
	}
}

func (fs *fileService) UploadFile(ctx context.Context, in UploadFileInput) (*types.DataFile, *types.IngestJob, error) {
	if err := fs.projectSvc.Authorize(ctx, in.ProjectID, types.RoleEditor); err != nil {
		return nil, nil, err
	}
	userID := ctxutil.UserID(ctx)
	if in.OriginalName == "" {
		return nil, nil, apierr.New(http.StatusBadRequest, "missing_filename", fmt.Errorf("file name required: %w", pkgerr.ErrInvalidArgument))
	}

	fileID := uuid.New()
	rawPath := fmt.Sprintf("projects/%s/files/%s/raw.csv", in.ProjectID, fileID)
	if err := fs.objectStore.Upload(ctx, rawPath, in.Content); err != nil {
		return nil, nil, fmt.Errorf("upload raw file: %w", err)
	}

	file := &types.DataFile{
		ID:            fileID,
		ProjectID:     in.ProjectID,
		UploadedBy:    userID,
		OriginalName:  in.OriginalName,
		SubjectColumn: in.SubjectColumn,
		ValueColumn:   in.ValueColumn,
		Status:        types.FileStatusPending,
	}
	payload, err := json.Marshal(IngestPayload{
		FileID:        fileID,
		RawPath:       rawPath,
		SubjectColumn: in.SubjectColumn,
		ValueColumn:   in.ValueColumn,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal ingest payload: %w", err)
	}
	entityID := fileID
	job := &types.IngestJob{
		ID:          uuid.New(),
		OwnerUserID: userID,
		JobType:     types.JobTypeFileIngest,
		EntityID:    &entityID,
		Status:      types.JobStatusPending,
		Payload:     datatypes.JSON(payload),
	}

	err = fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if _, cErr := fs.fileRepo.Create(dbc, []*types.DataFile{file}); cErr != nil {
			return fmt.Errorf("create data file: %w", cErr)
		}
		if _, jErr := fs.jobRepo.Create(dbc, []*types.IngestJob{job}); jErr != nil {
			return fmt.Errorf("enqueue ingest job: %w", jErr)
		}
		return nil
	})
	if err != nil {
		// best effort: don't leak the raw object when the rows failed
		if dErr := fs.objectStore.Delete(ctx, rawPath); dErr != nil {
			fs.log.Warn("failed to clean up raw upload", "path", rawPath, "error", dErr)
		}
		return nil, nil, err
	}
	fs.log.Info("file uploaded", "file_id", fileID, "project_id", in.ProjectID, "job_id", job.ID)
	return file, job, nil
}

func (fs *fileService) GetFile(ctx context.Context, fileID uuid.UUID) (*types.DataFile, error) {
	files, err := fs.fileRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if len(files) == 0 {
		return nil, apierr.New(http.StatusNotFound, "file_not_found", pkgerr.ErrNotFound)
	}
	file := files[0]
	if err := fs.projectSvc.Authorize(ctx, file.ProjectID, types.RoleViewer); err != nil {
		return nil, err
	}
	return file, nil
}

func (fs *fileService) ListFiles(ctx context.Context, projectID uuid.UUID) ([]*types.DataFile, error) {
	if err := fs.projectSvc.Authorize(ctx, projectID, types.RoleViewer); err != nil {
		return nil, err
	}
	return fs.fileRepo.ListByProject(dbctx.New(ctx), projectID)
}

func (fs *fileService) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	file, err := fs.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := fs.projectSvc.Authorize(ctx, file.ProjectID, types.RoleEditor); err != nil {
		return err
	}
	if err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fs.fileRepo.Delete(dbctx.WithTx(ctx, tx), fileID)
	}); err != nil {
		return err
	}
	prefix := fmt.Sprintf("projects/%s/files/%s/", file.ProjectID, fileID)
	if dErr := fs.objectStore.DeletePrefix(ctx, prefix); dErr != nil {
		fs.log.Warn("failed to delete stored file objects", "prefix", prefix, "error", dErr)
	}
	return nil
}
