package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

// IngestHandler turns a raw uploaded CSV into the canonical dataset
// JSON the pipeline consumes: download, parse and type-infer, encode,
// store, then flip the data file to ready. Any failure flips it to
// failed with the reason instead.
type IngestHandler struct {
	db          *gorm.DB
	log         *logger.Logger
	fileRepo    repos.DataFileRepo
	objectStore storage.ObjectStore
	bus         realtime.Bus
}

func NewIngestHandler(db *gorm.DB, baseLog *logger.Logger, fileRepo repos.DataFileRepo, objectStore storage.ObjectStore, bus realtime.Bus) *IngestHandler {
	return &IngestHandler{
		db:          db,
		log:         baseLog.With("handler", "IngestHandler"),
		fileRepo:    fileRepo,
		objectStore: objectStore,
		bus:         bus,
	}
}

func (h *IngestHandler) Type() string { return types.JobTypeFileIngest }

func (h *IngestHandler) Run(jc *Context) error {
	var payload services.IngestPayload
	if err := jc.DecodePayload(&payload); err != nil {
		jc.Fail(fmt.Errorf("decode payload: %w", err))
		return nil
	}
	if payload.FileID == uuid.Nil || payload.RawPath == "" {
		jc.Fail(fmt.Errorf("payload missing file_id or raw_path"))
		return nil
	}

	t, err := h.parse(jc, payload)
	if err != nil {
		h.markFailed(jc, payload.FileID, err)
		jc.Fail(err)
		return nil
	}
	jc.Progress(60)

	encoded, err := dataset.Encode(t)
	if err != nil {
		h.markFailed(jc, payload.FileID, err)
		jc.Fail(fmt.Errorf("encode dataset: %w", err))
		return nil
	}
	datasetPath := fmt.Sprintf("files/%s/dataset.json", payload.FileID)
	if err := h.objectStore.Upload(jc.Ctx, datasetPath, bytes.NewReader(encoded)); err != nil {
		h.markFailed(jc, payload.FileID, err)
		jc.Fail(fmt.Errorf("store dataset: %w", err))
		return nil
	}
	jc.Progress(85)

	columns, err := json.Marshal(t.Columns)
	if err != nil {
		columns = []byte(`[]`)
	}
	err = h.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		return h.fileRepo.UpdateFields(dbctx.WithTx(jc.Ctx, tx), payload.FileID, map[string]interface{}{
			"dataset_path":   datasetPath,
			"subject_column": t.SubjectColumn,
			"value_column":   t.ValueColumn,
			"row_count":      t.RowCount(),
			"column_count":   t.ColumnCount(),
			"columns":        datatypes.JSON(columns),
			"status":         types.FileStatusReady,
			"error":          "",
		})
	})
	if err != nil {
		jc.Fail(fmt.Errorf("update data file: %w", err))
		return nil
	}

	h.log.Info("file ingested", "file_id", payload.FileID, "rows", t.RowCount(), "columns", t.ColumnCount())
	h.publishIngested(jc, payload.FileID, t)
	jc.Succeed(map[string]any{
		"file_id":      payload.FileID,
		"dataset_path": datasetPath,
		"row_count":    t.RowCount(),
		"column_count": t.ColumnCount(),
	})
	return nil
}

func (h *IngestHandler) parse(jc *Context, payload services.IngestPayload) (*dataset.Table, error) {
	rc, err := h.objectStore.Download(jc.Ctx, payload.RawPath)
	if err != nil {
		return nil, fmt.Errorf("download raw file: %w", err)
	}
	defer rc.Close()
	jc.Progress(20)
	jc.Heartbeat()

	t, err := dataset.FromCSV(rc, dataset.ImportOptions{
		SubjectColumn: payload.SubjectColumn,
		ValueColumn:   payload.ValueColumn,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// markFailed records the ingest failure on the data file itself so the
// uploader sees why without digging through the job table.
func (h *IngestHandler) markFailed(jc *Context, fileID uuid.UUID, cause error) {
	uErr := h.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		return h.fileRepo.UpdateFields(dbctx.WithTx(jc.Ctx, tx), fileID, map[string]interface{}{
			"status": types.FileStatusFailed,
			"error":  cause.Error(),
		})
	})
	if uErr != nil {
		h.log.Warn("failed to mark data file failed", "file_id", fileID, "error", uErr)
	}
}

func (h *IngestHandler) publishIngested(jc *Context, fileID uuid.UUID, t *dataset.Table) {
	if h.bus == nil {
		return
	}
	// file events have no session yet; fan out under the file id
	ev := realtime.NewEvent(fileID, realtime.EventFileIngested, map[string]any{
		"file_id":      fileID,
		"row_count":    t.RowCount(),
		"column_count": t.ColumnCount(),
	})
	if err := h.bus.Publish(jc.Ctx, ev); err != nil {
		h.log.Warn("failed to publish ingest event", "file_id", fileID, "error", err)
	}
}

