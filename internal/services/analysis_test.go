package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mizukilab/kaiseki-backend/internal/data/db"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos/testutil"
	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
)

// noopCharts stands in for the chart service so pipeline tests do not
// depend on font loading.
type noopCharts struct{}

func (noopCharts) Validate(context.Context, *dataset.Table, json.RawMessage) error { return nil }

func (noopCharts) Render(context.Context, uuid.UUID, *dataset.Table, json.RawMessage) (*engine.ChartArtifact, error) {
	return &engine.ChartArtifact{Path: "charts/none.png", Format: "png"}, nil
}

// analysisRig is one fully wired session: sqlite storage, local object
// store, a seeded owner, and an ingested two-row dataset.
type analysisRig struct {
	svc     AnalysisService
	session *types.AnalysisSession
	ctx     context.Context
}

func newAnalysisRig(t *testing.T) *analysisRig {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kaiseki.db")), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store, err := storage.NewObjectStoreWithConfig(log, storage.Config{
		Mode:     storage.ModeLocal,
		LocalDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("object store: %v", err)
	}
	datasetStore := NewDatasetStoreService(log, store)
	executor := engine.NewExecutor(datasetStore, noopCharts{}, log)

	all := repos.NewAll(gdb, log)
	projectSvc := NewProjectService(gdb, log, all.Project, all.Member, all.User)
	sessionSvc := NewSessionService(gdb, log, all.Session, all.Step, all.Snap, all.File, projectSvc, datasetStore)
	svc := NewAnalysisService(gdb, log, all.Step, all.Snap, all.Chat, all.File, sessionSvc, datasetStore, executor, nil)

	ctx := context.Background()
	owner := testutil.SeedUser(t, ctx, gdb, uuid.NewString()+"@example.com")
	proj := testutil.SeedProject(t, ctx, gdb, owner.ID)
	file := testutil.SeedDataFile(t, ctx, gdb, proj.ID, owner.ID)
	sess := testutil.SeedSession(t, ctx, gdb, proj.ID, file.ID, owner.ID)

	tbl, err := dataset.New([]dataset.Column{
		{Name: "店舗", Type: dataset.TypeText},
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if err := tbl.AppendRow(dataset.Text("A"), dataset.Text("売上"), dataset.Number(10)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.AppendRow(dataset.Text("B"), dataset.Text("売上"), dataset.Number(20)); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := dataset.Encode(tbl)
	if err != nil {
		t.Fatalf("encode dataset: %v", err)
	}
	if err := datasetStore.SaveRaw(ctx, file.DatasetPath, data); err != nil {
		t.Fatalf("save dataset: %v", err)
	}

	return &analysisRig{
		svc:     svc,
		session: sess,
		ctx:     ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: owner.ID}),
	}
}

func findStep(t *testing.T, steps []*engine.Step, id uuid.UUID) *engine.Step {
	t.Helper()
	for _, st := range steps {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("step %s missing from pipeline", id)
	return nil
}

func TestSetStepConfig_ExecutesStepAndReturnsOverview(t *testing.T) {
	rig := newAnalysisRig(t)

	step, err := rig.svc.AddStep(rig.ctx, rig.session.ID, "店舗絞り込み", "filter", "original")
	if err != nil {
		t.Fatalf("add step: %v", err)
	}

	cfg := []byte(`{"filter":{"category":[{"column":"店舗","values":["A"]}]}}`)
	steps, overview, err := rig.svc.SetStepConfig(rig.ctx, rig.session.ID, step.Order, cfg)
	if err != nil {
		t.Fatalf("set config: %v", err)
	}
	if overview == "" {
		t.Fatalf("expected a non-empty step overview")
	}

	got := findStep(t, steps, step.ID)
	if got.Status != engine.StatusMaterialized {
		t.Fatalf("status = %q, want %q", got.Status, engine.StatusMaterialized)
	}
	if got.Result == nil || got.Result.RowCount != 1 {
		t.Fatalf("expected a materialized result with 1 row, got %+v", got.Result)
	}

	reloaded, err := rig.svc.ListSteps(rig.ctx, rig.session.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(reloaded) != 1 {
		t.Fatalf("expected 1 step, got %d", len(reloaded))
	}
	if reloaded[0].Status != engine.StatusMaterialized || reloaded[0].Result == nil || reloaded[0].Result.DatasetPath == "" {
		t.Fatalf("materialization did not persist: status=%q result=%+v", reloaded[0].Status, reloaded[0].Result)
	}
}

func TestSetStepConfig_CascadesOverLaterSteps(t *testing.T) {
	rig := newAnalysisRig(t)

	filter, err := rig.svc.AddStep(rig.ctx, rig.session.ID, "絞り込み", "filter", "original")
	if err != nil {
		t.Fatalf("add filter step: %v", err)
	}
	if _, _, err := rig.svc.SetStepConfig(rig.ctx, rig.session.ID, filter.Order,
		[]byte(`{"filter":{"category":[{"column":"店舗","values":["A"]}]}}`)); err != nil {
		t.Fatalf("configure filter: %v", err)
	}

	agg, err := rig.svc.AddStep(rig.ctx, rig.session.ID, "集計", "aggregate", "step_0")
	if err != nil {
		t.Fatalf("add aggregate step: %v", err)
	}
	steps, _, err := rig.svc.SetStepConfig(rig.ctx, rig.session.ID, agg.Order,
		[]byte(`{"aggregate":{"aggregations":[{"name":"売上計","method":"sum","subject":"売上"}]}}`))
	if err != nil {
		t.Fatalf("configure aggregate: %v", err)
	}
	before := findStep(t, steps, agg.ID).Result
	if before == nil || before.DatasetPath == "" {
		t.Fatalf("aggregate step not materialized: %+v", before)
	}

	// reconfiguring the upstream filter must re-execute the aggregate
	steps, _, err = rig.svc.SetStepConfig(rig.ctx, rig.session.ID, filter.Order,
		[]byte(`{"filter":{"category":[{"column":"店舗","values":["A","B"]}]}}`))
	if err != nil {
		t.Fatalf("reconfigure filter: %v", err)
	}
	after := findStep(t, steps, agg.ID).Result
	if after == nil || after.DatasetPath == before.DatasetPath {
		t.Fatalf("aggregate was not re-materialized by the cascade: before=%q after=%+v", before.DatasetPath, after)
	}

	reloaded, err := rig.svc.ListSteps(rig.ctx, rig.session.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	persisted := findStep(t, reloaded, agg.ID)
	if persisted.Result == nil || persisted.Result.DatasetPath != after.DatasetPath {
		t.Fatalf("cascade result did not persist: %+v", persisted.Result)
	}
}
