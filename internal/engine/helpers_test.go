package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// salesTable builds the two-region sales dataset used across the
// scenario tests.
func salesTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New([]dataset.Column{
		{Name: "地域", Type: dataset.TypeText},
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	tbl.AppendRow(dataset.Text("東京"), dataset.Text("売上"), dataset.Number(100))
	tbl.AppendRow(dataset.Text("大阪"), dataset.Text("売上"), dataset.Number(50))
	return tbl
}

// mixedTable extends salesTable with a second subject and a
// non-numeric value row.
func mixedTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl := salesTable(t)
	tbl.AppendRow(dataset.Text("東京"), dataset.Text("費用"), dataset.Number(30))
	tbl.AppendRow(dataset.Text("大阪"), dataset.Text("費用"), dataset.Number(20))
	tbl.AppendRow(dataset.Text("名古屋"), dataset.Text("メモ"), dataset.Text("未確定"))
	return tbl
}

// memStore keeps encoded datasets in memory behind path handles.
type memStore struct {
	objects map[string][]byte
	saves   int
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(t *testing.T, path string, tbl *dataset.Table) {
	t.Helper()
	data, err := dataset.Encode(tbl)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.objects[path] = data
}

func (m *memStore) Load(ctx context.Context, path string) (*dataset.Table, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return dataset.Decode(data)
}

func (m *memStore) Save(ctx context.Context, sessionID uuid.UUID, name string, tbl *dataset.Table, prefix string) (string, error) {
	data, err := dataset.Encode(tbl)
	if err != nil {
		return "", err
	}
	m.saves++
	path := fmt.Sprintf("%s/%s/%s_%d.json", sessionID, prefix, name, m.saves)
	m.objects[path] = data
	return path, nil
}

// stubCharts accepts every chart config and renders a fixed artifact.
type stubCharts struct {
	validateErr error
	rendered    int
}

func (s *stubCharts) Validate(ctx context.Context, t *dataset.Table, cfg json.RawMessage) error {
	return s.validateErr
}

func (s *stubCharts) Render(ctx context.Context, sessionID uuid.UUID, t *dataset.Table, cfg json.RawMessage) (*ChartArtifact, error) {
	s.rendered++
	return &ChartArtifact{Path: "charts/stub.png", Format: "png", Width: 800, Height: 600}, nil
}

// memPersister records persisted steps and can fail on demand.
type memPersister struct {
	persisted []uuid.UUID
	failOn    uuid.UUID
}

func (p *memPersister) PersistResult(ctx context.Context, step *Step) error {
	if p.failOn != uuid.Nil && step.ID == p.failOn {
		return fmt.Errorf("forced persist failure")
	}
	p.persisted = append(p.persisted, step.ID)
	return nil
}

// testRig wires an executor over an in-memory store with the original
// dataset preloaded.
type testRig struct {
	exec    *Executor
	store   *memStore
	charts  *stubCharts
	persist *memPersister
	sess    Session
}

func newTestRig(t *testing.T, original *dataset.Table) *testRig {
	t.Helper()
	store := newMemStore()
	sess := Session{ID: uuid.New(), OriginalPath: "files/original.json"}
	store.Put(t, sess.OriginalPath, original)
	charts := &stubCharts{}
	return &testRig{
		exec:    NewExecutor(store, charts, testLogger(t)),
		store:   store,
		charts:  charts,
		persist: &memPersister{},
		sess:    sess,
	}
}

func (r *testRig) mustSeed(t *testing.T, steps []*Step, name string, st StepType, source string) *Step {
	t.Helper()
	step, err := r.exec.SeedStep(context.Background(), r.sess, steps, name, st, source)
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return step
}

func (r *testRig) mustExecute(t *testing.T, steps []*Step, id uuid.UUID, cascade bool) {
	t.Helper()
	if err := r.exec.ExecuteStep(context.Background(), r.sess, steps, id, cascade, r.persist); err != nil {
		t.Fatalf("execute: %v", err)
	}
}
