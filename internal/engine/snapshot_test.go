package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func pipelineSteps(t *testing.T) []*Step {
	t.Helper()
	first := &Step{
		ID: uuid.New(), Order: 1, Name: "絞り込み", Type: StepFilter,
		Source: OriginalRef(), Config: tokyoFilter(),
		Active: true, Status: StatusConfigured,
	}
	second := &Step{
		ID: uuid.New(), Order: 2, Name: "集計", Type: StepAggregate,
		Source: StepRef(first.ID), Config: sumSalesAggregate(),
		Active: true, Status: StatusConfigured,
	}
	third := &Step{
		ID: uuid.New(), Order: 3, Name: "まとめ", Type: StepSummary,
		Source: StepRef(second.ID),
		Config: Config{Summary: &SummaryConfig{Formulas: []SummaryFormula{
			{Type: MethodSum, Subject: "合計", FormulaText: "総売上", Unit: UnitYen, Portion: 0.5},
		}}},
		Active: true, Status: StatusConfigured,
	}
	return []*Step{first, second, third}
}

func TestSnapshot_RoundTripPreservesTuples(t *testing.T) {
	steps := pipelineSteps(t)
	snap := CaptureSnapshot(steps)
	before, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := RestoreSteps(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	after, err := json.Marshal(CaptureSnapshot(restored))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("capture after restore differs:\n%s\n%s", before, after)
	}

	for i, s := range restored {
		if s.ID == steps[i].ID {
			t.Fatalf("restored step %d kept its old identity", i)
		}
		if s.Status != StatusConfigured || s.Result != nil {
			t.Fatalf("restored step %d must be configured with no result", i)
		}
		if !s.Active {
			t.Fatalf("restored step %d must be active", i)
		}
	}
	// order-addressed references rebind to the recreated steps
	if restored[1].Source.StepID != restored[0].ID {
		t.Fatalf("step_1 reference did not rebind")
	}
	if restored[2].Source.StepID != restored[1].ID {
		t.Fatalf("step_2 reference did not rebind")
	}
}

func TestSnapshot_ConfigsDoNotAliasLiveSteps(t *testing.T) {
	steps := pipelineSteps(t)
	snap := CaptureSnapshot(steps)

	steps[0].Config.Filter.Category[0].Values[0] = "名古屋"
	if snap[0].Config.Filter.Category[0].Values[0] != "東京" {
		t.Fatalf("snapshot config aliases the live config")
	}
}

func TestSnapshot_PreservesOrderGaps(t *testing.T) {
	steps := pipelineSteps(t)
	steps[1].Order = 3
	steps[2].Order = 4
	steps[2].Source = StepRef(steps[1].ID)

	snap := CaptureSnapshot(steps)
	if snap[0].Order != 1 || snap[1].Order != 3 || snap[2].Order != 4 {
		t.Fatalf("orders: %d %d %d", snap[0].Order, snap[1].Order, snap[2].Order)
	}
	if snap[2].DataSource != "step_3" {
		t.Fatalf("frozen source %q", snap[2].DataSource)
	}

	restored, err := RestoreSteps(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored[1].Order != 3 {
		t.Fatalf("gap was renumbered: %d", restored[1].Order)
	}
	if restored[2].Source.StepID != restored[1].ID {
		t.Fatalf("step_3 reference did not rebind to the recreated step")
	}
	if NextOrder(restored) != 5 {
		t.Fatalf("next order after restore: %d", NextOrder(restored))
	}
}

func TestSnapshot_SkipsInactiveSteps(t *testing.T) {
	steps := pipelineSteps(t)
	steps[1].Active = false
	steps[2].Source = OriginalRef()

	snap := CaptureSnapshot(steps)
	if len(snap) != 2 {
		t.Fatalf("captured %d steps", len(snap))
	}
	if snap[0].Name != "絞り込み" || snap[1].Name != "まとめ" {
		t.Fatalf("captured %q and %q", snap[0].Name, snap[1].Name)
	}
}

func TestSnapshot_DanglingReferenceFreezesAndThawsDangling(t *testing.T) {
	steps := pipelineSteps(t)
	// the aggregate's source step is long gone
	steps[1].Source = StepRef(uuid.New())

	snap := CaptureSnapshot(steps)
	if snap[1].DataSource != "step_?" {
		t.Fatalf("frozen dangling source %q", snap[1].DataSource)
	}

	restored, err := RestoreSteps(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	src := restored[1].Source
	if src.IsOriginal() || src.StepID != uuid.Nil {
		t.Fatalf("dangling reference must thaw dangling, got %+v", src)
	}

	rig := newTestRig(t, salesTable(t))
	err = rig.exec.ExecuteStep(context.Background(), rig.sess, restored, restored[1].ID, false, rig.persist)
	if err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError at next use, got %v", err)
	}
}

func TestSnapshot_TableFilterReferenceFrozenSeparately(t *testing.T) {
	steps := pipelineSteps(t)
	tfStep := &Step{
		ID: uuid.New(), Order: 4, Name: "表フィルタ", Type: StepFilter,
		Source: OriginalRef(),
		Config: Config{Filter: &FilterConfig{
			Table: &TableFilter{Enabled: true, Reference: StepRef(steps[0].ID), KeyColumns: []string{"地域"}},
		}},
		Active: true, Status: StatusConfigured,
	}
	steps = append(steps, tfStep)

	snap := CaptureSnapshot(steps)
	frozen := snap[3]
	if frozen.TableFilterRef != "step_1" {
		t.Fatalf("table filter ref frozen as %q", frozen.TableFilterRef)
	}
	if got := frozen.Config.Filter.Table.Reference; got.Kind != "" || got.StepID != uuid.Nil {
		t.Fatalf("embedded reference must be zeroed in the frozen config: %+v", got)
	}
	// the live step keeps its binding
	if steps[3].Config.Filter.Table.Reference.StepID != steps[0].ID {
		t.Fatalf("capture mutated the live config")
	}

	restored, err := RestoreSteps(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored[3].Config.Filter.Table.Reference.StepID != restored[0].ID {
		t.Fatalf("table filter reference did not rebind")
	}
}

func TestRestoreSteps_Rejections(t *testing.T) {
	steps := pipelineSteps(t)
	snap := CaptureSnapshot(steps)

	dup := append([]SnapshotStep{}, snap...)
	dup[1].Order = 1
	if _, err := RestoreSteps(dup); err == nil {
		t.Fatalf("duplicate order must be rejected")
	}

	bad := append([]SnapshotStep{}, snap...)
	bad[0].Type = StepAggregate // config variant no longer matches
	if _, err := RestoreSteps(bad); err == nil {
		t.Fatalf("config shape mismatch must be rejected")
	}
}

func TestSnapshot_RestoredPipelineReproducesResults(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	first := rig.mustSeed(t, nil, "絞り込み", StepFilter, "original")
	first.Config = tokyoFilter()
	steps := []*Step{first}
	rig.mustExecute(t, steps, first.ID, false)

	second := rig.mustSeed(t, steps, "集計", StepAggregate, "step_0")
	second.Config = sumSalesAggregate()
	steps = append(steps, second)
	rig.mustExecute(t, steps, second.ID, false)
	want := valueOf(t, second.Result.Table, 0)

	snap := CaptureSnapshot(steps)
	restored, err := RestoreSteps(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	rig.mustExecute(t, restored, restored[0].ID, true)
	if got := valueOf(t, restored[1].Result.Table, 0); got != want {
		t.Fatalf("restored pipeline produced %v, want %v", got, want)
	}
}
