package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func tokyoFilter() Config {
	return Config{Filter: &FilterConfig{
		Category: []CategoryFilter{{Column: "地域", Values: []string{"東京"}}},
	}}
}

func sumSalesAggregate() Config {
	return Config{Aggregate: &AggregateConfig{
		Aggregations: []Aggregation{{Name: "合計", Method: MethodSum, Subject: "売上"}},
	}}
}

func TestSeedStep_FilterDefaultsFromSource(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "絞り込み", StepFilter, "original")

	if step.Order != 0 {
		t.Fatalf("first step must get order 0, got %d", step.Order)
	}
	if step.Status != StatusCreated || !step.Active {
		t.Fatalf("unexpected initial state: %v active=%v", step.Status, step.Active)
	}
	if !step.Source.IsOriginal() {
		t.Fatalf("source should bind to the original dataset")
	}
	fc := step.Config.Filter
	if fc == nil || len(fc.Category) != 1 {
		t.Fatalf("filter config not seeded: %+v", step.Config)
	}
	if fc.Category[0].Column != "地域" {
		t.Fatalf("seeded column %q", fc.Category[0].Column)
	}
	if got := strings.Join(fc.Category[0].Values, ","); got != "東京,大阪" {
		t.Fatalf("seeded values %q", got)
	}
}

func TestSeedStep_DanglingReferenceFailsBeforeAnythingPersists(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	_, err := rig.exec.SeedStep(context.Background(), rig.sess, nil, "x", StepFilter, "step_5")
	if err == nil {
		t.Fatalf("expected reference error for step_5")
	}
	if !IsReference(err) {
		t.Fatalf("expected ReferenceError, got %T %v", err, err)
	}
}

func TestSeedStep_UnmaterializedSourceRejected(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	steps := []*Step{rig.mustSeed(t, nil, "一段目", StepFilter, "original")}

	_, err := rig.exec.SeedStep(context.Background(), rig.sess, steps, "二段目", StepAggregate, "step_0")
	if err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError for unexecuted source, got %v", err)
	}

	rig.mustExecute(t, steps, steps[0].ID, false)
	if _, err := rig.exec.SeedStep(context.Background(), rig.sess, steps, "二段目", StepAggregate, "step_0"); err != nil {
		t.Fatalf("materialized source must be accepted: %v", err)
	}
}

func TestExecuteStep_FilterScenario(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "東京のみ", StepFilter, "original")
	step.Config = tokyoFilter()
	steps := []*Step{step}

	rig.mustExecute(t, steps, step.ID, false)

	if step.Status != StatusMaterialized {
		t.Fatalf("status %v", step.Status)
	}
	res := step.Result
	if res == nil || res.Table == nil {
		t.Fatalf("no result table")
	}
	if res.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", res.RowCount)
	}
	if v := valueOf(t, res.Table, 0); v != 100 {
		t.Fatalf("expected 値=100, got %v", v)
	}
	if res.DatasetPath == "" {
		t.Fatalf("result dataset was not saved")
	}
	if _, ok := rig.store.objects[res.DatasetPath]; !ok {
		t.Fatalf("saved path %q not in store", res.DatasetPath)
	}
	if len(rig.persist.persisted) != 1 || rig.persist.persisted[0] != step.ID {
		t.Fatalf("persister calls: %v", rig.persist.persisted)
	}
}

func TestExecuteStep_CascadeRecomputesFollowers(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	first := rig.mustSeed(t, nil, "絞り込み", StepFilter, "original")
	first.Config = tokyoFilter()
	steps := []*Step{first}
	rig.mustExecute(t, steps, first.ID, false)

	second := rig.mustSeed(t, steps, "集計", StepAggregate, "step_0")
	second.Config = sumSalesAggregate()
	steps = append(steps, second)

	rig.mustExecute(t, steps, first.ID, true)
	if second.Status != StatusMaterialized {
		t.Fatalf("cascade did not run the follower")
	}
	if v := valueOf(t, second.Result.Table, 0); v != 100 {
		t.Fatalf("sum over 東京 should be 100, got %v", v)
	}

	// narrowing the upstream filter must flow through on the next cascade
	first.Config = Config{Filter: &FilterConfig{
		Category: []CategoryFilter{{Column: "地域", Values: []string{"大阪"}}},
	}}
	rig.mustExecute(t, steps, first.ID, true)
	if v := valueOf(t, second.Result.Table, 0); v != 50 {
		t.Fatalf("sum over 大阪 should be 50, got %v", v)
	}
}

func TestExecuteStep_CascadeAbortKeepsEarlierResults(t *testing.T) {
	rig := newTestRig(t, mixedTable(t))
	first := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{first}
	rig.mustExecute(t, steps, first.ID, false)

	second := rig.mustSeed(t, steps, "壊れた変換", StepTransform, "step_0")
	// invalid at execution time: the subject already exists
	second.Config = Config{Transform: &TransformConfig{Operations: []TransformOperation{{
		Type: TransformAddSubject, TargetName: "売上",
		Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
	}}}}
	steps = append(steps, second)

	third := rig.mustSeed(t, steps, "三段目", StepAggregate, "step_0")
	third.Config = sumSalesAggregate()
	steps = append(steps, third)

	rig.persist.persisted = nil
	err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, first.ID, true, rig.persist)
	if err == nil {
		t.Fatalf("cascade should fail at the broken step")
	}
	if !strings.Contains(err.Error(), "cascade aborted at step 1") {
		t.Fatalf("error should name the failing step: %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("wrapped cause should still be a ValidationError: %v", err)
	}
	// the trigger's result survived, the rest of the cascade never ran
	if first.Status != StatusMaterialized {
		t.Fatalf("trigger result must be kept")
	}
	if third.Status == StatusMaterialized {
		t.Fatalf("steps after the failure must not run")
	}
	if len(rig.persist.persisted) != 1 || rig.persist.persisted[0] != first.ID {
		t.Fatalf("persisted: %v", rig.persist.persisted)
	}
}

func TestExecuteStep_CascadeSkipsInactiveSteps(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	first := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{first}
	rig.mustExecute(t, steps, first.ID, false)

	second := rig.mustSeed(t, steps, "休止中", StepAggregate, "step_0")
	second.Config = sumSalesAggregate()
	steps = append(steps, second)

	third := rig.mustSeed(t, steps, "三段目", StepAggregate, "step_0")
	third.Config = sumSalesAggregate()
	steps = append(steps, third)

	second.Active = false
	rig.mustExecute(t, steps, first.ID, true)

	if second.Status == StatusMaterialized {
		t.Fatalf("inactive step must be skipped")
	}
	if third.Status != StatusMaterialized {
		t.Fatalf("active follower must still run")
	}
}

func TestExecuteStep_DanglingSourceAfterRemoval(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	first := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{first}
	rig.mustExecute(t, steps, first.ID, false)

	second := rig.mustSeed(t, steps, "二段目", StepAggregate, "step_0")
	second.Config = sumSalesAggregate()
	steps = append(steps, second)

	// physical removal leaves the binding dangling
	steps = []*Step{second}
	err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, second.ID, false, rig.persist)
	if err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError after source removal, got %v", err)
	}
	if second.Status == StatusMaterialized {
		t.Fatalf("failed step must keep its previous state")
	}
}

func TestExecuteStep_SummaryRendersChartAndPassthrough(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "まとめ", StepSummary, "original")
	step.Config = Config{Summary: &SummaryConfig{
		Formulas: []SummaryFormula{
			{Type: MethodSum, Subject: "売上", FormulaText: "総売上", Unit: UnitYen, Portion: 0.5},
		},
		Chart: []byte(`{"graph_type":"bar"}`),
		Table: &SummaryTable{ShowSourceData: true},
	}}
	steps := []*Step{step}
	rig.mustExecute(t, steps, step.ID, false)

	res := step.Result
	if len(res.Formulas) != 1 || res.Formulas[0].Value != 75 || res.Formulas[0].Unit != UnitYen {
		t.Fatalf("formulas: %+v", res.Formulas)
	}
	if res.Chart == nil || rig.charts.rendered != 1 {
		t.Fatalf("chart was not rendered")
	}
	if res.PassthroughPath == "" {
		t.Fatalf("passthrough table was not saved")
	}
	if res.DatasetPath != "" || res.Table != nil {
		t.Fatalf("a summary step must not expose a dataset")
	}

	// and therefore cannot serve as a data source
	_, err := rig.exec.SeedStep(context.Background(), rig.sess, steps, "次", StepFilter, "step_0")
	if err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError for summary source, got %v", err)
	}
}

func TestExecuteStep_PersistFailureSurfaces(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{step}

	rig.persist.failOn = step.ID
	err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, step.ID, false, rig.persist)
	if err == nil || !strings.Contains(err.Error(), "persist result of step 0") {
		t.Fatalf("got %v", err)
	}
}

func TestExecuteStep_ReconcilesCategoryAgainstNewSource(t *testing.T) {
	rig := newTestRig(t, mixedTable(t))
	step := rig.mustSeed(t, nil, "絞り込み", StepFilter, "original")
	steps := []*Step{step}
	if got := len(step.Config.Filter.Category[0].Values); got != 3 {
		t.Fatalf("seeded distincts: %d", got)
	}

	// the original shrinks to two regions behind the same path
	rig.store.Put(t, rig.sess.OriginalPath, salesTable(t))
	rig.mustExecute(t, steps, step.ID, false)

	values := step.Config.Filter.Category[0].Values
	if got := strings.Join(values, ","); got != "東京,大阪" {
		t.Fatalf("stale category values must be dropped, got %q", got)
	}
	if step.Result.RowCount != 2 {
		t.Fatalf("rows: %d", step.Result.RowCount)
	}
}

func TestValidateStepConfig_ChartErrorsBecomeValidationErrors(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "まとめ", StepSummary, "original")
	steps := []*Step{step}

	rig.charts.validateErr = fmt.Errorf("unknown graph_type")
	cfg := Config{Summary: &SummaryConfig{
		Formulas: []SummaryFormula{{Type: MethodSum, Subject: "売上", FormulaText: "x", Unit: UnitYen, Portion: 1}},
		Chart:    []byte(`{"graph_type":"nope"}`),
	}}
	err := rig.exec.ValidateStepConfig(context.Background(), rig.sess, steps, step, cfg)
	if err == nil || !IsValidation(err) {
		t.Fatalf("expected ValidationError from chart check, got %v", err)
	}
}

func TestValidateStepConfig_TableFilterReferenceResolved(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	first := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{first}

	second := rig.mustSeed(t, steps, "二段目", StepFilter, "original")
	steps = append(steps, second)

	cfg := Config{Filter: &FilterConfig{
		Table: &TableFilter{Enabled: true, Reference: StepRef(first.ID), KeyColumns: []string{"地域"}},
	}}
	// first is not materialized yet
	if err := rig.exec.ValidateStepConfig(context.Background(), rig.sess, steps, second, cfg); err == nil || !IsReference(err) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}

	rig.mustExecute(t, steps, first.ID, false)
	if err := rig.exec.ValidateStepConfig(context.Background(), rig.sess, steps, second, cfg); err != nil {
		t.Fatalf("config should validate once the reference is materialized: %v", err)
	}
}

func TestExecuteStep_UnknownAndInactiveTargets(t *testing.T) {
	rig := newTestRig(t, salesTable(t))
	step := rig.mustSeed(t, nil, "一段目", StepFilter, "original")
	steps := []*Step{step}

	if err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, uuid.New(), false, rig.persist); err == nil || !IsReference(err) {
		t.Fatalf("unknown target: %v", err)
	}
	step.Active = false
	if err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, step.ID, false, rig.persist); err == nil || !IsReference(err) {
		t.Fatalf("inactive target: %v", err)
	}
}

func TestExecuteStep_RejectedConfigKeepsItsCategoryValues(t *testing.T) {
	rig := newTestRig(t, mixedTable(t))
	step := rig.mustSeed(t, nil, "絞り込み", StepFilter, "original")
	steps := []*Step{step}
	// invalid numeric shape: mode set, no parameters
	step.Config.Filter.Numeric = &NumericFilter{Mode: NumericRange}

	// the original shrinks behind the same path, making the seeded
	// category values stale and reconcilable
	rig.store.Put(t, rig.sess.OriginalPath, salesTable(t))

	err := rig.exec.ExecuteStep(context.Background(), rig.sess, steps, step.ID, false, rig.persist)
	if !IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	if got := len(step.Config.Filter.Category[0].Values); got != 3 {
		t.Fatalf("rejected config must keep its category values, got %d", got)
	}
	if len(rig.persist.persisted) != 0 {
		t.Fatalf("nothing should persist on validation failure")
	}
}
