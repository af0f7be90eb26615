package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// Session is the slice of session state the executor needs: identity
// for storage prefixes and the original dataset's path handle.
type Session struct {
	ID           uuid.UUID
	OriginalPath string
}

// Executor composes the resolver with the per-type validate and apply
// passes, persists results through the caller's persister, and runs
// cascades. It holds no session state of its own: computation is
// synchronous per call, with no internal parallelism, retries, or
// timeouts beyond what ctx carries.
type Executor struct {
	store  DatasetStore
	charts ChartRenderer
	log    *logger.Logger
}

func NewExecutor(store DatasetStore, charts ChartRenderer, log *logger.Logger) *Executor {
	return &Executor{store: store, charts: charts, log: log.With("component", "engine.Executor")}
}

// SeedStep builds a new step for add_step: the raw data source is
// parsed and eagerly resolved (the target must already hold a
// materialized result unless it is the original dataset), the next
// sequential order is assigned, and the type's default config is
// seeded from the source. Nothing is persisted here; a reference
// failure therefore precedes any persistence.
func (e *Executor) SeedStep(ctx context.Context, sess Session, steps []*Step, name string, stepType StepType, rawSource string) (*Step, error) {
	order := NextOrder(steps)
	ref, err := ParseSourceRef(rawSource, steps, order)
	if err != nil {
		return nil, err
	}
	src, err := NewResolver(e.store, sess.OriginalPath).Resolve(ctx, steps, ref)
	if err != nil {
		return nil, err
	}
	cfg, err := DefaultConfig(stepType, src)
	if err != nil {
		return nil, err
	}
	step := &Step{
		ID:     uuid.New(),
		Order:  order,
		Name:   name,
		Type:   stepType,
		Source: ref,
		Config: cfg,
		Active: true,
		Status: StatusCreated,
	}
	e.log.Debug("seeded step", "step_id", step.ID, "order", step.Order, "type", step.Type, "source", rawSource)
	return step, nil
}

// ValidateStepConfig runs the full fail-closed validation for
// set_config: union shape, source resolution, the type's own checks
// against the live source, table-filter reference resolution, and the
// chart payload via the charting collaborator. No state changes.
func (e *Executor) ValidateStepConfig(ctx context.Context, sess Session, steps []*Step, step *Step, cfg Config) error {
	if err := cfg.CheckShape(step.Type); err != nil {
		return err
	}
	resolver := NewResolver(e.store, sess.OriginalPath)
	src, err := resolver.Resolve(ctx, steps, step.Source)
	if err != nil {
		return err
	}
	switch step.Type {
	case StepFilter:
		if err := ValidateFilter(cfg.Filter, src); err != nil {
			return err
		}
		if tf := cfg.Filter.Table; tf != nil && tf.Enabled {
			if _, err := resolver.Resolve(ctx, steps, tf.Reference); err != nil {
				return err
			}
		}
		return nil
	case StepAggregate:
		return ValidateAggregate(cfg.Aggregate, src)
	case StepTransform:
		return ValidateTransform(cfg.Transform, src)
	case StepSummary:
		if err := ValidateSummary(cfg.Summary, src); err != nil {
			return err
		}
		if hasChart(cfg.Summary.Chart) {
			if err := e.charts.Validate(ctx, src, cfg.Summary.Chart); err != nil {
				return validationf("chart", "%v", err)
			}
		}
		return nil
	default:
		return validationf("type", "unknown step type %q", step.Type)
	}
}

// ExecuteStep materializes one step and, when includeFollowing is set,
// re-executes every later active step once in ascending order. The
// cascade is non-recursive and sequential; a failure aborts only the
// remaining cascade, keeping every result persisted so far.
func (e *Executor) ExecuteStep(ctx context.Context, sess Session, steps []*Step, stepID uuid.UUID, includeFollowing bool, persist ResultPersister) error {
	target := findByID(steps, stepID)
	if target == nil {
		return referencef(stepID.String(), "step does not exist")
	}
	if !target.Active {
		return referencef(stepID.String(), "step is inactive")
	}

	if err := e.executeOne(ctx, sess, steps, target); err != nil {
		return err
	}
	if err := persist.PersistResult(ctx, target); err != nil {
		return fmt.Errorf("persist result of step %d: %w", target.Order, err)
	}
	if !includeFollowing {
		return nil
	}

	ordered := make([]*Step, len(steps))
	copy(ordered, steps)
	SortSteps(ordered)
	for _, s := range ordered {
		if s.Order <= target.Order || !s.Active {
			continue
		}
		if err := e.executeOne(ctx, sess, steps, s); err != nil {
			e.log.Warn("cascade aborted", "failed_step", s.Order, "trigger_step", target.Order, "error", err)
			return fmt.Errorf("cascade aborted at step %d (%s): %w", s.Order, s.Name, err)
		}
		if err := persist.PersistResult(ctx, s); err != nil {
			return fmt.Errorf("cascade aborted at step %d (%s): persist result: %w", s.Order, s.Name, err)
		}
	}
	return nil
}

// executeOne resolves the step's source, validates its config against
// that live source, applies it, and stores the outcome on the step.
// On any error the step is left exactly as it was.
func (e *Executor) executeOne(ctx context.Context, sess Session, steps []*Step, step *Step) error {
	if err := step.Config.CheckShape(step.Type); err != nil {
		return err
	}
	resolver := NewResolver(e.store, sess.OriginalPath)
	src, err := resolver.Resolve(ctx, steps, step.Source)
	if err != nil {
		return err
	}

	var result *Result
	switch step.Type {
	case StepFilter:
		result, err = e.runFilter(ctx, sess, steps, step, resolver, src)
	case StepAggregate:
		result, err = e.runAggregate(ctx, sess, step, src)
	case StepTransform:
		result, err = e.runTransform(ctx, sess, step, src)
	case StepSummary:
		result, err = e.runSummary(ctx, sess, step, src)
	default:
		return validationf("type", "unknown step type %q", step.Type)
	}
	if err != nil {
		return err
	}

	step.Result = result
	step.Status = StatusMaterialized
	e.log.Info("step materialized",
		"step_id", step.ID, "order", step.Order, "type", step.Type,
		"rows", result.RowCount, "columns", result.ColumnCount)
	return nil
}

func (e *Executor) runFilter(ctx context.Context, sess Session, steps []*Step, step *Step, resolver *Resolver, src *dataset.Table) (*Result, error) {
	cfg, changed, err := reconcileCategory(step.Config.Filter, src)
	if err != nil {
		return nil, computation(step, err)
	}
	if err := ValidateFilter(cfg, src); err != nil {
		return nil, err
	}
	if changed {
		step.Config = Config{Filter: cfg}
		e.log.Debug("category filter reconciled against new source", "step_id", step.ID, "order", step.Order)
	}
	var ref *dataset.Table
	if tf := cfg.Table; tf != nil && tf.Enabled {
		ref, err = resolver.Resolve(ctx, steps, tf.Reference)
		if err != nil {
			return nil, err
		}
	}
	out, err := ApplyFilter(cfg, src, ref)
	if err != nil {
		return nil, computation(step, err)
	}
	return e.saveTable(ctx, sess, step, out)
}

func (e *Executor) runAggregate(ctx context.Context, sess Session, step *Step, src *dataset.Table) (*Result, error) {
	if err := ValidateAggregate(step.Config.Aggregate, src); err != nil {
		return nil, err
	}
	out, err := ApplyAggregate(step.Config.Aggregate, src)
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, computation(step, err)
	}
	return e.saveTable(ctx, sess, step, out)
}

func (e *Executor) runTransform(ctx context.Context, sess Session, step *Step, src *dataset.Table) (*Result, error) {
	if err := ValidateTransform(step.Config.Transform, src); err != nil {
		return nil, err
	}
	out, err := ApplyTransform(step.Config.Transform, src)
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, computation(step, err)
	}
	return e.saveTable(ctx, sess, step, out)
}

func (e *Executor) runSummary(ctx context.Context, sess Session, step *Step, src *dataset.Table) (*Result, error) {
	cfg := step.Config.Summary
	if err := ValidateSummary(cfg, src); err != nil {
		return nil, err
	}
	if hasChart(cfg.Chart) {
		if err := e.charts.Validate(ctx, src, cfg.Chart); err != nil {
			return nil, validationf("chart", "%v", err)
		}
	}
	formulas, err := ApplySummary(cfg, src)
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, computation(step, err)
	}

	result := &Result{Formulas: formulas}
	if hasChart(cfg.Chart) {
		artifact, err := e.charts.Render(ctx, sess.ID, src, cfg.Chart)
		if err != nil {
			return nil, computation(step, fmt.Errorf("render chart: %w", err))
		}
		result.Chart = artifact
	}
	if cfg.Table != nil && cfg.Table.ShowSourceData {
		name := cfg.Table.TableName
		if name == "" {
			name = fmt.Sprintf("step_%d_source", step.Order)
		}
		path, err := e.store.Save(ctx, sess.ID, name, src, "passthrough")
		if err != nil {
			return nil, fmt.Errorf("save passthrough table: %w", err)
		}
		result.PassthroughPath = path
		result.RowCount = src.RowCount()
		result.ColumnCount = src.ColumnCount()
	}
	return result, nil
}

func (e *Executor) saveTable(ctx context.Context, sess Session, step *Step, out *dataset.Table) (*Result, error) {
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("step_%d", step.Order)
	}
	path, err := e.store.Save(ctx, sess.ID, name, out, "results")
	if err != nil {
		return nil, fmt.Errorf("save result dataset: %w", err)
	}
	return &Result{
		Table:       out,
		DatasetPath: path,
		RowCount:    out.RowCount(),
		ColumnCount: out.ColumnCount(),
	}, nil
}

func hasChart(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
