package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/engine"
)

// stepToRow maps an in-memory pipeline step onto its persisted row.
func stepToRow(sessionID uuid.UUID, step *engine.Step) (*types.AnalysisStep, error) {
	cfg, err := json.Marshal(step.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal step config: %w", err)
	}
	row := &types.AnalysisStep{
		ID:         step.ID,
		SessionID:  sessionID,
		Order:      step.Order,
		Name:       step.Name,
		Type:       string(step.Type),
		SourceKind: string(step.Source.Kind),
		Config:     datatypes.JSON(cfg),
		Active:     step.Active,
		Status:     string(step.Status),
	}
	if step.Source.Kind == engine.SourceStep {
		id := step.Source.StepID
		row.SourceStepID = &id
	}
	if step.Result != nil {
		res, err := json.Marshal(step.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal step result: %w", err)
		}
		row.Result = datatypes.JSON(res)
	}
	return row, nil
}

// rowToStep rehydrates a persisted row into an engine step. Results are
// restored without their in-memory table; the dataset path is what
// later resolutions load from.
func rowToStep(row *types.AnalysisStep) (*engine.Step, error) {
	var cfg engine.Config
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config of step %d: %w", row.Order, err)
		}
	}
	step := &engine.Step{
		ID:     row.ID,
		Order:  row.Order,
		Name:   row.Name,
		Type:   engine.StepType(row.Type),
		Config: cfg,
		Active: row.Active,
		Status: engine.StepStatus(row.Status),
	}
	switch engine.SourceKind(row.SourceKind) {
	case engine.SourceStep:
		ref := engine.SourceRef{Kind: engine.SourceStep}
		if row.SourceStepID != nil {
			ref.StepID = *row.SourceStepID
		}
		step.Source = ref
	default:
		step.Source = engine.OriginalRef()
	}
	if len(row.Result) > 0 {
		var res engine.Result
		if err := json.Unmarshal(row.Result, &res); err != nil {
			return nil, fmt.Errorf("unmarshal result of step %d: %w", row.Order, err)
		}
		step.Result = &res
	}
	return step, nil
}

func rowsToSteps(rows []*types.AnalysisStep) ([]*engine.Step, error) {
	steps := make([]*engine.Step, 0, len(rows))
	for _, row := range rows {
		step, err := rowToStep(row)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	engine.SortSteps(steps)
	return steps, nil
}
