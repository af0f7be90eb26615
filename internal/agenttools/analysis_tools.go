package agenttools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

// RegisterAnalysisTools wires every pipeline capability into the
// registry. The agent addresses steps by their public order number,
// mirroring the "step_N" references it reads in overviews.
func RegisterAnalysisTools(r *Registry, svc services.AnalysisService) {
	r.Register(&AddStepTool{svc: svc})
	r.Register(&SetStepConfigTool{svc: svc})
	r.Register(&ExecuteStepTool{svc: svc})
	r.Register(&DeleteStepTool{svc: svc})
	r.Register(&DataOverviewTool{svc: svc})
	r.Register(&StepOverviewTool{svc: svc})
	r.Register(&SaveSnapshotTool{svc: svc})
	r.Register(&RevertSnapshotTool{svc: svc})
}

func sessionProp() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "UUID of the analysis session.",
	}
}

func stepProp() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Order number of the step (the N in step_N).",
	}
}

func parseSession(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id: %w", err)
	}
	return id, nil
}

type AddStepTool struct {
	svc services.AnalysisService
}

func (t *AddStepTool) Name() string { return "add_step" }

func (t *AddStepTool) Description() string {
	return "Append a new analysis step to the session pipeline. Types: 'filter', 'aggregate', 'transform', 'summary'. The data source is 'original' or 'step_N' for an executed earlier step."
}

func (t *AddStepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"name": map[string]any{
				"type":        "string",
				"description": "Human-readable step name.",
			},
			"type": map[string]any{
				"type":        "string",
				"enum":        []string{"filter", "aggregate", "transform", "summary"},
				"description": "Kind of step to add.",
			},
			"data_source": map[string]any{
				"type":        "string",
				"description": "'original' or 'step_N'. Defaults to 'original'.",
			},
		},
		"required": []string{"session_id", "name", "type"},
	}
}

func (t *AddStepTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID  string `json:"session_id"`
		Name       string `json:"name"`
		Type       string `json:"type"`
		DataSource string `json:"data_source"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	step, err := t.svc.AddStep(ctx, sessionID, args.Name, args.Type, args.DataSource)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("added step %d (%s, %s); configure it with set_step_config before executing", step.Order, step.Name, step.Type), nil
}

type SetStepConfigTool struct {
	svc services.AnalysisService
}

func (t *SetStepConfigTool) Name() string { return "set_step_config" }

func (t *SetStepConfigTool) Description() string {
	return "Replace a step's configuration, then execute it and every later active step in order. The config object carries exactly one of 'filter', 'aggregate', 'transform', 'summary', matching the step's type. Validation is fail-closed: on any validation error the previous config is kept. Returns the step overview."
}

func (t *SetStepConfigTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"step":       stepProp(),
			"config": map[string]any{
				"type":        "object",
				"description": "Step configuration union, keyed by step type.",
			},
		},
		"required": []string{"session_id", "step", "config"},
	}
}

func (t *SetStepConfigTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string          `json:"session_id"`
		Step      int             `json:"step"`
		Config    json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	_, overview, err := t.svc.SetStepConfig(ctx, sessionID, args.Step, args.Config)
	if err != nil {
		return "", err
	}
	return overview, nil
}

type ExecuteStepTool struct {
	svc services.AnalysisService
}

func (t *ExecuteStepTool) Name() string { return "execute_step" }

func (t *ExecuteStepTool) Description() string {
	return "Execute a configured step against its data source. With include_following, every later active step is re-executed once in order; a mid-cascade failure keeps the earlier results."
}

func (t *ExecuteStepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"step":       stepProp(),
			"include_following": map[string]any{
				"type":        "boolean",
				"description": "Re-execute every later active step as well. Default false.",
			},
		},
		"required": []string{"session_id", "step"},
	}
}

func (t *ExecuteStepTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID        string `json:"session_id"`
		Step             int    `json:"step"`
		IncludeFollowing bool   `json:"include_following"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	steps, execErr := t.svc.ExecuteStep(ctx, sessionID, args.Step, args.IncludeFollowing)
	if execErr != nil {
		// partial cascade success is still useful to report
		done := materializedOrders(steps)
		if len(done) > 0 {
			return "", fmt.Errorf("%w (steps still materialized: %s)", execErr, done)
		}
		return "", execErr
	}
	var target *engine.Step
	for _, s := range steps {
		if s.Order == args.Step {
			target = s
		}
	}
	if target == nil || target.Result == nil {
		return fmt.Sprintf("step %d executed", args.Step), nil
	}
	return fmt.Sprintf("step %d executed: %s", args.Step, resultDigest(target.Result)), nil
}

func materializedOrders(steps []*engine.Step) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.Status == engine.StatusMaterialized {
			parts = append(parts, fmt.Sprintf("step_%d", s.Order))
		}
	}
	return strings.Join(parts, ", ")
}

func resultDigest(r *engine.Result) string {
	if len(r.Formulas) > 0 || r.Chart != nil {
		parts := make([]string, 0, 3)
		if len(r.Formulas) > 0 {
			parts = append(parts, fmt.Sprintf("%d formula(s)", len(r.Formulas)))
		}
		if r.Chart != nil {
			parts = append(parts, fmt.Sprintf("chart at %s", r.Chart.Path))
		}
		if r.PassthroughPath != "" {
			parts = append(parts, fmt.Sprintf("table at %s", r.PassthroughPath))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%d rows x %d columns", r.RowCount, r.ColumnCount)
}

type DeleteStepTool struct {
	svc services.AnalysisService
}

func (t *DeleteStepTool) Name() string { return "delete_step" }

func (t *DeleteStepTool) Description() string {
	return "Delete a step permanently. Its order number is never reused; steps that referenced it keep a dangling reference and fail at next use until repointed."
}

func (t *DeleteStepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"step":       stepProp(),
		},
		"required": []string{"session_id", "step"},
	}
}

func (t *DeleteStepTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string `json:"session_id"`
		Step      int    `json:"step"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	if err := t.svc.DeleteStep(ctx, sessionID, args.Step); err != nil {
		return "", err
	}
	return fmt.Sprintf("step %d deleted", args.Step), nil
}

type DataOverviewTool struct {
	svc services.AnalysisService
}

func (t *DataOverviewTool) Name() string { return "get_data_overview" }

func (t *DataOverviewTool) Description() string {
	return "Describe the session's original dataset: shape, columns and roles, subjects, value statistics, and a preview."
}

func (t *DataOverviewTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
		},
		"required": []string{"session_id"},
	}
}

func (t *DataOverviewTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	return t.svc.GetDataOverview(ctx, sessionID)
}

type StepOverviewTool struct {
	svc services.AnalysisService
}

func (t *StepOverviewTool) Name() string { return "get_step_overview" }

func (t *StepOverviewTool) Description() string {
	return "Describe one step: its configuration, data source, status, and latest result."
}

func (t *StepOverviewTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"step":       stepProp(),
		},
		"required": []string{"session_id", "step"},
	}
}

func (t *StepOverviewTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string `json:"session_id"`
		Step      int    `json:"step"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	return t.svc.GetStepOverview(ctx, sessionID, args.Step)
}

type SaveSnapshotTool struct {
	svc services.AnalysisService
}

func (t *SaveSnapshotTool) Name() string { return "save_snapshot" }

func (t *SaveSnapshotTool) Description() string {
	return "Freeze the current pipeline configuration at the next snapshot index. Results are not captured; only names, types, sources, and configs."
}

func (t *SaveSnapshotTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"overwrite": map[string]any{
				"type":        "boolean",
				"description": "Refresh the latest snapshot in place instead of appending. Default false.",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *SaveSnapshotTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string `json:"session_id"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	snap, err := t.svc.SaveSnapshot(ctx, sessionID, args.Overwrite)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("snapshot saved at index %d", snap.Index), nil
}

type RevertSnapshotTool struct {
	svc services.AnalysisService
}

func (t *RevertSnapshotTool) Name() string { return "revert_snapshot" }

func (t *RevertSnapshotTool) Description() string {
	return "Replace the live pipeline with the snapshot at the given index. Later snapshots are dropped, chat messages tagged after the index are pruned, and restored steps must be re-executed to regain results."
}

func (t *RevertSnapshotTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionProp(),
			"index": map[string]any{
				"type":        "integer",
				"description": "0-based snapshot history index to revert to.",
			},
		},
		"required": []string{"session_id", "index"},
	}
}

func (t *RevertSnapshotTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		SessionID string `json:"session_id"`
		Index     int    `json:"index"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	sessionID, err := parseSession(args.SessionID)
	if err != nil {
		return "", err
	}
	steps, err := t.svc.RevertToSnapshot(ctx, sessionID, args.Index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reverted to snapshot %d; %d step(s) restored without results", args.Index, len(steps)), nil
}
