package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SnapshotStep is one frozen step tuple: name, type, data source, and
// config, explicitly excluding computed results. References are frozen
// in their public order-addressed form because stable IDs do not
// survive recreation; a reference that was already dangling at capture
// time freezes as "step_?" and dangles again after restore.
type SnapshotStep struct {
	Name           string   `json:"name"`
	Type           StepType `json:"type"`
	Order          int      `json:"order"`
	DataSource     string   `json:"data_source"`
	Config         Config   `json:"config"`
	TableFilterRef string   `json:"table_filter_ref,omitempty"`
}

// CaptureSnapshot freezes every active step in ascending order. The
// embedded table-filter reference, when present, is zeroed inside the
// cloned config and carried separately in its frozen form so captures
// of equivalent pipelines compare equal byte for byte.
func CaptureSnapshot(steps []*Step) []SnapshotStep {
	ordered := make([]*Step, 0, len(steps))
	for _, s := range steps {
		if s.Active {
			ordered = append(ordered, s)
		}
	}
	SortSteps(ordered)

	out := make([]SnapshotStep, 0, len(ordered))
	for _, s := range ordered {
		frozen := SnapshotStep{
			Name:       s.Name,
			Type:       s.Type,
			Order:      s.Order,
			DataSource: FormatSourceRef(s.Source, steps),
			Config:     s.Config.Clone(),
		}
		if f := frozen.Config.Filter; f != nil && f.Table != nil && f.Table.Reference.Kind != "" {
			frozen.TableFilterRef = FormatSourceRef(f.Table.Reference, steps)
			f.Table.Reference = SourceRef{}
		}
		out = append(out, frozen)
	}
	return out
}

// RestoreSteps recreates steps from frozen tuples: fresh stable IDs,
// captured orders preserved (so order-addressed references rebind to
// the same steps, and gaps left by old deletions stay gaps), configs
// restored, results cleared. Callers must re-execute if live data is
// required.
func RestoreSteps(snap []SnapshotStep) ([]*Step, error) {
	steps := make([]*Step, 0, len(snap))
	seen := make(map[int]struct{}, len(snap))
	for i, fs := range snap {
		if _, dup := seen[fs.Order]; dup {
			return nil, fmt.Errorf("restore snapshot: duplicate order %d at entry %d", fs.Order, i)
		}
		seen[fs.Order] = struct{}{}
		if err := fs.Config.CheckShape(fs.Type); err != nil {
			return nil, fmt.Errorf("restore snapshot: entry %d: %w", i, err)
		}
		steps = append(steps, &Step{
			ID:     uuid.New(),
			Order:  fs.Order,
			Name:   fs.Name,
			Type:   fs.Type,
			Config: fs.Config.Clone(),
			Active: true,
			Status: StatusConfigured,
		})
	}
	for i, fs := range snap {
		steps[i].Source = thawRef(fs.DataSource, steps)
		if f := steps[i].Config.Filter; f != nil && f.Table != nil && fs.TableFilterRef != "" {
			f.Table.Reference = thawRef(fs.TableFilterRef, steps)
		}
	}
	return steps, nil
}

// thawRef rebinds a frozen reference against the recreated steps. A
// target order that no longer resolves yields a nil-ID step reference,
// which surfaces as a ReferenceError at next use.
func thawRef(frozen string, steps []*Step) SourceRef {
	s := strings.TrimSpace(frozen)
	if s == "" || s == string(SourceOriginal) {
		return OriginalRef()
	}
	if rest, ok := strings.CutPrefix(s, "step_"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			if target := findByOrder(steps, n); target != nil {
				return StepRef(target.ID)
			}
		}
	}
	return StepRef(uuid.Nil)
}
