package charts

import (
	"math"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// plotSeries is one drawable value sequence, aligned with the
// category list. NaN marks a category without a value.
type plotSeries struct {
	name   string
	values []float64
}

type plotData struct {
	categories []string
	series     []plotSeries
}

type plotPoint struct {
	x, y  float64
	label string
}

// buildPlotData projects the long-format table into per-category
// series: categories come from the x_axis column in first-appearance
// order, and one series is built per subject — or per legend_axis
// value when a legend splits a single subject.
func buildPlotData(t *dataset.Table, cfg *Config) plotData {
	categories, _ := t.DistinctValues(cfg.XAxis)
	xIdx, _ := t.ColumnIndex(cfg.XAxis)
	subjIdx := t.SubjectIndex()
	valIdx := t.ValueIndex()

	catPos := make(map[string]int, len(categories))
	for i, c := range categories {
		catPos[c] = i
	}

	newSeries := func(name string) plotSeries {
		values := make([]float64, len(categories))
		for i := range values {
			values[i] = math.NaN()
		}
		return plotSeries{name: name, values: values}
	}

	out := plotData{categories: categories}

	if cfg.LegendAxis != "" && len(cfg.Subjects) == 1 {
		legendIdx, _ := t.ColumnIndex(cfg.LegendAxis)
		legendValues, _ := t.DistinctValues(cfg.LegendAxis)
		byLegend := make(map[string]int, len(legendValues))
		for _, lv := range legendValues {
			byLegend[lv] = len(out.series)
			out.series = append(out.series, newSeries(lv))
		}
		for _, row := range t.Rows {
			if row[subjIdx].String() != cfg.Subjects[0] {
				continue
			}
			si, ok := byLegend[row[legendIdx].String()]
			if !ok {
				continue
			}
			fillValue(&out.series[si], catPos, row[xIdx], row[valIdx])
		}
		return out
	}

	bySubject := make(map[string]int, len(cfg.Subjects))
	for _, s := range cfg.Subjects {
		bySubject[s] = len(out.series)
		out.series = append(out.series, newSeries(s))
	}
	for _, row := range t.Rows {
		si, ok := bySubject[row[subjIdx].String()]
		if !ok {
			continue
		}
		fillValue(&out.series[si], catPos, row[xIdx], row[valIdx])
	}
	return out
}

// fillValue writes the first numeric value seen per category.
func fillValue(s *plotSeries, catPos map[string]int, xCell, valCell dataset.Cell) {
	ci, ok := catPos[xCell.String()]
	if !ok {
		return
	}
	if !math.IsNaN(s.values[ci]) {
		return
	}
	if v, ok := valCell.NumericValue(); ok {
		s.values[ci] = v
	}
}

// buildScatterPoints pairs the two subjects per axis combination:
// subject[0] supplies x, subject[1] supplies y. Combinations missing
// either numeric value are skipped.
func buildScatterPoints(t *dataset.Table, cfg *Config) []plotPoint {
	subjIdx := t.SubjectIndex()
	valIdx := t.ValueIndex()
	points := make([]plotPoint, 0)
	for _, combo := range t.AxisCombinations() {
		var xv, yv float64
		var haveX, haveY bool
		for _, ri := range combo.RowIdxs {
			row := t.Rows[ri]
			v, ok := row[valIdx].NumericValue()
			if !ok {
				continue
			}
			switch row[subjIdx].String() {
			case cfg.Subjects[0]:
				if !haveX {
					xv, haveX = v, true
				}
			case cfg.Subjects[1]:
				if !haveY {
					yv, haveY = v, true
				}
			}
		}
		if haveX && haveY {
			points = append(points, plotPoint{x: xv, y: yv, label: combo.Key})
		}
	}
	return points
}

// valueRange returns the min and max across every series value,
// always spanning zero so bars have a baseline. NaNs are ignored.
func valueRange(series []plotSeries) (float64, float64) {
	min, max := 0.0, 0.0
	for _, s := range series {
		for _, v := range s.values {
			if math.IsNaN(v) {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	if min == max {
		max = min + 1
	}
	return min, max
}
