package charts

import (
	"bytes"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// renderPNG draws the chart for an already-validated config and
// returns the encoded PNG bytes.
func renderPNG(theme *Theme, t *dataset.Table, cfg *Config) ([]byte, error) {
	dc := gg.NewContext(theme.Width, theme.Height)
	dc.SetColor(theme.background)
	dc.Clear()
	if theme.fontFace != nil {
		dc.SetFontFace(theme.fontFace)
	}

	f := newFrame(dc, theme)
	if cfg.Title != "" && theme.fontFace != nil {
		dc.SetColor(theme.axisColor)
		dc.DrawStringAnchored(cfg.Title, float64(theme.Width)/2, theme.Margin/2, 0.5, 0.5)
	}

	switch cfg.GraphType {
	case GraphScatter:
		drawScatter(f, buildScatterPoints(t, cfg))
	case GraphBar:
		drawBars(f, buildPlotData(t, cfg), false)
	case GraphHorizontalBar:
		drawHorizontalBars(f, buildPlotData(t, cfg))
	case GraphStackedBar:
		drawBars(f, buildPlotData(t, cfg), true)
	case GraphLine:
		drawLines(f, buildPlotData(t, cfg))
	case GraphLineAndBar:
		barData := buildPlotData(t, cfg)
		lineCfg := *cfg
		lineCfg.Subjects = cfg.LineSubjects
		lineCfg.LegendAxis = ""
		lineData := buildPlotData(t, &lineCfg)
		drawLineAndBar(f, barData, lineData)
	case GraphWaterfall:
		drawWaterfall(f, buildPlotData(t, cfg))
	case GraphPie:
		drawPie(f, buildPlotData(t, cfg))
	default:
		return nil, fmt.Errorf("unknown graph_type %q", cfg.GraphType)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

// frame is the plot area with value-to-pixel transforms.
type frame struct {
	dc     *gg.Context
	theme  *Theme
	left   float64
	top    float64
	right  float64
	bottom float64
}

func newFrame(dc *gg.Context, theme *Theme) *frame {
	m := theme.Margin
	return &frame{
		dc:     dc,
		theme:  theme,
		left:   m,
		top:    m,
		right:  float64(theme.Width) - m,
		bottom: float64(theme.Height) - m,
	}
}

func (f *frame) width() float64  { return f.right - f.left }
func (f *frame) height() float64 { return f.bottom - f.top }

// yFor maps a value into pixel space for the given value range.
func (f *frame) yFor(v, min, max float64) float64 {
	return f.bottom - (v-min)/(max-min)*f.height()
}

func (f *frame) xFor(v, min, max float64) float64 {
	return f.left + (v-min)/(max-min)*f.width()
}

func (f *frame) drawAxes(min, max float64) {
	dc := f.dc
	dc.SetColor(f.theme.gridColor)
	dc.SetLineWidth(1)
	for i := 0; i <= 4; i++ {
		y := f.top + float64(i)/4*f.height()
		dc.DrawLine(f.left, y, f.right, y)
		dc.Stroke()
	}
	dc.SetColor(f.theme.axisColor)
	dc.SetLineWidth(1.5)
	dc.DrawLine(f.left, f.top, f.left, f.bottom)
	dc.DrawLine(f.left, f.bottom, f.right, f.bottom)
	dc.Stroke()
	// zero line when the range crosses it
	if min < 0 && max > 0 {
		y := f.yFor(0, min, max)
		dc.DrawLine(f.left, y, f.right, y)
		dc.Stroke()
	}
	if f.theme.fontFace != nil {
		for i := 0; i <= 4; i++ {
			v := max - float64(i)/4*(max-min)
			y := f.top + float64(i)/4*f.height()
			dc.DrawStringAnchored(dataset.FormatNumber(round2(v)), f.left-6, y, 1, 0.5)
		}
	}
}

func (f *frame) drawCategoryLabels(categories []string) {
	if f.theme.fontFace == nil || len(categories) == 0 {
		return
	}
	f.dc.SetColor(f.theme.axisColor)
	slot := f.width() / float64(len(categories))
	for i, c := range categories {
		x := f.left + slot*(float64(i)+0.5)
		f.dc.DrawStringAnchored(c, x, f.bottom+14, 0.5, 0.5)
	}
}

func drawBars(f *frame, data plotData, stacked bool) {
	min, max := valueRange(data.series)
	if stacked {
		min, max = stackedRange(data)
	}
	f.drawAxes(min, max)
	f.drawCategoryLabels(data.categories)
	if len(data.categories) == 0 || len(data.series) == 0 {
		return
	}

	slot := f.width() / float64(len(data.categories))
	zero := f.yFor(0, min, max)

	if stacked {
		barW := slot * 0.6
		for ci := range data.categories {
			posTop, negTop := 0.0, 0.0
			x := f.left + slot*float64(ci) + (slot-barW)/2
			for si, s := range data.series {
				v := s.values[ci]
				if math.IsNaN(v) || v == 0 {
					continue
				}
				var from, to float64
				if v > 0 {
					from, to = posTop, posTop+v
					posTop += v
				} else {
					from, to = negTop+v, negTop
					negTop += v
				}
				f.dc.SetColor(f.theme.seriesColor(si))
				yHigh := f.yFor(to, min, max)
				yLow := f.yFor(from, min, max)
				f.dc.DrawRectangle(x, yHigh, barW, yLow-yHigh)
				f.dc.Fill()
			}
		}
		return
	}

	group := slot * 0.8
	barW := group / float64(len(data.series))
	for ci := range data.categories {
		for si, s := range data.series {
			v := s.values[ci]
			if math.IsNaN(v) {
				continue
			}
			x := f.left + slot*float64(ci) + (slot-group)/2 + barW*float64(si)
			y := f.yFor(v, min, max)
			f.dc.SetColor(f.theme.seriesColor(si))
			if v >= 0 {
				f.dc.DrawRectangle(x, y, barW*0.9, zero-y)
			} else {
				f.dc.DrawRectangle(x, zero, barW*0.9, y-zero)
			}
			f.dc.Fill()
		}
	}
}

func drawHorizontalBars(f *frame, data plotData) {
	min, max := valueRange(data.series)
	f.drawAxes(min, max)
	if len(data.categories) == 0 || len(data.series) == 0 {
		return
	}
	slot := f.height() / float64(len(data.categories))
	group := slot * 0.8
	barH := group / float64(len(data.series))
	zero := f.xFor(0, min, max)
	for ci, cat := range data.categories {
		for si, s := range data.series {
			v := s.values[ci]
			if math.IsNaN(v) {
				continue
			}
			y := f.top + slot*float64(ci) + (slot-group)/2 + barH*float64(si)
			x := f.xFor(v, min, max)
			f.dc.SetColor(f.theme.seriesColor(si))
			if v >= 0 {
				f.dc.DrawRectangle(zero, y, x-zero, barH*0.9)
			} else {
				f.dc.DrawRectangle(x, y, zero-x, barH*0.9)
			}
			f.dc.Fill()
		}
		if f.theme.fontFace != nil {
			f.dc.SetColor(f.theme.axisColor)
			f.dc.DrawStringAnchored(cat, f.left-6, f.top+slot*(float64(ci)+0.5), 1, 0.5)
		}
	}
}

func drawLines(f *frame, data plotData) {
	min, max := valueRange(data.series)
	f.drawAxes(min, max)
	f.drawCategoryLabels(data.categories)
	strokeSeries(f, data, min, max, 0)
}

func strokeSeries(f *frame, data plotData, min, max float64, colorOffset int) {
	if len(data.categories) == 0 {
		return
	}
	slot := f.width() / float64(len(data.categories))
	for si, s := range data.series {
		f.dc.SetColor(f.theme.seriesColor(si + colorOffset))
		f.dc.SetLineWidth(2)
		started := false
		for ci, v := range s.values {
			if math.IsNaN(v) {
				started = false
				continue
			}
			x := f.left + slot*(float64(ci)+0.5)
			y := f.yFor(v, min, max)
			if started {
				f.dc.LineTo(x, y)
			} else {
				f.dc.MoveTo(x, y)
				started = true
			}
		}
		f.dc.Stroke()
		for ci, v := range s.values {
			if math.IsNaN(v) {
				continue
			}
			x := f.left + slot*(float64(ci)+0.5)
			f.dc.DrawCircle(x, f.yFor(v, min, max), 3)
			f.dc.Fill()
		}
	}
}

func drawLineAndBar(f *frame, barData, lineData plotData) {
	all := append(append([]plotSeries{}, barData.series...), lineData.series...)
	min, max := valueRange(all)
	f.drawAxes(min, max)
	f.drawCategoryLabels(barData.categories)

	if len(barData.categories) > 0 && len(barData.series) > 0 {
		slot := f.width() / float64(len(barData.categories))
		group := slot * 0.8
		barW := group / float64(len(barData.series))
		zero := f.yFor(0, min, max)
		for ci := range barData.categories {
			for si, s := range barData.series {
				v := s.values[ci]
				if math.IsNaN(v) {
					continue
				}
				x := f.left + slot*float64(ci) + (slot-group)/2 + barW*float64(si)
				y := f.yFor(v, min, max)
				f.dc.SetColor(f.theme.seriesColor(si))
				if v >= 0 {
					f.dc.DrawRectangle(x, y, barW*0.9, zero-y)
				} else {
					f.dc.DrawRectangle(x, zero, barW*0.9, y-zero)
				}
				f.dc.Fill()
			}
		}
	}
	strokeSeries(f, lineData, min, max, len(barData.series))
}

// drawWaterfall renders the single series as cumulative contribution
// bars: each bar starts where the previous one ended.
func drawWaterfall(f *frame, data plotData) {
	if len(data.series) == 0 {
		return
	}
	s := data.series[0]
	running := 0.0
	min, max := 0.0, 0.0
	for _, v := range s.values {
		if math.IsNaN(v) {
			continue
		}
		running += v
		if running < min {
			min = running
		}
		if running > max {
			max = running
		}
	}
	if min == max {
		max = min + 1
	}
	f.drawAxes(min, max)
	f.drawCategoryLabels(data.categories)

	slot := f.width() / float64(len(data.categories))
	barW := slot * 0.6
	running = 0.0
	for ci, v := range s.values {
		if math.IsNaN(v) {
			continue
		}
		from := running
		running += v
		x := f.left + slot*float64(ci) + (slot-barW)/2
		yHigh := f.yFor(math.Max(from, running), min, max)
		yLow := f.yFor(math.Min(from, running), min, max)
		if v >= 0 {
			f.dc.SetColor(f.theme.seriesColor(0))
		} else {
			f.dc.SetColor(f.theme.seriesColor(3))
		}
		f.dc.DrawRectangle(x, yHigh, barW, yLow-yHigh)
		f.dc.Fill()
	}
}

func drawPie(f *frame, data plotData) {
	if len(data.series) == 0 {
		return
	}
	s := data.series[0]
	total := 0.0
	for _, v := range s.values {
		if !math.IsNaN(v) && v > 0 {
			total += v
		}
	}
	if total == 0 {
		return
	}
	cx := f.left + f.width()/2
	cy := f.top + f.height()/2
	radius := math.Min(f.width(), f.height()) / 2 * 0.9

	angle := -math.Pi / 2
	for ci, v := range s.values {
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		sweep := v / total * 2 * math.Pi
		f.dc.SetColor(f.theme.seriesColor(ci))
		f.dc.MoveTo(cx, cy)
		f.dc.DrawArc(cx, cy, radius, angle, angle+sweep)
		f.dc.ClosePath()
		f.dc.Fill()
		if f.theme.fontFace != nil {
			mid := angle + sweep/2
			lx := cx + math.Cos(mid)*radius*1.05
			ly := cy + math.Sin(mid)*radius*1.05
			f.dc.SetColor(f.theme.axisColor)
			f.dc.DrawStringAnchored(data.categories[ci], lx, ly, 0.5, 0.5)
		}
		angle += sweep
	}
}

func drawScatter(f *frame, points []plotPoint) {
	xMin, xMax, yMin, yMax := 0.0, 0.0, 0.0, 0.0
	for _, p := range points {
		if p.x < xMin {
			xMin = p.x
		}
		if p.x > xMax {
			xMax = p.x
		}
		if p.y < yMin {
			yMin = p.y
		}
		if p.y > yMax {
			yMax = p.y
		}
	}
	if xMin == xMax {
		xMax = xMin + 1
	}
	if yMin == yMax {
		yMax = yMin + 1
	}
	f.drawAxes(yMin, yMax)
	f.dc.SetColor(f.theme.seriesColor(0))
	for _, p := range points {
		f.dc.DrawCircle(f.xFor(p.x, xMin, xMax), f.yFor(p.y, yMin, yMax), 4)
		f.dc.Fill()
	}
}

func stackedRange(data plotData) (float64, float64) {
	min, max := 0.0, 0.0
	for ci := range data.categories {
		pos, neg := 0.0, 0.0
		for _, s := range data.series {
			v := s.values[ci]
			if math.IsNaN(v) {
				continue
			}
			if v > 0 {
				pos += v
			} else {
				neg += v
			}
		}
		if pos > max {
			max = pos
		}
		if neg < min {
			min = neg
		}
	}
	if min == max {
		max = min + 1
	}
	return min, max
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
