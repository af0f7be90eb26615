package charts

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

func chartTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New([]dataset.Column{
		{Name: "地域", Type: dataset.TypeText},
		{Name: "月", Type: dataset.TypeText},
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	rows := []struct {
		region, month, subject string
		value                  float64
	}{
		{"東京", "1月", "売上", 100},
		{"東京", "1月", "費用", 40},
		{"大阪", "1月", "売上", 50},
		{"大阪", "1月", "費用", 30},
		{"東京", "2月", "売上", 120},
		{"大阪", "2月", "売上", 60},
	}
	for _, r := range rows {
		tbl.AppendRow(dataset.Text(r.region), dataset.Text(r.month), dataset.Text(r.subject), dataset.Number(r.value))
	}
	return tbl
}

func TestValidateAcceptsEveryGraphType(t *testing.T) {
	tbl := chartTable(t)
	cases := []Config{
		{GraphType: GraphScatter, Subjects: []string{"売上", "費用"}},
		{GraphType: GraphBar, XAxis: "地域", Subjects: []string{"売上"}},
		{GraphType: GraphHorizontalBar, XAxis: "地域", Subjects: []string{"売上", "費用"}},
		{GraphType: GraphStackedBar, XAxis: "月", Subjects: []string{"売上", "費用"}},
		{GraphType: GraphStackedBar, XAxis: "月", Subjects: []string{"売上"}, LegendAxis: "地域"},
		{GraphType: GraphLine, XAxis: "月", Subjects: []string{"売上"}},
		{GraphType: GraphLineAndBar, XAxis: "月", Subjects: []string{"売上"}, LineSubjects: []string{"費用"}},
		{GraphType: GraphWaterfall, XAxis: "地域", Subjects: []string{"売上"}},
		{GraphType: GraphPie, XAxis: "地域", Subjects: []string{"売上"}},
	}
	for _, cfg := range cases {
		if err := cfg.Validate(tbl); err != nil {
			t.Fatalf("%s: unexpected validation error: %v", cfg.GraphType, err)
		}
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tbl := chartTable(t)
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown type", Config{GraphType: "donut", XAxis: "地域"}, "unknown graph_type"},
		{"missing x axis", Config{GraphType: GraphBar, Subjects: []string{"売上"}}, "requires an x_axis"},
		{"x axis not a column", Config{GraphType: GraphBar, XAxis: "県", Subjects: []string{"売上"}}, "not an axis column"},
		{"x axis is subject column", Config{GraphType: GraphBar, XAxis: "科目", Subjects: []string{"売上"}}, "not an axis column"},
		{"unknown subject", Config{GraphType: GraphLine, XAxis: "月", Subjects: []string{"利益"}}, "not present"},
		{"scatter needs two subjects", Config{GraphType: GraphScatter, Subjects: []string{"売上"}}, "at least 2"},
		{"pie takes one subject", Config{GraphType: GraphPie, XAxis: "地域", Subjects: []string{"売上", "費用"}}, "at most 1"},
		{"stacked needs stacking", Config{GraphType: GraphStackedBar, XAxis: "月", Subjects: []string{"売上"}}, "legend_axis"},
		{"legend equals x axis", Config{GraphType: GraphBar, XAxis: "月", Subjects: []string{"売上"}, LegendAxis: "月"}, "differ from x_axis"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate(tbl)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestBuildPlotDataAlignsSeriesWithCategories(t *testing.T) {
	tbl := chartTable(t)
	cfg := &Config{GraphType: GraphBar, XAxis: "月", Subjects: []string{"売上", "費用"}}
	data := buildPlotData(tbl, cfg)

	if len(data.categories) != 2 || data.categories[0] != "1月" || data.categories[1] != "2月" {
		t.Fatalf("unexpected categories %v", data.categories)
	}
	if len(data.series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(data.series))
	}
	// first numeric value per (subject, category)
	if data.series[0].values[0] != 100 || data.series[0].values[1] != 120 {
		t.Fatalf("unexpected 売上 series %v", data.series[0].values)
	}
	if data.series[1].values[0] != 40 {
		t.Fatalf("unexpected 費用 series %v", data.series[1].values)
	}
}

func TestBuildScatterPointsPairsSubjects(t *testing.T) {
	tbl := chartTable(t)
	points := buildScatterPoints(tbl, &Config{GraphType: GraphScatter, Subjects: []string{"売上", "費用"}})
	// only 1月 rows carry both subjects
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].x != 100 || points[0].y != 40 {
		t.Fatalf("unexpected first point %+v", points[0])
	}
}

func TestRenderPNGProducesImage(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	theme, err := LoadTheme(log)
	if err != nil {
		t.Fatalf("load theme: %v", err)
	}
	tbl := chartTable(t)

	cases := []Config{
		{GraphType: GraphBar, XAxis: "地域", Subjects: []string{"売上"}},
		{GraphType: GraphStackedBar, XAxis: "月", Subjects: []string{"売上", "費用"}},
		{GraphType: GraphLine, XAxis: "月", Subjects: []string{"売上"}},
		{GraphType: GraphPie, XAxis: "地域", Subjects: []string{"売上"}},
		{GraphType: GraphWaterfall, XAxis: "地域", Subjects: []string{"売上"}},
		{GraphType: GraphScatter, Subjects: []string{"売上", "費用"}},
	}
	pngHeader := []byte{0x89, 'P', 'N', 'G'}
	for _, cfg := range cases {
		png, err := renderPNG(theme, tbl, &cfg)
		if err != nil {
			t.Fatalf("%s: render: %v", cfg.GraphType, err)
		}
		if len(png) < 8 || !bytes.HasPrefix(png, pngHeader) {
			t.Fatalf("%s: output is not a PNG (%d bytes)", cfg.GraphType, len(png))
		}
	}
}
