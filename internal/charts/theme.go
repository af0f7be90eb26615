package charts

import (
	_ "embed"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"gopkg.in/yaml.v3"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

//go:embed theme.yaml
var defaultThemeYAML []byte

// Theme controls canvas size, colors, and label font. The embedded
// default is used unless CHART_THEME_PATH points at a replacement
// file; CHART_FONT_PATH supplies a TTF for labels, and without one
// charts render without text.
type Theme struct {
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	Margin     float64  `yaml:"margin"`
	Background string   `yaml:"background"`
	AxisColor  string   `yaml:"axis_color"`
	GridColor  string   `yaml:"grid_color"`
	Palette    []string `yaml:"palette"`
	FontSize   float64  `yaml:"font_size"`

	paletteColors []color.NRGBA
	background    color.NRGBA
	axisColor     color.NRGBA
	gridColor     color.NRGBA
	fontFace      font.Face
}

func LoadTheme(log *logger.Logger) (*Theme, error) {
	raw := defaultThemeYAML
	source := "embedded"
	if path := strings.TrimSpace(os.Getenv("CHART_THEME_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chart theme %q: %w", path, err)
		}
		raw = data
		source = path
	}

	var theme Theme
	if err := yaml.Unmarshal(raw, &theme); err != nil {
		return nil, fmt.Errorf("parse chart theme: %w", err)
	}
	if theme.Width <= 0 || theme.Height <= 0 {
		return nil, fmt.Errorf("chart theme needs positive width and height")
	}
	if len(theme.Palette) == 0 {
		return nil, fmt.Errorf("chart theme palette is empty")
	}

	theme.background = parseHexColor(theme.Background, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	theme.axisColor = parseHexColor(theme.AxisColor, color.NRGBA{R: 74, G: 74, B: 74, A: 255})
	theme.gridColor = parseHexColor(theme.GridColor, color.NRGBA{R: 227, G: 227, B: 227, A: 255})
	theme.paletteColors = make([]color.NRGBA, 0, len(theme.Palette))
	for _, hex := range theme.Palette {
		theme.paletteColors = append(theme.paletteColors, parseHexColor(hex, color.NRGBA{R: 76, G: 120, B: 168, A: 255}))
	}
	if theme.FontSize <= 0 {
		theme.FontSize = 13
	}

	if fontPath := strings.TrimSpace(os.Getenv("CHART_FONT_PATH")); fontPath != "" {
		face, err := loadFontFace(fontPath, theme.FontSize)
		if err != nil {
			return nil, fmt.Errorf("load chart font: %w", err)
		}
		theme.fontFace = face
	}

	log.With("service", "charts").Info("Chart theme loaded",
		"source", source, "width", theme.Width, "height", theme.Height, "colors", len(theme.Palette))
	return &theme, nil
}

func (t *Theme) seriesColor(i int) color.NRGBA {
	return t.paletteColors[i%len(t.paletteColors)]
}

func loadFontFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}

func parseHexColor(s string, fallback color.NRGBA) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
