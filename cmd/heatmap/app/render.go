package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/roman-kulish/particle-spectra/internal/storage"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0
	legendWidth    = 16

	defaultCellWidth  = 2
	defaultCellHeight = 12

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 90
	defaultBottomBorder = 60
	defaultRightBorder  = 90

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the spectrogram
type BorderConfig struct {
	Top    int // Title
	Left   int // Bin scale
	Bottom int // Time scale and information bar
	Right  int // Color legend
}

// RenderConfig holds all configuration options for spectrogram visualization
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize   float64
	ColorTheme ColorTheme
	CellWidth  int // pixels per sample time
	CellHeight int // pixels per bin

	// Bounds overrides the percentile color scale when set.
	Bounds *FluxBounds

	NoAnnotations bool
	BorderConfig  BorderConfig
}

// SpectrogramRenderer draws a product as a [time x bin] heatmap.
type SpectrogramRenderer struct {
	config RenderConfig
}

// NewSpectrogramRenderer creates a renderer, filling zero values with defaults.
func NewSpectrogramRenderer(config RenderConfig) (*SpectrogramRenderer, error) {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.CellWidth <= 0 {
		config.CellWidth = defaultCellWidth
	}
	if config.CellHeight <= 0 {
		config.CellHeight = defaultCellHeight
	}
	if config.Bounds != nil && !(config.Bounds.Max > config.Bounds.Min) {
		return nil, fmt.Errorf("invalid flux bounds [%g, %g]", config.Bounds.Min, config.Bounds.Max)
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &SpectrogramRenderer{config: config}, nil
}

// Bounds returns the color scale used for a spectrogram.
func (r *SpectrogramRenderer) Bounds(spec *Spectrogram) FluxBounds {
	if r.config.Bounds != nil {
		return *r.config.Bounds
	}
	return spec.BoundsTracker.Bounds()
}

// Render creates an image of the spectrogram with annotations
func (r *SpectrogramRenderer) Render(spec *Spectrogram) (*image.RGBA, error) {
	b := r.config.BorderConfig
	plotWidth := spec.Width() * r.config.CellWidth
	plotHeight := spec.Height() * r.config.CellHeight

	img := image.NewRGBA(image.Rect(0, 0, plotWidth+b.Left+b.Right, plotHeight+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+plotWidth, b.Top+plotHeight)
	colorMap := NewColorMapper(r.config.ColorTheme, r.Bounds(spec))

	r.renderCells(img, area, spec, colorMap)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, area, spec, colorMap); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// renderCells draws one block per cell, the first bin at the bottom.
func (r *SpectrogramRenderer) renderCells(img *image.RGBA, area image.Rectangle, spec *Spectrogram, colorMap *ColorMapper) {
	for t, row := range spec.Cells {
		x0 := area.Min.X + t*r.config.CellWidth
		for bin, v := range row {
			y0 := area.Max.Y - (bin+1)*r.config.CellHeight
			cell := image.Rect(x0, y0, x0+r.config.CellWidth, y0+r.config.CellHeight)
			draw.Draw(img, cell, image.NewUniform(colorMap.GetColor(v)), image.Point{}, draw.Src)
		}
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, spec *Spectrogram, colorMap *ColorMapper) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing title", func() error { return a.drawTitle(spec) }},
		{"drawing bin scale", func() error { return a.drawBinScale(img, area, spec) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, area, spec) }},
		{"drawing legend", func() error { return a.drawLegend(img, area, colorMap) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, spec, colorMap) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) drawTitle(spec *Spectrogram) error {
	title := "Omni-directional energy spectrum"
	if spec.Kind == storage.ProductPAD {
		title = "Pitch-angle distribution"
	}
	title = fmt.Sprintf("%s, dataset %d", title, spec.DatasetID)

	_, err := a.context.DrawString(title, freetype.Pt(a.config.BorderConfig.Left, a.config.BorderConfig.Top-a.fontHeight()/2))
	return err
}

func (a *annotator) drawBinScale(img *image.RGBA, area image.Rectangle, spec *Spectrogram) error {
	fh := a.fontHeight()
	step := max(1, int(math.Ceil(float64(fh)/float64(a.config.CellHeight))))

	for bin := 0; bin < spec.Height(); bin += step {
		y := area.Max.Y - bin*a.config.CellHeight - a.config.CellHeight/2

		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatBin(spec.Bins[bin], spec.Units)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-3-width, y+fh/2-a.fontFace.Metrics().Descent.Round())
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, spec *Spectrogram) error {
	duration := spec.End().Sub(spec.Start())
	if duration <= 0 {
		return nil
	}

	step := calculateNiceTimeStep(duration, area.Dx())
	first := spec.Start().Truncate(step)
	if first.Before(spec.Start()) {
		first = first.Add(step)
	}

	textY := area.Max.Y + tickMarkLength + a.fontHeight()
	for ts := first; !ts.After(spec.End()); ts = ts.Add(step) {
		ratio := float64(ts.Sub(spec.Start())) / float64(duration)
		x := area.Min.X + int(ratio*float64(area.Dx()-a.config.CellWidth)) + a.config.CellWidth/2

		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := ts.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawLegend(img *image.RGBA, area image.Rectangle, colorMap *ColorMapper) error {
	x0 := area.Max.X + 10
	for y := area.Min.Y; y < area.Max.Y; y++ {
		p := float64(area.Max.Y-1-y) / float64(max(1, area.Dy()-1))
		c := colorMap.Ramp(p)
		for x := x0; x < x0+legendWidth; x++ {
			img.Set(x, y, c)
		}
	}

	fh := a.fontHeight()
	labels := []struct {
		v float64
		y int
	}{
		{colorMap.bounds.Max, area.Min.Y + fh},
		{colorMap.bounds.Min, area.Max.Y},
	}
	for _, l := range labels {
		if _, err := a.context.DrawString(formatLogFlux(l.v), freetype.Pt(x0+legendWidth+4, l.y)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, spec *Spectrogram, colorMap *ColorMapper) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		spec.Start().In(a.config.Location).Format(a.config.DatetimeFormat),
		spec.End().In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString(fmt.Sprintf("; %s cells, %s no data",
		humanize.Comma(int64(spec.Width()*spec.Height())),
		humanize.Comma(int64(spec.Missing))))
	sb.WriteString(fmt.Sprintf("; scale %s - %s", formatLogFlux(colorMap.bounds.Min), formatLogFlux(colorMap.bounds.Max)))

	textY := img.Bounds().Max.Y - a.fontFace.Metrics().Descent.Round() - 4
	_, err := a.context.DrawString(sb.String(), freetype.Pt(4, textY))
	return err
}

func formatBin(v float64, units string) string {
	if units == "deg" {
		return fmt.Sprintf("%.0f°", v)
	}
	return fmt.Sprintf("%s %s", humanize.FtoaWithDigits(v, 1), units)
}

func formatLogFlux(v float64) string {
	return fmt.Sprintf("1e%.1f", v)
}

func calculateNiceTimeStep(duration time.Duration, width int) time.Duration {
	labels := max(2, float64(width)/pixelsPerLabel)
	roughStep := duration.Seconds() / labels

	niceIntervals := []float64{
		1, 2, 5, 10, 15, 30, // seconds, burst data
		60, 120, 300, 600, 900, 1800,
		3600, 7200, 14400, 21600,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return 12 * time.Hour
}
