package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	ProductID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	CellWidth     int
	CellHeight    int
	MinFlux       *float64 // log10
	MaxFlux       *float64 // log10
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:     ImagePNG,
		Theme:      DefaultTheme,
		TimeZone:   time.UTC,
		CellWidth:  defaultCellWidth,
		CellHeight: defaultCellHeight,
	}
}

// NewConfigFromCLI parses the command line arguments, without the program
// name.
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()
	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)

	var imageFormat, theme, tz string
	var minFlux, maxFlux float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.ProductID, "p", 0, "Product ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", ImagePNG, "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [default, classic, grayscale, jungle, thermal, marine, aurora]")
	fs.StringVar(&tz, "tz", "UTC", "Time zone of the time scale")
	fs.IntVar(&c.CellWidth, "cell-width", defaultCellWidth, "Pixels per sample time")
	fs.IntVar(&c.CellHeight, "cell-height", defaultCellHeight, "Pixels per bin")
	fs.Float64Var(&minFlux, "min-flux", 0, "Define a manual lower color scale limit, log10 of flux")
	fs.Float64Var(&maxFlux, "max-flux", 0, "Define a manual upper color scale limit, log10 of flux")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and bin scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-flux" {
			c.MinFlux = &minFlux
		}
		if f.Name == "max-flux" {
			c.MaxFlux = &maxFlux
		}
	})

	imageFormat = strings.ToLower(imageFormat)
	c.Theme = ColorTheme(strings.ToLower(theme))

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.ProductID <= 0 {
		err = errors.New("product id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[c.Theme]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if (c.MinFlux == nil) != (c.MaxFlux == nil) {
		err = errors.New("min-flux and max-flux must be set together")
	} else if c.TimeZone, err = time.LoadLocation(tz); err != nil {
		err = fmt.Errorf("invalid time zone: %w", err)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func (c *Config) bounds() *FluxBounds {
	if c.MinFlux == nil || c.MaxFlux == nil {
		return nil
	}
	return &FluxBounds{Min: *c.MinFlux, Max: *c.MaxFlux, Mean: (*c.MinFlux + *c.MaxFlux) / 2}
}
