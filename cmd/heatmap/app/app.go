package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/particle-spectra/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderProduct(ctx, store, config, logger)
}

func renderProduct(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (err error) {
	product, err := store.ReadProduct(ctx, config.ProductID)
	if err != nil {
		return fmt.Errorf("reading product %d: %w", config.ProductID, err)
	}

	spec, err := NewSpectrogram(product)
	if err != nil {
		return err
	}

	renderer, err := NewSpectrogramRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		CellWidth:     config.CellWidth,
		CellHeight:    config.CellHeight,
		Bounds:        config.bounds(),
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating spectrogram renderer: %w", err)
	}

	bounds := renderer.Bounds(spec)
	logger.Info("finished reading product",
		slog.Group("stats",
			slog.String("kind", string(spec.Kind)),
			slog.Int64("dataset", spec.DatasetID),
			slog.String("start", spec.Start().Format(time.DateTime)),
			slog.String("end", spec.End().Format(time.DateTime)),
			slog.String("cells", humanize.Comma(int64(spec.Width()*spec.Height()))),
			slog.String("noData", humanize.Comma(int64(spec.Missing))),
			slog.String("minFlux", formatLogFlux(bounds.Min)),
			slog.String("maxFlux", formatLogFlux(bounds.Max)),
		))

	img, err := renderer.Render(spec)
	if err != nil {
		return fmt.Errorf("rendering spectrogram: %w", err)
	}

	logger.Info("writing image",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return encode(out, img, config.Format)
}

func encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 98})
	}
	return fmt.Errorf("invalid image format: %s", format)
}
