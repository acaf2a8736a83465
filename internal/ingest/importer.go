package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

const (
	DefaultBufferCapacity = 2048
	DefaultFlushCount     = 1024
)

// Sink receives imported frames. *storage.SqliteStore implements it.
type Sink interface {
	StoreChannels(ctx context.Context, datasetID int64, eye spectrum.EyeID, energies []spectrum.Value) error
	StoreEyeSamples(ctx context.Context, datasetID int64, samples []storage.EyeSample) error
	StoreSpinSectors(ctx context.Context, datasetID int64, samples []storage.SpinSample) error
}

// Stats summarises one import.
type Stats struct {
	Records int // Frames written
	Cells   int // Flux values written
	Skipped int // Frames dropped for an unknown sensor or a channel count mismatch
	Eyes    int // Distinct eyes seen
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImportLogger sets the importer logger. It is also passed to the line
// reader.
func WithImportLogger(logger *slog.Logger) ImporterOption {
	return func(im *Importer) {
		im.logger = logger
	}
}

// WithCalibration replaces the default energy tables.
func WithCalibration(table *calibration.Table) ImporterOption {
	return func(im *Importer) {
		im.table = table
	}
}

// WithBuffer sets the reordering buffer size and how many frames are written
// per flush.
func WithBuffer(capacity, flushCount int) ImporterOption {
	return func(im *Importer) {
		im.capacity = capacity
		im.flushCount = flushCount
	}
}

// WithReaderOptions passes options to the line reader.
func WithReaderOptions(opts ...ReaderOption) ImporterOption {
	return func(im *Importer) {
		im.readerOpts = append(im.readerOpts, opts...)
	}
}

// Importer writes export lines into one stored dataset. Channel energies are
// taken from the calibration tables the first time an eye is seen.
type Importer struct {
	sink       Sink
	datasetID  int64
	spacecraft int
	table      *calibration.Table

	capacity   int
	flushCount int
	readerOpts []ReaderOption
	logger     *slog.Logger

	channels map[spectrum.EyeID]int
	stats    Stats
}

// NewImporter creates an importer for the given dataset.
func NewImporter(sink Sink, datasetID int64, spacecraft int, options ...ImporterOption) (*Importer, error) {
	if spacecraft < 1 || spacecraft > 4 {
		return nil, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, spacecraft)
	}

	im := Importer{
		sink:       sink,
		datasetID:  datasetID,
		spacecraft: spacecraft,
		table:      calibration.Default(),
		capacity:   DefaultBufferCapacity,
		flushCount: DefaultFlushCount,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		channels:   make(map[spectrum.EyeID]int),
	}

	for _, option := range options {
		option(&im)
	}

	if _, err := NewTimeBuffer(im.capacity, im.flushCount); err != nil {
		return nil, fmt.Errorf("%w: %w", spectrum.ErrValidation, err)
	}

	return &im, nil
}

// Import reads the whole input and writes it to the sink. Parsing and
// writing run concurrently; the first failure stops both.
func (im *Importer) Import(ctx context.Context, source string, in io.Reader) (Stats, error) {
	buf, err := NewTimeBuffer(im.capacity, im.flushCount)
	if err != nil {
		return Stats{}, err
	}

	reader := NewReader(source, in, append([]ReaderOption{WithLogger(im.logger)}, im.readerOpts...)...)
	records := make(chan *Record, 256)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		return reader.Read(gctx, records)
	})

	g.Go(func() error {
		for rec := range records {
			if err := buf.Insert(rec); err != nil {
				return err
			}
			if buf.IsFull() {
				if err := im.write(gctx, buf.Flush()); err != nil {
					return err
				}
			}
		}
		return im.write(gctx, buf.DrainAll())
	})

	if err = g.Wait(); err != nil {
		return im.stats, fmt.Errorf("importing %s: %w", source, err)
	}

	im.logger.Info("import finished",
		slog.String("source", source),
		slog.Int64("datasetID", im.datasetID),
		slog.String("records", humanize.Comma(int64(im.stats.Records))),
		slog.String("cells", humanize.Comma(int64(im.stats.Cells))),
		slog.Int("skipped", im.stats.Skipped),
		slog.Int("eyes", im.stats.Eyes),
	)

	return im.stats, nil
}

func (im *Importer) write(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	samples := make([]storage.EyeSample, 0, len(recs))
	var sectors []storage.SpinSample
	var cells int

	for _, rec := range recs {
		n, err := im.eyeChannels(ctx, rec.Eye)
		if errors.Is(err, calibration.ErrInvalidSensor) {
			im.logger.Warn("skipping frame from unknown sensor", slog.String("eye", rec.Eye.String()), slog.Time("time", rec.Time))
			im.stats.Skipped++
			continue
		}
		if err != nil {
			return err
		}

		if len(rec.Flux) != n {
			im.logger.Warn(fmt.Sprintf("skipping frame: %s", spectrum.ErrInconsistentInput),
				slog.String("eye", rec.Eye.String()),
				slog.Int("channels", len(rec.Flux)),
				slog.Int("want", n),
			)
			im.stats.Skipped++
			continue
		}

		samples = append(samples, storage.EyeSample{Time: rec.Time, Eye: rec.Eye, Flux: rec.Flux})
		cells += len(rec.Flux)
		if rec.SpinSector != nil {
			sectors = append(sectors, storage.SpinSample{Time: rec.Time, Sector: *rec.SpinSector})
		}
	}

	if err := im.sink.StoreEyeSamples(ctx, im.datasetID, samples); err != nil {
		return fmt.Errorf("storing eye samples: %w", err)
	}
	if err := im.sink.StoreSpinSectors(ctx, im.datasetID, sectors); err != nil {
		return fmt.Errorf("storing spin sectors: %w", err)
	}

	im.stats.Records += len(samples)
	im.stats.Cells += cells

	im.logger.Debug("frames written", slog.Int("frames", len(samples)), slog.Int("sectors", len(sectors)))
	return nil
}

// eyeChannels returns the channel count of an eye, storing its energy table
// on first sight.
func (im *Importer) eyeChannels(ctx context.Context, eye spectrum.EyeID) (int, error) {
	if n, ok := im.channels[eye]; ok {
		return n, nil
	}

	energies, err := im.table.EnergyTable(im.spacecraft, eye.Position, eye.Sensor)
	if err != nil {
		return 0, err
	}
	if err = im.sink.StoreChannels(ctx, im.datasetID, eye, energies); err != nil {
		return 0, fmt.Errorf("storing channels of eye %s: %w", eye, err)
	}

	im.channels[eye] = len(energies)
	im.stats.Eyes++
	return len(energies), nil
}
