package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/feeps"
	"github.com/roman-kulish/particle-spectra/internal/ingest"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

// ImportRequest describes one export file to load into a new dataset.
type ImportRequest struct {
	SamplesPath string
	FieldPath   string // optional magnetic field export
	Spacecraft  int
	Species     spectrum.Species
	Mode        spectrum.Mode
}

// App wires the storage, calibration and eye schedule together.
type App struct {
	config   *Config
	store    *storage.SqliteStore
	table    *calibration.Table
	schedule *feeps.EyeSchedule
	logger   *slog.Logger
}

// New opens the store named in the configuration.
func New(config *Config, logger *slog.Logger) (*App, error) {
	table := calibration.Default()
	if config.Calibration.TableFile != "" {
		var err error
		if table, err = calibration.LoadTable(config.Calibration.TableFile); err != nil {
			return nil, fmt.Errorf("loading calibration table: %w", err)
		}
	}

	if err := createStorageDir(config.Storage.Path); err != nil {
		return nil, err
	}

	return &App{
		config:   config,
		store:    storage.NewSqliteStore(config.Storage.Path),
		table:    table,
		schedule: feeps.NewEyeSchedule(config.SurveyEyes...),
		logger:   logger,
	}, nil
}

func createStorageDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("invalid storage directory '%s'", dir)
	}
	return nil
}

// Close flushes the indexes and closes the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Import creates a dataset and loads the samples, and the field if given.
func (a *App) Import(ctx context.Context, req ImportRequest) (datasetID int64, err error) {
	in, err := os.Open(req.SamplesPath)
	if err != nil {
		return 0, fmt.Errorf("opening samples: %w", err)
	}
	defer in.Close()

	source := filepath.Base(req.SamplesPath)
	datasetID, err = a.store.CreateDataset(ctx, storage.DatasetInfo{
		Spacecraft: req.Spacecraft,
		Species:    req.Species,
		Mode:       req.Mode,
		Source:     source,
	})
	if err != nil {
		return 0, fmt.Errorf("creating dataset: %w", err)
	}

	logger := a.logger.With(slog.Int64("dataset", datasetID))
	im, err := ingest.NewImporter(a.store, datasetID, req.Spacecraft,
		ingest.WithImportLogger(logger),
		ingest.WithCalibration(a.table),
	)
	if err != nil {
		return 0, err
	}

	if _, err = im.Import(ctx, source, in); err != nil {
		return datasetID, fmt.Errorf("importing %s: %w", source, err)
	}

	if req.FieldPath == "" {
		return datasetID, nil
	}

	fin, err := os.Open(req.FieldPath)
	if err != nil {
		return datasetID, fmt.Errorf("opening field: %w", err)
	}
	defer fin.Close()

	field, err := ingest.NewReader(filepath.Base(req.FieldPath), fin, ingest.WithLogger(logger)).ReadField(ctx)
	if err != nil {
		return datasetID, fmt.Errorf("reading field: %w", err)
	}
	if err = a.store.StoreField(ctx, datasetID, field); err != nil {
		return datasetID, fmt.Errorf("storing field: %w", err)
	}

	logger.Info(fmt.Sprintf("stored %s field vectors", humanize.Comma(int64(field.Len()))))
	return datasetID, nil
}

// Datasets lists the stored datasets.
func (a *App) Datasets(ctx context.Context) ([]*storage.DatasetInfo, error) {
	return a.store.Datasets(ctx)
}

// Products lists the products derived from a dataset.
func (a *App) Products(ctx context.Context, datasetID int64) ([]*storage.Product, error) {
	return a.store.Products(ctx, datasetID)
}

// Product reads a stored product with its cells.
func (a *App) Product(ctx context.Context, productID int64) (*storage.Product, error) {
	return a.store.ReadProduct(ctx, productID)
}

// Process computes one product and stores it under the run id.
func (a *App) Process(ctx context.Context, job Job, runID uuid.UUID) (int64, error) {
	switch job.Kind {
	case storage.ProductOmni:
		return a.Omni(ctx, job.DatasetID, runID)
	case storage.ProductPAD:
		return a.PAD(ctx, job.DatasetID, runID)
	}
	return 0, fmt.Errorf("%w: unknown product kind '%s'", spectrum.ErrValidation, job.Kind)
}

func (a *App) loadDataset(ctx context.Context, datasetID int64) (*spectrum.Dataset, error) {
	ds, err := a.store.ReadDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %d: %w", datasetID, err)
	}
	if ds, err = feeps.ApplyEnergyTable(ds, a.table); err != nil {
		return nil, err
	}
	return ds, nil
}

// Omni computes and stores the omni-directional spectrum of a dataset.
func (a *App) Omni(ctx context.Context, datasetID int64, runID uuid.UUID) (int64, error) {
	ds, err := a.loadDataset(ctx, datasetID)
	if err != nil {
		return 0, err
	}

	logger := a.logger.With(slog.Int64("dataset", datasetID), slog.String("product", string(storage.ProductOmni)))
	omni, err := feeps.CalcOmni(ds, a.config.sunMask(ds.Spacecraft), feeps.WithOmniLogger(logger))
	if err != nil {
		return 0, fmt.Errorf("computing omni spectrum: %w", err)
	}

	productID, err := a.store.StoreProduct(ctx, storage.NewOmniProduct(runID, datasetID, omni))
	if err != nil {
		return 0, fmt.Errorf("storing omni spectrum: %w", err)
	}
	return productID, nil
}

// PAD computes and stores the pitch-angle distribution of a dataset.
func (a *App) PAD(ctx context.Context, datasetID int64, runID uuid.UUID) (int64, error) {
	ds, err := a.loadDataset(ctx, datasetID)
	if err != nil {
		return 0, err
	}

	field, err := a.store.ReadField(ctx, datasetID)
	if err != nil {
		return 0, fmt.Errorf("reading field of dataset %d: %w", datasetID, err)
	}

	look, err := a.config.lookDirections(ds.Species, ds.Mode)
	if err != nil {
		return 0, err
	}

	logger := a.logger.With(slog.Int64("dataset", datasetID), slog.String("product", string(storage.ProductPAD)))
	pad, err := feeps.CalcPAD(ds, field, a.config.sunMask(ds.Spacecraft), look, a.schedule, a.config.padOptions(ds.Species, logger)...)
	if err != nil {
		return 0, fmt.Errorf("computing pitch-angle distribution: %w", err)
	}

	productID, err := a.store.StoreProduct(ctx, storage.NewPADProduct(runID, datasetID, pad))
	if err != nil {
		return 0, fmt.Errorf("storing pitch-angle distribution: %w", err)
	}
	return productID, nil
}
