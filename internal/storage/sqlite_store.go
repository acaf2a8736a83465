package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// sampleBatchRows bounds the rows of one multi-row INSERT so the statement
// stays under the driver's bind variable limit.
const sampleBatchRows = 500

// SqliteStore persists datasets, magnetic field series and derived products
// in a single SQLite file.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store backed by the file at dbPath. Connections
// are opened on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000")
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateDataset registers a new dataset and returns its identifier.
func (s *SqliteStore) CreateDataset(ctx context.Context, info DatasetInfo) (datasetID int64, err error) {
	if info.Spacecraft < 1 || info.Spacecraft > 4 {
		return 0, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, info.Spacecraft)
	}
	if err = info.Species.Validate(); err != nil {
		return
	}
	if err = info.Mode.Validate(); err != nil {
		return
	}

	attrs, err := marshalAttrs(info.Attrs)
	if err != nil {
		return
	}
	source := sql.NullString{String: info.Source, Valid: info.Source != ""}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertDatasetSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, info.Spacecraft, string(info.Species), string(info.Mode), source, attrs)
	if err != nil {
		err = fmt.Errorf("inserting dataset: %w", err)
		return
	}

	datasetID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting dataset ID: %w", err)
	}
	return
}

func scanDataset(sc interface{ Scan(...any) error }) (*DatasetInfo, error) {
	var info DatasetInfo
	var species, mode string
	var source, attrs sql.NullString
	if err := sc.Scan(&info.ID, &info.CreatedAt, &info.Spacecraft, &species, &mode, &source, &attrs); err != nil {
		return nil, err
	}
	info.Species = spectrum.Species(species)
	info.Mode = spectrum.Mode(mode)
	info.Source = source.String

	var err error
	if info.Attrs, err = unmarshalAttrs(attrs); err != nil {
		return nil, err
	}
	return &info, nil
}

// Dataset returns the metadata of one dataset.
func (s *SqliteStore) Dataset(ctx context.Context, id int64) (info *DatasetInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectDatasetSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if info, err = scanDataset(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning dataset %d: %w", id, err)
	}
	return
}

// Datasets lists all stored datasets in creation order.
func (s *SqliteStore) Datasets(ctx context.Context) (datasets []*DatasetInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDatasetsSQL)
	if err != nil {
		err = fmt.Errorf("querying datasets: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var info *DatasetInfo
		if info, err = scanDataset(rows); err != nil {
			err = fmt.Errorf("scanning dataset: %w", err)
			return
		}
		datasets = append(datasets, info)
	}
	err = rows.Err()
	return
}

// StoreChannels records the calibrated energies of one eye.
func (s *SqliteStore) StoreChannels(ctx context.Context, datasetID int64, eye spectrum.EyeID, energies []spectrum.Value) (err error) {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertChannels(ctx, tx, datasetID, eye, energies)
	})
}

// StoreEyeSamples appends flux samples, one row per channel, in batches.
func (s *SqliteStore) StoreEyeSamples(ctx context.Context, datasetID int64, samples []EyeSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEyeSamples(ctx, tx, datasetID, samples)
	})
}

// StoreSpinSectors records the spin sector of each sample time.
func (s *SqliteStore) StoreSpinSectors(ctx context.Context, datasetID int64, samples []SpinSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSpinSectors(ctx, tx, datasetID, samples)
	})
}

// StoreDataset writes a complete in-memory dataset and returns its
// identifier. Spin sectors are keyed by the time axis of the first eye in
// canonical order.
func (s *SqliteStore) StoreDataset(ctx context.Context, ds *spectrum.Dataset, source string) (int64, error) {
	if err := ds.Validate(); err != nil {
		return 0, err
	}

	ids := ds.Eyes.IDs()
	var sectors []SpinSample
	if len(ds.SpinSector) > 0 {
		if len(ids) == 0 || len(ds.Eyes[ids[0]].Time) != len(ds.SpinSector) {
			return 0, fmt.Errorf("%w: %d spin sectors do not match the dataset time axis", spectrum.ErrInconsistentInput, len(ds.SpinSector))
		}
		for i, t := range ds.Eyes[ids[0]].Time {
			sectors = append(sectors, SpinSample{Time: t, Sector: ds.SpinSector[i]})
		}
	}

	datasetID, err := s.CreateDataset(ctx, DatasetInfo{
		Spacecraft: ds.Spacecraft,
		Species:    ds.Species,
		Mode:       ds.Mode,
		Source:     source,
		Attrs:      ds.Attrs,
	})
	if err != nil {
		return 0, fmt.Errorf("creating dataset: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			e := ds.Eyes[id]
			if err := insertChannels(ctx, tx, datasetID, id, e.Energies); err != nil {
				return err
			}
			samples := make([]EyeSample, len(e.Time))
			for i, t := range e.Time {
				samples[i] = EyeSample{Time: t, Eye: id, Flux: e.Flux.Row(i)}
			}
			if err := insertEyeSamples(ctx, tx, datasetID, samples); err != nil {
				return err
			}
		}
		return insertSpinSectors(ctx, tx, datasetID, sectors)
	})
	if err != nil {
		return 0, err
	}
	return datasetID, nil
}

// StoreField records a magnetic field series for a dataset. Non-finite
// components are stored as NULL.
func (s *SqliteStore) StoreField(ctx context.Context, datasetID int64, field *series.Vector) error {
	return s.inTx(ctx, func(tx *sql.Tx) (err error) {
		stmt, err := tx.PrepareContext(ctx, insertFieldSQL)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer closeWithError(stmt, &err)

		for i, t := range field.Time {
			b := field.Data[i]
			if _, err = stmt.ExecContext(ctx, datasetID, toNanos(t), nullFloatOf(b.X), nullFloatOf(b.Y), nullFloatOf(b.Z)); err != nil {
				return fmt.Errorf("inserting field sample: %w", err)
			}
		}
		return nil
	})
}

// StoreProduct writes a derived product and its cells and returns the
// product identifier.
func (s *SqliteStore) StoreProduct(ctx context.Context, p *Product) (productID int64, err error) {
	if err = p.validate(); err != nil {
		return
	}
	if p.RunID == uuid.Nil {
		p.RunID = uuid.New()
	}

	axis, err := json.Marshal(productAxis{Bins: p.Bins, Units: p.Kind.BinUnits()})
	if err != nil {
		err = fmt.Errorf("marshaling product axis: %w", err)
		return
	}
	attrs, err := marshalAttrs(p.Attrs)
	if err != nil {
		return
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insertProductSQL, p.RunID.String(), p.DatasetID, string(p.Kind), string(axis), attrs)
		if err != nil {
			return fmt.Errorf("inserting product: %w", err)
		}
		if productID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("getting product ID: %w", err)
		}
		return insertProductCells(ctx, tx, productID, p)
	})
	if err != nil {
		return 0, err
	}
	p.ID = productID
	return productID, nil
}

func (s *SqliteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertChannels(ctx context.Context, tx *sql.Tx, datasetID int64, eye spectrum.EyeID, energies []spectrum.Value) (err error) {
	stmt, err := tx.PrepareContext(ctx, insertChannelSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for ch, e := range energies {
		if _, err = stmt.ExecContext(ctx, datasetID, string(eye.Position), eye.Sensor, ch, nullFloat(e)); err != nil {
			return fmt.Errorf("inserting channel %d of eye %s: %w", ch, eye, err)
		}
	}
	return nil
}

func insertEyeSamples(ctx context.Context, tx *sql.Tx, datasetID int64, samples []EyeSample) error {
	const cols = 6

	values := make([]any, 0, sampleBatchRows*cols)
	flush := func() error {
		if len(values) == 0 {
			return nil
		}
		query := insertEyeSamplesSQL + valuesList(len(values)/cols, cols)
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("batch inserting eye samples: %w", err)
		}
		values = values[:0]
		return nil
	}

	for _, sample := range samples {
		ts := toNanos(sample.Time)
		for ch, flux := range sample.Flux {
			values = append(values, datasetID, ts, string(sample.Eye.Position), sample.Eye.Sensor, ch, nullFloat(flux))
			if len(values) == sampleBatchRows*cols {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func insertSpinSectors(ctx context.Context, tx *sql.Tx, datasetID int64, samples []SpinSample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, insertSpinSectorSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, s := range samples {
		if _, err = stmt.ExecContext(ctx, datasetID, toNanos(s.Time), s.Sector); err != nil {
			return fmt.Errorf("inserting spin sector: %w", err)
		}
	}
	return nil
}

func insertProductCells(ctx context.Context, tx *sql.Tx, productID int64, p *Product) error {
	const cols = 4

	values := make([]any, 0, sampleBatchRows*cols)
	flush := func() error {
		if len(values) == 0 {
			return nil
		}
		query := insertProductCellsSQL + valuesList(len(values)/cols, cols)
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("batch inserting product cells: %w", err)
		}
		values = values[:0]
		return nil
	}

	for r, t := range p.Time {
		ts := toNanos(t)
		for c := range p.Bins {
			values = append(values, productID, ts, c, nullFloat(p.Flux.At(r, c)))
			if len(values) == sampleBatchRows*cols {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// Close builds the lookup indexes and releases both connections.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
