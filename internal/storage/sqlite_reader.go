package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// ErrNoData indicates either that no samples exist for the given parameters,
// or that all available samples have been read from the reader.
var ErrNoData = errors.New("no data available")

// SampleReader provides an iterator-based interface for reading eye samples
// with optional time, energy and eye filtering.
type SampleReader interface {
	// Dataset returns metadata about the dataset this reader is accessing.
	Dataset() *DatasetInfo

	// Channels returns the channels of an eye that pass the energy filter,
	// in the order of EyeSample.Flux.
	Channels(spectrum.EyeID) []Channel

	// Next advances the iterator and returns true if there is another frame
	// to read, false when the iteration is complete or an error occurred.
	Next(context.Context) bool

	// Current returns the current frame. If called after Next() returns
	// false, the behavior is undefined.
	Current() *EyeSample

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

type readFilter struct {
	timeRange *spectrum.TimeRange
	minEnergy *float64
	maxEnergy *float64
	eyes      map[spectrum.EyeID]struct{}
}

func (f *readFilter) validate() error {
	if f.timeRange != nil && f.timeRange.Start.After(f.timeRange.End) {
		return fmt.Errorf("%w: start time %s is after end time %s", spectrum.ErrValidation, f.timeRange.Start, f.timeRange.End)
	}
	if f.minEnergy != nil && f.maxEnergy != nil && *f.minEnergy > *f.maxEnergy {
		return fmt.Errorf("%w: min energy %g keV is greater than max energy %g keV", spectrum.ErrValidation, *f.minEnergy, *f.maxEnergy)
	}
	return nil
}

func (f *readFilter) keepEye(id spectrum.EyeID) bool {
	if f.eyes == nil {
		return true
	}
	_, ok := f.eyes[id]
	return ok
}

func (f *readFilter) keepEnergy(e spectrum.Value) bool {
	if f.minEnergy == nil && f.maxEnergy == nil {
		return true
	}
	v, ok := e.Get()
	if !ok {
		return false
	}
	return (f.minEnergy == nil || v >= *f.minEnergy) && (f.maxEnergy == nil || v <= *f.maxEnergy)
}

// ReaderOption configures a reader with specific filtering criteria.
type ReaderOption func(*readFilter)

// WithTimeRange keeps samples whose timestamps lie in [start, end].
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(f *readFilter) {
		f.timeRange = &spectrum.TimeRange{Start: start, End: end}
	}
}

// WithEnergyRange keeps channels whose calibrated energy lies in [lo, hi]
// keV. Uncalibrated channels are dropped.
func WithEnergyRange(lo, hi float64) ReaderOption {
	return func(f *readFilter) {
		f.minEnergy = &lo
		f.maxEnergy = &hi
	}
}

// WithEyes restricts the reader to the given eyes.
func WithEyes(ids ...spectrum.EyeID) ReaderOption {
	return func(f *readFilter) {
		f.eyes = make(map[spectrum.EyeID]struct{}, len(ids))
		for _, id := range ids {
			f.eyes[id] = struct{}{}
		}
	}
}

func newReadFilter(opts []ReaderOption) (*readFilter, error) {
	var f readFilter
	for _, opt := range opts {
		opt(&f)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

type frameKey struct {
	ns  int64
	eye spectrum.EyeID
}

// SqliteSampleReader implements SampleReader for the SQLite backend. Rows
// are grouped into one frame per eye and timestamp.
type SqliteSampleReader struct {
	db *sql.DB

	datasetID int64
	dataset   *DatasetInfo
	filter    *readFilter

	channels map[spectrum.EyeID][]Channel
	slots    map[spectrum.EyeID]map[int]int

	current    *EyeSample
	currentKey frameKey
	pending    *EyeSample
	pendingKey frameKey
	rows       *sql.Rows
	err        error
}

func newSqliteSampleReader(ctx context.Context, db *sql.DB, datasetID int64, opts ...ReaderOption) (*SqliteSampleReader, error) {
	if db == nil {
		return nil, errors.New("database connection required")
	}
	if datasetID <= 0 {
		return nil, fmt.Errorf("%w: dataset ID required", spectrum.ErrValidation)
	}

	filter, err := newReadFilter(opts)
	if err != nil {
		return nil, err
	}

	sr := &SqliteSampleReader{
		db:        db,
		datasetID: datasetID,
		filter:    filter,
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading dataset", fn: sr.loadDataset},
		{msg: "loading channels", fn: sr.loadChannels},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return nil, fmt.Errorf("initializing reader: %s: %w", s.msg, err)
		}
	}
	return sr, nil
}

func (sr *SqliteSampleReader) loadDataset(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectDatasetSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if sr.dataset, err = scanDataset(stmt.QueryRowContext(ctx, sr.datasetID)); err != nil {
		return fmt.Errorf("querying dataset: %w", err)
	}
	return nil
}

func (sr *SqliteSampleReader) loadChannels(ctx context.Context) (err error) {
	rows, err := sr.db.QueryContext(ctx, selectChannelsSQL, sr.datasetID)
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer closeWithError(rows, &err)

	sr.channels = make(map[spectrum.EyeID][]Channel)
	sr.slots = make(map[spectrum.EyeID]map[int]int)

	for rows.Next() {
		var pos string
		var c Channel
		var energy sql.NullFloat64
		if err = rows.Scan(&pos, &c.Eye.Sensor, &c.Index, &energy); err != nil {
			return fmt.Errorf("scanning channel: %w", err)
		}
		c.Eye.Position = spectrum.Position(pos)
		c.Energy = valueOf(energy)

		if !sr.filter.keepEye(c.Eye) || !sr.filter.keepEnergy(c.Energy) {
			continue
		}
		if sr.slots[c.Eye] == nil {
			sr.slots[c.Eye] = make(map[int]int)
		}
		sr.slots[c.Eye][c.Index] = len(sr.channels[c.Eye])
		sr.channels[c.Eye] = append(sr.channels[c.Eye], c)
	}
	return rows.Err()
}

func (sr *SqliteSampleReader) initQuery(ctx context.Context) (err error) {
	start, end := bounds(sr.filter.timeRange)
	if sr.rows, err = sr.db.QueryContext(ctx, selectEyeSamplesSQL, sr.datasetID, start, end); err != nil {
		return fmt.Errorf("querying eye samples: %w", err)
	}
	return nil
}

func (sr *SqliteSampleReader) newFrame(key frameKey) *EyeSample {
	flux := make([]spectrum.Value, len(sr.channels[key.eye]))
	return &EyeSample{Time: fromNanos(key.ns), Eye: key.eye, Flux: flux}
}

func (sr *SqliteSampleReader) Dataset() *DatasetInfo {
	return sr.dataset
}

func (sr *SqliteSampleReader) Channels(id spectrum.EyeID) []Channel {
	return sr.channels[id]
}

func (sr *SqliteSampleReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current, sr.currentKey = sr.pending, sr.pendingKey
	sr.pending = nil

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			if sr.current != nil {
				sr.err = ErrNoData
				return true
			}
			return false
		}

		var key frameKey
		var pos string
		var channel int
		var flux sql.NullFloat64
		if err := sr.rows.Scan(&key.ns, &pos, &key.eye.Sensor, &channel, &flux); err != nil {
			sr.err = fmt.Errorf("scanning sample: %w", err)
			return false
		}
		key.eye.Position = spectrum.Position(pos)

		slot, ok := sr.slots[key.eye][channel]
		if !ok {
			continue
		}

		switch {
		case sr.current == nil:
			sr.current, sr.currentKey = sr.newFrame(key), key
		case sr.currentKey != key:
			// Eye or timestamp changed: the current frame is complete.
			sr.pending, sr.pendingKey = sr.newFrame(key), key
			sr.pending.Flux[slot] = valueOf(flux)
			return true
		}
		sr.current.Flux[slot] = valueOf(flux)
	}
}

func (sr *SqliteSampleReader) Current() *EyeSample {
	return sr.current
}

func (sr *SqliteSampleReader) Error() error {
	if sr.err != nil && !errors.Is(sr.err, ErrNoData) {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSampleReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.pending = nil
		sr.rows = nil
		return err
	}
	return nil
}

// ReadEyeSamples creates a reader over the eye samples of a dataset. The
// returned reader must be closed after use. Each reader instance should only
// be used from a single goroutine.
func (s *SqliteStore) ReadEyeSamples(ctx context.Context, datasetID int64, opts ...ReaderOption) (*SqliteSampleReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSampleReader(ctx, db, datasetID, opts...)
}

// ReadDataset assembles a stored dataset into memory. Channels absent from a
// frame are "no data". Spin sectors are attached when every time of the
// first eye has one.
func (s *SqliteStore) ReadDataset(ctx context.Context, datasetID int64, opts ...ReaderOption) (ds *spectrum.Dataset, err error) {
	r, err := s.ReadEyeSamples(ctx, datasetID, opts...)
	if err != nil {
		return nil, err
	}
	defer closeWithError(r, &err)

	times := make(map[spectrum.EyeID][]time.Time)
	rows := make(map[spectrum.EyeID][][]spectrum.Value)
	for r.Next(ctx) {
		f := r.Current()
		times[f.Eye] = append(times[f.Eye], f.Time)
		rows[f.Eye] = append(rows[f.Eye], f.Flux)
	}
	if err = r.Error(); err != nil {
		return nil, fmt.Errorf("reading eye samples: %w", err)
	}

	info := r.Dataset()
	ds = &spectrum.Dataset{
		Spacecraft: info.Spacecraft,
		Species:    info.Species,
		Mode:       info.Mode,
		Eyes:       make(spectrum.EyeSet, len(times)),
		Attrs:      info.Attrs,
	}
	for id, ts := range times {
		channels := r.Channels(id)
		energies := make([]spectrum.Value, len(channels))
		for i, c := range channels {
			energies[i] = c.Energy
		}
		flux := spectrum.NewGrid(len(ts), len(channels))
		for i, row := range rows[id] {
			for c, v := range row {
				flux.Set(i, c, v)
			}
		}
		ds.Eyes[id] = &spectrum.EyeSpectrum{
			Eye:      id,
			Time:     ts,
			Energies: energies,
			Flux:     flux,
			Attrs:    info.Attrs.Clone(),
		}
	}

	if ids := ds.Eyes.IDs(); len(ids) > 0 {
		filter, _ := newReadFilter(opts)
		if ds.SpinSector, err = s.readSpinSectors(ctx, datasetID, filter, ds.Eyes[ids[0]].Time); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (s *SqliteStore) readSpinSectors(ctx context.Context, datasetID int64, filter *readFilter, ref []time.Time) (sectors []int, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	start, end := bounds(filter.timeRange)
	rows, err := db.QueryContext(ctx, selectSpinSectorsSQL, datasetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying spin sectors: %w", err)
	}
	defer closeWithError(rows, &err)

	byTime := make(map[int64]int)
	for rows.Next() {
		var ns int64
		var sector int
		if err = rows.Scan(&ns, &sector); err != nil {
			return nil, fmt.Errorf("scanning spin sector: %w", err)
		}
		byTime[ns] = sector
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(byTime) == 0 {
		return nil, nil
	}
	out := make([]int, len(ref))
	for i, t := range ref {
		sector, ok := byTime[toNanos(t)]
		if !ok {
			return nil, nil
		}
		out[i] = sector
	}
	return out, nil
}

// ReadField returns the magnetic field series of a dataset. Rows with a
// missing component are dropped.
func (s *SqliteStore) ReadField(ctx context.Context, datasetID int64, opts ...ReaderOption) (v *series.Vector, err error) {
	filter, err := newReadFilter(opts)
	if err != nil {
		return nil, err
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	start, end := bounds(filter.timeRange)
	rows, err := db.QueryContext(ctx, selectFieldSQL, datasetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying magnetic field: %w", err)
	}
	defer closeWithError(rows, &err)

	var times []time.Time
	var data []r3.Vector
	for rows.Next() {
		var ns int64
		var x, y, z sql.NullFloat64
		if err = rows.Scan(&ns, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("scanning field sample: %w", err)
		}
		if !x.Valid || !y.Valid || !z.Valid {
			continue
		}
		times = append(times, fromNanos(ns))
		data = append(data, r3.Vector{X: x.Float64, Y: y.Float64, Z: z.Float64})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, ErrNoData
	}
	return series.NewVector(times, data, nil)
}

func scanProduct(sc interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var runID, kind, axisJSON string
	var attrs sql.NullString
	if err := sc.Scan(&p.ID, &runID, &p.DatasetID, &kind, &p.CreatedAt, &axisJSON, &attrs); err != nil {
		return nil, err
	}

	var err error
	if p.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parsing run ID: %w", err)
	}
	p.Kind = ProductKind(kind)

	var axis productAxis
	if err = json.Unmarshal([]byte(axisJSON), &axis); err != nil {
		return nil, fmt.Errorf("unmarshaling product axis: %w", err)
	}
	p.Bins = axis.Bins

	if p.Attrs, err = unmarshalAttrs(attrs); err != nil {
		return nil, err
	}
	return &p, nil
}

// Products lists the products derived from a dataset. Cells are not loaded.
func (s *SqliteStore) Products(ctx context.Context, datasetID int64) (products []*Product, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectProductsSQL, datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p *Product
		if p, err = scanProduct(rows); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	err = rows.Err()
	return
}

// ReadProduct loads a product with its full grid.
func (s *SqliteStore) ReadProduct(ctx context.Context, productID int64) (p *Product, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	if p, err = scanProduct(db.QueryRowContext(ctx, selectProductSQL, productID)); err != nil {
		return nil, fmt.Errorf("scanning product %d: %w", productID, err)
	}

	rows, err := db.QueryContext(ctx, selectProductCellsSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("querying product cells: %w", err)
	}
	defer closeWithError(rows, &err)

	var cells [][]spectrum.Value
	var last int64
	for rows.Next() {
		var ns int64
		var bin int
		var value sql.NullFloat64
		if err = rows.Scan(&ns, &bin, &value); err != nil {
			return nil, fmt.Errorf("scanning product cell: %w", err)
		}
		if len(p.Time) == 0 || ns != last {
			p.Time = append(p.Time, fromNanos(ns))
			cells = append(cells, make([]spectrum.Value, len(p.Bins)))
			last = ns
		}
		if bin >= 0 && bin < len(p.Bins) {
			cells[len(cells)-1][bin] = valueOf(value)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	p.Flux = spectrum.NewGrid(len(cells), len(p.Bins))
	for r, row := range cells {
		for c, v := range row {
			p.Flux.Set(r, c, v)
		}
	}
	return p, nil
}
