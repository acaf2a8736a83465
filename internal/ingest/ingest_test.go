package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

func TestParseLine(t *testing.T) {
	r, err := ParseLine("2017-07-11T22:34:02.5Z, top, 6, 17, 1.5,,NaN,-1e31,2")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2017, 7, 11, 22, 34, 2, 500_000_000, time.UTC), r.Time)
	assert.Equal(t, spectrum.EyeID{Position: spectrum.Top, Sensor: 6}, r.Eye)
	require.NotNil(t, r.SpinSector)
	assert.Equal(t, 17, *r.SpinSector)
	assert.Equal(t, []spectrum.Value{spectrum.Of(1.5), spectrum.NoData, spectrum.NoData, spectrum.NoData, spectrum.Of(2)}, r.Flux)

	r, err = ParseLine("2017-07-11T22:34:02Z,bot,12,,3")
	require.NoError(t, err)
	assert.Nil(t, r.SpinSector)
	assert.Equal(t, spectrum.Bottom, r.Eye.Position)
}

func TestParseLine_Errors(t *testing.T) {
	testCases := []struct {
		name string
		line string
	}{
		{"too few fields", "2017-07-11T22:34:02Z,top,6,1"},
		{"timestamp", "yesterday,top,6,1,2"},
		{"position", "2017-07-11T22:34:02Z,side,6,1,2"},
		{"sensor", "2017-07-11T22:34:02Z,top,0,1,2"},
		{"spin sector", "2017-07-11T22:34:02Z,top,6,-1,2"},
		{"flux", "2017-07-11T22:34:02Z,top,6,1,abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(tc.line)
			assert.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestReader_ParseErrorsThreshold(t *testing.T) {
	input := strings.Join([]string{
		"# exported",
		"2017-07-11T22:34:02Z,top,6,1,2",
		"garbage",
		"garbage",
		"2017-07-11T22:34:03Z,top,6,1,2", // resets the counter
		"garbage",
		"garbage",
		"garbage",
		"2017-07-11T22:34:04Z,top,6,1,2",
	}, "\n")

	records := make(chan *Record, 10)
	err := NewReader("test", strings.NewReader(input), WithParseErrorsThreshold(3)).Read(context.Background(), records)
	assert.ErrorIs(t, err, ErrTooManyParseErrors)
	assert.Len(t, records, 2)

	records = make(chan *Record, 10)
	err = NewReader("test", strings.NewReader(input), WithParseErrorsThreshold(4)).Read(context.Background(), records)
	assert.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make(chan *Record) // unbuffered, nobody reads
	err := NewReader("test", strings.NewReader("2017-07-11T22:34:02Z,top,6,1,2\n")).Read(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
}

type memorySink struct {
	channels map[spectrum.EyeID][]spectrum.Value
	samples  []storage.EyeSample
	sectors  []storage.SpinSample
	fail     error
}

func (m *memorySink) StoreChannels(_ context.Context, _ int64, eye spectrum.EyeID, energies []spectrum.Value) error {
	if m.channels == nil {
		m.channels = make(map[spectrum.EyeID][]spectrum.Value)
	}
	m.channels[eye] = energies
	return nil
}

func (m *memorySink) StoreEyeSamples(_ context.Context, _ int64, samples []storage.EyeSample) error {
	if m.fail != nil {
		return m.fail
	}
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *memorySink) StoreSpinSectors(_ context.Context, _ int64, samples []storage.SpinSample) error {
	m.sectors = append(m.sectors, samples...)
	return nil
}

// frameLine builds an export line with 16 channels of the same flux.
func frameLine(ts string, pos string, sensor string, flux string) string {
	fields := []string{ts, pos, sensor, "5"}
	for range calibration.SensorChannels {
		fields = append(fields, flux)
	}
	return strings.Join(fields, ",")
}

func TestImporter_Import(t *testing.T) {
	input := strings.Join([]string{
		frameLine("2017-07-11T22:34:01Z", "top", "6", "2"),
		frameLine("2017-07-11T22:34:00Z", "top", "6", "1"), // out of order
		frameLine("2017-07-11T22:34:00Z", "bottom", "6", "3"),
		frameLine("2017-07-11T22:34:00Z", "top", "13", "4"), // no such sensor
		"2017-07-11T22:34:00Z,top,7,5,1,2,3",                 // channel count mismatch
	}, "\n")

	sink := &memorySink{}
	im, err := NewImporter(sink, 1, 1, WithBuffer(2, 1))
	require.NoError(t, err)

	stats, err := im.Import(context.Background(), "test", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Stats{Records: 3, Cells: 3 * calibration.SensorChannels, Skipped: 2, Eyes: 3}, stats)
	require.Len(t, sink.samples, 3)

	// The buffer reorders within its capacity.
	assert.Equal(t, spectrum.Of(1), sink.samples[0].Flux[0])
	assert.Equal(t, spectrum.Of(3), sink.samples[1].Flux[0])
	assert.Equal(t, spectrum.Of(2), sink.samples[2].Flux[0])

	want, err := calibration.EnergyTable(1, spectrum.Top, 6)
	require.NoError(t, err)
	assert.Equal(t, want, sink.channels[spectrum.EyeID{Position: spectrum.Top, Sensor: 6}])
	assert.Len(t, sink.sectors, 3)
}

func TestImporter_SinkFailure(t *testing.T) {
	boom := errors.New("disk full")
	sink := &memorySink{fail: boom}
	im, err := NewImporter(sink, 1, 1)
	require.NoError(t, err)

	_, err = im.Import(context.Background(), "test", strings.NewReader(frameLine("2017-07-11T22:34:00Z", "top", "6", "1")))
	assert.ErrorIs(t, err, boom)
}

func TestNewImporter_Validation(t *testing.T) {
	_, err := NewImporter(&memorySink{}, 1, 5)
	assert.ErrorIs(t, err, spectrum.ErrValidation)

	_, err = NewImporter(&memorySink{}, 1, 1, WithBuffer(1, 2))
	assert.ErrorIs(t, err, spectrum.ErrValidation)
}

func TestImporter_IntoStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "feeps.db"))
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	id, err := store.CreateDataset(ctx, storage.DatasetInfo{Spacecraft: 2, Species: spectrum.Ion, Mode: spectrum.Survey})
	require.NoError(t, err)

	var input bytes.Buffer
	for _, ts := range []string{"2017-07-11T22:34:00Z", "2017-07-11T22:34:20Z"} {
		for _, pos := range []string{"top", "bottom"} {
			input.WriteString(frameLine(ts, pos, "8", "10") + "\n")
		}
	}

	im, err := NewImporter(store, id, 2)
	require.NoError(t, err)
	_, err = im.Import(ctx, "test", &input)
	require.NoError(t, err)

	ds, err := store.ReadDataset(ctx, id)
	require.NoError(t, err)
	require.NoError(t, ds.Validate())
	assert.Len(t, ds.Eyes, 2)
	assert.Equal(t, []int{5, 5}, ds.SpinSector)

	top8 := ds.Eyes[spectrum.EyeID{Position: spectrum.Top, Sensor: 8}]
	assert.Len(t, top8.Time, 2)
	assert.Equal(t, spectrum.Of(10), top8.Flux.At(1, 15))
}

func TestReader_ReadField(t *testing.T) {
	input := strings.Join([]string{
		"2017-07-11T22:34:01Z,1,2,3",
		"2017-07-11T22:34:00Z,4,5,6",
		"2017-07-11T22:34:02Z,NaN,5,6", // dropped
		"2017-07-11T22:34:01Z,7,8,9",   // later duplicate wins
	}, "\n")

	v, err := NewReader("b.csv", strings.NewReader(input)).ReadField(context.Background())
	require.NoError(t, err)

	base := time.Date(2017, 7, 11, 22, 34, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{base, base.Add(time.Second)}, v.Time)
	assert.Equal(t, []r3.Vector{{X: 4, Y: 5, Z: 6}, {X: 7, Y: 8, Z: 9}}, v.Data)
	assert.Equal(t, "nT", v.Attrs.String("UNITS"))

	_, err = NewReader("b.csv", strings.NewReader("# empty\n")).ReadField(context.Background())
	assert.ErrorIs(t, err, spectrum.ErrValidation)
}
