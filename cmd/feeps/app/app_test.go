package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/feeps"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

func writeFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func ionBurstExport(t *testing.T, dir string) (samples, field string) {
	var lines []string
	for _, ts := range []string{"2017-07-11T22:34:00Z", "2017-07-11T22:34:01Z"} {
		for _, pos := range []string{"top", "bottom"} {
			for _, sensor := range []string{"6", "7", "8"} {
				fields := []string{ts, pos, sensor, "3"}
				for range calibration.SensorChannels {
					fields = append(fields, "5")
				}
				lines = append(lines, strings.Join(fields, ","))
			}
		}
	}
	samples = writeFile(t, dir, "samples.csv", lines)
	field = writeFile(t, dir, "b.csv", []string{
		"2017-07-11T22:33:59Z,0,0,10",
		"2017-07-11T22:34:02Z,0,0,10",
	})
	return
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	config := DefaultConfig()
	config.Storage.Path = filepath.Join(t.TempDir(), "feeps.sqlite")
	config.LookDirections = map[spectrum.Species]map[spectrum.Mode][][3]float64{
		spectrum.Ion: {
			spectrum.Burst: {{0, 0, 1}, {0, 1, 0}, {1, 0, 0}, {0, 0, -1}, {0, -1, 0}, {-1, 0, 0}},
		},
	}

	a, err := New(config, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func TestApp_ImportAndProcess(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	samples, field := ionBurstExport(t, t.TempDir())

	id, err := a.Import(ctx, ImportRequest{
		SamplesPath: samples,
		FieldPath:   field,
		Spacecraft:  1,
		Species:     spectrum.Ion,
		Mode:        spectrum.Burst,
	})
	require.NoError(t, err)

	datasets, err := a.Datasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "samples.csv", datasets[0].Source)

	o := NewOrchestrator(a, WithWorkers(2))
	runID, results, err := o.Run(ctx, Jobs([]int64{id}, []storage.ProductKind{storage.ProductOmni, storage.ProductPAD}))
	require.NoError(t, err)
	require.Empty(t, Failed(results))

	products, err := a.Products(ctx, id)
	require.NoError(t, err)
	require.Len(t, products, 2)

	for _, r := range results {
		p, err := a.Product(ctx, r.ProductID)
		require.NoError(t, err)
		assert.Equal(t, runID, p.RunID)
		assert.Equal(t, r.Job.Kind, p.Kind)
		assert.Len(t, p.Time, 2)

		if p.Kind == storage.ProductPAD {
			assert.Equal(t, feeps.BinLabels(feeps.DefaultBinSize), p.Bins)
		}
	}
}

func TestApp_PADWithoutField(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	samples, _ := ionBurstExport(t, t.TempDir())

	id, err := a.Import(ctx, ImportRequest{SamplesPath: samples, Spacecraft: 1, Species: spectrum.Ion, Mode: spectrum.Burst})
	require.NoError(t, err)

	_, err = a.PAD(ctx, id, uuid.Nil)
	assert.ErrorIs(t, err, storage.ErrNoData)

	_, err = a.Process(ctx, Job{DatasetID: id, Kind: "moments"}, uuid.Nil)
	assert.ErrorIs(t, err, spectrum.ErrValidation)
}

func TestNew_MissingStorageDir(t *testing.T) {
	config := DefaultConfig()
	config.Storage.Path = filepath.Join(t.TempDir(), "missing", "feeps.sqlite")

	_, err := New(config, slog.Default())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
