package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/particle-spectra/cmd/feeps/app"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

var (
	importSpacecraft int
	importSpecies    string
	importMode       string
	importField      string
	batchKinds       []string
)

var importCmd = &cobra.Command{
	Use:   "import <samples.csv>",
	Short: "Import a per-eye flux export into a new dataset",
	Long: `Import a flux export with one line per eye and sample time:

  timestamp,position,sensor,spin_sector,flux_0,...,flux_15

Channel energies are assigned from the calibration tables. A magnetic field
export (timestamp,bx,by,bz in nT) can be attached with --field; pitch-angle
distributions need one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		species, err := spectrum.ParseSpecies(importSpecies)
		if err != nil {
			return err
		}
		mode, err := spectrum.ParseMode(importMode)
		if err != nil {
			return err
		}

		id, err := application.Import(cmd.Context(), app.ImportRequest{
			SamplesPath: args[0],
			FieldPath:   importField,
			Spacecraft:  importSpacecraft,
			Species:     species,
			Mode:        mode,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List stored datasets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		datasets, err := application.Datasets(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSPACECRAFT\tSPECIES\tMODE\tSOURCE\tCREATED")
		for _, d := range datasets {
			fmt.Fprintf(w, "%d\tmms%d\t%s\t%s\t%s\t%s\n", d.ID, d.Spacecraft, d.Species, d.Mode, d.Source, humanize.Time(d.CreatedAt))
		}
		return w.Flush()
	},
}

var productsCmd = &cobra.Command{
	Use:   "products <dataset-id>",
	Short: "List products derived from a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		products, err := application.Products(cmd.Context(), ids[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tBINS\tRUN\tCREATED")
		for _, p := range products {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", p.ID, p.Kind, len(p.Bins), p.RunID, humanize.Time(p.CreatedAt))
		}
		return w.Flush()
	},
}

var omniCmd = &cobra.Command{
	Use:   "omni <dataset-id>...",
	Short: "Compute omni-directional spectra",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobs(cmd, args, []storage.ProductKind{storage.ProductOmni})
	},
}

var padCmd = &cobra.Command{
	Use:   "pad <dataset-id>...",
	Short: "Compute pitch-angle distributions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobs(cmd, args, []storage.ProductKind{storage.ProductPAD})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [dataset-id]...",
	Short: "Compute products for many datasets concurrently",
	Long: `Compute the selected products for the given datasets, or for every
stored dataset when none is given. Jobs run concurrently; a failed job is
reported and does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := make([]storage.ProductKind, 0, len(batchKinds))
		for _, k := range batchKinds {
			kind := storage.ProductKind(strings.ToLower(strings.TrimSpace(k)))
			if kind != storage.ProductOmni && kind != storage.ProductPAD {
				return fmt.Errorf("%w: unknown product kind '%s'", spectrum.ErrValidation, k)
			}
			kinds = append(kinds, kind)
		}

		if len(args) == 0 {
			datasets, err := application.Datasets(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range datasets {
				args = append(args, strconv.FormatInt(d.ID, 10))
			}
		}
		return runJobs(cmd, args, kinds)
	},
}

func init() {
	importCmd.Flags().IntVar(&importSpacecraft, "spacecraft", 1, "Spacecraft number, 1 to 4")
	importCmd.Flags().StringVar(&importSpecies, "species", string(spectrum.Electron), "Particle species: electron or ion")
	importCmd.Flags().StringVar(&importMode, "mode", string(spectrum.Survey), "Data rate mode: srvy or brst")
	importCmd.Flags().StringVar(&importField, "field", "", "Magnetic field export to attach")

	batchCmd.Flags().StringSliceVar(&batchKinds, "kind", []string{string(storage.ProductOmni), string(storage.ProductPAD)}, "Products to compute")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid dataset id '%s'", spectrum.ErrValidation, arg)
		}
		ids[i] = id
	}
	return ids, nil
}

func runJobs(cmd *cobra.Command, args []string, kinds []storage.ProductKind) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	o := app.NewOrchestrator(application,
		app.WithWorkers(config.Batch.Workers),
		app.WithJobTimeout(time.Duration(config.Batch.Timeout)),
		app.WithOrchestratorLogger(logger),
	)

	runID, results, err := o.Run(cmd.Context(), app.Jobs(ids, kinds))
	printResults(cmd, runID, results)
	if err != nil {
		return err
	}

	if failed := app.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed", len(failed), len(results))
	}
	return nil
}

func printResults(cmd *cobra.Command, runID uuid.UUID, results []app.Result) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run %s\n", runID)
	fmt.Fprintln(w, "DATASET\tKIND\tPRODUCT\tELAPSED\tERROR")
	for _, r := range results {
		product, msg := "-", ""
		if r.Err != nil {
			msg = r.Err.Error()
		} else {
			product = strconv.FormatInt(r.ProductID, 10)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Job.DatasetID, r.Job.Kind, product, r.Elapsed.Round(time.Millisecond), msg)
	}
	_ = w.Flush()
}
