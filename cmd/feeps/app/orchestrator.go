package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/particle-spectra/internal/storage"
)

const defaultWorkers = 4

// Job is one product to compute.
type Job struct {
	DatasetID int64
	Kind      storage.ProductKind
}

// Result is the outcome of a job. A failed job carries Err and no product.
type Result struct {
	Job       Job
	ProductID int64
	Err       error
	Elapsed   time.Duration
}

// Processor computes and stores the product of a job.
type Processor interface {
	Process(ctx context.Context, job Job, runID uuid.UUID) (int64, error)
}

// WithWorkers sets the number of jobs processed concurrently.
func WithWorkers(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.workers = n
	}
}

// WithJobTimeout bounds the time a single job may take. Zero disables it.
func WithJobTimeout(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithOrchestratorLogger sets the logger for job progress.
func WithOrchestratorLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator runs product jobs over many datasets. All products of one run
// share a run id; a failing job does not stop the others.
type Orchestrator struct {
	processor Processor
	workers   int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(processor Processor, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		processor: processor,
		workers:   defaultWorkers,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&o)
	}

	if o.workers <= 0 {
		o.workers = 1
	}

	return &o
}

// Run processes the jobs and returns one result per job, in job order. The
// returned error is only set when the context ends before every job ran.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) (uuid.UUID, []Result, error) {
	runID := uuid.New()
	results := make([]Result, len(jobs))
	logger := o.logger.With(slog.String("run", runID.String()))

	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			results[i] = o.process(ctx, job, runID, logger)
			return nil
		})
	}

	_ = g.Wait() // workers never fail

	if err := ctx.Err(); err != nil {
		for i := range results {
			if results[i].Job == (Job{}) {
				results[i] = Result{Job: jobs[i], Err: err}
			}
		}
		return runID, results, fmt.Errorf("run %s interrupted: %w", runID, err)
	}

	return runID, results, nil
}

func (o *Orchestrator) process(ctx context.Context, job Job, runID uuid.UUID, logger *slog.Logger) Result {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	productID, err := o.processor.Process(ctx, job, runID)
	r := Result{Job: job, ProductID: productID, Err: err, Elapsed: time.Since(start)}

	attrs := []any{slog.Int64("dataset", job.DatasetID), slog.String("kind", string(job.Kind)), slog.Duration("elapsed", r.Elapsed)}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("job timed out", attrs...)
	case err != nil:
		logger.Error(fmt.Sprintf("job failed: %s", err.Error()), attrs...)
	default:
		logger.Info("job done", append(attrs, slog.Int64("product", productID))...)
	}

	return r
}

// Jobs expands dataset ids and product kinds into jobs.
func Jobs(datasetIDs []int64, kinds []storage.ProductKind) []Job {
	jobs := make([]Job, 0, len(datasetIDs)*len(kinds))
	for _, id := range datasetIDs {
		for _, kind := range kinds {
			jobs = append(jobs, Job{DatasetID: id, Kind: kind})
		}
	}
	return jobs
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
