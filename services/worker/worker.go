package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/jobs"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/publisher"
)

// RunFunc executes one job
type RunFunc func(ctx context.Context, spec jobs.Spec, env jobs.Env) (jobs.Result, error)

// Worker runs jobs one after another, writes their rows and prints their
// summaries
type Worker struct {
	ctx       context.Context
	env       jobs.Env
	publisher publisher.Publisher
	logger    helpers.LoggerInterface
	out       io.Writer
	interval  time.Duration
	verbose   bool
	run       RunFunc
	log       *logger.Logger
}

// NewWorker creates a new worker. pub may be nil to disable publishing.
func NewWorker(
	ctx context.Context,
	env jobs.Env,
	pub publisher.Publisher,
	jobLog helpers.LoggerInterface,
	out io.Writer,
	interval time.Duration,
) *Worker {
	return &Worker{
		ctx:       ctx,
		env:       env,
		publisher: pub,
		logger:    jobLog,
		out:       out,
		interval:  interval,
		run:       jobs.Run,
		log:       logger.ForWorker(),
	}
}

// Verbose makes the worker report timings after every run
func (w *Worker) Verbose(v bool) *Worker {
	w.verbose = v
	return w
}

// Report describes one pass over a list of jobs
type Report struct {
	RunID   string
	Results []jobs.Result
	// Failed lists jobs that failed without aborting the run
	Failed []string
}

// RunJobs runs specs in order. A job that fails non-fatally is logged and
// skipped; a fatal failure stops the run before anything of that job is
// written and is returned.
func (w *Worker) RunJobs(specs []jobs.Spec) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	start := time.Now()

	for _, spec := range specs {
		if err := w.ctx.Err(); err != nil {
			return report, err
		}

		res, err := w.run(w.ctx, spec, w.env)
		if err != nil {
			w.logger.LogError(spec.Name, err)
			if errors.IsFatal(err) || w.ctx.Err() != nil {
				return report, err
			}
			report.Failed = append(report.Failed, spec.Name)
			continue
		}

		if err := w.write(report.RunID, res); err != nil {
			w.logger.LogError(spec.Name, err)
			return report, err
		}
		report.Results = append(report.Results, res)
		fmt.Fprintln(w.out, res.Summary)
	}

	if w.publisher != nil {
		// Trim all streams after the run
		if err := w.publisher.TrimStreams(); err != nil {
			w.logger.LogError("StreamTrimming", err)
		}
	}

	if w.verbose {
		w.logger.LogInfo("Run %s finished %d jobs in %s", report.RunID, len(report.Results), time.Since(start))
	}
	return report, nil
}

// write upserts every output of res and publishes the written rows
func (w *Worker) write(runID string, res jobs.Result) error {
	if w.env.Sheets == nil {
		return errors.NewConfiguration("no sheet store configured", nil)
	}
	for _, out := range res.Outputs {
		written, err := sheet.Upsert(w.ctx, w.env.Sheets, out.Sheet, out.Record)
		if err != nil {
			return errors.NewStorage("sheet", "write "+out.Sheet, err)
		}
		w.log.Debug().
			Str("job", res.Job).
			Str("sheet", out.Sheet).
			Int("row", written.Row).
			Bool("appended", written.Appended).
			Msg("Wrote row")

		if w.publisher == nil {
			continue
		}
		m := publisher.Measurement{
			RunID:  runID,
			Job:    res.Job,
			Sheet:  out.Sheet,
			Key:    out.Record.Key,
			Values: out.Record.Values(),
			At:     w.now(),
		}
		if err := publisher.PublishMeasurement(w.publisher, m); err != nil {
			w.logger.LogError(res.Job, err)
		}
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.env.Now != nil {
		return w.env.Now()
	}
	return time.Now()
}

// Start runs specs every interval until the context is cancelled. Failed
// runs are logged and retried on the next tick.
func (w *Worker) Start(specs []jobs.Spec) error {
	for {
		report, err := w.RunJobs(specs)
		if err != nil && w.ctx.Err() == nil {
			w.log.Error().Err(err).Str("run", report.RunID).Msg("Run aborted")
		}

		select {
		case <-w.ctx.Done():
			return nil
		case <-time.After(w.interval):
		}
	}
}
