package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/metricworker/config"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/jobs"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/services/worker"
)

// app carries what every command needs
type app struct {
	cfg      *config.Config
	jobsFile string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "metricworker",
		Short:         "metricworker scrapes web pages into spreadsheet time series.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.LoadConfig()
			if a.jobsFile != "" {
				a.cfg.JobsFile = a.jobsFile
			}
			return a.cfg.Validate()
		},
	}
	root.PersistentFlags().StringVar(&a.jobsFile, "jobs", "", "YAML job catalog laid over the builtin jobs (default $JOBS_FILE)")

	root.AddCommand(a.runCmd(), a.groupCmd(), a.listCmd(), a.watchCmd())
	return root
}

func (a *app) catalog() (*jobs.Catalog, error) {
	return jobs.LoadCatalog(a.cfg.JobsFile)
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [job...]",
		Short: "Runs the named jobs, or the default job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{a.cfg.DefaultJob}
			}
			specs := make([]jobs.Spec, 0, len(args))
			for _, name := range args {
				spec, err := catalog.Get(name)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			return a.runOnce(cmd, specs)
		},
	}
}

func (a *app) groupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group <name>",
		Short: "Runs every job of a group in order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			specs, err := catalog.Group(args[0])
			if err != nil {
				return err
			}
			return a.runOnce(cmd, specs)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the known jobs and groups.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			renderJobs(cmd.OutOrStdout(), catalog)
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <group>",
		Short: "Runs a group on an interval until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			specs, err := catalog.Group(args[0])
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.RunInterval
			}

			w, cleanup, err := a.worker(cmd, interval)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Default.Info().
				Str("group", args[0]).
				Int("jobs", len(specs)).
				Dur("interval", interval).
				Msg("Starting watch")
			err = w.Start(specs)
			logger.Info("Shutting down gracefully...")
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between runs (default $RUN_INTERVAL_SECONDS)")
	return cmd
}

func (a *app) worker(cmd *cobra.Command, interval time.Duration) (*worker.Worker, func(), error) {
	services, err := initializeServices(cmd.Context(), a.cfg)
	if err != nil {
		return nil, nil, err
	}
	w := worker.NewWorker(
		cmd.Context(),
		services.Env,
		services.Publisher,
		helpers.NewLogger(a.cfg.LogFile),
		cmd.OutOrStdout(),
		interval,
	).Verbose(a.cfg.Environment != "production")
	return w, services.Cleanup, nil
}

// runOnce runs specs and fails when any of them did
func (a *app) runOnce(cmd *cobra.Command, specs []jobs.Spec) error {
	w, cleanup, err := a.worker(cmd, a.cfg.RunInterval)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := w.RunJobs(specs)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed: %s", len(report.Failed), len(specs), strings.Join(report.Failed, ", "))
	}
	return nil
}

// renderJobs prints the catalog as a table
func renderJobs(out io.Writer, catalog *jobs.Catalog) {
	memberOf := make(map[string][]string)
	for _, group := range catalog.GroupNames() {
		specs, _ := catalog.Group(group)
		for _, s := range specs {
			memberOf[s.Name] = append(memberOf[s.Name], group)
		}
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Job", "Kind", "Groups", "Description"})
	for _, s := range catalog.Jobs() {
		t.AppendRow(table.Row{s.Name, s.Kind, strings.Join(memberOf[s.Name], ", "), s.Description})
	}
	t.Render()
}
