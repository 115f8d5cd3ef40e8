package jobs

import (
	"context"
	"fmt"
	"time"

	"sjsage522/metricworker/pkg/errors"
)

type runner func(ctx context.Context, s *session) (Result, error)

// runners maps each kind to its pipeline
var runners = map[Kind]runner{
	KindAOV:        runAOV,
	KindRank:       runRank,
	KindBrandShare: runBrandShare,
	KindCounters:   runCounters,
	KindEPC:        runEPC,
	KindSitemap:    runSitemap,
}

// Run executes one job. Nothing is written; the returned outputs are meant
// for sheet.Upsert. A fatal error means the outputs must be discarded.
func Run(ctx context.Context, spec Spec, env Env) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	run, ok := runners[spec.Kind]
	if !ok {
		return Result{}, errors.NewConfiguration(fmt.Sprintf("no runner for kind %q", spec.Kind), nil)
	}

	s := newSession(spec, env)
	defer s.close()

	start := time.Now()
	s.log.Info().Str("kind", string(spec.Kind)).Msg("Starting job")

	res, err := run(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("job %s: %w", spec.Name, err)
	}
	res.Job = spec.Name
	res.Kind = spec.Kind
	res.Stamp = s.stamp

	s.log.Info().
		Int("outputs", len(res.Outputs)).
		Dur("elapsed", time.Since(start)).
		Msg("Job finished")
	return res, nil
}
