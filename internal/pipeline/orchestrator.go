package pipeline

import (
	"context"
	"log/slog"

	"github.com/talkdub-lab/talkdub/internal/job"
)

// Orchestrator runs a job's phases sequentially through a [Runner].
type Orchestrator struct {
	runner      *Runner
	phases      []Phase
	stopOnError bool
	logger      *slog.Logger
}

// NewOrchestrator builds an orchestrator over runner. phases run in the
// given order; when stopOnError is set the first failed phase ends the run.
func NewOrchestrator(runner *Runner, phases []Phase, stopOnError bool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner:      runner,
		phases:      phases,
		stopOnError: stopOnError,
		logger:      logger,
	}
}

// Summary aggregates a pipeline run.
type Summary struct {
	TotalPhases      int     `json:"total_phases"`
	SuccessfulPhases int     `json:"successful_phases"`
	FailedPhases     int     `json:"failed_phases"`
	TotalDurationSec float64 `json:"total_duration_sec"`
	SuccessRate      float64 `json:"success_rate"`
}

// Run executes every configured phase for the job in env and returns the
// per-phase results keyed by phase ID. Only executed phases appear in the
// map; phases skipped after a stop-on-error break do not.
func (o *Orchestrator) Run(ctx context.Context, env Env) map[ID]Result {
	log := o.logger.With("job_id", env.Job.JobID)
	results := make(map[ID]Result, len(o.phases))

	for _, phase := range o.phases {
		if err := ctx.Err(); err != nil {
			log.Warn("pipeline canceled", "phase", phase.ID(), "error", err)
			results[phase.ID()] = Result{Err: err, UserFriendly: TranslateError(err.Error())}
			break
		}

		log.Info("executing phase", "phase", phase.ID(), "name", phase.Name())
		if _, err := o.runner.store.UpdateStatus(env.Job.JobID, job.StatusProcessing, string(phase.ID()), ""); err != nil {
			log.Error("phase status update failed", "phase", phase.ID(), "error", err)
			results[phase.ID()] = Result{Err: err, UserFriendly: TranslateError(err.Error())}
			break
		}
		res := o.runner.Run(ctx, phase, env)
		results[phase.ID()] = res

		if !res.Success && o.stopOnError {
			log.Error("pipeline stopped on phase failure", "phase", phase.ID(), "error", res.Err)
			break
		}
	}
	return results
}

// Summarize condenses per-phase results into a [Summary]. An empty result
// set yields a zero success rate.
func Summarize(results map[ID]Result) Summary {
	s := Summary{TotalPhases: len(results)}
	for _, res := range results {
		if res.Success {
			s.SuccessfulPhases++
		} else {
			s.FailedPhases++
		}
		s.TotalDurationSec += res.DurationSec
	}
	if s.TotalPhases > 0 {
		s.SuccessRate = float64(s.SuccessfulPhases) / float64(s.TotalPhases)
	}
	return s
}

// FirstFailure returns the earliest failed phase in canonical order, or
// ("", zero Result, false) when every executed phase succeeded.
func FirstFailure(results map[ID]Result) (ID, Result, bool) {
	for _, id := range Order {
		res, ok := results[id]
		if ok && !res.Success {
			return id, res, true
		}
	}
	return "", Result{}, false
}
