// Package pipeline drives a dubbing job through its ordered phases: the
// phase contract, the dependency registry, the retrying runner, the
// per-job orchestrator, and the queue-consuming worker.
package pipeline

import (
	"context"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
)

// Env is the execution environment handed to a phase: the job snapshot and
// the per-job directories it may read and write.
type Env struct {
	// Job is the record as of phase start. Phases communicate updates back
	// through [Result].Metadata, not by mutating the record directly.
	Job *job.Job

	// Scratch is the per-job working directory holding intermediate files.
	Scratch string

	// Output is the per-job artifact directory.
	Output string

	// RefAudio is the per-job reference-audio directory.
	RefAudio string
}

// Result is the outcome of one phase execution attempt.
type Result struct {
	// Success marks the attempt as passed. When false the runner retries
	// or, after the last attempt, reports failure.
	Success bool

	// OutputFiles names the scratch or output files this attempt produced,
	// keyed by role.
	OutputFiles map[string]string

	// Metadata is merged into the job record on success: top-level maps
	// merge key-wise, everything else replaces.
	Metadata map[string]any

	// Err is the technical error of a failed attempt.
	Err error

	// UserFriendly is an optional human-readable failure phrase. When
	// empty the runner derives one from Err.
	UserFriendly string

	// DurationSec is the attempt's wall-clock time, filled by the runner.
	DurationSec float64
}

// Ok builds a successful Result.
func Ok(files map[string]string, metadata map[string]any) Result {
	return Result{Success: true, OutputFiles: files, Metadata: metadata}
}

// Fail builds a failed Result from a technical error.
func Fail(err error) Result {
	return Result{Err: err}
}

// Phase is one sequential step of a job. Implementations must be safe to
// re-run: the runner retries a failed Execute on the same Env.
type Phase interface {
	// Name is the human-readable phase name for logs and status.
	Name() string

	// ID is the stable phase identifier registered in the dependency table.
	ID() ID

	// Timeout is the wall-clock budget for a single execution attempt.
	Timeout() time.Duration

	// Execute performs the phase's work. Cancellation of ctx (including
	// the runner's per-attempt timeout) must abort promptly.
	Execute(ctx context.Context, env Env) Result
}
