package phases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const finalizeTimeout = time.Hour

// Finalize conforms the mixed track to the exact source duration and moves
// it into the job's artifact directory under its deterministic name.
type Finalize struct {
	ffmpeg *media.FFmpeg
}

var _ pipeline.Phase = (*Finalize)(nil)

func NewFinalize(ffmpeg *media.FFmpeg) *Finalize {
	return &Finalize{ffmpeg: ffmpeg}
}

func (p *Finalize) Name() string           { return "Finalize" }
func (p *Finalize) ID() pipeline.ID        { return pipeline.PhaseFinalize }
func (p *Finalize) Timeout() time.Duration { return finalizeTimeout }

func (p *Finalize) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	if err := ensureDir(env.Output); err != nil {
		return pipeline.Fail(err)
	}

	in := filepath.Join(env.Scratch, FileDubMixed)
	out := filepath.Join(env.Output, DubFileName(env.Job.Languages.Tgt))

	if err := p.ffmpeg.PadTrim(ctx, in, out, env.Job.Media.DurationSec, finalizeTimeout); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: finalize: %w", err))
	}
	if !fileNonEmpty(out, 1) {
		return pipeline.Fail(fmt.Errorf("phases: finalize: dubbed track was not produced"))
	}

	return pipeline.Ok(
		map[string]string{"dub": out},
		map[string]any{"outputs": map[string]any{"dub_path": out}},
	)
}
