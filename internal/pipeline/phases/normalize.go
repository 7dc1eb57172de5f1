package phases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const normalizeTimeout = time.Hour

// Normalize loudness-normalizes the downloaded audio to broadcast level,
// mono, at the pipeline sample rate.
type Normalize struct {
	ffmpeg *media.FFmpeg
}

var _ pipeline.Phase = (*Normalize)(nil)

func NewNormalize(ffmpeg *media.FFmpeg) *Normalize {
	return &Normalize{ffmpeg: ffmpeg}
}

func (p *Normalize) Name() string           { return "Normalize" }
func (p *Normalize) ID() pipeline.ID        { return pipeline.PhaseNormalize }
func (p *Normalize) Timeout() time.Duration { return normalizeTimeout }

func (p *Normalize) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	in := filepath.Join(env.Scratch, FileOriginal)
	out := filepath.Join(env.Scratch, FileNormalized)

	if err := p.ffmpeg.Normalize(ctx, in, out, normalizeTimeout); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: normalize: %w", err))
	}
	if !fileNonEmpty(out, 1) {
		return pipeline.Fail(fmt.Errorf("phases: normalize: %s was not produced", FileNormalized))
	}

	// The raw download is no longer needed; reclaim the disk space.
	os.Remove(in)

	return pipeline.Ok(map[string]string{"normalized": out}, nil)
}
