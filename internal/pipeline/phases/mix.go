package phases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const mixTimeout = time.Hour

// Mix layers the dubbed voice track over the separated background music,
// ducking the background under speech. Jobs without a background stem pass
// the voice track through unchanged.
type Mix struct {
	ffmpeg *media.FFmpeg
	params config.PipelineConfig
}

var _ pipeline.Phase = (*Mix)(nil)

func NewMix(ffmpeg *media.FFmpeg, params config.PipelineConfig) *Mix {
	return &Mix{ffmpeg: ffmpeg, params: params}
}

func (p *Mix) Name() string           { return "Mix" }
func (p *Mix) ID() pipeline.ID        { return pipeline.PhaseMix }
func (p *Mix) Timeout() time.Duration { return mixTimeout }

func (p *Mix) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	voice := filepath.Join(env.Scratch, FileDubVoice)
	bgm := filepath.Join(env.Scratch, FileBGM)
	out := filepath.Join(env.Scratch, FileDubMixed)

	if !fileNonEmpty(bgm, 1) {
		if err := copyFile(voice, out); err != nil {
			return pipeline.Fail(fmt.Errorf("phases: mix: %w", err))
		}
		return pipeline.Ok(map[string]string{"dub_mixed": out}, nil)
	}

	duck := env.Job.Params.OverlapDuckDB
	if duck == 0 {
		duck = p.params.OverlapDuckDB
	}

	if err := p.ffmpeg.DuckMix(ctx, voice, bgm, out, duck, mixTimeout); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: mix: %w", err))
	}
	if !fileNonEmpty(out, 1) {
		return pipeline.Fail(fmt.Errorf("phases: mix: %s was not produced", FileDubMixed))
	}
	return pipeline.Ok(map[string]string{"dub_mixed": out}, nil)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
