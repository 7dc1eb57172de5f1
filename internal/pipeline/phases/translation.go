package phases

import (
	"context"
	"fmt"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
	"github.com/talkdub-lab/talkdub/internal/translate"
)

const translationTimeout = 2 * time.Hour

// Translation runs the segment translation sub-system over the job's
// recognised segments.
type Translation struct {
	pipe *translate.Pipeline
}

var _ pipeline.Phase = (*Translation)(nil)

func NewTranslation(pipe *translate.Pipeline) *Translation {
	return &Translation{pipe: pipe}
}

func (p *Translation) Name() string           { return "Translation" }
func (p *Translation) ID() pipeline.ID        { return pipeline.PhaseTranslation }
func (p *Translation) Timeout() time.Duration { return translationTimeout }

func (p *Translation) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	segments := copySegments(env.Job.Segments)

	if _, err := p.pipe.Run(ctx, segments, env.Job.Languages.Src, env.Job.Languages.Tgt); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: translation: %w", err))
	}

	completed := 0
	for _, seg := range segments {
		if seg.Translation.Status == job.TranslationCompleted {
			completed++
		}
	}

	return pipeline.Ok(nil, map[string]any{
		"segments": rawJSON(segments),
		"progress": map[string]any{
			"completed_segments": completed,
			"total_segments":     len(segments),
			"percent":            progressPercent(completed, len(segments)),
		},
	})
}

func progressPercent(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
