package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const vadTimeout = 30 * time.Minute

// VAD measures the fraction of actual speech inside every recognised
// segment using an external silero-vad run over the voice stem.
type VAD struct {
	runner *media.Runner
	silero string
}

var _ pipeline.Phase = (*VAD)(nil)

func NewVAD(runner *media.Runner, silero string) *VAD {
	if silero == "" {
		silero = "silero-vad"
	}
	return &VAD{runner: runner, silero: silero}
}

func (p *VAD) Name() string           { return "VAD" }
func (p *VAD) ID() pipeline.ID        { return pipeline.PhaseVAD }
func (p *VAD) Timeout() time.Duration { return vadTimeout }

// speechSpan is one detected speech interval in seconds.
type speechSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type vadReport struct {
	SpeechTimestamps []speechSpan `json:"speech_timestamps"`
}

func (p *VAD) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	in := filepath.Join(env.Scratch, FileVoice)
	out := filepath.Join(env.Scratch, "vad.json")

	_, err := p.runner.Run(ctx, vadTimeout, p.silero,
		"--input", in,
		"--output", out,
		"--threshold", "0.5",
		"--sample-rate", "16000",
	)
	if err != nil {
		return pipeline.Fail(fmt.Errorf("phases: vad: %w", err))
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		return pipeline.Fail(fmt.Errorf("phases: vad: read report: %w", err))
	}
	var report vadReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: vad: parse report: %w", err))
	}

	segments := copySegments(env.Job.Segments)
	for i := range segments {
		segments[i].VADSpeechRatio = speechRatio(segments[i].Start, segments[i].End, report.SpeechTimestamps)
	}

	return pipeline.Ok(nil, map[string]any{"segments": rawJSON(segments)})
}

// speechRatio returns the covered fraction of [start, end), clamped to 1.0.
func speechRatio(start, end float64, spans []speechSpan) float64 {
	duration := end - start
	if duration <= 0 {
		return 0
	}
	var covered float64
	for _, span := range spans {
		lo := max(span.Start, start)
		hi := min(span.End, end)
		if lo < hi {
			covered += hi - lo
		}
	}
	return min(covered/duration, 1.0)
}
