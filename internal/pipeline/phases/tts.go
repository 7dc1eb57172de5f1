package phases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const (
	ttsTimeout = 6 * time.Hour

	// ttsAbortRatio stops the phase when too many segments fail synthesis.
	ttsAbortRatio = 0.5
)

// TTS synthesizes every translated segment into its own wav, cloning the
// speaker's voice from reference audio when available.
type TTS struct {
	synth *Synthesizer
}

var _ pipeline.Phase = (*TTS)(nil)

func NewTTS(synth *Synthesizer) *TTS {
	return &TTS{synth: synth}
}

func (p *TTS) Name() string           { return "TTS" }
func (p *TTS) ID() pipeline.ID        { return pipeline.PhaseTTS }
func (p *TTS) Timeout() time.Duration { return ttsTimeout }

func (p *TTS) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	outDir := filepath.Join(env.Scratch, "tts_output")
	if err := ensureDir(outDir); err != nil {
		return pipeline.Fail(err)
	}

	segments := copySegments(env.Job.Segments)

	refs := map[string]job.Speaker{}
	for _, sp := range env.Job.Speakers {
		refs[sp.SpeakerID] = sp
	}

	var processable []int
	for i := range segments {
		seg := &segments[i]
		if seg.Translation.Status == job.TranslationCompleted && !seg.Flags.SuspectedHallucination {
			processable = append(processable, i)
		}
	}
	if len(processable) == 0 {
		return pipeline.Ok(nil, map[string]any{"segments": rawJSON(segments)})
	}

	failed := 0
	for _, i := range processable {
		if err := ctx.Err(); err != nil {
			return pipeline.Fail(err)
		}
		seg := &segments[i]
		out := filepath.Join(outDir, seg.SegID+".wav")

		req := SynthRequest{
			Text: seg.TgtText,
			Lang: env.Job.Languages.Tgt,
			Out:  out,
		}
		if sp, ok := refs[seg.SpeakerID]; ok && sp.FallbackMode != job.FallbackPresetVoice {
			req.RefWav = sp.RefWavPath
			req.RefText = sp.RefText
		}

		duration, err := p.synth.Synthesize(ctx, req)
		if err == nil && !validDurationBand(duration, seg.End-seg.Start) {
			err = fmt.Errorf("phases: tts: %s duration %.2fs outside accepted band for %.2fs slot",
				seg.SegID, duration, seg.End-seg.Start)
		}
		if err != nil {
			failed++
			seg.TTS.Status = job.TranslationFailed
			seg.TTS.Retries++
			if float64(failed)/float64(len(processable)) > ttsAbortRatio {
				return pipeline.Fail(fmt.Errorf("phases: tts: failure rate too high: %d/%d segments failed, last: %w",
					failed, len(processable), err))
			}
			continue
		}

		seg.TTS.WavPath = out
		seg.TTS.Status = job.TranslationCompleted
		seg.Timing.TTSDuration = duration
	}

	return pipeline.Ok(
		map[string]string{"tts_output_dir": outDir},
		map[string]any{"segments": rawJSON(segments)},
	)
}
