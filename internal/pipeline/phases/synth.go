package phases

import (
	"context"
	"fmt"
	"time"

	"github.com/talkdub-lab/talkdub/internal/media"
)

const (
	// synthSegmentTimeout bounds one synthesis call.
	synthSegmentTimeout = 5 * time.Minute

	// minTTSBytes is the smallest plausible synthesized wav.
	minTTSBytes = 10 * 1024

	// Synthesized output must land within this band of the source segment
	// duration to be accepted.
	ttsDurationMinRatio = 0.5
	ttsDurationMaxRatio = 2.5
)

// Synthesizer wraps the external TTS engine: one invocation produces one
// wav, optionally voice-cloned from a reference clip.
type Synthesizer struct {
	runner *media.Runner
	bin    string
	ffmpeg *media.FFmpeg
}

func NewSynthesizer(runner *media.Runner, bin string, ffmpeg *media.FFmpeg) *Synthesizer {
	if bin == "" {
		bin = "qwen-tts"
	}
	return &Synthesizer{runner: runner, bin: bin, ffmpeg: ffmpeg}
}

// SynthRequest describes one synthesis call. RefWav and RefText are both
// empty for preset-voice synthesis.
type SynthRequest struct {
	Text    string
	Lang    string
	RefWav  string
	RefText string
	Out     string
}

// Synthesize runs the engine and returns the produced clip's duration in
// seconds. The output is validated for size; duration band checks are the
// caller's concern since only it knows the source slot.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthRequest) (float64, error) {
	args := []string{
		"--text", req.Text,
		"--language", req.Lang,
		"--output", req.Out,
	}
	if req.RefWav != "" {
		args = append(args, "--ref-audio", req.RefWav)
		if req.RefText != "" {
			args = append(args, "--ref-text", req.RefText)
		}
	}

	if _, err := s.runner.Run(ctx, synthSegmentTimeout, s.bin, args...); err != nil {
		return 0, fmt.Errorf("phases: synthesize: %w", err)
	}
	if !fileNonEmpty(req.Out, minTTSBytes) {
		return 0, fmt.Errorf("phases: synthesize: output below %d bytes", minTTSBytes)
	}

	duration, err := s.ffmpeg.ProbeDuration(ctx, req.Out)
	if err != nil {
		return 0, fmt.Errorf("phases: synthesize: probe output: %w", err)
	}
	return duration, nil
}

// validDurationBand reports whether a synthesized duration is acceptable
// for a source slot of slotSec seconds.
func validDurationBand(ttsSec, slotSec float64) bool {
	if slotSec <= 0 {
		return ttsSec > 0
	}
	return ttsSec >= slotSec*ttsDurationMinRatio && ttsSec <= slotSec*ttsDurationMaxRatio
}
