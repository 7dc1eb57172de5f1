package phases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
	"github.com/talkdub-lab/talkdub/internal/translate"
)

const timelineTimeout = 2 * time.Hour

// Timeline places every synthesized clip on the output timeline and
// assembles the dubbed voice track. Clips longer than their source slot are
// tempo-compressed up to the configured limit; clips that still overrun
// their allowed overlap get a shortened re-translation and one more
// synthesis pass before being accepted with clamped overlap.
type Timeline struct {
	ffmpeg *media.FFmpeg
	synth  *Synthesizer
	client *translate.Client
	params config.PipelineConfig
}

var _ pipeline.Phase = (*Timeline)(nil)

func NewTimeline(ffmpeg *media.FFmpeg, synth *Synthesizer, client *translate.Client, params config.PipelineConfig) *Timeline {
	return &Timeline{ffmpeg: ffmpeg, synth: synth, client: client, params: params}
}

func (p *Timeline) Name() string           { return "Timeline" }
func (p *Timeline) ID() pipeline.ID        { return pipeline.PhaseTimeline }
func (p *Timeline) Timeout() time.Duration { return timelineTimeout }

func (p *Timeline) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	fittedDir := filepath.Join(env.Scratch, "fitted")
	if err := ensureDir(fittedDir); err != nil {
		return pipeline.Fail(err)
	}

	segments := copySegments(env.Job.Segments)
	maxAtempo := env.Job.Params.MaxAtempo
	if maxAtempo <= 0 {
		maxAtempo = p.params.MaxAtempo
	}

	var clips []media.Clip
	for i := range segments {
		seg := &segments[i]
		if seg.TTS.Status != job.TranslationCompleted || seg.TTS.WavPath == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pipeline.Fail(err)
		}

		slot := seg.End - seg.Start
		allowed := p.allowedOverlap(env.Job, slot)
		nextStart := nextSegmentStart(segments, i)

		path, err := p.fitSegment(ctx, env, seg, fittedDir, slot, allowed, nextStart, maxAtempo)
		if err != nil {
			return pipeline.Fail(err)
		}

		clips = append(clips, media.Clip{Path: path, StartSec: seg.Timing.FinalStart})
	}

	if len(clips) == 0 {
		return pipeline.Fail(fmt.Errorf("phases: timeline: no synthesized segments to place"))
	}

	out := filepath.Join(env.Scratch, FileDubVoice)
	if err := p.ffmpeg.AssembleTrack(ctx, clips, env.Job.Media.DurationSec, out, timelineTimeout); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: timeline: %w", err))
	}

	return pipeline.Ok(
		map[string]string{"dub_voice": out},
		map[string]any{"segments": rawJSON(segments)},
	)
}

// fitSegment tempo-fits one clip into its slot, re-synthesizing from a
// shortened translation when compression alone cannot make it fit. It fills
// the segment's timing block and returns the path of the placed clip.
func (p *Timeline) fitSegment(ctx context.Context, env pipeline.Env, seg *job.Segment,
	fittedDir string, slot, allowed, nextStart, maxAtempo float64) (string, error) {

	path := seg.TTS.WavPath
	duration := seg.Timing.TTSDuration

	budget := slot + allowed
	if nextStart > 0 {
		budget = min(budget, nextStart-seg.Start+allowed)
	}

	atempo := 1.0
	if duration > budget && budget > 0 {
		atempo = min(duration/budget, maxAtempo)
	}

	if duration/atempo > budget && p.client != nil {
		shortened, err := p.reshorten(ctx, env, seg, fittedDir, budget, duration)
		if err == nil {
			path = shortened.path
			duration = shortened.duration
			seg.TgtText = shortened.text
			seg.Flags.Shortened = true
			atempo = 1.0
			if duration > budget && budget > 0 {
				atempo = min(duration/budget, maxAtempo)
			}
		}
		// A failed shortening attempt falls through to best-effort
		// compression of the original clip.
	}

	if atempo > 1.0 {
		fitted := filepath.Join(fittedDir, seg.SegID+".wav")
		if err := p.ffmpeg.Atempo(ctx, path, fitted, atempo, timelineTimeout); err != nil {
			return "", fmt.Errorf("phases: timeline: atempo %s: %w", seg.SegID, err)
		}
		path = fitted
		duration = duration / atempo
	}

	finalEnd := seg.Start + duration
	overlap := 0.0
	if nextStart > 0 && finalEnd > nextStart {
		overlap = min(finalEnd-nextStart, allowed)
	}

	seg.Timing.FinalStart = seg.Start
	seg.Timing.FinalEnd = finalEnd
	seg.Timing.AtempoApplied = atempo
	seg.Timing.OverlapApplied = overlap
	return path, nil
}

type shortenedClip struct {
	text     string
	path     string
	duration float64
}

// reshorten asks for a tighter translation sized to the time budget and
// synthesizes it.
func (p *Timeline) reshorten(ctx context.Context, env pipeline.Env, seg *job.Segment,
	fittedDir string, budget, duration float64) (shortenedClip, error) {

	runes := len([]rune(seg.TgtText))
	maxChars := int(float64(runes) * budget / duration)
	if maxChars < 1 {
		maxChars = 1
	}

	text, err := p.client.TranslateShortened(ctx,
		seg.SrcText, env.Job.Languages.Src, env.Job.Languages.Tgt, maxChars)
	if err != nil {
		return shortenedClip{}, fmt.Errorf("phases: timeline: shorten %s: %w", seg.SegID, err)
	}

	out := filepath.Join(fittedDir, seg.SegID+"_short.wav")
	req := SynthRequest{Text: text, Lang: env.Job.Languages.Tgt, Out: out}
	for _, sp := range env.Job.Speakers {
		if sp.SpeakerID == seg.SpeakerID && sp.FallbackMode != job.FallbackPresetVoice {
			req.RefWav = sp.RefWavPath
			req.RefText = sp.RefText
			break
		}
	}

	d, err := p.synth.Synthesize(ctx, req)
	if err != nil {
		return shortenedClip{}, fmt.Errorf("phases: timeline: resynthesize %s: %w", seg.SegID, err)
	}
	return shortenedClip{text: text, path: out, duration: d}, nil
}

// allowedOverlap is the run-over budget into the following segment.
func (p *Timeline) allowedOverlap(j *job.Job, slot float64) float64 {
	maxSec := j.Params.MaxOverlapSec
	if maxSec <= 0 {
		maxSec = p.params.MaxOverlapSec
	}
	ratio := j.Params.MaxOverlapRatio
	if ratio <= 0 {
		ratio = p.params.MaxOverlapRatio
	}
	return min(maxSec, slot*ratio)
}

// nextSegmentStart returns the start of the next synthesized segment after
// index i, or 0 when none follows.
func nextSegmentStart(segments []job.Segment, i int) float64 {
	for j := i + 1; j < len(segments); j++ {
		if segments[j].TTS.Status == job.TranslationCompleted {
			return segments[j].Start
		}
	}
	return 0
}
