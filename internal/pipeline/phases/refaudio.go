package phases

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const (
	refAudioTimeout = 30 * time.Minute

	// minRefScore is the acceptance bar for a reference clip. Speakers
	// with no candidate at or above it fall back to a preset voice.
	minRefScore = 20.0
)

// RefAudio selects, per speaker, the best reference clip for voice cloning
// and extracts it from the voice stem.
type RefAudio struct {
	ffmpeg *media.FFmpeg
}

var _ pipeline.Phase = (*RefAudio)(nil)

func NewRefAudio(ffmpeg *media.FFmpeg) *RefAudio {
	return &RefAudio{ffmpeg: ffmpeg}
}

func (p *RefAudio) Name() string           { return "RefAudio" }
func (p *RefAudio) ID() pipeline.ID        { return pipeline.PhaseRefAudio }
func (p *RefAudio) Timeout() time.Duration { return refAudioTimeout }

func (p *RefAudio) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	if err := ensureDir(env.RefAudio); err != nil {
		return pipeline.Fail(err)
	}

	in := filepath.Join(env.Scratch, FileVoice)
	segments := env.Job.Segments
	speakers := make([]job.Speaker, len(env.Job.Speakers))
	copy(speakers, env.Job.Speakers)

	files := map[string]string{}

	for i := range speakers {
		sp := &speakers[i]

		var candidates []scoredSegment
		for _, seg := range segments {
			if seg.SpeakerID != sp.SpeakerID {
				continue
			}
			candidates = append(candidates, scoredSegment{
				score: scoreRefCandidate(seg, segments),
				seg:   seg,
			})
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

		best := candidates[0]
		if best.score < minRefScore {
			sp.FallbackMode = job.FallbackPresetVoice
			sp.RefQualityScore = best.score
			continue
		}

		out := filepath.Join(env.RefAudio, fmt.Sprintf("%s_01.wav", sp.SpeakerID))
		if err := p.ffmpeg.ExtractClip(ctx, in, out, best.seg.Start, best.seg.End, refAudioTimeout); err != nil {
			return pipeline.Fail(fmt.Errorf("phases: ref_audio: extract clip for %s: %w", sp.SpeakerID, err))
		}

		sp.RefWavPath = out
		sp.RefText = best.seg.SrcText
		sp.RefLang = env.Job.Languages.Src
		sp.RefQualityScore = best.score
		sp.FallbackMode = job.FallbackNormal
		files[sp.SpeakerID] = out
	}

	return pipeline.Ok(files, map[string]any{"speakers": rawJSON(speakers)})
}

type scoredSegment struct {
	score float64
	seg   job.Segment
}

// scoreRefCandidate rates a segment's suitability as a cloning reference.
// The base score is 100; multiplicative adjustments reward clean mid-length
// speech and punish silence, hallucinations, and adjacent-speaker bleed.
func scoreRefCandidate(seg job.Segment, all []job.Segment) float64 {
	if seg.Flags.SuspectedHallucination {
		return 0
	}
	score := 100.0

	duration := seg.End - seg.Start
	switch {
	case duration < 3.0 || duration > 8.0:
		score *= 0.3
	case duration >= 4.0 && duration <= 7.0:
		score *= 1.2
	}

	switch {
	case seg.VADSpeechRatio < 0.5:
		score *= 0.1
	case seg.VADSpeechRatio > 0.85:
		score *= 1.3
	}

	if seg.Whisper.NoSpeechProb > 0.5 {
		score *= 0.2
	}

	textLen := len([]rune(seg.SrcText))
	switch {
	case textLen < 8:
		score *= 0.5
	case textLen > 20:
		score *= 1.1
	}

	// Another speaker talking within half a second of either boundary
	// risks contaminating the clip.
	for _, other := range all {
		if other.SpeakerID == seg.SpeakerID {
			continue
		}
		if math.Abs(other.Start-seg.End) < 0.5 || math.Abs(other.End-seg.Start) < 0.5 {
			score *= 0.4
			break
		}
	}
	return score
}
