package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const (
	asrTimeout = 4 * time.Hour

	// defaultSpeaker labels segments when diarization is unavailable.
	defaultSpeaker = "SPEAKER_00"
)

// ASR transcribes the voice stem with whisperx, including word-level
// alignment and, when HF_TOKEN is available, speaker diarization.
type ASR struct {
	runner   *media.Runner
	whisperx string
}

var _ pipeline.Phase = (*ASR)(nil)

func NewASR(runner *media.Runner, whisperx string) *ASR {
	if whisperx == "" {
		whisperx = "whisperx"
	}
	return &ASR{runner: runner, whisperx: whisperx}
}

func (p *ASR) Name() string           { return "ASR" }
func (p *ASR) ID() pipeline.ID        { return pipeline.PhaseASR }
func (p *ASR) Timeout() time.Duration { return asrTimeout }

// whisperxSegment mirrors one entry of the whisperx JSON transcript.
type whisperxSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker"`
	NoSpeechProb float64 `json:"no_speech_prob"`
	AvgLogprob   float64 `json:"avg_logprob"`
	Words        []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

type whisperxTranscript struct {
	Segments []whisperxSegment `json:"segments"`
}

func (p *ASR) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	in := filepath.Join(env.Scratch, FileVoice)
	outDir := filepath.Join(env.Scratch, "asr")
	if err := ensureDir(outDir); err != nil {
		return pipeline.Fail(err)
	}

	args := []string{
		in,
		"--model", "large-v2",
		"--language", env.Job.Languages.Src,
		"--device", "cpu",
		"--compute_type", "float32",
		"--output_dir", outDir,
		"--output_format", "json",
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		args = append(args, "--diarize", "--hf_token", token)
	}

	if _, err := p.runner.Run(ctx, asrTimeout, p.whisperx, args...); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: asr: %w", err))
	}

	transcript, err := p.readTranscript(filepath.Join(outDir, "pre_voice.json"))
	if err != nil {
		return pipeline.Fail(err)
	}
	if len(transcript.Segments) == 0 {
		return pipeline.Fail(fmt.Errorf("phases: asr: no segments recognised, audio may be silent"))
	}

	segments := convertSegments(transcript.Segments)
	speakers := extractSpeakers(segments)

	return pipeline.Ok(nil, map[string]any{
		"segments": rawJSON(segments),
		"speakers": rawJSON(speakers),
	})
}

func (p *ASR) readTranscript(path string) (*whisperxTranscript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("phases: asr: read transcript: %w", err)
	}
	var t whisperxTranscript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("phases: asr: parse transcript: %w", err)
	}
	return &t, nil
}

// convertSegments maps the recogniser output into job records with stable
// zero-padded identifiers.
func convertSegments(in []whisperxSegment) []job.Segment {
	out := make([]job.Segment, 0, len(in))
	for i, seg := range in {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = defaultSpeaker
		}
		s := job.Segment{
			SegID:     job.SegID(i),
			Start:     seg.Start,
			End:       seg.End,
			SrcText:   strings.TrimSpace(seg.Text),
			SpeakerID: speaker,
			Whisper: job.WhisperInfo{
				NoSpeechProb: seg.NoSpeechProb,
				AvgLogprob:   seg.AvgLogprob,
			},
			Translation: job.SegmentStep{Status: job.TranslationPending},
			TTS:         job.TTSStep{Status: job.TranslationPending},
		}
		for _, w := range seg.Words {
			s.Whisper.Words = append(s.Whisper.Words, job.WordTiming{
				Word: w.Word, Start: w.Start, End: w.End,
			})
		}
		out = append(out, s)
	}
	return out
}

// extractSpeakers derives the unique speaker list, sorted for stable output.
func extractSpeakers(segments []job.Segment) []job.Speaker {
	seen := map[string]bool{}
	for _, seg := range segments {
		seen[seg.SpeakerID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	speakers := make([]job.Speaker, 0, len(ids))
	for _, id := range ids {
		speakers = append(speakers, job.Speaker{
			SpeakerID:    id,
			FallbackMode: job.FallbackNormal,
		})
	}
	return speakers
}

// rawJSON converts a typed value into the generic form metadata merging
// expects, keeping persisted field names.
func rawJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
