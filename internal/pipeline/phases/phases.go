// Package phases contains the concrete implementations of every pipeline
// phase, from download through manifest. Each phase wraps the external
// engines it needs and communicates state back through result metadata.
package phases

import (
	"fmt"
	"os"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
	"github.com/talkdub-lab/talkdub/internal/translate"
)

// Scratch file names shared across phases. Producers and consumers must
// agree on these exactly.
const (
	FileOriginal   = "original.wav"
	FileNormalized = "normalized.wav"
	FileVoice      = "pre_voice.wav"
	FileBGM        = "pre_bgm.wav"
	FileDubVoice   = "dub_voice.wav"
	FileDubMixed   = "dub_mixed.wav"
)

// DubFileName returns the deterministic output name for the dubbed track.
func DubFileName(tgtLang string) string { return fmt.Sprintf("dub_%s.wav", tgtLang) }

// SegmentsFileName returns the deterministic output name for the segment
// metadata document.
func SegmentsFileName(tgtLang string) string { return fmt.Sprintf("segments_%s.json", tgtLang) }

// ManifestFileName is the fixed manifest artifact name.
const ManifestFileName = "manifest.json"

// Set assembles the full ordered phase list from shared collaborators.
type Set struct {
	Runner  *media.Runner
	FFmpeg  *media.FFmpeg
	Engines config.EnginesConfig
	Params  config.PipelineConfig

	// Translator drives the translation phase.
	Translator *translate.Pipeline

	// Client is the raw translation client used for shortened re-translation
	// during timeline fitting.
	Client *translate.Client
}

// All returns every phase in canonical execution order.
func (s *Set) All() []pipeline.Phase {
	synth := NewSynthesizer(s.Runner, s.Engines.QwenTTS, s.FFmpeg)
	return []pipeline.Phase{
		NewDownload(s.Runner, s.FFmpeg, s.Engines.YTDLP),
		NewNormalize(s.FFmpeg),
		NewSeparate(s.Runner, s.Engines.Demucs),
		NewASR(s.Runner, s.Engines.WhisperX),
		NewVAD(s.Runner, s.Engines.SileroVAD),
		NewRefAudio(s.FFmpeg),
		NewHallucination(),
		NewTranslation(s.Translator),
		NewTTS(synth),
		NewTimeline(s.FFmpeg, synth, s.Client, s.Params),
		NewMix(s.FFmpeg, s.Params),
		NewFinalize(s.FFmpeg),
		NewManifest(),
	}
}

// ensureDir creates dir with standard permissions.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("phases: create dir %s: %w", dir, err)
	}
	return nil
}

// fileNonEmpty reports whether path exists with at least min bytes.
func fileNonEmpty(path string, min int64) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() >= min
}

// copySegments returns a deep-enough copy of segs for in-place mutation
// without touching the caller's slice.
func copySegments(segs []job.Segment) []job.Segment {
	out := make([]job.Segment, len(segs))
	copy(out, segs)
	return out
}
