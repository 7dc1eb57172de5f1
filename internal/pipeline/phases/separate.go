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

const (
	separateTimeout = 2 * time.Hour

	// demucsModel is the separation model demucs selects by default; its
	// name appears in the output directory layout.
	demucsModel = "mdx_extra_q"

	// minVoiceBytes guards against empty or near-empty separation output.
	minVoiceBytes = 100 * 1024
)

// Separate splits the normalized audio into a voice stem and a background
// stem using demucs.
type Separate struct {
	runner *media.Runner
	demucs string
}

var _ pipeline.Phase = (*Separate)(nil)

func NewSeparate(runner *media.Runner, demucs string) *Separate {
	if demucs == "" {
		demucs = "demucs"
	}
	return &Separate{runner: runner, demucs: demucs}
}

func (p *Separate) Name() string           { return "Separate" }
func (p *Separate) ID() pipeline.ID        { return pipeline.PhaseSeparate }
func (p *Separate) Timeout() time.Duration { return separateTimeout }

func (p *Separate) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	in := filepath.Join(env.Scratch, FileNormalized)
	workDir := filepath.Join(env.Scratch, "demucs_output")
	if err := ensureDir(workDir); err != nil {
		return pipeline.Fail(err)
	}

	_, err := p.runner.Run(ctx, separateTimeout, p.demucs,
		"--two-stems=vocals",
		"--device", "cpu",
		"--out", workDir,
		in,
	)
	if err != nil {
		return pipeline.Fail(fmt.Errorf("phases: separate: %w", err))
	}

	stem := filepath.Base(in)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	modelDir := filepath.Join(workDir, demucsModel, stem)

	voice := filepath.Join(env.Scratch, FileVoice)
	bgm := filepath.Join(env.Scratch, FileBGM)

	if err := os.Rename(filepath.Join(modelDir, "vocals.wav"), voice); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: separate: vocals stem missing: %w", err))
	}
	// The background stem is optional; mixing degrades gracefully without it.
	if err := os.Rename(filepath.Join(modelDir, "no_vocals.wav"), bgm); err != nil {
		os.Remove(bgm)
	}

	os.RemoveAll(workDir)

	if !fileNonEmpty(voice, minVoiceBytes) {
		// Keep the normalized input so a retry can run separation again.
		return pipeline.Fail(fmt.Errorf("phases: separate: %s below %d bytes, separation likely failed", FileVoice, minVoiceBytes))
	}
	os.Remove(in)

	files := map[string]string{"pre_voice": voice}
	if fileNonEmpty(bgm, 1) {
		files["pre_bgm"] = bgm
	}
	return pipeline.Ok(files, nil)
}
