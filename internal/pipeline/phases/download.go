package phases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const downloadTimeout = 30 * time.Minute

// Download fetches the submitted video's audio track with yt-dlp and
// records the media duration.
type Download struct {
	runner *media.Runner
	ffmpeg *media.FFmpeg
	ytdlp  string
}

var _ pipeline.Phase = (*Download)(nil)

// NewDownload builds the download phase. ytdlp may be empty to use PATH.
func NewDownload(runner *media.Runner, ffmpeg *media.FFmpeg, ytdlp string) *Download {
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	return &Download{runner: runner, ffmpeg: ffmpeg, ytdlp: ytdlp}
}

func (p *Download) Name() string           { return "Download" }
func (p *Download) ID() pipeline.ID        { return pipeline.PhaseDownload }
func (p *Download) Timeout() time.Duration { return downloadTimeout }

func (p *Download) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	if err := ensureDir(env.Scratch); err != nil {
		return pipeline.Fail(err)
	}

	out := filepath.Join(env.Scratch, FileOriginal)
	template := out[:len(out)-len(filepath.Ext(out))] + ".%(ext)s"

	_, err := p.runner.Run(ctx, downloadTimeout, p.ytdlp,
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--output", template,
		"--no-playlist",
		"--no-warnings",
		env.Job.Source.URL,
	)
	if err != nil {
		return pipeline.Fail(fmt.Errorf("phases: download: %w", err))
	}
	if !fileNonEmpty(out, 1) {
		return pipeline.Fail(fmt.Errorf("phases: download: %s was not produced", FileOriginal))
	}

	duration, err := p.ffmpeg.ProbeDuration(ctx, out)
	if err != nil {
		return pipeline.Fail(fmt.Errorf("phases: download: probe duration: %w", err))
	}

	return pipeline.Ok(
		map[string]string{"original": out},
		map[string]any{"media": map[string]any{"duration_sec": duration}},
	)
}
