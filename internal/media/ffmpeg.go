package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
)

// Broadcast loudness target applied during normalization
// (EBU R128: -23 LUFS integrated, -2 dBTP peak, 7 LU range).
const loudnormFilter = "loudnorm=I=-23:TP=-2:LRA=7"

// Pipeline-wide audio format: mono 24 kHz PCM, what the recogniser and the
// synthesiser both expect.
const (
	SampleRate = 24000
	Channels   = 1
)

// FFmpeg wraps the ffmpeg and ffprobe binaries for the conversions the
// pipeline needs.
type FFmpeg struct {
	runner  *Runner
	ffmpeg  string
	ffprobe string
}

// NewFFmpeg creates an FFmpeg wrapper using the binaries named in engines;
// empty names resolve from PATH.
func NewFFmpeg(runner *Runner, engines config.EnginesConfig) *FFmpeg {
	ff := engines.FFmpeg
	if ff == "" {
		ff = "ffmpeg"
	}
	probe := engines.FFprobe
	if probe == "" {
		probe = "ffprobe"
	}
	return &FFmpeg{runner: runner, ffmpeg: ff, ffprobe: probe}
}

// ProbeDuration returns the duration of the media file in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Run(ctx, 2*time.Minute, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("media: probe %s: %w", path, err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out.Stdout), &probe); err != nil {
		return 0, fmt.Errorf("media: parse probe output for %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration %q: %w", probe.Format.Duration, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("media: non-positive duration %.3f for %s", dur, path)
	}
	return dur, nil
}

// ExtractAudio converts any container to the pipeline's mono 24 kHz wav.
func (f *FFmpeg) ExtractAudio(ctx context.Context, in, out string, timeout time.Duration) error {
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y", "-i", in,
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return fmt.Errorf("media: extract audio from %s: %w", in, err)
	}
	return nil
}

// Normalize applies the broadcast loudness target to a wav.
func (f *FFmpeg) Normalize(ctx context.Context, in, out string, timeout time.Duration) error {
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y", "-i", in,
		"-af", loudnormFilter,
		"-ar", strconv.Itoa(SampleRate),
		out,
	)
	if err != nil {
		return fmt.Errorf("media: normalize %s: %w", in, err)
	}
	return nil
}

// ExtractClip copies the [start, end) window of a wav to out.
func (f *FFmpeg) ExtractClip(ctx context.Context, in, out string, start, end float64, timeout time.Duration) error {
	if end <= start {
		return fmt.Errorf("media: invalid clip window [%.3f, %.3f)", start, end)
	}
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", in,
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return fmt.Errorf("media: extract clip from %s: %w", in, err)
	}
	return nil
}

// Atempo stretches a wav's tempo by factor without changing pitch. ffmpeg's
// atempo filter accepts [0.5, 2.0] per stage; factors outside are chained.
func (f *FFmpeg) Atempo(ctx context.Context, in, out string, factor float64, timeout time.Duration) error {
	if factor <= 0 {
		return fmt.Errorf("media: invalid atempo factor %.3f", factor)
	}
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y", "-i", in,
		"-filter:a", atempoChain(factor),
		out,
	)
	if err != nil {
		return fmt.Errorf("media: atempo %s: %w", in, err)
	}
	return nil
}

// atempoChain builds the filter expression for factor, chaining stages when
// the factor leaves the filter's [0.5, 2.0] per-stage range.
func atempoChain(factor float64) string {
	var parts []string
	for factor > 2.0 {
		parts = append(parts, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		parts = append(parts, "atempo=0.5")
		factor /= 0.5
	}
	parts = append(parts, fmt.Sprintf("atempo=%.4f", factor))

	chain := parts[0]
	for _, p := range parts[1:] {
		chain += "," + p
	}
	return chain
}

// Clip places an audio file at a point on an output timeline.
type Clip struct {
	Path     string
	StartSec float64
}

// AssembleTrack lays clips onto a silent base track of durationSec seconds.
// Overlapping clips are summed without renormalization so individual levels
// survive.
func (f *FFmpeg) AssembleTrack(ctx context.Context, clips []Clip, durationSec float64, out string, timeout time.Duration) error {
	if durationSec <= 0 {
		return fmt.Errorf("media: invalid track duration %.3f", durationSec)
	}

	args := []string{
		"-y",
		"-f", "lavfi",
		"-t", formatSeconds(durationSec),
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", SampleRate),
	}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}

	var filter strings.Builder
	labels := []string{"[0]"}
	for i, c := range clips {
		delayMS := int(c.StartSec * 1000)
		fmt.Fprintf(&filter, "[%d]adelay=%d:all=1[d%d];", i+1, delayMS, i+1)
		labels = append(labels, fmt.Sprintf("[d%d]", i+1))
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:duration=first:normalize=0[track]",
		strings.Join(labels, ""), len(labels))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[track]",
		"-c:a", "pcm_s16le",
		out,
	)
	if _, err := f.runner.Run(ctx, timeout, f.ffmpeg, args...); err != nil {
		return fmt.Errorf("media: assemble track: %w", err)
	}
	return nil
}

// DuckMix mixes a voice track over a background track, attenuating the
// background by duckDB decibels (negative values reduce level).
func (f *FFmpeg) DuckMix(ctx context.Context, voice, background, out string, duckDB float64, timeout time.Duration) error {
	filter := fmt.Sprintf("[1]volume=%.1fdB[bg];[0][bg]amix=inputs=2:duration=first:normalize=0[mix]", duckDB)
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y",
		"-i", voice,
		"-i", background,
		"-filter_complex", filter,
		"-map", "[mix]",
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return fmt.Errorf("media: duck mix: %w", err)
	}
	return nil
}

// PadTrim forces a wav to exactly durationSec seconds, padding with silence
// or trimming as needed.
func (f *FFmpeg) PadTrim(ctx context.Context, in, out string, durationSec float64, timeout time.Duration) error {
	if durationSec <= 0 {
		return fmt.Errorf("media: invalid target duration %.3f", durationSec)
	}
	_, err := f.runner.Run(ctx, timeout, f.ffmpeg,
		"-y", "-i", in,
		"-af", fmt.Sprintf("apad,atrim=0:%s", formatSeconds(durationSec)),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return fmt.Errorf("media: pad/trim %s: %w", in, err)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
