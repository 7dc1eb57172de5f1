package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const manifestTimeout = 5 * time.Minute

// Manifest writes the segment metadata document and the job manifest into
// the artifact directory, completing the output set.
type Manifest struct{}

var _ pipeline.Phase = (*Manifest)(nil)

func NewManifest() *Manifest { return &Manifest{} }

func (p *Manifest) Name() string           { return "Manifest" }
func (p *Manifest) ID() pipeline.ID        { return pipeline.PhaseManifest }
func (p *Manifest) Timeout() time.Duration { return manifestTimeout }

// manifestDoc is the shipped description of a finished dub.
type manifestDoc struct {
	JobID       string        `json:"job_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Source      job.Source    `json:"source"`
	Languages   job.Languages `json:"languages"`
	DurationSec float64       `json:"duration_sec"`
	Params      job.Params    `json:"pipeline_params"`
	Speakers    int           `json:"speaker_count"`
	Segments    int           `json:"segment_count"`
	Dubbed      int           `json:"dubbed_segment_count"`
	Files       manifestFiles `json:"files"`
}

type manifestFiles struct {
	Dub      string `json:"dub"`
	Segments string `json:"segments"`
}

func (p *Manifest) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	if err := ensureDir(env.Output); err != nil {
		return pipeline.Fail(err)
	}

	tgt := env.Job.Languages.Tgt
	segmentsPath := filepath.Join(env.Output, SegmentsFileName(tgt))
	manifestPath := filepath.Join(env.Output, ManifestFileName)

	if err := writeJSON(segmentsPath, env.Job.Segments); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: manifest: %w", err))
	}

	dubbed := 0
	for _, seg := range env.Job.Segments {
		if seg.TTS.Status == job.TranslationCompleted {
			dubbed++
		}
	}

	doc := manifestDoc{
		JobID:       env.Job.JobID,
		GeneratedAt: time.Now().UTC(),
		Source:      env.Job.Source,
		Languages:   env.Job.Languages,
		DurationSec: env.Job.Media.DurationSec,
		Params:      env.Job.Params,
		Speakers:    len(env.Job.Speakers),
		Segments:    len(env.Job.Segments),
		Dubbed:      dubbed,
		Files: manifestFiles{
			Dub:      DubFileName(tgt),
			Segments: SegmentsFileName(tgt),
		},
	}
	if err := writeJSON(manifestPath, doc); err != nil {
		return pipeline.Fail(fmt.Errorf("phases: manifest: %w", err))
	}

	return pipeline.Ok(
		map[string]string{"segments": segmentsPath, "manifest": manifestPath},
		map[string]any{
			"outputs": map[string]any{
				"segments_path": segmentsPath,
				"manifest_path": manifestPath,
			},
			"progress": map[string]any{
				"completed_segments": dubbed,
				"total_segments":     len(env.Job.Segments),
				"percent":            100.0,
			},
		},
	)
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, raw, 0o644)
}
