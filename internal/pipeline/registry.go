package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
)

// ID is a stable phase identifier. The registry keys every dependency
// lookup by ID, so renaming one breaks resumability of persisted jobs.
type ID string

const (
	PhaseDownload      ID = "download"
	PhaseNormalize     ID = "normalize"
	PhaseSeparate      ID = "separate"
	PhaseASR           ID = "asr"
	PhaseVAD           ID = "vad"
	PhaseRefAudio      ID = "ref_audio"
	PhaseHallucination ID = "hallucination"
	PhaseTranslation   ID = "translation"
	PhaseTTS           ID = "tts"
	PhaseTimeline      ID = "timeline"
	PhaseMix           ID = "mix"
	PhaseFinalize      ID = "finalize"
	PhaseManifest      ID = "manifest"
)

// Order is the canonical phase sequence. The orchestrator runs phases in
// exactly this order and [NextAfter] resumes interrupted jobs against it.
var Order = []ID{
	PhaseDownload,
	PhaseNormalize,
	PhaseSeparate,
	PhaseASR,
	PhaseVAD,
	PhaseRefAudio,
	PhaseHallucination,
	PhaseTranslation,
	PhaseTTS,
	PhaseTimeline,
	PhaseMix,
	PhaseFinalize,
	PhaseManifest,
}

// Spec declares what a phase needs before it may run and how long it is
// expected to take.
type Spec struct {
	// Files are scratch-relative paths that must exist and be non-empty.
	Files []string

	// Fields are dotted paths into the job record's JSON form that must be
	// present and non-empty, e.g. "languages.src_lang" or "segments".
	Fields []string

	// EnvKeys are environment variables that must be set and non-empty.
	EnvKeys []string

	// EstimatedMinutes is the rough wall-clock estimate used for ETA
	// reporting. It carries no scheduling weight.
	EstimatedMinutes float64
}

// Registry maps every phase to its preconditions.
var Registry = map[ID]Spec{
	PhaseDownload: {
		Fields:           []string{"source.url"},
		EstimatedMinutes: 5,
	},
	PhaseNormalize: {
		Files:            []string{"original.wav"},
		Fields:           []string{"media.duration_sec"},
		EstimatedMinutes: 10,
	},
	PhaseSeparate: {
		Files:            []string{"normalized.wav"},
		Fields:           []string{"media.duration_sec"},
		EstimatedMinutes: 60,
	},
	PhaseASR: {
		Files:            []string{"pre_voice.wav"},
		Fields:           []string{"languages.src_lang"},
		EnvKeys:          []string{"HF_TOKEN"},
		EstimatedMinutes: 120,
	},
	PhaseVAD: {
		Files:            []string{"pre_voice.wav"},
		Fields:           []string{"segments"},
		EstimatedMinutes: 15,
	},
	PhaseRefAudio: {
		Files:            []string{"pre_voice.wav"},
		Fields:           []string{"segments", "speakers"},
		EstimatedMinutes: 5,
	},
	PhaseHallucination: {
		Fields:           []string{"segments", "languages.src_lang"},
		EstimatedMinutes: 2,
	},
	PhaseTranslation: {
		Fields:           []string{"segments", "languages.src_lang", "languages.tgt_lang"},
		EnvKeys:          []string{"GROQ_API_KEY"},
		EstimatedMinutes: 20,
	},
	PhaseTTS: {
		Files:            []string{"pre_voice.wav"},
		Fields:           []string{"segments", "speakers", "languages.tgt_lang"},
		EnvKeys:          []string{"HF_TOKEN"},
		EstimatedMinutes: 180,
	},
	PhaseTimeline: {
		Fields:           []string{"segments", "media.duration_sec"},
		EstimatedMinutes: 10,
	},
	PhaseMix: {
		Files:            []string{"dub_voice.wav"},
		Fields:           []string{"media.duration_sec"},
		EstimatedMinutes: 20,
	},
	PhaseFinalize: {
		Files:            []string{"dub_mixed.wav"},
		Fields:           []string{"languages.tgt_lang"},
		EstimatedMinutes: 10,
	},
	PhaseManifest: {
		Fields:           []string{"outputs", "segments"},
		EstimatedMinutes: 1,
	},
}

// IndexOf returns the position of id in [Order], or -1 when unknown.
func IndexOf(id ID) int {
	for i, p := range Order {
		if p == id {
			return i
		}
	}
	return -1
}

// NextAfter returns the phase following id in [Order]. The second return is
// false when id is the last phase or unknown.
func NextAfter(id ID) (ID, bool) {
	i := IndexOf(id)
	if i < 0 || i+1 >= len(Order) {
		return "", false
	}
	return Order[i+1], true
}

// EstimatedRemaining sums the estimates of every phase from id (inclusive)
// to the end of the sequence.
func EstimatedRemaining(id ID) time.Duration {
	i := IndexOf(id)
	if i < 0 {
		return 0
	}
	var minutes float64
	for _, p := range Order[i:] {
		minutes += Registry[p].EstimatedMinutes
	}
	return time.Duration(minutes * float64(time.Minute))
}

// PreconditionError reports an unmet phase dependency. It is a definitive
// failure: retrying the phase without external change cannot fix it.
type PreconditionError struct {
	Phase   ID
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("pipeline: phase %s preconditions not met: %s",
		e.Phase, strings.Join(e.Missing, "; "))
}

// ValidatePreconditions checks the registry entry for phase against env.
// It returns a [PreconditionError] listing every unmet dependency, or nil
// when everything the phase needs is in place.
func ValidatePreconditions(phase ID, env Env) error {
	spec, ok := Registry[phase]
	if !ok {
		return fmt.Errorf("pipeline: unknown phase %q", phase)
	}

	var missing []string
	for _, f := range spec.Files {
		path := filepath.Join(env.Scratch, f)
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			missing = append(missing, fmt.Sprintf("required file %s is missing or empty", f))
		}
	}

	if len(spec.Fields) > 0 {
		doc, err := jobDocument(env.Job)
		if err != nil {
			return fmt.Errorf("pipeline: phase %s: encode job record: %w", phase, err)
		}
		for _, field := range spec.Fields {
			if !fieldPresent(doc, field) {
				missing = append(missing, fmt.Sprintf("required job field %s is missing or empty", field))
			}
		}
	}

	for _, key := range spec.EnvKeys {
		if os.Getenv(key) == "" {
			missing = append(missing, fmt.Sprintf("required environment variable %s is not set", key))
		}
	}

	if len(missing) > 0 {
		return &PreconditionError{Phase: phase, Missing: missing}
	}
	return nil
}

// jobDocument renders the record to its persisted JSON shape so dotted
// field paths address the same names the registry declares.
func jobDocument(j *job.Job) (map[string]any, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// fieldPresent walks a dotted path through nested JSON objects. A field is
// present when the final value is non-nil and, for strings, arrays, and
// objects, non-empty.
func fieldPresent(doc map[string]any, path string) bool {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[part]
		if !ok {
			return false
		}
	}
	switch v := cur.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
