package delivery

import (
	"fmt"
	"strings"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline/phases"
)

var languageNames = map[string]string{
	"ja": "Japanese",
	"zh": "Chinese",
	"en": "English",
	"de": "German",
	"fr": "French",
	"it": "Italian",
	"es": "Spanish",
	"pt": "Portuguese",
	"ru": "Russian",
	"ko": "Korean",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// UploadGuide renders the YouTube Studio upload walkthrough bundled with
// every delivery archive.
func UploadGuide(j *job.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TalkDub - Uploading your dubbed audio track to YouTube\n")
	fmt.Fprintf(&b, "======================================================\n\n")
	fmt.Fprintf(&b, "Video:           %s\n", j.Source.URL)
	fmt.Fprintf(&b, "Video ID:        %s\n", j.Source.VideoID)
	fmt.Fprintf(&b, "Dubbed language: %s (%s)\n\n", languageName(j.Languages.Tgt), j.Languages.Tgt)
	b.WriteString(`Steps
-----
1. Open YouTube Studio (https://studio.youtube.com) with the channel
   that owns the original video.
2. In the left menu choose "Subtitles", then select the video above.
3. Click "Add language" and pick the dubbed language.
4. In the "Audio" column choose "Add", then upload the file
   `)
	b.WriteString(phases.DubFileName(j.Languages.Tgt))
	b.WriteString(` from this archive.
5. Preview the track with the built-in player, then click "Publish".

Notes
-----
- Multi-language audio is currently rolled out gradually by YouTube.
  If the "Audio" column is missing, your channel does not have the
  feature enabled yet.
- The dubbed track matches the original video length exactly, so no
  trimming is needed before upload.
`)
	return b.String()
}

// Readme renders the delivery archive's README.
func Readme(j *job.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TalkDub delivery\n")
	fmt.Fprintf(&b, "================\n\n")
	fmt.Fprintf(&b, "Job ID:          %s\n", j.JobID)
	fmt.Fprintf(&b, "Source video:    %s\n", j.Source.URL)
	fmt.Fprintf(&b, "Languages:       %s -> %s\n", languageName(j.Languages.Src), languageName(j.Languages.Tgt))
	if j.ExpiresAt != nil {
		fmt.Fprintf(&b, "Available until: %s\n", j.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "\nContents\n--------\n")
	fmt.Fprintf(&b, "%-24s dubbed audio track (WAV, full video length)\n", phases.DubFileName(j.Languages.Tgt))
	fmt.Fprintf(&b, "%-24s per-segment timing and text\n", phases.SegmentsFileName(j.Languages.Tgt))
	fmt.Fprintf(&b, "%-24s job metadata and file inventory\n", phases.ManifestFileName)
	fmt.Fprintf(&b, "%-24s YouTube Studio upload walkthrough\n", "UPLOAD_GUIDE.txt")
	b.WriteString(`
Good to know
------------
- Deliveries are removed 72 hours after completion. Download and keep
  a local copy of anything you need.
- The dub replaces the voice track only. Lip movements are not
  altered, so minor mismatches between mouth and audio are expected.

Technical details
-----------------
- Speech recognition: WhisperX (large-v2)
- Translation:        Groq LLM API
- Voice synthesis:    Qwen3-TTS with per-speaker reference audio
`)
	return b.String()
}
