package phases

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

const (
	hallucinationTimeout = 5 * time.Minute

	// frequentPhraseRatio marks a 3-gram as suspicious when it appears in
	// at least this fraction of all segments.
	frequentPhraseRatio = 0.2

	// noSpeechProbCutoff flags segments the recogniser itself doubted.
	noSpeechProbCutoff = 0.7

	// minTextRunes flags abnormally short recognitions.
	minTextRunes = 2
)

// commonPhrases lists recogniser boilerplate per source language. Outro
// catchphrases and channel plugs dominate hallucinated output.
var commonPhrases = map[string][]string{
	"ja": {
		"ご視聴ありがとうございました",
		"チャンネル登録",
		"高評価",
		"コメント欄",
		"次回",
		"字幕",
	},
	"en": {
		"thank you for watching",
		"subscribe",
		"like and subscribe",
		"comment below",
		"next video",
		"subtitles",
	},
	"zh": {
		"感谢观看",
		"订阅",
		"点赞",
		"评论",
		"下一期",
	},
}

var wordPattern = regexp.MustCompile(`\w+`)

// Hallucination flags segments whose recognised text is likely recogniser
// invention rather than actual speech.
type Hallucination struct{}

var _ pipeline.Phase = (*Hallucination)(nil)

func NewHallucination() *Hallucination { return &Hallucination{} }

func (p *Hallucination) Name() string           { return "Hallucination" }
func (p *Hallucination) ID() pipeline.ID        { return pipeline.PhaseHallucination }
func (p *Hallucination) Timeout() time.Duration { return hallucinationTimeout }

func (p *Hallucination) Execute(ctx context.Context, env pipeline.Env) pipeline.Result {
	segments := copySegments(env.Job.Segments)
	phrases := commonPhrases[env.Job.Languages.Src]
	frequent := frequentTrigrams(segments, frequentPhraseRatio)

	for i := range segments {
		seg := &segments[i]
		text := strings.ToLower(seg.SrcText)

		flagged := false
		for _, phrase := range phrases {
			if strings.Contains(text, phrase) {
				flagged = true
				break
			}
		}
		if !flagged {
			for phrase := range frequent {
				if strings.Contains(text, phrase) {
					flagged = true
					break
				}
			}
		}
		if len([]rune(strings.TrimSpace(seg.SrcText))) < minTextRunes {
			flagged = true
		}
		if seg.Whisper.NoSpeechProb > noSpeechProbCutoff {
			flagged = true
		}

		seg.Flags.SuspectedHallucination = flagged
	}

	return pipeline.Ok(nil, map[string]any{"segments": rawJSON(segments)})
}

// frequentTrigrams counts 3-word phrases across all segment texts and
// returns those appearing in at least ratio of the segment count. Looping
// identical phrases are a classic hallucination signature.
func frequentTrigrams(segments []job.Segment, ratio float64) map[string]bool {
	counts := map[string]int{}
	for _, seg := range segments {
		words := wordPattern.FindAllString(strings.ToLower(seg.SrcText), -1)
		for i := 0; i+2 < len(words); i++ {
			counts[strings.Join(words[i:i+3], " ")]++
		}
	}

	threshold := float64(len(segments)) * ratio
	frequent := map[string]bool{}
	for phrase, n := range counts {
		if float64(n) >= threshold {
			frequent[phrase] = true
		}
	}
	return frequent
}
