package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/talkdub-lab/talkdub/pkg/provider/llm"
)

// Sampling and sizing for the two request shapes. Batch translation runs
// cool to keep the JSON contract stable; shortened re-translation may be a
// little freer but is tightly capped.
const (
	batchTemperature     = 0.3
	batchMaxTokens       = 4096
	shortenedTemperature = 0.5
	shortenedMaxTokens   = 512
)

// languageNames maps supported codes to the English names used in prompts.
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

// ErrorClass drives the per-chunk retry policy.
type ErrorClass int

const (
	// ClassTransient errors (5xx, timeouts, unknown) retry with
	// exponential backoff.
	ClassTransient ErrorClass = iota

	// ClassRateLimit errors wait a full minute before the next attempt.
	ClassRateLimit

	// ClassConnection errors retry with exponential backoff.
	ClassConnection

	// ClassClient errors (4xx other than 429) are not retried.
	ClassClient
)

// String names the class for logs and metric labels.
func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassConnection:
		return "connection"
	case ClassClient:
		return "client"
	default:
		return "transient"
	}
}

// Classify sorts an LLM call failure into its retry class by inspecting
// the error text. Providers do not expose typed errors uniformly, so this
// is necessarily pattern-based.
func Classify(err error) ErrorClass {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ClassRateLimit
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return ClassConnection
	case strings.Contains(msg, "400"), strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "404"), strings.Contains(msg, "invalid request"), strings.Contains(msg, "context length"):
		return ClassClient
	default:
		return ClassTransient
	}
}

// Client issues translation requests against an LLM provider using a strict
// JSON response contract.
type Client struct {
	provider llm.Provider

	// Name identifies the backing provider in segment records ("groq",
	// "openai", ...).
	Name string

	// Temperature overrides the batch sampling temperature when non-zero.
	Temperature float64
}

// NewClient wraps the given provider.
func NewClient(provider llm.Provider, name string) *Client {
	return &Client{provider: provider, Name: name}
}

func (c *Client) batchTemperature() float64 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return batchTemperature
}

const batchSystemPrompt = `You are a professional translator specialized in video subtitle translation from %s to %s.

IMPORTANT RULES:
1. Preserve the meaning and tone of the original speech.
2. Keep translations concise and natural for spoken delivery.
3. Maintain consistent terminology across segments.
4. Do not add annotations, explanations, or content not present in the source.
5. If a segment is a sound effect marker (like [laugh], [music]), keep it as-is.

Respond with JSON only, in exactly this shape:
{"translations": [{"id": 0, "translation": "..."}, ...]}
The array must contain one entry per input segment, with matching ids.`

// TranslateBatch sends one LLM request translating texts in order from
// srcLang to tgtLang and returns the translations aligned with the input.
// The response must satisfy the JSON contract exactly: matching count,
// matching ids, and a translation string per item.
func (c *Client) TranslateBatch(ctx context.Context, texts []string, srcLang, tgtLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following %d segments from %s to %s:\n\n", len(texts), languageName(srcLang), languageName(tgtLang))
	for i, text := range texts {
		fmt.Fprintf(&b, "%d: %s\n", i, text)
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(batchSystemPrompt, languageName(srcLang), languageName(tgtLang)),
		Messages: []llm.Message{
			{Role: "user", Content: b.String()},
		},
		Temperature: c.batchTemperature(),
		MaxTokens:   batchMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: batch request: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("translate: batch request: nil response")
	}

	return parseBatchResponse(resp.Content, len(texts))
}

const shortenedSystemPrompt = `You are a professional translator specialized in video subtitle translation from %s to %s.
Produce a SHORTER translation that preserves the core meaning. The output must fit when spoken in limited time.
Respond with the translation text only, no quotes, no explanations.`

// TranslateShortened re-translates a single text asking for a more compact
// rendition, for segments whose synthesised audio would not fit their slot
// even at maximum tempo stretch. Output longer than maxChars is truncated.
func (c *Client) TranslateShortened(ctx context.Context, text, srcLang, tgtLang string, maxChars int) (string, error) {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(shortenedSystemPrompt, languageName(srcLang), languageName(tgtLang)),
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Translate in at most %d characters: %s", maxChars, text)},
		},
		Temperature: shortenedTemperature,
		MaxTokens:   shortenedMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("translate: shortened request: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("translate: shortened request: nil response")
	}

	out := strings.TrimSpace(stripCodeFences(resp.Content))
	if runes := []rune(out); maxChars > 0 && len(runes) > maxChars {
		out = strings.TrimSpace(string(runes[:maxChars]))
	}
	if out == "" {
		return "", fmt.Errorf("translate: shortened request: empty output")
	}
	return out, nil
}

type batchResponse struct {
	Translations []batchItem `json:"translations"`
}

type batchItem struct {
	ID          *int    `json:"id"`
	Translation *string `json:"translation"`
}

// parseBatchResponse decodes the JSON contract, tolerating code-fence
// wrappers, and returns translations ordered by id. Shape mismatch, count
// mismatch, and missing fields are errors.
func parseBatchResponse(content string, want int) ([]string, error) {
	cleaned := stripCodeFences(content)

	var resp batchResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("translate: response is not the expected JSON shape: %w", err)
	}
	if len(resp.Translations) != want {
		return nil, fmt.Errorf("translate: response has %d translations, want %d", len(resp.Translations), want)
	}

	items := make([]batchItem, len(resp.Translations))
	copy(items, resp.Translations)
	for i, it := range items {
		if it.ID == nil {
			return nil, fmt.Errorf("translate: item %d is missing id", i)
		}
		if it.Translation == nil {
			return nil, fmt.Errorf("translate: item %d is missing translation", i)
		}
	}
	sort.Slice(items, func(i, j int) bool { return *items[i].ID < *items[j].ID })

	out := make([]string, want)
	for i, it := range items {
		if *it.ID != i {
			return nil, fmt.Errorf("translate: response ids are not 0..%d", want-1)
		}
		out[i] = *it.Translation
	}
	return out, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, if one wraps the content.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the optional language tag line ("json").
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
