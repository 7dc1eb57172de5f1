package pipeline

import (
	"regexp"
	"strings"
)

// translation pairs a technical error pattern with the message shown to the
// job owner. Patterns are matched case-insensitively against the raw error
// text, first match wins.
type translation struct {
	pattern *regexp.Regexp
	message string
}

var errorTranslations = []translation{
	{
		regexp.MustCompile(`(?i)ERROR: \[youtube\] .+: Video unavailable`),
		"The video cannot be accessed. It may have been deleted, made private, or region-locked.",
	},
	{
		regexp.MustCompile(`(?i)ERROR: \[youtube\] .+: This video requires payment`),
		"The video is paid content and cannot be processed.",
	},
	{
		regexp.MustCompile(`(?i)ERROR: \[youtube\] .+: Sign in to confirm your age`),
		"The video requires age verification and cannot be processed.",
	},
	{
		regexp.MustCompile(`(?i)Invalid data found when processing input`),
		"The audio file format is invalid. The file may be corrupted.",
	},
	{
		regexp.MustCompile(`(?i)Conversion failed`),
		"Audio conversion failed. The file format may not be supported.",
	},
	{
		regexp.MustCompile(`(?i)RuntimeError: The size of tensor .+ must match`),
		"Audio separation ran out of memory. The video may be too long.",
	},
	{
		regexp.MustCompile(`(?i)No speech found in audio`),
		"No speech was detected. The audio may be silent or noise only.",
	},
	{
		regexp.MustCompile(`(?i)Language .+ not supported`),
		"The requested language is not supported.",
	},
	{
		regexp.MustCompile(`(?i)Timeout`),
		"Processing exceeded the time limit. The video may be too long, or the server is under heavy load.",
	},
	{
		regexp.MustCompile(`(?i)Out of memory|OOM`),
		"The server ran out of memory. The video may be too long, or too many jobs are running at once.",
	},
	{
		regexp.MustCompile(`(?i)Connection (?:refused|timeout|reset)`),
		"A network connection failed. This is likely temporary, please try again later.",
	},
}

var (
	bracketedDetail = regexp.MustCompile(`\[.*?\]`)
	fileLineDetail  = regexp.MustCompile(`File ".*?", line \d+`)
	collapseSpaces  = regexp.MustCompile(`\s+`)
)

const maxUserErrorLen = 200

// TranslateError turns a technical error message into one suitable for the
// job owner. Unknown errors are stripped of internal detail and truncated.
func TranslateError(technical string) string {
	for _, t := range errorTranslations {
		if t.pattern.MatchString(technical) {
			return t.message
		}
	}

	simplified := bracketedDetail.ReplaceAllString(technical, "")
	simplified = fileLineDetail.ReplaceAllString(simplified, "")
	simplified = collapseSpaces.ReplaceAllString(simplified, " ")
	simplified = strings.TrimSpace(simplified)

	if len(simplified) > maxUserErrorLen {
		runes := []rune(simplified)
		if len(runes) > maxUserErrorLen {
			simplified = string(runes[:maxUserErrorLen]) + "..."
		}
	}
	if simplified == "" {
		return "An unexpected error occurred."
	}
	return simplified
}
