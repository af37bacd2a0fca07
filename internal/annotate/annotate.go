// Package annotate tags markdown hyperlinks with numeric source markers so a
// reader can tie a claim back to the grounding source it came from.
package annotate

import (
	"regexp"
	"strconv"
	"strings"
)

// SourceAssessment ties a grounding source URL to its display index. The
// index is caller-assigned, positive, and stable for the lifetime of the
// rendered message.
type SourceAssessment struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// inlineLinkRe matches markdown inline links, capturing an optional leading
// bang so image syntax can be recognized and skipped. Labels containing "]"
// are not supported.
var inlineLinkRe = regexp.MustCompile(`(!?)\[[^\]]*\]\(([^)]*)\)`)

// Annotate appends a "[N]" marker after every inline link whose target is a
// known source URL. Unmatched links and every other byte pass through
// untouched, so output length is never below input length. The function is
// not idempotent: running it twice appends markers twice. Callers annotate
// exactly once per render of a given raw text.
func Annotate(text string, assessments []SourceAssessment) string {
	if len(assessments) == 0 {
		return text
	}

	// Later duplicates win on purpose; report authors rely on it.
	byURL := make(map[string]int, len(assessments))
	for _, a := range assessments {
		byURL[strings.TrimSpace(a.URL)] = a.Index
	}

	matches := inlineLinkRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 6*len(matches))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m[1]])
		prev = m[1]
		if m[3] > m[2] {
			// Leading "!" means image syntax; images are never annotated.
			continue
		}
		target := strings.TrimSpace(text[m[4]:m[5]])
		if n, ok := byURL[target]; ok {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(n))
			b.WriteByte(']')
		}
	}
	b.WriteString(text[prev:])
	return b.String()
}
