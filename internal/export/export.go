// Package export assembles stored reports into self-contained markdown
// documents: the machine-readable preamble, the annotated body, and a
// rebuilt Sources section listing every cited URL.
package export

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metadata describes the exported document header. The header lines are
// the same two the segmenter folds into its Report Information section,
// so an exported document round-trips through the render pipeline.
type Metadata struct {
	GeneratedAt time.Time
	AIGenerated bool
	Model       string
	ReportType  string
	// Cached marks reports whose text was served from the generator's
	// response cache rather than produced fresh.
	Cached bool
}

// Source is one cited URL with its bracket index.
type Source struct {
	Index int
	URL   string
}

var (
	citationMarkerRe = regexp.MustCompile(`\[(\d{1,3})\]`)
	preambleRe       = regexp.MustCompile(`(?i)^generated[^\n]*\nai-generated:`)
)

// Document assembles the full export: header, body, rebuilt Sources section.
// Bodies that already open with their own preamble keep it; Document never
// stacks a second header.
func Document(meta Metadata, body string, sources []Source) string {
	var b strings.Builder
	trimmed := strings.TrimSpace(body)
	if !preambleRe.MatchString(trimmed) {
		b.WriteString(Header(meta))
		b.WriteString("\n\n")
	}
	b.WriteString(WithSources(trimmed, sources))
	b.WriteString("\n")
	return b.String()
}

// Header renders the two preamble lines plus optional provenance.
func Header(meta Metadata) string {
	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	var b strings.Builder
	b.WriteString("Generated ")
	b.WriteString(generated.Format("Jan 2, 2006"))
	if meta.Model != "" {
		b.WriteString(" by ")
		b.WriteString(meta.Model)
	}
	b.WriteString("\nAI-Generated: ")
	b.WriteString(strconv.FormatBool(meta.AIGenerated))
	// Stays on the AI-Generated line so the preamble keeps its two-line shape.
	if meta.Cached {
		b.WriteString(" (served from cache)")
	}
	return b.String()
}

// WithSources ensures the body ends with a complete Sources section. It:
//  1. Parses inline citation markers used in the body (e.g., [1], [2])
//  2. Removes any existing "## Sources" section from the body
//  3. Appends a rebuilt Sources section from the provided list,
//     marking which entries were cited inline
func WithSources(body string, sources []Source) string {
	s := strings.TrimSpace(body)
	if len(sources) == 0 {
		return s
	}

	used := map[int]bool{}
	for _, m := range citationMarkerRe.FindAllStringSubmatch(s, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			used[n] = true
		}
	}

	// Truncate from the LAST "## Sources" occurrence so body text that
	// merely mentions the heading is not cut.
	cut := s
	lower := strings.ToLower(s)
	if idx := strings.LastIndex(lower, "## sources"); idx != -1 {
		cut = strings.TrimSpace(s[:idx])
	}

	rebuilt := make([]Source, len(sources))
	copy(rebuilt, sources)
	sort.SliceStable(rebuilt, func(i, j int) bool {
		return rebuilt[i].Index < rebuilt[j].Index
	})

	var b strings.Builder
	if cut != "" {
		b.WriteString(strings.TrimRight(cut, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("## Sources\n")
	for i, src := range rebuilt {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(src.Index))
		b.WriteString("] ")
		b.WriteString(src.URL)
		if used[src.Index] {
			b.WriteString(" - Used inline")
		} else {
			b.WriteString(" - Additional source")
		}
	}
	return b.String()
}
