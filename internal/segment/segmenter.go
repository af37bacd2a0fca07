// Package segment converts freeform LLM-generated fact-check reports into an
// ordered sequence of titled sections for structured rendering. The input is
// adversarial by construction: headings may be missing, duplicated, or
// malformed, and the generator sometimes emits unrelated code boilerplate
// instead of report prose. Segmentation therefore degrades instead of
// failing, collapsing unstructured input into a single pseudo-section.
package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// Section is one renderable unit of a report.
type Section struct {
	// Title is the display title, inferred when the heading carried none.
	Title string `json:"title"`
	// RawTitleLine is the exact heading line matched, or a synthetic label
	// for pseudo-sections. Used for trimming only, never re-rendered.
	RawTitleLine string `json:"raw_title_line"`
	// Content is the section body, markdown, possibly multi-paragraph.
	Content string `json:"content"`
	// Level is the markdown heading depth (2 or 3), or LevelPseudo for
	// preamble and orphan text.
	Level int `json:"level"`
}

// Drop records a section removed by the filtering policy, so dropped text
// stays traceable instead of vanishing silently.
type Drop struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// LevelPseudo marks sections that did not come from a markdown heading.
const LevelPseudo = 0

// Canonical titles assigned by the segmenter itself.
const (
	TitleReportInformation = "Report Information"
	TitleMiscellaneous     = "Miscellaneous"
	TitleUntitled          = "Untitled Section"
)

// excludedTitle marks content a dedicated downstream view renders on its own;
// sections carrying it are always removed here to avoid duplication.
const excludedTitle = "Assessment of Source Reliability"

var (
	// preambleRe matches the generator metadata header: a "Generated ..."
	// line directly followed by an "AI-Generated: ..." line.
	preambleRe = regexp.MustCompile(`(?i)^generated[^\n]*\nai-generated:[^\n]*`)

	// headingStartRe decides where a new chunk begins during the split pass.
	// Any line opening with ## or ### starts a section candidate; longer hash
	// runs (#### and deeper) are body text, not section boundaries.
	headingStartRe = regexp.MustCompile(`^\s*#{2,3}(?:[^#]|$)`)

	// headingLineRe classifies a full heading line: ## or ###, an optional
	// "1."-style ordinal, at most one marker glyph, the title text, an
	// optional trailing colon.
	headingLineRe = regexp.MustCompile(`^\s*(#{2,3})\s*(?:\d+\.\s*)?(?:[✅⚠🔧📌🔴📜🏆💡]\x{FE0F}?\s*)?(.*?)\s*:?\s*$`)
)

// Segment converts report markdown into ordered sections. It never fails:
// input with no recoverable structure yields a single pseudo-section, and an
// empty input yields nil, which callers treat as the signal to fall back to
// unstructured rendering.
func Segment(markdownText string) []Section {
	sections, _ := SegmentWithDrops(markdownText)
	return sections
}

// SegmentWithDrops is Segment plus the trace of sections the filtering policy
// removed. The trace carries no correctness weight; callers use it for
// logging and counters.
func SegmentWithDrops(markdownText string) ([]Section, []Drop) {
	text := normalize(markdownText)
	if text == "" {
		return nil, nil
	}

	var sections []Section
	if pre, rest, ok := extractPreamble(text); ok {
		sections = append(sections, pre)
		text = rest
	}
	sections = append(sections, classify(splitChunks(text))...)

	kept := make([]Section, 0, len(sections))
	var drops []Drop
	for _, sec := range sections {
		if reason, ok := matchJunk(sec.Content); ok {
			drops = append(drops, Drop{Title: sec.Title, Reason: reason})
			continue
		}
		if strings.Contains(sec.Title, excludedTitle) {
			drops = append(drops, Drop{Title: sec.Title, Reason: "rendered by source reliability view"})
			continue
		}
		if sec.Content == "" && sec.Title != TitleReportInformation {
			continue
		}
		kept = append(kept, sec)
	}
	if len(kept) == 0 {
		return nil, drops
	}
	return kept, drops
}

// normalize unifies line endings and trims the whole text.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// extractPreamble peels off the two metadata lines the generator prepends to
// every report. The returned section holds exactly those two lines; trailing
// blank lines are consumed with them.
func extractPreamble(text string) (Section, string, bool) {
	loc := preambleRe.FindStringIndex(text)
	if loc == nil {
		return Section{}, text, false
	}
	sec := Section{
		Title:        TitleReportInformation,
		RawTitleLine: TitleReportInformation,
		Content:      text[:loc[1]],
		Level:        LevelPseudo,
	}
	return sec, strings.TrimSpace(text[loc[1]:]), true
}

// splitChunks cuts the body at every heading line. Each chunk begins with its
// own heading line, except a leading chunk of pre-heading text. Chunks that
// trim to nothing are discarded.
func splitChunks(text string) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	var cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunk := strings.Join(cur, "\n")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		cur = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if headingStartRe.MatchString(line) {
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	return chunks
}

// classify folds chunks into sections, carrying the current section so that
// non-heading chunks attach to the section above them. Orphan text with no
// preceding section becomes a Miscellaneous pseudo-section.
func classify(chunks []string) []Section {
	var sections []Section
	for _, chunk := range chunks {
		line, rest, _ := strings.Cut(chunk, "\n")
		// headingLineRe alone would read a #### line as ### plus a stray
		// hash in the title, so the split detector gates it.
		var m []string
		if headingStartRe.MatchString(line) {
			m = headingLineRe.FindStringSubmatch(line)
		}
		if m == nil {
			body := strings.TrimSpace(chunk)
			if n := len(sections); n > 0 {
				if sections[n-1].Content == "" {
					sections[n-1].Content = body
				} else {
					sections[n-1].Content += "\n\n" + body
				}
				continue
			}
			sections = append(sections, Section{
				Title:        TitleMiscellaneous,
				RawTitleLine: TitleMiscellaneous,
				Content:      body,
				Level:        LevelPseudo,
			})
			continue
		}

		content := strings.TrimSpace(rest)
		title := m[2]
		if isPlaceholderTitle(title) {
			title = inferTitle(content)
		}
		sections = append(sections, Section{
			Title:        title,
			RawTitleLine: line,
			Content:      content,
			Level:        len(m[1]),
		})
	}
	return sections
}

// isPlaceholderTitle reports whether a captured title carries no usable text,
// such as "" or pure punctuation like "---".
func isPlaceholderTitle(title string) bool {
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
