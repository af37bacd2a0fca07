package segment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSegmentEmptyInput(t *testing.T) {
	if got := Segment(""); len(got) != 0 {
		t.Errorf("expected no sections, got %d", len(got))
	}
	if got := Segment("   \n\t\n  "); len(got) != 0 {
		t.Errorf("expected no sections for whitespace input, got %d", len(got))
	}
}

func TestSegmentNoHeadings(t *testing.T) {
	text := "Just a paragraph of findings.\nAnother line of the same paragraph."

	got := Segment(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != TitleMiscellaneous {
		t.Errorf("expected title %q, got %q", TitleMiscellaneous, got[0].Title)
	}
	if got[0].Level != LevelPseudo {
		t.Errorf("expected level %d, got %d", LevelPseudo, got[0].Level)
	}
	if got[0].Content != text {
		t.Errorf("expected content %q, got %q", text, got[0].Content)
	}
}

func TestSegmentFullReport(t *testing.T) {
	text := "Generated Jan 1, 2024\nAI-Generated: true\n\n" +
		"## 1. ✅ Verified Facts\n" +
		"| Statement | Status | Clarification & Correction | Confidence (1-5) |\n" +
		"|---|---|---|---|\n" +
		"| X | true | — | 5 |"

	got := Segment(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(got), got)
	}

	pre := got[0]
	if pre.Title != TitleReportInformation {
		t.Errorf("expected title %q, got %q", TitleReportInformation, pre.Title)
	}
	if pre.Level != LevelPseudo {
		t.Errorf("expected level %d, got %d", LevelPseudo, pre.Level)
	}
	wantPre := "Generated Jan 1, 2024\nAI-Generated: true"
	if pre.Content != wantPre {
		t.Errorf("expected preamble content %q, got %q", wantPre, pre.Content)
	}

	facts := got[1]
	if facts.Title != "Verified Facts" {
		t.Errorf("expected title %q, got %q", "Verified Facts", facts.Title)
	}
	if facts.Level != 2 {
		t.Errorf("expected level 2, got %d", facts.Level)
	}
	if !strings.HasPrefix(facts.Content, "| Statement |") || !strings.HasSuffix(facts.Content, "| 5 |") {
		t.Errorf("table content lost: %q", facts.Content)
	}
	if facts.RawTitleLine != "## 1. ✅ Verified Facts" {
		t.Errorf("expected exact heading line, got %q", facts.RawTitleLine)
	}
}

func TestSegmentPreambleCaseInsensitive(t *testing.T) {
	got := Segment("GENERATED by the pipeline\nai-generated: TRUE\n\nOrphan body text.")
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(got))
	}
	if got[0].Title != TitleReportInformation {
		t.Errorf("expected preamble first, got %q", got[0].Title)
	}
	if got[1].Title != TitleMiscellaneous || got[1].Content != "Orphan body text." {
		t.Errorf("expected orphan text in its own section, got %+v", got[1])
	}
}

func TestSegmentHeadingShapes(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTitle string
		wantLevel int
	}{
		{
			name:      "plain level two",
			text:      "## Summary\nbody",
			wantTitle: "Summary",
			wantLevel: 2,
		},
		{
			name:      "plain level three",
			text:      "### Details\nbody",
			wantTitle: "Details",
			wantLevel: 3,
		},
		{
			name:      "trailing colon stripped",
			text:      "## Summary:\nbody",
			wantTitle: "Summary",
			wantLevel: 2,
		},
		{
			name:      "ordinal stripped",
			text:      "## 2. Open Issues\nbody",
			wantTitle: "Open Issues",
			wantLevel: 2,
		},
		{
			name:      "glyph stripped",
			text:      "## 🔴 Unverified Claims\nbody",
			wantTitle: "Unverified Claims",
			wantLevel: 2,
		},
		{
			name:      "ordinal then glyph",
			text:      "### 3. 💡 Suggestions\nbody",
			wantTitle: "Suggestions",
			wantLevel: 3,
		},
		{
			name:      "warning glyph with variation selector",
			text:      "## ⚠️ Caveats\nbody",
			wantTitle: "Caveats",
			wantLevel: 2,
		},
		{
			name:      "no space after hashes",
			text:      "##Summary\nbody",
			wantTitle: "Summary",
			wantLevel: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.text)
			if len(got) != 1 {
				t.Fatalf("expected 1 section, got %d", len(got))
			}
			if got[0].Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, got[0].Title)
			}
			if got[0].Level != tt.wantLevel {
				t.Errorf("expected level %d, got %d", tt.wantLevel, got[0].Level)
			}
			if got[0].Content != "body" {
				t.Errorf("expected content %q, got %q", "body", got[0].Content)
			}
		})
	}
}

func TestSegmentLevelFourLinesAreBody(t *testing.T) {
	got := Segment("## Top\nbody\n#### Deep\nmore")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Top" || got[0].Level != 2 {
		t.Errorf("unexpected section: %+v", got[0])
	}
	if got[0].Content != "body\n#### Deep\nmore" {
		t.Errorf("#### line not kept as body: %q", got[0].Content)
	}

	// With no preceding section, a #### line is plain orphan text.
	got = Segment("#### Deep\nonly")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != TitleMiscellaneous || got[0].Content != "#### Deep\nonly" {
		t.Errorf("expected Miscellaneous pseudo-section, got %+v", got[0])
	}
}

func TestSegmentRawTitleLineExact(t *testing.T) {
	got := Segment("   ## Indented Heading\nbody")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].RawTitleLine != "   ## Indented Heading" {
		t.Errorf("heading line not preserved exactly: %q", got[0].RawTitleLine)
	}
}

func TestSegmentOrphanTextBeforeFirstHeading(t *testing.T) {
	got := Segment("intro paragraph\n\n## First\nbody one\n\n## Second\nbody two")
	if len(got) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(got))
	}
	if got[0].Title != TitleMiscellaneous || got[0].Content != "intro paragraph" {
		t.Errorf("expected intro as pseudo-section, got %+v", got[0])
	}
	if got[1].Title != "First" || got[2].Title != "Second" {
		t.Errorf("expected source order preserved, got %q then %q", got[1].Title, got[2].Title)
	}
}

func TestSegmentBodyReconstruction(t *testing.T) {
	bodies := []string{"alpha body line", "beta body line", "gamma body line"}
	text := "## Alpha\n" + bodies[0] + "\n### Beta\n" + bodies[1] + "\n## Gamma\n" + bodies[2]

	got := Segment(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(got))
	}
	for i, sec := range got {
		if sec.Content != bodies[i] {
			t.Errorf("section %d: expected content %q, got %q", i, bodies[i], sec.Content)
		}
	}
}

func TestSegmentDropsEmptySections(t *testing.T) {
	got := Segment("## Alpha\n\n## Beta\nreal content")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != "Beta" {
		t.Errorf("expected only Beta to survive, got %q", got[0].Title)
	}
}

func TestSegmentCRLFInput(t *testing.T) {
	got := Segment("Generated now\r\nAI-Generated: yes\r\n\r\n## A\r\nbody")
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(got))
	}
	if strings.Contains(got[0].Content, "\r") || strings.Contains(got[1].Content, "\r") {
		t.Errorf("carriage returns leaked into content: %+v", got)
	}
}

func TestSegmentTitleInference(t *testing.T) {
	got := Segment("###\n| Statement | Status | Clarification & Correction | Confidence (1-5) |\n| A | ok | - | 4 |")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != "Verified Facts" {
		t.Errorf("expected inferred title %q, got %q", "Verified Facts", got[0].Title)
	}
	if got[0].Level != 3 {
		t.Errorf("expected level 3, got %d", got[0].Level)
	}
}

func TestSegmentPlaceholderTitleFallsBackToUntitled(t *testing.T) {
	got := Segment("## -\nSome real content here.")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != TitleUntitled {
		t.Errorf("expected %q, got %q", TitleUntitled, got[0].Title)
	}
}

func TestSegmentDropsSourceReliabilityByTitle(t *testing.T) {
	text := "## Assessment of Source Reliability\n| Source | rows |\n\n## Keep Me\ncontent"

	got := Segment(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Keep Me" {
		t.Errorf("expected only %q to survive, got %q", "Keep Me", got[0].Title)
	}
}

func TestSegmentDropsSourceReliabilityByInferredTitle(t *testing.T) {
	text := "## \n| Source | Usefulness Assessment | Notes | Rating (1-5) |\n|---|---|---|---|\n| example.com | High | Good | 5 |"

	if got := Segment(text); len(got) != 0 {
		t.Errorf("expected inferred source table to be dropped, got %+v", got)
	}
}

func TestSegmentJunkFiltering(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "cpp console skeleton",
			content: "#include <iostream>\nusing namespace std;\nint main() {\n  return 0;\n}",
		},
		{
			name:    "cpp using namespace first",
			content: "using namespace std;\nint main() { return 0; }",
		},
		{
			name:    "python flask boilerplate",
			content: "from flask import Flask\napp = Flask(__name__)",
		},
		{
			name:    "python entry point guard",
			content: "if __name__ == \"__main__\":\n    main()",
		},
		{
			name:    "html skeleton",
			content: "<!DOCTYPE html>\n<html>\n<body></body>\n</html>",
		},
		{
			name:    "node express boilerplate",
			content: "const express = require('express');\nconst app = express();",
		},
		{
			name:    "malformed source table run-on",
			content: "| Source | Usefulness Assessment | Notes | Rating (1-5) |({sources.map(",
		},
		{
			name:    "frontend component boilerplate",
			content: "import React from 'react';\nexport default function App() {}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "## Generated Artifact\n" + tt.content + "\n\n## Findings\nreal prose"
			got := Segment(text)
			if len(got) != 1 {
				t.Fatalf("expected junk section dropped, got %d sections: %+v", len(got), got)
			}
			if got[0].Title != "Findings" {
				t.Errorf("expected %q to survive, got %q", "Findings", got[0].Title)
			}
		})
	}
}

func TestSegmentWithDropsTrace(t *testing.T) {
	text := "## Code Sample\n#include <iostream>\nusing namespace std;\n\n## Findings\nprose"

	sections, drops := SegmentWithDrops(text)
	if len(sections) != 1 {
		t.Fatalf("expected 1 surviving section, got %d", len(sections))
	}
	if len(drops) != 1 {
		t.Fatalf("expected 1 drop record, got %d", len(drops))
	}
	if drops[0].Title != "Code Sample" {
		t.Errorf("expected dropped title %q, got %q", "Code Sample", drops[0].Title)
	}
	if drops[0].Reason != "cpp console skeleton" {
		t.Errorf("expected reason %q, got %q", "cpp console skeleton", drops[0].Reason)
	}
}

func TestSegmentMarkerOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	overlay := "markers:\n  - prefix: \"| Claim | Verdict |\"\n    title: \"Claim Review\"\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SECTION_MARKER_CONFIG", path)
	ResetMarkerTableForTest()
	defer ResetMarkerTableForTest()

	got := Segment("## \n| Claim | Verdict |\n| water is wet | true |")
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d", len(got))
	}
	if got[0].Title != "Claim Review" {
		t.Errorf("expected overlay title %q, got %q", "Claim Review", got[0].Title)
	}

	// Built-ins must survive the overlay merge.
	got = Segment("## \n| Statement | Status | Clarification & Correction | Confidence (1-5) |\n| A | ok | - | 4 |")
	if len(got) != 1 || got[0].Title != "Verified Facts" {
		t.Errorf("built-in marker lost after overlay: %+v", got)
	}
}
