package segment

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// KnownSectionMarker maps a distinctive table-header prefix to the canonical
// title assigned when a heading carries no usable text of its own. Read-only
// configuration data; never mutated after load.
type KnownSectionMarker struct {
	Prefix string `yaml:"prefix"`
	Title  string `yaml:"title"`
}

// builtinMarkers covers the report templates the generator is prompted with.
// New templates are added here or through the overlay file, not in code paths.
var builtinMarkers = []KnownSectionMarker{
	{
		Prefix: "| Source | Usefulness Assessment | Notes | Rating (1-5) |",
		Title:  "Assessment of Source Reliability",
	},
	{
		Prefix: "| Statement | Status | Clarification & Correction | Confidence (1-5) |",
		Title:  "Verified Facts",
	},
}

var (
	markerTable     []KnownSectionMarker
	markerTableOnce sync.Once
)

// GetMarkerConfigPath returns the overlay path, checking the env var first.
func GetMarkerConfigPath() string {
	if envPath := os.Getenv("SECTION_MARKER_CONFIG"); envPath != "" {
		return envPath
	}
	return "config/section_markers.yaml"
}

// loadMarkerTable assembles the marker table once per process: built-ins
// first, then entries from the optional overlay file. Overlay entries extend
// the table; they never replace built-ins. A missing overlay is the normal
// case and loads silently.
func loadMarkerTable() []KnownSectionMarker {
	markerTableOnce.Do(func() {
		markerTable = builtinMarkers

		data, err := os.ReadFile(GetMarkerConfigPath())
		if err != nil {
			return
		}
		var overlay struct {
			Markers []KnownSectionMarker `yaml:"markers"`
		}
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			log.Printf("Warning: failed to parse section marker overlay: %v. Using built-ins.", err)
			return
		}
		merged := make([]KnownSectionMarker, 0, len(builtinMarkers)+len(overlay.Markers))
		merged = append(merged, builtinMarkers...)
		merged = append(merged, overlay.Markers...)
		markerTable = merged
	})
	return markerTable
}

// ResetMarkerTableForTest resets the singleton for testing purposes.
// This should only be called from test code.
func ResetMarkerTableForTest() {
	markerTableOnce = sync.Once{}
	markerTable = nil
}

// inferTitle backfills a title from the section's leading table header, or
// labels the section untitled.
func inferTitle(content string) string {
	for _, m := range loadMarkerTable() {
		if strings.HasPrefix(content, m.Prefix) {
			return m.Title
		}
	}
	return TitleUntitled
}
