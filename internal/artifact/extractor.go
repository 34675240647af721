// Package artifact lifts code blocks, images and tables out of assistant replies
// for side-panel display.
package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"ntropiq/pkg/ntropiqtypes"
)

var (
	codeBlockPattern = regexp.MustCompile("(?s)```([\\w+-]*)\\n(.*?)```")
	imagePattern     = regexp.MustCompile(`!\[[^\]]*\]\((https?:[^)]+)\)`)
	// A pipe-delimited row followed by a row starting with dashes or colons.
	tableHeaderPattern = regexp.MustCompile(`\n\|[^\n]*\|\n\|\s*[-:]+`)
	tableBlockPattern  = regexp.MustCompile(`(?s)(\n\|.*?(?:\n\n|$))`)
)

// Extract returns the artifacts found in text: every fenced code block, then every
// http(s) image, then at most one table. Each group keeps source order.
// Extract is pure; ids are unique within one result only.
func Extract(text string) []ntropiqtypes.Artifact {
	found := make([]ntropiqtypes.Artifact, 0)
	found = append(found, extractCode(text)...)
	found = append(found, extractImages(text)...)
	if table, ok := extractTable(text); ok {
		found = append(found, table)
	}
	return found
}

func extractCode(text string) []ntropiqtypes.Artifact {
	var out []ntropiqtypes.Artifact
	for i, m := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		language := m[1]
		if language == "" {
			language = "code"
		}
		out = append(out, ntropiqtypes.Artifact{
			ID:      fmt.Sprintf("code-%d", i+1),
			Kind:    ntropiqtypes.ArtifactCode,
			Label:   strings.ToUpper(language),
			Content: strings.TrimSpace(m[2]),
		})
	}
	return out
}

func extractImages(text string) []ntropiqtypes.Artifact {
	var out []ntropiqtypes.Artifact
	for i, m := range imagePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, ntropiqtypes.Artifact{
			ID:      fmt.Sprintf("image-%d", i+1),
			Kind:    ntropiqtypes.ArtifactImage,
			Label:   "Image",
			Content: m[1],
		})
	}
	return out
}

// extractTable captures from the first pipe line through the next blank line.
// A leading newline is added so a table on the very first line is still found.
func extractTable(text string) (ntropiqtypes.Artifact, bool) {
	scan := "\n" + text
	if !tableHeaderPattern.MatchString(scan) {
		return ntropiqtypes.Artifact{}, false
	}
	m := tableBlockPattern.FindStringSubmatch(scan)
	if m == nil {
		return ntropiqtypes.Artifact{}, false
	}
	return ntropiqtypes.Artifact{
		ID:      "table-1",
		Kind:    ntropiqtypes.ArtifactTable,
		Label:   "Table",
		Content: strings.TrimSpace(m[1]),
	}, true
}
