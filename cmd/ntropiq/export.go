package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ntropiq/pkg/ntropiqtypes"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

func writeStructured(w io.Writer, v interface{}, format string) (bool, error) {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case FormatMarkdown:
		return false, nil
	}
	return true, fmt.Errorf("unsupported export format %q (json, yaml, markdown)", format)
}

func exportConversation(w io.Writer, rec ntropiqtypes.ConversationSession, format string) error {
	if done, err := writeStructured(w, rec, format); done {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Name)
	fmt.Fprintf(&b, "_Session %s, updated %s_\n", rec.ID, rec.UpdatedAt.UTC().Format(time.RFC3339))
	for _, msg := range rec.Messages {
		title := "User"
		if msg.Role == ntropiqtypes.RoleAssistant {
			title = "Assistant"
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", title, strings.TrimSpace(msg.Content))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func exportNotebook(w io.Writer, rec ntropiqtypes.NotebookSession, format string) error {
	if done, err := writeStructured(w, rec, format); done {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Name)
	fmt.Fprintf(&b, "_Notebook %s, updated %s_\n", rec.ID, rec.UpdatedAt.UTC().Format(time.RFC3339))
	for i, cell := range rec.Cells {
		fmt.Fprintf(&b, "\n## Cell %d (%s)\n\n", i+1, cell.Kind)
		switch cell.Kind {
		case ntropiqtypes.CellCode:
			fmt.Fprintf(&b, "```\n%s\n```\n", cell.Content)
		default:
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(cell.Content))
		}
		if cell.Output != nil {
			fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(*cell.Output))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
