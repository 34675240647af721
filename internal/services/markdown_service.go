package services

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// DefaultWordWrap is the wrap width used by NewMarkdownService.
const DefaultWordWrap = 80

// previewWidth caps the display width of an artifact preview line.
const previewWidth = 60

// MarkdownService renders assistant replies, notebook outputs and artifact summaries
// for the terminal using Glamour.
type MarkdownService struct {
	style    string
	wordWrap int
	renderer *glamour.TermRenderer
}

// NewMarkdownService creates a service with the given Glamour style. An empty style
// selects "notty" on colourless terminals and auto-detection otherwise.
func NewMarkdownService(style string) *MarkdownService {
	return &MarkdownService{style: style, wordWrap: DefaultWordWrap}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize builds the renderer.
func (m *MarkdownService) Initialize() error {
	renderer, err := m.newRenderer(m.wordWrap)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	m.renderer = renderer
	logger.Debug("MarkdownService initialized", "style", m.resolvedStyle(), "word_wrap", m.wordWrap)
	return nil
}

// SetWordWrap rebuilds the renderer with a new wrap width.
func (m *MarkdownService) SetWordWrap(width int) error {
	if width <= 0 {
		return fmt.Errorf("word wrap width must be positive, got %d", width)
	}
	renderer, err := m.newRenderer(width)
	if err != nil {
		return fmt.Errorf("failed to create renderer with word wrap %d: %w", width, err)
	}
	m.wordWrap = width
	m.renderer = renderer
	return nil
}

// Render renders markdown to ANSI terminal output. Blank input renders as "".
func (m *MarkdownService) Render(markdown string) (string, error) {
	if m.renderer == nil {
		return "", fmt.Errorf("markdown service not initialized")
	}
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return rendered, nil
}

// RenderMessage renders one chat message with a role header. Rendering failures
// fall back to the raw content.
func (m *MarkdownService) RenderMessage(msg ntropiqtypes.Message) string {
	header := roleStyle(msg.Role).Render(strings.ToUpper(string(msg.Role)))
	body, err := m.Render(msg.Content)
	if err != nil {
		logger.Debug("Falling back to raw message content", "error", err)
		body = msg.Content + "\n"
	}
	return header + "\n" + body
}

// RenderArtifacts lists artifacts as a compact panel, one line per artifact.
func (m *MarkdownService) RenderArtifacts(artifacts []ntropiqtypes.Artifact) string {
	if len(artifacts) == 0 {
		return ""
	}
	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Artifacts (%d)", len(artifacts)))
	lines := []string{title}
	for _, a := range artifacts {
		lines = append(lines, fmt.Sprintf("  [%s] %s  %s", a.Kind, a.Label, artifactPreview(a)))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func (m *MarkdownService) newRenderer(width int) (*glamour.TermRenderer, error) {
	style := m.resolvedStyle()
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	return glamour.NewTermRenderer(opts...)
}

func (m *MarkdownService) resolvedStyle() string {
	if m.style != "" {
		return m.style
	}
	if lipgloss.ColorProfile() == termenv.Ascii {
		return "notty"
	}
	return "auto"
}

func roleStyle(role ntropiqtypes.Role) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	if lipgloss.ColorProfile() == termenv.Ascii {
		return style
	}
	if role == ntropiqtypes.RoleUser {
		return style.Foreground(lipgloss.Color("39"))
	}
	return style.Foreground(lipgloss.Color("99"))
}

func artifactPreview(a ntropiqtypes.Artifact) string {
	content := strings.TrimSpace(a.Content)
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i] + " ..."
	}
	return ansi.Truncate(content, previewWidth, "...")
}
