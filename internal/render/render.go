// Package render turns the Markdown returned by the oracle into HTML for the
// web page and styled text for the terminal.
package render

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// raw HTML in the source is dropped; goldmark only emits it with html.WithUnsafe
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// HTML converts Markdown to HTML safe for direct inclusion in a page
func HTML(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Style holds the terminal styles used by Terminal
type Style struct {
	Heading lipgloss.Style
	Bullet  lipgloss.Style
	Body    lipgloss.Style
	Rule    lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyle is a warm palette for readings
var DefaultStyle = Style{
	Heading: lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A855F7"}),
	Bullet: lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}),
	Body: lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}),
	Rule: lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"}),
	Error: lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}).
		Padding(0, 1),
}

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletPattern  = regexp.MustCompile(`^(\s*)(?:[-*+]|\d+\.)\s+(.*)$`)
	// order matters: strong before emphasis
	emphasisPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\*\*(.+?)\*\*`),
		regexp.MustCompile(`__(.+?)__`),
		regexp.MustCompile(`\*(.+?)\*`),
		regexp.MustCompile(`_(.+?)_`),
		regexp.MustCompile("`(.+?)`"),
	}
)

// Terminal renders Markdown with DefaultStyle
func Terminal(source string) string {
	return DefaultStyle.Terminal(source)
}

// Terminal renders Markdown line by line. Headings and list items are styled;
// emphasis markers are removed.
func (s Style) Terminal(source string) string {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, "")
		case trimmed == "---" || trimmed == "***":
			out = append(out, s.Rule.Render(strings.Repeat("─", 24)))
		case headingPattern.MatchString(trimmed):
			m := headingPattern.FindStringSubmatch(trimmed)
			out = append(out, s.Heading.Render(stripEmphasis(m[2])))
		case bulletPattern.MatchString(line):
			m := bulletPattern.FindStringSubmatch(line)
			out = append(out, m[1]+s.Bullet.Render("•")+" "+s.Body.Render(stripEmphasis(m[2])))
		default:
			out = append(out, s.Body.Render(stripEmphasis(trimmed)))
		}
	}

	return strings.Join(out, "\n")
}

// Banner renders msg inside the error box
func (s Style) Banner(msg string) string {
	return s.Error.Render(msg)
}

func stripEmphasis(text string) string {
	for _, p := range emphasisPatterns {
		text = p.ReplaceAllString(text, "$1")
	}
	return text
}
