// Package diag renders compiler diagnostics and assembly for a terminal.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/quick"
	udiff "github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"stackcc/pkg/config"
)

// positioner is implemented by errors that know their source byte offset.
type positioner interface {
	Position() int
}

// Position extracts the source offset carried anywhere in err's chain.
func Position(err error) (int, bool) {
	var p positioner
	if errors.As(err, &p) {
		return p.Position(), true
	}
	return 0, false
}

// Location is a 1-based line and display column within a source text.
type Location struct {
	Line   int
	Column int
	Text   string // the whole source line, without its newline
	Pad    string // blanks that line a caret up under the offending character
}

// Locate maps a byte offset to its line. Offsets past the end point just
// after the last character.
func Locate(src string, pos int) Location {
	if pos < 0 {
		pos = 0
	}
	if pos > len(src) {
		pos = len(src)
	}
	start := strings.LastIndexByte(src[:pos], '\n') + 1
	end := strings.IndexByte(src[pos:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += pos
	}
	prefix := src[start:pos]
	return Location{
		Line:   strings.Count(src[:start], "\n") + 1,
		Column: len([]rune(prefix)) + 1,
		Text:   src[start:end],
		Pad:    pad(prefix),
	}
}

// pad blanks out prefix cell for cell, keeping tabs so the terminal expands
// them the same way on both lines.
func pad(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		if r == '\t' {
			b.WriteByte('\t')
			continue
		}
		b.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return b.String()
}

// Printer writes diagnostics and assembly to w, styled for the terminal
// when colour is enabled.
type Printer struct {
	w     io.Writer
	color bool

	source  lipgloss.Style
	caret   lipgloss.Style
	message lipgloss.Style
	where   lipgloss.Style
}

// NewPrinter resolves mode (one of the config.Color* values) against w.
// In auto mode colour follows the terminal and the NO_COLOR/CLICOLOR
// conventions.
func NewPrinter(w io.Writer, mode string) *Printer {
	profile := termenv.Ascii
	switch mode {
	case config.ColorAlways:
		profile = termenv.ANSI256
	case config.ColorNever:
	default:
		profile = termenv.NewOutput(w).EnvColorProfile()
	}

	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	return &Printer{
		w:       w,
		color:   profile != termenv.Ascii,
		source:  r.NewStyle().Foreground(lipgloss.Color("252")).TabWidth(lipgloss.NoTabConversion),
		caret:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		message: r.NewStyle().Foreground(lipgloss.Color("9")),
		where:   r.NewStyle().Faint(true),
	}
}

// Color reports whether output is styled.
func (p *Printer) Color() bool {
	return p.color
}

// Error writes err. When err carries a source position, the offending line
// of src is shown with a caret under the failing column.
func (p *Printer) Error(name, src string, err error) {
	pos, ok := Position(err)
	if !ok {
		fmt.Fprintln(p.w, p.message.Render(err.Error()))
		return
	}
	loc := Locate(src, pos)
	fmt.Fprintln(p.w, p.where.Render(fmt.Sprintf("%s:%d:%d:", name, loc.Line, loc.Column)))
	fmt.Fprintln(p.w, p.source.Render(loc.Text))
	fmt.Fprintf(p.w, "%s%s %s\n", loc.Pad, p.caret.Render("^"), p.message.Render(err.Error()))
}

// Assembly writes lines, syntax highlighted as GNU assembler source when
// colour is enabled.
func (p *Printer) Assembly(lines []string) error {
	text := strings.Join(lines, "\n") + "\n"
	if !p.color {
		_, err := io.WriteString(p.w, text)
		return err
	}
	return quick.Highlight(p.w, text, "gas", "terminal256", "monokai")
}

// Diff returns a unified diff from golden to got, or "" when they match.
func Diff(goldenName, golden, got string) string {
	if golden == got {
		return ""
	}
	return udiff.Unified(goldenName, "output", golden, got)
}
