// Package view renders the turn timeline of a game log in the terminal.
package view

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"monopolylog/internal/aggregate"
	"monopolylog/internal/format"
	"monopolylog/internal/gamelog"
	"monopolylog/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Options defines the configurable parameters for rendering a view.
type Options struct {
	Path            string
	Format          string
	Wrap            int
	MaxTurns        int
	FromTurn        *int
	ToTurn          *int
	SortByTimestamp bool
	ForceColor      bool
	ForceNoColor    bool
	NoPager         bool
	Out             io.Writer
	OutFile         *os.File
}

// Run renders a game log according to the provided options.
func Run(opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	formatMode := strings.ToLower(opts.Format)
	if formatMode == "" {
		formatMode = "text"
	}
	if formatMode == "raw" {
		return copyFile(opts.Out, opts.Path)
	}
	if formatMode != "text" && formatMode != "chat" {
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}

	entries, err := gamelog.ReadFile(opts.Path)
	if err != nil {
		return err
	}
	records, err := aggregate.Aggregate(entries, aggregate.Options{SortByTimestamp: opts.SortByTimestamp})
	if err != nil {
		return err
	}
	records = selectTurns(records, opts.FromTurn, opts.ToTurn, opts.MaxTurns)
	if len(records) == 0 {
		return nil
	}

	pal := newPalette(opts.Out, resolveColorChoice(opts), opts.ForceColor)
	var lines []string
	switch formatMode {
	case "text":
		lines = renderTimeline(records, opts.Wrap, pal)
	case "chat":
		lines = renderChatTranscript(records, determineWidth(opts.OutFile, opts.Wrap), pal)
	}

	if !opts.NoPager && opts.OutFile != nil && isatty.IsTerminal(opts.OutFile.Fd()) {
		return pipeThroughPager(lines, pal.enabled)
	}
	return writeLines(opts.Out, lines)
}

// selectTurns keeps records with from <= turn <= to (nil bounds are open)
// and then the last max of them.
func selectTurns(records []model.TurnRecord, from, to *int, max int) []model.TurnRecord {
	selected := make([]model.TurnRecord, 0, len(records))
	for _, rec := range records {
		if from != nil && rec.Turn < *from {
			continue
		}
		if to != nil && rec.Turn > *to {
			continue
		}
		selected = append(selected, rec)
	}
	if max > 0 && len(selected) > max {
		selected = selected[len(selected)-max:]
	}
	return selected
}

// palette holds the styles of one rendering. Styles come from a renderer
// bound to the output writer; forced color pins its profile so escape codes
// are written even when the writer is not a terminal.
type palette struct {
	enabled   bool
	turn      lipgloss.Style
	separator lipgloss.Style
	muted     lipgloss.Style
	decision  lipgloss.Style
	event     lipgloss.Style
	speakers  []lipgloss.Style
}

func newPalette(out io.Writer, enabled, force bool) palette {
	if !enabled {
		return palette{}
	}
	r := lipgloss.NewRenderer(out)
	if force {
		r.SetColorProfile(termenv.ANSI256)
	}
	return palette{
		enabled:   true,
		turn:      r.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		separator: r.NewStyle().Foreground(lipgloss.Color("240")),
		muted:     r.NewStyle().Foreground(lipgloss.Color("245")),
		decision:  r.NewStyle().Foreground(lipgloss.Color("220")),
		event:     r.NewStyle().Foreground(lipgloss.Color("39")),
		speakers: []lipgloss.Style{
			r.NewStyle().Foreground(lipgloss.Color("44")).Bold(true),
			r.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
			r.NewStyle().Foreground(lipgloss.Color("114")).Bold(true),
			r.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		},
	}
}

func (p palette) paint(style lipgloss.Style, text string) string {
	if !p.enabled {
		return text
	}
	return style.Render(text)
}

func (p palette) speaker(idx int) lipgloss.Style {
	if len(p.speakers) == 0 {
		return lipgloss.Style{}
	}
	return p.speakers[idx%len(p.speakers)]
}

func renderTimeline(records []model.TurnRecord, wrap int, pal palette) []string {
	lines := make([]string, 0, len(records)*8)
	for idx, rec := range records {
		if idx > 0 {
			lines = append(lines, "")
		}

		headerPlain := fmt.Sprintf("Turn %d | %d events | %d decisions | %d chat", rec.Turn,
			len(rec.Events), len(rec.Decisions), len(rec.Chat))
		header := headerPlain
		if pal.enabled {
			sep := pal.paint(pal.separator, "|")
			header = fmt.Sprintf("%s %s %s", pal.paint(pal.turn, fmt.Sprintf("Turn %d", rec.Turn)), sep,
				pal.paint(pal.muted, fmt.Sprintf("%d events %s %d decisions %s %d chat",
					len(rec.Events), sep, len(rec.Decisions), sep, len(rec.Chat))))
		}
		lines = append(lines, header, strings.Repeat("-", len(headerPlain)))

		for _, line := range format.RenderTurnLines(rec, wrap) {
			lines = append(lines, colorLine(line, pal))
		}
	}
	return lines
}

func colorLine(line string, pal palette) string {
	switch {
	case strings.HasPrefix(line, "Decision: "):
		return pal.paint(pal.decision, line)
	case strings.HasPrefix(line, "Event: "):
		return pal.paint(pal.event, line)
	case strings.HasPrefix(line, " "):
		return pal.paint(pal.muted, line)
	default:
		return line
	}
}

func determineWidth(out *os.File, wrap int) int {
	if wrap > 0 {
		return wrap
	}
	if out != nil {
		if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func pipeThroughPager(lines []string, colorEnabled bool) error {
	text := strings.Join(lines, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	pagerCmd := os.Getenv("PAGER")
	var cmd *exec.Cmd
	if pagerCmd == "" {
		args := []string{"less"}
		if colorEnabled {
			args = append(args, "-R")
		}
		cmd = exec.Command(args[0], args[1:]...) // #nosec G204
	} else {
		cmd = exec.Command("sh", "-c", pagerCmd) // #nosec G204
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create pager pipe: %w", err)
	}
	go func() {
		defer stdin.Close()
		io.WriteString(stdin, text) //nolint:errcheck
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pager: %w", err)
	}
	return nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func resolveColorChoice(opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.ForceNoColor {
		return false
	}
	return shouldUseColorAuto(opts.Out)
}

func shouldUseColorAuto(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	return err
}
