package view

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"monopolylog/internal/format"
	"monopolylog/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// bubble is one chat line or decision placed in the transcript.
type bubble struct {
	speaker string
	label   string
	body    string
	align   string
	style   lipgloss.Style
}

// speakers assigns a stable position to each chat participant: the first
// speaker is drawn on the left, the second on the right, the rest centered.
type speakers struct {
	order map[string]int
}

func (s *speakers) index(name string) int {
	if idx, ok := s.order[name]; ok {
		return idx
	}
	idx := len(s.order)
	s.order[name] = idx
	return idx
}

func (s *speakers) align(name string) string {
	switch s.index(name) {
	case 0:
		return "left"
	case 1:
		return "right"
	default:
		return "center"
	}
}

func (s *speakers) style(name string, pal palette) lipgloss.Style {
	return pal.speaker(s.index(name))
}

func renderChatTranscript(records []model.TurnRecord, width int, pal palette) []string {
	if width <= 0 {
		width = 80
	}
	padding := 2
	known := &speakers{order: make(map[string]int)}

	lines := make([]string, 0, len(records)*6)
	for idx, rec := range records {
		if idx > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, turnDivider(rec.Turn, width, pal))

		for _, b := range turnBubbles(rec, known, pal) {
			lines = append(lines, renderChatBubble(b, width, padding, pal)...)
		}
	}
	return lines
}

func turnBubbles(rec model.TurnRecord, known *speakers, pal palette) []bubble {
	bubbles := make([]bubble, 0, len(rec.Chat)+len(rec.Decisions))
	for _, msg := range rec.Chat {
		speaker, body := splitSpeaker(msg)
		b := bubble{speaker: speaker, label: speaker, body: body, align: "left", style: pal.speaker(0)}
		if speaker != "" {
			b.align = known.align(speaker)
			b.style = known.style(speaker, pal)
		} else {
			b.label = "Chat"
		}
		bubbles = append(bubbles, b)
	}
	for _, d := range rec.Decisions {
		bubbles = append(bubbles, bubble{
			speaker: d.Player,
			label:   "Decision · " + d.Player,
			body:    format.DescribeDecision(d),
			align:   "center",
			style:   pal.decision,
		})
	}
	return bubbles
}

// splitSpeaker separates "Name: message" chat lines.
func splitSpeaker(msg string) (string, string) {
	name, body, ok := strings.Cut(msg, ": ")
	if !ok || name == "" || strings.ContainsAny(name, "\n") || utf8.RuneCountInString(name) > 32 {
		return "", msg
	}
	return name, body
}

func turnDivider(turn int, width int, pal palette) string {
	label := fmt.Sprintf(" Turn %d ", turn)
	side := (width - runewidth.StringWidth(label)) / 2
	if side < 3 {
		side = 3
	}
	rule := strings.Repeat("─", side)
	if pal.enabled {
		return pal.paint(pal.separator, rule) + pal.paint(pal.turn, label) + pal.paint(pal.separator, rule)
	}
	return rule + label + rule
}

func renderChatBubble(b bubble, totalWidth int, padding int, pal palette) []string {
	maxContentWidth := totalWidth - padding*2 - 10
	if maxContentWidth < 20 {
		if totalWidth > 30 {
			maxContentWidth = totalWidth - 12
		} else {
			maxContentWidth = totalWidth - 8
		}
		if maxContentWidth < 8 {
			maxContentWidth = 8
		}
	}

	header := b.label
	content := wrapLines([]string{header, b.body}, maxContentWidth)
	bubbleWidth := contentMaxWidth(content)
	if bubbleWidth > maxContentWidth {
		bubbleWidth = maxContentWidth
	}

	leftPad := computeLeftPad(totalWidth, bubbleWidth, padding, b.align)

	if pal.enabled && len(content) > 0 && content[0] == header {
		content[0] = pal.paint(b.style, header)
	}

	top := fmt.Sprintf("%s╭%s╮", strings.Repeat(" ", leftPad), strings.Repeat("─", bubbleWidth+2))
	bottom := fmt.Sprintf("%s╰%s╯", strings.Repeat(" ", leftPad), strings.Repeat("─", bubbleWidth+2))

	result := []string{top}
	for _, line := range content {
		result = append(result, renderBubbleBodyLine(line, bubbleWidth, leftPad, pal))
	}
	result = append(result, bottom)
	return result
}

func renderBubbleBodyLine(line string, bubbleWidth int, leftPad int, pal palette) string {
	displayLen := visibleWidth(line)
	if displayLen > bubbleWidth {
		line = truncateToWidth(line, bubbleWidth)
		displayLen = bubbleWidth
	}
	paddingRight := bubbleWidth - displayLen

	border := pal.paint(pal.separator, "│")

	return fmt.Sprintf("%s%s %s%s %s", strings.Repeat(" ", leftPad), border, line, strings.Repeat(" ", paddingRight), border)
}

func computeLeftPad(totalWidth, bubbleWidth, padding int, align string) int {
	maxPad := totalWidth - bubbleWidth - 4
	if maxPad < 0 {
		maxPad = 0
	}

	switch align {
	case "right":
		return maxPad
	case "center":
		center := maxPad / 2
		if center < padding {
			center = padding
		}
		if center > maxPad {
			center = maxPad
		}
		return center
	default:
		if padding > maxPad {
			return maxPad
		}
		return padding
	}
}

func wrapLines(lines []string, width int) []string {
	var out []string
	for _, line := range lines {
		out = append(out, wrapText(line, width)...)
	}
	return out
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	text = strings.TrimRight(text, " ")
	if text == "" {
		return []string{""}
	}
	var out []string
	var current strings.Builder
	currentWidth := 0

	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if currentWidth+rw > width && current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			currentWidth = 0
		}
		current.WriteRune(r)
		currentWidth += rw
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func contentMaxWidth(lines []string) int {
	max := 0
	for _, line := range lines {
		if w := visibleWidth(line); w > max {
			max = w
		}
	}
	return max
}

func truncateToWidth(text string, width int) string {
	if visibleWidth(text) <= width {
		return text
	}
	var out strings.Builder
	current := 0

	for i := 0; i < len(text); {
		if m := ansiPattern.FindStringIndex(text[i:]); m != nil && m[0] == 0 {
			out.WriteString(text[i : i+m[1]])
			i += m[1]
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		rw := runewidth.RuneWidth(r)
		if current+rw > width {
			break
		}
		out.WriteRune(r)
		current += rw
		i += size
	}
	return out.String()
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleWidth(text string) int {
	clean := ansiPattern.ReplaceAllString(text, "")
	return runewidth.StringWidth(clean)
}
