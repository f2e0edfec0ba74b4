package format

import (
	"fmt"
	"strings"

	"monopolylog/internal/model"
)

// RenderTurnLines returns the body lines printed under a turn header:
// player standings, then events, decisions and chat.
func RenderTurnLines(rec model.TurnRecord, wrapWidth int) []string {
	var lines []string
	for _, p := range rec.Players {
		name := p.Name
		if name == "" {
			name = "-"
		}
		lines = append(lines, fmt.Sprintf("%s %s: $%d, %d properties, %d houses, %d mortgaged, net worth $%d",
			p.Slot, name, p.Money, p.PropertiesCount, p.HousesCount, p.MortgagedCount, model.NetWorth(p)))
	}

	for _, ev := range rec.Events {
		lines = append(lines, prefixed("Event: ", fmt.Sprintf("[%s] %s", ev.Player, ev.Message), wrapWidth)...)
	}
	for _, d := range rec.Decisions {
		lines = append(lines, prefixed("Decision: ", DescribeDecision(d), wrapWidth)...)
	}
	for _, msg := range rec.Chat {
		lines = append(lines, prefixed("Chat: ", msg, wrapWidth)...)
	}
	return lines
}

// DescribeDecision renders a decision as a single sentence.
func DescribeDecision(d model.Decision) string {
	text := fmt.Sprintf("%s chose %s (confidence %.2f)", d.Player, d.Decision, d.Confidence)
	if reason := strings.TrimSpace(d.Reason); reason != "" {
		text += ": " + reason
	}
	return text
}

func prefixed(prefix, text string, width int) []string {
	if width > 0 {
		width -= len(prefix)
		if width < 10 {
			width = 10
		}
	}
	body := strings.Split(wrapBody(strings.TrimSpace(text), width), "\n")
	indent := strings.Repeat(" ", len(prefix))
	for i := range body {
		if i == 0 {
			body[i] = prefix + body[i]
		} else {
			body[i] = indent + body[i]
		}
	}
	return body
}

func wrapBody(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)

	return strings.Join(lines, "\n")
}
