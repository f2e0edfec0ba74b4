package format

import (
	"fmt"
	"io"
	"strings"

	"monopolylog/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteTurns writes aggregated turn records to w in the requested format.
// Table and plain output add each player's net worth.
func WriteTurns(w io.Writer, records []model.TurnRecord, includeHeader bool, format string) error {
	format = strings.ToLower(format)
	switch format {
	case "", "table":
		return writeTurnsTable(w, records, includeHeader)
	case "plain":
		return writeTurnsPlain(w, records, includeHeader)
	case "json":
		if records == nil {
			records = []model.TurnRecord{}
		}
		return writeJSON(w, records)
	case "jsonl":
		return writeJSONL(w, records)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func slotsOf(records []model.TurnRecord) []string {
	if len(records) == 0 {
		return nil
	}
	// Every record carries the full slot set in the same order.
	slots := make([]string, 0, len(records[0].Players))
	for _, p := range records[0].Players {
		slots = append(slots, p.Slot)
	}
	return slots
}

func writeTurnsPlain(w io.Writer, records []model.TurnRecord, includeHeader bool) error {
	slots := slotsOf(records)
	if includeHeader {
		cols := []string{"turn"}
		for _, slot := range slots {
			cols = append(cols, slot+"_name", slot+"_money", slot+"_properties", slot+"_net_worth")
		}
		cols = append(cols, "events", "decisions", "chat")
		if _, err := fmt.Fprintln(w, strings.Join(cols, "\t")); err != nil {
			return err
		}
	}

	for _, rec := range records {
		cols := []string{fmt.Sprint(rec.Turn)}
		for _, p := range rec.Players {
			cols = append(cols,
				escapeNewlines(p.Name),
				fmt.Sprint(p.Money),
				fmt.Sprint(p.PropertiesCount),
				fmt.Sprint(model.NetWorth(p)),
			)
		}
		cols = append(cols,
			fmt.Sprint(len(rec.Events)),
			escapeNewlines(decisionSummary(rec.Decisions)),
			fmt.Sprint(len(rec.Chat)),
		)
		if _, err := fmt.Fprintln(w, strings.Join(cols, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func writeTurnsTable(w io.Writer, records []model.TurnRecord, includeHeader bool) error {
	slots := slotsOf(records)
	tw := newTable(w)

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignCenter}}
	header := table.Row{"Turn"}
	for i, slot := range slots {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter})
		header = append(header, slot)
	}
	n := len(slots) + 2
	configs = append(configs,
		table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		table.ColumnConfig{Number: n + 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
		table.ColumnConfig{Number: n + 2, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	)
	header = append(header, "Events", "Decisions", "Chat")
	tw.SetColumnConfigs(configs)

	if includeHeader {
		tw.AppendHeader(header)
	}
	for _, rec := range records {
		row := table.Row{rec.Turn}
		for _, p := range rec.Players {
			row = append(row, playerCell(p))
		}
		row = append(row, len(rec.Events), decisionSummary(rec.Decisions), len(rec.Chat))
		tw.AppendRow(row)
	}
	if len(records) == 0 {
		tw.AppendRow(table.Row{"-", 0, "(no turns)", 0})
	}

	_ = tw.Render()
	return nil
}

func playerCell(p model.PlayerTurnStats) string {
	name := p.Name
	if name == "" {
		name = "-"
	}
	lines := []string{
		name,
		fmt.Sprintf("$%d · %d props", p.Money, p.PropertiesCount),
		fmt.Sprintf("net $%d", model.NetWorth(p)),
	}
	if p.HousesCount > 0 || p.MortgagedCount > 0 {
		lines = append(lines, fmt.Sprintf("%d houses · %d mortgaged", p.HousesCount, p.MortgagedCount))
	}
	return strings.Join(lines, "\n")
}

func decisionSummary(decisions []model.Decision) string {
	if len(decisions) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Player, d.Decision))
	}
	return strings.Join(parts, ", ")
}
