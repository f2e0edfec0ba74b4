package aggregate

import (
	"bytes"
	"encoding/json"

	"monopolylog/internal/model"
)

// ExportRecord is the reduced per-turn shape written by the decision export.
type ExportRecord struct {
	Turn      int
	Players   []ExportPlayer
	Decisions []model.Decision
	Chat      []string
}

// ExportPlayer is the slice of PlayerTurnStats kept in exports.
type ExportPlayer struct {
	Slot            string
	Name            string
	Money           int
	PropertiesCount int
}

// Project limits turn records to the exported fields.
func Project(records []model.TurnRecord) []ExportRecord {
	out := make([]ExportRecord, 0, len(records))
	for _, rec := range records {
		players := make([]ExportPlayer, 0, len(rec.Players))
		for _, p := range rec.Players {
			players = append(players, ExportPlayer{
				Slot:            p.Slot,
				Name:            p.Name,
				Money:           p.Money,
				PropertiesCount: p.PropertiesCount,
			})
		}
		out = append(out, ExportRecord{
			Turn:      rec.Turn,
			Players:   players,
			Decisions: rec.Decisions,
			Chat:      rec.Chat,
		})
	}
	return out
}

// MarshalJSON writes the flat export layout:
// turn, <slot>_name, <slot>_money, <slot>_properties_count per slot, decisions, chat.
func (r ExportRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"turn":`)
	if err := writeJSON(&buf, r.Turn); err != nil {
		return nil, err
	}

	for _, p := range r.Players {
		fields := []struct {
			key   string
			value any
		}{
			{p.Slot + "_name", p.Name},
			{p.Slot + "_money", p.Money},
			{p.Slot + "_properties_count", p.PropertiesCount},
		}
		for _, f := range fields {
			buf.WriteByte(',')
			if err := writeJSON(&buf, f.key); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSON(&buf, f.value); err != nil {
				return nil, err
			}
		}
	}

	decisions := r.Decisions
	if decisions == nil {
		decisions = []model.Decision{}
	}
	buf.WriteString(`,"decisions":`)
	if err := writeJSON(&buf, decisions); err != nil {
		return nil, err
	}

	chat := r.Chat
	if chat == nil {
		chat = []string{}
	}
	buf.WriteString(`,"chat":`)
	if err := writeJSON(&buf, chat); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
