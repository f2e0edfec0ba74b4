// Package aggregate folds raw game log entries into one record per turn.
package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"monopolylog/internal/gamelog"
	"monopolylog/internal/model"
)

// Options controls a single aggregation run.
type Options struct {
	// SortByTimestamp stable-sorts entries by timestamp before folding.
	// The export path sets it; the live viewer keeps append order.
	SortByTimestamp bool
}

// Aggregate validates entries and folds them into turn records ordered by turn.
// Empty input yields an empty slice.
func Aggregate(entries []model.RawLogEntry, opts Options) ([]model.TurnRecord, error) {
	if err := gamelog.Validate(entries); err != nil {
		return nil, fmt.Errorf("aggregate turns: %w", err)
	}

	ordered := entries
	if opts.SortByTimestamp {
		ordered = sortByTimestamp(entries)
	}

	state := newFoldState()
	for _, entry := range ordered {
		state = state.apply(entry)
	}
	return state.records(), nil
}

// foldState is the accumulator threaded through the entries of one run.
// cursor is the length of the chat log already attributed to some turn; the
// chat array is shared by the whole match, not reset per turn.
type foldState struct {
	cursor int
	turns  map[int]*turnState
	slots  []string
	known  map[string]struct{}
}

type turnState struct {
	record  model.TurnRecord
	players map[string]model.PlayerTurnStats
}

func newFoldState() foldState {
	return foldState{
		turns: make(map[int]*turnState),
		known: make(map[string]struct{}),
	}
}

func (s foldState) apply(entry model.RawLogEntry) foldState {
	turn, _ := entry.Turn()
	s.slots = s.collectSlots(entry.GameContext.Players)

	events := eventsForTurn(entry.GameContext.Events, turn)
	ts, ok := s.turns[turn]
	if !ok {
		ts = &turnState{
			record: model.TurnRecord{
				Turn:      turn,
				Events:    events,
				Chat:      []string{},
				Decisions: []model.Decision{},
			},
			players: make(map[string]model.PlayerTurnStats),
		}
		s.turns[turn] = ts
	} else {
		ts.record.Events = mergeEvents(ts.record.Events, events)
	}

	// Latest entry wins for snapshot-derived fields.
	for slot, snap := range entry.GameContext.Players {
		ts.players[slot] = playerStats(slot, snap)
	}

	if n := len(entry.ChatMessages); n > s.cursor {
		ts.record.Chat = append(ts.record.Chat, entry.ChatMessages[s.cursor:n]...)
		s.cursor = n
	}

	if entry.Result != nil {
		ts.record.Decisions = append(ts.record.Decisions, model.Decision{
			Player:     entry.PlayerName,
			Decision:   entry.Result.Decision,
			Reason:     entry.Result.Reason,
			Confidence: entry.Result.Confidence,
		})
	}

	return s
}

// collectSlots appends slots not seen before, in natural order within one entry.
func (s foldState) collectSlots(players map[string]model.PlayerSnapshot) []string {
	var fresh []string
	for slot := range players {
		if _, ok := s.known[slot]; !ok {
			s.known[slot] = struct{}{}
			fresh = append(fresh, slot)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return naturalLess(fresh[i], fresh[j]) })
	return append(s.slots, fresh...)
}

// records materializes the turn records in ascending turn order. A slot with
// no snapshot in a turn carries its values forward from the previous turn.
func (s foldState) records() []model.TurnRecord {
	turns := make([]int, 0, len(s.turns))
	for turn := range s.turns {
		turns = append(turns, turn)
	}
	sort.Ints(turns)

	out := make([]model.TurnRecord, 0, len(turns))
	last := make(map[string]model.PlayerTurnStats, len(s.slots))
	for _, turn := range turns {
		ts := s.turns[turn]
		rec := ts.record
		rec.Players = make([]model.PlayerTurnStats, 0, len(s.slots))
		for _, slot := range s.slots {
			stats, ok := ts.players[slot]
			if !ok {
				stats, ok = last[slot]
				if !ok {
					stats = model.PlayerTurnStats{Slot: slot}
				}
			}
			last[slot] = stats
			rec.Players = append(rec.Players, stats)
		}
		out = append(out, rec)
	}
	return out
}

func playerStats(slot string, snap model.PlayerSnapshot) model.PlayerTurnStats {
	stats := model.PlayerTurnStats{
		Slot:            slot,
		Name:            snap.Name,
		Money:           snap.Money,
		PropertiesCount: len(snap.Properties),
	}
	for _, prop := range snap.Properties {
		if prop.IsMortgaged {
			stats.MortgagedCount++
		}
		stats.HousesCount += prop.Houses
	}
	return stats
}

func eventsForTurn(events []model.GameEvent, turn int) []model.GameEvent {
	matched := make([]model.GameEvent, 0)
	for _, ev := range events {
		if ev.Turn == turn {
			matched = append(matched, ev)
		}
	}
	return matched
}

// mergeEvents adds the events of a later entry for the same turn. The event
// log is cumulative, so an event is only appended when the later entry holds
// more copies of it than the record already has.
func mergeEvents(existing, incoming []model.GameEvent) []model.GameEvent {
	have := make(map[model.GameEvent]int, len(existing))
	for _, ev := range existing {
		have[ev]++
	}
	seen := make(map[model.GameEvent]int, len(incoming))
	for _, ev := range incoming {
		seen[ev]++
		if seen[ev] > have[ev] {
			existing = append(existing, ev)
			have[ev]++
		}
	}
	return existing
}

func sortByTimestamp(entries []model.RawLogEntry) []model.RawLogEntry {
	type keyed struct {
		at    time.Time
		entry model.RawLogEntry
	}
	items := make([]keyed, len(entries))
	for i, entry := range entries {
		// Unparsable timestamps sort first, in input order.
		at, _ := gamelog.ParseTimestamp(entry.Timestamp)
		items[i] = keyed{at: at, entry: entry}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.Before(items[j].at)
	})

	sorted := make([]model.RawLogEntry, len(items))
	for i, item := range items {
		sorted[i] = item.entry
	}
	return sorted
}

// naturalLess orders "player2" before "player10".
func naturalLess(a, b string) bool {
	pa, na, okA := splitNumericSuffix(a)
	pb, nb, okB := splitNumericSuffix(b)
	if okA && okB && pa == pb && na != nb {
		return na < nb
	}
	return a < b
}

func splitNumericSuffix(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}
