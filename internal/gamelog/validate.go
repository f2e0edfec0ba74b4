package gamelog

import (
	"fmt"

	"monopolylog/internal/model"
)

// Validate checks that every entry carries the fields aggregation keys on.
// It stops at the first bad entry; the batch is unusable as a whole.
func Validate(entries []model.RawLogEntry) error {
	for idx, entry := range entries {
		turn, ok := entry.Turn()
		if !ok {
			return &EntryError{Index: idx, Field: "game_context.global.current_turn", Reason: "missing"}
		}
		if turn < 0 {
			return &EntryError{Index: idx, Field: "game_context.global.current_turn", Reason: fmt.Sprintf("negative turn %d", turn)}
		}
		if entry.GameContext.Players == nil {
			return &EntryError{Index: idx, Field: "game_context.players", Reason: "missing"}
		}
	}
	return nil
}
