// Package model provides the shared types for raw game logs and the records derived from them.
package model

import "encoding/json"

// RawLogEntry is one record appended by the game logger after a single player action.
type RawLogEntry struct {
	Timestamp    string          `json:"timestamp"`
	PlayerName   string          `json:"player_name,omitempty"`
	GameContext  GameContext     `json:"game_context"`
	ChatMessages []string        `json:"chat_messages,omitempty"`
	Result       *DecisionResult `json:"result,omitempty"`
}

// Turn returns the entry's turn number and whether it was present.
func (e RawLogEntry) Turn() (int, bool) {
	if e.GameContext.Global.CurrentTurn == nil {
		return 0, false
	}
	return *e.GameContext.Global.CurrentTurn, true
}

// GameContext is the full game snapshot carried by every entry.
type GameContext struct {
	Global  GlobalState               `json:"global"`
	Players map[string]PlayerSnapshot `json:"players"`
	Events  []GameEvent               `json:"events"`
}

// GlobalState holds game-wide counters.
// CurrentTurn is nil when the logger omitted it.
type GlobalState struct {
	CurrentTurn *int `json:"current_turn"`
}

// PlayerSnapshot is the state of one player slot at the time of an entry.
type PlayerSnapshot struct {
	Name       string             `json:"name"`
	Money      int                `json:"money"`
	Properties []PropertySnapshot `json:"properties"`
}

// PropertySnapshot describes a property owned by a player.
// Houses ranges 0-5 where 5 means a hotel.
type PropertySnapshot struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Name        string          `json:"name"`
	Group       string          `json:"group,omitempty"`
	Houses      int             `json:"houses"`
	IsMortgaged bool            `json:"is_mortgaged"`
	Owner       *string         `json:"owner,omitempty"`
}

// GameEvent is one line of the global game event log.
type GameEvent struct {
	Turn    int    `json:"turn"`
	Player  string `json:"player"`
	Message string `json:"message"`
}

// DecisionResult is the AI decision contributed by an entry.
type DecisionResult struct {
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}
