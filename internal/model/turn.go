package model

// Net worth weights used by the dashboard. Display only.
const (
	PropertyValue = 200
	HouseValue    = 50
)

// TurnRecord summarizes every raw entry that shares a turn number.
type TurnRecord struct {
	Turn      int               `json:"turn"`
	Players   []PlayerTurnStats `json:"players"`
	Events    []GameEvent       `json:"events"`
	Chat      []string          `json:"chat"`
	Decisions []Decision        `json:"decisions"`
}

// PlayerTurnStats holds the latest snapshot-derived values of one player slot for a turn.
type PlayerTurnStats struct {
	Slot            string `json:"slot"`
	Name            string `json:"name"`
	Money           int    `json:"money"`
	PropertiesCount int    `json:"properties_count"`
	MortgagedCount  int    `json:"mortgaged_count"`
	HousesCount     int    `json:"houses_count"`
}

// Decision is an AI decision attributed to a turn.
type Decision struct {
	Player     string  `json:"player"`
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// NetWorth is the fixed heuristic valuation shown next to a player.
func NetWorth(s PlayerTurnStats) int {
	return s.Money + s.PropertiesCount*PropertyValue + s.HousesCount*HouseValue
}

// Player returns the stats for slot, if the record has it.
func (r TurnRecord) Player(slot string) (PlayerTurnStats, bool) {
	for _, p := range r.Players {
		if p.Slot == slot {
			return p, true
		}
	}
	return PlayerTurnStats{}, false
}
