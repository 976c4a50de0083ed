package stats

// PlayerSummary describes one player entity of a match.
type PlayerSummary struct {
	EntityID  string
	PlayerID  string
	AccountHi string
	AccountLo string
	Name      string
	// Resolved is false when no identity signal ever named the player.
	Resolved bool
}

// Summary holds the headline figures of one parsed match
type Summary struct {
	Ordinal        int
	StartTimestamp string
	Players        []PlayerSummary

	// Turns is the highest TURN value set on the game entity.
	Turns int

	// Block counts
	Actions       int
	ActionsByType map[string]int

	// Record counts
	TagChanges   int
	Entities     int // FULL_ENTITY, SHOW_ENTITY and CHANGE_ENTITY records
	HiddenCards  int
	MetaData     int
	Choices      int
	Options      int
	SendOptions  int
	SendChoices  int
	Unresolved   int
	TotalRecords int
}

// ResolvedPlayers returns the number of players that received a name.
func (s *Summary) ResolvedPlayers() int {
	n := 0
	for _, p := range s.Players {
		if p.Resolved {
			n++
		}
	}
	return n
}

// Totals aggregates summaries across many matches
type Totals struct {
	Matches           int
	Turns             int
	Actions           int
	ActionsByType     map[string]int
	TagChanges        int
	UnresolvedPlayers int

	// Matches played per resolved player name
	ByPlayer map[string]int
}

// AverageTurns returns the mean turn count per match.
func (t *Totals) AverageTurns() float64 {
	if t.Matches == 0 {
		return 0
	}
	return float64(t.Turns) / float64(t.Matches)
}
