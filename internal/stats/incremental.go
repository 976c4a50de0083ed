package stats

import "maps"

// IncrementalCalculator accumulates match summaries incrementally.
// Feed summaries one by one, then call Compute to get the current Totals.
// This avoids re-walking every stored match on each import.
type IncrementalCalculator struct {
	t *Totals
}

// NewIncrementalCalculator creates an empty accumulator.
func NewIncrementalCalculator() *IncrementalCalculator {
	return &IncrementalCalculator{
		t: &Totals{
			ActionsByType: make(map[string]int),
			ByPlayer:      make(map[string]int),
		},
	}
}

// Feed adds one match summary. nil is ignored.
func (ic *IncrementalCalculator) Feed(s *Summary) {
	if s == nil {
		return
	}
	t := ic.t
	t.Matches++
	t.Turns += s.Turns
	t.Actions += s.Actions
	t.TagChanges += s.TagChanges
	t.UnresolvedPlayers += s.Unresolved
	for typ, n := range s.ActionsByType {
		t.ActionsByType[typ] += n
	}
	for _, p := range s.Players {
		if p.Resolved {
			t.ByPlayer[p.Name]++
		}
	}
}

// Compute returns a snapshot of the accumulated totals. Later Feed calls do
// not affect it.
func (ic *IncrementalCalculator) Compute() *Totals {
	out := *ic.t
	out.ActionsByType = maps.Clone(ic.t.ActionsByType)
	out.ByPlayer = maps.Clone(ic.t.ByPlayer)
	return &out
}

// MatchCount returns the number of summaries fed so far.
func (ic *IncrementalCalculator) MatchCount() int {
	return ic.t.Matches
}
