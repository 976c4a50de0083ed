package stats

import (
	"strconv"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
)

const (
	tagTurn = "TURN"
)

// Calculator computes match summaries from parsed trees
type Calculator struct{}

// NewCalculator creates a new summary calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Summarize walks one match tree. Deferred player references are resolved at
// call time, so summaries of an in-progress match may change later.
func (c *Calculator) Summarize(m *parser.Match) *Summary {
	s := &Summary{ActionsByType: make(map[string]int)}
	if m == nil || m.Root == nil {
		return s
	}
	s.Ordinal = m.Ordinal
	s.StartTimestamp = m.Timestamp()

	rootID := m.ID
	if rootID == "" {
		rootID = parser.RootEntityID
	}

	m.Root.Walk(func(n *parser.Node) bool {
		if n != m.Root {
			s.TotalRecords++
		}
		switch n.Kind {
		case parser.KindGameEntity:
			// Definition tags of the game entity carry the starting turn.
			for _, tag := range n.Children {
				if tag.Kind == parser.KindTag && tag.Attr(parser.AttrTag).String() == tagTurn {
					s.Turns = max(s.Turns, atoi(tag.Attr(parser.AttrValue).String()))
				}
			}
		case parser.KindPlayer:
			s.Players = append(s.Players, c.player(n))
		case parser.KindAction:
			s.Actions++
			s.ActionsByType[n.Attr(parser.AttrType).String()]++
		case parser.KindTagChange:
			s.TagChanges++
			if n.Attr(parser.AttrTag).String() == tagTurn && n.Attr(parser.AttrEntity).String() == rootID {
				s.Turns = max(s.Turns, atoi(n.Attr(parser.AttrValue).String()))
			}
		case parser.KindFullEntity, parser.KindShowEntity, parser.KindChangeEntity:
			s.Entities++
		case parser.KindHideEntity:
			s.HiddenCards++
		case parser.KindMetaData:
			s.MetaData++
		case parser.KindChoices:
			s.Choices++
		case parser.KindSendChoices:
			s.SendChoices++
		case parser.KindOptions:
			s.Options++
		case parser.KindSendOption:
			s.SendOptions++
		}
		return true
	})

	for _, p := range s.Players {
		if !p.Resolved {
			s.Unresolved++
		}
	}
	return s
}

func (c *Calculator) player(n *parser.Node) PlayerSummary {
	name := n.Attr(parser.AttrName)
	return PlayerSummary{
		EntityID:  n.Attr(parser.AttrID).String(),
		PlayerID:  n.Attr(parser.AttrPlayerID).String(),
		AccountHi: n.Attr(parser.AttrAccountHi).String(),
		AccountLo: n.Attr(parser.AttrAccountLo).String(),
		Name:      name.String(),
		Resolved:  !name.IsZero(),
	}
}

// Calculate summarizes every match and aggregates the result.
func (c *Calculator) Calculate(matches []*parser.Match) *Totals {
	ic := NewIncrementalCalculator()
	for _, m := range matches {
		ic.Feed(c.Summarize(m))
	}
	return ic.Compute()
}

// Summarize is a shorthand for NewCalculator().Summarize(m).
func Summarize(m *parser.Match) *Summary {
	return NewCalculator().Summarize(m)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
