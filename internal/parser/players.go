package parser

// PlayerTable maps the free-form player names used by the log to their
// entity ids. The log identifies players inconsistently, so the table is
// filled from two independent signals: an explicit ENTITY_ID tag change on a
// named entity, and CURRENT_PLAYER changes resolved by elimination against
// the first player seen in the game setup.
//
// A table belongs to exactly one match.
type PlayerTable struct {
	ids map[string]string

	// player entity id -> Player node, plus creation order
	nodes map[string]*Node
	order []string

	firstPlayer string
	consumed    map[string]bool
}

// NewPlayerTable returns an empty table.
func NewPlayerTable() *PlayerTable {
	return &PlayerTable{
		ids:      make(map[string]string),
		nodes:    make(map[string]*Node),
		consumed: make(map[string]bool),
	}
}

// Lookup returns the entity id registered for name.
func (t *PlayerTable) Lookup(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.ids[name]
	return id, ok
}

// Names returns the registered name for each player entity id.
func (t *PlayerTable) Names() map[string]string {
	out := make(map[string]string, len(t.ids))
	for name, id := range t.ids {
		out[id] = name
	}
	return out
}

// PlayerIDs returns the player entity ids in creation order.
func (t *PlayerTable) PlayerIDs() []string {
	return append([]string(nil), t.order...)
}

// PlayerNode returns the Player node created for entity id.
func (t *PlayerTable) PlayerNode(id string) *Node {
	return t.nodes[id]
}

// FirstPlayer returns the tentative first player's entity id, if seeded.
func (t *PlayerTable) FirstPlayer() string {
	return t.firstPlayer
}

// AddPlayerNode records the Player node created for entity id.
func (t *PlayerTable) AddPlayerNode(id string, n *Node) {
	if _, ok := t.nodes[id]; !ok {
		t.order = append(t.order, id)
	}
	t.nodes[id] = n
}

// SeedFirstPlayer marks entity id as the tentative first player.
func (t *PlayerTable) SeedFirstPlayer(id string) {
	t.firstPlayer = id
}

// Register maps name to entity id and names the matching Player node.
func (t *PlayerTable) Register(name, id string) {
	t.ids[name] = id
	if n, ok := t.nodes[id]; ok {
		n.SetAttr(AttrName, Text(name))
	}
}

// UpdateCurrentPlayer applies a CURRENT_PLAYER change on a named entity.
// Each of the values "0" and "1" resolves at most one name. The name is bound
// to an unassigned player node other than the first player; the first player
// is only taken once it is the last unassigned node. Without a seeded first
// player, or with no unassigned node left, the signal is ignored.
func (t *PlayerTable) UpdateCurrentPlayer(name, value string) {
	if value != "0" && value != "1" {
		return
	}
	if t.firstPlayer == "" || t.consumed[value] {
		return
	}
	if _, ok := t.ids[name]; ok {
		return
	}
	id, ok := t.eliminate()
	if !ok {
		return
	}
	t.consumed[value] = true
	t.Register(name, id)
}

func (t *PlayerTable) eliminate() (string, bool) {
	assigned := make(map[string]bool, len(t.ids))
	for _, id := range t.ids {
		assigned[id] = true
	}
	for _, id := range t.order {
		if id != t.firstPlayer && !assigned[id] {
			return id, true
		}
	}
	if _, ok := t.nodes[t.firstPlayer]; ok && !assigned[t.firstPlayer] {
		return t.firstPlayer, true
	}
	return "", false
}

// Unresolved returns the player entity ids that never received a name.
func (t *PlayerTable) Unresolved() []string {
	named := t.Names()
	var out []string
	for _, id := range t.order {
		if _, ok := named[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
