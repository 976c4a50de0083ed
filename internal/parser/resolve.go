package parser

import "regexp"

// RootEntityID is the entity id reserved for the game entity of every match.
const RootEntityID = "1"

const gameEntityAlias = "GameEntity"

var reEntityDescriptor = regexp.MustCompile(`^\[.*\bid=(\d+).*\]`)

// Resolve maps a raw entity token from the log to an attribute value.
//
// Bracketed descriptors yield their id, "0" and the empty string yield null,
// "GameEntity" yields the match's root id and bare digits are used verbatim.
// Anything else is a player name: the mapped id when m already knows it, a
// deferred reference otherwise. Resolve never modifies m.
func Resolve(raw string, m *Match) Value {
	if raw == "" {
		return Value{}
	}
	if sm := reEntityDescriptor.FindStringSubmatch(raw); sm != nil {
		return Text(sm[1])
	}
	if raw == "0" {
		return Value{}
	}
	if raw == gameEntityAlias {
		if m == nil {
			return Value{}
		}
		return Text(m.ID)
	}
	if isDigits(raw) {
		return Text(raw)
	}
	if m == nil {
		return Deferred(raw, nil)
	}
	if id, ok := m.Players.Lookup(raw); ok {
		return Text(id)
	}
	return Deferred(raw, m.Players)
}

// isNamedEntity reports whether raw names a player rather than an entity
// descriptor, an id or the game entity.
func isNamedEntity(raw string) bool {
	return raw != "" && !isDigits(raw) && raw[0] != '[' && raw != gameEntityAlias
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
