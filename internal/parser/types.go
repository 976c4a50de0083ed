package parser

import "fmt"

// Kind identifies the record type of a Node.
type Kind int

const (
	KindGame Kind = iota
	KindGameEntity
	KindPlayer
	KindFullEntity
	KindShowEntity
	KindChangeEntity
	KindAction
	KindMetaData
	KindMetaDataInfo
	KindTag
	KindTagChange
	KindHideEntity
	KindChoices
	KindChoice
	KindSendChoices
	KindOptions
	KindOption
	KindSubOption
	KindTarget
	KindSendOption
)

// Attribute names shared across kinds.
const (
	AttrID        = "id"
	AttrEntity    = "entity"
	AttrCardID    = "cardID"
	AttrPlayerID  = "playerID"
	AttrAccountHi = "accountHi"
	AttrAccountLo = "accountLo"
	AttrName      = "name"
	AttrType      = "type"
	AttrIndex     = "index"
	AttrTarget    = "target"
	AttrMeta      = "meta"
	AttrData      = "data"
	AttrInfo      = "info"
	AttrTag       = "tag"
	AttrValue     = "value"
	AttrMin       = "min"
	AttrMax       = "max"
	AttrSource    = "source"
	AttrOption    = "option"
	AttrSubOption = "subOption"
	AttrPosition  = "position"
)

type kindSpec struct {
	tag       string
	attrs     []string
	timestamp bool
}

var kindSpecs = [...]kindSpec{
	KindGame:         {tag: "Game", timestamp: true},
	KindGameEntity:   {tag: "GameEntity", attrs: []string{AttrID}},
	KindPlayer:       {tag: "Player", attrs: []string{AttrID, AttrPlayerID, AttrAccountHi, AttrAccountLo, AttrName}},
	KindFullEntity:   {tag: "FullEntity", attrs: []string{AttrID, AttrCardID}},
	KindShowEntity:   {tag: "ShowEntity", attrs: []string{AttrEntity, AttrCardID}},
	KindChangeEntity: {tag: "ChangeEntity", attrs: []string{AttrEntity, AttrCardID}},
	KindAction:       {tag: "Action", attrs: []string{AttrEntity, AttrType, AttrIndex, AttrTarget}, timestamp: true},
	KindMetaData:     {tag: "MetaData", attrs: []string{AttrMeta, AttrData, AttrInfo}},
	KindMetaDataInfo: {tag: "Info", attrs: []string{AttrIndex, AttrEntity}},
	KindTag:          {tag: "Tag", attrs: []string{AttrTag, AttrValue}},
	KindTagChange:    {tag: "TagChange", attrs: []string{AttrEntity, AttrTag, AttrValue}},
	KindHideEntity:   {tag: "HideEntity", attrs: []string{AttrEntity, AttrTag, AttrValue}, timestamp: true},
	KindChoices:      {tag: "Choices", attrs: []string{AttrEntity, AttrPlayerID, AttrType, AttrMin, AttrMax, AttrSource}, timestamp: true},
	KindChoice:       {tag: "Choice", attrs: []string{AttrIndex, AttrEntity}},
	KindSendChoices:  {tag: "SendChoices", attrs: []string{AttrEntity, AttrType}, timestamp: true},
	KindOptions:      {tag: "Options", attrs: []string{AttrID}, timestamp: true},
	KindOption:       {tag: "Option", attrs: []string{AttrIndex, AttrType, AttrEntity}},
	KindSubOption:    {tag: "SubOption", attrs: []string{AttrIndex, AttrEntity}},
	KindTarget:       {tag: "Target", attrs: []string{AttrIndex, AttrEntity}},
	KindSendOption:   {tag: "SendOption", attrs: []string{AttrOption, AttrSubOption, AttrTarget, AttrPosition}},
}

func (k Kind) spec() kindSpec {
	if k < 0 || int(k) >= len(kindSpecs) {
		panic(fmt.Sprintf("parser: unknown node kind %d", int(k)))
	}
	return kindSpecs[k]
}

// String returns the element name used when the kind is serialized.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindSpecs) {
		return "Unknown"
	}
	return kindSpecs[k].tag
}

// Attributes returns the fixed, ordered attribute names of the kind.
func (k Kind) Attributes() []string {
	return append([]string(nil), k.spec().attrs...)
}

// HasTimestamp reports whether nodes of this kind carry their line timestamp.
func (k Kind) HasTimestamp() bool {
	return k.spec().timestamp
}

func (k Kind) attrIndex(name string) int {
	for i, a := range k.spec().attrs {
		if a == name {
			return i
		}
	}
	return -1
}

// Value is a nullable attribute value: either plain text or a deferred
// reference to a player whose entity id may only become known later in the
// match.
type Value struct {
	text   string
	player string
	table  *PlayerTable
}

// Text wraps a plain string. The empty string is the null value.
func Text(s string) Value {
	return Value{text: s}
}

// Deferred returns a reference to the named player that is looked up in t
// each time it is rendered.
func Deferred(name string, t *PlayerTable) Value {
	return Value{player: name, table: t}
}

// IsZero reports whether the value is null and must be omitted on output.
func (v Value) IsZero() bool {
	return v.text == "" && v.player == ""
}

// IsDeferred reports whether the value is a player reference.
func (v Value) IsDeferred() bool {
	return v.player != ""
}

// PlayerName returns the raw player token of a deferred reference.
func (v Value) PlayerName() string {
	return v.player
}

func (v Value) String() string {
	if v.player == "" {
		return v.text
	}
	if id, ok := v.table.Lookup(v.player); ok {
		return id
	}
	return UnresolvedPlayer(v.player)
}

// UnresolvedPlayer is the placeholder rendered for a player name that never
// received an entity id.
func UnresolvedPlayer(name string) string {
	return fmt.Sprintf("UNKNOWN PLAYER: %q", name)
}

// Attribute is one rendered name/value pair.
type Attribute struct {
	Name  string
	Value string
}

// Node is one typed record of a match tree.
type Node struct {
	Kind      Kind
	Timestamp string
	Children  []*Node

	values []Value
}

// NewNode creates a node of the given kind. values fill the kind's attributes
// in catalog order; missing trailing values stay null.
func NewNode(kind Kind, ts string, values ...Value) *Node {
	attrs := kind.spec().attrs
	if len(values) > len(attrs) {
		panic(fmt.Sprintf("parser: %s takes %d attributes, got %d", kind, len(attrs), len(values)))
	}
	n := &Node{Kind: kind, Timestamp: ts, values: make([]Value, len(attrs))}
	copy(n.values, values)
	return n
}

// Attr returns the value of the named attribute, or the null value when the
// kind does not define it.
func (n *Node) Attr(name string) Value {
	i := n.Kind.attrIndex(name)
	if i < 0 {
		return Value{}
	}
	return n.values[i]
}

// SetAttr sets the named attribute. Setting an attribute outside the kind's
// set is a programming error.
func (n *Node) SetAttr(name string, v Value) {
	i := n.Kind.attrIndex(name)
	if i < 0 {
		panic(fmt.Sprintf("parser: %s has no attribute %q", n.Kind, name))
	}
	n.values[i] = v
}

// Append adds child as the last child of n.
func (n *Node) Append(child *Node) {
	n.Children = append(n.Children, child)
}

// Attributes returns the non-null attributes in catalog order. Deferred
// references are resolved at call time.
func (n *Node) Attributes() []Attribute {
	attrs := n.Kind.spec().attrs
	out := make([]Attribute, 0, len(attrs))
	for i, name := range attrs {
		v := n.values[i]
		if v.IsZero() {
			continue
		}
		s := v.String()
		if s == "" {
			continue
		}
		out = append(out, Attribute{Name: name, Value: s})
	}
	return out
}

// Walk calls fn for n and every descendant in document order. Returning false
// from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Match is one parsed game rooted at a Game node.
type Match struct {
	// Ordinal is the 1-based position of the match within its input.
	Ordinal int
	Root    *Node
	// ID is the root entity id, empty until the GameEntity line is seen.
	ID      string
	Players *PlayerTable
	Sealed  bool
}

// Timestamp returns the timestamp captured when the match was opened.
func (m *Match) Timestamp() string {
	if m == nil || m.Root == nil {
		return ""
	}
	return m.Root.Timestamp
}

// Warning is a non-fatal diagnostic about an input line that could not be
// placed in the tree.
type Warning struct {
	Line    int64
	Method  string
	Payload string
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s: %s: %q", w.Line, w.Method, w.Reason, w.Payload)
}

// Stats counts lines as they move through the parser.
type Stats struct {
	LinesSeen       int64
	LinesClassified int64
	LinesDispatched int64
	Warnings        int64
}

// ParseResult is the outcome of a complete pass over an input.
type ParseResult struct {
	Matches  []*Match
	Warnings []Warning
	Format   Format
	Stats    Stats
}
