package parser

import (
	"regexp"
	"strings"
)

var (
	reTag           = regexp.MustCompile(`^tag=(\w+) value=(\w+)`)
	reTagChange     = regexp.MustCompile(`^TAG_CHANGE Entity=(\[?.+\]?) tag=(\w+) value=(\w+)`)
	reFullEntityUpd = regexp.MustCompile(`^FULL_ENTITY - Updating (\[.+\]) CardID=(\w+)?$`)
	reFullEntityNew = regexp.MustCompile(`^FULL_ENTITY - Creating ID=(\d+) CardID=(\w+)?$`)
	reShowEntity    = regexp.MustCompile(`^SHOW_ENTITY - Updating Entity=(\[?.+\]?) CardID=(\w+)$`)
	reChangeEntity  = regexp.MustCompile(`^CHANGE_ENTITY - Updating Entity=(\[?.+\]?) CardID=(\w+)$`)
	reHideEntity    = regexp.MustCompile(`^HIDE_ENTITY - Entity=(\[.+\]) tag=(\w+) value=(\w+)`)
	reBlockStart    = regexp.MustCompile(`^ACTION_START (?:Entity=(\[?.+\]?) )?(?:SubType|BlockType)=(\w+) Index=(-1|\d+) Target=(\[?.+\]?)$`)
	reBlockStartNew = regexp.MustCompile(`^BLOCK_START BlockType=(\w+) Entity=(.+?) EffectCardId=.*? EffectIndex=(-1|\d+) Target=(\[.*?\]|\S+)(?: .*)?$`)
	reMetaData      = regexp.MustCompile(`^META_DATA - Meta=(\w+) Data=(\[?.+\]?) Info=(\d+)`)
	reMetaDataInfo  = regexp.MustCompile(`^Info\[(\d+)\] = (\[?.+\]?)$`)
	reGameEntity    = regexp.MustCompile(`^GameEntity EntityID=(\d+)`)
	rePlayerEntity  = regexp.MustCompile(`^Player EntityID=(\d+) PlayerID=(\d+) GameAccountId=\[hi=(\d+) lo=(\d+)\]$`)

	reChoicesHeader = regexp.MustCompile(`^id=(\d+) PlayerId=(\d+) ChoiceType=(\w+) CountMin=(\d+) CountMax=(\d+)$`)
	reChoicesSource = regexp.MustCompile(`^Source=(\[?.+\]?)$`)
	reChoicesEntity = regexp.MustCompile(`^Entities\[(\d+)\]=(\[.+\])$`)

	reSendChoicesHeader = regexp.MustCompile(`^id=(\d+) ChoiceType=(.+)$`)
	reSendChoicesEntity = regexp.MustCompile(`^m_chosenEntities\[(\d+)\]=(\[.+\])$`)

	reOptionsHeader = regexp.MustCompile(`^id=(\d+)$`)
	reOption        = regexp.MustCompile(`^option (\d+) type=(\w+) mainEntity=(.*)$`)
	reSubOption     = regexp.MustCompile(`^(subOption|target) (\d+) entity=(.*)$`)

	reSendOption = regexp.MustCompile(`^selectedOption=(\d+) selectedSubOption=(-1|\d+) selectedTarget=(\d+) selectedPosition=(\d+)`)
)

const (
	markerCreateGame = "CREATE_GAME"
	markerActionEnd  = "ACTION_END"
	markerBlockEnd   = "BLOCK_END"

	prefixActionStart = "ACTION_START "
	prefixBlockStart  = "BLOCK_START "

	tagEntityID      = "ENTITY_ID"
	tagCurrentPlayer = "CURRENT_PLAYER"
)

const reasonNoMatch = "no match in progress"

// splitIndent strips the leading whitespace of a payload and returns its width.
func splitIndent(payload string) (string, int) {
	stripped := strings.TrimLeft(payload, " \t")
	return stripped, len(payload) - len(stripped)
}

// handlePower applies the main event grammar. Rules are tried in a fixed
// priority order; the first match wins.
func (p *Parser) handlePower(rl RawLine) error {
	data, indent := splitIndent(rl.Payload)
	ts := rl.Timestamp

	// Lines that may open a match.
	if data == markerCreateGame {
		p.openMatch(ts)
		return nil
	}
	if m := reGameEntity.FindStringSubmatch(data); m != nil {
		return p.addGameEntity(rl, m[1])
	}

	st := p.cur
	if st == nil {
		p.warn(rl, reasonNoMatch)
		return nil
	}
	match := st.match

	if m := reTag.FindStringSubmatch(data); m != nil {
		if st.entityDef == nil {
			return p.inconsistent(rl, ErrNoEntityDefinition)
		}
		tag, value := m[1], m[2]
		if tag == tagCurrentPlayer && st.entityDef.Kind == KindPlayer && value != "0" {
			match.Players.SeedFirstPlayer(st.entityDef.Attr(AttrID).String())
		}
		st.entityDef.Append(NewNode(KindTag, ts, Text(tag), Text(value)))
		return nil
	}

	if m := reTagChange.FindStringSubmatch(data); m != nil {
		st.entityDef = nil
		entity, tag, value := m[1], m[2], m[3]
		if isNamedEntity(entity) {
			switch tag {
			case tagEntityID:
				match.Players.Register(entity, value)
			case tagCurrentPlayer:
				match.Players.UpdateCurrentPlayer(entity, value)
			}
		}
		node := NewNode(KindTagChange, ts, Resolve(entity, match), Text(tag), Text(value))

		// A block whose end marker was dropped shows up as a tag change
		// indented less than the block's contents.
		if st.top().indent > indent {
			st.pop()
		}
		top := st.top()
		top.node.Append(node)
		top.indent = indent
		return nil
	}

	m := reFullEntityUpd.FindStringSubmatch(data)
	if m == nil {
		m = reFullEntityNew.FindStringSubmatch(data)
	}
	if m != nil {
		node := NewNode(KindFullEntity, ts, Resolve(m[1], match), Text(m[2]))
		st.entityDef = node
		st.top().node.Append(node)
		return nil
	}

	if m := reShowEntity.FindStringSubmatch(data); m != nil {
		node := NewNode(KindShowEntity, ts, Resolve(m[1], match), Text(m[2]))
		st.entityDef = node
		st.top().node.Append(node)
		return nil
	}

	if m := reChangeEntity.FindStringSubmatch(data); m != nil {
		node := NewNode(KindChangeEntity, ts, Resolve(m[1], match), Text(m[2]))
		st.entityDef = node
		st.top().node.Append(node)
		return nil
	}

	if m := reHideEntity.FindStringSubmatch(data); m != nil {
		node := NewNode(KindHideEntity, ts, Resolve(m[1], match), Text(m[2]), Text(m[3]))
		st.top().node.Append(node)
		return nil
	}

	if m := reBlockStart.FindStringSubmatch(data); m != nil {
		node := NewNode(KindAction, ts, Resolve(m[1], match), Text(m[2]), Text(m[3]), Resolve(m[4], match))
		st.top().node.Append(node)
		st.push(node, indent)
		return nil
	}

	if m := reBlockStartNew.FindStringSubmatch(data); m != nil {
		node := NewNode(KindAction, ts, Resolve(m[2], match), Text(m[1]), Text(m[3]), Resolve(m[4], match))
		st.top().node.Append(node)
		st.push(node, indent)
		return nil
	}

	if strings.HasPrefix(data, prefixActionStart) || strings.HasPrefix(data, prefixBlockStart) {
		// The block's records stay with the enclosing node, but it still
		// gets a frame so its end marker and indentation pair up.
		st.push(st.top().node, indent)
		p.warn(rl, "unrecognized block start")
		return nil
	}

	if m := reMetaData.FindStringSubmatch(data); m != nil {
		node := NewNode(KindMetaData, ts, Text(m[1]), Resolve(m[2], match), Text(m[3]))
		st.metaData = node
		st.top().node.Append(node)
		return nil
	}

	if m := reMetaDataInfo.FindStringSubmatch(data); m != nil {
		if st.metaData == nil {
			return p.inconsistent(rl, ErrNoMetaData)
		}
		st.metaData.Append(NewNode(KindMetaDataInfo, ts, Text(m[1]), Resolve(m[2], match)))
		return nil
	}

	if m := rePlayerEntity.FindStringSubmatch(data); m != nil {
		id := m[1]
		node := NewNode(KindPlayer, ts, Text(id), Text(m[2]), Text(m[3]), Text(m[4]))
		if name, ok := match.Players.Names()[id]; ok {
			node.SetAttr(AttrName, Text(name))
		}
		st.entityDef = node
		st.top().node.Append(node)
		match.Players.AddPlayerNode(id, node)
		return nil
	}

	if data == markerActionEnd || data == markerBlockEnd {
		// End markers are not reliably paired in the source log; an end
		// with no open block is dropped.
		st.pop()
		return nil
	}

	p.warn(rl, "unrecognized payload")
	return nil
}

func (p *Parser) addGameEntity(rl RawLine, id string) error {
	if id != RootEntityID {
		p.warn(rl, "game entity id is not "+RootEntityID)
		return nil
	}
	if p.cur == nil || p.cur.match.ID != "" {
		p.openMatch(rl.Timestamp)
	}
	st := p.cur
	st.match.ID = id
	node := NewNode(KindGameEntity, rl.Timestamp, Text(id))
	st.entityDef = node
	st.top().node.Append(node)
	return nil
}

func (p *Parser) handleChoices(rl RawLine) error {
	data := strings.TrimSpace(rl.Payload)
	ts := rl.Timestamp
	st := p.cur
	if st == nil {
		p.warn(rl, reasonNoMatch)
		return nil
	}

	if m := reChoicesHeader.FindStringSubmatch(data); m != nil {
		node := NewNode(KindChoices, ts, Text(m[1]), Text(m[2]), Text(m[3]), Text(m[4]), Text(m[5]))
		st.top().node.Append(node)
		st.choices = node
		return nil
	}

	if m := reChoicesSource.FindStringSubmatch(data); m != nil {
		if st.choices == nil {
			return p.inconsistent(rl, ErrNoChoices)
		}
		st.choices.SetAttr(AttrSource, Resolve(m[1], st.match))
		return nil
	}

	if m := reChoicesEntity.FindStringSubmatch(data); m != nil {
		if st.choices == nil {
			return p.inconsistent(rl, ErrNoChoices)
		}
		st.choices.Append(NewNode(KindChoice, ts, Text(m[1]), Resolve(m[2], st.match)))
		return nil
	}

	p.warn(rl, "unrecognized choices payload")
	return nil
}

func (p *Parser) handleSendChoices(rl RawLine) error {
	data := strings.TrimSpace(rl.Payload)
	ts := rl.Timestamp
	st := p.cur
	if st == nil {
		p.warn(rl, reasonNoMatch)
		return nil
	}

	if m := reSendChoicesHeader.FindStringSubmatch(data); m != nil {
		node := NewNode(KindSendChoices, ts, Text(m[1]), Text(m[2]))
		st.top().node.Append(node)
		st.sendChoices = node
		return nil
	}

	if m := reSendChoicesEntity.FindStringSubmatch(data); m != nil {
		if st.sendChoices == nil {
			return p.inconsistent(rl, ErrNoSendChoices)
		}
		st.sendChoices.Append(NewNode(KindChoice, ts, Text(m[1]), Resolve(m[2], st.match)))
		return nil
	}

	p.warn(rl, "unrecognized send choices payload")
	return nil
}

func (p *Parser) handleOptions(rl RawLine) error {
	data := strings.TrimSpace(rl.Payload)
	ts := rl.Timestamp
	st := p.cur
	if st == nil {
		p.warn(rl, reasonNoMatch)
		return nil
	}

	if m := reOptionsHeader.FindStringSubmatch(data); m != nil {
		node := NewNode(KindOptions, ts, Text(m[1]))
		st.top().node.Append(node)
		st.options = node
		st.option = nil
		st.lastOption = nil
		return nil
	}

	if m := reOption.FindStringSubmatch(data); m != nil {
		if st.options == nil {
			return p.inconsistent(rl, ErrNoOptions)
		}
		node := NewNode(KindOption, ts, Text(m[1]), Text(m[2]), Resolve(m[3], st.match))
		st.options.Append(node)
		st.option = node
		// Targets that follow belong to the most recent option or sub option.
		st.lastOption = node
		return nil
	}

	if m := reSubOption.FindStringSubmatch(data); m != nil {
		index, entity := m[2], Resolve(m[3], st.match)
		if m[1] == "subOption" {
			if st.option == nil {
				return p.inconsistent(rl, ErrNoOption)
			}
			node := NewNode(KindSubOption, ts, Text(index), entity)
			st.option.Append(node)
			st.lastOption = node
			return nil
		}
		if st.lastOption == nil {
			return p.inconsistent(rl, ErrNoOption)
		}
		st.lastOption.Append(NewNode(KindTarget, ts, Text(index), entity))
		return nil
	}

	p.warn(rl, "unrecognized options payload")
	return nil
}

func (p *Parser) handleSendOption(rl RawLine) error {
	data := strings.TrimSpace(rl.Payload)
	st := p.cur
	if st == nil {
		p.warn(rl, reasonNoMatch)
		return nil
	}

	if m := reSendOption.FindStringSubmatch(data); m != nil {
		st.top().node.Append(NewNode(KindSendOption, rl.Timestamp, Text(m[1]), Text(m[2]), Text(m[3]), Text(m[4])))
		return nil
	}

	p.warn(rl, "unrecognized send option payload")
	return nil
}
