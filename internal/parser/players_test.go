package parser

import "testing"

func TestClassifyLocksFormat(t *testing.T) {
	var f Format
	if _, ok := Classify("unrelated noise", &f); ok || f != FormatUnknown {
		t.Fatalf("expected noise to leave the format unset, got %s", f)
	}
	rl, ok := Classify("D 01:02:03.4560000 GameState.DebugPrintPower() -     tag=ZONE value=PLAY\r\n", &f)
	if !ok {
		t.Fatal("expected power_log line to classify")
	}
	if f != FormatPowerLog {
		t.Fatalf("expected power_log format, got %s", f)
	}
	if rl.Timestamp != "01:02:03.4560000" || rl.Method != MethodPrintPower || rl.Payload != "    tag=ZONE value=PLAY" {
		t.Errorf("unexpected classified line %+v", rl)
	}
	if _, ok := Classify("[Power] GameState.DebugPrintPower() - CREATE_GAME", &f); ok {
		t.Error("expected output_log line to be skipped once power_log is locked")
	}

	var g Format
	rl, ok = Classify("[Power] GameState.DebugPrintOptions() - id=3", &g)
	if !ok || g != FormatOutputLog {
		t.Fatalf("expected output_log format, got %s", g)
	}
	if rl.Timestamp != "" || rl.Method != MethodPrintOptions {
		t.Errorf("unexpected classified line %+v", rl)
	}
}

func TestResolve(t *testing.T) {
	m := &Match{ID: RootEntityID, Players: NewPlayerTable()}
	m.Players.Register("Bob", "3")

	tests := []struct {
		raw      string
		want     string
		null     bool
		deferred bool
	}{
		{raw: "", null: true},
		{raw: "0", null: true},
		{raw: "[id=42 extra=stuff]", want: "42"},
		{raw: "[name=Fireball id=64 zone=HAND zonePos=3 cardId=CS2_029 player=1]", want: "64"},
		{raw: "GameEntity", want: "1"},
		{raw: "17", want: "17"},
		{raw: "Bob", want: "3"},
		{raw: "Carol", want: UnresolvedPlayer("Carol"), deferred: true},
	}
	for _, tt := range tests {
		v := Resolve(tt.raw, m)
		if v.IsZero() != tt.null {
			t.Errorf("Resolve(%q): IsZero = %v, want %v", tt.raw, v.IsZero(), tt.null)
			continue
		}
		if v.IsDeferred() != tt.deferred {
			t.Errorf("Resolve(%q): IsDeferred = %v, want %v", tt.raw, v.IsDeferred(), tt.deferred)
		}
		if !tt.null && v.String() != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.raw, v.String(), tt.want)
		}
	}

	if _, ok := m.Players.Lookup("Carol"); ok {
		t.Error("Resolve must not register names")
	}
}

func TestDeferredPlayerResolvesAfterParse(t *testing.T) {
	const input = `
D 10:00:00.0000000 GameState.DebugPrintPower() - CREATE_GAME
D 10:00:00.0000001 GameState.DebugPrintPower() -     GameEntity EntityID=1
D 10:00:01.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=MULLIGAN_STATE value=INPUT
D 10:00:01.0000001 GameState.DebugPrintPower() - TAG_CHANGE Entity=Carol tag=MULLIGAN_STATE value=INPUT
D 10:00:02.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=ENTITY_ID value=7
`
	result := parseString(t, input)
	tcs := childrenOfKind(result.Matches[0].Root, KindTagChange)
	if len(tcs) != 3 {
		t.Fatalf("expected 3 tag changes, got %d", len(tcs))
	}
	if !tcs[0].Attr(AttrEntity).IsDeferred() {
		t.Fatal("expected the first reference to Alice to be deferred")
	}
	if got := tcs[0].Attr(AttrEntity).String(); got != "7" {
		t.Errorf("expected Alice to resolve to 7, got %q", got)
	}
	if got := tcs[1].Attr(AttrEntity).String(); got != UnresolvedPlayer("Carol") {
		t.Errorf("expected Carol placeholder, got %q", got)
	}
	if got := tcs[2].Attr(AttrEntity).String(); got != "7" {
		t.Errorf("expected the ENTITY_ID change itself to carry 7, got %q", got)
	}
}

func newTwoPlayerTable() *PlayerTable {
	tbl := NewPlayerTable()
	tbl.AddPlayerNode("2", NewNode(KindPlayer, "", Text("2"), Text("1")))
	tbl.AddPlayerNode("3", NewNode(KindPlayer, "", Text("3"), Text("2")))
	return tbl
}

func TestUpdateCurrentPlayerElimination(t *testing.T) {
	tbl := newTwoPlayerTable()
	tbl.SeedFirstPlayer("2")

	tbl.UpdateCurrentPlayer("Bob", "0")
	if id, ok := tbl.Lookup("Bob"); !ok || id != "3" {
		t.Fatalf("expected Bob to take the non-first player 3, got %q (ok=%v)", id, ok)
	}
	if got := tbl.PlayerNode("3").Attr(AttrName).String(); got != "Bob" {
		t.Errorf("expected player node 3 to be named Bob, got %q", got)
	}

	// The value is spent; a second name with the same value is ignored.
	tbl.UpdateCurrentPlayer("Carol", "0")
	if _, ok := tbl.Lookup("Carol"); ok {
		t.Error("expected a consumed value to be ignored")
	}

	tbl.UpdateCurrentPlayer("Alice", "1")
	if id, ok := tbl.Lookup("Alice"); !ok || id != "2" {
		t.Fatalf("expected Alice to take the first player 2, got %q (ok=%v)", id, ok)
	}
	if un := tbl.Unresolved(); len(un) != 0 {
		t.Errorf("expected every player resolved, got %v", un)
	}
}

func TestUpdateCurrentPlayerIgnoredWithoutSignal(t *testing.T) {
	tbl := newTwoPlayerTable()
	tbl.UpdateCurrentPlayer("Bob", "0")
	if _, ok := tbl.Lookup("Bob"); ok {
		t.Error("expected no resolution without a seeded first player")
	}

	tbl.SeedFirstPlayer("2")
	tbl.UpdateCurrentPlayer("Bob", "2")
	if _, ok := tbl.Lookup("Bob"); ok {
		t.Error("expected values other than 0 and 1 to be ignored")
	}

	tbl.Register("Bob", "3")
	tbl.UpdateCurrentPlayer("Bob", "1")
	if id, _ := tbl.Lookup("Bob"); id != "3" {
		t.Errorf("expected an explicit mapping to win, got %q", id)
	}
}

func TestTurnOrderSignalsInLog(t *testing.T) {
	const input = `
D 10:00:00.0000000 GameState.DebugPrintPower() - CREATE_GAME
D 10:00:00.0000001 GameState.DebugPrintPower() -     GameEntity EntityID=1
D 10:00:00.0000002 GameState.DebugPrintPower() -     Player EntityID=2 PlayerID=1 GameAccountId=[hi=1 lo=11]
D 10:00:00.0000003 GameState.DebugPrintPower() -         tag=CURRENT_PLAYER value=1
D 10:00:00.0000004 GameState.DebugPrintPower() -     Player EntityID=3 PlayerID=2 GameAccountId=[hi=1 lo=12]
D 10:00:00.0000005 GameState.DebugPrintPower() -         tag=CURRENT_PLAYER value=0
D 10:00:01.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=Bob tag=CURRENT_PLAYER value=0
D 10:00:01.0000001 GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=CURRENT_PLAYER value=1
`
	result := parseString(t, input)
	m := result.Matches[0]
	if m.Players.FirstPlayer() != "2" {
		t.Fatalf("expected player 2 seeded as first player, got %q", m.Players.FirstPlayer())
	}
	names := m.Players.Names()
	if names["3"] != "Bob" || names["2"] != "Alice" {
		t.Errorf("unexpected name table %v", names)
	}
	tcs := childrenOfKind(m.Root, KindTagChange)
	if len(tcs) != 2 || tcs[0].Attr(AttrEntity).String() != "3" || tcs[1].Attr(AttrEntity).String() != "2" {
		t.Errorf("unexpected tag change entities:\n%s", dump(m.Root))
	}
}
