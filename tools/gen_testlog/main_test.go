package main

import (
	"bufio"
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
)

const sourceLog = `D 23:59:58.0000000 GameState.DebugPrintPower() - CREATE_GAME
D 23:59:58.1000000 GameState.DebugPrintPower() -     Player EntityID=2 PlayerID=1 GameAccountId=[hi=1 lo=11]
D 23:59:59.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=ENTITY_ID value=2
D 00:00:01.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=GameEntity tag=STATE value=COMPLETE
D 00:00:02.0000000 GameState.DebugPrintPower() - CREATE_GAME
D 00:00:03.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=ENTITY_ID value=2
`

func TestExtractMatchBlocks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Power.log")
	if err := os.WriteFile(path, []byte(sourceLog), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	blocks, err := extractMatchBlocks(path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// The second match never completed.
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if len(b.bodies) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(b.bodies))
	}
	if got := b.relTimes[3]; got != 3*time.Second {
		t.Errorf("relative time across midnight = %s, want 3s", got)
	}
}

func TestMutateRenamesPlayersConsistently(t *testing.T) {
	t.Parallel()

	b := MatchBlock{
		bodies: []string{
			"GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=ENTITY_ID value=2",
			"GameState.DebugPrintPower() - TAG_CHANGE Entity=Alice tag=MULLIGAN_STATE value=DONE",
			"GameState.DebugPrintPower() -     Player EntityID=2 PlayerID=1 GameAccountId=[hi=1 lo=11]",
		},
		relTimes: make([]time.Duration, 3),
	}
	out := mutate(b, rand.New(rand.NewSource(1)))

	for _, body := range out.bodies {
		if strings.Contains(body, "Alice") || strings.Contains(body, "lo=11]") {
			t.Errorf("original identity survived: %q", body)
		}
	}
	name := rePlayerName.FindStringSubmatch(out.bodies[0])[1]
	if !strings.Contains(out.bodies[1], "Entity="+name+" ") {
		t.Errorf("rename not applied consistently: %q vs %q", out.bodies[0], out.bodies[1])
	}
}

func TestGeneratedLogParses(t *testing.T) {
	t.Parallel()

	blocks := []MatchBlock{{
		bodies: []string{
			"GameState.DebugPrintPower() - CREATE_GAME",
			"GameState.DebugPrintPower() -     GameEntity EntityID=1",
			"GameState.DebugPrintPower() - TAG_CHANGE Entity=GameEntity tag=STATE value=COMPLETE",
		},
		relTimes: []time.Duration{0, time.Millisecond, time.Second},
	}}
	path := filepath.Join(t.TempDir(), "Hearthstone_2026_01_01_00_00_00", "Power.log")
	if err := generateFile(path, blocks, 2048, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), rand.New(rand.NewSource(7))); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) < 2048 {
		t.Errorf("file smaller than target: %d bytes", len(data))
	}

	res, err := parser.ParseReader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("parse generated log: %v", err)
	}
	want := bytes.Count(data, []byte("CREATE_GAME"))
	if len(res.Matches) != want {
		t.Errorf("parsed %d matches, want %d", len(res.Matches), want)
	}
}
