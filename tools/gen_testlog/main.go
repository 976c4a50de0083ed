// gen_testlog generates synthetic Hearthstone Power.log files for testing.
//
// It reads existing Power.log files to extract real match blocks (from one
// "CREATE_GAME" line to the next), then reassembles them, with player names
// and account ids shuffled, into session folders of varying sizes.
//
// Usage:
//
//	go run ./tools/gen_testlog [flags]
//
// Flags:
//
//	--input-dir   directory containing real Power.log files, searched recursively (default: ".")
//	--output-dir  where to write generated session folders (default: "./testdata/generated")
//	--count       number of files to generate (default: 20)
//	--min-size    minimum file size in bytes (default: 1048576  = 1 MiB)
//	--max-size    maximum file size in bytes (default: 20971520 = 20 MiB)
//	--seed        random seed; 0 = use current time (default: 0)
//	--start-date  base date for session folder names, YYYY-MM-DD (default: 2026-01-01)
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
)

// ─────────────────────────────────────────────────────────────────────────────
// Regex patterns
// ─────────────────────────────────────────────────────────────────────────────

var (
	reLine       = regexp.MustCompile(`^D (\d{2}:\d{2}:\d{2}\.\d{7}) (.+)$`)
	rePlayerName = regexp.MustCompile(`TAG_CHANGE Entity=(.+?) tag=ENTITY_ID value=\d+`)
	reAccountLo  = regexp.MustCompile(`(GameAccountId=\[hi=\d+ lo=)(\d+)(\])`)
	reComplete   = regexp.MustCompile(`tag=STATE value=COMPLETE`)
)

const timeLayout = "15:04:05.0000000"

// ─────────────────────────────────────────────────────────────────────────────
// MatchBlock: one complete match worth of log lines (no timestamps)
// ─────────────────────────────────────────────────────────────────────────────

// MatchBlock stores a single match extracted from a real log file.
type MatchBlock struct {
	// bodies holds everything after the timestamp of each line
	// ("GameState.DebugPrintPower() - ...").
	bodies []string
	// relTimes holds the duration from the start of the block for each line.
	relTimes []time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// Extraction
// ─────────────────────────────────────────────────────────────────────────────

// extractMatchBlocks reads a Power.log and returns every complete match in
// it. A block starts at a CREATE_GAME line and ends just before the next one.
// The last block is kept only if the game entity reached STATE COMPLETE.
func extractMatchBlocks(path string) ([]MatchBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []MatchBlock
	var cur *MatchBlock
	var blockStart, prev time.Time
	var dayShift time.Duration
	complete := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MiB line buffer
	for scanner.Scan() {
		line := scanner.Text()
		m := reLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := time.Parse(timeLayout, m[1])
		if err != nil {
			continue
		}
		// Power.log timestamps carry no date; a backwards jump is midnight.
		if ts.Add(dayShift).Before(prev) {
			dayShift += 24 * time.Hour
		}
		ts = ts.Add(dayShift)
		prev = ts

		if parser.IsMatchStartLine(line) {
			if cur != nil && len(cur.bodies) > 0 {
				blocks = append(blocks, *cur)
			}
			cur = &MatchBlock{}
			blockStart = ts
			complete = false
		}

		if cur != nil {
			cur.bodies = append(cur.bodies, m[2])
			cur.relTimes = append(cur.relTimes, ts.Sub(blockStart))
			if reComplete.MatchString(m[2]) {
				complete = true
			}
		}
	}
	if cur != nil && complete {
		blocks = append(blocks, *cur)
	}

	return blocks, scanner.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutation
// ─────────────────────────────────────────────────────────────────────────────

var namePool = []string{
	"Aldous", "Brann", "Cariel", "Dalaran", "Elise", "Finley", "Garrosh", "Hedanis",
	"Illucia", "Jaraxxus", "Kazakus", "Lorewalker", "Malfurion", "Nozdormu", "Oondasta", "Pyros",
}

// mutate replaces player names and account ids consistently within a block.
func mutate(b MatchBlock, rng *rand.Rand) MatchBlock {
	names := make(map[string]string)
	perm := rng.Perm(len(namePool))
	for _, body := range b.bodies {
		if m := rePlayerName.FindStringSubmatch(body); m != nil {
			if _, ok := names[m[1]]; !ok && len(names) < len(perm) {
				names[m[1]] = fmt.Sprintf("%s#%d", namePool[perm[len(names)]], 1000+rng.Intn(9000))
			}
		}
	}

	out := MatchBlock{
		bodies:   make([]string, len(b.bodies)),
		relTimes: b.relTimes,
	}
	for i, body := range b.bodies {
		for orig, repl := range names {
			body = strings.ReplaceAll(body, "Entity="+orig+" ", "Entity="+repl+" ")
		}
		body = reAccountLo.ReplaceAllStringFunc(body, func(s string) string {
			parts := reAccountLo.FindStringSubmatch(s)
			return parts[1] + strconv.Itoa(10000000+rng.Intn(90000000)) + parts[3]
		})
		out.bodies[i] = body
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Noise lines (other printers the importer ignores)
// ─────────────────────────────────────────────────────────────────────────────

var noiseTemplates = []string{
	"PowerTaskList.DebugDump() - ID=%d ParentID=0 PreviousID=0 TaskCount=%d",
	"PowerTaskList.DebugPrintPower() -     TAG_CHANGE Entity=GameEntity tag=NUM_TURNS_IN_PLAY value=%d",
	"PowerProcessor.PrepareHistoryForCurrentTaskList() - m_currentTaskList=%d",
	"PowerProcessor.EndCurrentTaskList() - m_currentTaskList=%d",
	"GameState.DebugPrintEntityChoices() - id=%d Player=UNKNOWN ChoiceType=GENERAL",
}

// writeNoise writes n noise lines starting from t and returns the updated time.
func writeNoise(w *bufio.Writer, rng *rand.Rand, t time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		tmpl := noiseTemplates[rng.Intn(len(noiseTemplates))]
		var msg string
		if strings.Count(tmpl, "%d") == 2 {
			msg = fmt.Sprintf(tmpl, rng.Intn(500), rng.Intn(20))
		} else {
			msg = fmt.Sprintf(tmpl, rng.Intn(500))
		}
		fmt.Fprintf(w, "D %s %s\n", t.Format(timeLayout), msg)
		t = t.Add(time.Duration(rng.Intn(900)+100) * time.Millisecond)
	}
	return t
}

// ─────────────────────────────────────────────────────────────────────────────
// Match block writer
// ─────────────────────────────────────────────────────────────────────────────

// writeMatchBlock emits all lines of a block into w, timestamping each line at
// t plus the block's relative offsets. Returns the time after the last line.
func writeMatchBlock(w *bufio.Writer, b MatchBlock, t time.Time) time.Time {
	for i, body := range b.bodies {
		fmt.Fprintf(w, "D %s %s\n", t.Add(b.relTimes[i]).Format(timeLayout), body)
	}
	if len(b.relTimes) > 0 {
		return t.Add(b.relTimes[len(b.relTimes)-1] + 30*time.Second)
	}
	return t.Add(30 * time.Second)
}

// ─────────────────────────────────────────────────────────────────────────────
// File generator
// ─────────────────────────────────────────────────────────────────────────────

// generateFile creates a single synthetic Power.log at path. It keeps adding
// match blocks, interspersed with noise, until the file reaches targetSize.
func generateFile(path string, pool []MatchBlock, targetSize int64, baseTime time.Time, rng *rand.Rand) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20) // 1 MiB write buffer
	t := writeNoise(w, rng, baseTime, 3+rng.Intn(10))

	for {
		block := mutate(pool[rng.Intn(len(pool))], rng)
		t = writeMatchBlock(w, block, t)

		if err := w.Flush(); err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() >= targetSize {
			break
		}

		if rng.Float64() < 0.50 {
			t = writeNoise(w, rng, t, 1+rng.Intn(10))
		}
	}
	return w.Flush()
}

// ─────────────────────────────────────────────────────────────────────────────
// main
// ─────────────────────────────────────────────────────────────────────────────

func findPowerLogs(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "Power.log" {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func main() {
	inputDir := flag.String("input-dir", ".", "directory with real Power.log files")
	outputDir := flag.String("output-dir", "testdata/generated", "output directory")
	count := flag.Int("count", 20, "number of files to generate")
	minSize := flag.Int64("min-size", 1024*1024, "minimum file size in bytes (default 1 MiB)")
	maxSize := flag.Int64("max-size", 20*1024*1024, "maximum file size in bytes (default 20 MiB)")
	seed := flag.Int64("seed", 0, "random seed (0 = use current Unix time)")
	startDate := flag.String("start-date", "2026-01-01", "base date for session folders, YYYY-MM-DD")
	flag.Parse()

	if *count < 1 {
		fmt.Fprintln(os.Stderr, "error: --count must be >= 1")
		os.Exit(1)
	}
	if *minSize > *maxSize {
		fmt.Fprintln(os.Stderr, "error: --min-size must be <= --max-size")
		os.Exit(1)
	}

	actualSeed := *seed
	if actualSeed == 0 {
		actualSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(actualSeed))
	fmt.Printf("seed: %d\n", actualSeed)

	baseTime, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --start-date %q: %v\n", *startDate, err)
		os.Exit(1)
	}

	inputs, err := findPowerLogs(*inputDir)
	if err != nil || len(inputs) == 0 {
		fmt.Fprintf(os.Stderr, "error: no Power.log files found in %q\n", *inputDir)
		os.Exit(1)
	}

	fmt.Printf("scanning %d input file(s)...\n", len(inputs))
	var pool []MatchBlock
	for _, path := range inputs {
		blocks, err := extractMatchBlocks(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", path, err)
			continue
		}
		pool = append(pool, blocks...)
		fmt.Printf("  %s: %d matches\n", path, len(blocks))
	}
	if len(pool) == 0 {
		fmt.Fprintln(os.Stderr, "error: no complete matches extracted from input files")
		os.Exit(1)
	}
	fmt.Printf("match pool: %d blocks\n", len(pool))

	sizeRange := *maxSize - *minSize
	t := baseTime
	for i := 0; i < *count; i++ {
		targetSize := *minSize
		if sizeRange > 0 {
			targetSize += rng.Int63n(sizeRange + 1)
		}

		// Stagger each session by 30 min – 3 h.
		t = t.Add(time.Duration(30+rng.Intn(150)) * time.Minute)

		session := "Hearthstone_" + t.Format("2006_01_02_15_04_05")
		outPath := filepath.Join(*outputDir, session, "Power.log")
		if err := generateFile(outPath, pool, targetSize, t, rng); err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", outPath, err)
			os.Exit(1)
		}

		info, _ := os.Stat(outPath)
		fmt.Printf("[%3d/%d] %s  %s\n", i+1, *count, session, humanize.IBytes(uint64(info.Size())))
	}

	fmt.Printf("\ndone: %d files written to %s\n", *count, *outputDir)
}
