package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback poll period used when fsnotify misses a
// write, which happens with the game running under Wine.
const DefaultPollInterval = 500 * time.Millisecond

const (
	powerLogName       = "Power.log"
	outputLogPattern   = "output_log*.txt"
	sessionDirPattern  = "Hearthstone_*"
	maxLineBufferBytes = 1024 * 1024
)

// LogWatcher tails one Hearthstone log file and reports newly written lines.
type LogWatcher struct {
	LogPath  string
	offset   int64
	watcher  *fsnotify.Watcher
	done     chan struct{}
	mu       sync.Mutex
	readMu   sync.Mutex
	stopOnce sync.Once

	cleanLogPath string
	pollInterval time.Duration
	onNewData    func(lines []string, startOffset int64, endOffset int64)
	onNewLogFile func(path string)
	onError      func(err error)
}

type WatcherConfig struct {
	// OnNewData receives the complete lines read from [startOffset, endOffset),
	// each with its line terminator. A trailing line without a newline is held
	// back until it is finished.
	OnNewData    func(lines []string, startOffset int64, endOffset int64)
	OnNewLogFile func(path string)
	OnError      func(err error)
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// NewLogWatcher creates a watcher for the given log file path
func NewLogWatcher(logPath string, cfg WatcherConfig) (*LogWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	return &LogWatcher{
		LogPath:      logPath,
		watcher:      w,
		done:         make(chan struct{}),
		cleanLogPath: filepath.Clean(logPath),
		pollInterval: poll,
		onNewData:    cfg.OnNewData,
		onNewLogFile: cfg.OnNewLogFile,
		onError:      cfg.OnError,
	}, nil
}

// Start begins watching for file changes. The directory holding the log is
// watched rather than the file; when that directory is a per-session folder,
// its parent is watched too so that the next session's folder is noticed.
func (lw *LogWatcher) Start() error {
	slog.Info("watcher starting", "path", lw.LogPath, "poll", lw.pollInterval)
	dir := filepath.Dir(lw.LogPath)
	if err := lw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	if isSessionDir(dir) {
		parent := filepath.Dir(dir)
		if err := lw.watcher.Add(parent); err != nil {
			slog.Warn("watch session parent failed", "dir", parent, "error", err)
		}
	}

	// An explicit offset (EOF after the initial import) skips the initial read.
	if lw.currentOffset() == 0 {
		if err := lw.readNewContent(); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("initial read failed", "path", lw.LogPath, "error", err)
		}
	}

	go lw.watchLoop()
	return nil
}

// Stop stops the watcher
func (lw *LogWatcher) Stop() {
	lw.stopOnce.Do(func() {
		slog.Info("watcher stopped", "path", lw.LogPath)
		close(lw.done)
		_ = lw.watcher.Close()
	})
}

// SetOffset sets the initial read offset (for resuming)
func (lw *LogWatcher) SetOffset(offset int64) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.offset = offset
}

// Offset returns the byte offset of the next unread line.
func (lw *LogWatcher) Offset() int64 {
	return lw.currentOffset()
}

func (lw *LogWatcher) currentOffset() int64 {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.offset
}

func (lw *LogWatcher) watchLoop() {
	ticker := time.NewTicker(lw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lw.done:
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			lw.handleEvent(event)
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			if lw.onError != nil {
				lw.onError(err)
			}
		case <-ticker.C:
			if err := lw.readNewContent(); err != nil && lw.onError != nil {
				lw.onError(err)
			}
		}
	}
}

func (lw *LogWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if event.Has(fsnotify.Create) {
		switch {
		case isSessionDir(name):
			if info, err := os.Stat(name); err == nil && info.IsDir() {
				if err := lw.watcher.Add(name); err != nil && lw.onError != nil {
					lw.onError(fmt.Errorf("watch session directory %s: %w", name, err))
				}
				// The game may have created Power.log before the watch was added.
				if p := filepath.Join(name, powerLogName); fileExists(p) && lw.onNewLogFile != nil {
					lw.onNewLogFile(p)
				}
			}
		case IsLogFile(name) && name != lw.cleanLogPath:
			if lw.onNewLogFile != nil {
				lw.onNewLogFile(event.Name)
			}
		}
	}
	if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && name == lw.cleanLogPath {
		if err := lw.readNewContent(); err != nil && lw.onError != nil {
			lw.onError(err)
		}
	}
}

func (lw *LogWatcher) readNewContent() error {
	lw.readMu.Lock()
	defer lw.readMu.Unlock()

	f, err := os.Open(lw.LogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()
	// The game truncates Power.log when it restarts.
	if info.Size() < lw.offset {
		slog.Info("log truncated, rereading from start", "path", lw.LogPath, "size", info.Size(), "offset", lw.offset)
		lw.offset = 0
	}
	if info.Size() <= lw.offset {
		return nil
	}
	startOffset := lw.offset

	if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
		return err
	}

	lines, consumed, err := readCompleteLines(io.LimitReader(f, info.Size()-startOffset))
	if err != nil {
		return err
	}
	if consumed == 0 {
		return nil
	}
	endOffset := startOffset + consumed
	lw.offset = endOffset

	if len(lines) > 0 && lw.onNewData != nil {
		slog.Debug("new data detected", "path", lw.LogPath, "lines", len(lines), "start", startOffset, "end", endOffset)
		lw.onNewData(lines, startOffset, endOffset)
	}
	return nil
}

// readCompleteLines returns the newline-terminated lines of r, terminators
// included, and the number of bytes they span. A trailing partial line is not
// consumed.
func readCompleteLines(r io.Reader) ([]string, int64, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	lines := make([]string, 0, 512)
	var consumed int64
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			return lines, consumed, nil
		}
		if err != nil {
			return nil, 0, err
		}
		consumed += int64(len(line))
		if len(line) > maxLineBufferBytes {
			slog.Warn("skipping oversized log line", "bytes", len(line))
			continue
		}
		lines = append(lines, line)
	}
}

// collectLogFiles lists every Hearthstone log found in dirs. It does not sort
// the results.
func collectLogFiles(dirs []string) []string {
	seen := make(map[string]bool)
	var files []string
	for _, dir := range dirs {
		expanded := expandHome(dir)
		for _, pattern := range []string{
			powerLogName,
			filepath.Join(sessionDirPattern, powerLogName),
			outputLogPattern,
		} {
			matches, err := filepath.Glob(filepath.Join(expanded, pattern))
			if err != nil {
				continue
			}
			for _, m := range matches {
				if !seen[m] && fileExists(m) {
					seen[m] = true
					files = append(files, m)
				}
			}
		}
	}
	return files
}

// DetectLatestLogFile finds the most recently written Hearthstone log. When
// dirs is empty the platform's default install locations are searched.
func DetectLatestLogFile(dirs ...string) (string, error) {
	candidates, err := DetectAllLogFiles(dirs...)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// DetectAllLogFiles finds all Hearthstone logs sorted newest first
func DetectAllLogFiles(dirs ...string) ([]string, error) {
	if len(dirs) == 0 {
		dirs = logDirectories()
	}
	candidates := collectLogFiles(dirs)

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no Hearthstone log files found in %s", strings.Join(dirs, ", "))
	}

	sortByModTimeDesc(candidates)
	return candidates, nil
}

func sortByModTimeDesc(paths []string) {
	modTimes := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			modTimes[p] = info.ModTime()
		}
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return modTimes[paths[i]].After(modTimes[paths[j]])
	})
}

// logDirectories returns OS-specific Hearthstone log directories
func logDirectories() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Hearthstone", "Logs"),
			filepath.Join(os.Getenv("ProgramFiles"), "Hearthstone", "Logs"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Blizzard", "Hearthstone", "Logs"),
			filepath.Join(os.Getenv("USERPROFILE"), "AppData", "LocalLow", "Blizzard Entertainment", "Hearthstone"),
		}
	case "linux":
		return []string{
			// Lutris / plain Wine prefix
			filepath.Join(home, "Games", "hearthstone", "drive_c", "Program Files (x86)", "Hearthstone", "Logs"),
			filepath.Join(home, ".wine", "drive_c", "Program Files (x86)", "Hearthstone", "Logs"),
		}
	case "darwin":
		return []string{
			"/Applications/Hearthstone/Logs",
			filepath.Join(home, "Library", "Logs", "Unity"),
		}
	default:
		return []string{}
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.Getenv("HOME")
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsLogFile reports whether path names a Power.log or a client output log.
func IsLogFile(path string) bool {
	name := filepath.Base(path)
	if name == powerLogName {
		return true
	}
	matched, err := filepath.Match(outputLogPattern, name)
	return err == nil && matched
}

func isSessionDir(path string) bool {
	matched, err := filepath.Match(sessionDirPattern, filepath.Base(path))
	return err == nil && matched
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
