// Package livetail follows the active Hearthstone log, feeding new lines to
// the import service and switching files when the game starts a new session.
package livetail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AkatukiSora/powerlog-replay/internal/watcher"
)

// Importer is the part of the application service the tailer drives.
type Importer interface {
	ChangeLogFile(ctx context.Context, path string) error
	ImportLines(ctx context.Context, sourcePath string, lines []string, startOffset int64, endOffset int64) error
	NextOffset(ctx context.Context, path string) (int64, error)
	MarkLogFullyImported(ctx context.Context, path string)
	FlushActive(ctx context.Context) error
}

// Config holds optional tailer callbacks.
type Config struct {
	PollInterval time.Duration
	// OnImported is called after each chunk of lines is stored.
	OnImported func(path string, lines int)
	// OnSwitch is called after the tailer moved to a new log file.
	OnSwitch func(path string)
}

// Tailer owns at most one LogWatcher at a time. Callbacks from a replaced
// watcher are discarded by comparing generations.
type Tailer struct {
	ctx     context.Context
	service Importer
	cfg     Config

	mu             sync.Mutex
	logPath        string
	watcher        *watcher.LogWatcher
	watcherGen     uint64
	changeReqCh    chan string
	workerStopCh   chan struct{}
	workerWG       sync.WaitGroup
	closeOnce      sync.Once
	isShuttingDown bool
}

func New(ctx context.Context, service Importer, cfg Config) *Tailer {
	return &Tailer{ctx: ctx, service: service, cfg: cfg}
}

// Run follows path, which must already be active in the service, until ctx
// is done. The in-progress match is flushed before returning.
func (t *Tailer) Run(path string) error {
	t.startLogChangeWorker()
	if err := t.follow(path); err != nil {
		t.shutdown()
		return err
	}

	<-t.ctx.Done()
	t.shutdown()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.service.FlushActive(flushCtx); err != nil {
		return fmt.Errorf("flush active match: %w", err)
	}
	if err := t.ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// LogPath returns the file currently followed.
func (t *Tailer) LogPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logPath
}

func (t *Tailer) startLogChangeWorker() {
	t.mu.Lock()
	if t.changeReqCh != nil {
		t.mu.Unlock()
		return
	}
	t.changeReqCh = make(chan string, 1)
	t.workerStopCh = make(chan struct{})
	changeReqCh := t.changeReqCh
	stopCh := t.workerStopCh
	t.mu.Unlock()

	t.workerWG.Add(1)
	go func() {
		defer t.workerWG.Done()
		for {
			select {
			case <-stopCh:
				return
			case path := <-changeReqCh:
				t.changeLogFile(path)
			}
		}
	}()
}

// requestLogFileChange queues a switch. Only the latest pending request is
// kept.
func (t *Tailer) requestLogFileChange(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	if t.isShuttingDown || t.changeReqCh == nil {
		t.mu.Unlock()
		return
	}
	changeReqCh := t.changeReqCh
	t.mu.Unlock()

	select {
	case changeReqCh <- path:
	default:
		select {
		case <-changeReqCh:
		default:
		}
		select {
		case changeReqCh <- path:
		default:
		}
	}
}

func (t *Tailer) changeLogFile(path string) {
	prev := t.LogPath()
	if path == prev {
		return
	}
	slog.Info("switching to new log file", "from", prev, "to", path)

	t.stopWatcher()
	t.service.MarkLogFullyImported(t.ctx, prev)
	if err := t.service.ChangeLogFile(t.ctx, path); err != nil {
		slog.Error("failed to activate log file", "path", path, "error", err)
		return
	}
	if err := t.follow(path); err != nil {
		slog.Error("failed to follow log file", "path", path, "error", err)
		return
	}
	if t.cfg.OnSwitch != nil {
		t.cfg.OnSwitch(path)
	}
}

func (t *Tailer) stopWatcher() {
	t.mu.Lock()
	t.watcherGen++
	prevWatcher := t.watcher
	t.watcher = nil
	t.mu.Unlock()
	if prevWatcher != nil {
		prevWatcher.Stop()
	}
}

// follow starts a watcher on path from the service's next offset.
func (t *Tailer) follow(path string) error {
	t.mu.Lock()
	t.watcherGen++
	gen := t.watcherGen
	t.mu.Unlock()

	w, err := watcher.NewLogWatcher(path, watcher.WatcherConfig{
		PollInterval: t.cfg.PollInterval,
		OnNewData: func(lines []string, startOffset int64, endOffset int64) {
			if !t.isCurrentWatcherGeneration(gen) {
				return
			}
			if err := t.service.ImportLines(t.ctx, path, lines, startOffset, endOffset); err != nil {
				if t.ctx.Err() == nil {
					slog.Error("import error", "path", path, "error", err)
				}
				return
			}
			if t.cfg.OnImported != nil {
				t.cfg.OnImported(path, len(lines))
			}
		},
		OnNewLogFile: func(newPath string) {
			if !t.isCurrentWatcherGeneration(gen) {
				return
			}
			t.requestLogFileChange(newPath)
		},
		OnError: func(err error) {
			if !t.isCurrentWatcherGeneration(gen) {
				return
			}
			slog.Warn("watcher error", "path", path, "error", err)
		},
	})
	if err != nil {
		return err
	}

	// The service already parsed everything before the offset.
	if offset, err := t.service.NextOffset(t.ctx, path); err == nil && offset > 0 {
		w.SetOffset(offset)
	} else if info, err := os.Stat(path); err == nil {
		w.SetOffset(info.Size())
	}

	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.watcherGen == gen && !t.isShuttingDown {
		t.watcher = w
		t.logPath = path
	} else {
		w.Stop()
	}
	return nil
}

func (t *Tailer) isCurrentWatcherGeneration(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.isShuttingDown && t.watcherGen == gen
}

func (t *Tailer) shutdown() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.isShuttingDown = true
		t.watcherGen++
		stopCh := t.workerStopCh
		prevWatcher := t.watcher
		t.watcher = nil
		t.mu.Unlock()

		if prevWatcher != nil {
			prevWatcher.Stop()
		}
		if stopCh != nil {
			close(stopCh)
		}
		t.workerWG.Wait()
	})
}
