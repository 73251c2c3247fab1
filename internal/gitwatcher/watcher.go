// Package gitwatcher implements the per-repository watcher described in
// spec.md §4.E: a file-system watch of .git/ that debounces bursts of
// change events into at most one state-read-and-diff cycle, emitting
// the resulting activities through a caller-supplied callback.
//
// The debounce logic is grounded on the teacher's
// WorkspaceTracker.monitorLoop (internal/agentctl/server/process/workspace_tracker.go):
// a trailing-edge timer reset on every event. loop keeps the
// {Idle, Scheduled, Processing} phases in its own locals (a nil timer
// channel while idle, a processing flag while a cycle runs) instead of
// the teacher's closure-captured timer variable.
package gitwatcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitexec"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
	"go.uber.org/zap"
)

// DefaultDebounce is the DEBOUNCE_DELAY from spec.md §4.E.
const DefaultDebounce = 400 * time.Millisecond

// watchDirDepth caps the recursive depth of the .git/refs/ walk.
const watchDirDepth = 10

// EmitFunc delivers one activity to its subscriber. Implementations must
// not block for long; the watcher delivers synchronously from its
// processing goroutine.
type EmitFunc func(activity.Activity)

// Clock abstracts time.Now for the timestamps of emitted activities; the
// debounce itself runs on a real time.Timer.
type Clock func() time.Time

// state names the per-watcher debounce phases; loop tracks the current
// phase through its timer channel and processing flag, not through st.
type state int

const (
	stateIdle state = iota
	stateScheduled
	stateProcessing
)

// Watcher observes a single repository's .git/ directory and emits local
// activities produced by the ActivityDetector.
type Watcher struct {
	store    *repostore.Store
	detector *activity.Detector
	debounce time.Duration
	timeout  time.Duration
	now      Clock
	log      *logger.Logger

	mu       sync.Mutex
	cfg      repostore.RepoConfig
	emit     EmitFunc
	st       state
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopped  bool
	wg       sync.WaitGroup
	watching bool
}

// New creates a Watcher bound to store for saving RepoConfig.Last and
// detector for classifying observations. debounce/timeout default to
// spec.md's 400ms/15s when zero.
func New(store *repostore.Store, detector *activity.Detector, debounce, timeout time.Duration, log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if timeout <= 0 {
		timeout = gitexec.DefaultTimeout
	}
	return &Watcher{
		store:    store,
		detector: detector,
		debounce: debounce,
		timeout:  timeout,
		now:      time.Now,
		log:      log.With(zap.String("component", "gitwatcher")),
	}
}

// Start begins observing cfg.Path. On a non-repo path it emits a single
// ERROR{command:"validation"} and returns without starting a watcher.
func (w *Watcher) Start(ctx context.Context, cfg repostore.RepoConfig, emit EmitFunc) {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return
	}
	w.cfg = cfg.Clone()
	w.emit = emit
	w.stopCh = make(chan struct{})
	w.stopped = false
	w.mu.Unlock()

	if !gitexec.IsGitRepository(ctx, cfg.Path) {
		emit(activity.New(cfg.ProjectID, cfg.ID, activity.Error{
			Message: "not a git repository",
			Command: "validation",
		}, w.now()))
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		emit(activity.New(cfg.ProjectID, cfg.ID, activity.Error{
			Message: err.Error(),
			Command: "file-watching",
		}, w.now()))
		return
	}

	w.mu.Lock()
	w.fsw = fsw
	w.watching = true
	w.mu.Unlock()

	if err := w.addWatchTargets(cfg.Path); err != nil {
		w.log.Warn("failed to add .git watch targets", zap.String("repo_id", cfg.ID), zap.Error(err))
	}

	w.wg.Add(1)
	go w.loop(ctx)
}

// UpdateConfig replaces the live RepoConfig snapshot so the next
// debounce cycle diffs against the new Last, per spec.md §4.F.
func (w *Watcher) UpdateConfig(cfg repostore.RepoConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg.Clone()
}

// IsWatching reports whether the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Stop ends observation and waits for the loop goroutine to exit, so a
// processing cycle that is running completes before Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.watching = false
	fsw := w.fsw
	stopCh := w.stopCh
	w.mu.Unlock()

	close(stopCh)
	if fsw != nil {
		_ = fsw.Close()
	}
	w.wg.Wait()
}

// addWatchTargets arms the fsnotify watcher on the .git/ directory itself,
// .git/HEAD, .git/index, and refs/ recursively up to watchDirDepth.
// Symlinks are not followed.
func (w *Watcher) addWatchTargets(repoPath string) error {
	gitDir := filepath.Join(repoPath, ".git")

	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}

	_ = fsw.Add(gitDir)
	_ = fsw.Add(filepath.Join(gitDir, "HEAD"))
	_ = fsw.Add(filepath.Join(gitDir, "index"))

	refsDir := filepath.Join(gitDir, "refs")
	return filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: refs/ may not exist yet
		}
		if !d.IsDir() {
			return nil
		}
		if depth(refsDir, path) > watchDirDepth {
			return filepath.SkipDir
		}
		if info, lerr := d.Info(); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		_ = fsw.Add(path)
		return nil
	})
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// loop is the single select-loop driving the debounce state machine.
func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	processing := false
	var pendingAfterProcessing bool

	armTimer := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	w.mu.Lock()
	fsw := w.fsw
	stopCh := w.stopCh
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			_ = event
			if processing {
				// is_processing latch: fold this event in, but don't arm a
				// new timer until the current run finishes.
				pendingAfterProcessing = true
				continue
			}
			armTimer()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err.Error(), "file-watching", "")
		case <-timerC:
			timerC = nil
			processing = true
			w.process(ctx)
			processing = false
			if pendingAfterProcessing {
				pendingAfterProcessing = false
				armTimer()
			}
		}
	}
}

// process runs one observation: read RepoState, detect, emit, advance Last.
func (w *Watcher) process(ctx context.Context) {
	w.mu.Lock()
	cfg := w.cfg.Clone()
	w.mu.Unlock()

	reader := gitstate.NewReader(cfg.Path, w.timeout, 0)
	next, err := reader.ReadRepoState(ctx)
	if err != nil {
		w.emitError(err.Error(), "process-changes", cfg.Path)
		return
	}

	acts := w.detector.DetectLocal(ctx, cfg.Last, next, cfg.ProjectID, cfg.ID, reader, w.now())
	for _, a := range acts {
		w.emit(a)
	}

	cloned := gitstate.Clone(next)
	w.mu.Lock()
	w.cfg.Last = &cloned
	w.mu.Unlock()
	w.store.SaveLast(cfg.ID, next)
}

func (w *Watcher) emitError(message, command, changedPath string) {
	w.mu.Lock()
	cfg := w.cfg
	emit := w.emit
	w.mu.Unlock()
	if emit == nil {
		return
	}
	emit(activity.New(cfg.ProjectID, cfg.ID, activity.Error{
		Message:     message,
		Command:     command,
		ChangedPath: changedPath,
	}, w.now()))
}
