// Package watcher notices ref updates in a git repository (commits,
// checkouts, fetches) and reports them after a debounce, so cached labels
// can be refreshed.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/gitfold/internal/log"
)

// Watcher monitors HEAD, packed-refs and the refs tree.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	gitDir    string
	commonDir string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// GitDir is the repository's git directory, usually <root>/.git.
	GitDir   string
	Debounce time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(gitDir string) Config {
	return Config{
		GitDir:   gitDir,
		Debounce: 250 * time.Millisecond,
	}
}

// GitDir locates the git directory of the work tree at root, following a
// "gitdir:" file as used by linked worktrees and submodules.
func GitDir(root string) (string, error) {
	dotgit := filepath.Join(root, ".git")
	info, err := os.Stat(dotgit)
	if err != nil {
		return "", fmt.Errorf("locating git directory: %w", err)
	}
	if info.IsDir() {
		return dotgit, nil
	}
	data, err := os.ReadFile(dotgit) //nolint:gosec // G304: .git file of the opened repository
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dotgit, err)
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return "", fmt.Errorf("%s: not a gitdir file", dotgit)
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	return filepath.Clean(target), nil
}

// commonDir returns the directory holding refs, which differs from gitDir
// for linked worktrees.
func commonDir(gitDir string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, "commondir")) //nolint:gosec // G304: inside the git directory
	if err != nil {
		return gitDir
	}
	dir := strings.TrimSpace(string(data))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(gitDir, dir)
	}
	return filepath.Clean(dir)
}

// New creates a new repository watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		gitDir:    cfg.GitDir,
		commonDir: commonDir(cfg.GitDir),
		debounce:  cfg.Debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned channel receives one signal per
// burst of ref changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsWatcher.Add(w.gitDir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.gitDir, err)
	}
	if w.commonDir != w.gitDir {
		if err := w.fsWatcher.Add(w.commonDir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", w.commonDir, err)
		}
	}
	if err := w.addTree(filepath.Join(w.commonDir, "refs")); err != nil {
		return nil, err
	}

	go w.loop()

	log.Debug(log.CatWatcher, "watching repository", "git_dir", w.gitDir, "common_dir", w.commonDir)
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// addTree watches dir and every directory below it. fsnotify does not
// recurse on its own.
func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 && w.underRefs(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Warn(log.CatWatcher, "failed to watch new ref directory", "path", event.Name, "error", err)
					}
				}
			}

			if !w.isRelevantEvent(event) {
				continue
			}

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
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
				log.Debug(log.CatWatcher, "refs changed")
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) underRefs(path string) bool {
	rel, err := filepath.Rel(w.commonDir, path)
	if err != nil {
		return false
	}
	return rel == "refs" || strings.HasPrefix(rel, "refs"+string(filepath.Separator))
}

// isRelevantEvent reports whether event moved a ref. Lock files are
// ignored; git renames them onto the ref, which arrives as a Create.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasSuffix(event.Name, ".lock") {
		return false
	}

	dir, base := filepath.Dir(event.Name), filepath.Base(event.Name)
	switch {
	case dir == w.gitDir && base == "HEAD":
		return true
	case dir == w.commonDir && base == "packed-refs":
		return true
	default:
		return w.underRefs(event.Name)
	}
}
