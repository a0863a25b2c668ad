package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/gitfold/internal/config"
	"github.com/zjrosen/gitfold/internal/enrich"
	"github.com/zjrosen/gitfold/internal/git"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/modules"
	"github.com/zjrosen/gitfold/internal/search"
	"github.com/zjrosen/gitfold/internal/store"
	"github.com/zjrosen/gitfold/internal/tracing"
	"github.com/zjrosen/gitfold/internal/vcs"
	"github.com/zjrosen/gitfold/internal/vcs/gogit"
	"github.com/zjrosen/gitfold/internal/watcher"
)

// shutdownTimeout bounds the final trace flush.
const shutdownTimeout = 5 * time.Second

type sessionOptions struct {
	Config  config.Config
	Repo    string
	Range   string
	Paths   []string
	NoCache bool
	Debug   bool
	// Watch creates a ref watcher; the caller starts it.
	Watch bool
}

// session is everything one invocation runs on.
type session struct {
	id       string
	root     string
	backend  vcs.Backend
	hist     *history.Model
	engine   *search.Engine
	enricher *enrich.Enricher
	watcher  *watcher.Watcher
	db       *store.DB
	tracing  *tracing.Provider
}

func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg := opts.Config
	s := &session{id: uuid.NewString()}
	history.StrictAssertions = opts.Debug

	tcfg := cfg.Tracing
	if tcfg.Enabled && tcfg.Exporter == "file" && tcfg.FilePath == "" {
		tcfg.FilePath = config.DefaultTracesFilePath()
	}
	tp, err := tracing.NewProvider(tcfg, s.id)
	if err != nil {
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	s.tracing = tp

	raw, root, err := openBackend(ctx, cfg.Backend, opts.Repo)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.root = root
	s.backend = wrapBackend(raw, cfg.Backend, tp)
	log.Info(log.CatApp, "session opened",
		"session", s.id, "backend", cfg.Backend, "root", root, "range", opts.Range, "paths", len(opts.Paths))

	hcfg := cfg.History
	hcfg.Paths = opts.Paths
	s.hist, err = history.New(ctx, s.backend, vcs.ParseRange(opts.Range), hcfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	subtrees := ""
	if root != "" && cfg.Modules.SubtreesFile != "" {
		subtrees = filepath.Join(root, cfg.Modules.SubtreesFile)
	}
	mods, err := modules.Load(cfg.Modules.Definitions, subtrees)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("loading modules: %w", err)
	}

	var eopts []enrich.Option
	if mods.Len() > 0 {
		eopts = append(eopts, enrich.WithModules(mods))
	}
	if cfg.Cache.Enabled && !opts.NoCache && root != "" {
		s.db = openStore(cfg.Cache.Dir, root)
		if s.db != nil {
			eopts = append(eopts, enrich.WithStore(s.db.Annotations()))
		}
	}
	s.enricher = enrich.New(s.backend, cfg.Enrich, eopts...)
	s.engine = search.NewEngine(s.backend, s.enricher, cfg.Search)

	if opts.Watch && cfg.Watch.Enabled && root != "" {
		s.watcher = openWatcher(root, cfg.Watch)
	}
	return s, nil
}

// openBackend opens the repository at dir and returns it with its work
// tree root, which is empty for bare repositories.
func openBackend(ctx context.Context, kind, dir string) (vcs.Backend, string, error) {
	if dir == "" {
		dir = "."
	}
	switch kind {
	case config.BackendCLI:
		b, err := git.Open(ctx, dir, "origin")
		if err != nil {
			return nil, "", fmt.Errorf("opening repository %s: %w", dir, err)
		}
		root, err := b.Executor().RepoRoot(ctx)
		if err != nil {
			log.Debug(log.CatApp, "no work tree", "dir", dir, "error", err)
			root = ""
		}
		return b, root, nil
	default:
		b, err := gogit.Open(dir)
		if err != nil {
			return nil, "", fmt.Errorf("opening repository %s: %w", dir, err)
		}
		return b, b.Root(), nil
	}
}

// wrapBackend layers the decorators: the cache outermost so hits are not
// traced, and go-git calls serialized innermost.
func wrapBackend(b vcs.Backend, kind string, tp *tracing.Provider) vcs.Backend {
	if kind != config.BackendCLI {
		b = vcs.NewSerialized(b)
	}
	if tp.Enabled() {
		b = vcs.NewTraced(b, tp.Tracer(), kind)
	}
	return vcs.NewCached(b)
}

// openStore opens the annotation cache for root. Failures only disable
// the cache.
func openStore(dir, root string) *store.DB {
	if dir == "" {
		dir = config.DefaultCacheDir()
	}
	if dir == "" {
		return nil
	}
	db, err := store.NewDB(store.PathFor(dir, root))
	if err != nil {
		log.Warn(log.CatStore, "annotation cache disabled", "error", err)
		return nil
	}
	return db
}

func openWatcher(root string, cfg config.WatchConfig) *watcher.Watcher {
	gitDir, err := watcher.GitDir(root)
	if err != nil {
		log.Warn(log.CatWatcher, "not watching refs", "error", err)
		return nil
	}
	wcfg := watcher.DefaultConfig(gitDir)
	if cfg.Debounce > 0 {
		wcfg.Debounce = cfg.Debounce
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		log.Warn(log.CatWatcher, "not watching refs", "error", err)
		return nil
	}
	return w
}

// Close releases the store and flushes traces. The enricher, engine and
// watcher belong to whoever runs them.
func (s *session) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.ErrorErr(log.CatStore, "closing annotation cache", err)
		}
		s.db = nil
	}
	if s.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.tracing.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatApp, "flushing traces", err)
		}
		s.tracing = nil
	}
}
