// Package enrich resolves pull request titles and module membership for
// commits on a bounded pool of background workers. Finished annotations
// are cached in memory, persisted through an optional store and announced
// on a pubsub broker so the viewer can re-render the affected rows.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/gitfold/internal/cachemanager"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/modules"
	"github.com/zjrosen/gitfold/internal/pubsub"
	"github.com/zjrosen/gitfold/internal/subject"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// DefaultQueueCapacity bounds the number of ids waiting for a worker.
const DefaultQueueCapacity = 1024

// Config controls the worker pool.
type Config struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{Workers: 4, Timeout: 2 * time.Second}
}

// Annotations persists resolved annotations. *store.AnnotationRepository
// implements it.
type Annotations interface {
	Title(ctx context.Context, id vcs.CommitID) (string, bool, error)
	SaveTitle(ctx context.Context, id vcs.CommitID, title string) error
	Modules(ctx context.Context, fingerprint string, id vcs.CommitID) ([]string, bool, error)
	SaveModules(ctx context.Context, fingerprint string, id vcs.CommitID, names []string) error
}

// Pruner drops classifications made under stale module definitions.
type Pruner interface {
	PruneModuleSets(ctx context.Context, keep string) (int64, error)
}

// Result is published once per resolved commit.
type Result struct {
	ID vcs.CommitID
	// Title is the pull request title when Titled is true.
	Title   string
	Titled  bool
	Modules []string
	Err     error
}

type annotation struct {
	title   string
	titled  bool
	modules []string
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithStore persists annotations across runs.
func WithStore(a Annotations) Option {
	return func(e *Enricher) { e.store = a }
}

// WithModules enables module classification.
func WithModules(s *modules.Set) Option {
	return func(e *Enricher) { e.modules = s }
}

// WithQueueCapacity overrides DefaultQueueCapacity.
func WithQueueCapacity(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.queueCapacity = n
		}
	}
}

// Enricher owns the worker pool. It implements history.Decorator, so rows
// show resolved titles and modules as soon as they are known and queue the
// rest. All methods are safe for concurrent use.
type Enricher struct {
	backend       vcs.Backend
	cfg           Config
	store         Annotations
	modules       *modules.Set
	cache         cachemanager.CacheManager[vcs.CommitID, annotation]
	broker        *pubsub.Broker[Result]
	queue         chan vcs.CommitID
	queueCapacity int

	mu      sync.Mutex
	pending map[vcs.CommitID]struct{}

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	resolved atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

var (
	_ history.Decorator = (*Enricher)(nil)
	_ history.Resolver  = (*Enricher)(nil)
)

// New creates an Enricher. Call Start to begin resolving.
func New(backend vcs.Backend, cfg Config, opts ...Option) *Enricher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	e := &Enricher{
		backend:       backend,
		cfg:           cfg,
		cache:         cachemanager.NewInMemoryCacheManager[vcs.CommitID, annotation]("annotations", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		broker:        pubsub.NewBroker[Result](),
		queueCapacity: DefaultQueueCapacity,
		pending:       make(map[vcs.CommitID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan vcs.CommitID, e.queueCapacity)
	return e
}

// Broker delivers a Result per resolved commit.
func (e *Enricher) Broker() *pubsub.Broker[Result] { return e.broker }

// Start launches the dispatcher. Calling it twice is a no-op.
func (e *Enricher) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	if p, ok := e.store.(Pruner); ok && e.classifies() {
		if n, err := p.PruneModuleSets(ctx, e.modules.Fingerprint()); err != nil {
			log.ErrorErr(log.CatEnrich, "prune module sets failed", err)
		} else if n > 0 {
			log.Info(log.CatEnrich, "pruned stale module sets", "count", n)
		}
	}

	e.wg.Add(1)
	go e.run(ctx)
	log.Debug(log.CatEnrich, "enricher started", "workers", e.cfg.Workers, "timeout", e.cfg.Timeout)
}

// Stop cancels in-flight work and waits for workers to exit.
func (e *Enricher) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Close stops the pool and closes the broker.
func (e *Enricher) Close() {
	e.Stop()
	e.broker.Close()
	log.Debug(log.CatEnrich, "enricher closed",
		"resolved", e.resolved.Load(), "failed", e.failed.Load(), "dropped", e.dropped.Load())
}

// Request queues ids that are neither cached nor already queued. Ids that
// do not fit in the queue are dropped and requested again on a later
// render.
func (e *Enricher) Request(ids ...vcs.CommitID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if _, ok := e.pending[id]; ok {
			continue
		}
		if _, ok := e.cache.Get(context.Background(), id); ok {
			continue
		}
		select {
		case e.queue <- id:
			e.pending[id] = struct{}{}
		default:
			e.dropped.Add(1)
		}
	}
}

// Pending returns the number of queued or in-flight ids.
func (e *Enricher) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Lookup returns the resolved annotation for id without queueing it.
func (e *Enricher) Lookup(id vcs.CommitID) (Result, bool) {
	a, ok := e.cache.Get(context.Background(), id)
	if !ok {
		return Result{}, false
	}
	return Result{ID: id, Title: a.title, Titled: a.titled, Modules: a.modules}, true
}

// Resolve annotates id on the calling goroutine, using and filling the
// caches. Non-interactive output calls it before rendering a row.
func (e *Enricher) Resolve(ctx context.Context, id vcs.CommitID) (Result, error) {
	if r, ok := e.Lookup(id); ok {
		return r, nil
	}
	a, err := e.annotate(ctx, id)
	if err != nil {
		return Result{ID: id, Err: err}, err
	}
	e.cache.Set(ctx, id, a, cachemanager.NoExpiration)
	e.resolved.Add(1)
	return Result{ID: id, Title: a.title, Titled: a.titled, Modules: a.modules}, nil
}

// Annotate resolves id within the worker timeout and returns the title to
// show and the modules it touches. The raw subject stands in for a commit
// without a pull request title.
func (e *Enricher) Annotate(ctx context.Context, id vcs.CommitID, md vcs.Metadata) (string, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	r, err := e.Resolve(ctx, id)
	if err != nil {
		return md.Subject, nil, err
	}
	if r.Titled {
		return r.Title, r.Modules, nil
	}
	return md.Subject, r.Modules, nil
}

// Subject returns the class icon and the resolved title, falling back to
// the raw subject until the title is known.
func (e *Enricher) Subject(id vcs.CommitID, md vcs.Metadata) (string, string) {
	icon := subject.Classify(md.Subject).Class.Icon()
	a, ok := e.cache.Get(context.Background(), id)
	if !ok {
		e.Request(id)
		return icon, md.Subject
	}
	if a.titled {
		return icon, a.title
	}
	return icon, md.Subject
}

// Modules returns the modules id touches, or nil while unresolved.
func (e *Enricher) Modules(id vcs.CommitID) []string {
	if !e.classifies() {
		return nil
	}
	a, ok := e.cache.Get(context.Background(), id)
	if !ok {
		e.Request(id)
		return nil
	}
	return a.modules
}

func (e *Enricher) classifies() bool {
	return e.modules != nil && e.modules.Len() > 0
}

func (e *Enricher) run(ctx context.Context) {
	defer e.wg.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			g.Go(func() error {
				e.resolve(gctx, id)
				return nil
			})
		}
	}
}

func (e *Enricher) resolve(ctx context.Context, id vcs.CommitID) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	a, err := e.annotate(ctx, id)
	if err != nil {
		e.failed.Add(1)
		e.forget(id)
		log.Debug(log.CatEnrich, "annotate failed", "id", id.Short(), "error", err)
		e.broker.Publish(pubsub.ResolvedEvent, Result{ID: id, Err: err})
		return
	}

	e.cache.Set(ctx, id, a, cachemanager.NoExpiration)
	e.forget(id)
	e.resolved.Add(1)
	e.broker.Publish(pubsub.ResolvedEvent, Result{ID: id, Title: a.title, Titled: a.titled, Modules: a.modules})
}

func (e *Enricher) forget(id vcs.CommitID) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Enricher) annotate(ctx context.Context, id vcs.CommitID) (annotation, error) {
	var a annotation

	title, known, err := e.storedTitle(ctx, id)
	if err != nil {
		return a, err
	}
	if known {
		a.title, a.titled = title, true
	} else {
		md, err := e.backend.Metadata(ctx, id)
		if err != nil {
			return a, fmt.Errorf("metadata %s: %w", id.Short(), err)
		}
		if t, ok := subject.Title(md); ok {
			a.title, a.titled = t, true
			if e.store != nil {
				if err := e.store.SaveTitle(ctx, id, t); err != nil {
					log.ErrorErr(log.CatStore, "save title failed", err, "id", id.Short())
				}
			}
		}
	}

	if !e.classifies() {
		return a, nil
	}
	fp := e.modules.Fingerprint()
	if e.store != nil {
		names, ok, err := e.store.Modules(ctx, fp, id)
		if err != nil {
			log.ErrorErr(log.CatStore, "load modules failed", err, "id", id.Short())
		} else if ok {
			a.modules = names
			return a, nil
		}
	}
	paths, err := e.backend.ChangedPaths(ctx, id)
	if err != nil {
		return a, fmt.Errorf("changed paths %s: %w", id.Short(), err)
	}
	a.modules = e.modules.Classify(paths)
	if e.store != nil {
		if err := e.store.SaveModules(ctx, fp, id, a.modules); err != nil {
			log.ErrorErr(log.CatStore, "save modules failed", err, "id", id.Short())
		}
	}
	return a, nil
}

// storedTitle reads a persisted title. Store failures degrade to a
// recomputation; only a cancelled context is returned as an error.
func (e *Enricher) storedTitle(ctx context.Context, id vcs.CommitID) (string, bool, error) {
	if e.store == nil {
		return "", false, nil
	}
	title, ok, err := e.store.Title(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		log.ErrorErr(log.CatStore, "load title failed", err, "id", id.Short())
		return "", false, nil
	}
	return title, ok, nil
}
