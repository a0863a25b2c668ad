// Package search finds rows of a history model matching a needle. Scans run
// off the UI goroutine over snapshots of the model; when a forward scan
// reaches the end of the materialized rows it hands control back so the
// owner of the model can extend it, then resumes.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/pubsub"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// ErrNotFound is reported when no row matches.
var ErrNotFound = errors.New("pattern not found")

// chunk is the number of rows copied per snapshot.
const chunk = 256

// Direction of a search.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

// Config tunes the engine.
type Config struct {
	IgnoreCase    bool `mapstructure:"ignore_case"`
	BatchSize     int  `mapstructure:"batch_size"`
	ProgressEvery int  `mapstructure:"progress_every"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{IgnoreCase: true, BatchSize: 500, ProgressEvery: 100}
}

// Request describes one search.
type Request struct {
	Needle    string
	Direction Direction
	// From is the row the search starts at.
	From int
	// IncludeCurrent lets the row at From match.
	IncludeCurrent bool
}

// Status is the outcome of one scan step.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	// StatusNeedMore asks the owner to extend the model and run the task
	// again.
	StatusNeedMore
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not found"
	case StatusNeedMore:
		return "need more"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result reports a scan step.
type Result struct {
	Generation uint64
	Request    Request
	Status     Status
	// Pos is the matching row when Status is StatusFound.
	Pos int
	// Resume is the first unscanned row when Status is StatusNeedMore.
	Resume  int
	Scanned int
	Wrapped bool
}

// Err returns ErrNotFound for StatusNotFound, context.Canceled for
// StatusCancelled and nil otherwise.
func (r Result) Err() error {
	switch r.Status {
	case StatusNotFound:
		return ErrNotFound
	case StatusCancelled:
		return context.Canceled
	default:
		return nil
	}
}

// Progress is published while a scan runs.
type Progress struct {
	Generation uint64
	Scanned    int
	Pos        int
}

// Source is the read side of a history model. Implementations must allow
// concurrent calls with the model's owner.
type Source interface {
	Len() int
	Exhausted() bool
	Entries(from, to int) []history.Entry
}

// Engine runs at most one search at a time.
type Engine struct {
	backend   vcs.Backend
	decorator history.Decorator
	cfg       Config
	broker    *pubsub.Broker[Progress]

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	last   Request
	hasRun bool
}

// NewEngine creates an engine. A nil decorator shows raw subjects.
func NewEngine(backend vcs.Backend, decorator history.Decorator, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if decorator == nil {
		decorator = history.PlainDecorator{}
	}
	return &Engine{
		backend:   backend,
		decorator: decorator,
		cfg:       cfg,
		broker:    pubsub.NewBroker[Progress](),
	}
}

// Broker carries progress updates.
func (e *Engine) Broker() *pubsub.Broker[Progress] { return e.broker }

// BatchSize is the number of rows the owner should extend by on
// StatusNeedMore.
func (e *Engine) BatchSize() int { return e.cfg.BatchSize }

// SetIgnoreCase changes case folding for subsequent searches.
func (e *Engine) SetIgnoreCase(v bool) {
	e.mu.Lock()
	e.cfg.IgnoreCase = v
	e.mu.Unlock()
}

// Start cancels any running search and returns a task for req.
func (e *Engine) Start(ctx context.Context, src Source, req Request) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.last = req
	e.hasRun = true

	t := &Task{
		engine:  e,
		ctx:     ctx,
		gen:     e.gen,
		src:     src,
		req:     req,
		matcher: newMatcher(req.Needle, e.cfg.IgnoreCase),
	}
	t.begin()
	log.Debug(log.CatSearch, "search started", "gen", t.gen, "direction", req.Direction, "from", req.From)
	return t
}

// Cancel stops the running search, if any.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
}

// Current reports whether gen belongs to the latest search.
func (e *Engine) Current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.gen
}

// Last returns the most recent request.
func (e *Engine) Last() (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasRun
}

// Close cancels any running search and closes the progress broker.
func (e *Engine) Close() {
	e.Cancel()
	e.broker.Close()
}

// Drive runs t to completion, calling extend whenever the scan needs more
// rows. extend must run where mutating the model is allowed.
func Drive(t *Task, extend func(n int) (int, error)) (Result, error) {
	for {
		res := t.Run()
		if res.Status != StatusNeedMore {
			return res, nil
		}
		added, err := extend(t.engine.BatchSize())
		if err != nil {
			return res, err
		}
		if added == 0 && !t.src.Exhausted() {
			return res, errors.New("search: model did not grow")
		}
	}
}

// matcher tests commit fields against a folded needle. Not safe for
// concurrent use.
type matcher struct {
	needle string
	fold   bool
	caser  cases.Caser
}

func newMatcher(needle string, ignoreCase bool) *matcher {
	m := &matcher{fold: ignoreCase}
	if ignoreCase {
		m.caser = cases.Fold()
		needle = m.caser.String(needle)
	}
	m.needle = needle
	return m
}

func (m *matcher) match(fields ...string) bool {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if m.fold {
			f = m.caser.String(f)
		}
		if strings.Contains(f, m.needle) {
			return true
		}
	}
	return false
}
