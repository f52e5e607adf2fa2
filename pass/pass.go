// Package pass implements the pass manager: the engine
// is a linear pipeline of passes, each taking an explicit context value
// (configuration plus open artifact handles) and a stats accumulator
// instead of reaching into hidden globals. Each pass declares the temp
// files it creates and those it requires; the manager enforces ordering
// and existence before running it.
package pass

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/cvs2git/config"
)

// Context is the explicit value threaded through every pass - no pass
// may read process-wide globals for configuration or working state.
type Context struct {
	Config     *config.Config
	Logger     *logrus.Logger
	WorkingDir string
}

// ArtifactPath joins name onto the context's working directory.
func (c *Context) ArtifactPath(name string) string {
	return filepath.Join(c.WorkingDir, name)
}

// Stats accumulates named counters across a run; every pass receives
// the same instance so a final summary can be logged.
type Stats struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewStats creates an empty accumulator.
func NewStats() *Stats {
	return &Stats{counters: make(map[string]int64)}
}

// Add increments the named counter by delta.
func (s *Stats) Add(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

// Get returns the named counter's current value.
func (s *Stats) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Snapshot returns a copy of every counter, for logging at the end of a
// run.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// Func is one pass's body.
type Func func(ctx *Context, stats *Stats) error

// Pass is one named stage of the pipeline: it declares the artifacts it
// requires already exist and the artifacts it promises to produce.
type Pass struct {
	Name     string
	Requires []string
	Produces []string
	Run      Func
}

// Manager runs a fixed ordered sequence of passes, failing fast if a
// pass's declared inputs are missing or it doesn't deliver what it
// promised.
type Manager struct {
	ctx   *Context
	stats *Stats
}

// NewManager builds a manager bound to ctx, sharing one stats
// accumulator across every pass it runs.
func NewManager(ctx *Context) *Manager {
	return &Manager{ctx: ctx, stats: NewStats()}
}

// Stats exposes the shared accumulator, e.g. for a final summary log.
func (m *Manager) Stats() *Stats { return m.stats }

// Run executes passes in the given order, checking each one's declared
// preconditions and postconditions.
func (m *Manager) Run(passes []Pass) error {
	for _, p := range passes {
		for _, req := range p.Requires {
			path := m.ctx.ArtifactPath(req)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("pass %q: required artifact %s missing: %w", p.Name, req, err)
			}
		}
		m.ctx.Logger.WithField("pass", p.Name).Info("starting pass")
		if err := p.Run(m.ctx, m.stats); err != nil {
			return fmt.Errorf("pass %q: %w", p.Name, err)
		}
		for _, out := range p.Produces {
			path := m.ctx.ArtifactPath(out)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("pass %q: declared output %s was not produced: %w", p.Name, out, err)
			}
		}
		m.ctx.Logger.WithField("pass", p.Name).Info("finished pass")
	}
	return nil
}
