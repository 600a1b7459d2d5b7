// Package consensus runs the supervised judge loop: a judge model reads the
// ensemble's combined output, optionally re-runs the ensemble with refined
// queries, and produces a single structured answer within a fixed call budget.
package consensus

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned by BudgetGuard.Acquire once the configured
// number of ensemble runs has been spent.
var ErrBudgetExceeded = errors.New("consensus: ensemble call budget exceeded")

// BudgetGuard enforces a hard cap on ensemble runs during one judge session.
// Acquire must be called before each run; once it fails every later call
// fails too.
type BudgetGuard struct {
	mu        sync.Mutex
	limit     int
	used      int
	startTime time.Time
	logger    *slog.Logger
}

// BudgetState is a snapshot of guard usage.
type BudgetState struct {
	// Used is how many ensemble runs have been granted.
	Used int `json:"used"`
	// Limit is the configured run cap.
	Limit int `json:"limit"`
	// Remaining is runs left before the guard trips.
	Remaining int `json:"remaining"`
	// Exhausted indicates the cap has been reached.
	Exhausted bool `json:"exhausted"`
	// ElapsedTime is how long the guard has been active.
	ElapsedTime time.Duration `json:"elapsed_time"`
}

// NewBudgetGuard creates a guard permitting at most limit ensemble runs.
// A non-positive limit falls back to a single run.
func NewBudgetGuard(limit int, logger *slog.Logger) *BudgetGuard {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetGuard{limit: limit, startTime: time.Now(), logger: logger}
}

// Acquire consumes one run from the budget. It returns ErrBudgetExceeded
// once the cap is reached; the budget is never replenished mid-session.
func (g *BudgetGuard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.used >= g.limit {
		g.logger.Warn("budget: ensemble run denied",
			slog.Int("used", g.used),
			slog.Int("limit", g.limit))
		return ErrBudgetExceeded
	}
	g.used++
	g.logger.Info("budget: ensemble run granted",
		slog.Int("used", g.used),
		slog.Int("limit", g.limit),
		slog.Int("remaining", g.limit-g.used))
	return nil
}

// State returns a snapshot of the guard.
func (g *BudgetGuard) State() BudgetState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return BudgetState{
		Used:        g.used,
		Limit:       g.limit,
		Remaining:   g.limit - g.used,
		Exhausted:   g.used >= g.limit,
		ElapsedTime: time.Since(g.startTime),
	}
}

// Limit returns the configured cap.
func (g *BudgetGuard) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}
