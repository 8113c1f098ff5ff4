// Package guard enforces per-session rate and quota limits on tool
// invocations: an absolute lifetime cap plus a sliding one-minute window,
// with implicit reset after idle periods.
package guard

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBudgetExceeded reports a tool call blocked by budget enforcement.
// It blocks a single call and is non-fatal to the agent loop.
var ErrBudgetExceeded = errors.New("action budget exceeded")

// Config tunes budget enforcement.
type Config struct {
	// MaxActionsPerSession is the absolute lifetime cap.
	MaxActionsPerSession int `json:"max_actions_per_session" yaml:"max_actions_per_session"`
	// MaxActionsPerMinute caps the sliding one-minute window.
	MaxActionsPerMinute int `json:"max_actions_per_minute" yaml:"max_actions_per_minute"`
	// IdleReset clears a session's counters after this much inactivity.
	IdleReset time.Duration `json:"idle_reset" yaml:"idle_reset"`
}

// DefaultConfig returns the default budget limits.
func DefaultConfig() Config {
	return Config{
		MaxActionsPerSession: 10,
		MaxActionsPerMinute:  20,
		IdleReset:            time.Hour,
	}
}

type budgetState struct {
	mu           sync.Mutex
	lifetime     int
	window       []time.Time
	lastActivity time.Time
}

// BudgetGuard tracks per-session action budgets. Sessions are independent;
// operations on one session never block another.
type BudgetGuard struct {
	config Config

	mu       sync.RWMutex
	sessions map[string]*budgetState

	now    func() time.Time
	logger *zap.Logger
}

// NewBudgetGuard creates a guard with the given limits.
func NewBudgetGuard(config Config, logger *zap.Logger) *BudgetGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.MaxActionsPerSession <= 0 {
		config.MaxActionsPerSession = def.MaxActionsPerSession
	}
	if config.MaxActionsPerMinute <= 0 {
		config.MaxActionsPerMinute = def.MaxActionsPerMinute
	}
	if config.IdleReset <= 0 {
		config.IdleReset = def.IdleReset
	}
	return &BudgetGuard{
		config:   config,
		sessions: make(map[string]*budgetState),
		now:      time.Now,
		logger:   logger,
	}
}

func (g *BudgetGuard) state(sessionID string) *budgetState {
	g.mu.RLock()
	s, ok := g.sessions[sessionID]
	g.mu.RUnlock()
	if ok {
		return s
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[sessionID]; ok {
		return s
	}
	s = &budgetState{}
	g.sessions[sessionID] = s
	return s
}

// CheckBudget reports whether the session may perform another action.
// It must run before every tool invocation. Idle sessions are reset here;
// window timestamps older than 60 seconds are discarded here, so no
// background sweep is needed for correctness.
func (g *BudgetGuard) CheckBudget(sessionID string) bool {
	now := g.now()
	s := g.state(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastActivity.IsZero() && now.Sub(s.lastActivity) > g.config.IdleReset {
		g.logger.Debug("idle session budget reset", zap.String("session_id", sessionID))
		s.lifetime = 0
		s.window = nil
		s.lastActivity = time.Time{}
	}

	if s.lifetime >= g.config.MaxActionsPerSession {
		return false
	}

	s.window = pruneWindow(s.window, now)
	return len(s.window) < g.config.MaxActionsPerMinute
}

// Increment records an actual invocation against the session's budget.
func (g *BudgetGuard) Increment(sessionID string) {
	now := g.now()
	s := g.state(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifetime++
	s.window = append(pruneWindow(s.window, now), now)
	s.lastActivity = now
}

// Remaining reports how many lifetime actions the session has left.
func (g *BudgetGuard) Remaining(sessionID string) int {
	s := g.state(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := g.config.MaxActionsPerSession - s.lifetime
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears all counters for the session.
func (g *BudgetGuard) Reset(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}

func pruneWindow(window []time.Time, now time.Time) []time.Time {
	kept := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < time.Minute {
			kept = append(kept, ts)
		}
	}
	return kept
}
