// Package editsession tracks unsaved edits of an open article and gates
// navigation away from it.
package editsession

import (
	"context"
	"sync"
)

// State is the edit state of a session.
type State int

const (
	Clean State = iota
	Dirty
)

func (s State) String() string {
	if s == Dirty {
		return "dirty"
	}
	return "clean"
}

// Confirm asks the user a yes/no question. It returns true to proceed.
type Confirm func(ctx context.Context, prompt string) bool

// Guard holds the clean/dirty state of one editing surface.
type Guard struct {
	mu    sync.Mutex
	state State
}

// NewGuard returns a clean guard.
func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) Dirty() bool {
	return g.State() == Dirty
}

// MarkDirty records an edit.
func (g *Guard) MarkDirty() {
	g.mu.Lock()
	g.state = Dirty
	g.mu.Unlock()
}

// MarkClean records a successful save or a fresh load.
func (g *Guard) MarkClean() {
	g.mu.Lock()
	g.state = Clean
	g.mu.Unlock()
}

// Allow decides whether the user may leave. A clean guard always allows;
// a dirty one asks confirm. Declining changes nothing.
func (g *Guard) Allow(ctx context.Context, confirm Confirm, prompt string) bool {
	if !g.Dirty() {
		return true
	}
	if confirm == nil {
		return false
	}
	return confirm(ctx, prompt)
}
