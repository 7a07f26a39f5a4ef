package editsession

import (
	"context"
	"sync"
)

// Prompts shown before discarding unsaved edits.
const (
	LeavePrompt  = "You have unsaved changes. Leave this article?"
	UnloadPrompt = "You have unsaved changes. Discard them and quit?"
)

// Controller owns the current location and the one active guard. Editing
// surfaces register their guard while mounted.
type Controller struct {
	confirm Confirm

	mu     sync.Mutex
	path   string
	active *Guard
}

// NewController starts at path and asks confirm before discarding edits.
func NewController(path string, confirm Confirm) *Controller {
	return &Controller{path: path, confirm: confirm}
}

// Path returns the current location.
func (c *Controller) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Active returns the registered guard, or nil.
func (c *Controller) Active() *Guard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Register makes g the active guard, replacing any other. The returned
// release func clears it again unless another guard took over meanwhile.
func (c *Controller) Register(g *Guard) (release func()) {
	c.mu.Lock()
	c.active = g
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.active == g {
				c.active = nil
			}
			c.mu.Unlock()
		})
	}
}

// Navigate moves to path after consulting the active guard. It reports
// whether the move happened; when declined, path and guard state stay as
// they were. Leaving clears the active guard.
func (c *Controller) Navigate(ctx context.Context, path string) bool {
	g := c.Active()
	if g != nil && !g.Allow(ctx, c.confirm, LeavePrompt) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	if c.active == g {
		c.active = nil
	}
	return true
}

// Unload reports whether the process may exit. A dirty guard requires
// confirmation; declining aborts the exit.
func (c *Controller) Unload(ctx context.Context) bool {
	g := c.Active()
	if g == nil {
		return true
	}
	return g.Allow(ctx, c.confirm, UnloadPrompt)
}
