// Package sequence reconciles and persists the reading order of a journal.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Materialize orders live articles by the persisted ids. Persisted ids
// that no longer match a live article are dropped, repeated ids count once,
// and live articles absent from the persisted list follow in listing order.
func Materialize(persisted []int64, live []models.Article) []models.Article {
	byID := make(map[int64]int, len(live))
	for i, a := range live {
		if _, ok := byID[a.ID]; !ok {
			byID[a.ID] = i
		}
	}
	out := make([]models.Article, 0, len(live))
	placed := make(map[int64]struct{}, len(live))
	for _, id := range persisted {
		i, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		out = append(out, live[i])
	}
	for _, a := range live {
		if _, ok := placed[a.ID]; ok {
			continue
		}
		placed[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// MoveItem swaps the element at index with its neighbour in direction
// (-1 or +1). Out-of-range positions return order unchanged. The input
// slice is never modified.
func MoveItem[T any](order []T, index, direction int) []T {
	if direction != -1 && direction != 1 {
		return order
	}
	target := index + direction
	if index < 0 || index >= len(order) || target < 0 || target >= len(order) {
		return order
	}
	out := slices.Clone(order)
	out[index], out[target] = out[target], out[index]
	return out
}

// Store is the persistence collaborator for sequences.
type Store interface {
	GetSequence(ctx context.Context, journalID int64) ([]int64, error)
	SetSequence(ctx context.Context, journalID int64, ids []int64) ([]int64, error)
}

// Result describes a completed save.
type Result struct {
	Sent    []int64
	Adopted []int64
	// Dropped are sent ids absent from the adopted order.
	Dropped []int64
}

// Engine holds the working order of one journal between loads and saves.
// The zero value is not usable; create engines with NewEngine.
type Engine struct {
	store     Store
	journalID int64

	mu       sync.Mutex
	order    []models.Article
	baseline []int64
}

// NewEngine returns an engine for journalID.
func NewEngine(store Store, journalID int64) *Engine {
	return &Engine{store: store, journalID: journalID}
}

// Load reads the persisted sequence and materializes it against live.
func (e *Engine) Load(ctx context.Context, live []models.Article) ([]models.Article, error) {
	persisted, err := e.store.GetSequence(ctx, e.journalID)
	if err != nil {
		return nil, fmt.Errorf("sequence: load journal %d: %w", e.journalID, err)
	}
	e.Reset(persisted, live)
	return e.Order(), nil
}

// Reset replaces the working order without touching the store.
func (e *Engine) Reset(persisted []int64, live []models.Article) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = Materialize(persisted, live)
	e.baseline = slices.Clone(persisted)
}

// Order returns a copy of the working order.
func (e *Engine) Order() []models.Article {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.order)
}

// Move applies MoveItem to the working order and reports whether it changed.
func (e *Engine) Move(index, direction int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := MoveItem(e.order, index, direction)
	if slices.Equal(models.IDs(next), models.IDs(e.order)) {
		return false
	}
	e.order = next
	return true
}

// Dirty reports whether the working order differs from the last persisted one.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !slices.Equal(models.IDs(e.order), e.baseline)
}

// Persist sends the full working order and adopts the collaborator's reply
// as the new baseline. Articles of the working order missing from the reply
// are reported in Result.Dropped and removed from the working order. On
// failure the working order and baseline are left untouched.
func (e *Engine) Persist(ctx context.Context) (Result, error) {
	e.mu.Lock()
	sent := models.IDs(e.order)
	e.mu.Unlock()

	adopted, err := e.store.SetSequence(ctx, e.journalID, sent)
	if err != nil {
		return Result{Sent: sent}, fmt.Errorf("sequence: persist journal %d: %w", e.journalID, err)
	}
	if adopted == nil {
		adopted = []int64{}
	}

	res := Result{Sent: sent, Adopted: adopted, Dropped: Difference(sent, adopted)}
	if len(res.Dropped) > 0 {
		slog.Warn("sequence: ids dropped by store",
			slog.Int64("journal_id", e.journalID),
			slog.Any("dropped", res.Dropped),
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline = slices.Clone(adopted)
	e.order = Materialize(adopted, e.order)
	if len(res.Dropped) > 0 {
		e.order = slices.DeleteFunc(e.order, func(a models.Article) bool {
			return slices.Contains(res.Dropped, a.ID)
		})
	}
	return res, nil
}

// Difference returns the ids of sent absent from adopted, in sent order.
func Difference(sent, adopted []int64) []int64 {
	keep := make(map[int64]struct{}, len(adopted))
	for _, id := range adopted {
		keep[id] = struct{}{}
	}
	var out []int64
	for _, id := range sent {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// ValidateOrder rejects orders that repeat an id.
func ValidateOrder(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.Validation("article %d appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
