package drafts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/starford/quire/internal/apperr"
)

// MemoryStore keeps drafts in process. Used when no Redis URL is configured.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryStore returns an in-process store expiring drafts after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: cache.New(ttl, 10*time.Minute), ttl: ttl}
}

func memKey(articleID int64) string {
	return strconv.FormatInt(articleID, 10)
}

func (s *MemoryStore) Save(_ context.Context, d Draft) error {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}
	d.ContentJSON = append([]byte(nil), d.ContentJSON...)
	s.cache.Set(memKey(d.ArticleID), d, s.ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, articleID int64) (Draft, error) {
	v, ok := s.cache.Get(memKey(articleID))
	if !ok {
		return Draft{}, fmt.Errorf("draft for article %d: %w", articleID, apperr.ErrNotFound)
	}
	return v.(Draft), nil
}

func (s *MemoryStore) Delete(_ context.Context, articleID int64) error {
	s.cache.Delete(memKey(articleID))
	return nil
}
