package cache

import (
	"log/slog"
	"time"

	"charity/internal/core"
)

// Summaries caches each user's category summary, keyed by user id.
type Summaries struct {
	*LRUCache[[]core.CategoryAmount]
}

func NewSummaries(maxUsers int, ttl time.Duration) *Summaries {
	return &Summaries{LRUCache: NewLRUCache[[]core.CategoryAmount](maxUsers, ttl)}
}

// Invalidate drops the donor's cached summary. Its signature matches the
// donation service's recorded hook.
func (s *Summaries) Invalidate(d core.Donation) {
	s.Delete(d.UserID)
}

// Purge drops every cached summary. Summaries depend on the campaign
// catalog as well, so a category change affects all users.
func (s *Summaries) Purge() {
	if n := s.Clear(); n > 0 {
		slog.Debug("Summary cache purged", "component", "cache", "entries", n)
	}
}
