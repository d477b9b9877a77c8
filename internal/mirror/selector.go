package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FreshnessWindow is how long a persisted ranking is trusted without
// re-probing.
const FreshnessWindow = 3600 * time.Second

// RankingStore persists the derived mirror ranking.
type RankingStore interface {
	// Ranking returns the stored ranking and its creation time. ok is false
	// when nothing has been stored.
	Ranking() (ids []string, createdAt time.Time, ok bool)
	// SaveRanking overwrites the stored ranking.
	SaveRanking(ids []string, createdAt time.Time) error
}

// Ranker produces a fresh ranking, usually by probing.
type Ranker interface {
	Probe(ctx context.Context) []string
}

// Selector serves mirror rankings from the store while fresh and re-probes
// once they expire.
type Selector struct {
	store  RankingStore
	ranker Ranker
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
}

// NewSelector creates a Selector with the default freshness window.
func NewSelector(store RankingStore, ranker Ranker, logger *slog.Logger) *Selector {
	return &Selector{
		store:  store,
		ranker: ranker,
		logger: logger,
		now:    time.Now,
		ttl:    FreshnessWindow,
	}
}

// Select returns the ordered mirror identifiers to try. An empty result is
// valid and means no mirror was reachable at probe time.
func (s *Selector) Select(ctx context.Context) ([]string, error) {
	if ids, createdAt, ok := s.store.Ranking(); ok {
		age := s.now().Sub(createdAt)
		if age < s.ttl {
			s.logger.Debug("using cached mirror ranking", "mirrors", ids, "age", age.Round(time.Second))
			return ids, nil
		}
		s.logger.Debug("cached mirror ranking expired", "age", age.Round(time.Second))
	}
	return s.Refresh(ctx)
}

// Refresh probes unconditionally and persists the result, even when empty.
// A probe round cut short by ctx is discarded.
func (s *Selector) Refresh(ctx context.Context) ([]string, error) {
	ids := s.ranker.Probe(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("probing mirrors: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	if err := s.store.SaveRanking(ids, s.now()); err != nil {
		return nil, fmt.Errorf("saving mirror ranking: %w", err)
	}
	s.logger.Debug("selected mirrors", "mirrors", ids)
	return ids, nil
}
