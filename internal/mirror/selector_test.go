package mirror

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	ids     []string
	at      time.Time
	ok      bool
	saves   int
	saveErr error
}

func (m *memStore) Ranking() ([]string, time.Time, bool) {
	return m.ids, m.at, m.ok
}

func (m *memStore) SaveRanking(ids []string, at time.Time) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ids, m.at, m.ok = ids, at, true
	m.saves++
	return nil
}

type countingRanker struct {
	calls  int
	result []string
}

func (r *countingRanker) Probe(ctx context.Context) []string {
	r.calls++
	return r.result
}

func newTestSelector(store RankingStore, ranker Ranker, now *time.Time) *Selector {
	s := NewSelector(store, ranker, testLogger())
	s.now = func() time.Time { return *now }
	return s
}

func TestSelectCachesWithinWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &memStore{}
	ranker := &countingRanker{result: []string{"github", "ghfast"}}
	s := newTestSelector(store, ranker, &now)

	first, err := s.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	second, err := s.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if ranker.calls != 1 {
		t.Errorf("expected 1 probe, got %d", ranker.calls)
	}
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("rankings differ: %v vs %v", first, second)
	}
	if store.saves != 1 {
		t.Errorf("expected 1 save, got %d", store.saves)
	}
}

func TestSelectReprobesAfterWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	store := &memStore{ids: []string{"kgithub"}, at: start, ok: true}
	ranker := &countingRanker{result: []string{"ghfast", "github"}}
	s := newTestSelector(store, ranker, &now)

	now = start.Add(FreshnessWindow)
	got, err := s.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if ranker.calls != 1 {
		t.Errorf("expected exactly 1 probe, got %d", ranker.calls)
	}
	if strings.Join(got, ",") != "ghfast,github" {
		t.Errorf("Select() = %v", got)
	}
	if !store.at.Equal(now) {
		t.Errorf("timestamp not overwritten: %v", store.at)
	}
	if strings.Join(store.ids, ",") != "ghfast,github" {
		t.Errorf("ranking not overwritten: %v", store.ids)
	}
}

func TestSelectPersistsEmptyRanking(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &memStore{}
	ranker := &countingRanker{}
	s := newTestSelector(store, ranker, &now)

	got, err := s.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Select() = %#v, want empty non-nil", got)
	}
	if !store.ok {
		t.Fatal("empty ranking was not persisted")
	}

	// The empty ranking is served from cache.
	if _, err := s.Select(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ranker.calls != 1 {
		t.Errorf("expected cached empty ranking, got %d probes", ranker.calls)
	}
}

func TestSelectSaveFailure(t *testing.T) {
	now := time.Now()
	store := &memStore{saveErr: errors.New("read-only")}
	s := newTestSelector(store, &countingRanker{result: []string{"github"}}, &now)

	if _, err := s.Select(context.Background()); err == nil {
		t.Fatal("expected save error to propagate")
	}
}

func TestRefreshIgnoresCache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &memStore{ids: []string{"github"}, at: now, ok: true}
	ranker := &countingRanker{result: []string{"bgithub"}}
	s := newTestSelector(store, ranker, &now)

	got, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ranker.calls != 1 || len(got) != 1 || got[0] != "bgithub" {
		t.Errorf("Refresh() = %v after %d probes", got, ranker.calls)
	}
}

func TestSelectCancelledDuringProbe(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &memStore{}
	ranker := &countingRanker{}
	s := newTestSelector(store, ranker, &now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids, err := s.Select(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Select() error = %v, want context.Canceled", err)
	}
	if ids != nil || store.saves != 0 || store.ok {
		t.Fatalf("cancelled probe stored a ranking: ids=%v saves=%d", ids, store.saves)
	}

	ranker.result = []string{"github"}
	now = now.Add(10 * time.Minute)
	got, err := s.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ranker.calls != 2 || len(got) != 1 || got[0] != "github" {
		t.Errorf("Select() = %v after %d probes, want a fresh probe", got, ranker.calls)
	}
}
