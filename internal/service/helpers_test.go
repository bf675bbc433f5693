package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
	"github.com/lukudiplomi/reading-board/internal/memory"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the engine and the services
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mapCache is an in-process Cache that remembers what it served
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *mapCache) InvalidatePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// brokenCache fails every call
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string, any) (bool, error) { return false, errCacheDown }
func (brokenCache) Set(context.Context, string, any, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, ...string) error { return errCacheDown }
func (brokenCache) InvalidatePattern(context.Context, string) error { return errCacheDown }

type harness struct {
	ctx         context.Context
	clock       *testClock
	store       *memory.Store
	engine      *gamelogic.Engine
	reading     *ReadingService
	boards      *BoardService
	leaderboard *LeaderboardService
	catalog     *CatalogService
}

func newHarness(t *testing.T, cache Cache) *harness {
	t.Helper()
	return newHarnessWith(t, cache, nil)
}

// newHarnessWith runs the services on wrap(store) when wrap is set
func newHarnessWith(t *testing.T, cache Cache, wrap func(*memory.Store) Repository) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: testStart}
	store := memory.NewStore()
	var repo Repository = store
	if wrap != nil {
		repo = wrap(store)
	}
	engine := gamelogic.NewEngine(repo, logger,
		gamelogic.WithClock(clock.Now),
		gamelogic.WithRandom(fixedRandom(0.5)),
	)
	lbConfig := &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 50}

	return &harness{
		ctx:         context.Background(),
		clock:       clock,
		store:       store,
		engine:      engine,
		reading:     NewReadingService(repo, engine, cache, gamelogic.DefaultLimits(), 50, logger),
		boards:      NewBoardService(engine, cache, time.Hour, logger),
		leaderboard: NewLeaderboardService(repo, cache, lbConfig, 5*time.Minute, logger),
		catalog:     NewCatalogService(repo, cache, time.Hour, logger),
	}
}

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

func (h *harness) book(t *testing.T, genre string, pages int, difficulty float64) *domain.Book {
	t.Helper()
	book, err := h.catalog.CreateBook(h.ctx, domain.CreateBookRequest{
		Title:             genre + " book",
		Pages:             pages,
		Genre:             genre,
		DifficultyScore:   difficulty,
		RecommendedAgeMin: 1,
		RecommendedAgeMax: 4,
	})
	require.NoError(t, err)
	return book
}

func (h *harness) student(t *testing.T, id, classID string, grade int) {
	t.Helper()
	_, err := h.catalog.RegisterStudent(h.ctx, domain.RegisterStudentRequest{StudentID: id, ClassID: classID, GradeLevel: grade})
	require.NoError(t, err)
}
