package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

// LeaderboardRefresher recomputes and re-caches leaderboards
type LeaderboardRefresher interface {
	Refresh(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error)
	ClassIDs(ctx context.Context) ([]string, error)
}

// LeaderboardWarmer periodically rebuilds the cached global and class
// leaderboards so readers rarely hit the store directly
type LeaderboardWarmer struct {
	leaderboards LeaderboardRefresher
	config       *config.WarmerConfig
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	mu           sync.Mutex
	running      bool
}

// NewLeaderboardWarmer creates a new leaderboard warmer
func NewLeaderboardWarmer(
	leaderboards LeaderboardRefresher,
	cfg *config.WarmerConfig,
	logger *slog.Logger,
) *LeaderboardWarmer {
	return &LeaderboardWarmer{
		leaderboards: leaderboards,
		config:       cfg,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the background warm-up loop
func (w *LeaderboardWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("leaderboard warmer started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background loop and waits for it to exit
func (w *LeaderboardWarmer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("leaderboard warmer stopped")
	return nil
}

func (w *LeaderboardWarmer) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce warms the global leaderboard and every class leaderboard.
// It returns how many leaderboards were refreshed and how many failed.
func (w *LeaderboardWarmer) RunOnce(ctx context.Context) (warmed, failed int) {
	startTime := time.Now()

	queries := []domain.LeaderboardQuery{{Scope: domain.LeaderboardGlobal}}
	classIDs, err := w.leaderboards.ClassIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list classes for warm-up", "error", err)
		failed++
	}
	for _, classID := range classIDs {
		queries = append(queries, domain.LeaderboardQuery{Scope: domain.LeaderboardClass, ClassID: classID})
	}

	for _, q := range queries {
		if _, err := w.leaderboards.Refresh(ctx, q); err != nil {
			w.logger.Error("failed to warm leaderboard",
				"scope", q.Scope,
				"class_id", q.ClassID,
				"error", err,
			)
			failed++
			continue
		}
		warmed++
	}

	w.logger.Info("leaderboard warm-up completed",
		"duration", time.Since(startTime),
		"warmed", warmed,
		"errors", failed,
	)
	return warmed, failed
}

// IsRunning returns whether the warmer loop is active
func (w *LeaderboardWarmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
