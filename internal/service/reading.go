package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
)

const defaultHistoryLimit = 20

// ReadingService records book completions and teacher verifications.
// Every GameState mutation for a student runs under that student's lock.
type ReadingService struct {
	repo   Repository
	engine *gamelogic.Engine
	cache  Cache
	locks  *KeyedMutex
	limits gamelogic.Limits
	logger *slog.Logger

	pendingLimit int
}

// NewReadingService creates a new reading service
func NewReadingService(
	repo Repository,
	engine *gamelogic.Engine,
	cache Cache,
	limits gamelogic.Limits,
	pendingLimit int,
	logger *slog.Logger,
) *ReadingService {
	return &ReadingService{
		repo:         repo,
		engine:       engine,
		cache:        cache,
		locks:        NewKeyedMutex(),
		limits:       limits,
		logger:       logger,
		pendingLimit: pendingLimit,
	}
}

// LogBook records a completion, rewards it and advances the streak.
// The new log is part of the history the reward is computed from.
// A completion whose id was recorded before resumes that log: the reward is
// credited at most once and the streak counts the log at most once, so a
// retried or redelivered completion is safe.
func (s *ReadingService) LogBook(ctx context.Context, c domain.BookCompletion) (*domain.BookLogResult, error) {
	if err := gamelogic.ValidateCompletion(nil, c, s.limits); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(c.StudentID)
	defer unlock()

	book, err := s.repo.GetBook(ctx, c.BookID)
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	if err := gamelogic.ValidateCompletion(book, c, s.limits); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetGameState(ctx, c.StudentID); err != nil {
		return nil, fmt.Errorf("getting game state: %w", err)
	}

	log, err := s.openReadingLog(ctx, c)
	if err != nil {
		return nil, err
	}

	reward, err := s.engine.CalculateReward(ctx, gamelogic.RewardRequest{
		BookID:    c.BookID,
		StudentID: c.StudentID,
		PagesRead: c.PagesRead,
	})
	if err != nil {
		return nil, fmt.Errorf("calculating reward: %w", err)
	}

	credited, ok, err := s.repo.CreditReadingLog(ctx, log.ID, domain.RewardDelta{
		Steps:          reward.Steps,
		XP:             reward.XP,
		AchievementIDs: reward.AchievementIDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("crediting reward: %w", err)
	}
	if !ok {
		// Already credited by an earlier attempt; report what it granted.
		reward.Steps = credited.StepsAwarded
		reward.XP = credited.PointsAwarded
		reward.Achievements = []domain.Achievement{}
	}

	state, err := s.engine.UpdateStreakForLog(ctx, c.StudentID, credited.ID)
	if err != nil {
		return nil, fmt.Errorf("updating streak: %w", err)
	}

	s.invalidateAfterProgress(ctx, c.StudentID)

	s.logger.Info("book logged",
		"student_id", c.StudentID,
		"book_id", c.BookID,
		"reading_log_id", credited.ID,
		"completion_id", c.CompletionID,
		"replayed", !ok,
		"steps", reward.Steps,
		"xp", reward.XP,
		"achievements", len(reward.Achievements),
		"streak", state.Streak,
	)

	return &domain.BookLogResult{
		ReadingLog: *credited,
		Reward:     *reward,
		GameState:  *state,
	}, nil
}

// openReadingLog returns the log already recorded for the completion id, or
// records a new one
func (s *ReadingService) openReadingLog(ctx context.Context, c domain.BookCompletion) (*domain.ReadingLog, error) {
	if c.CompletionID != "" {
		existing, err := s.repo.FindReadingLogByCompletion(ctx, c.CompletionID)
		if err == nil {
			return sameCompletion(existing, c)
		}
		if !errors.Is(err, domain.ErrReadingLogNotFound) {
			return nil, fmt.Errorf("finding reading log: %w", err)
		}
	}

	now := s.engine.Now()
	log := domain.ReadingLog{
		ID:           uuid.NewString(),
		CompletionID: c.CompletionID,
		StudentID:    c.StudentID,
		BookID:       c.BookID,
		PagesRead:    c.PagesRead,
		ReviewText:   c.ReviewText,
		Rating:       c.Rating,
		MetadataHash: metadataHash(c, now.UnixMilli()),
		CreatedAt:    now,
	}
	err := s.repo.CreateReadingLog(ctx, log)
	if errors.Is(err, domain.ErrReadingLogExists) && c.CompletionID != "" {
		// Another process recorded the same completion first.
		existing, err := s.repo.FindReadingLogByCompletion(ctx, c.CompletionID)
		if err != nil {
			return nil, fmt.Errorf("finding reading log: %w", err)
		}
		return sameCompletion(existing, c)
	}
	if err != nil {
		return nil, fmt.Errorf("creating reading log: %w", err)
	}
	return &log, nil
}

// sameCompletion rejects a completion id reused for a different claim
func sameCompletion(log *domain.ReadingLog, c domain.BookCompletion) (*domain.ReadingLog, error) {
	if log.StudentID != c.StudentID || log.BookID != c.BookID {
		return nil, domain.NewValidationError("completion_id", "%q was already used for another completion", c.CompletionID)
	}
	return log, nil
}

// RewardPreview computes what a completion would earn without recording it
func (s *ReadingService) RewardPreview(ctx context.Context, studentID, bookID string, pagesRead int) (*domain.RewardResult, error) {
	return s.engine.CalculateReward(ctx, gamelogic.RewardRequest{
		BookID:    bookID,
		StudentID: studentID,
		PagesRead: pagesRead,
	})
}

// VerifyReadingLog records a teacher's decision on a reading log and audits it.
// Rewards already granted are kept either way.
func (s *ReadingService) VerifyReadingLog(ctx context.Context, logID string, req domain.VerifyReadingRequest) (*domain.ReadingLog, error) {
	if logID == "" {
		return nil, domain.NewValidationError("log_id", "is required")
	}
	if req.TeacherID == "" {
		return nil, domain.NewValidationError("teacher_id", "is required")
	}

	now := s.engine.Now()
	log, err := s.repo.SetReadingLogVerification(ctx, logID, req.Approved, now)
	if err != nil {
		return nil, fmt.Errorf("verifying reading log: %w", err)
	}

	action := domain.AuditVerifyReadingLog
	if !req.Approved {
		action = domain.AuditRejectReadingLog
	}
	entry := domain.AuditLog{
		ID:      uuid.NewString(),
		ActorID: req.TeacherID,
		Action:  action,
		Target:  "ReadingLog:" + log.ID,
		Metadata: map[string]any{
			"studentId":     log.StudentID,
			"bookId":        log.BookID,
			"pointsAwarded": log.PointsAwarded,
			"stepsAwarded":  log.StepsAwarded,
			"feedback":      req.Feedback,
		},
		CreatedAt: now,
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to record verification", "reading_log_id", log.ID, "error", err)
	}

	// Board metadata is derived from verified history only.
	s.invalidate(ctx, boardCacheKey(log.StudentID))

	s.logger.Info("reading log verified",
		"reading_log_id", log.ID,
		"student_id", log.StudentID,
		"teacher_id", req.TeacherID,
		"approved", req.Approved,
	)
	return log, nil
}

// PendingVerifications lists a class's unverified logs, most recent first.
// A limit of zero or one above the configured cap falls back to the cap.
func (s *ReadingService) PendingVerifications(ctx context.Context, classID string, limit int) ([]domain.ReadingHistoryEntry, error) {
	if classID == "" {
		return nil, domain.NewValidationError("class_id", "is required")
	}
	if s.pendingLimit > 0 && (limit <= 0 || limit > s.pendingLimit) {
		limit = s.pendingLimit
	}
	entries, err := s.repo.ListPendingReadingLogs(ctx, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending logs: %w", err)
	}
	if entries == nil {
		entries = []domain.ReadingHistoryEntry{}
	}
	return entries, nil
}

// History returns one page of a student's reading logs, newest first.
// A zero limit uses the default page size.
func (s *ReadingService) History(ctx context.Context, studentID string, limit, offset int) (*domain.ReadingHistoryPage, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	offset = max(offset, 0)

	if _, err := s.repo.GetStudentProfile(ctx, studentID); err != nil {
		return nil, fmt.Errorf("getting student profile: %w", err)
	}

	filter := domain.ReadingLogFilter{StudentID: studentID, Limit: limit, Offset: offset}
	entries, err := s.repo.ListReadingHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	total, err := s.repo.CountReadingLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	return &domain.ReadingHistoryPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Stats summarises a student's teacher-verified reading alongside their game state
func (s *ReadingService) Stats(ctx context.Context, studentID string) (*domain.StudentStats, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}

	state, err := s.repo.GetGameState(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("getting game state: %w", err)
	}
	verified, err := s.repo.ListReadingHistory(ctx, domain.ReadingLogFilter{StudentID: studentID, VerifiedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing verified history: %w", err)
	}

	stats := &domain.StudentStats{
		StudentID:         studentID,
		TotalBooksRead:    len(verified),
		GenreDistribution: make(map[string]int),
		CurrentStreak:     state.Streak,
		LongestStreak:     state.LongestStreak,
		XP:                state.XP,
		Level:             state.Level,
		BoardPosition:     state.BoardPosition,
	}
	for _, entry := range verified {
		stats.TotalPagesRead += entry.Log.PagesRead
		stats.GenreDistribution[entry.Book.Genre]++
	}
	return stats, nil
}

// GetGameState returns a student's current game state
func (s *ReadingService) GetGameState(ctx context.Context, studentID string) (*domain.GameState, error) {
	return s.repo.GetGameState(ctx, studentID)
}

func (s *ReadingService) invalidateAfterProgress(ctx context.Context, studentID string) {
	s.invalidate(ctx, boardCacheKey(studentID))
	if err := s.cache.InvalidatePattern(ctx, leaderboardPattern); err != nil {
		s.logger.Warn("failed to invalidate leaderboards", "error", err)
	}
}

func (s *ReadingService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate cache", "keys", keys, "error", err)
	}
}

// metadataHash fingerprints a completion claim
func metadataHash(c domain.BookCompletion, unixMilli int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%d", c.StudentID, c.BookID, c.PagesRead, unixMilli)))
	return hex.EncodeToString(sum[:])
}
