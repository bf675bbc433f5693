// Package memory is an in-process implementation of the storage contract.
// It backs the tests and the "memory" storage driver used for local runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// Store is a mutex-guarded in-memory store
type Store struct {
	mu           sync.RWMutex
	books        map[string]domain.Book
	profiles     map[string]domain.StudentProfile
	states       map[string]domain.GameState
	logs         []domain.ReadingLog
	achievements map[string]domain.Achievement
	audit        []domain.AuditLog
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		books:        make(map[string]domain.Book),
		profiles:     make(map[string]domain.StudentProfile),
		states:       make(map[string]domain.GameState),
		achievements: make(map[string]domain.Achievement),
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// CreateBook adds a book to the catalogue
func (s *Store) CreateBook(ctx context.Context, book domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[book.ID]; ok {
		return domain.ErrBookExists
	}
	s.books[book.ID] = book
	return nil
}

// GetBook returns a book by id
func (s *Store) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[bookID]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return &book, nil
}

// RegisterStudent stores a profile together with its initial game state
func (s *Store) RegisterStudent(ctx context.Context, profile domain.StudentProfile, state domain.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.StudentID]; ok {
		return domain.ErrStudentExists
	}
	s.profiles[profile.StudentID] = profile
	s.states[profile.StudentID] = cloneState(state)
	return nil
}

// GetStudentProfile returns a student's profile
func (s *Store) GetStudentProfile(ctx context.Context, studentID string) (*domain.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[studentID]
	if !ok {
		return nil, domain.ErrStudentNotFound
	}
	return &profile, nil
}

// GetGameState returns a copy of the student's game state
func (s *Store) GetGameState(ctx context.Context, studentID string) (*domain.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[studentID]
	if !ok {
		return nil, domain.ErrGameStateNotFound
	}
	state = cloneState(state)
	return &state, nil
}

// PutGameState overwrites a game state. Tests use it to arrange fixtures.
func (s *Store) PutGameState(state domain.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.StudentID] = cloneState(state)
}

// ApplyReward increments position and XP and appends unseen achievements.
// Tests use it to arrange fixtures; the services credit through CreditReadingLog.
func (s *Store) ApplyReward(ctx context.Context, studentID string, delta domain.RewardDelta) (*domain.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyReward(studentID, delta)
}

// applyReward must be called with the write lock held
func (s *Store) applyReward(studentID string, delta domain.RewardDelta) (*domain.GameState, error) {
	state, ok := s.states[studentID]
	if !ok {
		return nil, domain.ErrGameStateNotFound
	}
	state = cloneState(state)
	state.BoardPosition += delta.Steps
	state.XP += delta.XP
	state.Level = domain.LevelForXP(state.XP)
	for _, id := range delta.AchievementIDs {
		if !slices.Contains(state.UnlockedAchievements, id) {
			state.UnlockedAchievements = append(state.UnlockedAchievements, id)
		}
	}
	state.UpdatedAt = time.Now()
	s.states[studentID] = state

	out := cloneState(state)
	return &out, nil
}

// CreditReadingLog applies a reward to the log's student and records it on
// the log, both at once. A log that was already credited is returned
// unchanged with credited false.
func (s *Store) CreditReadingLog(ctx context.Context, logID string, delta domain.RewardDelta) (*domain.ReadingLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLog(logID)
	if i < 0 {
		return nil, false, domain.ErrReadingLogNotFound
	}
	if s.logs[i].RewardedAt != nil {
		log := s.logs[i]
		return &log, false, nil
	}
	if _, err := s.applyReward(s.logs[i].StudentID, delta); err != nil {
		return nil, false, err
	}

	now := time.Now()
	s.logs[i].PointsAwarded = delta.XP
	s.logs[i].StepsAwarded = delta.Steps
	s.logs[i].RewardedAt = &now
	log := s.logs[i]
	return &log, true, nil
}

// SaveStreak applies a streak compare-and-set. It fails with
// ErrStreakConflict when the last log time moved since the caller read it,
// and returns the current state untouched when the log was already counted.
func (s *Store) SaveStreak(ctx context.Context, update domain.StreakUpdate) (*domain.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[update.StudentID]
	if !ok {
		return nil, domain.ErrGameStateNotFound
	}

	logIndex := -1
	if update.LogID != "" {
		logIndex = s.findLog(update.LogID)
		if logIndex < 0 {
			return nil, domain.ErrReadingLogNotFound
		}
		if s.logs[logIndex].StreakCounted {
			out := cloneState(state)
			return &out, nil
		}
	}

	if !sameInstant(state.LastBookLoggedAt, update.Prev) {
		return nil, domain.ErrStreakConflict
	}

	state = cloneState(state)
	state.Streak = update.Streak
	state.LongestStreak = max(state.LongestStreak, update.LongestStreak)
	loggedAt := update.LoggedAt
	state.LastBookLoggedAt = &loggedAt
	state.UpdatedAt = time.Now()
	s.states[update.StudentID] = state
	if logIndex >= 0 {
		s.logs[logIndex].StreakCounted = true
	}

	out := cloneState(state)
	return &out, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// CreateReadingLog appends a reading log. Completion ids are unique.
func (s *Store) CreateReadingLog(ctx context.Context, log domain.ReadingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[log.BookID]; !ok {
		return domain.ErrBookNotFound
	}
	if s.findLog(log.ID) >= 0 {
		return domain.ErrReadingLogExists
	}
	if log.CompletionID != "" && s.findCompletion(log.CompletionID) >= 0 {
		return domain.ErrReadingLogExists
	}
	s.logs = append(s.logs, log)
	return nil
}

// FindReadingLogByCompletion returns the log recorded for a completion id
func (s *Store) FindReadingLogByCompletion(ctx context.Context, completionID string) (*domain.ReadingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.findCompletion(completionID)
	if completionID == "" || i < 0 {
		return nil, domain.ErrReadingLogNotFound
	}
	log := s.logs[i]
	return &log, nil
}

// GetReadingLog returns a reading log by id
func (s *Store) GetReadingLog(ctx context.Context, logID string) (*domain.ReadingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.findLog(logID)
	if i < 0 {
		return nil, domain.ErrReadingLogNotFound
	}
	log := s.logs[i]
	return &log, nil
}

// SetReadingLogVerification records a teacher decision. Rejection clears the verification time.
func (s *Store) SetReadingLogVerification(ctx context.Context, logID string, approved bool, at time.Time) (*domain.ReadingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLog(logID)
	if i < 0 {
		return nil, domain.ErrReadingLogNotFound
	}
	s.logs[i].VerifiedByTeacher = approved
	if approved {
		s.logs[i].TeacherVerifiedAt = &at
	} else {
		s.logs[i].TeacherVerifiedAt = nil
	}
	log := s.logs[i]
	return &log, nil
}

// ListReadingHistory returns matching logs joined with their books, most recent first
func (s *Store) ListReadingHistory(ctx context.Context, filter domain.ReadingLogFilter) ([]domain.ReadingHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLogs(filter)
	entries := make([]domain.ReadingHistoryEntry, 0, len(matched))
	for _, log := range matched {
		entries = append(entries, domain.ReadingHistoryEntry{Log: log, Book: s.books[log.BookID]})
	}
	return entries, nil
}

// CountReadingLogs counts matching logs, ignoring the limit
func (s *Store) CountReadingLogs(ctx context.Context, filter domain.ReadingLogFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Limit, filter.Offset = 0, 0
	return len(s.matchLogs(filter)), nil
}

// ListPendingReadingLogs returns unverified logs of a class, most recent first
func (s *Store) ListPendingReadingLogs(ctx context.Context, classID string, limit int) ([]domain.ReadingHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.ReadingHistoryEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		log := s.logs[i]
		if log.VerifiedByTeacher || s.profiles[log.StudentID].ClassID != classID {
			continue
		}
		entries = append(entries, domain.ReadingHistoryEntry{Log: log, Book: s.books[log.BookID]})
	}
	sortHistory(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// CreateAchievement stores an achievement definition
func (s *Store) CreateAchievement(ctx context.Context, achievement domain.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.achievements[achievement.ID]; ok {
		return domain.ErrAchievementExists
	}
	s.achievements[achievement.ID] = achievement
	return nil
}

// ListAchievements returns all achievements ordered by tier, then id
func (s *Store) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	achievements := make([]domain.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		achievements = append(achievements, a)
	}
	slices.SortFunc(achievements, func(a, b domain.Achievement) int {
		return cmp.Or(cmp.Compare(a.Tier, b.Tier), cmp.Compare(a.ID, b.ID))
	})
	return achievements, nil
}

// AppendAuditLog appends an audit entry
func (s *Store) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, entry)
	return nil
}

// AuditLogs returns a copy of the audit trail in insertion order
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audit)
}

// ListAuditLogs returns one page of matching entries, newest first, and the
// number of entries matching the filter
func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.AuditLog, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		entry := s.audit[i]
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		matched = append(matched, entry)
	}
	slices.SortStableFunc(matched, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// ListLeaderboard ranks students by the ordering of the query's scope
func (s *Store) ListLeaderboard(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.LeaderboardEntry
	for studentID, state := range s.states {
		profile := s.profiles[studentID]
		if q.Scope == domain.LeaderboardClass && profile.ClassID != q.ClassID {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: studentID,
			ClassID:   profile.ClassID,
			Position:  state.BoardPosition,
			XP:        state.XP,
			Level:     state.Level,
			Streak:    state.Streak,
		})
	}

	slices.SortFunc(entries, func(a, b domain.LeaderboardEntry) int {
		if q.Scope == domain.LeaderboardClass {
			return cmp.Or(cmp.Compare(b.XP, a.XP), cmp.Compare(b.Position, a.Position), cmp.Compare(a.StudentID, b.StudentID))
		}
		return cmp.Or(cmp.Compare(b.Position, a.Position), cmp.Compare(b.XP, a.XP), cmp.Compare(a.StudentID, b.StudentID))
	})

	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

// ListClassIDs returns the distinct class ids of registered students
func (s *Store) ListClassIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, p := range s.profiles {
		if !slices.Contains(ids, p.ClassID) {
			ids = append(ids, p.ClassID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) findLog(logID string) int {
	return slices.IndexFunc(s.logs, func(l domain.ReadingLog) bool {
		return l.ID == logID
	})
}

func (s *Store) findCompletion(completionID string) int {
	return slices.IndexFunc(s.logs, func(l domain.ReadingLog) bool {
		return l.CompletionID == completionID
	})
}

// matchLogs must be called with the lock held. Logs whose book is gone are
// skipped before paging, as the SQL join does.
func (s *Store) matchLogs(filter domain.ReadingLogFilter) []domain.ReadingLog {
	var matched []domain.ReadingLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		log := s.logs[i]
		if log.StudentID != filter.StudentID {
			continue
		}
		if _, ok := s.books[log.BookID]; !ok {
			continue
		}
		if filter.VerifiedOnly && !log.VerifiedByTeacher {
			continue
		}
		if filter.Since != nil && !log.CreatedAt.After(*filter.Since) {
			continue
		}
		matched = append(matched, log)
	}
	// Stable keeps newer insertions first among equal timestamps.
	slices.SortStableFunc(matched, func(a, b domain.ReadingLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(matched, filter.Limit, filter.Offset)
}

// page slices out offset..offset+limit; a zero limit keeps the rest
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[max(offset, 0):]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func sortHistory(entries []domain.ReadingHistoryEntry) {
	slices.SortStableFunc(entries, func(a, b domain.ReadingHistoryEntry) int {
		return b.Log.CreatedAt.Compare(a.Log.CreatedAt)
	})
}

func cloneState(state domain.GameState) domain.GameState {
	state.UnlockedAchievements = slices.Clone(state.UnlockedAchievements)
	if state.UnlockedAchievements == nil {
		state.UnlockedAchievements = []string{}
	}
	if state.LastBookLoggedAt != nil {
		t := *state.LastBookLoggedAt
		state.LastBookLoggedAt = &t
	}
	return state
}
