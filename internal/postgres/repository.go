package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

// Postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	pool, err := NewPool(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, cfg *config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateBook adds a book to the catalogue
func (r *Repository) CreateBook(ctx context.Context, book domain.Book) error {
	query := `
		INSERT INTO books (id, title, author, pages, genre, difficulty_score,
			recommended_age_min, recommended_age_max, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.Pages,
		book.Genre,
		book.DifficultyScore,
		book.RecommendedAgeMin,
		book.RecommendedAgeMax,
		book.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == uniqueViolation {
			return domain.ErrBookExists
		}
		return fmt.Errorf("creating book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID
func (r *Repository) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	query := `
		SELECT id, title, author, pages, genre, difficulty_score,
			recommended_age_min, recommended_age_max, created_at
		FROM books
		WHERE id = $1
	`
	var book domain.Book
	err := r.pool.QueryRow(ctx, query, bookID).Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Pages,
		&book.Genre,
		&book.DifficultyScore,
		&book.RecommendedAgeMin,
		&book.RecommendedAgeMax,
		&book.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return &book, nil
}

// RegisterStudent stores a profile together with its initial game state in one transaction
func (r *Repository) RegisterStudent(ctx context.Context, profile domain.StudentProfile, state domain.GameState) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO student_profiles (student_id, class_id, grade_level, reading_goal)
		VALUES ($1, $2, $3, $4)
	`, profile.StudentID, profile.ClassID, profile.GradeLevel, profile.ReadingGoal)
	if err != nil {
		if pgErrorCode(err) == uniqueViolation {
			return domain.ErrStudentExists
		}
		return fmt.Errorf("creating student profile: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO game_states (id, student_id, board_position, xp, level, streak,
			longest_streak, last_book_logged_at, unlocked_achievements, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		state.ID,
		state.StudentID,
		state.BoardPosition,
		state.XP,
		state.Level,
		state.Streak,
		state.LongestStreak,
		state.LastBookLoggedAt,
		state.UnlockedAchievements,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating game state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing registration: %w", err)
	}
	return nil
}

// GetStudentProfile retrieves a student's profile
func (r *Repository) GetStudentProfile(ctx context.Context, studentID string) (*domain.StudentProfile, error) {
	query := `
		SELECT student_id, class_id, grade_level, reading_goal
		FROM student_profiles
		WHERE student_id = $1
	`
	var profile domain.StudentProfile
	err := r.pool.QueryRow(ctx, query, studentID).Scan(
		&profile.StudentID,
		&profile.ClassID,
		&profile.GradeLevel,
		&profile.ReadingGoal,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStudentNotFound
		}
		return nil, fmt.Errorf("getting student profile: %w", err)
	}
	return &profile, nil
}

const gameStateColumns = `id, student_id, board_position, xp, level, streak,
	longest_streak, last_book_logged_at, unlocked_achievements, updated_at`

func scanGameState(row pgx.Row) (*domain.GameState, error) {
	var state domain.GameState
	err := row.Scan(
		&state.ID,
		&state.StudentID,
		&state.BoardPosition,
		&state.XP,
		&state.Level,
		&state.Streak,
		&state.LongestStreak,
		&state.LastBookLoggedAt,
		&state.UnlockedAchievements,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGameStateNotFound
		}
		return nil, err
	}
	if state.UnlockedAchievements == nil {
		state.UnlockedAchievements = []string{}
	}
	return &state, nil
}

// GetGameState retrieves a student's game state
func (r *Repository) GetGameState(ctx context.Context, studentID string) (*domain.GameState, error) {
	query := `SELECT ` + gameStateColumns + ` FROM game_states WHERE student_id = $1`
	state, err := scanGameState(r.pool.QueryRow(ctx, query, studentID))
	if err != nil && !errors.Is(err, domain.ErrGameStateNotFound) {
		return nil, fmt.Errorf("getting game state: %w", err)
	}
	return state, err
}

// applyReward increments position and XP in place and appends unseen
// achievements. Concurrent rewards for one student never overwrite each other.
func applyReward(ctx context.Context, tx pgx.Tx, studentID string, delta domain.RewardDelta) (*domain.GameState, error) {
	achievementIDs := delta.AchievementIDs
	if achievementIDs == nil {
		achievementIDs = []string{}
	}
	query := `
		UPDATE game_states SET
			board_position = board_position + $2,
			xp = xp + $3,
			level = (xp + $3) / 1000 + 1,
			unlocked_achievements = array_cat(unlocked_achievements,
				ARRAY(SELECT a FROM unnest($4::text[]) AS a WHERE a <> ALL(unlocked_achievements))),
			updated_at = $5
		WHERE student_id = $1
		RETURNING ` + gameStateColumns
	state, err := scanGameState(tx.QueryRow(ctx, query, studentID, delta.Steps, delta.XP, achievementIDs, time.Now()))
	if err != nil && !errors.Is(err, domain.ErrGameStateNotFound) {
		return nil, fmt.Errorf("applying reward: %w", err)
	}
	return state, err
}

// CreditReadingLog records a reward on the log and applies it to the log's
// student in one transaction. A log that was already credited is returned
// unchanged with credited false.
func (r *Repository) CreditReadingLog(ctx context.Context, logID string, delta domain.RewardDelta) (*domain.ReadingLog, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reading_logs rl SET points_awarded = $2, steps_awarded = $3, rewarded_at = $4
		WHERE rl.id = $1 AND rl.rewarded_at IS NULL
		RETURNING ` + readingLogColumns
	var log domain.ReadingLog
	err = tx.QueryRow(ctx, query, logID, delta.XP, delta.Steps, time.Now()).Scan(readingLogTargets(&log)...)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetReadingLog(ctx, logID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("crediting reading log: %w", err)
	}

	if _, err := applyReward(ctx, tx, log.StudentID, delta); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing reward: %w", err)
	}
	return &log, true, nil
}

// SaveStreak applies a streak compare-and-set on last_book_logged_at. When the
// update names a log, the log is marked counted in the same transaction and a
// log counted before leaves the state untouched.
func (r *Repository) SaveStreak(ctx context.Context, update domain.StreakUpdate) (*domain.GameState, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if update.LogID != "" {
		var counted bool
		err := tx.QueryRow(ctx, `SELECT streak_counted FROM reading_logs WHERE id = $1 FOR UPDATE`, update.LogID).Scan(&counted)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrReadingLogNotFound
			}
			return nil, fmt.Errorf("locking reading log: %w", err)
		}
		if counted {
			return r.GetGameState(ctx, update.StudentID)
		}
	}

	query := `
		UPDATE game_states SET
			streak = $2,
			longest_streak = GREATEST(longest_streak, $3),
			last_book_logged_at = $4,
			updated_at = $5
		WHERE student_id = $1 AND last_book_logged_at IS NOT DISTINCT FROM $6::timestamptz
		RETURNING ` + gameStateColumns
	state, err := scanGameState(tx.QueryRow(ctx, query,
		update.StudentID,
		update.Streak,
		update.LongestStreak,
		update.LoggedAt,
		time.Now(),
		update.Prev,
	))
	if errors.Is(err, domain.ErrGameStateNotFound) {
		// No row matched: the student is unknown or another writer got there first.
		if _, err := r.GetGameState(ctx, update.StudentID); err != nil {
			return nil, err
		}
		return nil, domain.ErrStreakConflict
	}
	if err != nil {
		return nil, fmt.Errorf("saving streak: %w", err)
	}

	if update.LogID != "" {
		if _, err := tx.Exec(ctx, `UPDATE reading_logs SET streak_counted = true WHERE id = $1`, update.LogID); err != nil {
			return nil, fmt.Errorf("marking streak counted: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing streak: %w", err)
	}
	return state, nil
}

// CreateReadingLog inserts a reading log. A reused completion id fails with
// domain.ErrReadingLogExists.
func (r *Repository) CreateReadingLog(ctx context.Context, log domain.ReadingLog) error {
	query := `
		INSERT INTO reading_logs (id, completion_id, student_id, book_id, pages_read, review_text, rating,
			metadata_hash, verified_by_teacher, teacher_verified_at, points_awarded, steps_awarded,
			rewarded_at, streak_counted, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		log.ID,
		log.CompletionID,
		log.StudentID,
		log.BookID,
		log.PagesRead,
		log.ReviewText,
		log.Rating,
		log.MetadataHash,
		log.VerifiedByTeacher,
		log.TeacherVerifiedAt,
		log.PointsAwarded,
		log.StepsAwarded,
		log.RewardedAt,
		log.StreakCounted,
		log.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case foreignKeyViolation:
				if strings.Contains(pgErr.ConstraintName, "student") {
					return domain.ErrStudentNotFound
				}
				return domain.ErrBookNotFound
			case uniqueViolation:
				return domain.ErrReadingLogExists
			}
		}
		return fmt.Errorf("creating reading log: %w", err)
	}
	return nil
}

// FindReadingLogByCompletion returns the log recorded for a completion id
func (r *Repository) FindReadingLogByCompletion(ctx context.Context, completionID string) (*domain.ReadingLog, error) {
	if completionID == "" {
		return nil, domain.ErrReadingLogNotFound
	}
	query := `SELECT ` + readingLogColumns + ` FROM reading_logs rl WHERE rl.completion_id = $1`
	var log domain.ReadingLog
	if err := r.pool.QueryRow(ctx, query, completionID).Scan(readingLogTargets(&log)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReadingLogNotFound
		}
		return nil, fmt.Errorf("finding reading log by completion: %w", err)
	}
	return &log, nil
}

const readingLogColumns = `rl.id, COALESCE(rl.completion_id, ''), rl.student_id, rl.book_id, rl.pages_read,
	rl.review_text, rl.rating, rl.metadata_hash, rl.verified_by_teacher, rl.teacher_verified_at,
	rl.points_awarded, rl.steps_awarded, rl.rewarded_at, rl.streak_counted, rl.created_at`

const bookColumns = `b.id, b.title, b.author, b.pages, b.genre, b.difficulty_score,
	b.recommended_age_min, b.recommended_age_max, b.created_at`

func readingLogTargets(log *domain.ReadingLog) []any {
	return []any{
		&log.ID,
		&log.CompletionID,
		&log.StudentID,
		&log.BookID,
		&log.PagesRead,
		&log.ReviewText,
		&log.Rating,
		&log.MetadataHash,
		&log.VerifiedByTeacher,
		&log.TeacherVerifiedAt,
		&log.PointsAwarded,
		&log.StepsAwarded,
		&log.RewardedAt,
		&log.StreakCounted,
		&log.CreatedAt,
	}
}

func bookTargets(book *domain.Book) []any {
	return []any{
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Pages,
		&book.Genre,
		&book.DifficultyScore,
		&book.RecommendedAgeMin,
		&book.RecommendedAgeMax,
		&book.CreatedAt,
	}
}

// GetReadingLog retrieves a reading log by ID
func (r *Repository) GetReadingLog(ctx context.Context, logID string) (*domain.ReadingLog, error) {
	query := `SELECT ` + readingLogColumns + ` FROM reading_logs rl WHERE rl.id = $1`
	var log domain.ReadingLog
	if err := r.pool.QueryRow(ctx, query, logID).Scan(readingLogTargets(&log)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReadingLogNotFound
		}
		return nil, fmt.Errorf("getting reading log: %w", err)
	}
	return &log, nil
}

// SetReadingLogVerification records a teacher decision. Rejection clears the verification time.
func (r *Repository) SetReadingLogVerification(ctx context.Context, logID string, approved bool, at time.Time) (*domain.ReadingLog, error) {
	var verifiedAt *time.Time
	if approved {
		verifiedAt = &at
	}
	query := `
		UPDATE reading_logs rl SET verified_by_teacher = $2, teacher_verified_at = $3
		WHERE rl.id = $1
		RETURNING ` + readingLogColumns
	var log domain.ReadingLog
	if err := r.pool.QueryRow(ctx, query, logID, approved, verifiedAt).Scan(readingLogTargets(&log)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReadingLogNotFound
		}
		return nil, fmt.Errorf("verifying reading log: %w", err)
	}
	return &log, nil
}

// ListReadingHistory returns matching logs joined with their books, most recent first
func (r *Repository) ListReadingHistory(ctx context.Context, filter domain.ReadingLogFilter) ([]domain.ReadingHistoryEntry, error) {
	query := `
		SELECT ` + readingLogColumns + `, ` + bookColumns + `
		FROM reading_logs rl
		JOIN books b ON b.id = rl.book_id
		WHERE rl.student_id = $1
			AND ($2::boolean = false OR rl.verified_by_teacher)
			AND ($3::timestamptz IS NULL OR rl.created_at > $3)
		ORDER BY rl.created_at DESC, rl.id
		LIMIT NULLIF($4::int, 0) OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query, filter.StudentID, filter.VerifiedOnly, filter.Since, filter.Limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing reading history: %w", err)
	}
	return collectHistory(rows)
}

func collectHistory(rows pgx.Rows) ([]domain.ReadingHistoryEntry, error) {
	defer rows.Close()

	entries := make([]domain.ReadingHistoryEntry, 0)
	for rows.Next() {
		var entry domain.ReadingHistoryEntry
		targets := append(readingLogTargets(&entry.Log), bookTargets(&entry.Book)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scanning reading log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reading logs: %w", err)
	}
	return entries, nil
}

// CountReadingLogs counts matching logs, ignoring limit and offset
func (r *Repository) CountReadingLogs(ctx context.Context, filter domain.ReadingLogFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM reading_logs rl
		WHERE rl.student_id = $1
			AND ($2::boolean = false OR rl.verified_by_teacher)
			AND ($3::timestamptz IS NULL OR rl.created_at > $3)
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, filter.StudentID, filter.VerifiedOnly, filter.Since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting reading logs: %w", err)
	}
	return count, nil
}

// ListPendingReadingLogs returns unverified logs of a class, most recent first
func (r *Repository) ListPendingReadingLogs(ctx context.Context, classID string, limit int) ([]domain.ReadingHistoryEntry, error) {
	query := `
		SELECT ` + readingLogColumns + `, ` + bookColumns + `
		FROM reading_logs rl
		JOIN books b ON b.id = rl.book_id
		JOIN student_profiles sp ON sp.student_id = rl.student_id
		WHERE sp.class_id = $1 AND NOT rl.verified_by_teacher
		ORDER BY rl.created_at DESC, rl.id
		LIMIT NULLIF($2::int, 0)
	`
	rows, err := r.pool.Query(ctx, query, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending reading logs: %w", err)
	}
	return collectHistory(rows)
}

// CreateAchievement stores an achievement definition
func (r *Repository) CreateAchievement(ctx context.Context, achievement domain.Achievement) error {
	criteriaJSON, err := json.Marshal(achievement.Criteria)
	if err != nil {
		return fmt.Errorf("marshaling criteria: %w", err)
	}

	query := `
		INSERT INTO achievements (id, name, description, tier, criteria, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		achievement.ID,
		achievement.Name,
		achievement.Description,
		achievement.Tier,
		criteriaJSON,
		achievement.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == uniqueViolation {
			return domain.ErrAchievementExists
		}
		return fmt.Errorf("creating achievement: %w", err)
	}
	return nil
}

// ListAchievements returns all achievements ordered by tier, then id
func (r *Repository) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	query := `
		SELECT id, name, description, tier, criteria, created_at
		FROM achievements
		ORDER BY tier, id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]domain.Achievement, 0)
	for rows.Next() {
		var a domain.Achievement
		var criteriaJSON []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Tier, &criteriaJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
			return nil, fmt.Errorf("decoding criteria of %s: %w", a.ID, err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating achievements: %w", err)
	}
	return achievements, nil
}

// AppendAuditLog records an audit entry
func (r *Repository) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, action, target, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.Target,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of matching entries, newest first, and the
// number of entries matching the filter
func (r *Repository) ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, int, error) {
	where := `WHERE ($1::text = '' OR action = $1) AND ($2::text = '' OR actor_id = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs `+where, filter.Action, filter.ActorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	query := `
		SELECT id, actor_id, action, target, metadata, created_at
		FROM audit_logs ` + where + `
		ORDER BY created_at DESC, id
		LIMIT NULLIF($3::int, 0) OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.Action, filter.ActorID, filter.Limit, max(filter.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0)
	for rows.Next() {
		var entry domain.AuditLog
		var metadataJSON []byte
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.Target, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decoding metadata of %s: %w", entry.ID, err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit logs: %w", err)
	}
	return logs, total, nil
}

// ListLeaderboard ranks students. Class boards order by XP then position,
// the global board by position then XP.
func (r *Repository) ListLeaderboard(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	order := "gs.board_position DESC, gs.xp DESC, gs.student_id"
	if q.Scope == domain.LeaderboardClass {
		order = "gs.xp DESC, gs.board_position DESC, gs.student_id"
	}

	query := `
		SELECT ROW_NUMBER() OVER (ORDER BY ` + order + `) AS rank,
			gs.student_id, sp.class_id, gs.board_position, gs.xp, gs.level, gs.streak
		FROM game_states gs
		JOIN student_profiles sp ON sp.student_id = gs.student_id
		WHERE ($1 = '' OR sp.class_id = $1)
		ORDER BY ` + order + `
		LIMIT NULLIF($2::int, 0)
	`
	classID := ""
	if q.Scope == domain.LeaderboardClass {
		classID = q.ClassID
	}

	rows, err := r.pool.Query(ctx, query, classID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		err := rows.Scan(
			&entry.Rank,
			&entry.StudentID,
			&entry.ClassID,
			&entry.Position,
			&entry.XP,
			&entry.Level,
			&entry.Streak,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard: %w", err)
	}
	return entries, nil
}

// ListClassIDs returns the distinct class ids of registered students
func (r *Repository) ListClassIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT class_id FROM student_profiles ORDER BY class_id`)
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning class ids: %w", err)
	}
	return ids, nil
}
