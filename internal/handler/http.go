package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/service"
)

// Handler provides HTTP handlers for the reading board API
type Handler struct {
	catalog      *service.CatalogService
	reading      *service.ReadingService
	board        *service.BoardService
	leaderboards *service.LeaderboardService
	logger       *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	reading *service.ReadingService,
	board *service.BoardService,
	leaderboards *service.LeaderboardService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		catalog:      catalog,
		reading:      reading,
		board:        board,
		leaderboards: leaderboards,
		logger:       logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const idempotencyKeyHeader = "Idempotency-Key"

// rewardPreviewRequest is the body of a reward preview
type rewardPreviewRequest struct {
	BookID    string `json:"book_id"`
	PagesRead int    `json:"pages_read"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/books", h.CreateBook)
		r.Get("/books/{bookID}", h.GetBook)

		r.Post("/achievements", h.CreateAchievement)
		r.Get("/achievements", h.ListAchievements)

		r.Post("/students", h.RegisterStudent)
		r.Route("/students/{studentID}", func(r chi.Router) {
			r.Get("/state", h.GetGameState)
			r.Get("/history", h.History)
			r.Get("/stats", h.Stats)
			r.Get("/achievements", h.StudentAchievements)
			r.Post("/books", h.LogBook)
			r.Post("/reward-preview", h.RewardPreview)
		})

		r.Post("/reading-logs/{logID}/verify", h.VerifyReadingLog)
		r.Get("/classes/{classID}/pending-logs", h.PendingLogs)

		r.Get("/board/{studentID}", h.GetBoard)
		r.Post("/board/{studentID}/validate-move", h.ValidateMove)

		r.Get("/leaderboard", h.GetLeaderboard)

		r.Get("/audit-logs", h.ListAuditLogs)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Idempotency-Key, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error onto a status code.
// Unexpected errors are logged and hidden behind ErrInternalError.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidCriteria),
		errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "operation", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decode reads a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the store is reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CreateBook handles book creation
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookRequest
	if !h.decode(w, r, &req) {
		return
	}

	book, err := h.catalog.CreateBook(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create book", err)
		return
	}
	h.writeCreated(w, book)
}

// GetBook returns a book by ID
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.GetBook(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		h.writeServiceError(w, "get book", err)
		return
	}
	h.writeSuccess(w, book)
}

// CreateAchievement handles achievement definition
func (h *Handler) CreateAchievement(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAchievementRequest
	if !h.decode(w, r, &req) {
		return
	}

	achievement, err := h.catalog.CreateAchievement(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create achievement", err)
		return
	}
	h.writeCreated(w, achievement)
}

// ListAchievements returns every achievement definition
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.catalog.ListAchievements(r.Context())
	if err != nil {
		h.writeServiceError(w, "list achievements", err)
		return
	}
	h.writeSuccess(w, achievements)
}

// RegisterStudent enrols a student
func (h *Handler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := h.catalog.RegisterStudent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register student", err)
		return
	}
	h.writeCreated(w, state)
}

// GetGameState returns a student's game state
func (h *Handler) GetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := h.reading.GetGameState(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeServiceError(w, "get game state", err)
		return
	}
	h.writeSuccess(w, state)
}

// LogBook records a finished book for the student in the path.
// An Idempotency-Key header takes precedence over a completion_id in the body.
func (h *Handler) LogBook(w http.ResponseWriter, r *http.Request) {
	var completion domain.BookCompletion
	if !h.decode(w, r, &completion) {
		return
	}
	completion.StudentID = chi.URLParam(r, "studentID")
	if key := r.Header.Get(idempotencyKeyHeader); key != "" {
		completion.CompletionID = key
	}

	result, err := h.reading.LogBook(r.Context(), completion)
	if err != nil {
		h.writeServiceError(w, "log book", err)
		return
	}
	h.writeCreated(w, result)
}

// History pages through a student's reading logs, newest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(w, r, "offset")
	if !ok {
		return
	}

	page, err := h.reading.History(r.Context(), chi.URLParam(r, "studentID"), limit, offset)
	if err != nil {
		h.writeServiceError(w, "history", err)
		return
	}
	h.writeSuccess(w, page)
}

// Stats returns a student's verified reading statistics
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reading.Stats(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeServiceError(w, "stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// StudentAchievements returns the student's unlocked and locked achievements
func (h *Handler) StudentAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.catalog.StudentAchievements(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeServiceError(w, "student achievements", err)
		return
	}
	h.writeSuccess(w, achievements)
}

// RewardPreview computes a reward without recording anything
func (h *Handler) RewardPreview(w http.ResponseWriter, r *http.Request) {
	var req rewardPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	reward, err := h.reading.RewardPreview(r.Context(), chi.URLParam(r, "studentID"), req.BookID, req.PagesRead)
	if err != nil {
		h.writeServiceError(w, "reward preview", err)
		return
	}
	h.writeSuccess(w, reward)
}

// VerifyReadingLog records a teacher's approval or rejection
func (h *Handler) VerifyReadingLog(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyReadingRequest
	if !h.decode(w, r, &req) {
		return
	}

	log, err := h.reading.VerifyReadingLog(r.Context(), chi.URLParam(r, "logID"), req)
	if err != nil {
		h.writeServiceError(w, "verify reading log", err)
		return
	}
	h.writeSuccess(w, log)
}

// PendingLogs lists a class's reading logs awaiting verification
func (h *Handler) PendingLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}

	entries, err := h.reading.PendingVerifications(r.Context(), chi.URLParam(r, "classID"), limit)
	if err != nil {
		h.writeServiceError(w, "pending logs", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetBoard returns a student's board
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.GetBoard(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeServiceError(w, "get board", err)
		return
	}
	h.writeSuccess(w, board)
}

// ValidateMove checks a claimed move. Rejected moves answer 400 with the result.
func (h *Handler) ValidateMove(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.board.ValidateMovement(r.Context(), chi.URLParam(r, "studentID"), req)
	if err != nil {
		h.writeServiceError(w, "validate move", err)
		return
	}

	if !result.Valid {
		h.writeJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Data:    result,
			Error:   result.Message,
		})
		return
	}
	h.writeSuccess(w, result)
}

// GetLeaderboard returns the global or a class leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}

	scope := domain.LeaderboardScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = domain.LeaderboardGlobal
	}

	entries, err := h.leaderboards.Get(r.Context(), domain.LeaderboardQuery{
		Scope:   scope,
		ClassID: r.URL.Query().Get("class_id"),
		Limit:   limit,
	})
	if err != nil {
		h.writeServiceError(w, "get leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// ListAuditLogs pages through the audit trail, optionally filtered by action and actor
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(w, r, "offset")
	if !ok {
		return
	}

	page, err := h.catalog.AuditLogs(r.Context(), domain.AuditLogFilter{
		Action:  r.URL.Query().Get("action"),
		ActorID: r.URL.Query().Get("actor_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.writeServiceError(w, "list audit logs", err)
		return
	}
	h.writeSuccess(w, page)
}

// queryInt parses an optional integer query parameter; absent means zero
func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		h.writeError(w, http.StatusBadRequest, domain.NewValidationError(name, "must be a non-negative integer"))
		return 0, false
	}
	return v, true
}
