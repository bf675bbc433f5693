package gamelogic_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
	"github.com/lukudiplomi/reading-board/internal/memory"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type constRandom float64

func (c constRandom) Float64() float64 { return float64(c) }

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	engine *gamelogic.Engine
	logSeq int
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...gamelogic.Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	opts = append([]gamelogic.Option{
		gamelogic.WithClock(func() time.Time { return testNow }),
		gamelogic.WithRandom(constRandom(0.99)),
	}, opts...)
	return &fixture{
		ctx:    context.Background(),
		store:  store,
		engine: gamelogic.NewEngine(store, discardLogger(), opts...),
	}
}

func (f *fixture) addBook(t *testing.T, id, genre string, difficulty float64, ageMin int) domain.Book {
	t.Helper()
	book := domain.Book{
		ID:                id,
		Title:             "Book " + id,
		Pages:             300,
		Genre:             genre,
		DifficultyScore:   difficulty,
		RecommendedAgeMin: ageMin,
		RecommendedAgeMax: ageMin + 3,
	}
	require.NoError(t, f.store.CreateBook(f.ctx, book))
	return book
}

func (f *fixture) addStudent(t *testing.T, id string, grade int) {
	t.Helper()
	profile := domain.StudentProfile{StudentID: id, ClassID: "3A", GradeLevel: grade}
	require.NoError(t, f.store.RegisterStudent(f.ctx, profile, domain.NewGameState("gs-"+id, id)))
}

func (f *fixture) setState(t *testing.T, studentID string, mutate func(*domain.GameState)) {
	t.Helper()
	state, err := f.store.GetGameState(f.ctx, studentID)
	require.NoError(t, err)
	mutate(state)
	f.store.PutGameState(*state)
}

func (f *fixture) addLog(t *testing.T, studentID, bookID string, pages int, age time.Duration, verified bool) domain.ReadingLog {
	t.Helper()
	f.logSeq++
	log := domain.ReadingLog{
		ID:                fmt.Sprintf("log-%d", f.logSeq),
		StudentID:         studentID,
		BookID:            bookID,
		PagesRead:         pages,
		VerifiedByTeacher: verified,
		CreatedAt:         testNow.Add(-age),
	}
	require.NoError(t, f.store.CreateReadingLog(f.ctx, log))
	return log
}

func (f *fixture) addAchievement(t *testing.T, id string, criteria string) {
	t.Helper()
	c, err := domain.ParseCriteria([]byte(criteria))
	require.NoError(t, err)
	require.NoError(t, f.store.CreateAchievement(f.ctx, domain.Achievement{ID: id, Name: id, Criteria: c}))
}
