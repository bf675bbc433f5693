package gamelogic

import (
	"context"
	"fmt"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// Board shape
const (
	BaseBoardLength        = 50
	BoardLengthPerGrade    = 10
	MaxBonusTileFrequency  = 10
	MinBonusTileFrequency  = 5
	StreakPerBonusStep     = 5
	LowDiversityGenres     = 3
	LowDiversityGateEvery  = 7
	HighDiversityGateEvery = 15
	CheckpointEvery        = 10
	ChallengeProbability   = 0.1
)

// BoardLength is 50 tiles plus 10 per grade
func BoardLength(gradeLevel int) int {
	return BaseBoardLength + gradeLevel*BoardLengthPerGrade
}

// BonusTileFrequency places bonus tiles more often for students with short streaks
func BonusTileFrequency(streak int) int {
	return max(MinBonusTileFrequency, MaxBonusTileFrequency-streak/StreakPerBonusStep)
}

// GenreGateFrequency places genre gates more often for students reading few genres
func GenreGateFrequency(distinctGenres int) int {
	if distinctGenres < LowDiversityGenres {
		return LowDiversityGateEvery
	}
	return HighDiversityGateEvery
}

// ThemeForGrade picks the board theme for a grade level
func ThemeForGrade(gradeLevel int) domain.Theme {
	switch {
	case gradeLevel <= 3:
		return domain.ThemeForest
	case gradeLevel <= 6:
		return domain.ThemeOcean
	case gradeLevel <= 9:
		return domain.ThemeSpace
	default:
		return domain.ThemeMountain
	}
}

// BuildTiles lays out a board. Only challenge tiles draw from random;
// every other tile type is a pure function of the inputs.
func BuildTiles(gradeLevel, streak, distinctGenres int, random RandomSource) []domain.Tile {
	length := BoardLength(gradeLevel)
	bonusEvery := BonusTileFrequency(streak)
	gateEvery := GenreGateFrequency(distinctGenres)
	theme := ThemeForGrade(gradeLevel)

	tiles := make([]domain.Tile, length)
	for i := range tiles {
		var tileType domain.TileType
		switch {
		case i == 0:
			tileType = domain.TileStart
		case i == length-1:
			tileType = domain.TileDiploma
		case i%bonusEvery == 0:
			tileType = domain.TileBonus
		case i%gateEvery == 0:
			tileType = domain.TileGenreGate
		case i%CheckpointEvery == 0:
			tileType = domain.TileCheckpoint
		case random.Float64() < ChallengeProbability:
			tileType = domain.TileChallenge
		default:
			tileType = domain.TileNormal
		}
		tiles[i] = domain.Tile{Position: i, Type: tileType, Theme: theme}
	}
	return tiles
}

// GenerateBoardConfig derives the student's personalised board from their
// grade, streak and verified reading history
func (e *Engine) GenerateBoardConfig(ctx context.Context, studentID string) (*domain.BoardConfig, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}

	profile, err := e.store.GetStudentProfile(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("getting student profile: %w", err)
	}
	state, err := e.store.GetGameState(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("getting game state: %w", err)
	}

	history, err := e.store.ListReadingHistory(ctx, domain.ReadingLogFilter{
		StudentID:    studentID,
		VerifiedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing verified history: %w", err)
	}

	avgDifficulty, ok := AverageDifficulty(history)
	if !ok {
		avgDifficulty = defaultAvgDifficulty
	}
	genres := DistinctGenres(history)

	return &domain.BoardConfig{
		Version:   FormulaVersion,
		StudentID: studentID,
		Tiles:     BuildTiles(profile.GradeLevel, state.Streak, genres, e.random),
		Metadata: domain.BoardMetadata{
			BoardLength:    BoardLength(profile.GradeLevel),
			StudentGrade:   profile.GradeLevel,
			AvgDifficulty:  avgDifficulty,
			GenreDiversity: genres,
			Streak:         state.Streak,
		},
	}, nil
}
