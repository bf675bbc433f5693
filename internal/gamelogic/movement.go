package gamelogic

import (
	"context"
	"fmt"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// InvalidMovementMessage is returned to clients whose claimed move does not add up
const InvalidMovementMessage = "Invalid movement detected"

// ValidateMovement checks a claimed position against the stored position plus
// the claimed steps. A mismatch is audited and reported, never returned as an
// error, and the game state is not touched either way. Negative steps are
// audited the same way but rejected with a validation error.
func (e *Engine) ValidateMovement(ctx context.Context, studentID string, claimedPosition, claimedSteps int) (*domain.MovementResult, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}

	state, err := e.store.GetGameState(ctx, studentID)
	if err != nil {
		if claimedSteps < 0 {
			e.logger.Warn("negative steps claimed by unknown student", "student_id", studentID, "claimed_steps", claimedSteps)
			return nil, negativeStepsError(claimedSteps)
		}
		return nil, fmt.Errorf("getting game state: %w", err)
	}

	expected := state.BoardPosition + claimedSteps
	if claimedSteps >= 0 && claimedPosition == expected {
		return &domain.MovementResult{Valid: true, NewPosition: &expected}, nil
	}

	e.recordSuspiciousMovement(ctx, state, claimedPosition, claimedSteps, expected)

	if claimedSteps < 0 {
		return nil, negativeStepsError(claimedSteps)
	}
	return &domain.MovementResult{Valid: false, Message: InvalidMovementMessage}, nil
}

func negativeStepsError(claimedSteps int) error {
	return domain.NewValidationError("claimed_steps", "must not be negative, got %d", claimedSteps)
}

// recordSuspiciousMovement logs and audits a rejected move. Audit failures are logged only.
func (e *Engine) recordSuspiciousMovement(ctx context.Context, state *domain.GameState, claimedPosition, claimedSteps, expected int) {
	e.logger.Warn("suspicious movement detected",
		"student_id", state.StudentID,
		"claimed_position", claimedPosition,
		"expected_position", expected,
		"claimed_steps", claimedSteps,
		"current_position", state.BoardPosition,
	)

	entry := domain.AuditLog{
		ID:      e.newID(),
		ActorID: state.StudentID,
		Action:  domain.AuditSuspiciousMovement,
		Target:  "GameState:" + state.ID,
		Metadata: map[string]any{
			"claimedPosition":  claimedPosition,
			"expectedPosition": expected,
			"claimedSteps":     claimedSteps,
			"currentPosition":  state.BoardPosition,
		},
		CreatedAt: e.now(),
	}
	if err := e.store.AppendAuditLog(ctx, entry); err != nil {
		e.logger.Error("failed to record suspicious movement", "student_id", state.StudentID, "error", err)
	}
}
