package approval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func startedState(t *testing.T, engine *Engine, line ApprovalLine, steps []ApprovalStep) *WorkflowState {
	t.Helper()
	state, err := engine.Start(context.Background(), line, steps)
	assert.NoError(t, err)
	return state
}

func TestProjectIsPureAndIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	line := testLine()
	steps := []ApprovalStep{testStep(line, 1), testStep(line, 2)}
	state := startedState(t, engine, line, steps)
	at := time.Now()

	first := Project(state, at)
	second := Project(state, at)

	assert.Equal(t, first, second)
	// Projection never mutates the state it reads.
	assert.Equal(t, StepPending, state.Steps[0].Status)
	assert.Equal(t, StepPending, state.Steps[1].Status)
}

func TestProjectCountsHalfwayProgress(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	line := testLine()
	first := testStep(line, 1)
	second := testStep(line, 2)
	startedState(t, engine, line, []ApprovalStep{first, second})

	state, err := engine.Act(context.Background(), approveReq(first, first.ApproverID))
	assert.NoError(t, err)

	view := Project(state, time.Now())
	assert.Equal(t, 2, view.TotalCount)
	assert.Equal(t, 1, view.CompletedCount)
	assert.Equal(t, float64(50), view.Percent)
	assert.Equal(t, []uuid.UUID{second.ApproverID}, view.CurrentActors)
}

func TestProjectCollapsesDuplicateApproverOrderPairs(t *testing.T) {
	// Two rows for the same approver at the same order count as one unit,
	// and the APPROVED row wins over the open one.
	line := testLine()
	approver := uuid.New()
	approved := testStep(line, 1, parallel, func(s *ApprovalStep) { s.ApproverID = approver })
	approved.Status = StepApproved
	duplicate := testStep(line, 1, parallel, func(s *ApprovalStep) { s.ApproverID = approver })
	duplicate.Status = StepCancelled
	other := testStep(line, 2)
	other.Status = StepPending

	state := &WorkflowState{
		LineID: line.ID,
		Status: WorkflowInProgress,
		Steps:  []ApprovalStep{approved, duplicate, other},
	}

	view := Project(state, time.Now())
	assert.Equal(t, 2, view.TotalCount)
	assert.Equal(t, 1, view.CompletedCount)
	assert.Equal(t, float64(50), view.Percent)
}

func TestProjectCountsSkippedAsCompleted(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	line := testLine(func(l *ApprovalLine) { l.IsConditional = true })
	oneOf := func(s *ApprovalStep) { s.OneOfGroup = true }
	a := testStep(line, 1, parallel, oneOf)
	b := testStep(line, 1, parallel, oneOf)
	startedState(t, engine, line, []ApprovalStep{a, b})

	state, err := engine.Act(context.Background(), approveReq(a, a.ApproverID))
	assert.NoError(t, err)

	view := Project(state, time.Now())
	assert.Equal(t, 2, view.TotalCount)
	assert.Equal(t, 2, view.CompletedCount)
	assert.Equal(t, float64(100), view.Percent)
}

func TestProjectReportsDelegateAsCurrentActor(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	line := testLine()
	step := testStep(line, 1)
	target := uuid.New()
	startedState(t, engine, line, []ApprovalStep{step})

	state, err := engine.Act(context.Background(), ActionRequest{
		StepID:     step.ID,
		ActorID:    step.ApproverID,
		Action:     ActionDelegate,
		DelegateTo: &target,
		At:         time.Now(),
	})
	assert.NoError(t, err)

	view := Project(state, time.Now())
	assert.Equal(t, []uuid.UUID{target}, view.CurrentActors)
}

func TestProjectFlagsOverdueActionableStep(t *testing.T) {
	engine, _, _ := newTestEngine(nil)
	line := testLine()
	due := time.Now().Add(-time.Hour)
	step := testStep(line, 1, func(s *ApprovalStep) { s.DueDate = &due })
	state := startedState(t, engine, line, []ApprovalStep{step})

	assert.True(t, Project(state, time.Now()).IsOverdue)
	// Before the due date the same state projects clean.
	assert.False(t, Project(state, due.Add(-time.Minute)).IsOverdue)
}

func TestProjectEmptyStateHasZeroPercent(t *testing.T) {
	view := Project(&WorkflowState{Status: WorkflowNotStarted}, time.Now())
	assert.Equal(t, 0, view.TotalCount)
	assert.Equal(t, float64(0), view.Percent)
	assert.Empty(t, view.CurrentActors)
}
