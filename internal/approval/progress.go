package approval

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// progressKey identifies one unit of progress. The same approver appearing
// twice at one order (delegation back-and-forth leaves duplicate rows)
// collapses to a single unit so percentages never double-count.
type progressKey struct {
	approver uuid.UUID
	order    int
}

// Project derives the read-only progress view from a workflow state at a
// given instant. It is pure: the same state and instant always produce the
// same view, and the state is never mutated.
func Project(state *WorkflowState, at time.Time) ProgressView {
	units := make(map[progressKey]ApprovalStep)
	for _, step := range state.Steps {
		key := progressKey{approver: step.ApproverID, order: step.StepOrder}
		existing, seen := units[key]
		if !seen || prefer(step, existing) {
			units[key] = step
		}
	}

	view := ProgressView{TotalCount: len(units)}
	for _, step := range units {
		if step.Status == StepApproved || step.Status == StepSkipped {
			view.CompletedCount++
		}
	}
	if view.TotalCount > 0 {
		view.Percent = float64(view.CompletedCount) / float64(view.TotalCount) * 100
	}

	actionable := make(map[uuid.UUID]bool, len(state.Actionable))
	for _, id := range state.Actionable {
		actionable[id] = true
	}
	actors := make(map[uuid.UUID]bool)
	for _, step := range state.Steps {
		if !actionable[step.ID] {
			continue
		}
		actor := step.ApproverID
		if step.Status == StepDelegated && step.DelegatedToID != nil {
			actor = *step.DelegatedToID
		}
		actors[actor] = true
		if step.DueDate != nil && step.DueDate.Before(at) {
			view.IsOverdue = true
		}
	}
	for actor := range actors {
		view.CurrentActors = append(view.CurrentActors, actor)
	}
	sort.Slice(view.CurrentActors, func(i, j int) bool {
		return view.CurrentActors[i].String() < view.CurrentActors[j].String()
	})

	return view
}

// prefer decides which of two rows sharing a progress key represents the
// unit: a decided row beats an open one, APPROVED above all.
func prefer(candidate, current ApprovalStep) bool {
	return statusRank(candidate.Status) > statusRank(current.Status)
}

func statusRank(s StepStatus) int {
	switch s {
	case StepApproved:
		return 4
	case StepRejected, StepReturned:
		return 3
	case StepSkipped:
		return 2
	case StepDelegated:
		return 1
	default:
		return 0
	}
}
