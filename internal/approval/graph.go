package approval

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Stage is the set of steps sharing one execution order. Stages advance
// together; OneOf stages are satisfied by the first approval among their
// alternatives instead of requiring every required step.
type Stage struct {
	Order   int
	StepIDs []uuid.UUID
	OneOf   bool
}

// Graph is the compiled, immutable execution topology of one approval line.
// Any change to the step set requires recompilation.
type Graph struct {
	LineID uuid.UUID
	Stages []Stage

	stageByStep map[uuid.UUID]int
}

// Compile groups a flat step list into ordered stages and validates the
// topology. Validation failures are fatal and returned as *StructuralError,
// never silently fixed. Sparse step orders are permitted; the stage sequence
// is monotonic regardless of gaps.
func Compile(line ApprovalLine, steps []ApprovalStep) (*Graph, error) {
	if len(steps) == 0 {
		if line.RequiresApproval {
			return nil, &StructuralError{Reason: fmt.Sprintf("line %s requires approval but has no steps", line.ID)}
		}
		return nil, &StructuralError{Reason: fmt.Sprintf("line %s has no steps", line.ID)}
	}

	byOrder := make(map[int][]ApprovalStep)
	for _, step := range steps {
		if step.StepOrder < 0 {
			return nil, &StructuralError{Reason: fmt.Sprintf("step %s has negative order %d", step.ID, step.StepOrder)}
		}
		if step.ApproverID == uuid.Nil {
			return nil, &StructuralError{Reason: fmt.Sprintf("step %s has no approver", step.ID)}
		}
		if step.LineID != line.ID {
			return nil, &StructuralError{Reason: fmt.Sprintf("step %s belongs to line %s, not %s", step.ID, step.LineID, line.ID)}
		}
		byOrder[step.StepOrder] = append(byOrder[step.StepOrder], step)
	}

	orders := make([]int, 0, len(byOrder))
	for order := range byOrder {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	graph := &Graph{
		LineID:      line.ID,
		Stages:      make([]Stage, 0, len(orders)),
		stageByStep: make(map[uuid.UUID]int, len(steps)),
	}

	for idx, order := range orders {
		group := byOrder[order]
		if len(group) > 1 {
			for _, step := range group {
				if !step.IsParallel {
					return nil, &StructuralError{Reason: fmt.Sprintf(
						"order %d holds %d steps but step %s is not parallel", order, len(group), step.ID)}
				}
			}
		}

		oneOf, err := conditionalGroup(line, group)
		if err != nil {
			return nil, err
		}

		stage := Stage{Order: order, OneOf: oneOf, StepIDs: make([]uuid.UUID, 0, len(group))}
		for _, step := range group {
			stage.StepIDs = append(stage.StepIDs, step.ID)
			graph.stageByStep[step.ID] = idx
		}
		graph.Stages = append(graph.Stages, stage)
	}

	return graph, nil
}

// conditionalGroup decides whether a stage is one-of-N. The annotation is
// explicit: every step in the stage must carry OneOfGroup and the line must be
// conditional. Partial marking is a configuration error, not a guess.
func conditionalGroup(line ApprovalLine, group []ApprovalStep) (bool, error) {
	marked := 0
	for _, step := range group {
		if step.OneOfGroup {
			marked++
		}
	}
	if marked == 0 {
		return false, nil
	}
	if marked != len(group) {
		return false, &StructuralError{Reason: fmt.Sprintf(
			"order %d marks %d of %d steps as one-of group", group[0].StepOrder, marked, len(group))}
	}
	if !line.IsConditional {
		return false, &StructuralError{Reason: fmt.Sprintf(
			"order %d uses a one-of group but line %s is not conditional", group[0].StepOrder, line.ID)}
	}
	return true, nil
}

// StageIndex returns the stage position of a step, or -1 if the step is not
// part of this graph.
func (g *Graph) StageIndex(stepID uuid.UUID) int {
	idx, ok := g.stageByStep[stepID]
	if !ok {
		return -1
	}
	return idx
}

// StageCount returns the number of stages in the graph.
func (g *Graph) StageCount() int { return len(g.Stages) }

// Satisfied reports whether a stage's completion rule holds over the given
// step statuses: first approval for one-of-N stages, every required step
// approved otherwise. Non-required steps never block advancement.
func (g *Graph) Satisfied(stageIdx int, steps map[uuid.UUID]*ApprovalStep) bool {
	if stageIdx < 0 || stageIdx >= len(g.Stages) {
		return false
	}
	stage := g.Stages[stageIdx]

	if stage.OneOf {
		for _, id := range stage.StepIDs {
			if step, ok := steps[id]; ok && step.Status == StepApproved {
				return true
			}
		}
		return false
	}

	for _, id := range stage.StepIDs {
		step, ok := steps[id]
		if !ok {
			return false
		}
		if !step.IsRequired {
			continue
		}
		if step.Status != StepApproved {
			return false
		}
	}
	return true
}
