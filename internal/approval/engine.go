package approval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docflow/approval-engine/pkg/workflows"
)

// Notifier delivers workflow events to the outside world. Delivery is
// fire-and-forget; a failed notification never rolls back a transition.
type Notifier interface {
	Notify(event WorkflowEvent)
}

// DefaultLockWait bounds how long an Act or Resubmit call waits for its
// workflow's lock before giving up with a ConcurrencyError.
const DefaultLockWait = 5 * time.Second

// Engine is the authoritative state machine for approval workflows. All step
// mutation goes through it; reads go through State and Project.
type Engine struct {
	store    DocumentStore
	resolver *DelegationResolver
	notifier Notifier
	sm       *workflows.StateMachine
	logger   *zap.Logger
	lockWait time.Duration

	mu        chan struct{} // guards the maps below
	instances map[uuid.UUID]*instance
	byStep    map[uuid.UUID]uuid.UUID
	byDoc     map[uuid.UUID]uuid.UUID
}

// instance is the in-memory working state of one line's workflow. The gate
// channel serializes Act/Resubmit per line; cross-line work never contends.
type instance struct {
	gate   chan struct{}
	line   ApprovalLine
	graph  *Graph
	steps  map[uuid.UUID]*ApprovalStep
	order  []uuid.UUID
	status WorkflowStatus
	stage  int
	events []WorkflowEvent
	at     time.Time
}

func NewEngine(store DocumentStore, directory UserDirectory, notifier Notifier, logger *zap.Logger) *Engine {
	e := &Engine{
		store:     store,
		resolver:  NewDelegationResolver(directory),
		notifier:  notifier,
		sm:        workflows.NewStateMachine(),
		logger:    logger,
		lockWait:  DefaultLockWait,
		mu:        make(chan struct{}, 1),
		instances: make(map[uuid.UUID]*instance),
		byStep:    make(map[uuid.UUID]uuid.UUID),
		byDoc:     make(map[uuid.UUID]uuid.UUID),
	}
	return e
}

// SetLockWait overrides the per-line lock acquisition bound. Non-positive
// values keep the current bound.
func (e *Engine) SetLockWait(d time.Duration) {
	if d > 0 {
		e.lockWait = d
	}
}

// Start compiles the line's step graph, persists the line and steps
// atomically, and opens the workflow in IN_PROGRESS with the first stage
// actionable. Later stages stay out of the actionable set until reached.
func (e *Engine) Start(ctx context.Context, line ApprovalLine, steps []ApprovalStep) (*WorkflowState, error) {
	graph, err := Compile(line, steps)
	if err != nil {
		return nil, err
	}

	active, err := e.store.ActiveLine(ctx, line.DocumentID)
	if err != nil {
		return nil, &PersistenceError{Op: "load active line", Err: err}
	}
	if active != nil && active.ID != line.ID {
		return nil, &StructuralError{Reason: fmt.Sprintf(
			"document %s already has active line %s", line.DocumentID, active.ID)}
	}

	now := time.Now()
	line.IsActive = true
	line.CreatedAt = now
	line.UpdatedAt = now

	inst := &instance{
		gate:   make(chan struct{}, 1),
		line:   line,
		graph:  graph,
		steps:  make(map[uuid.UUID]*ApprovalStep, len(steps)),
		order:  make([]uuid.UUID, 0, len(steps)),
		status: WorkflowInProgress,
		stage:  0,
		at:     now,
	}

	sorted := make([]ApprovalStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })
	for i := range sorted {
		step := sorted[i]
		step.Status = StepPending
		inst.steps[step.ID] = &step
		inst.order = append(inst.order, step.ID)
		sorted[i] = step
	}

	if err := e.store.SaveLine(ctx, line, sorted); err != nil {
		return nil, &PersistenceError{Op: "save line", Err: err}
	}

	started := WorkflowEvent{
		ID:         uuid.New(),
		LineID:     line.ID,
		DocumentID: line.DocumentID,
		Kind:       EventWorkflowStarted,
		OccurredAt: now,
	}
	if err := e.store.SaveWorkflowEvent(ctx, started); err != nil {
		return nil, &PersistenceError{Op: "save event", Err: err}
	}
	inst.events = append(inst.events, started)

	e.lock()
	e.instances[line.ID] = inst
	e.byDoc[line.DocumentID] = line.ID
	for id := range inst.steps {
		e.byStep[id] = line.ID
	}
	e.unlock()

	e.logger.Info("workflow started",
		zap.String("line_id", line.ID.String()),
		zap.String("document_id", line.DocumentID.String()),
		zap.Int("stages", graph.StageCount()))

	e.notify(started)
	return inst.snapshot(), nil
}

// Act applies one actor decision to a pending step, re-evaluates stage
// satisfaction, and advances or terminates the workflow. The whole
// read-modify-write is serialized per line; a timed-out lock wait returns
// *ConcurrencyError without touching state.
func (e *Engine) Act(ctx context.Context, req ActionRequest) (*WorkflowState, error) {
	inst, err := e.instanceForStep(ctx, req.StepID)
	if err != nil {
		return nil, err
	}

	if err := e.acquire(inst); err != nil {
		return nil, err
	}
	defer e.release(inst)

	if inst.status != WorkflowInProgress {
		step, ok := inst.steps[req.StepID]
		if !ok {
			return nil, &NotFoundError{Kind: "step", ID: req.StepID.String()}
		}
		return nil, &NotActionableError{StepID: req.StepID.String(), Status: step.Status}
	}

	step, ok := inst.steps[req.StepID]
	if !ok {
		return nil, &NotFoundError{Kind: "step", ID: req.StepID.String()}
	}
	if inst.graph.StageIndex(step.ID) != inst.stage {
		return nil, &NotActionableError{StepID: step.ID.String(), Status: step.Status}
	}
	if step.Status != StepPending && step.Status != StepDelegated {
		return nil, &NotActionableError{StepID: step.ID.String(), Status: step.Status}
	}

	if err := e.authorize(ctx, step, req); err != nil {
		return nil, err
	}

	out, err := e.apply(inst, step, req)
	if err != nil {
		return nil, err
	}
	if out.status != inst.status && !e.sm.CanTransition(string(inst.status), string(out.status)) {
		return nil, &StructuralError{Reason: fmt.Sprintf(
			"workflow %s cannot move from %s to %s", inst.line.ID, inst.status, out.status)}
	}

	// Persist every computed transition before committing any of it in
	// memory. A store failure discards the whole mutation.
	for _, m := range out.mutated {
		if err := e.store.SaveStepTransition(ctx, *m); err != nil {
			return nil, &PersistenceError{Op: "save step transition", Err: err}
		}
	}
	for _, ev := range out.events {
		if err := e.store.SaveWorkflowEvent(ctx, ev); err != nil {
			return nil, &PersistenceError{Op: "save event", Err: err}
		}
	}

	// A terminal outcome archives the line durably, in the same transition.
	// RETURNED keeps the line active; Resubmit archives it later.
	if e.sm.IsTerminal(string(out.status)) {
		line := inst.line
		line.IsActive = false
		line.UpdatedAt = req.At
		if err := e.store.SaveLine(ctx, line, nil); err != nil {
			return nil, &PersistenceError{Op: "archive line", Err: err}
		}
	}

	e.commit(inst, out, req.At)

	e.logger.Info("workflow action applied",
		zap.String("line_id", inst.line.ID.String()),
		zap.String("step_id", req.StepID.String()),
		zap.String("action", string(req.Action)),
		zap.String("status", string(inst.status)))

	for _, ev := range out.events {
		e.notify(ev)
	}
	return inst.snapshot(), nil
}

// Resubmit opens a fresh line for a document whose current workflow was
// RETURNED. The old line is archived, never mutated back to life.
func (e *Engine) Resubmit(ctx context.Context, documentID uuid.UUID, line ApprovalLine, steps []ApprovalStep) (*WorkflowState, error) {
	prev, err := e.instanceForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := e.acquire(prev); err != nil {
		return nil, err
	}

	if !e.sm.CanTransition(string(prev.status), string(WorkflowInProgress)) {
		e.release(prev)
		return nil, &NotActionableError{StepID: prev.line.ID.String(), Status: StepStatus(prev.status)}
	}

	prev.line.IsActive = false
	prev.line.UpdatedAt = time.Now()
	if err := e.store.SaveLine(ctx, prev.line, nil); err != nil {
		e.release(prev)
		return nil, &PersistenceError{Op: "archive line", Err: err}
	}
	e.release(prev)

	line.DocumentID = documentID
	return e.Start(ctx, line, steps)
}

// State returns the current workflow state for a line, rehydrating from the
// store when the line is not resident.
func (e *Engine) State(ctx context.Context, lineID uuid.UUID) (*WorkflowState, error) {
	inst, err := e.instanceForLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if err := e.acquire(inst); err != nil {
		return nil, err
	}
	defer e.release(inst)
	return inst.snapshot(), nil
}

// Resolve exposes delegation resolution on the engine's public surface.
func (e *Engine) Resolve(ctx context.Context, userID uuid.UUID, at time.Time) (uuid.UUID, []uuid.UUID, error) {
	return e.resolver.Resolve(ctx, userID, at)
}

// authorize checks the acting user against the nominal approver, the
// currently-resolved delegate, and any explicit delegation already recorded
// on the step. Resolution errors pass through unchanged.
func (e *Engine) authorize(ctx context.Context, step *ApprovalStep, req ActionRequest) error {
	if req.ActorID == step.ApproverID {
		return nil
	}
	if step.Status == StepDelegated && step.DelegatedToID != nil && req.ActorID == *step.DelegatedToID {
		return nil
	}
	effective, _, err := e.resolver.Resolve(ctx, step.ApproverID, req.At)
	if err != nil {
		return err
	}
	if req.ActorID == effective {
		return nil
	}
	return &NotAuthorizedError{StepID: step.ID.String(), ActorID: req.ActorID.String()}
}

// outcome is one action's fully-computed transition: step clones to persist,
// audit events, and the workflow-level status/stage that takes effect once
// persistence succeeds.
type outcome struct {
	mutated []*ApprovalStep
	events  []WorkflowEvent
	status  WorkflowStatus
	stage   int
}

// apply computes the full set of step mutations and audit events for one
// action without touching the instance. Mutations are clones; commit swaps
// them in only after persistence succeeds.
func (e *Engine) apply(inst *instance, step *ApprovalStep, req ActionRequest) (*outcome, error) {
	clone := *step
	at := req.At
	out := &outcome{status: inst.status, stage: inst.stage}

	event := func(kind EventKind, stepID, actor uuid.UUID, comment string) {
		out.events = append(out.events, WorkflowEvent{
			ID:         uuid.New(),
			LineID:     inst.line.ID,
			DocumentID: inst.line.DocumentID,
			StepID:     stepID,
			Kind:       kind,
			ActorID:    actor,
			Comment:    comment,
			OccurredAt: at,
		})
	}

	// An action taken by anyone but the nominal approver passes the step
	// through DELEGATED for the audit trail before the decision lands.
	if req.Action != ActionDelegate && req.ActorID != step.ApproverID && clone.DelegatedToID == nil {
		actor := req.ActorID
		clone.DelegatedToID = &actor
		event(EventStepDelegated, clone.ID, req.ActorID, "")
	}

	switch req.Action {
	case ActionDelegate:
		if req.DelegateTo == nil {
			return nil, &StructuralError{Reason: "DELEGATE requires a delegate_to target"}
		}
		clone.Status = StepDelegated
		clone.DelegatedToID = req.DelegateTo
		clone.Comments = req.Comment
		out.mutated = append(out.mutated, &clone)
		event(EventStepDelegated, clone.ID, req.ActorID, req.Comment)
		return out, nil

	case ActionApprove:
		clone.Status = StepApproved
		clone.ApprovedAt = &at
		clone.Comments = req.Comment
		out.mutated = append(out.mutated, &clone)
		event(EventStepApproved, clone.ID, req.ActorID, req.Comment)

	case ActionReject:
		clone.Status = StepRejected
		clone.RejectedAt = &at
		clone.Comments = req.Comment
		out.mutated = append(out.mutated, &clone)
		event(EventStepRejected, clone.ID, req.ActorID, req.Comment)
		out.mutated = append(out.mutated, e.cancelRemaining(inst, &clone, &out.events, at)...)
		event(EventWorkflowRejected, uuid.Nil, req.ActorID, "")
		out.status = WorkflowRejected
		return out, nil

	case ActionReturn:
		clone.Status = StepReturned
		clone.Comments = req.Comment
		out.mutated = append(out.mutated, &clone)
		event(EventStepReturned, clone.ID, req.ActorID, req.Comment)
		out.mutated = append(out.mutated, e.cancelRemaining(inst, &clone, &out.events, at)...)
		event(EventWorkflowReturned, uuid.Nil, req.ActorID, "")
		out.status = WorkflowReturned
		return out, nil

	default:
		return nil, &NotActionableError{StepID: step.ID.String(), Status: step.Status}
	}

	// Approval path: re-evaluate stage satisfaction and advance lazily.
	view := inst.overlay(out.mutated)
	stage := inst.stage
	for stage < inst.graph.StageCount() && inst.graph.Satisfied(stage, view) {
		for _, id := range inst.graph.Stages[stage].StepIDs {
			s := view[id]
			if s.Status == StepPending || s.Status == StepDelegated {
				skipped := *s
				skipped.Status = StepSkipped
				out.mutated = append(out.mutated, &skipped)
				view[id] = &skipped
				event(EventStepSkipped, skipped.ID, req.ActorID, "")
			}
		}
		stage++
	}
	out.stage = stage

	if stage >= inst.graph.StageCount() {
		event(EventWorkflowApproved, uuid.Nil, req.ActorID, "")
		out.status = WorkflowApproved
	}
	return out, nil
}

// cancelRemaining marks every still-open step of the current and later stages
// CANCELLED. Reject and return short-circuit; they do not wait for siblings.
func (e *Engine) cancelRemaining(inst *instance, acted *ApprovalStep, events *[]WorkflowEvent, at time.Time) []*ApprovalStep {
	var cancelled []*ApprovalStep
	for _, id := range inst.order {
		if id == acted.ID {
			continue
		}
		s := inst.steps[id]
		if s.Status != StepPending && s.Status != StepDelegated {
			continue
		}
		c := *s
		c.Status = StepCancelled
		cancelled = append(cancelled, &c)
		*events = append(*events, WorkflowEvent{
			ID:         uuid.New(),
			LineID:     inst.line.ID,
			DocumentID: inst.line.DocumentID,
			StepID:     c.ID,
			Kind:       EventStepCancelled,
			OccurredAt: at,
		})
	}
	return cancelled
}

// commit swaps persisted mutations into the instance.
func (e *Engine) commit(inst *instance, out *outcome, at time.Time) {
	for _, m := range out.mutated {
		inst.steps[m.ID] = m
	}
	inst.events = append(inst.events, out.events...)
	inst.status = out.status
	if out.stage > inst.stage {
		inst.stage = out.stage
	}
	if e.sm.IsTerminal(string(out.status)) {
		inst.line.IsActive = false
	}
	inst.at = at
}

func (e *Engine) notify(event WorkflowEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(event)
}

func (e *Engine) lock()   { e.mu <- struct{}{} }
func (e *Engine) unlock() { <-e.mu }

// acquire takes the per-line gate, waiting at most lockWait.
func (e *Engine) acquire(inst *instance) error {
	timer := time.NewTimer(e.lockWait)
	defer timer.Stop()
	select {
	case inst.gate <- struct{}{}:
		return nil
	case <-timer.C:
		return &ConcurrencyError{LineID: inst.line.ID.String()}
	}
}

func (e *Engine) release(inst *instance) { <-inst.gate }

func (e *Engine) instanceForStep(ctx context.Context, stepID uuid.UUID) (*instance, error) {
	e.lock()
	lineID, ok := e.byStep[stepID]
	var inst *instance
	if ok {
		inst = e.instances[lineID]
	}
	e.unlock()
	if inst != nil {
		return inst, nil
	}

	// Not resident: the step may still exist from before a restart.
	owner, err := e.store.LineIDForStep(ctx, stepID)
	if err != nil {
		return nil, &PersistenceError{Op: "locate step", Err: err}
	}
	if owner == uuid.Nil {
		return nil, &NotFoundError{Kind: "step", ID: stepID.String()}
	}
	return e.rehydrate(ctx, owner)
}

func (e *Engine) instanceForDocument(ctx context.Context, documentID uuid.UUID) (*instance, error) {
	e.lock()
	lineID, ok := e.byDoc[documentID]
	var inst *instance
	if ok {
		inst = e.instances[lineID]
	}
	e.unlock()
	if inst != nil {
		return inst, nil
	}

	line, err := e.store.ActiveLine(ctx, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: "load active line", Err: err}
	}
	if line == nil {
		return nil, &NotFoundError{Kind: "document", ID: documentID.String()}
	}
	return e.rehydrate(ctx, line.ID)
}

func (e *Engine) instanceForLine(ctx context.Context, lineID uuid.UUID) (*instance, error) {
	e.lock()
	inst := e.instances[lineID]
	e.unlock()
	if inst != nil {
		return inst, nil
	}
	return e.rehydrate(ctx, lineID)
}

// rehydrate rebuilds in-memory state from the store after a restart: load the
// line, recompile the graph, and derive status and current stage from the
// persisted step statuses.
func (e *Engine) rehydrate(ctx context.Context, lineID uuid.UUID) (*instance, error) {
	line, steps, err := e.store.LoadLine(ctx, lineID)
	if err != nil {
		return nil, &PersistenceError{Op: "load line", Err: err}
	}
	if line.ID == uuid.Nil {
		return nil, &NotFoundError{Kind: "line", ID: lineID.String()}
	}

	graph, err := Compile(line, steps)
	if err != nil {
		return nil, err
	}

	inst := &instance{
		gate:  make(chan struct{}, 1),
		line:  line,
		graph: graph,
		steps: make(map[uuid.UUID]*ApprovalStep, len(steps)),
		order: make([]uuid.UUID, 0, len(steps)),
		at:    line.UpdatedAt,
	}
	sorted := make([]ApprovalStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })
	for i := range sorted {
		step := sorted[i]
		inst.steps[step.ID] = &step
		inst.order = append(inst.order, step.ID)
	}
	inst.status, inst.stage = deriveStatus(graph, inst.steps)

	e.lock()
	if existing := e.instances[lineID]; existing != nil {
		e.unlock()
		return existing, nil
	}
	e.instances[lineID] = inst
	e.byDoc[line.DocumentID] = lineID
	for id := range inst.steps {
		e.byStep[id] = lineID
	}
	e.unlock()
	return inst, nil
}

// deriveStatus recomputes workflow status and current stage from step
// statuses alone, so a restarted engine agrees with what it persisted.
func deriveStatus(graph *Graph, steps map[uuid.UUID]*ApprovalStep) (WorkflowStatus, int) {
	for _, s := range steps {
		if s.Status == StepRejected {
			return WorkflowRejected, graph.StageIndex(s.ID)
		}
		if s.Status == StepReturned {
			return WorkflowReturned, graph.StageIndex(s.ID)
		}
	}
	for stage := 0; stage < graph.StageCount(); stage++ {
		if !graph.Satisfied(stage, steps) {
			return WorkflowInProgress, stage
		}
	}
	return WorkflowApproved, graph.StageCount()
}

// overlay returns a status view of the instance's steps with pending
// mutations applied on top.
func (inst *instance) overlay(mutated []*ApprovalStep) map[uuid.UUID]*ApprovalStep {
	view := make(map[uuid.UUID]*ApprovalStep, len(inst.steps))
	for id, s := range inst.steps {
		view[id] = s
	}
	for _, m := range mutated {
		view[m.ID] = m
	}
	return view
}

func (inst *instance) snapshot() *WorkflowState {
	state := &WorkflowState{
		LineID:       inst.line.ID,
		DocumentID:   inst.line.DocumentID,
		Status:       inst.status,
		CurrentStage: inst.stage,
		Steps:        make([]ApprovalStep, 0, len(inst.order)),
		Events:       make([]WorkflowEvent, len(inst.events)),
		UpdatedAt:    inst.at,
	}
	copy(state.Events, inst.events)
	for _, id := range inst.order {
		state.Steps = append(state.Steps, *inst.steps[id])
	}
	if inst.status == WorkflowInProgress && inst.stage < inst.graph.StageCount() {
		for _, id := range inst.graph.Stages[inst.stage].StepIDs {
			s := inst.steps[id]
			if s.Status == StepPending || s.Status == StepDelegated {
				state.Actionable = append(state.Actionable, id)
			}
		}
	}
	return state
}
