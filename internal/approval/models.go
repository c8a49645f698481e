package approval

import (
	"time"

	"github.com/google/uuid"
)

type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepApproved  StepStatus = "APPROVED"
	StepRejected  StepStatus = "REJECTED"
	StepDelegated StepStatus = "DELEGATED"
	StepReturned  StepStatus = "RETURNED"
	StepCancelled StepStatus = "CANCELLED"
	StepSkipped   StepStatus = "SKIPPED"
)

type StepType string

const (
	TypeReview  StepType = "REVIEW"
	TypeApprove StepType = "APPROVE"
	TypeConsult StepType = "CONSULT"
)

type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "NOT_STARTED"
	WorkflowInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowApproved   WorkflowStatus = "APPROVED"
	WorkflowRejected   WorkflowStatus = "REJECTED"
	WorkflowReturned   WorkflowStatus = "RETURNED"
	WorkflowCancelled  WorkflowStatus = "CANCELLED"
)

type Action string

const (
	ActionApprove  Action = "APPROVE"
	ActionReject   Action = "REJECT"
	ActionReturn   Action = "RETURN"
	ActionDelegate Action = "DELEGATE"
)

// ApprovalLine is one complete approval path for a document. A document may
// carry several lines over its history but at most one is active at a time.
type ApprovalLine struct {
	ID               uuid.UUID `json:"id" db:"id"`
	DocumentID       uuid.UUID `json:"document_id" db:"document_id"`
	Name             string    `json:"name" db:"name"`
	IsParallel       bool      `json:"is_parallel" db:"is_parallel"`
	IsConditional    bool      `json:"is_conditional" db:"is_conditional"`
	RequiresApproval bool      `json:"requires_approval" db:"requires_approval"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ApprovalStep is one approver's unit of work within a line. Steps sharing a
// StepOrder form a stage and advance together.
type ApprovalStep struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	LineID        uuid.UUID  `json:"line_id" db:"line_id"`
	StepOrder     int        `json:"step_order" db:"step_order"`
	ApproverID    uuid.UUID  `json:"approver_id" db:"approver_id"`
	DelegatedToID *uuid.UUID `json:"delegated_to_id,omitempty" db:"delegated_to_id"`
	StepType      StepType   `json:"step_type" db:"step_type"`
	IsRequired    bool       `json:"is_required" db:"is_required"`
	IsParallel    bool       `json:"is_parallel" db:"is_parallel"`
	OneOfGroup    bool       `json:"one_of_group" db:"one_of_group"`
	Status        StepStatus `json:"status" db:"status"`
	Comments      string     `json:"comments" db:"comments"`
	DueDate       *time.Time `json:"due_date,omitempty" db:"due_date"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
}

// Delegation is a time-bounded redirection of one approver's pending steps to
// another user. Delegations chain but must never cycle.
type Delegation struct {
	ID         uuid.UUID `json:"id"`
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Reason     string    `json:"reason"`
	IsActive   bool      `json:"is_active"`
}

// Covers applies the delegation window check at a given instant.
func (d Delegation) Covers(at time.Time) bool {
	return d.IsActive && !at.Before(d.StartDate) && !at.After(d.EndDate)
}

type EventKind string

const (
	EventWorkflowStarted  EventKind = "workflow_started"
	EventWorkflowApproved EventKind = "workflow_approved"
	EventWorkflowRejected EventKind = "workflow_rejected"
	EventWorkflowReturned EventKind = "workflow_returned"
	EventStepApproved     EventKind = "step_approved"
	EventStepRejected     EventKind = "step_rejected"
	EventStepReturned     EventKind = "step_returned"
	EventStepDelegated    EventKind = "step_delegated"
	EventStepSkipped      EventKind = "step_skipped"
	EventStepCancelled    EventKind = "step_cancelled"
	EventStepOverdue      EventKind = "step_overdue"
)

// WorkflowEvent records one entry in a line's audit trail.
type WorkflowEvent struct {
	ID         uuid.UUID `json:"id" db:"id"`
	LineID     uuid.UUID `json:"line_id" db:"line_id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	StepID     uuid.UUID `json:"step_id" db:"step_id"`
	Kind       EventKind `json:"kind" db:"kind"`
	ActorID    uuid.UUID `json:"actor_id" db:"actor_id"`
	Comment    string    `json:"comment" db:"comment"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// WorkflowState is the derived, current view of a document's active line. It
// is a projection over the line, its steps, and the action history; it is
// never the source of truth.
type WorkflowState struct {
	LineID       uuid.UUID       `json:"line_id"`
	DocumentID   uuid.UUID       `json:"document_id"`
	Status       WorkflowStatus  `json:"status"`
	CurrentStage int             `json:"current_stage"`
	Steps        []ApprovalStep  `json:"steps"`
	Actionable   []uuid.UUID     `json:"actionable"`
	Events       []WorkflowEvent `json:"events"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProgressView is the read-only progress summary derived by Project.
type ProgressView struct {
	CompletedCount int         `json:"completed_count"`
	TotalCount     int         `json:"total_count"`
	Percent        float64     `json:"percent"`
	CurrentActors  []uuid.UUID `json:"current_actors"`
	IsOverdue      bool        `json:"is_overdue"`
}

// ActionRequest carries one actor decision into the engine. DelegateTo is
// consulted only when Action is DELEGATE.
type ActionRequest struct {
	StepID     uuid.UUID  `json:"step_id"`
	ActorID    uuid.UUID  `json:"actor_id"`
	Action     Action     `json:"action"`
	Comment    string     `json:"comment"`
	DelegateTo *uuid.UUID `json:"delegate_to,omitempty"`
	At         time.Time  `json:"at"`
}
