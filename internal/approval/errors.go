package approval

import "fmt"

// StructuralError reports an invalid step topology or line configuration. It
// is never auto-corrected; callers must surface it so bad configuration gets
// flagged upstream.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid approval structure: %s", e.Reason)
}

// NotFoundError reports a missing step, line, or document.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NotActionableError reports an action against a step whose status does not
// admit it. Expected user-facing condition, not a bug.
type NotActionableError struct {
	StepID string
	Status StepStatus
}

func (e *NotActionableError) Error() string {
	return fmt.Sprintf("step %s is not actionable in status %s", e.StepID, e.Status)
}

// NotAuthorizedError reports an actor who is neither the nominal approver nor
// a currently-resolved delegate.
type NotAuthorizedError struct {
	StepID  string
	ActorID string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("user %s may not act on step %s", e.ActorID, e.StepID)
}

// DelegationCycleError reports a delegation chain that revisits a user.
type DelegationCycleError struct {
	UserID string
	Chain  []string
}

func (e *DelegationCycleError) Error() string {
	return fmt.Sprintf("delegation cycle at user %s (chain length %d)", e.UserID, len(e.Chain))
}

// DelegationDepthError reports a delegation chain exceeding the hop bound.
type DelegationDepthError struct {
	UserID string
	Limit  int
}

func (e *DelegationDepthError) Error() string {
	return fmt.Sprintf("delegation chain for user %s exceeds %d hops", e.UserID, e.Limit)
}

// PersistenceError wraps a DocumentStore failure. The computed transition is
// discarded, never half-applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConcurrencyError reports a timed-out wait on a workflow's lock.
type ConcurrencyError struct {
	LineID string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("workflow %s is busy, action not applied", e.LineID)
}
