package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxDelegationDepth bounds every delegation resolution walk. Chains in a
// live approval system must terminate quickly; a longer chain is treated as
// misconfiguration, not followed.
const MaxDelegationDepth = 5

// UserDirectory exposes the delegation records the resolver walks. Read-only.
type UserDirectory interface {
	ActiveDelegations(ctx context.Context, userID uuid.UUID, at time.Time) ([]Delegation, error)
}

// DelegationResolver resolves the effective actor for a step at a point in
// time by following the delegation chain from the nominal approver.
type DelegationResolver struct {
	directory UserDirectory
}

func NewDelegationResolver(directory UserDirectory) *DelegationResolver {
	return &DelegationResolver{directory: directory}
}

// Resolve follows active delegations from userID at the given instant and
// returns the effective actor plus the full chain walked, starting with
// userID itself. A revisited user yields *DelegationCycleError; a chain
// longer than MaxDelegationDepth hops yields *DelegationDepthError. The bound
// holds unconditionally, even when delegations mutate concurrently.
func (r *DelegationResolver) Resolve(ctx context.Context, userID uuid.UUID, at time.Time) (uuid.UUID, []uuid.UUID, error) {
	current := userID
	chain := []uuid.UUID{current}
	visited := map[uuid.UUID]bool{current: true}

	for {
		delegations, err := r.directory.ActiveDelegations(ctx, current, at)
		if err != nil {
			return uuid.Nil, chain, fmt.Errorf("load delegations for %s: %w", current, err)
		}

		next, ok := pickDelegation(delegations, at)
		if !ok {
			return current, chain, nil
		}

		// Cycle detection outranks the depth bound so a closed chain is
		// reported as a cycle however long it is.
		if visited[next] {
			return uuid.Nil, chain, &DelegationCycleError{UserID: next.String(), Chain: chainStrings(append(chain, next))}
		}
		if len(chain) > MaxDelegationDepth {
			return uuid.Nil, chain, &DelegationDepthError{UserID: userID.String(), Limit: MaxDelegationDepth}
		}
		visited[next] = true
		chain = append(chain, next)
		current = next
	}
}

// pickDelegation selects the delegation to follow among a user's active ones.
// The earliest-starting covering delegation wins; the directory returns them
// ordered, so the first covering record is taken.
func pickDelegation(delegations []Delegation, at time.Time) (uuid.UUID, bool) {
	for _, d := range delegations {
		if d.Covers(at) {
			return d.ToUserID, true
		}
	}
	return uuid.Nil, false
}

func chainStrings(chain []uuid.UUID) []string {
	out := make([]string, len(chain))
	for i, id := range chain {
		out[i] = id.String()
	}
	return out
}
