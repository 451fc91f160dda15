package flow

import (
	"errors"
	"fmt"
)

var (
	ErrFlowCompleted = errors.New("flow already completed")
	ErrNotSuspended  = errors.New("flow is not suspended")
	ErrFlowStarted   = errors.New("flow already started")
	ErrStillPending  = errors.New("awaited event has not completed")
	ErrValueCycle    = errors.New("value dependency cycle")
	ErrStepQuota     = errors.New("flow step quota exceeded")
	ErrScriptBudget  = errors.New("script instruction budget exceeded")
	ErrNoEvent       = errors.New("no current event")
	ErrNoEnv         = errors.New("flow has no environment")
)

// NodeError is a failure raised while executing or computing one node.
type NodeError struct {
	NodeID int
	Define string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.NodeID, e.Define, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PolicyCode categorizes policy violations: operations the interpreter
// refuses rather than faults it hits.
type PolicyCode string

const (
	// CodePendingDependency: a value was read from the node the flow is
	// suspended on.
	CodePendingDependency PolicyCode = "PENDING_DEPENDENCY"

	// CodeSuspendForbidden: a flow built WithoutSuspend reached a node
	// that must wait for external input.
	CodeSuspendForbidden PolicyCode = "SUSPEND_FORBIDDEN"
)

// PolicyError reports a refused operation.
type PolicyError struct {
	Code    PolicyCode
	NodeID  int
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s (node=%d)", e.Code, e.Message, e.NodeID)
}

// IsPolicyError reports whether err carries a PolicyError.
func IsPolicyError(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// IsPendingDependency reports whether err is a read of a pending node.
func IsPendingDependency(err error) bool {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code == CodePendingDependency
	}
	return false
}

// IsSuspendForbidden reports whether err is a forbidden suspension.
func IsSuspendForbidden(err error) bool {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code == CodeSuspendForbidden
	}
	return false
}

// IsNodeError reports whether err carries a NodeError.
func IsNodeError(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne)
}
