// Package core holds domain types and errors shared across the orchestrator
// packages: the work breakdown structure, the workspace engine, the
// conflict resolver, the task runner, and the orchestrator event loop.
package core

import "fmt"

// ErrorCategory classifies a DomainError for handling decisions upstream.
type ErrorCategory string

const (
	// ErrCatCycle marks a WBS whose task/phase dependency graph is cyclic.
	ErrCatCycle ErrorCategory = "cycle"
	// ErrCatUnknownTask marks a reference to a task id the graph doesn't know.
	ErrCatUnknownTask ErrorCategory = "unknown_task"
	// ErrCatLoad marks a WBS file that could not be read or parsed.
	ErrCatLoad ErrorCategory = "load"
	// ErrCatAgent marks a non-zero agent subprocess exit.
	ErrCatAgent ErrorCategory = "agent_failure"
	// ErrCatTimeout marks an agent subprocess that exceeded its wall clock.
	ErrCatTimeout ErrorCategory = "agent_timeout"
	// ErrCatConflict marks a modified-vs-modified integration with no merge.
	ErrCatConflict ErrorCategory = "integration_conflict"
	// ErrCatMerge marks a merge sub-agent that failed or produced no output.
	ErrCatMerge ErrorCategory = "merge_failure"
)

// DomainError is a structured error carrying a stable category/code pair so
// callers can branch on error kind without string matching.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Details  map[string]any
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *DomainError) Unwrap() error { return e.Cause }

// Is compares category and code, ignoring message/cause/details.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause attaches an underlying error and returns the receiver.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail attaches contextual data and returns the receiver.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ErrCycle builds a CycleError naming the task id found on the cycle.
func ErrCycle(taskID string) *DomainError {
	return &DomainError{
		Category: ErrCatCycle,
		Code:     "CYCLIC_DEPENDENCY",
		Message:  fmt.Sprintf("cycle detected at task %q", taskID),
	}
}

// ErrUnknownTask builds an UnknownTask error.
func ErrUnknownTask(taskID string) *DomainError {
	return &DomainError{
		Category: ErrCatUnknownTask,
		Code:     "UNKNOWN_TASK",
		Message:  fmt.Sprintf("unknown task id %q", taskID),
	}
}

// ErrLoad builds a LoadError wrapping the underlying read/parse failure.
func ErrLoad(path string, cause error) *DomainError {
	return (&DomainError{
		Category: ErrCatLoad,
		Code:     "WBS_LOAD_FAILED",
		Message:  fmt.Sprintf("loading WBS from %q", path),
	}).WithCause(cause)
}

// ErrAgentFailure builds an AgentFailure error for a non-zero exit.
func ErrAgentFailure(taskID string, exitCode int) *DomainError {
	return (&DomainError{
		Category: ErrCatAgent,
		Code:     "AGENT_NONZERO_EXIT",
		Message:  fmt.Sprintf("process exited with code %d", exitCode),
	}).WithDetail("task_id", taskID).WithDetail("exit_code", exitCode)
}

// ErrAgentTimeout builds an AgentTimeout error.
func ErrAgentTimeout(taskID string, seconds float64) *DomainError {
	return (&DomainError{
		Category: ErrCatTimeout,
		Code:     "AGENT_TIMEOUT",
		Message:  fmt.Sprintf("task timeout after %.0fs", seconds),
	}).WithDetail("task_id", taskID)
}

// ErrIntegrationConflict builds an IntegrationConflict error.
func ErrIntegrationConflict(path, taskID string) *DomainError {
	return (&DomainError{
		Category: ErrCatConflict,
		Code:     "INTEGRATION_CONFLICT",
		Message:  fmt.Sprintf("concurrent modification of %q with no merge", path),
	}).WithDetail("task_id", taskID).WithDetail("path", path)
}

// ErrMergeFailure builds a MergeFailure error; callers downgrade this to an
// IntegrationConflict resolution rather than surfacing it (spec.md §7).
func ErrMergeFailure(reason string) *DomainError {
	return &DomainError{
		Category: ErrCatMerge,
		Code:     "MERGE_FAILED",
		Message:  reason,
	}
}
