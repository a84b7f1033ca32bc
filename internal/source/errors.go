package source

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	// ErrNotFound means an entity id could not be resolved after
	// prefix-stripping, or a source id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress is returned when a bounded wait on an in-flight sync
	// cycle expires. The caller may re-attach or poll the job state.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrInvalidInput marks request payload or parameter validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// UnreachableError wraps a network or auth failure reaching a source. It is
// isolated to that source, surfaces as a degraded health status and is retried
// on the next cycle — never returned as an empty-success result.
type UnreachableError struct {
	Ref Ref
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("source %s unreachable: %v", e.Ref, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Unreachable wraps err for the given source ref. Returns nil when err is nil.
func Unreachable(ref Ref, err error) error {
	if err == nil {
		return nil
	}
	return &UnreachableError{Ref: ref, Err: err}
}

// InvalidTransitionError rejects an action requested from an incompatible
// container status. Rejected actions are not retried and never reach the
// runtime.
type InvalidTransitionError struct {
	Action string
	Status string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %q not allowed from status %q", e.Action, e.Status)
}

// UnsupportedForSourceError rejects an operation on a source kind that does
// not define it, e.g. lifecycle actions on Kubernetes-backed entities.
type UnsupportedForSourceError struct {
	Op   string
	Kind Kind
}

func (e *UnsupportedForSourceError) Error() string {
	return fmt.Sprintf("%s not supported for source %q", e.Op, e.Kind)
}

// NotFoundError carries the unresolvable id. errors.Is(err, ErrNotFound)
// holds for all values of this type.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
