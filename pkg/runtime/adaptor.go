// Package runtime defines the polymorphic capability a Runtime Adaptor
// exposes to the agent's control loops, and keeps the containerd-backed
// implementation, adapted to this contract.
package runtime

import (
	"context"
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
)

// Handle identifies a created workload instance to its adaptor for
// subsequent delete/reconciliation calls. Adaptors are free to embed
// whatever backend-specific identifier they need in ContainerID.
type Handle struct {
	Instance    ankaios.WorkloadInstanceName
	ContainerID string
}

// StateChecker produces an infinite lazy sequence of ExecutionState
// observations for one created workload. The control loop owns the
// lifetime: it calls Next in a loop and calls Close before freeing the
// handle, never after.
type StateChecker interface {
	Next(ctx context.Context) (ankaios.ExecutionState, error)
	Close()
}

// Adaptor is the external contract a container backend implements to be
// addressable by a workload's `runtime` tag.
type Adaptor interface {
	CreateWorkload(ctx context.Context, instance ankaios.WorkloadInstanceName, w *ankaios.Workload) (Handle, StateChecker, error)
	DeleteWorkload(ctx context.Context, handle Handle) error
	GetReusableWorkloads(ctx context.Context, agentName string) ([]Handle, error)

	// WatchWorkload returns a StateChecker for a handle obtained from
	// GetReusableWorkloads, so an adopted instance can be monitored the
	// same way a freshly created one is, without re-running CreateWorkload.
	WatchWorkload(ctx context.Context, handle Handle) (StateChecker, error)
}

// ClassifiedError tags an Adaptor error as retriable or fatal so the
// control loop's retry policy doesn't have to guess from the error text.
type ClassifiedError struct {
	Err       error
	Retriable bool
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retry wraps err as a retriable ClassifiedError.
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Err: err, Retriable: true}
}

// Fatal wraps err as a non-retriable ClassifiedError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Err: err, Retriable: false}
}

// IsRetriable reports whether err was classified as retriable by the
// adaptor that produced it. Unclassified errors are treated as fatal: an
// adaptor that doesn't know better shouldn't be retried blindly.
func IsRetriable(err error) bool {
	var ce *ClassifiedError
	if ok := asClassified(err, &ce); ok {
		return ce.Retriable
	}
	return false
}

func asClassified(err error, target **ClassifiedError) bool {
	for err != nil {
		if ce, ok := err.(*ClassifiedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var errNotFound = fmt.Errorf("handle not found")
