package virt

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an instance has no engine-side container. Lookups
// that tolerate absence return it wrapped so callers can branch with
// errors.Is.
var ErrNotFound = errors.New("instance not found")

// ErrDaemonUnreachable indicates the container engine daemon did not respond
// at host initialization. The host is unusable until it does.
var ErrDaemonUnreachable = errors.New("container engine daemon is not running or is not reachable")

// ErrResizeDown rejects a migration whose target flavor shrinks the root or
// ephemeral disk. Raised before any destructive action.
var ErrResizeDown = errors.New("unable to resize disk down")

// DeployError reports a failed container deployment. It always names the
// instance and carries the original cause.
type DeployError struct {
	Instance string
	Cause    error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy instance %q: %v", e.Instance, e.Cause)
}

func (e *DeployError) Unwrap() error { return e.Cause }

// NetworkSetupError is the deploy failure specific to network attachment.
// The container has already been killed by the time it is returned.
type NetworkSetupError struct {
	Instance string
	Cause    error
}

func (e *NetworkSetupError) Error() string {
	return fmt.Sprintf("set up network for instance %q: %v", e.Instance, e.Cause)
}

func (e *NetworkSetupError) Unwrap() error { return e.Cause }

// InvalidStateError reports an operation applied to an instance in a state
// that has no edge for it, e.g. pausing an absent instance.
type InvalidStateError struct {
	Instance string
	Op       string
	State    State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s instance %q in state %s", e.Op, e.Instance, e.State)
}

// ImageFormatError reports an image whose container format is not supported
// by the engine backend.
type ImageFormatError struct {
	Format string
}

func (e *ImageFormatError) Error() string {
	return fmt.Sprintf("image container format not supported (%s)", e.Format)
}
