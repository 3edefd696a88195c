package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMaxStepsExceeded indicates that graph execution reached the hard step
// cap without terminating. This catches graphs with ungated cycles.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrUnknownNodeType indicates a definition references a node type that is
// not registered.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrDuplicateNodeType indicates a second registration for the same type.
var ErrDuplicateNodeType = errors.New("node type already registered")

// Error codes used by FlowError and NodeError.
const (
	CodeValidation = "VALIDATION"
	CodeRegistry   = "REGISTRY"
	CodeCompile    = "COMPILE"
	CodeNode       = "NODE_EXECUTION"
	CodeModel      = "MODEL"
	CodeCanceled   = "CANCELED"
)

// FlowError is a structured engine-level error.
type FlowError struct {
	Message string
	Code    string
}

func (e *FlowError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// NodeError wraps a failure inside a specific node's execution.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Message, e.Cause)
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

func (e *NodeError) Unwrap() error { return e.Cause }

// ValidationError carries the full list of structural problems found in a
// workflow definition. The compiler refuses definitions with a non-empty
// list; callers surface Problems to the user verbatim.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow: %s", strings.Join(e.Problems, "; "))
}

// errorType classifies an error for error events and metrics labels.
func errorType(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	var ne *NodeError
	if errors.As(err, &ne) && ne.Code != "" {
		return ne.Code
	}
	var fe *FlowError
	if errors.As(err, &fe) && fe.Code != "" {
		return fe.Code
	}
	if errors.Is(err, ErrMaxStepsExceeded) {
		return CodeCompile
	}
	return CodeNode
}
