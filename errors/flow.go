package errors

import "fmt"

// DuplicateLabelError reports a label that is already held by another node.
type DuplicateLabelError struct {
	NodeID     string
	Label      string
	ConflictID string
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("node labels must be unique: %q is already used by node %s", e.Label, e.ConflictID)
}

// ChildNotFoundError reports a child id that is not listed under its parent.
type ChildNotFoundError struct {
	ParentID string
	ChildID  string
}

func (e *ChildNotFoundError) Error() string {
	return fmt.Sprintf("node (id: %s) did not have child with id: %s", e.ParentID, e.ChildID)
}

// MalformedFlowError reports a serialized flow that failed validation.
type MalformedFlowError struct {
	Reason string
}

func (e *MalformedFlowError) Error() string {
	return "malformed flow: " + e.Reason
}

// UnsupportedVersionError reports a snapshot written by a newer schema.
type UnsupportedVersionError struct {
	Version   int
	Supported int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported flow version %d (latest supported: %d)", e.Version, e.Supported)
}

// ContractError reports a caller that broke an operation's preconditions.
// These should not occur when the UI gates its actions correctly.
type ContractError struct {
	Operation string
	Detail    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Operation, e.Detail)
}

// NewDuplicateLabel returns an invalid-class DuplicateLabelError.
func NewDuplicateLabel(component, operation, nodeID, label, conflictID string) error {
	err := &DuplicateLabelError{NodeID: nodeID, Label: label, ConflictID: conflictID}
	return newClassified(ErrorInvalid, err, component, operation, "")
}

// NewChildNotFound returns an invalid-class ChildNotFoundError.
func NewChildNotFound(component, operation, parentID, childID string) error {
	err := &ChildNotFoundError{ParentID: parentID, ChildID: childID}
	return newClassified(ErrorInvalid, err, component, operation, "")
}

// NewMalformedFlow returns an invalid-class MalformedFlowError.
func NewMalformedFlow(component, operation, format string, args ...any) error {
	err := &MalformedFlowError{Reason: fmt.Sprintf(format, args...)}
	return newClassified(ErrorInvalid, err, component, operation, "")
}

// NewUnsupportedVersion returns an invalid-class UnsupportedVersionError.
func NewUnsupportedVersion(component, operation string, version, supported int) error {
	err := &UnsupportedVersionError{Version: version, Supported: supported}
	return newClassified(ErrorInvalid, err, component, operation, "")
}

// NewContract returns a fatal-class ContractError.
func NewContract(component, operation, format string, args ...any) error {
	err := &ContractError{Operation: operation, Detail: fmt.Sprintf(format, args...)}
	return newClassified(ErrorFatal, err, component, operation, "")
}
