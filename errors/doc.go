// Package errors provides standardized error handling patterns for the canvas engine.
//
// # Overview
//
// The package implements a three-class error classification: Transient
// (temporary, retryable), Invalid (bad input or data, do not retry), and Fatal
// (contract violations and unrecoverable states).
//
// Flow operations map onto the classes as follows:
//
//   - User-input conflicts (DuplicateLabelError, ChildNotFoundError): Invalid.
//     State is unchanged and the caller can re-prompt the user.
//   - Data-boundary failures (MalformedFlowError, UnsupportedVersionError):
//     Invalid. Imports and persisted snapshots are never partially applied.
//   - Contract violations (ContractError): Fatal. Mutating an id that does not
//     exist or connecting from a router without a mapping child.
//   - Storage and network failures from persistence backends: Transient.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Classification-aware wrappers:
//
//	errors.WrapTransient(err, "NATSBackend", "Put", "put to KV")
//	errors.WrapInvalid(err, "Loader", "Load", "parse config")
//	errors.WrapFatal(err, "Store", "Export", "marshal flow")
//
// Domain errors are created through constructors that classify them and remain
// reachable through errors.As:
//
//	err := store.UpdateLabel(id, "router")
//	var dup *errors.DuplicateLabelError
//	if errors.As(err, &dup) {
//	    // dup.ConflictID holds the node that owns the label
//	}
package errors
