package shared

import "errors"

// ErrKind classifies failures for callers that report machine-readable codes.
type ErrKind string

const (
	// KindValidation marks malformed or out-of-range input rejected before any write.
	KindValidation ErrKind = "VALIDATION"
	// KindNotFound marks a referenced record that does not exist.
	KindNotFound ErrKind = "NOT_FOUND"
	// KindConflict marks a state conflict such as insufficient stock or a duplicate generation.
	KindConflict ErrKind = "CONFLICT"
	// KindTransaction marks a storage failure mid-settlement; the settlement rolled back fully.
	KindTransaction ErrKind = "TRANSACTION"
)

// KindedError carries an ErrKind and a stable code alongside the message.
type KindedError struct {
	ErrKind ErrKind
	Code    string
	Message string
}

func (e *KindedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// NewValidationError builds a validation failure with a stable code.
func NewValidationError(code, message string) error {
	return &KindedError{ErrKind: KindValidation, Code: code, Message: message}
}

// NewNotFoundError builds a not-found failure with a stable code.
func NewNotFoundError(code, message string) error {
	return &KindedError{ErrKind: KindNotFound, Code: code, Message: message}
}

// NewConflictError builds a conflict failure with a stable code.
func NewConflictError(code, message string) error {
	return &KindedError{ErrKind: KindConflict, Code: code, Message: message}
}

// NewTransactionError builds a storage failure that aborted a settlement.
func NewTransactionError(code, message string) error {
	return &KindedError{ErrKind: KindTransaction, Code: code, Message: message}
}

// Kind extracts the ErrKind from err, defaulting to KindTransaction for
// unclassified storage errors.
func Kind(err error) ErrKind {
	var kerr *KindedError
	if errors.As(err, &kerr) {
		return kerr.ErrKind
	}
	return KindTransaction
}

// Code extracts the stable error code from err, or the empty string.
func Code(err error) string {
	var kerr *KindedError
	if errors.As(err, &kerr) {
		return kerr.Code
	}
	return ""
}
