package types

import "fmt"

// ErrorKind classifies a rejected move. Kinds are machine-readable and
// stable across the wire.
type ErrorKind string

const (
	// ErrorKindPhaseViolation means the move is illegal in the current phase.
	ErrorKindPhaseViolation ErrorKind = "phase-violation"
	// ErrorKindOwnershipViolation means the player is not active or not
	// owned by the acting user.
	ErrorKindOwnershipViolation ErrorKind = "ownership-violation"
	// ErrorKindFieldViolation means the move payload is malformed or out
	// of range.
	ErrorKindFieldViolation ErrorKind = "field-violation"
	// ErrorKindResourceConflict means a contested single-use claim was
	// already resolved.
	ErrorKindResourceConflict ErrorKind = "resource-conflict"
	// ErrorKindNotFound means the session or game type is unknown.
	ErrorKindNotFound ErrorKind = "not-found"
)

// MoveError is a classified move rejection. It surfaces only to the
// originating connector and never mutates session state.
type MoveError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewPhaseViolation(format string, args ...interface{}) *MoveError {
	return &MoveError{Kind: ErrorKindPhaseViolation, Message: fmt.Sprintf(format, args...)}
}

func NewOwnershipViolation(format string, args ...interface{}) *MoveError {
	return &MoveError{Kind: ErrorKindOwnershipViolation, Message: fmt.Sprintf(format, args...)}
}

func NewFieldViolation(format string, args ...interface{}) *MoveError {
	return &MoveError{Kind: ErrorKindFieldViolation, Message: fmt.Sprintf(format, args...)}
}

func NewResourceConflict(format string, args ...interface{}) *MoveError {
	return &MoveError{Kind: ErrorKindResourceConflict, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...interface{}) *MoveError {
	return &MoveError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a MoveError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	moveErr, ok := err.(*MoveError)
	return ok && moveErr.Kind == kind
}
