package bond

import (
	"errors"
	"strconv"
)

// Code is the stable numeric failure code returned to registry callers.
type Code uint32

const (
	CodeUnauthorized     Code = 100
	CodeNotFound         Code = 101
	CodeInvalidPrincipal Code = 102
	CodeInvalidAmount    Code = 103
)

func (c Code) String() string {
	switch c {
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeNotFound:
		return "NotFound"
	case CodeInvalidPrincipal:
		return "InvalidPrincipal"
	case CodeInvalidAmount:
		return "InvalidAmount"
	default:
		return "Code(" + strconv.FormatUint(uint64(c), 10) + ")"
	}
}

// Error is a caller-facing registry failure. Two errors match under errors.Is
// when their codes are equal.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.msg
}

// Is implements code-based matching for errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

var (
	// ErrUnauthorized marks a caller lacking the privilege the operation requires.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, msg: "bond: unauthorized"}
	// ErrNotFound marks a bond that does not exist, or that is no longer
	// active when funding.
	ErrNotFound = &Error{Code: CodeNotFound, msg: "bond: not found"}
	// ErrInvalidPrincipal marks an attempt to assign the sentinel address.
	ErrInvalidPrincipal = &Error{Code: CodeInvalidPrincipal, msg: "bond: invalid principal"}
	// ErrInvalidAmount marks a missing or negative goal or amount.
	ErrInvalidAmount = &Error{Code: CodeInvalidAmount, msg: "bond: invalid amount"}
)

var (
	errNilState    = errors.New("bond registry: state not configured")
	errAdminNotSet = errors.New("bond registry: admin not bootstrapped")
)

// CodeOf extracts the registry failure code carried by err.
func CodeOf(err error) (Code, bool) {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Code, true
	}
	return 0, false
}
