package workbook

import (
	"errors"
	"fmt"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// InvalidArgument indicates the request or the formula it carries is
	// invalid.
	InvalidArgument AppErrorCode = 3

	// NotFound means the requested cell does not exist in the plan.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates the edit was rejected because of the
	// state of the plan: the cell is locked or the formula closes a cycle.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. the store or the engine broke an invariant.
	Internal AppErrorCode = 13
)

var codeNames = map[AppErrorCode]string{
	OK:                 "OK",
	InvalidArgument:    "InvalidArgument",
	NotFound:           "NotFound",
	FailedPrecondition: "FailedPrecondition",
	Internal:           "Internal",
}

func (c AppErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AppErrorCode(%d)", int(c))
}

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrCellLocked         = errors.New("cell is locked")
	ErrInvalidFormula     = errors.New("invalid formula")
	ErrCircularDependency = errors.New("circular dependency")
	ErrCellNotFound       = errors.New("cell not found")
)

// user facing messages of the rejected edits
const (
	msgCellLocked         = "This cell is locked and cannot be edited"
	msgCircularDependency = "This formula would create a circular dependency"
)

// AppError represents errors at the application level (not formula
// evaluation failures). Err is the sentinel the failure belongs to.
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, sentinel error, message string) *AppError {
	if message == "" && sentinel != nil {
		message = sentinel.Error()
	}
	return &AppError{
		Code:    code,
		Message: message,
		Err:     sentinel,
	}
}

// CodeOf returns the code of the first AppError in err's chain, Internal
// for other errors and OK for nil
func CodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Internal
}
