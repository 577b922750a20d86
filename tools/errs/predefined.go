package errs

import "errors"

// Error taxonomy of the session core. Not-found errors are recoverable
// races on cleanup paths and must be swallowed there; duplicates are fatal
// to the triggering operation only.
var (
	ErrDuplicateConnection = NewCodeError(1400, "connection already registered")
	ErrRoomAlreadyEntered  = NewCodeError(1401, "room already entered")

	ErrUnknownConnection = NewCodeError(1404, "no such connection")
	ErrRoomNotFound      = NewCodeError(1405, "no such room")
	ErrUserNotFound      = NewCodeError(1406, "no such user")
	ErrTokenNotFound     = NewCodeError(1407, "no such token")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Code >= 1404 && codeErr.Code <= 1407
}

// IsDuplicate reports whether err is a duplicate-key violation.
func IsDuplicate(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Code == 1400 || codeErr.Code == 1401
}

func New(msg string, kv ...any) error {
	e := NewCodeError(500, msg)
	if len(kv) > 0 {
		return e.WrapMsg("", kv...)
	}
	return &e
}
