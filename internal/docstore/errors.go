package docstore

import "errors"

// Error codes of the store. Operations wrap them with context, so match with
// errors.Is.
var (
	ErrConstraint          = errors.New("constraint error")
	ErrData                = errors.New("data error")
	ErrNotFound            = errors.New("not found error")
	ErrReadOnly            = errors.New("read-only error")
	ErrVersion             = errors.New("version error")
	ErrInvalidState        = errors.New("invalid state error")
	ErrInvalidAccess       = errors.New("invalid access error")
	ErrTransactionInactive = errors.New("transaction inactive error")
	ErrBlocked             = errors.New("blocked error")
	ErrAbort               = errors.New("abort error")
)

var errorNames = []struct {
	err  error
	name string
}{
	{ErrConstraint, "ConstraintError"},
	{ErrData, "DataError"},
	{ErrNotFound, "NotFoundError"},
	{ErrReadOnly, "ReadOnlyError"},
	{ErrVersion, "VersionError"},
	{ErrInvalidState, "InvalidStateError"},
	{ErrInvalidAccess, "InvalidAccessError"},
	{ErrTransactionInactive, "TransactionInactiveError"},
	{ErrBlocked, "BlockedError"},
	{ErrAbort, "AbortError"},
}

// ErrorName returns the code name of err ("ConstraintError", ...), or
// "UnknownError" for errors that did not originate in the store.
func ErrorName(err error) string {
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			return e.name
		}
	}

	return "UnknownError"
}
