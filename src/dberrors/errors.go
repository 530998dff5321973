// Package dberrors defines the typed, code-bearing errors the storage
// engine returns to its callers. Every error the core surfaces carries one
// of these codes so a front end can translate it without inspecting
// message text.
package dberrors

import "fmt"

// Numeric codes mirror the external protocol's error-code dictionary.
const (
	CodeOK                = 0
	CodeInternalError     = 1
	CodeBadValue          = 2
	CodeDuplicateKey      = 11000
	CodeInvalidLength     = 21
	CodeNamespaceNotFound = 26
	CodeIndexNotFound     = 27
	CodeInvalidNamespace  = 73
	CodeDocumentTooLarge  = 10334
)

// Error is the typed error every store/indexmgr/query operation returns on
// failure. Front ends read Code rather than matching on Message.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, dberrors.ErrDuplicateKey) match any *Error with
// the same code, regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newErr(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new *Error with the given code and message,
// preserving the original error for %w-style unwrapping.
func Wrap(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Sentinel errors usable with errors.Is for the common cases; all other
// call sites construct a specific *Error with newErr/Wrap directly so the
// message can carry context (collection, field, value).
var (
	ErrDuplicateKey      = &Error{Code: CodeDuplicateKey, Message: "duplicate key"}
	ErrBadValue          = &Error{Code: CodeBadValue, Message: "bad value"}
	ErrInternal          = &Error{Code: CodeInternalError, Message: "internal error"}
	ErrInvalidLength     = &Error{Code: CodeInvalidLength, Message: "invalid length"}
	ErrNamespaceNotFound = &Error{Code: CodeNamespaceNotFound, Message: "namespace not found"}
	ErrIndexNotFound     = &Error{Code: CodeIndexNotFound, Message: "index not found"}
	ErrInvalidNamespace  = &Error{Code: CodeInvalidNamespace, Message: "invalid namespace"}
	ErrDocumentTooLarge  = &Error{Code: CodeDocumentTooLarge, Message: "document too large"}
)

// BadValue builds a BadValue error with a formatted message.
func BadValue(format string, args ...interface{}) *Error {
	return newErr(CodeBadValue, format, args...)
}

// InvalidNamespace builds an InvalidNamespace error.
func InvalidNamespace(name string, reason string) *Error {
	return newErr(CodeInvalidNamespace, "invalid collection name %q: %s", name, reason)
}

// InvalidLength builds an InvalidLength error.
func InvalidLength(format string, args ...interface{}) *Error {
	return newErr(CodeInvalidLength, format, args...)
}

// DuplicateKey builds a DuplicateKey error naming the offending index,
// field, and value, per spec §7's user-visible failure behavior.
func DuplicateKey(collection, indexName, field string, value interface{}) *Error {
	return newErr(CodeDuplicateKey, "E11000 duplicate key error collection: %s index: %s dup key: { %s: %v }",
		collection, indexName, field, value)
}

// DocumentTooLarge builds a DocumentTooLarge error citing the limit.
func DocumentTooLarge(size, limit int) *Error {
	return newErr(CodeDocumentTooLarge, "document of size %d exceeds the configured limit of %d bytes", size, limit)
}

// IndexNotFound builds an IndexNotFound error.
func IndexNotFound(collection, name string) *Error {
	return newErr(CodeIndexNotFound, "index %q not found on collection %q", name, collection)
}

// NamespaceNotFound builds a NamespaceNotFound error.
func NamespaceNotFound(collection string) *Error {
	return newErr(CodeNamespaceNotFound, "collection %q does not exist", collection)
}

// Internal wraps an unexpected KV substrate failure.
func Internal(cause error, format string, args ...interface{}) *Error {
	return Wrap(CodeInternalError, cause, format, args...)
}
