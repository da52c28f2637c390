// Package bufferr defines the exhaustive error-kind taxonomy shared across
// the index/VPM/undo/buffer packages so callers can classify failures with
// errors.Is regardless of which layer raised them.
package bufferr

import "errors"

// Kind is one of the exhaustive error kinds this module can raise.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindAddressOutOfRange
	KindNoFilename
	KindDetachedSave
	KindLoadFailure
	KindStorageSaveFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindAddressOutOfRange:
		return "AddressOutOfRange"
	case KindNoFilename:
		return "NoFilename"
	case KindDetachedSave:
		return "DetachedSave"
	case KindLoadFailure:
		return "LoadFailure"
	case KindStorageSaveFailure:
		return "StorageSaveFailure"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause (if any) with its error Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error of the same Kind, enabling
// errors.Is(err, bufferr.New(bufferr.KindDetachedSave, "")) style checks, as
// well as a kind-only sentinel compare via errors.Is(err, KindX.Sentinel()).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns a bare *Error of Kind k usable as an errors.Is target:
// errors.Is(err, bufferr.KindDetachedSave.Sentinel()).
func (k Kind) Sentinel() error { return &Error{Kind: k} }

// LoadFailureCause classifies why a page load failed.
type LoadFailureCause string

const (
	CauseFileDeleted      LoadFailureCause = "file_deleted"
	CauseFileTruncated    LoadFailureCause = "file_truncated"
	CausePermissionDenied LoadFailureCause = "permission_denied"
	CauseStorageFailure   LoadFailureCause = "storage_failure"
	CauseDataCorruption   LoadFailureCause = "data_corruption"
)

// ClassifyLoadFailure maps a load error to a LoadFailureCause using
// errors.Is against this package's cause sentinels (produced by
// WrapFileDeleted and friends), falling back to storage_failure for anything
// else, including unwrapped OS errors and Store.LoadPage errors.
func ClassifyLoadFailure(err error) LoadFailureCause {
	switch {
	case errors.Is(err, errFileDeleted):
		return CauseFileDeleted
	case errors.Is(err, errFileTruncated):
		return CauseFileTruncated
	case errors.Is(err, errPermissionDenied):
		return CausePermissionDenied
	case errors.Is(err, errDataCorruption):
		return CauseDataCorruption
	default:
		return CauseStorageFailure
	}
}

var (
	errFileDeleted      = errors.New("bufferr: file deleted")
	errFileTruncated    = errors.New("bufferr: file truncated")
	errPermissionDenied = errors.New("bufferr: permission denied")
	errDataCorruption   = errors.New("bufferr: data corruption")
)

// WrapFileDeleted etc. let callers produce an error that ClassifyLoadFailure
// will correctly bucket, without every caller needing its own sentinel.
func WrapFileDeleted(detail string) error      { return wrapCause(errFileDeleted, detail) }
func WrapFileTruncated(detail string) error    { return wrapCause(errFileTruncated, detail) }
func WrapPermissionDenied(detail string) error { return wrapCause(errPermissionDenied, detail) }
func WrapDataCorruption(detail string) error   { return wrapCause(errDataCorruption, detail) }

func wrapCause(sentinel error, detail string) error {
	if detail == "" {
		return sentinel
	}
	return &causeError{sentinel: sentinel, detail: detail}
}

type causeError struct {
	sentinel error
	detail   string
}

func (e *causeError) Error() string { return e.sentinel.Error() + ": " + e.detail }
func (e *causeError) Unwrap() error { return e.sentinel }
