package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors.
type Kind string

const (
	KindMalformedHeaderField    Kind = "MALFORMED_HEADER_FIELD"
	KindArrayTerminatorNotFound Kind = "ARRAY_TERMINATOR_NOT_FOUND"
	KindNaturalKeyCollision     Kind = "NATURAL_KEY_COLLISION"
	KindSinkWriteFailure        Kind = "SINK_WRITE_FAILURE"
	KindUnknownAcronym          Kind = "UNKNOWN_ACRONYM"
	KindMalformedTable          Kind = "MALFORMED_TABLE"
	KindIncompleteGroup         Kind = "INCOMPLETE_GROUP"
	KindMixedBatch              Kind = "MIXED_BATCH"
	KindDanglingReference       Kind = "DANGLING_REFERENCE"
	KindConfig                  Kind = "CONFIG"
	KindNotFound                Kind = "NOT_FOUND"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrMalformedHeaderField    = &Error{Kind: KindMalformedHeaderField}
	ErrArrayTerminatorNotFound = &Error{Kind: KindArrayTerminatorNotFound}
	ErrNaturalKeyCollision     = &Error{Kind: KindNaturalKeyCollision}
	ErrSinkWriteFailure        = &Error{Kind: KindSinkWriteFailure}
	ErrUnknownAcronym          = &Error{Kind: KindUnknownAcronym}
	ErrMalformedTable          = &Error{Kind: KindMalformedTable}
	ErrIncompleteGroup         = &Error{Kind: KindIncompleteGroup}
	ErrMixedBatch              = &Error{Kind: KindMixedBatch}
	ErrDanglingReference       = &Error{Kind: KindDanglingReference}
	ErrConfig                  = &Error{Kind: KindConfig}
	ErrNotFound                = &Error{Kind: KindNotFound}
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithContext attaches a key/value pair for reporting.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MalformedHeaderField reports a missing or unusable header field.
func MalformedHeaderField(field string, cause error) *Error {
	return New(KindMalformedHeaderField, fmt.Sprintf("header field %q missing or malformed", field), cause).
		WithContext("field", field)
}

// ArrayTerminatorNotFound reports an array block with no '#' terminator.
func ArrayTerminatorNotFound(array string) *Error {
	return New(KindArrayTerminatorNotFound, fmt.Sprintf("array %q has no terminator", array), nil).
		WithContext("array", array)
}

// NaturalKeyCollision reports two file groups resolving to one sequence.
func NaturalKeyCollision(sequence, first, second string) *Error {
	return New(KindNaturalKeyCollision,
		fmt.Sprintf("sequence %q produced by both %s and %s", sequence, first, second), nil).
		WithContext("sequence", sequence)
}

// SinkWriteFailure wraps a warehouse error for one table.
func SinkWriteFailure(table string, cause error) *Error {
	return New(KindSinkWriteFailure, fmt.Sprintf("write %s", table), cause).
		WithContext("table", table)
}

// UnknownAcronym reports a file-name acronym outside the classification table.
func UnknownAcronym(acronym string) *Error {
	return New(KindUnknownAcronym, fmt.Sprintf("unrecognized acronym %q", acronym), nil).
		WithContext("acronym", acronym)
}

// MalformedTable reports an unparseable data table.
func MalformedTable(message string, cause error) *Error {
	return New(KindMalformedTable, message, cause)
}

// IncompleteGroup reports a file group missing a companion file.
func IncompleteGroup(group, missing string) *Error {
	return New(KindIncompleteGroup, fmt.Sprintf("%s: missing %s file", group, missing), nil).
		WithContext("group", group)
}

// MixedBatch reports a group whose channel naming disagrees with its batch.
func MixedBatch(group, scheme string) *Error {
	return New(KindMixedBatch, fmt.Sprintf("%s does not use the batch's %s channel scheme", group, scheme), nil).
		WithContext("group", group)
}

// DanglingReference reports a fragment row whose sequence resolves to no hub row.
func DanglingReference(table, field, ref string) *Error {
	return New(KindDanglingReference,
		fmt.Sprintf("%s.%s does not resolve to a %s row", table, field, ref), nil).
		WithContext("table", table)
}

// Config reports an invalid configuration.
func Config(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

// NotFound reports a missing named resource.
func NotFound(resource string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource), nil)
}
