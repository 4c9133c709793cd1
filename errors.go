package fixtura

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("fixtura: record not found")

	// ErrReadOnly is returned when attempting to mutate a read-only
	// definition, such as an imported view.
	ErrReadOnly = errors.New("fixtura: definition is read-only")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	table string
	id    any // Optional: the identifier that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("fixtura: %s not found (id=%v)", e.table, e.id)
	}
	return fmt.Sprintf("fixtura: %s not found", e.table)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table name.
func (e *NotFoundError) Table() string {
	return e.table
}

// ID returns the identifier that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given table.
func NewNotFoundError(table string) *NotFoundError {
	return &NotFoundError{table: table}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the identifier
// that was searched for.
func NewNotFoundErrorWithID(table string, id any) *NotFoundError {
	return &NotFoundError{table: table, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// SchemaError represents a fatal error during schema import, such as a raw
// column type that cannot be mapped to an ORM type. A SchemaError aborts
// the whole import.
type SchemaError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("fixtura: schema: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.wrap
}

// NewSchemaError returns a new SchemaError with the given message.
func NewSchemaError(format string, args ...any) *SchemaError {
	return &SchemaError{msg: fmt.Sprintf(format, args...)}
}

// NewSchemaErrorWrap returns a new SchemaError wrapping an underlying error.
func NewSchemaErrorWrap(err error, format string, args ...any) *SchemaError {
	return &SchemaError{msg: fmt.Sprintf(format, args...), wrap: err}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// RecordError represents an error local to a single record, such as access
// to an undefined mapped value. It is recoverable by the caller.
type RecordError struct {
	msg string
}

// Error returns the error string.
func (e *RecordError) Error() string {
	return fmt.Sprintf("fixtura: record: %s", e.msg)
}

// NewRecordError returns a new RecordError with the given message.
func NewRecordError(format string, args ...any) *RecordError {
	return &RecordError{msg: fmt.Sprintf(format, args...)}
}

// IsRecordError returns true if the error is a RecordError.
func IsRecordError(err error) bool {
	if err == nil {
		return false
	}
	var e *RecordError
	return errors.As(err, &e)
}

// TableError represents a programmer error on table metadata, such as
// querying the modification state of a field the table does not define.
type TableError struct {
	table string
	msg   string
}

// Error returns the error string.
func (e *TableError) Error() string {
	if e.table != "" {
		return fmt.Sprintf("fixtura: table %s: %s", e.table, e.msg)
	}
	return fmt.Sprintf("fixtura: table: %s", e.msg)
}

// Table returns the table name.
func (e *TableError) Table() string {
	return e.table
}

// NewTableError returns a new TableError for the given table.
func NewTableError(table, format string, args ...any) *TableError {
	return &TableError{table: table, msg: fmt.Sprintf(format, args...)}
}

// IsTableError returns true if the error is a TableError.
func IsTableError(err error) bool {
	if err == nil {
		return false
	}
	var e *TableError
	return errors.As(err, &e)
}

// GeneratorError represents a failure during fixture generation, such as an
// unresolved alias or a missing map-field configuration. It aborts the
// current generation call; records committed before the failure remain
// persisted.
type GeneratorError struct {
	table string
	msg   string
}

// Error returns the error string.
func (e *GeneratorError) Error() string {
	if e.table != "" {
		return fmt.Sprintf("fixtura: generator: table %s: %s", e.table, e.msg)
	}
	return fmt.Sprintf("fixtura: generator: %s", e.msg)
}

// Table returns the table name, if the failure is tied to one.
func (e *GeneratorError) Table() string {
	return e.table
}

// NewGeneratorError returns a new GeneratorError for the given table.
func NewGeneratorError(table, format string, args ...any) *GeneratorError {
	return &GeneratorError{table: table, msg: fmt.Sprintf(format, args...)}
}

// IsGeneratorError returns true if the error is a GeneratorError.
func IsGeneratorError(err error) bool {
	if err == nil {
		return false
	}
	var e *GeneratorError
	return errors.As(err, &e)
}
