package neogm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is a sentinel error returned by Find operations when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("record not found")

// ErrTransient marks a store failure that is expected to succeed if the whole
// transaction is run again (leader switch, deadlock, lock timeout). Transports
// wrap the driver error with it so the Executor can decide to retry.
var ErrTransient = errors.New("transient store error")

// ErrResultClosed is returned when a Result is read after the transaction that
// produced it has been closed. It always indicates a caller bug: results must be
// consumed inside the transaction function.
var ErrResultClosed = errors.New("result consumed outside of its transaction")

// ErrCardinalityViolation is returned when a single-valued relationship field
// holds more than one relationship instance.
var ErrCardinalityViolation = errors.New("single-valued relationship holds more than one instance")

// ErrInvalidEntity is returned when a value handed to the mapper is not a
// non-nil pointer to a registered node entity.
var ErrInvalidEntity = errors.New("invalid entity")

// ConnectionError reports a configuration or connectivity failure of the
// transport. It is fatal for the operation and never retried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("graph store connection error: %v", e.Err)
	}
	return fmt.Sprintf("graph store connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StoreQueryError carries the statement and parameters that the store rejected
// together with the underlying cause.
type StoreQueryError struct {
	Statement string
	Params    map[string]any
	Err       error
}

func (e *StoreQueryError) Error() string {
	return fmt.Sprintf("statement failed: %v (statement: %s)", e.Err, oneLine(e.Statement))
}

func (e *StoreQueryError) Unwrap() error { return e.Err }

// CardinalityError is returned by single-result accessors when the number of
// rows is not exactly one.
type CardinalityError struct {
	Got int
}

func (e *CardinalityError) Error() string {
	if e.Got == 0 {
		return "expected exactly 1 record but found none"
	}
	return fmt.Sprintf("expected exactly 1 record but found %d", e.Got)
}

// ConfigurationError reports invalid entity metadata. Registries refuse to be
// built when any is found, so these surface before any persistence operation.
type ConfigurationError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Type == "":
		return "invalid mapping configuration: " + e.Reason
	case e.Field == "":
		return fmt.Sprintf("invalid mapping for %s: %s", e.Type, e.Reason)
	default:
		return fmt.Sprintf("invalid mapping for %s.%s: %s", e.Type, e.Field, e.Reason)
	}
}

// IsNotFound reports whether err means that a lookup matched nothing.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var ce *CardinalityError
	return errors.As(err, &ce) && ce.Got == 0
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
