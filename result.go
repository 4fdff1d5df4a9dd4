package neogm

import (
	"context"
	"sync/atomic"
)

// txScope is shared by every Result produced inside one transaction attempt.
// Closing it invalidates them all.
type txScope struct {
	closed atomic.Bool
}

func (s *txScope) close() { s.closed.Store(true) }

// Result is a lazy, finite, forward-only sequence of rows. It is only valid
// inside the transaction function that produced it; once that function has
// returned every accessor fails with ErrResultClosed.
type Result struct {
	cursor  Cursor
	scope   *txScope
	wrapErr func(error) error

	current *Record
	done    bool
	err     error
}

func newResult(cursor Cursor, scope *txScope, wrapErr func(error) error) *Result {
	return &Result{cursor: cursor, scope: scope, wrapErr: wrapErr}
}

// Next advances to the next row. It returns false when the rows are exhausted,
// an error occurred, or the transaction is closed; check Err afterwards. Once
// the transaction has closed, Err reports ErrResultClosed.
func (r *Result) Next(ctx context.Context) bool {
	if r.scope.closed.Load() {
		r.current = nil
		r.err = ErrResultClosed
		return false
	}
	if r.done || r.err != nil {
		return false
	}
	if !r.cursor.Next(ctx) {
		r.done = true
		r.current = nil
		if err := r.cursor.Err(); err != nil {
			r.err = r.wrapErr(err)
		}
		return false
	}
	r.current = r.cursor.Record()
	return true
}

// Record returns the row Next advanced to. Once the transaction has closed it
// returns nil and Err reports ErrResultClosed, whether or not Next was called.
func (r *Result) Record() *Record {
	if r.scope.closed.Load() {
		return nil
	}
	return r.current
}

// Err returns the error that stopped iteration, if any.
func (r *Result) Err() error {
	if r.scope.closed.Load() {
		return ErrResultClosed
	}
	return r.err
}

// Single returns the only remaining row. It fails with *CardinalityError when
// there are zero rows or more than one.
func (r *Result) Single(ctx context.Context) (*Record, error) {
	if !r.Next(ctx) {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return nil, &CardinalityError{Got: 0}
	}
	first := r.current
	if !r.Next(ctx) {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return first, nil
	}
	got := 2
	for r.Next(ctx) {
		got++
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return nil, &CardinalityError{Got: got}
}

// Collect drains the remaining rows.
func (r *Result) Collect(ctx context.Context) ([]*Record, error) {
	var records []*Record
	for r.Next(ctx) {
		records = append(records, r.current)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
