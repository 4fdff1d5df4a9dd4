package neogm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/saulfrancisco-ruizacevedo/go-neogm"
	rollbackTimeout = 10 * time.Second
)

// TxFunc is the unit of work run inside a transaction. It may be called more
// than once for write transactions, so it must be safe to re-run in full and
// must not keep Results past its return.
type TxFunc func(ctx context.Context, tx *Tx) error

// RetryPolicy controls how write transactions are retried after transient
// failures. Delays grow exponentially from InitialDelay up to MaxDelay.
type RetryPolicy struct {
	MaxRetryTime time.Duration
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy mirrors the Neo4j driver's managed transaction policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetryTime: 30 * time.Second,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) next(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * p.Multiplier)
	if next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

// Executor runs units of work as read or write transactions. Each call
// acquires its own session and releases it on every exit path, so an Executor
// is safe for concurrent use as long as its Driver is.
type Executor struct {
	driver   Driver
	database string
	retry    RetryPolicy
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDatabase selects the database sessions are opened against.
func WithDatabase(name string) ExecutorOption {
	return func(e *Executor) { e.database = name }
}

// WithRetryPolicy replaces the default write retry policy.
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retry = p }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithTracer sets the tracer used for transaction spans. The default is the
// global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an Executor on top of a transport driver.
func NewExecutor(driver Driver, opts ...ExecutorOption) *Executor {
	e := &Executor{
		driver: driver,
		retry:  DefaultRetryPolicy(),
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Write runs work in a write transaction. Transient failures roll the attempt
// back and run work again in a new transaction until it succeeds or the retry
// policy's time budget is spent.
func (e *Executor) Write(ctx context.Context, work TxFunc) error {
	return e.execute(ctx, AccessWrite, work)
}

// Read runs work once in a read transaction, which the transport may route to
// any replica.
func (e *Executor) Read(ctx context.Context, work TxFunc) error {
	return e.execute(ctx, AccessRead, work)
}

// ReadAll runs a single statement in a read transaction and returns its rows.
func (e *Executor) ReadAll(ctx context.Context, stmt Statement) ([]*Record, error) {
	var records []*Record
	err := e.Read(ctx, func(ctx context.Context, tx *Tx) error {
		res, err := tx.Run(ctx, stmt)
		if err != nil {
			return err
		}
		records, err = res.Collect(ctx)
		return err
	})
	return records, err
}

// ReadSingle runs a single statement in a read transaction and returns its
// only row, failing with *CardinalityError otherwise.
func (e *Executor) ReadSingle(ctx context.Context, stmt Statement) (*Record, error) {
	var record *Record
	err := e.Read(ctx, func(ctx context.Context, tx *Tx) error {
		res, err := tx.Run(ctx, stmt)
		if err != nil {
			return err
		}
		record, err = res.Single(ctx)
		return err
	})
	return record, err
}

// WriteAll runs statements in order in one write transaction and discards
// their rows.
func (e *Executor) WriteAll(ctx context.Context, stmts ...Statement) error {
	return e.Write(ctx, func(ctx context.Context, tx *Tx) error {
		for _, stmt := range stmts {
			res, err := tx.Run(ctx, stmt)
			if err != nil {
				return err
			}
			if _, err := res.Collect(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Executor) execute(ctx context.Context, mode AccessMode, work TxFunc) (err error) {
	txID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "neogm.tx."+mode.String(), trace.WithAttributes(
		attribute.String("neogm.tx_id", txID),
		attribute.String("neogm.database", e.database),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := e.logger.With("tx", txID, "mode", mode.String())

	sess, err := e.driver.OpenSession(ctx, SessionConfig{Database: e.database, AccessMode: mode})
	if err != nil {
		return asConnectionError("open session", err)
	}
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("closing session failed", "error", cerr)
		}
	}()

	start := time.Now()
	delay := e.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		span.SetAttributes(attribute.Int("neogm.attempts", attempt))
		err = e.attempt(ctx, sess, mode, work, logger)
		if err == nil {
			logger.Debug("transaction committed", "attempt", attempt, "elapsed", time.Since(start))
			return nil
		}
		if mode == AccessRead || !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("transaction aborted: %w", ctx.Err())
		}
		if time.Since(start)+delay > e.retry.MaxRetryTime {
			logger.Error("transaction retries exhausted", "attempts", attempt, "error", err)
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		logger.Warn("transient failure, retrying transaction", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("transaction aborted: %w", ctx.Err())
		}
		delay = e.retry.next(delay)
	}
}

// attempt runs work in one transaction. Results are invalidated before the
// commit, and the transaction is rolled back on every path that does not
// commit, including caller cancellation.
func (e *Executor) attempt(ctx context.Context, sess Session, mode AccessMode, work TxFunc, logger *slog.Logger) error {
	ttx, err := sess.BeginTransaction(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}

	scope := &txScope{}
	committed := false
	defer func() {
		scope.close()
		if committed {
			return
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if rerr := ttx.Rollback(rctx); rerr != nil {
			logger.Debug("rollback failed", "error", rerr)
		}
	}()

	tx := &Tx{tx: ttx, scope: scope, mode: mode, logger: logger}
	if err := work(ctx, tx); err != nil {
		return err
	}
	scope.close()
	if err := ttx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	committed = true
	return nil
}

// Tx is the handle given to a TxFunc.
type Tx struct {
	tx     Transaction
	scope  *txScope
	mode   AccessMode
	logger *slog.Logger
}

// Mode reports whether the transaction is a read or a write transaction.
func (t *Tx) Mode() AccessMode { return t.mode }

// Run executes one statement. Store failures are logged with the statement
// and parameters and returned as *StoreQueryError; connectivity failures are
// returned as *ConnectionError.
func (t *Tx) Run(ctx context.Context, stmt Statement) (*Result, error) {
	if t.scope.closed.Load() {
		return nil, ErrResultClosed
	}
	wrap := func(err error) error { return t.fail(ctx, stmt, err) }
	cursor, err := t.tx.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return nil, wrap(err)
	}
	return newResult(cursor, t.scope, wrap), nil
}

func (t *Tx) fail(ctx context.Context, stmt Statement, err error) error {
	var connErr *ConnectionError
	switch {
	case errors.As(err, &connErr):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("statement aborted: %w", err)
	}
	t.logger.Error("statement raised an error",
		"statement", oneLine(stmt.Text),
		"params", stmt.Params,
		"error", err,
	)
	return &StoreQueryError{Statement: stmt.Text, Params: stmt.Params, Err: err}
}

func isTransient(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func classify(op string, err error) error {
	var connErr *ConnectionError
	if errors.As(err, &connErr) || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func asConnectionError(op string, err error) error {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
