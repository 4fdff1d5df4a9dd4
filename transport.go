package neogm

import "context"

// AccessMode tells the transport whether a session will write.
type AccessMode int

const (
	// AccessWrite sessions are routed to the cluster leader.
	AccessWrite AccessMode = iota
	// AccessRead sessions may be served by any replica.
	AccessRead
)

func (m AccessMode) String() string {
	if m == AccessRead {
		return "read"
	}
	return "write"
}

// SessionConfig selects the database and routing for a session.
type SessionConfig struct {
	Database   string
	AccessMode AccessMode
}

// Driver is the transport to the graph store. Sessions are pooled by the
// driver; each one must be closed by the caller.
type Driver interface {
	// OpenSession acquires a session. Failures are connection errors.
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is a scoped, non-thread-safe handle to the store.
type Session interface {
	// BeginTransaction starts an explicit transaction.
	BeginTransaction(ctx context.Context) (Transaction, error)
	// Close releases the session back to the driver's pool.
	Close(ctx context.Context) error
}

// Transaction runs parameterized statements until it is committed or rolled back.
type Transaction interface {
	Run(ctx context.Context, statement string, params map[string]any) (Cursor, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Cursor streams the rows of one statement.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() *Record
	Err() error
}

// Record is one returned row. Values hold transport-neutral types: scalars,
// []any, map[string]any, GraphNode, Edge and Path.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value of the column named key.
func (r *Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// AsMap returns the row as a column name to value map.
func (r *Record) AsMap() map[string]any {
	m := make(map[string]any, len(r.Keys))
	for i, k := range r.Keys {
		m[k] = r.Values[i]
	}
	return m
}
