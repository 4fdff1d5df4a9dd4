package neogm

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jDriver is the Driver backed by the official Neo4j Go driver. It owns
// the connection pool; call Close when done.
type Neo4jDriver struct {
	driver neo4j.DriverWithContext
	config Config
}

// NewNeo4jDriver validates cfg and creates the underlying driver. No
// connection is made until the first session is used or Verify is called.
//
// Parameters:
//   - cfg: The connection settings. See DefaultConfig.
//
// Returns:
//
//	The driver, or a *ConnectionError if the configuration is invalid or the
//	driver cannot be created.
func NewNeo4jDriver(cfg Config) (*Neo4jDriver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
	})
	if err != nil {
		return nil, &ConnectionError{Op: "create driver", Err: err}
	}
	return &Neo4jDriver{driver: driver, config: cfg}, nil
}

// Verify checks that the server is reachable with the configured credentials.
func (d *Neo4jDriver) Verify(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return &ConnectionError{Op: "verify connectivity", Err: err}
	}
	return nil
}

// Close releases every pooled connection.
func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// OpenSession implements Driver.
func (d *Neo4jDriver) OpenSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	mode := neo4j.AccessModeWrite
	if cfg.AccessMode == AccessRead {
		mode = neo4j.AccessModeRead
	}
	sess := d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: cfg.Database,
		AccessMode:   mode,
	})
	return &neo4jSession{session: sess, config: d.config}, nil
}

type neo4jSession struct {
	session neo4j.SessionWithContext
	config  Config
}

func (s *neo4jSession) BeginTransaction(ctx context.Context) (Transaction, error) {
	var opts []func(*neo4j.TransactionConfig)
	if s.config.TransactionTimeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(s.config.TransactionTimeout))
	}
	tx, err := s.session.BeginTransaction(ctx, opts...)
	if err != nil {
		return nil, translateError("begin transaction", err)
	}
	return &neo4jTransaction{tx: tx}, nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

type neo4jTransaction struct {
	tx neo4j.ExplicitTransaction
}

func (t *neo4jTransaction) Run(ctx context.Context, statement string, params map[string]any) (Cursor, error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, translateError("run", err)
	}
	return &neo4jCursor{result: res}, nil
}

func (t *neo4jTransaction) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return translateError("commit", err)
	}
	return nil
}

func (t *neo4jTransaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type neo4jCursor struct {
	result neo4j.ResultWithContext
	record *Record
}

func (c *neo4jCursor) Next(ctx context.Context) bool {
	if !c.result.Next(ctx) {
		c.record = nil
		return false
	}
	raw := c.result.Record()
	values := make([]any, len(raw.Values))
	for i, v := range raw.Values {
		values[i] = fromNeo4j(v)
	}
	c.record = &Record{Keys: raw.Keys, Values: values}
	return true
}

func (c *neo4jCursor) Record() *Record { return c.record }

func (c *neo4jCursor) Err() error {
	if err := c.result.Err(); err != nil {
		return translateError("fetch", err)
	}
	return nil
}

// translateError maps driver failures onto the package's error model:
// connectivity problems become *ConnectionError, and failures the driver
// considers safe to retry are marked with ErrTransient.
func translateError(op string, err error) error {
	switch {
	case neo4j.IsConnectivityError(err):
		return &ConnectionError{Op: op, Err: err}
	case neo4j.IsRetryable(err):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// fromNeo4j converts driver values into the transport-neutral types carried
// by Record.
func fromNeo4j(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return nodeFromNeo4j(val)
	case neo4j.Relationship:
		return edgeFromNeo4j(val)
	case neo4j.Path:
		p := Path{
			Nodes:         make([]GraphNode, len(val.Nodes)),
			Relationships: make([]Edge, len(val.Relationships)),
		}
		for i, n := range val.Nodes {
			p.Nodes[i] = nodeFromNeo4j(n)
		}
		for i, r := range val.Relationships {
			p.Relationships[i] = edgeFromNeo4j(r)
		}
		return p
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = fromNeo4j(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = fromNeo4j(e)
		}
		return out
	default:
		return v
	}
}

func nodeFromNeo4j(n neo4j.Node) GraphNode {
	return GraphNode{ID: n.ElementId, Labels: n.Labels, Properties: n.Props}
}

func edgeFromNeo4j(r neo4j.Relationship) Edge {
	return Edge{
		ID:         r.ElementId,
		Source:     r.StartElementId,
		Target:     r.EndElementId,
		Type:       r.Type,
		Properties: r.Props,
	}
}
