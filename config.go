package neogm

import (
	"errors"
	"time"
)

// Config contains the connection and behaviour settings of a PersistenceManager.
type Config struct {
	// URI is the connection URI of the store.
	// For Neo4j, use:
	//   - "bolt://host:port" for a single instance
	//   - "bolt+s://host:port" for TLS encrypted connections
	//   - "neo4j://" or "neo4j+s://" for cluster routing
	URI string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// Database name to connect to. Empty uses the server default.
	Database string

	// MaxConnectionPoolSize limits the number of pooled connections.
	// Zero or negative values use the driver default.
	MaxConnectionPoolSize int

	// ConnectionTimeout is the maximum time to wait for a pooled connection.
	ConnectionTimeout time.Duration

	// MaxTransactionRetryTime bounds how long a write transaction keeps being
	// retried after transient failures.
	MaxTransactionRetryTime time.Duration

	// TransactionTimeout is enforced by the server on every transaction.
	// Zero uses the server default.
	TransactionTimeout time.Duration

	// LoadDepth is how many relationship hops FindByID and friends load
	// around the returned entity.
	LoadDepth int
}

// DefaultConfig returns a Config with sensible defaults for a local server.
func DefaultConfig() Config {
	return Config{
		URI:                     "bolt://localhost:7687",
		Username:                "neo4j",
		Password:                "password",
		Database:                "neo4j",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 30 * time.Second,
		LoadDepth:               DefaultLoadDepth,
	}
}

// Validate checks that the configuration can be used to connect. Problems are
// reported as *ConnectionError because they prevent any connection.
func (c Config) Validate() error {
	var reason string
	switch {
	case c.URI == "":
		reason = "URI cannot be empty"
	case c.Username == "":
		reason = "Username cannot be empty"
	case c.Password == "":
		reason = "Password cannot be empty"
	case c.ConnectionTimeout <= 0:
		reason = "ConnectionTimeout must be positive"
	case c.MaxTransactionRetryTime <= 0:
		reason = "MaxTransactionRetryTime must be positive"
	case c.TransactionTimeout < 0:
		reason = "TransactionTimeout cannot be negative"
	case c.LoadDepth < 0 || c.LoadDepth > MaxLoadDepth:
		reason = "LoadDepth must be between 0 and 10"
	default:
		return nil
	}
	return &ConnectionError{Op: "configure", Err: errors.New(reason)}
}

// RetryPolicy returns the write retry policy implied by the configuration.
func (c Config) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	if c.MaxTransactionRetryTime > 0 {
		p.MaxRetryTime = c.MaxTransactionRetryTime
	}
	return p
}
