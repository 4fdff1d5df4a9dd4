package neogm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultLoadDepth, cfg.LoadDepth)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		reason string
	}{
		{name: "empty uri", mutate: func(c *Config) { c.URI = "" }, reason: "URI"},
		{name: "empty username", mutate: func(c *Config) { c.Username = "" }, reason: "Username"},
		{name: "empty password", mutate: func(c *Config) { c.Password = "" }, reason: "Password"},
		{name: "no connection timeout", mutate: func(c *Config) { c.ConnectionTimeout = 0 }, reason: "ConnectionTimeout"},
		{name: "no retry time", mutate: func(c *Config) { c.MaxTransactionRetryTime = -time.Second }, reason: "MaxTransactionRetryTime"},
		{name: "negative tx timeout", mutate: func(c *Config) { c.TransactionTimeout = -time.Second }, reason: "TransactionTimeout"},
		{name: "depth too large", mutate: func(c *Config) { c.LoadDepth = MaxLoadDepth + 1 }, reason: "LoadDepth"},
		{name: "negative depth", mutate: func(c *Config) { c.LoadDepth = -1 }, reason: "LoadDepth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var connErr *ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, "configure", connErr.Op)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestConfigRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransactionRetryTime = 5 * time.Second
	p := cfg.RetryPolicy()
	assert.Equal(t, 5*time.Second, p.MaxRetryTime)
	assert.Equal(t, DefaultRetryPolicy().InitialDelay, p.InitialDelay)

	cfg.MaxTransactionRetryTime = 0
	assert.Equal(t, DefaultRetryPolicy().MaxRetryTime, cfg.RetryPolicy().MaxRetryTime)
}
