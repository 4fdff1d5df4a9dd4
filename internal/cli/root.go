// Package cli implements the movies command.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neogm"
	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
	"github.com/saulfrancisco-ruizacevedo/go-neogm/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool

	// Connect opens the store. Defaults to a Neo4j driver; tests replace it.
	Connect func(ctx context.Context, cfg neogm.Config) (neogm.Driver, func(context.Context) error, error)
}

// NewRootCommand creates the root command for the movies CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Connect: connectNeo4j})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movies",
		Short: "Seed and query the movie graph",
		Long: `Seed and query a movie graph stored in Neo4j.

Settings come from an optional YAML file (--config), a .env file and
NEOGM_* environment variables, in increasing order of precedence. Nested
keys join with underscores: neo4j.uri is read from NEOGM_NEO4J_URI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewMovieCommand(opts))
	cmd.AddCommand(NewPersonCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewKnowsCommand(opts))
	cmd.AddCommand(NewWipeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// session is what every subcommand works with once the store is open.
type session struct {
	manager *neogm.PersistenceManager
	logger  *slog.Logger
	close   func(context.Context) error
}

// loadConfig reads the dotenv file, then the layered configuration.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.EnvFile != "" {
		// A missing dotenv file is normal; the environment may be set already.
		_ = godotenv.Load(o.EnvFile)
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// open loads the configuration, builds the logger and connects to the store.
func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	registry, err := neogm.NewRegistry(models.Entities()...)
	if err != nil {
		return nil, err
	}
	store := cfg.Store()
	driver, closeFn, err := o.Connect(cmd.Context(), store)
	if err != nil {
		return nil, err
	}
	logger.Debug("connected", "uri", store.URI, "database", store.Database)
	return &session{
		manager: neogm.NewPersistenceManager(driver, registry, store, neogm.WithLogger(logger)),
		logger:  logger,
		close:   closeFn,
	}, nil
}

func (s *session) Close(ctx context.Context) {
	if err := s.close(ctx); err != nil {
		s.logger.Warn("closing driver failed", "error", err)
	}
}

// withSession runs fn with an open session and closes it afterwards.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(cmd.Context()))
	return fn(cmd.Context(), s)
}

func connectNeo4j(ctx context.Context, cfg neogm.Config) (neogm.Driver, func(context.Context) error, error) {
	driver, err := neogm.NewNeo4jDriver(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := driver.Verify(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, nil, fmt.Errorf("could not connect to %s: %w", cfg.URI, err)
	}
	return driver, driver.Close, nil
}
