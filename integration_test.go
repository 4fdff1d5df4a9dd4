//go:build integration
// +build integration

package neogm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
)

// setupNeo4j starts a Neo4j container and returns a manager connected to it.
func setupNeo4j(t *testing.T, ctx context.Context) *PersistenceManager {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithDeadline(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Neo4j container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.URI = fmt.Sprintf("bolt://%s:%s", host, port.Port())
	// Auth is disabled; the password only has to pass validation.
	cfg.Password = "ignored"
	cfg.Database = ""

	driver, err := NewNeo4jDriver(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close(context.Background()) })
	require.NoError(t, driver.Verify(ctx))

	return NewPersistenceManager(driver, MustRegistry(append(models.Entities(), Friend{})...), cfg)
}

func TestNeo4jIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	pm := setupNeo4j(t, ctx)

	movies, err := RepositoryFor[models.Movie](pm)
	require.NoError(t, err)
	people, err := RepositoryFor[models.Person](pm)
	require.NoError(t, err)

	t.Run("save and load", func(t *testing.T) {
		movie, keanu, _, lana := matrix()
		require.NoError(t, movies.Save(ctx, movie))
		require.NotEmpty(t, movie.ID)
		require.NotEmpty(t, movie.Actors[0].ID)

		loaded, err := movies.FindByID(ctx, movie.ID)
		require.NoError(t, err)
		assert.Equal(t, "The Matrix", loaded.Title)
		require.Len(t, loaded.Actors, 2)
		require.Len(t, loaded.Directors, 1)
		assert.Equal(t, lana.ID, loaded.Directors[0].ID)

		var neo *models.Role
		for _, role := range loaded.Actors {
			if role.Person.ID == keanu.ID {
				neo = role
			}
		}
		require.NotNil(t, neo)
		assert.Equal(t, []string{"Neo"}, neo.Roles)
		assert.Equal(t, 1964, *neo.Person.Born)
	})

	t.Run("save is idempotent", func(t *testing.T) {
		movie, _, _, _ := matrix()
		movie.Title = "Idempotent"
		require.NoError(t, movies.Save(ctx, movie))
		require.NoError(t, movies.Save(ctx, movie))

		n, err := movies.CountByProperty(ctx, "title", "Idempotent")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		records, err := pm.Query(ctx, Raw(
			"MATCH (:Person)-[r:ACTED_IN]->(m:Movie) WHERE elementId(m) = $id RETURN count(r) AS n",
			map[string]any{"id": movie.ID},
		))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, int64(2), records[0].Values[0])
	})

	t.Run("find graph", func(t *testing.T) {
		qb := gocypher.NewQueryBuilder().
			Match(gocypher.N("m", "Movie").WithProperties(map[string]any{"title": "The Matrix"})).
			Match(
				gocypher.N("p", "Person"),
				gocypher.R("r", "ACTED_IN").To(),
				gocypher.NRef("m"),
			).
			Return("m", "r", "p")

		graph, err := pm.FindGraph(ctx, qb)
		require.NoError(t, err)
		assert.Len(t, graph.Nodes, 3)
		assert.Len(t, graph.Edges, 2)

		_, err = pm.FindGraph(ctx, gocypher.NewQueryBuilder().
			Match(gocypher.N("m", "Movie").WithProperties(map[string]any{"title": "Missing"})).
			Return("m"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("finders", func(t *testing.T) {
		found, err := pm.FindBy(ctx, "findPersonByName", "Carrie-Anne Moss")
		require.NoError(t, err)
		require.NotEmpty(t, found)
		assert.Equal(t, 1967, *found[0].(*models.Person).Born)

		_, err = people.FindByProperty(ctx, "name", "Nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cycles", func(t *testing.T) {
		alice := &Friend{Name: "Alice"}
		bob := &Friend{Name: "Bob", Knows: []*Friend{alice}}
		alice.Knows = []*Friend{bob}
		require.NoError(t, pm.Save(ctx, alice))

		friends, err := RepositoryFor[Friend](pm)
		require.NoError(t, err)
		loaded, err := friends.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Knows, 1)
		assert.Same(t, loaded, loaded.Knows[0].Knows[0])
	})

	t.Run("concurrent saves", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- people.Save(ctx, &models.Person{Name: fmt.Sprintf("Extra %d", i)})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("statement errors", func(t *testing.T) {
		_, err := pm.Query(ctx, Raw("MATCH (n RETURN n", nil))
		var queryErr *StoreQueryError
		require.True(t, errors.As(err, &queryErr))
		assert.Equal(t, "MATCH (n RETURN n", queryErr.Statement)
	})

	t.Run("delete all", func(t *testing.T) {
		require.NoError(t, movies.DeleteAll(ctx))
		n, err := movies.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
