package neogm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// PersistenceManager is the central orchestrator for the persistence layer.
// It owns the entity registry, the mapper and planner built on it, and the
// executor that runs every operation in a transaction. Repositories and
// cross-entity operations such as creating relationships go through it.
//
// A PersistenceManager is safe for concurrent use.
type PersistenceManager struct {
	registry *Registry
	mapper   *Mapper
	planner  *Planner
	queries  *QueryBuilder
	executor *Executor
	logger   *slog.Logger
}

// NewPersistenceManager creates a PersistenceManager on top of a transport
// driver.
//
// Parameters:
//   - driver: The transport, usually a *Neo4jDriver.
//   - registry: The mapped entity types.
//   - cfg: Supplies the database name, the write retry budget and the load depth.
//   - opts: Extra executor options such as WithLogger or WithTracer.
//
// Returns:
//
//	A ready to use PersistenceManager.
func NewPersistenceManager(driver Driver, registry *Registry, cfg Config, opts ...ExecutorOption) *PersistenceManager {
	base := []ExecutorOption{WithDatabase(cfg.Database), WithRetryPolicy(cfg.RetryPolicy())}
	executor := NewExecutor(driver, append(base, opts...)...)
	mapper := NewMapper(registry)
	queries := NewQueryBuilder(cfg.LoadDepth)
	return &PersistenceManager{
		registry: registry,
		mapper:   mapper,
		planner:  NewPlanner(mapper, queries),
		queries:  queries,
		executor: executor,
		logger:   executor.logger,
	}
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given PersistenceManager.
// T must be a registered node entity.
func RepositoryFor[T any](pm *PersistenceManager) (*Repository[T], error) {
	return newRepository[T](pm)
}

// Registry returns the mapped entity types.
func (pm *PersistenceManager) Registry() *Registry { return pm.registry }

// Executor returns the executor, for callers that need their own units of work.
func (pm *PersistenceManager) Executor() *Executor { return pm.executor }

// Save persists entity and everything reachable from it in one write
// transaction. New entities and relationship entities get their store
// identity written back once the transaction has committed; on failure the
// instances are left as they were.
//
// Saving is additive: relationships that are no longer referenced by the
// object graph are kept in the store.
func (pm *PersistenceManager) Save(ctx context.Context, entity any) error {
	plan, err := pm.planner.Plan(entity)
	if err != nil {
		return err
	}
	if err := pm.executor.Write(ctx, plan.Apply); err != nil {
		return err
	}
	plan.commit()
	pm.logger.Debug("object graph saved",
		"nodes", len(plan.Graph.Nodes),
		"relationships", len(plan.Graph.Relationships),
	)
	return nil
}

// Delete removes a persisted entity and every relationship attached to it.
// Entities reachable from it are left alone.
func (pm *PersistenceManager) Delete(ctx context.Context, entity any) error {
	meta, id, err := pm.persisted(entity)
	if err != nil {
		return err
	}
	return pm.executor.WriteAll(ctx, pm.queries.DeleteByID(meta.Label, id))
}

// DeleteAll removes every node of the entity's type, with its relationships.
// entity is only used for its type; a nil pointer such as (*Movie)(nil) works.
func (pm *PersistenceManager) DeleteAll(ctx context.Context, entity any) error {
	meta, err := pm.nodeMeta(entity)
	if err != nil {
		return err
	}
	stmt, err := pm.queries.DeleteAll(meta.Label)
	if err != nil {
		return err
	}
	return pm.executor.WriteAll(ctx, stmt)
}

// CreateRelation creates a directed relationship between two persisted
// entities, or updates its properties when one of that type already exists
// between them.
func (pm *PersistenceManager) CreateRelation(ctx context.Context, fromEntity any, toEntity any, relType string, relProps map[string]any) error {
	_, fromID, err := pm.persisted(fromEntity)
	if err != nil {
		return err
	}
	_, toID, err := pm.persisted(toEntity)
	if err != nil {
		return err
	}
	if err := checkIdentifiers(relType); err != nil {
		return err
	}
	stmt := pm.queries.MergeRelationship(relType, fromID, toID, relProps)
	return pm.executor.Write(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := runForID(ctx, tx, stmt)
		if IsNotFound(err) {
			return fmt.Errorf("%s relationship endpoints no longer exist: %w", relType, ErrNotFound)
		}
		return err
	})
}

// DeleteRelation removes the relationships of relType going from fromEntity to
// toEntity. Both entities stay in place.
func (pm *PersistenceManager) DeleteRelation(ctx context.Context, fromEntity any, toEntity any, relType string) error {
	_, fromID, err := pm.persisted(fromEntity)
	if err != nil {
		return err
	}
	_, toID, err := pm.persisted(toEntity)
	if err != nil {
		return err
	}
	if err := checkIdentifiers(relType); err != nil {
		return err
	}
	return pm.executor.WriteAll(ctx, pm.queries.DeleteRelationship(relType, fromID, toID))
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// This method is domain-agnostic; it does not need to know about the mapped
// entity types. Its primary role is to translate the raw graph elements
// returned by a Cypher query into a clean, serializable format suitable for
// frontends or other services.
//
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes and relationships should be included in the
// final graph. For example, `RETURN m, r, p`. Paths and lists are walked too.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - qb: A pointer to a configured gocypher.QueryBuilder instance that defines the graph to retrieve.
//
// Returns:
//   - A pointer to a GraphResult containing the de-duplicated nodes and edges from the query.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (pm *PersistenceManager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*GraphResult, error) {
	stmt, err := FromBuilder(qb)
	if err != nil {
		return nil, err
	}
	records, err := pm.executor.ReadAll(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return graphFromRecords(records), nil
}

// Query runs a read statement and returns its rows as they came back.
func (pm *PersistenceManager) Query(ctx context.Context, stmt Statement) ([]*Record, error) {
	return pm.executor.ReadAll(ctx, stmt)
}

// FindBy resolves a finder named after the findXByY convention, such as
// "findPersonByName", against the registry and returns every matching entity
// as a pointer to its registered type.
func (pm *PersistenceManager) FindBy(ctx context.Context, finder string, value any) ([]any, error) {
	meta, property, err := pm.resolveFinder(finder)
	if err != nil {
		return nil, err
	}
	stmt, err := pm.queries.FindBy(FindRequest{Label: meta.Label, Property: property, Value: value})
	if err != nil {
		return nil, err
	}
	return pm.load(ctx, meta, stmt)
}

// resolveFinder picks the reading of a finder name whose label is registered
// and maps the property.
func (pm *PersistenceManager) resolveFinder(finder string) (*EntityMetadata, string, error) {
	splits, err := finderSplits(finder)
	if err != nil {
		return nil, "", err
	}
	var labelled *EntityMetadata
	for _, split := range splits {
		meta, ok := pm.registry.ByLabel(split.Label)
		if !ok {
			continue
		}
		if meta.hasProperty(split.Property) {
			return meta, split.Property, nil
		}
		if labelled == nil {
			labelled = meta
		}
	}
	if labelled != nil {
		return nil, "", fmt.Errorf("%w: finder %s names no property of %s", ErrInvalidEntity, finder, labelled.Label)
	}
	return nil, "", fmt.Errorf("%w: finder %s names no registered label", ErrInvalidEntity, finder)
}

// load runs a read statement and hydrates one entity per distinct root node.
// Rows carry the root node in column n, or as their first node with the
// entity's label; every other node, relationship, path or list in the row
// feeds the graph the roots are rebuilt from.
func (pm *PersistenceManager) load(ctx context.Context, meta *EntityMetadata, stmt Statement) ([]any, error) {
	records, err := pm.executor.ReadAll(ctx, stmt)
	if err != nil {
		return nil, err
	}
	graph := graphFromRecords(records)
	seen := make(map[string]bool, len(records))
	var roots []string
	for _, record := range records {
		root, ok := rootNode(record, meta.Label)
		if !ok || seen[root.ID] {
			continue
		}
		seen[root.ID] = true
		roots = append(roots, root.ID)
	}
	if len(roots) == 0 {
		return nil, nil
	}
	return pm.mapper.HydrateAll(meta, roots, graph)
}

func rootNode(record *Record, label string) (GraphNode, bool) {
	if v, ok := record.Get("n"); ok {
		if n, ok := v.(GraphNode); ok && hasLabel(&n, label) {
			return n, true
		}
	}
	for _, v := range record.Values {
		if n, ok := v.(GraphNode); ok && hasLabel(&n, label) {
			return n, true
		}
	}
	return GraphNode{}, false
}

func (pm *PersistenceManager) nodeMeta(entity any) (*EntityMetadata, error) {
	meta, err := pm.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	if meta.Kind != NodeEntity {
		return nil, fmt.Errorf("%w: %s is not a node entity", ErrInvalidEntity, meta.Type.Name())
	}
	return meta, nil
}

// persisted returns the metadata and identity of an entity that must already
// exist in the store.
func (pm *PersistenceManager) persisted(entity any) (*EntityMetadata, string, error) {
	meta, err := pm.nodeMeta(entity)
	if err != nil {
		return nil, "", err
	}
	v := reflectPointer(entity)
	if !v.IsValid() {
		return nil, "", fmt.Errorf("%w: entity must be a non-nil pointer, got %T", ErrInvalidEntity, entity)
	}
	id := meta.ID(v)
	if id == "" {
		return nil, "", fmt.Errorf("%w: %s has not been saved yet", ErrInvalidEntity, meta.Type.Name())
	}
	return meta, id, nil
}
