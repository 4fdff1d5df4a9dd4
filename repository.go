package neogm

import (
	"context"
	"fmt"
	"reflect"
)

// Repository provides typed finders and CRUD operations for one node entity
// type T. Loads bring back T together with the entities around it, up to the
// manager's load depth.
type Repository[T any] struct {
	pm   *PersistenceManager
	meta *EntityMetadata
}

func newRepository[T any](pm *PersistenceManager) (*Repository[T], error) {
	meta, err := pm.registry.lookupType(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	if meta.Kind != NodeEntity {
		return nil, fmt.Errorf("%w: %s is not a node entity", ErrInvalidEntity, meta.Type.Name())
	}
	return &Repository[T]{pm: pm, meta: meta}, nil
}

// Metadata returns the mapping of T.
func (r *Repository[T]) Metadata() *EntityMetadata { return r.meta }

// Save persists entity and the object graph reachable from it.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	An error if mapping, planning or the write transaction fails.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	return r.pm.Save(ctx, entity)
}

// FindByID retrieves a single entity from the database by its store identity.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - id: The element id of the entity to find.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if no record is found, or another
//	error if the query or mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindOne(ctx, r.pm.queries.FindByID(r.meta.Label, id))
}

// FindByProperty returns the only entity whose property equals value. It fails
// with ErrNotFound when none matches and *CardinalityError when several do.
func (r *Repository[T]) FindByProperty(ctx context.Context, property string, value any) (*T, error) {
	stmt, err := r.findBy(property, value)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, stmt)
}

// FindAllByProperty returns every entity whose property equals value.
func (r *Repository[T]) FindAllByProperty(ctx context.Context, property string, value any) ([]*T, error) {
	stmt, err := r.findBy(property, value)
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, stmt)
}

// FindAll returns every stored entity of type T.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	stmt, err := r.pm.queries.FindAll(r.meta.Label)
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, stmt)
}

// FindOne runs a caller-written read statement that must yield exactly one
// entity of type T. See Find for the expected row shape.
func (r *Repository[T]) FindOne(ctx context.Context, stmt Statement) (*T, error) {
	found, err := r.Find(ctx, stmt)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, &CardinalityError{Got: len(found)}
	}
}

// Find runs a caller-written read statement and hydrates one T per distinct
// root node. The root is the node returned as n, or else the first node in the
// row labelled like T; everything else returned alongside it (relationships,
// paths, lists of them) is used to fill its relationship fields.
func (r *Repository[T]) Find(ctx context.Context, stmt Statement) ([]*T, error) {
	loaded, err := r.pm.load(ctx, r.meta, stmt)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(loaded))
	for i, v := range loaded {
		out[i] = v.(*T)
	}
	return out, nil
}

// Count returns the number of stored entities of type T.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	stmt, err := r.pm.queries.Count(r.meta.Label)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, stmt)
}

// CountByProperty returns the number of entities whose property equals value.
func (r *Repository[T]) CountByProperty(ctx context.Context, property string, value any) (int64, error) {
	if !r.meta.hasProperty(property) {
		return 0, fmt.Errorf("%w: %s has no property %s", ErrInvalidEntity, r.meta.Label, property)
	}
	stmt, err := r.pm.queries.CountBy(FindRequest{Label: r.meta.Label, Property: property, Value: value})
	if err != nil {
		return 0, err
	}
	return r.count(ctx, stmt)
}

// Delete removes a persisted entity and the relationships attached to it.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.pm.Delete(ctx, entity)
}

// DeleteByID removes the entity with the given identity, if it exists.
func (r *Repository[T]) DeleteByID(ctx context.Context, id string) error {
	return r.pm.executor.WriteAll(ctx, r.pm.queries.DeleteByID(r.meta.Label, id))
}

// DeleteAll removes every stored entity of type T.
func (r *Repository[T]) DeleteAll(ctx context.Context) error {
	return r.pm.DeleteAll(ctx, (*T)(nil))
}

func (r *Repository[T]) findBy(property string, value any) (Statement, error) {
	if !r.meta.hasProperty(property) {
		return Statement{}, fmt.Errorf("%w: %s has no property %s", ErrInvalidEntity, r.meta.Label, property)
	}
	return r.pm.queries.FindBy(FindRequest{Label: r.meta.Label, Property: property, Value: value})
}

func (r *Repository[T]) count(ctx context.Context, stmt Statement) (int64, error) {
	record, err := r.pm.executor.ReadSingle(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if len(record.Values) == 0 {
		return 0, fmt.Errorf("count query returned no columns")
	}
	n, ok := record.Values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("count query returned %T, not an integer", record.Values[0])
	}
	return n, nil
}
