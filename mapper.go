package neogm

import (
	"fmt"
	"reflect"
)

// NodeIntent is the write intent for one entity instance of an object graph.
type NodeIntent struct {
	Index int
	Meta  *EntityMetadata
	// ID is the store identity, or "" for an entity that was never persisted.
	ID    string
	Props map[string]any

	entity reflect.Value
}

// IsNew reports whether the entity has never been persisted.
func (n *NodeIntent) IsNew() bool { return n.ID == "" }

// RelationshipIntent is the write intent for one relationship. From and To
// are indices into Graph.Nodes, already oriented start to end.
type RelationshipIntent struct {
	Index      int
	Descriptor *RelationshipDescriptor
	Type       string
	From       int
	To         int
	// ID is the identity of a relationship entity, or "".
	ID    string
	Props map[string]any

	// entity is the relationship entity instance; invalid for bare relationships.
	entity reflect.Value
}

// Graph is the flattened form of an object graph: a table of nodes and a table
// of relationships referencing nodes by index.
type Graph struct {
	Nodes         []*NodeIntent
	Relationships []*RelationshipIntent
}

// Mapper translates between object graphs and graph store records.
type Mapper struct {
	registry *Registry
}

// NewMapper returns a Mapper for the entities of registry.
func NewMapper(registry *Registry) *Mapper {
	return &Mapper{registry: registry}
}

// Flatten walks every entity reachable from root and returns one intent per
// distinct instance and per relationship. Instances are told apart by pointer
// identity, so shared references and cycles produce a single node intent while
// every relationship leading to them is still emitted.
func (m *Mapper) Flatten(root any) (*Graph, error) {
	v := reflect.ValueOf(root)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, fmt.Errorf("%w: entity must be a non-nil pointer, got %T", ErrInvalidEntity, root)
	}
	meta, err := m.registry.lookupType(v.Type())
	if err != nil {
		return nil, err
	}
	if meta.Kind != NodeEntity {
		return nil, fmt.Errorf("%w: %s is a relationship entity and cannot be saved on its own", ErrInvalidEntity, meta.Type.Name())
	}

	f := &flattener{
		registry: m.registry,
		graph:    &Graph{},
		nodes:    make(map[any]int),
		relEnts:  make(map[any]bool),
		bare:     make(map[bareKey]bool),
	}
	if _, err := f.node(v, meta); err != nil {
		return nil, err
	}
	return f.graph, nil
}

type bareKey struct {
	relType  string
	from, to int
}

type flattener struct {
	registry *Registry
	graph    *Graph
	// nodes maps an instance pointer to its index in graph.Nodes.
	nodes   map[any]int
	relEnts map[any]bool
	bare    map[bareKey]bool
}

func (f *flattener) node(v reflect.Value, meta *EntityMetadata) (int, error) {
	key := v.Interface()
	if idx, seen := f.nodes[key]; seen {
		return idx, nil
	}

	props, err := meta.Values(v)
	if err != nil {
		return 0, err
	}
	idx := len(f.graph.Nodes)
	f.graph.Nodes = append(f.graph.Nodes, &NodeIntent{
		Index:  idx,
		Meta:   meta,
		ID:     meta.ID(v),
		Props:  props,
		entity: v,
	})
	// Registered before descending so a cycle back to v stops here.
	f.nodes[key] = idx

	for _, desc := range meta.Relationships {
		elems, err := relationshipElements(v.Elem().FieldByIndex(desc.index))
		if err != nil {
			return 0, fmt.Errorf("%s.%s: %w", meta.Type.Name(), desc.Field, err)
		}
		if err := desc.checkCardinality(len(elems)); err != nil {
			return 0, err
		}
		for _, elem := range elems {
			if err := f.relationship(idx, desc, elem); err != nil {
				return 0, err
			}
		}
	}
	return idx, nil
}

func (f *flattener) relationship(owner int, desc *RelationshipDescriptor, elem reflect.Value) error {
	targetMeta := f.registry.types[desc.Target]

	if !desc.HasProperties() {
		target, err := f.node(elem, targetMeta)
		if err != nil {
			return err
		}
		from, to := orient(desc.Direction, owner, target)
		key := bareKey{relType: desc.Type, from: from, to: to}
		if f.bare[key] {
			return nil
		}
		f.bare[key] = true
		f.add(&RelationshipIntent{Descriptor: desc, Type: desc.Type, From: from, To: to, Props: map[string]any{}})
		return nil
	}

	if f.relEnts[elem.Interface()] {
		return nil
	}
	f.relEnts[elem.Interface()] = true

	relMeta := desc.Properties
	targetVal := elem.Elem().FieldByIndex(relMeta.targetIndex)
	if targetVal.IsNil() {
		return fmt.Errorf("%w: %s has no %s", ErrInvalidEntity, relMeta.Type.Name(), relMeta.TargetField)
	}
	target, err := f.node(targetVal, targetMeta)
	if err != nil {
		return err
	}
	props, err := relMeta.Values(elem)
	if err != nil {
		return err
	}
	from, to := orient(desc.Direction, owner, target)
	f.add(&RelationshipIntent{
		Descriptor: desc,
		Type:       desc.Type,
		From:       from,
		To:         to,
		ID:         relMeta.ID(elem),
		Props:      props,
		entity:     elem,
	})
	return nil
}

func (f *flattener) add(rel *RelationshipIntent) {
	rel.Index = len(f.graph.Relationships)
	f.graph.Relationships = append(f.graph.Relationships, rel)
}

func orient(dir Direction, owner, target int) (from, to int) {
	if dir == Incoming {
		return target, owner
	}
	return owner, target
}

// relationshipElements returns the non-nil pointers held by a relationship
// field (*T or []*T).
func relationshipElements(field reflect.Value) ([]reflect.Value, error) {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		return []reflect.Value{field}, nil
	}
	elems := make([]reflect.Value, 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		e := field.Index(i)
		if e.IsNil() {
			return nil, fmt.Errorf("%w: nil element at index %d", ErrInvalidEntity, i)
		}
		elems = append(elems, e)
	}
	return elems, nil
}
