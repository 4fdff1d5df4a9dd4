package neogm

import (
	"fmt"
	"reflect"
)

// Hydrate rebuilds the entity stored under rootID, and everything reachable
// from it in graph, as instances of the registered types. Nodes are memoised by
// element id, so a node reached twice becomes one shared instance. Nodes,
// relationship types and directions the registry does not know are skipped.
//
// The returned value is a pointer to meta.Type.
func (m *Mapper) Hydrate(meta *EntityMetadata, rootID string, graph *GraphResult) (any, error) {
	all, err := m.HydrateAll(meta, []string{rootID}, graph)
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// HydrateAll is Hydrate for several roots sharing one graph.
func (m *Mapper) HydrateAll(meta *EntityMetadata, rootIDs []string, graph *GraphResult) ([]any, error) {
	h := newHydrator(m.registry, graph)
	out := make([]any, 0, len(rootIDs))
	for _, id := range rootIDs {
		node, ok := graph.Node(id)
		if !ok {
			return nil, fmt.Errorf("node %s is missing from the result", id)
		}
		if !hasLabel(node, meta.Label) {
			return nil, fmt.Errorf("node %s is not labelled %s", id, meta.Label)
		}
		v, err := h.node(node, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Interface())
	}
	return out, nil
}

type hydrator struct {
	registry *Registry
	graph    *GraphResult
	out      map[string][]*Edge
	in       map[string][]*Edge
	memo     map[string]reflect.Value
}

func newHydrator(registry *Registry, graph *GraphResult) *hydrator {
	h := &hydrator{
		registry: registry,
		graph:    graph,
		out:      make(map[string][]*Edge),
		in:       make(map[string][]*Edge),
		memo:     make(map[string]reflect.Value),
	}
	for _, e := range graph.Edges {
		h.out[e.Source] = append(h.out[e.Source], e)
		h.in[e.Target] = append(h.in[e.Target], e)
	}
	return h
}

func (h *hydrator) node(n *GraphNode, meta *EntityMetadata) (reflect.Value, error) {
	if v, ok := h.memo[n.ID]; ok {
		return v, nil
	}
	v := reflect.New(meta.Type)
	h.memo[n.ID] = v
	meta.setID(v, n.ID)
	if err := setProperties(v, meta, n.Properties); err != nil {
		return reflect.Value{}, err
	}

	for _, desc := range meta.Relationships {
		edges := h.out[n.ID]
		if desc.Direction == Incoming {
			edges = h.in[n.ID]
		}
		for _, e := range edges {
			if e.Type != desc.Type {
				continue
			}
			if err := h.attach(v, desc, e); err != nil {
				return reflect.Value{}, fmt.Errorf("%s.%s: %w", meta.Type.Name(), desc.Field, err)
			}
		}
	}
	return v, nil
}

func (h *hydrator) attach(owner reflect.Value, desc *RelationshipDescriptor, e *Edge) error {
	otherID := e.Target
	if desc.Direction == Incoming {
		otherID = e.Source
	}
	other, ok := h.graph.Node(otherID)
	if !ok {
		return nil
	}
	targetMeta := h.registry.types[desc.Target]
	if !hasLabel(other, targetMeta.Label) {
		return nil
	}
	target, err := h.node(other, targetMeta)
	if err != nil {
		return err
	}

	elem := target
	if desc.HasProperties() {
		relMeta := desc.Properties
		elem = reflect.New(relMeta.Type)
		relMeta.setID(elem, e.ID)
		if err := setProperties(elem, relMeta, e.Properties); err != nil {
			return err
		}
		elem.Elem().FieldByIndex(relMeta.targetIndex).Set(target)
	}

	field := owner.Elem().FieldByIndex(desc.index)
	switch field.Kind() {
	case reflect.Ptr:
		// A single-valued field keeps the first relationship seen.
		if field.IsNil() {
			field.Set(elem)
		}
	case reflect.Slice:
		if desc.Cardinality == One && field.Len() > 0 {
			return nil
		}
		field.Set(reflect.Append(field, elem))
	}
	return nil
}

func setProperties(v reflect.Value, meta *EntityMetadata, props map[string]any) error {
	val := v.Elem()
	for _, p := range meta.Properties {
		raw, ok := props[p.Name]
		if !ok {
			continue
		}
		if err := assign(val.FieldByIndex(p.index), raw); err != nil {
			return fmt.Errorf("property %s of %s: %w", p.Name, meta.Type.Name(), err)
		}
	}
	return nil
}
