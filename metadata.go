package neogm

import (
	"fmt"
	"reflect"
	"strings"
)

// tagName is the struct tag that carries the persistence mapping.
const tagName = "crud"

// Labeler lets a node type choose a graph label other than its Go type name.
type Labeler interface {
	NodeLabel() string
}

// EntityKind separates node entities from relationship entities.
type EntityKind int

const (
	// NodeEntity is mapped to a graph node.
	NodeEntity EntityKind = iota
	// RelationshipEntity is mapped to a relationship that carries properties.
	RelationshipEntity
)

// PropertyBinding binds a struct field to a stored property name.
type PropertyBinding struct {
	Field string
	Name  string

	index []int
}

// EntityMetadata holds the parsed `crud` tag information for a registered type.
type EntityMetadata struct {
	// Type is the struct type (never a pointer).
	Type reflect.Type
	Kind EntityKind
	// Label is the node label; empty for relationship entities.
	Label string
	// IDField is the struct field holding the store identity.
	IDField string
	// Properties is ordered as the fields are declared.
	Properties []PropertyBinding
	// Relationships lists the relationship fields of a node entity.
	Relationships []*RelationshipDescriptor
	// TargetField is the field of a relationship entity pointing at the
	// node on the far side of the relationship.
	TargetField string

	idIndex     []int
	targetIndex []int
	targetType  reflect.Type
}

// ID returns the identity held by the entity, or "" when it was never persisted.
func (m *EntityMetadata) ID(entity reflect.Value) string {
	return reflect.Indirect(entity).FieldByIndex(m.idIndex).String()
}

func (m *EntityMetadata) setID(entity reflect.Value, id string) {
	reflect.Indirect(entity).FieldByIndex(m.idIndex).SetString(id)
}

// Values extracts the stored property map of an entity. Absent values (nil
// pointers and nil slices) map to nil.
func (m *EntityMetadata) Values(entity reflect.Value) (map[string]any, error) {
	val := reflect.Indirect(entity)
	props := make(map[string]any, len(m.Properties))
	for _, p := range m.Properties {
		v, err := toStoreValue(val.FieldByIndex(p.index))
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidEntity, m.Type.Name(), p.Field, err)
		}
		props[p.Name] = v
	}
	return props, nil
}

// relationshipFor finds the descriptor for an edge type seen in dir.
func (m *EntityMetadata) relationshipFor(relType string, dir Direction) *RelationshipDescriptor {
	for _, d := range m.Relationships {
		if d.matches(relType, dir) {
			return d
		}
	}
	return nil
}

func (m *EntityMetadata) hasProperty(name string) bool {
	for _, p := range m.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}

// reflectPointer returns the value of a non-nil pointer, or the zero Value.
func reflectPointer(entity any) reflect.Value {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}
	}
	return v
}

// Registry is the static table of mapped entity types. It is built once by
// NewRegistry and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	types  map[reflect.Type]*EntityMetadata
	labels map[string]*EntityMetadata
	order  []*EntityMetadata
}

// NewRegistry registers every given entity type and validates the whole set
// eagerly. Entities may be passed as values or pointers; node types, the
// relationship entity types and every relationship target must all be part of
// the same call.
//
// Parameters:
//   - entities: one zero value (or pointer) per mapped struct type.
//
// Returns:
//
//	The registry, or a *ConfigurationError describing the first invalid mapping.
func NewRegistry(entities ...any) (*Registry, error) {
	r := &Registry{
		types:  make(map[reflect.Type]*EntityMetadata),
		labels: make(map[string]*EntityMetadata),
	}
	pending := make(map[reflect.Type][]pendingRelationship)

	for _, e := range entities {
		typ := reflect.TypeOf(e)
		if typ == nil {
			return nil, &ConfigurationError{Reason: "cannot register a nil entity"}
		}
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if _, dup := r.types[typ]; dup {
			return nil, &ConfigurationError{Type: typ.Name(), Reason: "registered twice"}
		}
		meta, rels, err := parseTagsFromType(typ)
		if err != nil {
			return nil, err
		}
		if meta.Kind == NodeEntity {
			if other, dup := r.labels[meta.Label]; dup {
				return nil, &ConfigurationError{Type: typ.Name(),
					Reason: fmt.Sprintf("label %q already used by %s", meta.Label, other.Type.Name())}
			}
			r.labels[meta.Label] = meta
		}
		r.types[typ] = meta
		r.order = append(r.order, meta)
		pending[typ] = rels
	}

	// Targets are resolved once every type is known so registration order
	// does not matter.
	for _, meta := range r.order {
		if meta.Kind == RelationshipEntity {
			target, ok := r.types[meta.targetType]
			if !ok || target.Kind != NodeEntity {
				return nil, &ConfigurationError{Type: meta.Type.Name(), Field: meta.TargetField,
					Reason: fmt.Sprintf("target type %s is not a registered node entity", meta.targetType.Name())}
			}
		}
	}
	for _, meta := range r.order {
		for _, p := range pending[meta.Type] {
			desc, err := r.resolve(meta, p)
			if err != nil {
				return nil, err
			}
			if prev := meta.relationshipFor(desc.Type, desc.Direction); prev != nil {
				return nil, &ConfigurationError{Type: meta.Type.Name(), Field: desc.Field,
					Reason: fmt.Sprintf("relationship %s %s is already mapped by field %s", desc.Direction, desc.Type, prev.Field)}
			}
			meta.Relationships = append(meta.Relationships, desc)
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on invalid metadata. It is meant
// for package-level wiring at program start.
func MustRegistry(entities ...any) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the metadata of the entity's type.
func (r *Registry) Lookup(entity any) (*EntityMetadata, error) {
	typ := reflect.TypeOf(entity)
	if typ == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidEntity)
	}
	return r.lookupType(typ)
}

func (r *Registry) lookupType(typ reflect.Type) (*EntityMetadata, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	meta, ok := r.types[typ]
	if !ok {
		return nil, fmt.Errorf("%w: type %s is not registered", ErrInvalidEntity, typ)
	}
	return meta, nil
}

// ByLabel returns the node entity registered under label.
func (r *Registry) ByLabel(label string) (*EntityMetadata, bool) {
	meta, ok := r.labels[label]
	return meta, ok
}

// Entities returns the registered metadata in registration order.
func (r *Registry) Entities() []*EntityMetadata {
	return append([]*EntityMetadata(nil), r.order...)
}

type pendingRelationship struct {
	field       reflect.StructField
	relType     string
	direction   Direction
	cardinality Cardinality
	explicit    bool
}

func (r *Registry) resolve(owner *EntityMetadata, p pendingRelationship) (*RelationshipDescriptor, error) {
	fail := func(reason string) error {
		return &ConfigurationError{Type: owner.Type.Name(), Field: p.field.Name, Reason: reason}
	}

	ft := p.field.Type
	cardinality := One
	switch {
	case ft.Kind() == reflect.Ptr && ft.Elem().Kind() == reflect.Struct:
		if p.explicit && p.cardinality == Many {
			return nil, fail("a pointer field cannot hold MANY relationships")
		}
	case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Ptr && ft.Elem().Elem().Kind() == reflect.Struct:
		cardinality = Many
		if p.explicit {
			cardinality = p.cardinality
		}
		ft = ft.Elem()
	default:
		return nil, fail("relationship fields must be *T or []*T")
	}
	elem := ft.Elem()

	target, ok := r.types[elem]
	if !ok {
		return nil, fail(fmt.Sprintf("relationship target %s is not registered", elem.Name()))
	}
	desc := &RelationshipDescriptor{
		Field:       p.field.Name,
		Type:        p.relType,
		Direction:   p.direction,
		Cardinality: cardinality,
		Target:      elem,
		elem:        elem,
		index:       p.field.Index,
	}
	if target.Kind == RelationshipEntity {
		desc.Properties = target
		desc.Target = target.targetType
	}
	if err := desc.Validate(); err != nil {
		return nil, fail(err.Error())
	}
	return desc, nil
}

// parseTagsFromType inspects a struct type and extracts its persistence
// metadata from `crud` struct tags. Relationship fields are returned unresolved
// because their targets may not be registered yet.
func parseTagsFromType(typ reflect.Type) (*EntityMetadata, []pendingRelationship, error) {
	if typ.Kind() != reflect.Struct {
		return nil, nil, &ConfigurationError{Type: typ.String(), Reason: "entities must be structs"}
	}

	meta := &EntityMetadata{Type: typ, Label: typ.Name()}
	if l, ok := reflect.New(typ).Interface().(Labeler); ok {
		meta.Label = l.NodeLabel()
	}

	var (
		ids     []reflect.StructField
		targets []reflect.StructField
		rels    []pendingRelationship
		seen    = make(map[string]string)
	)

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, ok := field.Tag.Lookup(tagName)
		if !ok || tag == "-" {
			continue
		}
		fail := func(reason string) error {
			return &ConfigurationError{Type: typ.Name(), Field: field.Name, Reason: reason}
		}
		if !field.IsExported() {
			return nil, nil, fail("mapped fields must be exported")
		}

		opts := parseTag(tag)
		switch {
		case opts.has("id"):
			ids = append(ids, field)
		case opts.has("target"):
			targets = append(targets, field)
		case opts.value("rel") != "":
			p := pendingRelationship{field: field, relType: opts.value("rel")}
			switch strings.ToLower(opts.value("direction")) {
			case "", "outgoing":
				p.direction = Outgoing
			case "incoming":
				p.direction = Incoming
			default:
				return nil, nil, fail(fmt.Sprintf("unknown direction %q", opts.value("direction")))
			}
			if opts.has("one") {
				p.cardinality, p.explicit = One, true
			}
			if opts.has("many") {
				if p.explicit {
					return nil, nil, fail("both one and many given")
				}
				p.cardinality, p.explicit = Many, true
			}
			rels = append(rels, p)
		case opts.value("property") != "":
			name := opts.value("property")
			if !identifierPattern.MatchString(name) {
				return nil, nil, fail(fmt.Sprintf("property name %q is not a valid identifier", name))
			}
			if prev, dup := seen[name]; dup {
				return nil, nil, fail(fmt.Sprintf("property %q is already mapped by field %s", name, prev))
			}
			if !isScalarType(field.Type) {
				return nil, nil, fail(fmt.Sprintf("unsupported property type %s", field.Type))
			}
			seen[name] = field.Name
			meta.Properties = append(meta.Properties, PropertyBinding{
				Field: field.Name,
				Name:  name,
				index: field.Index,
			})
		default:
			return nil, nil, fail(fmt.Sprintf("tag %q has no id, target, rel or property component", tag))
		}
	}

	switch {
	case len(ids) == 0:
		return nil, nil, &ConfigurationError{Type: typ.Name(), Reason: "no identity ('id') field declared"}
	case len(ids) > 1:
		return nil, nil, &ConfigurationError{Type: typ.Name(), Reason: fmt.Sprintf("%d identity fields declared, want exactly one", len(ids))}
	case ids[0].Type.Kind() != reflect.String:
		return nil, nil, &ConfigurationError{Type: typ.Name(), Field: ids[0].Name, Reason: "identity field must be a string"}
	}
	meta.IDField = ids[0].Name
	meta.idIndex = ids[0].Index

	if len(targets) > 0 {
		if len(targets) > 1 {
			return nil, nil, &ConfigurationError{Type: typ.Name(), Reason: "relationship entities need exactly one target field"}
		}
		if len(rels) > 0 {
			return nil, nil, &ConfigurationError{Type: typ.Name(), Field: rels[0].field.Name,
				Reason: "relationship entities cannot declare relationships"}
		}
		t := targets[0]
		if t.Type.Kind() != reflect.Ptr || t.Type.Elem().Kind() != reflect.Struct {
			return nil, nil, &ConfigurationError{Type: typ.Name(), Field: t.Name, Reason: "target field must be *T"}
		}
		meta.Kind = RelationshipEntity
		meta.Label = ""
		meta.TargetField = t.Name
		meta.targetIndex = t.Index
		meta.targetType = t.Type.Elem()
		return meta, nil, nil
	}

	if !identifierPattern.MatchString(meta.Label) {
		return nil, nil, &ConfigurationError{Type: typ.Name(), Reason: fmt.Sprintf("label %q is not a valid identifier", meta.Label)}
	}
	return meta, rels, nil
}

type tagOptions map[string]string

// parseTag splits `a,b:c` into {"a": "", "b": "c"}.
func parseTag(tag string) tagOptions {
	opts := make(tagOptions)
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		opts[key] = value
	}
	return opts
}

func (o tagOptions) has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o tagOptions) value(key string) string {
	return o[key]
}
