package neogm

import (
	"fmt"
	"reflect"
	"regexp"
)

// Direction is the direction of a relationship relative to the entity that
// declares the relationship field.
type Direction int

const (
	// Outgoing relationships point from the owning entity to the target.
	Outgoing Direction = iota
	// Incoming relationships point from the target to the owning entity.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "INCOMING"
	}
	return "OUTGOING"
}

// Cardinality tells whether a relationship field holds one or many relationships.
type Cardinality int

const (
	// One is a single-valued relationship field.
	One Cardinality = iota
	// Many is a collection-valued relationship field.
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "MANY"
	}
	return "ONE"
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RelationshipDescriptor declares one relationship field of an entity.
type RelationshipDescriptor struct {
	// Field is the Go struct field holding the relationship(s).
	Field string
	// Type is the relationship type name stored in the graph, e.g. ACTED_IN.
	Type string
	// Direction is relative to the owning entity.
	Direction Direction
	// Cardinality is fixed at registration and never inferred from values.
	Cardinality Cardinality
	// Target is the struct type of the node at the other end.
	Target reflect.Type
	// Properties describes the relationship entity type when the relationship
	// carries its own properties; nil for bare relationships.
	Properties *EntityMetadata

	// elem is the struct type stored in the field: the relationship entity
	// type when Properties is set, otherwise Target.
	elem  reflect.Type
	index []int
}

// HasProperties reports whether the relationship is modelled as a
// relationship entity with its own properties and identity.
func (d *RelationshipDescriptor) HasProperties() bool {
	return d.Properties != nil
}

// Validate checks the declarative parts of the descriptor.
func (d *RelationshipDescriptor) Validate() error {
	if !identifierPattern.MatchString(d.Type) {
		return fmt.Errorf("relationship type %q is not a valid identifier", d.Type)
	}
	if d.Direction != Outgoing && d.Direction != Incoming {
		return fmt.Errorf("unknown direction %d", d.Direction)
	}
	if d.Cardinality != One && d.Cardinality != Many {
		return fmt.Errorf("unknown cardinality %d", d.Cardinality)
	}
	if d.Target == nil {
		return fmt.Errorf("relationship %s has no target type", d.Type)
	}
	return nil
}

// checkCardinality fails when a ONE field holds more than one relationship.
func (d *RelationshipDescriptor) checkCardinality(n int) error {
	if d.Cardinality == One && n > 1 {
		return fmt.Errorf("%w: field %s (%s) holds %d", ErrCardinalityViolation, d.Field, d.Type, n)
	}
	return nil
}

// matches reports whether an edge of relType seen from the owner in dir
// belongs to this descriptor.
func (d *RelationshipDescriptor) matches(relType string, dir Direction) bool {
	return d.Type == relType && d.Direction == dir
}
