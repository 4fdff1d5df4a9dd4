package neogm

import (
	"context"
	"fmt"
)

// Planner turns an object graph into the statements that make the store match it.
type Planner struct {
	mapper  *Mapper
	queries *QueryBuilder
}

// NewPlanner returns a Planner using mapper to walk object graphs and queries
// to render statements.
func NewPlanner(mapper *Mapper, queries *QueryBuilder) *Planner {
	return &Planner{mapper: mapper, queries: queries}
}

// SavePlan is the set of upserts for one root-level save. Every statement is
// a match-or-create or an update by identity, so the plan can be applied again
// in full when a write transaction is retried.
//
// Reconciliation is additive: relationships missing from the object graph are
// left in the store. Removing them takes an explicit delete.
type SavePlan struct {
	Graph *Graph

	queries *QueryBuilder
	nodeIDs []string
	relIDs  []string
}

// Plan flattens root and prepares its save.
func (p *Planner) Plan(root any) (*SavePlan, error) {
	graph, err := p.mapper.Flatten(root)
	if err != nil {
		return nil, err
	}
	return &SavePlan{Graph: graph, queries: p.queries}, nil
}

// NewNodes counts the entities that will be created.
func (s *SavePlan) NewNodes() int {
	n := 0
	for _, node := range s.Graph.Nodes {
		if node.IsNew() {
			n++
		}
	}
	return n
}

// Apply runs the plan inside tx: every node first, then every relationship
// between the now identified nodes. The identities it obtains are kept aside
// until commit is called, so a failed attempt leaves the caller's instances
// untouched.
func (s *SavePlan) Apply(ctx context.Context, tx *Tx) error {
	nodeIDs := make([]string, len(s.Graph.Nodes))
	for i, n := range s.Graph.Nodes {
		stmt := s.queries.MergeNode(n.Meta.Label, n.Props)
		if !n.IsNew() {
			stmt = s.queries.UpdateNode(n.Meta.Label, n.ID, n.Props)
		}
		id, err := runForID(ctx, tx, stmt)
		if err != nil {
			if !n.IsNew() && IsNotFound(err) {
				return fmt.Errorf("%s %s no longer exists: %w", n.Meta.Label, n.ID, ErrNotFound)
			}
			return fmt.Errorf("saving %s node: %w", n.Meta.Label, err)
		}
		nodeIDs[i] = id
	}

	relIDs := make([]string, len(s.Graph.Relationships))
	for i, r := range s.Graph.Relationships {
		stmt := s.queries.MergeRelationship(r.Type, nodeIDs[r.From], nodeIDs[r.To], r.Props)
		if r.ID != "" {
			stmt = s.queries.UpdateRelationship(r.Type, r.ID, r.Props)
		}
		id, err := runForID(ctx, tx, stmt)
		if err != nil {
			if r.ID != "" && IsNotFound(err) {
				return fmt.Errorf("%s relationship %s no longer exists: %w", r.Type, r.ID, ErrNotFound)
			}
			return fmt.Errorf("saving %s relationship: %w", r.Type, err)
		}
		relIDs[i] = id
	}

	s.nodeIDs, s.relIDs = nodeIDs, relIDs
	return nil
}

// commit writes the identities of the last successful Apply back into the
// instances of the object graph. Identities already present never change.
func (s *SavePlan) commit() {
	if s.nodeIDs == nil {
		return
	}
	for i, n := range s.Graph.Nodes {
		if n.IsNew() {
			n.Meta.setID(n.entity, s.nodeIDs[i])
			n.ID = s.nodeIDs[i]
		}
	}
	for i, r := range s.Graph.Relationships {
		if r.ID == "" && r.entity.IsValid() {
			r.Descriptor.Properties.setID(r.entity, s.relIDs[i])
			r.ID = s.relIDs[i]
		}
	}
}

func runForID(ctx context.Context, tx *Tx, stmt Statement) (string, error) {
	res, err := tx.Run(ctx, stmt)
	if err != nil {
		return "", err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return "", err
	}
	raw, ok := record.Get("id")
	if !ok {
		return "", fmt.Errorf("could not find return value 'id' in query result")
	}
	id, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("return value 'id' is a %T, not a string", raw)
	}
	return id, nil
}
