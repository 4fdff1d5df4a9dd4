package neogm

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

const (
	// DefaultLoadDepth is the number of relationship hops loaded by finders.
	DefaultLoadDepth = 2
	// MaxLoadDepth caps LoadDepth; variable-length patterns grow fast.
	MaxLoadDepth = 10
)

// Statement is a parameterized Cypher statement. Values are only ever passed
// through Params; Text never contains caller data.
type Statement struct {
	Text   string
	Params map[string]any
}

// Raw wraps caller-written statement text and its parameters.
func Raw(text string, params map[string]any) Statement {
	if params == nil {
		params = map[string]any{}
	}
	return Statement{Text: text, Params: params}
}

// FromBuilder renders a gocypher query builder into a Statement.
func FromBuilder(qb *gocypher.QueryBuilder) (Statement, error) {
	query, params, err := qb.Build()
	if err != nil {
		return Statement{}, fmt.Errorf("could not build query: %w", err)
	}
	return Raw(query, params), nil
}

// FindRequest is a single-property equality lookup: nodes labelled Label whose
// Property equals Value.
type FindRequest struct {
	Label    string
	Property string
	Value    any
}

// ParseFinderName maps a finder name following the findXByY convention to the
// label X and the property y, e.g. "findPersonByName" -> ("Person", "name").
// Labels and properties may themselves contain "By"; when several splits are
// possible the one with the longest label wins. PersistenceManager.FindBy
// resolves the split against the registry instead.
func ParseFinderName(name string) (label, property string, err error) {
	splits, err := finderSplits(name)
	if err != nil {
		return "", "", err
	}
	return splits[0].Label, splits[0].Property, nil
}

// finderSplit is one reading of a finder name.
type finderSplit struct {
	Label    string
	Property string
}

// finderSplits returns every valid reading of a finder name, longest label
// first. A split point is a "By" followed by an upper-case letter.
func finderSplits(name string) ([]finderSplit, error) {
	rest, ok := strings.CutPrefix(name, "find")
	if !ok {
		return nil, fmt.Errorf("finder %q does not start with find", name)
	}
	var splits []finderSplit
	for i := strings.LastIndex(rest, "By"); i > 0; i = strings.LastIndex(rest[:i], "By") {
		label, prop := rest[:i], rest[i+len("By"):]
		r, size := utf8.DecodeRuneInString(prop)
		if !unicode.IsUpper(r) {
			continue
		}
		property := string(unicode.ToLower(r)) + prop[size:]
		if identifierPattern.MatchString(label) && identifierPattern.MatchString(property) {
			splits = append(splits, finderSplit{Label: label, Property: property})
		}
	}
	if len(splits) == 0 {
		return nil, fmt.Errorf("finder %q does not follow findXByY", name)
	}
	return splits, nil
}

// QueryBuilder renders the statements used by the planner and the finders.
type QueryBuilder struct {
	depth int
}

// NewQueryBuilder returns a builder whose loads reach depth relationship hops.
func NewQueryBuilder(depth int) *QueryBuilder {
	if depth < 0 {
		depth = 0
	}
	if depth > MaxLoadDepth {
		depth = MaxLoadDepth
	}
	return &QueryBuilder{depth: depth}
}

// Depth returns the load depth.
func (q *QueryBuilder) Depth() int { return q.depth }

// FindByID matches one node by element id and returns it with the paths
// around it.
func (q *QueryBuilder) FindByID(label, id string) Statement {
	text := fmt.Sprintf("MATCH (n:%s) WHERE elementId(n) = $id\n%s", quote(label), q.neighbourhood())
	return Statement{Text: text, Params: map[string]any{"id": id}}
}

// FindBy matches nodes by a single property and returns each with the paths
// around it, one row per node.
func (q *QueryBuilder) FindBy(req FindRequest) (Statement, error) {
	if err := checkIdentifiers(req.Label, req.Property); err != nil {
		return Statement{}, err
	}
	text := fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $value\n%s", quote(req.Label), quote(req.Property), q.neighbourhood())
	return Statement{Text: text, Params: map[string]any{"value": req.Value}}, nil
}

// FindAll matches every node with label, one row per node.
func (q *QueryBuilder) FindAll(label string) (Statement, error) {
	if err := checkIdentifiers(label); err != nil {
		return Statement{}, err
	}
	text := fmt.Sprintf("MATCH (n:%s)\n%s", quote(label), q.neighbourhood())
	return Statement{Text: text, Params: map[string]any{}}, nil
}

func (q *QueryBuilder) neighbourhood() string {
	if q.depth == 0 {
		return "RETURN n, [] AS paths"
	}
	return fmt.Sprintf("OPTIONAL MATCH p = (n)-[*1..%d]-()\nRETURN n, collect(p) AS paths", q.depth)
}

// Count counts the nodes with label.
func (q *QueryBuilder) Count(label string) (Statement, error) {
	if err := checkIdentifiers(label); err != nil {
		return Statement{}, err
	}
	return FromBuilder(gocypher.NewQueryBuilder().
		Match(gocypher.N("n", label)).
		Return("count(n)"))
}

// CountBy counts the nodes matching a single-property lookup.
func (q *QueryBuilder) CountBy(req FindRequest) (Statement, error) {
	if err := checkIdentifiers(req.Label, req.Property); err != nil {
		return Statement{}, err
	}
	return FromBuilder(gocypher.NewQueryBuilder().
		Match(gocypher.N("n", req.Label).WithProperties(map[string]any{req.Property: req.Value})).
		Return("count(n)"))
}

// DeleteAll removes every node with label and, with them, their relationships.
func (q *QueryBuilder) DeleteAll(label string) (Statement, error) {
	if err := checkIdentifiers(label); err != nil {
		return Statement{}, err
	}
	return FromBuilder(gocypher.NewQueryBuilder().
		Match(gocypher.N("n", label)).
		DetachDelete("n"))
}

// DeleteByID removes one node and its relationships.
func (q *QueryBuilder) DeleteByID(label, id string) Statement {
	text := fmt.Sprintf("MATCH (n:%s) WHERE elementId(n) = $id\nDETACH DELETE n", quote(label))
	return Statement{Text: text, Params: map[string]any{"id": id}}
}

// MergeNode renders the match-or-create of a new node keyed by every supplied
// (non-nil) property. Running it twice with the same properties yields one node.
func (q *QueryBuilder) MergeNode(label string, props map[string]any) Statement {
	keys := suppliedKeys(props)
	params := make(map[string]any, len(keys))
	if len(keys) == 0 {
		text := fmt.Sprintf("CREATE (n:%s)\nRETURN elementId(n) AS id", quote(label))
		return Statement{Text: text, Params: params}
	}
	pairs := make([]string, len(keys))
	for i, k := range keys {
		name := "prop_" + k
		pairs[i] = fmt.Sprintf("%s: $%s", quote(k), name)
		params[name] = props[k]
	}
	text := fmt.Sprintf("MERGE (n:%s {%s})\nWITH n LIMIT 1\nRETURN elementId(n) AS id", quote(label), strings.Join(pairs, ", "))
	return Statement{Text: text, Params: params}
}

// UpdateNode sets the properties of an existing node. Nil values remove the
// property.
func (q *QueryBuilder) UpdateNode(label, id string, props map[string]any) Statement {
	text := fmt.Sprintf("MATCH (n:%s) WHERE elementId(n) = $id\nSET n += $props\nRETURN elementId(n) AS id", quote(label))
	return Statement{Text: text, Params: map[string]any{"id": id, "props": nonNilMap(props)}}
}

// MergeRelationship renders the match-or-create of a relationship between two
// identified nodes, then sets its properties.
func (q *QueryBuilder) MergeRelationship(relType, fromID, toID string, props map[string]any) Statement {
	text := fmt.Sprintf("MATCH (a) WHERE elementId(a) = $from\nMATCH (b) WHERE elementId(b) = $to\nMERGE (a)-[r:%s]->(b)\nSET r += $props\nRETURN elementId(r) AS id", quote(relType))
	return Statement{Text: text, Params: map[string]any{"from": fromID, "to": toID, "props": nonNilMap(props)}}
}

// UpdateRelationship sets the properties of an identified relationship.
func (q *QueryBuilder) UpdateRelationship(relType, id string, props map[string]any) Statement {
	text := fmt.Sprintf("MATCH ()-[r:%s]->() WHERE elementId(r) = $id\nSET r += $props\nRETURN elementId(r) AS id", quote(relType))
	return Statement{Text: text, Params: map[string]any{"id": id, "props": nonNilMap(props)}}
}

// DeleteRelationship removes the relationships of relType from one node to another.
func (q *QueryBuilder) DeleteRelationship(relType, fromID, toID string) Statement {
	text := fmt.Sprintf("MATCH (a)-[r:%s]->(b) WHERE elementId(a) = $from AND elementId(b) = $to\nDELETE r", quote(relType))
	return Statement{Text: text, Params: map[string]any{"from": fromID, "to": toID}}
}

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifierPattern.MatchString(n) {
			return fmt.Errorf("%q is not a valid label, type or property name", n)
		}
	}
	return nil
}

func suppliedKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func nonNilMap(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
