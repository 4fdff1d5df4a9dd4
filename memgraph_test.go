package neogm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// memGraph is an in-memory Driver that understands the statements rendered by
// QueryBuilder. Every transaction works on a private copy of the graph that
// replaces the shared one on commit, so rollbacks discard everything.
type memGraph struct {
	mu    sync.Mutex
	state *memState

	opened, closed int
	begun, commits int
	rollbacks      int
	statements     []Statement
	sessionModes   []AccessMode
	faults         []fault
	commitFaults   []error
	openErr        error
	onRun          func(ctx context.Context, text string)
}

type fault struct {
	match string
	err   error
}

type memNode struct {
	id     string
	labels []string
	props  map[string]any
}

type memRel struct {
	id, relType, from, to string
	props                 map[string]any
}

type memState struct {
	seq      int
	nodes    map[string]*memNode
	order    []string
	rels     map[string]*memRel
	relOrder []string
}

func newMemGraph() *memGraph {
	return &memGraph{state: &memState{nodes: map[string]*memNode{}, rels: map[string]*memRel{}}}
}

// failOn makes the next statement containing match fail with err.
func (g *memGraph) failOn(match string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = append(g.faults, fault{match: match, err: err})
}

func (g *memGraph) failCommit(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commitFaults = append(g.commitFaults, err)
}

func (g *memGraph) nodeCount(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, node := range g.state.nodes {
		if label == "" || containsLabel(node.labels, label) {
			n++
		}
	}
	return n
}

func (g *memGraph) relCount(relType string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.state.rels {
		if relType == "" || r.relType == relType {
			n++
		}
	}
	return n
}

func (g *memGraph) node(id string) (*memNode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.state.nodes[id]
	return n, ok
}

func (g *memGraph) relsOf(relType string) []*memRel {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*memRel
	for _, id := range g.state.relOrder {
		if r := g.state.rels[id]; r.relType == relType {
			out = append(out, r)
		}
	}
	return out
}

func (g *memGraph) OpenSession(_ context.Context, cfg SessionConfig) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return nil, g.openErr
	}
	g.opened++
	g.sessionModes = append(g.sessionModes, cfg.AccessMode)
	return &memSession{g: g}, nil
}

type memSession struct {
	g *memGraph
}

func (s *memSession) BeginTransaction(ctx context.Context) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.g.begun++
	return &memTx{g: s.g, work: s.g.state.clone()}, nil
}

func (s *memSession) Close(context.Context) error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.g.closed++
	return nil
}

type memTx struct {
	g    *memGraph
	work *memState
	done bool
}

func (t *memTx) Commit(context.Context) error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if len(t.g.commitFaults) > 0 {
		err := t.g.commitFaults[0]
		t.g.commitFaults = t.g.commitFaults[1:]
		return err
	}
	t.g.commits++
	t.g.state = t.work
	t.done = true
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.done {
		return errors.New("transaction already closed")
	}
	t.g.rollbacks++
	t.done = true
	return nil
}

func (t *memTx) Run(ctx context.Context, text string, params map[string]any) (Cursor, error) {
	if t.g.onRun != nil {
		t.g.onRun(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.g.mu.Lock()
	t.g.statements = append(t.g.statements, Statement{Text: text, Params: params})
	for i, f := range t.g.faults {
		if strings.Contains(text, f.match) {
			t.g.faults = append(t.g.faults[:i], t.g.faults[i+1:]...)
			t.g.mu.Unlock()
			return nil, f.err
		}
	}
	t.g.mu.Unlock()

	rows, err := t.work.exec(text, params)
	if err != nil {
		return nil, err
	}
	return &memCursor{rows: rows}, nil
}

type memCursor struct {
	rows []*Record
	pos  int
}

func (c *memCursor) Next(context.Context) bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *memCursor) Record() *Record {
	if c.pos == 0 || c.pos > len(c.rows) {
		return nil
	}
	return c.rows[c.pos-1]
}

func (c *memCursor) Err() error { return nil }

var (
	reNodeLabel = regexp.MustCompile("\\(n:`?(\\w+)`?")
	reRelType   = regexp.MustCompile("\\[r:`?(\\w+)`?\\]")
	reWhereProp = regexp.MustCompile("WHERE n\\.`(\\w+)` = \\$value")
	reDepth     = regexp.MustCompile(`\[\*1\.\.(\d+)\]`)
)

func (s *memState) exec(text string, params map[string]any) ([]*Record, error) {
	label := submatch(reNodeLabel, text)
	relType := submatch(reRelType, text)

	switch {
	case strings.HasPrefix(text, "CREATE (n:"):
		return idRow(s.createNode(label, map[string]any{})), nil

	case strings.HasPrefix(text, "MERGE (n:"):
		props := map[string]any{}
		for k, v := range params {
			if name, ok := strings.CutPrefix(k, "prop_"); ok {
				props[name] = v
			}
		}
		for _, id := range s.order {
			if n := s.nodes[id]; containsLabel(n.labels, label) && hasProps(n.props, props) {
				return idRow(id), nil
			}
		}
		return idRow(s.createNode(label, props)), nil

	case strings.Contains(text, "SET n += $props"):
		n, ok := s.nodes[params["id"].(string)]
		if !ok || !containsLabel(n.labels, label) {
			return nil, nil
		}
		setProps(n.props, params["props"].(map[string]any))
		return idRow(n.id), nil

	case strings.Contains(text, "MERGE (a)-[r:"):
		from, to := params["from"].(string), params["to"].(string)
		if s.nodes[from] == nil || s.nodes[to] == nil {
			return nil, nil
		}
		for _, id := range s.relOrder {
			if r := s.rels[id]; r.relType == relType && r.from == from && r.to == to {
				setProps(r.props, params["props"].(map[string]any))
				return idRow(id), nil
			}
		}
		s.seq++
		id := "5:rel:" + strconv.Itoa(s.seq)
		r := &memRel{id: id, relType: relType, from: from, to: to, props: map[string]any{}}
		setProps(r.props, params["props"].(map[string]any))
		s.rels[id] = r
		s.relOrder = append(s.relOrder, id)
		return idRow(id), nil

	case strings.HasPrefix(text, "MATCH ()-[r:"):
		r, ok := s.rels[params["id"].(string)]
		if !ok || r.relType != relType {
			return nil, nil
		}
		setProps(r.props, params["props"].(map[string]any))
		return idRow(r.id), nil

	case strings.HasPrefix(text, "MATCH (a)-[r:") && strings.HasSuffix(text, "DELETE r"):
		for _, id := range append([]string(nil), s.relOrder...) {
			if r := s.rels[id]; r.relType == relType && r.from == params["from"] && r.to == params["to"] {
				s.deleteRel(id)
			}
		}
		return nil, nil

	case strings.Contains(strings.ToUpper(text), "DETACH DELETE"):
		for _, n := range s.match(label, text, params) {
			s.deleteNode(n.id)
		}
		return nil, nil

	case strings.Contains(text, "count(n)"):
		matched := s.match(label, text, params)
		if !strings.Contains(text, "WHERE") {
			// gocypher renders property filters inline; every property
			// parameter has to match.
			matched = s.filterInline(label, text, params)
		}
		return []*Record{{Keys: []string{"count"}, Values: []any{int64(len(matched))}}}, nil

	case strings.Contains(text, "RETURN n, "):
		depth := 0
		if d := submatch(reDepth, text); d != "" {
			depth, _ = strconv.Atoi(d)
		}
		var rows []*Record
		for _, n := range s.match(label, text, params) {
			rows = append(rows, &Record{
				Keys:   []string{"n", "paths"},
				Values: []any{s.graphNode(n), s.paths(n.id, depth)},
			})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("Neo.ClientError.Statement.SyntaxError: unsupported statement %q", text)
}

// match selects the nodes a MATCH (n:L) [WHERE ...] statement refers to.
func (s *memState) match(label, text string, params map[string]any) []*memNode {
	var out []*memNode
	prop := submatch(reWhereProp, text)
	for _, id := range s.order {
		n := s.nodes[id]
		if !containsLabel(n.labels, label) {
			continue
		}
		switch {
		case strings.Contains(text, "elementId(n) = $id"):
			if n.id != params["id"] {
				continue
			}
		case prop != "":
			if !reflect.DeepEqual(n.props[prop], normalize(params["value"])) {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func (s *memState) filterInline(label, text string, params map[string]any) []*memNode {
	var out []*memNode
	for _, id := range s.order {
		n := s.nodes[id]
		if !containsLabel(n.labels, label) {
			continue
		}
		ok := true
		for _, v := range params {
			found := false
			for _, pv := range n.props {
				if reflect.DeepEqual(pv, normalize(v)) {
					found = true
				}
			}
			ok = ok && found
		}
		if ok {
			out = append(out, n)
		}
	}
	return out
}

// paths returns one single-hop Path per relationship within depth hops of id,
// which carries the same nodes and relationships as variable-length paths.
func (s *memState) paths(id string, depth int) []any {
	out := []any{}
	seen := map[string]bool{}
	frontier := map[string]bool{id: true}
	visited := map[string]bool{id: true}
	for hop := 0; hop < depth; hop++ {
		next := map[string]bool{}
		for _, rid := range s.relOrder {
			r := s.rels[rid]
			if !frontier[r.from] && !frontier[r.to] {
				continue
			}
			if !seen[rid] {
				seen[rid] = true
				out = append(out, Path{
					Nodes:         []GraphNode{s.graphNode(s.nodes[r.from]), s.graphNode(s.nodes[r.to])},
					Relationships: []Edge{{ID: r.id, Source: r.from, Target: r.to, Type: r.relType, Properties: copyProps(r.props)}},
				})
			}
			for _, end := range []string{r.from, r.to} {
				if !visited[end] {
					visited[end] = true
					next[end] = true
				}
			}
		}
		frontier = next
	}
	return out
}

func (s *memState) createNode(label string, props map[string]any) string {
	s.seq++
	id := "4:node:" + strconv.Itoa(s.seq)
	n := &memNode{id: id, labels: []string{label}, props: map[string]any{}}
	setProps(n.props, props)
	s.nodes[id] = n
	s.order = append(s.order, id)
	return id
}

func (s *memState) deleteNode(id string) {
	for _, rid := range append([]string(nil), s.relOrder...) {
		if r := s.rels[rid]; r.from == id || r.to == id {
			s.deleteRel(rid)
		}
	}
	delete(s.nodes, id)
	s.order = without(s.order, id)
}

func (s *memState) deleteRel(id string) {
	delete(s.rels, id)
	s.relOrder = without(s.relOrder, id)
}

func (s *memState) graphNode(n *memNode) GraphNode {
	return GraphNode{ID: n.id, Labels: append([]string(nil), n.labels...), Properties: copyProps(n.props)}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:      s.seq,
		nodes:    make(map[string]*memNode, len(s.nodes)),
		order:    append([]string(nil), s.order...),
		rels:     make(map[string]*memRel, len(s.rels)),
		relOrder: append([]string(nil), s.relOrder...),
	}
	for id, n := range s.nodes {
		c.nodes[id] = &memNode{id: n.id, labels: n.labels, props: copyProps(n.props)}
	}
	for id, r := range s.rels {
		cp := *r
		cp.props = copyProps(r.props)
		c.rels[id] = &cp
	}
	return c
}

func idRow(id string) []*Record {
	return []*Record{{Keys: []string{"id"}, Values: []any{id}}}
}

func setProps(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = normalize(v)
	}
}

func hasProps(have, want map[string]any) bool {
	for k, v := range want {
		if !reflect.DeepEqual(have[k], normalize(v)) {
			return false
		}
	}
	return true
}

// normalize mirrors the store's value model for parameters passed in raw
// form by callers (plain ints and typed slices).
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func submatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
