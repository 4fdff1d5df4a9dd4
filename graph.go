package neogm

// GraphNode represents a node returned by the store. It is a domain-agnostic
// representation, capturing the essential components of any node: its element
// id, its labels and its properties. It serializes cleanly to JSON.
type GraphNode struct {
	// ID is the element id assigned by the store.
	ID string `json:"id"`

	// Labels holds every label attached to the node (e.g., ["Person"]).
	Labels []string `json:"labels"`

	// Properties is a map containing the key-value properties of the node.
	Properties map[string]any `json:"properties"`
}

// Edge represents a relationship returned by the store, with the element ids
// of the nodes it starts and ends at.
type Edge struct {
	// ID is the element id assigned by the store.
	ID string `json:"id"`

	// Source is the element id of the node where the relationship starts.
	Source string `json:"source"`

	// Target is the element id of the node where the relationship ends.
	Target string `json:"target"`

	// Type is the relationship's type (e.g., "ACTED_IN", "DIRECTED").
	Type string `json:"type"`

	// Properties is a map containing the key-value properties of the relationship.
	Properties map[string]any `json:"properties"`
}

// Path is an alternating walk of nodes and relationships.
type Path struct {
	Nodes         []GraphNode
	Relationships []Edge
}

// GraphResult is a top-level container for a graph query result: the unique
// nodes and edges found in the returned rows, in first-seen order.
type GraphResult struct {
	// Nodes contains all the unique nodes retrieved by the query.
	Nodes []*GraphNode `json:"nodes"`

	// Edges contains all the unique relationships retrieved by the query.
	Edges []*Edge `json:"edges"`

	nodeIndex map[string]*GraphNode
	edgeIndex map[string]*Edge
}

// NewGraphResult returns an empty result ready for Add.
func NewGraphResult() *GraphResult {
	return &GraphResult{
		Nodes:     make([]*GraphNode, 0),
		Edges:     make([]*Edge, 0),
		nodeIndex: make(map[string]*GraphNode),
		edgeIndex: make(map[string]*Edge),
	}
}

// Add walks a row value and records every node and relationship it contains,
// de-duplicating by element id. Lists and paths are walked recursively; any
// other value is ignored.
func (g *GraphResult) Add(value any) {
	switch v := value.(type) {
	case GraphNode:
		g.addNode(v)
	case *GraphNode:
		if v != nil {
			g.addNode(*v)
		}
	case Edge:
		g.addEdge(v)
	case *Edge:
		if v != nil {
			g.addEdge(*v)
		}
	case Path:
		for _, n := range v.Nodes {
			g.addNode(n)
		}
		for _, e := range v.Relationships {
			g.addEdge(e)
		}
	case []any:
		for _, item := range v {
			g.Add(item)
		}
	}
}

// Node returns the node with the given element id.
func (g *GraphResult) Node(id string) (*GraphNode, bool) {
	n, ok := g.nodeIndex[id]
	return n, ok
}

func (g *GraphResult) addNode(n GraphNode) {
	if _, seen := g.nodeIndex[n.ID]; seen {
		return
	}
	node := n
	g.nodeIndex[n.ID] = &node
	g.Nodes = append(g.Nodes, &node)
}

func (g *GraphResult) addEdge(e Edge) {
	if _, seen := g.edgeIndex[e.ID]; seen {
		return
	}
	edge := e
	g.edgeIndex[e.ID] = &edge
	g.Edges = append(g.Edges, &edge)
}

// graphFromRecords builds the de-duplicated graph of every value in records.
func graphFromRecords(records []*Record) *GraphResult {
	graph := NewGraphResult()
	for _, record := range records {
		for _, value := range record.Values {
			graph.Add(value)
		}
	}
	return graph
}

func hasLabel(n *GraphNode, label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}
