package engine

import (
	"sort"
	"strings"

	"github.com/stackdock-io/stackdock/internal/ir"
)

// RefScheme prefixes an interpolated reference to another resource's
// attribute: ref://<type>.<name>/<attribute>.
const RefScheme = "ref://"

// Graph is the directed acyclic dependency graph over resource addresses.
type Graph struct {
	nodes    map[string]*graphNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type graphNode struct {
	addr     string
	index    int      // declaration order, used as a stable tie-break
	edges    []string // addresses this node depends on
	revEdges []string // addresses that depend on this node
}

// Build constructs the dependency graph from declared resources. Edges come
// from explicit depends_on entries and from ref:// interpolations found
// anywhere in properties. A reference to an undeclared resource is an
// UnresolvedReferenceError; a cycle is a CycleError.
func Build(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for i, res := range resources {
		g.nodes[res.Address()] = &graphNode{addr: res.Address(), index: i}
	}

	for _, res := range resources {
		addr := res.Address()
		node := g.nodes[addr]

		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnresolvedReferenceError{Address: addr, Reference: dep}
			}
			node.edges = append(node.edges, dep)
		}

		for _, ref := range ExtractRefs(res.Properties) {
			depAddr, _, ok := RefAddress(ref)
			if !ok {
				continue
			}
			if _, exists := g.nodes[depAddr]; !exists {
				return nil, &UnresolvedReferenceError{Address: addr, Reference: depAddr}
			}
			node.edges = append(node.edges, depAddr)
		}
	}

	if err := g.finish(); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildFromState constructs the graph from applied state, using the
// dependencies recorded at apply time. Edges to resources no longer present
// in state are dropped (they were already destroyed).
func BuildFromState(resources []*ir.ResourceState) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for i, res := range resources {
		g.nodes[res.Address()] = &graphNode{addr: res.Address(), index: i}
	}
	for _, res := range resources {
		node := g.nodes[res.Address()]
		for _, dep := range res.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	if err := g.finish(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) finish() error {
	for addr, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, addr)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return err
	}
	g.order = order

	g.revOrder = make([]string, len(order))
	for i, addr := range order {
		g.revOrder[len(order)-1-i] = addr
	}
	return nil
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns addresses in reverse dependency order (safe for
// deletion: dependents first).
func (g *Graph) DestructionOrder() []string {
	return g.revOrder
}

// Dependencies returns the direct dependencies of the given address.
func (g *Graph) Dependencies(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the addresses that directly depend on the given one.
func (g *Graph) Dependents(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

// topoSort runs Kahn's algorithm. Ready nodes are drained in declaration
// order so plans are reproducible across runs.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.edges)
	}

	var ready []*graphNode
	for _, node := range g.nodes {
		if inDegree[node.addr] == 0 {
			ready = append(ready, node)
		}
	}
	sortByIndex(ready)

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		sorted = append(sorted, node.addr)

		var unblocked []*graphNode
		for _, dep := range node.revEdges {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unblocked = append(unblocked, g.nodes[dep])
			}
		}
		sortByIndex(unblocked)
		ready = merge(ready, unblocked)
	}

	if len(sorted) != len(g.nodes) {
		var members []string
		for addr := range g.nodes {
			if inDegree[addr] > 0 {
				members = append(members, addr)
			}
		}
		sort.Strings(members)
		return nil, &CycleError{Members: members}
	}

	return sorted, nil
}

func sortByIndex(nodes []*graphNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
}

// merge keeps the ready queue ordered by declaration index.
func merge(a, b []*graphNode) []*graphNode {
	out := append(a, b...)
	sortByIndex(out)
	return out
}

// ExtractRefs walks a property value and collects every ref:// string.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, RefScheme) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}

// RefAddress splits ref://<type>.<name>/<attribute> into the target address
// and attribute name.
func RefAddress(ref string) (addr, attr string, ok bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", "", false
	}
	path := ref[len(RefScheme):]
	slash := strings.IndexByte(path, '/')
	if slash <= 0 || slash == len(path)-1 {
		return "", "", false
	}
	return path[:slash], path[slash+1:], true
}
