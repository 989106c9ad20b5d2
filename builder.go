package cabintwin

// An AssemblyBuilder is used to build an Assembly with fluent calls.
// The zero value is ready to use.
// Do not copy a non-zero AssemblyBuilder.
type AssemblyBuilder struct {
	roots      []NodeHash
	nodes      map[NodeHash]Value
	neighbours map[NodeHash]map[NodeHash]struct{}
	// address of receiver, to detect copies by value
	addr *AssemblyBuilder
}

// Assemble returns the accumulated Assembly. The builder may be used further
// without affecting the returned Assembly.
func (b *AssemblyBuilder) Assemble() Assembly {
	var g AssemblyGraph
	if len(b.roots) != 0 {
		g.Root = make([]NodeHash, len(b.roots))
		copy(g.Root, b.roots)
	}
	if len(b.nodes) != 0 {
		g.Vertices = make(map[NodeHash]Value, len(b.nodes))
		for id, n := range b.nodes {
			g.Vertices[id] = n
		}
	}
	if len(b.neighbours) != 0 {
		g.Neighbours = make(map[NodeHash][]NodeHash, len(b.neighbours))
		for id, neighbours := range b.neighbours {
			g.Neighbours[id] = make([]NodeHash, 0, len(neighbours))
			for n := range neighbours {
				g.Neighbours[id] = append(g.Neighbours[id], n)
			}
		}
	}
	return g
}

// Reset resets the Builder to be empty.
func (b *AssemblyBuilder) Reset() {
	b.roots = nil
	b.nodes = nil
	b.neighbours = nil
	b.addr = nil
}

// Nodes adds the given nodes to b's node list.
func (b *AssemblyBuilder) Nodes(node ...Value) {
	b.copyCheck()
	if b.nodes == nil {
		b.nodes = make(map[NodeHash]Value, len(node))
	}
	for _, n := range node {
		b.nodes[MustContentAddress(n)] = n
	}
}

// Connect adds both nodes to b's node list and a directed edge from source to
// target.
func (b *AssemblyBuilder) Connect(source, target Value) {
	b.copyCheck()
	b.Nodes(source, target)
	from := MustContentAddress(source)
	to := MustContentAddress(target)
	if b.neighbours == nil {
		b.neighbours = make(map[NodeHash]map[NodeHash]struct{})
	}
	if b.neighbours[from] == nil {
		b.neighbours[from] = make(map[NodeHash]struct{})
	}
	b.neighbours[from][to] = struct{}{}
}

// Roots replaces b's root nodes with the given roots.
func (b *AssemblyBuilder) Roots(root ...Value) {
	b.copyCheck()
	b.Nodes(root...)
	b.roots = b.roots[:0]
	for _, n := range root {
		b.roots = append(b.roots, MustContentAddress(n))
	}
}

func (b *AssemblyBuilder) copyCheck() {
	if b.addr == nil {
		b.addr = b
	} else if b.addr != b {
		panic("cabintwin: illegal use of non-zero AssemblyBuilder copied by value")
	}
}
