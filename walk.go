package cabintwin

// A Visitor's Visit method is invoked for each Value encountered by Walk. If the
// result visitor w is not nil, Walk visits each child of the node with the
// visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(node Value) (w Visitor)
}

// Walk traverses an Assembly in depth-first order, starting at each of its roots
// in turn.
func Walk(v Visitor, tree Assembly) {
	for _, root := range sortedHashes(tree.Roots()) {
		WalkSubtree(v, tree, root)
	}
}

// WalkSubtree traverses the subtree of tree rooted at node in depth-first order.
// Children are visited in content-address order so the traversal is stable.
func WalkSubtree(v Visitor, tree Assembly, node NodeHash) {
	if v = v.Visit(tree.Value(node)); v == nil {
		return
	}
	for _, child := range sortedHashes(tree.EdgesOf(node)) {
		WalkSubtree(v, tree, child)
	}
	v.Visit(nil)
}

type inspector func(value Value) bool

func (f inspector) Visit(node Value) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses an Assembly in depth-first order, calling f for every node
// it reaches. If f returns true, Inspect descends into the node's children,
// followed by a call of f(nil).
func Inspect(tree Assembly, f func(value Value) bool) {
	Walk(inspector(f), tree)
}

// SensorsOf returns every Sensor in the given assembly, in traversal order.
func SensorsOf(tree Assembly) []Sensor {
	var sensors []Sensor
	Inspect(tree, func(v Value) bool {
		if s, ok := v.(Sensor); ok {
			sensors = append(sensors, s)
		}
		return v != nil
	})
	return sensors
}

// PartsOf returns every Part in the given assembly, in traversal order.
func PartsOf(tree Assembly) []Part {
	var parts []Part
	Inspect(tree, func(v Value) bool {
		if p, ok := v.(Part); ok {
			parts = append(parts, p)
		}
		return v != nil
	})
	return parts
}
