package cabintwin

import (
	"crypto/sha1"
	"encoding/gob"
	"fmt"
	"slices"
	"strings"
)

// Assembly is a self-sufficient directed graph of asset nodes. Edges point from
// a container to what it contains (a cabin contains a part, a part carries a
// sensor).
//
// Do not modify the values returned from its functions.
type Assembly interface {
	Roots() []NodeHash
	Nodes() map[NodeHash]Value
	Value(n NodeHash) Value
	EdgesOf(n NodeHash) []NodeHash
	VisitEdges(fn func(from, to Value) bool)
	// AssemblyID hashes the root nodes of the assembly.
	AssemblyID() ComponentID
	// AssemblyHash hashes the entire graph, roots included.
	AssemblyHash() ComponentHash
}

func init() {
	gob.Register(AssemblyGraph{})
}

// AssemblyGraph is the concrete Assembly produced by an AssemblyBuilder.
// DO NOT modify its Root, Vertices and Neighbours manually.
type AssemblyGraph struct {
	Root       []NodeHash
	Vertices   map[NodeHash]Value
	Neighbours map[NodeHash][]NodeHash
}

func (a AssemblyGraph) Roots() []NodeHash             { return a.Root }
func (a AssemblyGraph) Nodes() map[NodeHash]Value     { return a.Vertices }
func (a AssemblyGraph) Value(n NodeHash) Value        { return a.Vertices[n] }
func (a AssemblyGraph) EdgesOf(n NodeHash) []NodeHash { return a.Neighbours[n] }

// VisitEdges calls fn for every edge in a stable order (sources and targets
// sorted by content-address) until fn returns false.
func (a AssemblyGraph) VisitEdges(fn func(from, to Value) bool) {
	for _, from := range sortedKeys(a.Neighbours) {
		for _, to := range sortedHashes(a.Neighbours[from]) {
			if !fn(a.Vertices[from], a.Vertices[to]) {
				return
			}
		}
	}
}

func (a AssemblyGraph) AssemblyID() ComponentID {
	h := sha1.New()
	for _, r := range sortedHashes(a.Root) {
		h.Write(r[:])
	}
	return ComponentID(h.Sum(nil))
}

func (a AssemblyGraph) AssemblyHash() ComponentHash {
	h := sha1.New()
	id := a.AssemblyID()
	h.Write(id[:])
	for _, from := range sortedKeys(a.Vertices) {
		h.Write(from[:])
		for _, to := range sortedHashes(a.Neighbours[from]) {
			h.Write(to[:])
		}
	}
	return ComponentHash(h.Sum(nil))
}

func sortedHashes(s []NodeHash) []NodeHash {
	out := slices.Clone(s)
	slices.SortFunc(out, compareHashes[NodeHash])
	return out
}

func sortedKeys[V any](m map[NodeHash]V) []NodeHash {
	out := make([]NodeHash, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, compareHashes[NodeHash])
	return out
}

// FormatAssembly returns a human-readable, line-per-edge representation of the
// given assembly. The indent string is prepended to each line.
func FormatAssembly(a Assembly, indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, indent+"%v | %v\n", a.AssemblyID(), a.AssemblyHash())
	a.VisitEdges(func(s, t Value) bool {
		fmt.Fprintf(&b, indent+"  %v -> %v\n", s, t)
		return true
	})
	return b.String()
}
