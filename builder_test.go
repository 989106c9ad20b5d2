package cabintwin

import (
	"fmt"
	"hash"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// based on stdlib strings/builder_test.go
func TestBuilderCopyPanic(t *testing.T) {
	tests := []struct {
		name      string
		fn        func()
		wantPanic bool
	}{
		{
			name:      "Assemble",
			wantPanic: false,
			fn: func() {
				var a AssemblyBuilder
				a.Nodes(dummyNode{})
				b := a
				_ = b.Assemble() // appease vet
			},
		},
		{
			name:      "Reset",
			wantPanic: false,
			fn: func() {
				var a AssemblyBuilder
				a.Nodes(dummyNode{id: 'x'})
				b := a
				b.Reset()
				b.Nodes(dummyNode{id: 'y'})
			},
		},
		{
			name:      "Nodes",
			wantPanic: true,
			fn: func() {
				var a AssemblyBuilder
				a.Nodes(dummyNode{id: 'x'})
				b := a
				b.Nodes(dummyNode{id: 'y'})
			},
		},
		{
			name:      "Connect",
			wantPanic: true,
			fn: func() {
				var a AssemblyBuilder
				a.Connect(dummyNode{id: 'x'}, dummyNode{id: 'X'})
				b := a
				b.Connect(dummyNode{id: 'y'}, dummyNode{id: 'Y'})
			},
		},
		{
			name:      "Roots",
			wantPanic: true,
			fn: func() {
				var a AssemblyBuilder
				a.Roots(dummyNode{id: 'x'}, dummyNode{id: 'X'})
				b := a
				b.Roots(dummyNode{id: 'y'}, dummyNode{id: 'Y'})
			},
		},
	}
	for _, tt := range tests {
		didPanic := make(chan bool)
		go func() {
			defer func() { didPanic <- recover() != nil }()
			tt.fn()
		}()
		if got := <-didPanic; got != tt.wantPanic {
			t.Errorf("%s: panicked = %v; want %v", tt.name, got, tt.wantPanic)
		}
	}
}

func TestBuilderAssembleIsolated(t *testing.T) {
	var b AssemblyBuilder
	b.Roots(dummyNode{id: 'a'})
	b.Connect(dummyNode{id: 'a'}, dummyNode{id: 'b'})
	before := b.Assemble()
	hash := before.AssemblyHash()

	// keep building; the assembly already returned must not change
	b.Connect(dummyNode{id: 'b'}, dummyNode{id: 'c'})
	after := b.Assemble()

	if got := before.AssemblyHash(); got != hash {
		t.Errorf("AssemblyHash() changed after further building: %v != %v", got, hash)
	}
	if before.AssemblyID() != after.AssemblyID() {
		t.Errorf("AssemblyID() differs with the same roots: %v != %v", before.AssemblyID(), after.AssemblyID())
	}
	if before.AssemblyHash() == after.AssemblyHash() {
		t.Errorf("AssemblyHash() equal after adding an edge: %v", after.AssemblyHash())
	}
	if got := len(after.Nodes()); got != 3 {
		t.Errorf("len(Nodes()) = %d, want 3", got)
	}
}

func TestBuilderDuplicateEdges(t *testing.T) {
	var b AssemblyBuilder
	b.Connect(dummyNode{id: 'a'}, dummyNode{id: 'b'})
	b.Connect(dummyNode{id: 'a'}, dummyNode{id: 'b'})
	a := b.Assemble()

	got := a.EdgesOf(MustContentAddress(dummyNode{id: 'a'}))
	want := []NodeHash{MustContentAddress(dummyNode{id: 'b'})}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EdgesOf() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderZero(t *testing.T) {
	var b AssemblyBuilder
	a := b.Assemble()
	if len(a.Roots()) != 0 || len(a.Nodes()) != 0 {
		t.Errorf("Assemble() on a zero builder = %v, want empty", a)
	}
}

type dummyNode struct {
	InformationElement
	id byte
}

func (d dummyNode) String() string {
	return fmt.Sprintf("dummy(%d)", d.id)
}

func (d dummyNode) ContentAddress(h hash.Hash) error {
	h.Write([]byte{d.id})
	return nil
}
