package cabintwin

import (
	"bytes"
	"crypto/sha1"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"reflect"
	"sort"
)

// ContentAddresser is implemented by nodes that hash their own contents instead
// of relying on reflection. Keep such hashing stable as the software evolves:
// asset nodes are persisted by their content-address.
type ContentAddresser interface {
	ContentAddress(h hash.Hash) error
}

// ContentAddress returns a NodeHash for the given node.
//
// The hash covers the node's type (package path and name) followed by either
// the output of its ContentAddress method or, failing that, every exported
// field sorted by name. Two nodes with the same type and field values share a
// content-address, which is how a graph store recognises an existing node.
func ContentAddress(node Value) (NodeHash, error) {
	h := newNodeHash(node)
	if x, ok := node.(ContentAddresser); ok {
		if err := x.ContentAddress(h); err != nil {
			return NodeHash{}, err
		}
	} else if err := hashFields(h, reflect.ValueOf(node)); err != nil {
		return NodeHash{}, err
	}
	return NodeHash(h.Sum(nil)), nil
}

// MustContentAddress is like ContentAddress but panics if the node cannot be
// hashed. Use it with node types known to hash successfully, such as the asset
// types of this package.
func MustContentAddress(node Value) NodeHash {
	h, err := ContentAddress(node)
	if err != nil {
		panic(fmt.Sprintf("cabintwin: un-hashable node (type %T): %v", node, err))
	}
	return h
}

func hashFields(digest hash.Hash, node reflect.Value) error {
	if node.Kind() != reflect.Struct {
		panic("cabintwin: reflection-based content-address supports only structs; got " + node.Kind().String())
	}

	fields := reflect.VisibleFields(node.Type())
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})

	for _, field := range fields {
		if !field.IsExported() || field.Anonymous && field.Type == reflect.TypeOf(InformationElement{}) {
			continue
		}
		// renaming a field changes the hash
		digest.Write([]byte(field.Name))

		value := node.FieldByIndex(field.Index)
		if x, ok := value.Interface().(encoding.BinaryMarshaler); ok {
			b, err := x.MarshalBinary()
			if err != nil {
				return fmt.Errorf("binary field %s: %w", field.Name, err)
			}
			digest.Write(b)
			continue
		}

		switch value.Kind() {
		case reflect.String:
			digest.Write([]byte(value.String()))
		case reflect.Int:
			// int is architecture dependent; hash it as a varint
			buf := make([]byte, binary.MaxVarintLen64)
			n := binary.PutVarint(buf, value.Int())
			digest.Write(buf[:n])
		case reflect.Bool, reflect.Float32, reflect.Float64,
			reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if err := binary.Write(digest, binary.BigEndian, value.Interface()); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		case reflect.Struct:
			if err := hashFields(digest, value); err != nil {
				return fmt.Errorf("struct field %s: %w", field.Name, err)
			}
		default:
			return fmt.Errorf("field %s: unsupported %s %v", field.Name, value.Kind(), value.Type())
		}
	}
	return nil
}

// newNodeHash returns a digest already fed with the type-preamble of the given
// node.
func newNodeHash(node any) hash.Hash {
	h := sha1.New()
	t := reflect.TypeOf(node)
	h.Write([]byte(t.PkgPath()))
	h.Write([]byte(t.Name()))
	return h
}

// NodeHash is the content-address of a single asset node. It is computed from
// the node's contents, never assigned by a storage engine.
type NodeHash contentAddress

func (h NodeHash) MarshalText() ([]byte, error)     { return contentAddress(h).MarshalText() }
func (h *NodeHash) UnmarshalText(text []byte) error { return (*contentAddress)(h).UnmarshalText(text) }
func (h NodeHash) String() string                   { return "node(" + contentAddress(h).String() + ")" }
func (h NodeHash) IsZero() bool                     { return contentAddress(h).IsZero() }

// ComponentID identifies an Assembly by its roots, so it survives changes
// further down the graph (adding a sensor keeps the ID of a truck's assembly).
type ComponentID contentAddress

func (h ComponentID) MarshalText() ([]byte, error) { return contentAddress(h).MarshalText() }
func (h *ComponentID) UnmarshalText(text []byte) error {
	return (*contentAddress)(h).UnmarshalText(text)
}
func (h ComponentID) String() string { return "component(" + contentAddress(h).String() + ")" }
func (h ComponentID) IsZero() bool   { return contentAddress(h).IsZero() }

// ComponentHash versions an Assembly: it covers roots, nodes and edges, so two
// assemblies with the same ComponentHash are equal.
type ComponentHash contentAddress

func (h ComponentHash) MarshalText() ([]byte, error) { return contentAddress(h).MarshalText() }
func (h *ComponentHash) UnmarshalText(text []byte) error {
	return (*contentAddress)(h).UnmarshalText(text)
}
func (h ComponentHash) String() string { return "assembly(" + contentAddress(h).String() + ")" }
func (h ComponentHash) IsZero() bool   { return contentAddress(h).IsZero() }

// contentAddress is the hash primitive behind the strongly typed hashes above.
type contentAddress [sha1.Size]byte

func (h contentAddress) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(text, h[:])
	return text, nil
}

func (h *contentAddress) UnmarshalText(text []byte) error {
	n, err := hex.Decode(h[:], text)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if n != len(h) {
		return fmt.Errorf("not enough bytes: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

func (h contentAddress) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero value of the type.
func (h contentAddress) IsZero() bool { return h == contentAddress{} }

func compareHashes[H ~[sha1.Size]byte](a, b H) int { return bytes.Compare(a[:], b[:]) }
