package cabintwin

// Value is the atomic unit of information of an asset Assembly: every node of
// the asset graph (a truck, its cabin, a part, a sensor) is a Value.
//
// Type-assert values in order to access the actual type and its fields.
//
// DO NOT forget to register your type with gob.Register() before encoding.
type Value interface {
	// cabintwin is a no-op method that distinguishes between types that
	// implement Value and those that do not.
	//
	// It is unexported to prevent implementation by types outside this package;
	// such types should embed InformationElement instead.
	cabintwin()
}

// InformationElement implements Value in order to embed into user-defined types
// to explicitly implement Value. A field of this type takes up no memory.
type InformationElement struct{}

func (InformationElement) cabintwin() {}
