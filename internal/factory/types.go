// Package factory provides the runtime type registry that data type discovery
// populates. A DataTypeFactory holds, keyed by type name, the structured type
// schemas, enumeration schemas and basic type descriptors of one namespace and
// falls back to its parent factories (usually the standard one) on lookup.
package factory

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// FieldCategory is the kind a data type ultimately resolves to
type FieldCategory int

const (
	// Basic is a built-in primitive type or a subtype of one
	Basic FieldCategory = iota
	// Complex is a structure
	Complex
	// Enumeration is an enumerated type
	Enumeration
)

// String returns the string representation of the category
func (c FieldCategory) String() string {
	switch c {
	case Basic:
		return "basic"
	case Complex:
		return "complex"
	case Enumeration:
		return "enumeration"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for FieldCategory
func (c FieldCategory) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// TypeDefinition is implemented by every schema kind held in a factory
type TypeDefinition interface {
	TypeName() string
	Category() FieldCategory
}

// BasicType describes a primitive type. Subtypes of built-in types (Duration,
// UtcTime, ...) share the encoding of the built-in they derive from.
type BasicType struct {
	Name    string `json:"name"`
	BuiltIn string `json:"builtIn"` // name of the built-in type used on the wire
	ID      uint32 `json:"id"`      // numeric identifier of the built-in in namespace 0
	Default any    `json:"-"`
}

// TypeName implements TypeDefinition
func (b *BasicType) TypeName() string { return b.Name }

// Category implements TypeDefinition
func (b *BasicType) Category() FieldCategory { return Basic }

// EnumValue is a single named value of an enumeration
type EnumValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// EnumerationSchema describes an enumerated type
type EnumerationSchema struct {
	Name           string      `json:"name"`
	DataTypeNodeID *ua.NodeID  `json:"-"`
	Values         []EnumValue `json:"values"`
}

// TypeName implements TypeDefinition
func (e *EnumerationSchema) TypeName() string { return e.Name }

// Category implements TypeDefinition
func (e *EnumerationSchema) Category() FieldCategory { return Enumeration }

// ValueOf returns the numeric value of the named member
func (e *EnumerationSchema) ValueOf(name string) (int64, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// NameOf returns the member name for a numeric value
func (e *EnumerationSchema) NameOf(value int64) (string, bool) {
	for _, v := range e.Values {
		if v.Value == value {
			return v.Name, true
		}
	}
	return "", false
}

// FieldSchema is a resolved structure field
type FieldSchema struct {
	Name       string         `json:"name"`
	FieldType  string         `json:"fieldType"`
	Category   FieldCategory  `json:"category"`
	IsArray    bool           `json:"isArray,omitempty"`
	IsOptional bool           `json:"isOptional,omitempty"`
	Schema     TypeDefinition `json:"-"`
}

// String returns a compact representation like "points: Point[]"
func (f *FieldSchema) String() string {
	s := fmt.Sprintf("%s: %s", f.Name, f.FieldType)
	if f.IsArray {
		s += "[]"
	}
	if f.IsOptional {
		s += "?"
	}
	return s
}

// StructuredTypeSchema is the unit of registration for structures. It is not
// modified once registered.
type StructuredTypeSchema struct {
	Name          string           `json:"name"`
	BaseType      string           `json:"baseType"`
	StructureType ua.StructureType `json:"structureType"`
	Fields        []FieldSchema    `json:"fields"`

	DataTypeNodeID        *ua.NodeID         `json:"-"`
	EncodingDefaultBinary *ua.ExpandedNodeID `json:"-"`
	EncodingDefaultXML    *ua.ExpandedNodeID `json:"-"`
	EncodingDefaultJSON   *ua.ExpandedNodeID `json:"-"`
}

// TypeName implements TypeDefinition
func (s *StructuredTypeSchema) TypeName() string { return s.Name }

// Category implements TypeDefinition
func (s *StructuredTypeSchema) Category() FieldCategory { return Complex }

// Field returns the named field
func (s *StructuredTypeSchema) Field(name string) (*FieldSchema, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// IsUnion reports whether at most one field carries a value at a time
func (s *StructuredTypeSchema) IsUnion() bool {
	return s.StructureType == ua.StructureTypeUnion
}
