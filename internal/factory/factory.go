package factory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gopcua/opcua/ua"
)

var (
	// ErrDuplicateType is returned when a name is registered twice in one factory
	ErrDuplicateType = errors.New("type already registered")
	// ErrTypeNotFound is returned when no factory in the chain knows a name
	ErrTypeNotFound = errors.New("type not found")
	// ErrInvalidSchema is returned for schemas that cannot be registered
	ErrInvalidSchema = errors.New("invalid schema")
)

// DataTypeFactory manages the types of one namespace. Lookups fall back to
// the parent factories in order. It is safe for concurrent use; registration
// checks for an existing name and stores under the same lock.
type DataTypeFactory struct {
	parents []*DataTypeFactory

	mu           sync.RWMutex
	structured   map[string]*StructuredTypeSchema
	constructors map[string]Constructor
	enumerations map[string]*EnumerationSchema
	basics       map[string]*BasicType
	byDataType   map[string]TypeDefinition
	byEncoding   map[string]*StructuredTypeSchema
}

// New creates a factory that falls back to parents on lookup
func New(parents ...*DataTypeFactory) *DataTypeFactory {
	ps := make([]*DataTypeFactory, 0, len(parents))
	for _, p := range parents {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &DataTypeFactory{
		parents:      ps,
		structured:   make(map[string]*StructuredTypeSchema),
		constructors: make(map[string]Constructor),
		enumerations: make(map[string]*EnumerationSchema),
		basics:       make(map[string]*BasicType),
		byDataType:   make(map[string]TypeDefinition),
		byEncoding:   make(map[string]*StructuredTypeSchema),
	}
}

// RegisterStructuredType stores the schema and returns a constructor bound to
// it. Registering a name this factory already holds fails with
// ErrDuplicateType and keeps the first schema.
func (f *DataTypeFactory) RegisterStructuredType(schema *StructuredTypeSchema) (Constructor, error) {
	if schema == nil || schema.Name == "" {
		return nil, fmt.Errorf("%w: structured type without a name", ErrInvalidSchema)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.structured[schema.Name]; exists {
		return nil, fmt.Errorf("structured type %s: %w", schema.Name, ErrDuplicateType)
	}

	ctor := newConstructor(schema, f)
	f.structured[schema.Name] = schema
	f.constructors[schema.Name] = ctor
	if schema.DataTypeNodeID != nil {
		f.byDataType[schema.DataTypeNodeID.String()] = schema
	}
	for _, enc := range []*ua.ExpandedNodeID{schema.EncodingDefaultBinary, schema.EncodingDefaultXML, schema.EncodingDefaultJSON} {
		if enc != nil && enc.NodeID != nil {
			f.byEncoding[enc.NodeID.String()] = schema
		}
	}
	return ctor, nil
}

// RegisterEnumeration stores an enumeration schema
func (f *DataTypeFactory) RegisterEnumeration(e *EnumerationSchema) error {
	if e == nil || e.Name == "" {
		return fmt.Errorf("%w: enumeration without a name", ErrInvalidSchema)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.enumerations[e.Name]; exists {
		return fmt.Errorf("enumeration %s: %w", e.Name, ErrDuplicateType)
	}
	f.enumerations[e.Name] = e
	if e.DataTypeNodeID != nil {
		f.byDataType[e.DataTypeNodeID.String()] = e
	}
	return nil
}

// RegisterSimpleType stores a basic type descriptor
func (f *DataTypeFactory) RegisterSimpleType(b *BasicType) error {
	if b == nil || b.Name == "" {
		return fmt.Errorf("%w: basic type without a name", ErrInvalidSchema)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.basics[b.Name]; exists {
		return fmt.Errorf("basic type %s: %w", b.Name, ErrDuplicateType)
	}
	f.basics[b.Name] = b
	return nil
}

// HasStructuredType reports whether the chain knows a structure by that name
func (f *DataTypeFactory) HasStructuredType(name string) bool {
	_, ok := f.lookupStructured(name)
	return ok
}

// GetStructuredTypeSchema returns the structure schema registered under name
func (f *DataTypeFactory) GetStructuredTypeSchema(name string) (*StructuredTypeSchema, error) {
	s, ok := f.lookupStructured(name)
	if !ok {
		return nil, fmt.Errorf("structured type %s: %w", name, ErrTypeNotFound)
	}
	return s, nil
}

// HasEnumeration reports whether the chain knows an enumeration by that name
func (f *DataTypeFactory) HasEnumeration(name string) bool {
	_, ok := f.lookupEnumeration(name)
	return ok
}

// GetEnumeration returns the enumeration registered under name
func (f *DataTypeFactory) GetEnumeration(name string) (*EnumerationSchema, error) {
	e, ok := f.lookupEnumeration(name)
	if !ok {
		return nil, fmt.Errorf("enumeration %s: %w", name, ErrTypeNotFound)
	}
	return e, nil
}

// HasSimpleType reports whether the chain knows a basic type by that name
func (f *DataTypeFactory) HasSimpleType(name string) bool {
	_, ok := f.lookupBasic(name)
	return ok
}

// GetSimpleType returns the basic type registered under name
func (f *DataTypeFactory) GetSimpleType(name string) (*BasicType, error) {
	b, ok := f.lookupBasic(name)
	if !ok {
		return nil, fmt.Errorf("basic type %s: %w", name, ErrTypeNotFound)
	}
	return b, nil
}

// Constructor returns the constructor of a registered structure
func (f *DataTypeFactory) Constructor(name string) (Constructor, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[name]
	f.mu.RUnlock()
	if ok {
		return ctor, nil
	}
	for _, p := range f.parents {
		if ctor, err := p.Constructor(name); err == nil {
			return ctor, nil
		}
	}
	return nil, fmt.Errorf("constructor for %s: %w", name, ErrTypeNotFound)
}

// NewObject instantiates a registered structure with default field values
func (f *DataTypeFactory) NewObject(name string) (*Object, error) {
	ctor, err := f.Constructor(name)
	if err != nil {
		return nil, err
	}
	return ctor(), nil
}

// FindByDataTypeID returns the structure or enumeration registered for a data type node
func (f *DataTypeFactory) FindByDataTypeID(id *ua.NodeID) (TypeDefinition, bool) {
	if id == nil {
		return nil, false
	}
	f.mu.RLock()
	def, ok := f.byDataType[id.String()]
	f.mu.RUnlock()
	if ok {
		return def, true
	}
	for _, p := range f.parents {
		if def, ok := p.FindByDataTypeID(id); ok {
			return def, true
		}
	}
	return nil, false
}

// FindByEncodingID returns the structure owning an encoding node
func (f *DataTypeFactory) FindByEncodingID(id *ua.NodeID) (*StructuredTypeSchema, bool) {
	if id == nil {
		return nil, false
	}
	f.mu.RLock()
	s, ok := f.byEncoding[id.String()]
	f.mu.RUnlock()
	if ok {
		return s, true
	}
	for _, p := range f.parents {
		if s, ok := p.FindByEncodingID(id); ok {
			return s, true
		}
	}
	return nil, false
}

// StructuredTypes returns the structures registered in this factory (not its
// parents) sorted by name
func (f *DataTypeFactory) StructuredTypes() []*StructuredTypeSchema {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]*StructuredTypeSchema, 0, len(f.structured))
	for _, s := range f.structured {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Enumerations returns the enumerations registered in this factory sorted by name
func (f *DataTypeFactory) Enumerations() []*EnumerationSchema {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]*EnumerationSchema, 0, len(f.enumerations))
	for _, e := range f.enumerations {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Count returns the number of structures and enumerations in this factory
func (f *DataTypeFactory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.structured) + len(f.enumerations)
}

func (f *DataTypeFactory) lookupStructured(name string) (*StructuredTypeSchema, bool) {
	f.mu.RLock()
	s, ok := f.structured[name]
	f.mu.RUnlock()
	if ok {
		return s, true
	}
	for _, p := range f.parents {
		if s, ok := p.lookupStructured(name); ok {
			return s, true
		}
	}
	return nil, false
}

func (f *DataTypeFactory) lookupEnumeration(name string) (*EnumerationSchema, bool) {
	f.mu.RLock()
	e, ok := f.enumerations[name]
	f.mu.RUnlock()
	if ok {
		return e, true
	}
	for _, p := range f.parents {
		if e, ok := p.lookupEnumeration(name); ok {
			return e, true
		}
	}
	return nil, false
}

func (f *DataTypeFactory) lookupBasic(name string) (*BasicType, bool) {
	f.mu.RLock()
	b, ok := f.basics[name]
	f.mu.RUnlock()
	if ok {
		return b, true
	}
	for _, p := range f.parents {
		if b, ok := p.lookupBasic(name); ok {
			return b, true
		}
	}
	return nil, false
}
