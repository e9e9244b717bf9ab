package factory

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gopcua/opcua/ua"
)

// Constructor creates a live value of a registered structure
type Constructor func() *Object

// StructuredValue is the capability generic codecs use to handle a structure
// whose Go type is not known at compile time
type StructuredValue interface {
	Schema() *StructuredTypeSchema
	FieldNames() []string
	Get(name string) (any, error)
	Set(name string, value any) error
	Encode(enc FieldEncoder) error
	Decode(dec FieldDecoder) error
}

// FieldEncoder receives the fields of a structure in declaration order
type FieldEncoder interface {
	EncodeField(field *FieldSchema, value any) error
}

// FieldDecoder produces field values in declaration order
type FieldDecoder interface {
	DecodeField(field *FieldSchema) (any, error)
}

// Object is a structure value built from a schema. Each field value is tagged
// by the field's category: basic fields hold Go scalars, complex fields hold
// *Object, enumeration fields hold int64 and array fields hold []any.
type Object struct {
	schema  *StructuredTypeSchema
	factory *DataTypeFactory
	values  map[string]any
}

var _ StructuredValue = (*Object)(nil)

func newConstructor(schema *StructuredTypeSchema, f *DataTypeFactory) Constructor {
	return func() *Object {
		o := &Object{
			schema:  schema,
			factory: f,
			values:  make(map[string]any, len(schema.Fields)),
		}
		for i := range schema.Fields {
			fld := &schema.Fields[i]
			o.values[fld.Name] = defaultValue(fld, f)
		}
		return o
	}
}

func defaultValue(fld *FieldSchema, f *DataTypeFactory) any {
	if fld.IsArray {
		return []any{}
	}
	if fld.IsOptional {
		return nil
	}
	switch s := fld.Schema.(type) {
	case *BasicType:
		return s.Default
	case *EnumerationSchema:
		if len(s.Values) > 0 {
			return s.Values[0].Value
		}
		return int64(0)
	case *StructuredTypeSchema:
		if ctor, err := f.Constructor(s.Name); err == nil {
			return ctor()
		}
		// registered in another namespace
		return newConstructor(s, f)()
	default:
		return nil
	}
}

// Schema returns the schema the object was built from
func (o *Object) Schema() *StructuredTypeSchema { return o.schema }

// TypeID returns the binary encoding identity used to wrap the object in an
// extension object
func (o *Object) TypeID() *ua.ExpandedNodeID { return o.schema.EncodingDefaultBinary }

// FieldNames returns the field names in declaration order
func (o *Object) FieldNames() []string {
	names := make([]string, len(o.schema.Fields))
	for i, f := range o.schema.Fields {
		names[i] = f.Name
	}
	return names
}

// Get returns the value of a field
func (o *Object) Get(name string) (any, error) {
	if _, ok := o.schema.Field(name); !ok {
		return nil, fmt.Errorf("%s has no field %s", o.schema.Name, name)
	}
	return o.values[name], nil
}

// Set assigns a field after checking the value against the field's category
func (o *Object) Set(name string, value any) error {
	fld, ok := o.schema.Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %s", o.schema.Name, name)
	}
	v, err := coerce(fld, value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", o.schema.Name, name, err)
	}
	if o.schema.IsUnion() && v != nil {
		for k := range o.values {
			o.values[k] = nil
		}
	}
	o.values[name] = v
	return nil
}

// Encode hands every field to enc in declaration order
func (o *Object) Encode(enc FieldEncoder) error {
	for i := range o.schema.Fields {
		fld := &o.schema.Fields[i]
		if err := enc.EncodeField(fld, o.values[fld.Name]); err != nil {
			return fmt.Errorf("encode %s.%s: %w", o.schema.Name, fld.Name, err)
		}
	}
	return nil
}

// Decode fills every field from dec in declaration order
func (o *Object) Decode(dec FieldDecoder) error {
	for i := range o.schema.Fields {
		fld := &o.schema.Fields[i]
		v, err := dec.DecodeField(fld)
		if err != nil {
			return fmt.Errorf("decode %s.%s: %w", o.schema.Name, fld.Name, err)
		}
		if err := o.Set(fld.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// String returns a representation like "Point{x: 1, y: 2}"
func (o *Object) String() string {
	var b strings.Builder
	b.WriteString(o.schema.Name)
	b.WriteString("{")
	for i, f := range o.schema.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Name, o.values[f.Name])
	}
	b.WriteString("}")
	return b.String()
}

func coerce(fld *FieldSchema, value any) (any, error) {
	if value == nil {
		if fld.IsOptional || fld.IsArray {
			return nil, nil
		}
		if fld.Category == Complex {
			return nil, nil
		}
		return nil, fmt.Errorf("nil value for mandatory %s field", fld.Category)
	}
	if fld.IsArray {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected []any, got %T", value)
		}
		scalar := *fld
		scalar.IsArray = false
		scalar.IsOptional = false
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerce(&scalar, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	switch fld.Category {
	case Complex:
		obj, ok := value.(*Object)
		if !ok {
			return nil, fmt.Errorf("expected *Object, got %T", value)
		}
		if s, ok := fld.Schema.(*StructuredTypeSchema); ok && obj.schema.Name != s.Name {
			return nil, fmt.Errorf("expected %s, got %s", s.Name, obj.schema.Name)
		}
		return obj, nil
	case Enumeration:
		return coerceEnum(fld, value)
	default:
		b, ok := fld.Schema.(*BasicType)
		if !ok || b.Default == nil {
			return value, nil
		}
		if reflect.TypeOf(value) != reflect.TypeOf(b.Default) {
			return nil, fmt.Errorf("expected %T for %s, got %T", b.Default, b.Name, value)
		}
		return value, nil
	}
}

func coerceEnum(fld *FieldSchema, value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int64:
		n = v
	case int32:
		n = int64(v)
	case int:
		n = int64(v)
	case string:
		e, ok := fld.Schema.(*EnumerationSchema)
		if !ok {
			return nil, fmt.Errorf("enumeration %s has no schema", fld.FieldType)
		}
		num, ok := e.ValueOf(v)
		if !ok {
			return nil, fmt.Errorf("%s has no member %q", e.Name, v)
		}
		return num, nil
	default:
		return nil, fmt.Errorf("expected enumeration value, got %T", value)
	}
	if e, ok := fld.Schema.(*EnumerationSchema); ok && len(e.Values) > 0 {
		if _, ok := e.NameOf(n); !ok {
			return nil, fmt.Errorf("%d is not a member of %s", n, e.Name)
		}
	}
	return n, nil
}
