package factory

import (
	"errors"
	"testing"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEncoder struct {
	names  []string
	values []any
}

func (r *recordingEncoder) EncodeField(f *FieldSchema, v any) error {
	r.names = append(r.names, f.Name)
	r.values = append(r.values, v)
	return nil
}

type sliceDecoder struct {
	values []any
	next   int
}

func (s *sliceDecoder) DecodeField(f *FieldSchema) (any, error) {
	if s.next >= len(s.values) {
		return nil, errors.New("short input")
	}
	v := s.values[s.next]
	s.next++
	return v, nil
}

func polygonFactory(t *testing.T) *DataTypeFactory {
	t.Helper()
	f := New(NewStandard())
	point := pointSchema()
	_, err := f.RegisterStructuredType(point)
	require.NoError(t, err)

	color := &EnumerationSchema{Name: "Color", Values: []EnumValue{{Name: "Red", Value: 1}, {Name: "Blue", Value: 2}}}
	require.NoError(t, f.RegisterEnumeration(color))

	str, _ := BuiltInType("String")
	_, err = f.RegisterStructuredType(&StructuredTypeSchema{
		Name:     "Polygon",
		BaseType: ExtensionObjectName,
		Fields: []FieldSchema{
			{Name: "name", FieldType: "String", Category: Basic, Schema: str},
			{Name: "origin", FieldType: "Point", Category: Complex, Schema: point},
			{Name: "points", FieldType: "Point", Category: Complex, IsArray: true, Schema: point},
			{Name: "color", FieldType: "Color", Category: Enumeration, Schema: color},
			{Name: "label", FieldType: "String", Category: Basic, IsOptional: true, Schema: str},
		},
	})
	require.NoError(t, err)
	return f
}

func TestObject_Defaults(t *testing.T) {
	f := polygonFactory(t)

	obj, err := f.NewObject("Polygon")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "origin", "points", "color", "label"}, obj.FieldNames())

	name, err := obj.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "", name)

	origin, err := obj.Get("origin")
	require.NoError(t, err)
	require.IsType(t, &Object{}, origin)
	assert.Equal(t, "Point", origin.(*Object).Schema().Name)

	points, _ := obj.Get("points")
	assert.Equal(t, []any{}, points)

	color, _ := obj.Get("color")
	assert.Equal(t, int64(1), color)

	label, _ := obj.Get("label")
	assert.Nil(t, label)
}

func TestObject_Set(t *testing.T) {
	f := polygonFactory(t)
	obj, err := f.NewObject("Polygon")
	require.NoError(t, err)
	p, err := f.NewObject("Point")
	require.NoError(t, err)

	tests := []struct {
		name    string
		field   string
		value   any
		wantErr bool
	}{
		{"basic ok", "name", "square", false},
		{"basic wrong type", "name", 12, true},
		{"complex ok", "origin", p, false},
		{"complex wrong type", "origin", "nope", true},
		{"array ok", "points", []any{p, p}, false},
		{"array wrong element", "points", []any{p, "x"}, true},
		{"array not a slice", "points", p, true},
		{"enum by name", "color", "Blue", false},
		{"enum by value", "color", int32(2), false},
		{"enum unknown member", "color", int64(7), true},
		{"optional nil", "label", nil, false},
		{"mandatory nil", "name", nil, true},
		{"unknown field", "missing", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := obj.Set(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	color, _ := obj.Get("color")
	assert.Equal(t, int64(2), color)
}

func TestObject_EncodeDecode(t *testing.T) {
	f := New(NewStandard())
	_, err := f.RegisterStructuredType(pointSchema())
	require.NoError(t, err)

	obj, err := f.NewObject("Point")
	require.NoError(t, err)
	require.NoError(t, obj.Decode(&sliceDecoder{values: []any{1.5, -2.0}}))
	assert.Equal(t, "Point{x: 1.5, y: -2}", obj.String())

	enc := &recordingEncoder{}
	require.NoError(t, obj.Encode(enc))
	assert.Equal(t, []string{"x", "y"}, enc.names)
	assert.Equal(t, []any{1.5, -2.0}, enc.values)

	err = obj.Decode(&sliceDecoder{values: []any{1.0}})
	assert.Error(t, err)
}

func TestObject_Union(t *testing.T) {
	f := New(NewStandard())
	i32, _ := BuiltInType("Int32")
	str, _ := BuiltInType("String")
	_, err := f.RegisterStructuredType(&StructuredTypeSchema{
		Name:          "Choice",
		StructureType: ua.StructureTypeUnion,
		Fields: []FieldSchema{
			{Name: "number", FieldType: "Int32", Category: Basic, IsOptional: true, Schema: i32},
			{Name: "text", FieldType: "String", Category: Basic, IsOptional: true, Schema: str},
		},
	})
	require.NoError(t, err)

	obj, err := f.NewObject("Choice")
	require.NoError(t, err)
	require.NoError(t, obj.Set("number", int32(4)))
	require.NoError(t, obj.Set("text", "four"))

	number, _ := obj.Get("number")
	assert.Nil(t, number, "setting one union member clears the others")
}
