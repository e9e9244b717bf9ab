package bsd

import (
	"context"
	"testing"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/uadiscover/internal/depsort"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

const plantSchema = `<?xml version="1.0" encoding="utf-8"?>
<opc:TypeDictionary
  xmlns:opc="http://opcfoundation.org/BinarySchema/"
  xmlns:ua="http://opcfoundation.org/UA/"
  xmlns:tns="urn:plant"
  DefaultByteOrder="LittleEndian"
  TargetNamespace="urn:plant">
  <opc:Import Namespace="http://opcfoundation.org/UA/" Location="Opc.Ua.BinarySchema.bsd"/>

  <opc:StructuredType Name="Polygon" BaseType="ua:ExtensionObject">
    <opc:Field Name="Name" TypeName="opc:CharArray"/>
    <opc:Field Name="NoOfPoints" TypeName="opc:Int32"/>
    <opc:Field Name="Points" TypeName="tns:Point" LengthField="NoOfPoints"/>
    <opc:Field Name="Fill" TypeName="tns:Color"/>
  </opc:StructuredType>

  <opc:StructuredType Name="Point" BaseType="ua:ExtensionObject">
    <opc:Field Name="X" TypeName="opc:Double"/>
    <opc:Field Name="Y" TypeName="opc:Double"/>
  </opc:StructuredType>

  <opc:StructuredType Name="Tagged" BaseType="ua:ExtensionObject">
    <opc:Field Name="LabelSpecified" TypeName="opc:Bit"/>
    <opc:Field Name="Reserved1" TypeName="opc:Bit" Length="31"/>
    <opc:Field Name="Id" TypeName="opc:UInt32"/>
    <opc:Field Name="Label" TypeName="ua:LocalizedText" SwitchField="LabelSpecified"/>
    <opc:Field Name="Range" TypeName="ua:Range"/>
  </opc:StructuredType>

  <opc:EnumeratedType Name="Color" LengthInBits="32">
    <opc:EnumeratedValue Name="Red" Value="0"/>
    <opc:EnumeratedValue Name="Green" Value="1"/>
  </opc:EnumeratedType>

  <opc:OpaqueType Name="Blob"/>
</opc:TypeDictionary>`

func plantIDs() factory.EncodingMap {
	return factory.EncodingMap{
		"Point": {
			DataTypeNodeID:       ua.NewNumericNodeID(2, 3001),
			BinaryEncodingNodeID: ua.NewNumericNodeID(2, 5001),
			XMLEncodingNodeID:    ua.NewNumericNodeID(2, 5002),
		},
		"Polygon": {
			DataTypeNodeID:       ua.NewNumericNodeID(2, 3002),
			BinaryEncodingNodeID: ua.NewNumericNodeID(2, 5011),
		},
		"Color": {DataTypeNodeID: ua.NewNumericNodeID(2, 3100)},
	}
}

func TestParser_Parse(t *testing.T) {
	f := factory.New(factory.NewStandard())
	err := NewParser().Parse(context.Background(), plantSchema, plantIDs(), f)
	require.NoError(t, err)

	t.Run("structure with basic fields", func(t *testing.T) {
		point, err := f.GetStructuredTypeSchema("Point")
		require.NoError(t, err)
		assert.Equal(t, factory.ExtensionObjectName, point.BaseType)
		require.Len(t, point.Fields, 2)
		assert.Equal(t, "Double", point.Fields[0].FieldType)
		assert.Equal(t, factory.Basic, point.Fields[0].Category)
		assert.Equal(t, "ns=2;i=5001", point.EncodingDefaultBinary.NodeID.String())
		assert.Equal(t, "ns=2;i=5002", point.EncodingDefaultXML.NodeID.String())
		assert.Nil(t, point.EncodingDefaultJSON)
	})

	t.Run("arrays drop their length field", func(t *testing.T) {
		polygon, err := f.GetStructuredTypeSchema("Polygon")
		require.NoError(t, err)
		var names []string
		for _, fld := range polygon.Fields {
			names = append(names, fld.Name)
		}
		assert.Equal(t, []string{"Name", "Points", "Fill"}, names)

		points, _ := polygon.Field("Points")
		assert.True(t, points.IsArray)
		assert.Equal(t, factory.Complex, points.Category)
		assert.Equal(t, "Point", points.FieldType)

		name, _ := polygon.Field("Name")
		assert.Equal(t, "String", name.FieldType)

		fill, _ := polygon.Field("Fill")
		assert.Equal(t, factory.Enumeration, fill.Category)
	})

	t.Run("optional fields", func(t *testing.T) {
		tagged, err := f.GetStructuredTypeSchema("Tagged")
		require.NoError(t, err)
		assert.Equal(t, ua.StructureTypeStructureWithOptionalFields, tagged.StructureType)
		require.Len(t, tagged.Fields, 3)
		label, _ := tagged.Field("Label")
		assert.True(t, label.IsOptional)
		assert.Equal(t, "LocalizedText", label.FieldType)
		rng, _ := tagged.Field("Range")
		assert.Equal(t, factory.ExtensionObjectName, rng.FieldType)
	})

	t.Run("enumerations and opaque types", func(t *testing.T) {
		color, err := f.GetEnumeration("Color")
		require.NoError(t, err)
		assert.Equal(t, "ns=2;i=3100", color.DataTypeNodeID.String())
		assert.Len(t, color.Values, 2)

		blob, err := f.GetSimpleType("Blob")
		require.NoError(t, err)
		assert.Equal(t, "ByteString", blob.BuiltIn)
	})

	t.Run("constructors work", func(t *testing.T) {
		obj, err := f.NewObject("Polygon")
		require.NoError(t, err)
		fill, err := obj.Get("Fill")
		require.NoError(t, err)
		assert.Equal(t, int64(0), fill)
	})
}

func TestParser_ParseTwice(t *testing.T) {
	f := factory.New(factory.NewStandard())
	p := NewParser()
	require.NoError(t, p.Parse(context.Background(), plantSchema, plantIDs(), f))
	first, err := f.GetStructuredTypeSchema("Point")
	require.NoError(t, err)

	require.NoError(t, p.Parse(context.Background(), plantSchema, plantIDs(), f))
	second, err := f.GetStructuredTypeSchema("Point")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not xml",
			schema: "{}",
			check:  func(t *testing.T, err error) { assert.Error(t, err) },
		},
		{
			name:   "wrong root",
			schema: `<Something/>`,
			check:  func(t *testing.T, err error) { assert.ErrorContains(t, err, "unexpected root") },
		},
		{
			name: "unknown local type",
			schema: `<opc:TypeDictionary xmlns:opc="http://opcfoundation.org/BinarySchema/" xmlns:tns="urn:x" TargetNamespace="urn:x">
  <opc:StructuredType Name="A"><opc:Field Name="B" TypeName="tns:Missing"/></opc:StructuredType>
</opc:TypeDictionary>`,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnknownType) },
		},
		{
			name: "cycle",
			schema: `<opc:TypeDictionary xmlns:opc="http://opcfoundation.org/BinarySchema/" xmlns:tns="urn:x" TargetNamespace="urn:x">
  <opc:StructuredType Name="A"><opc:Field Name="B" TypeName="tns:B"/></opc:StructuredType>
  <opc:StructuredType Name="B"><opc:Field Name="A" TypeName="tns:A"/></opc:StructuredType>
</opc:TypeDictionary>`,
			check: func(t *testing.T, err error) {
				var cycle depsort.CycleError[string]
				assert.ErrorAs(t, err, &cycle)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := factory.New(factory.NewStandard())
			err := NewParser().Parse(context.Background(), tt.schema, factory.EncodingMap{}, f)
			tt.check(t, err)
		})
	}
}

func TestTypeDictionary_Ref(t *testing.T) {
	d, err := decode(`<opc:TypeDictionary xmlns:opc="http://opcfoundation.org/BinarySchema/" xmlns:x="urn:other" xmlns:t="urn:mine" TargetNamespace="urn:mine"/>`)
	require.NoError(t, err)

	assert.Equal(t, typeRef{scopeBinary, "Int32"}, d.ref("opc:Int32"))
	assert.Equal(t, typeRef{scopeLocal, "Point"}, d.ref("t:Point"))
	assert.Equal(t, typeRef{scopeForeign, "Thing"}, d.ref("x:Thing"))
	assert.Equal(t, typeRef{scopeUA, "NodeId"}, d.ref("ua:NodeId"), "undeclared ua prefix")
	assert.Equal(t, typeRef{scopeLocal, "Bare"}, d.ref("Bare"))
}
