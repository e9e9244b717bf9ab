package discovery

import (
	"testing"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/uadiscover/internal/addrspace"
)

var (
	pointID     = ua.NewNumericNodeID(2, 3001)
	polygonID   = ua.NewNumericNodeID(2, 3002)
	plantDictID = ua.NewNumericNodeID(2, 7000)
)

const pointSchemaDocument = `<?xml version="1.0" encoding="utf-8"?>
<opc:TypeDictionary
  xmlns:opc="http://opcfoundation.org/BinarySchema/"
  xmlns:ua="http://opcfoundation.org/UA/"
  xmlns:tns="urn:plant"
  DefaultByteOrder="LittleEndian"
  TargetNamespace="urn:plant">
  <opc:Import Namespace="http://opcfoundation.org/UA/" Location="Opc.Ua.BinarySchema.bsd"/>
  <opc:StructuredType Name="Point" BaseType="ua:ExtensionObject">
    <opc:Field Name="X" TypeName="opc:Double"/>
    <opc:Field Name="Y" TypeName="opc:Double"/>
  </opc:StructuredType>
</opc:TypeDictionary>`

func nid(ns uint16, v uint32) *ua.NodeID {
	return ua.NewNumericNodeID(ns, v)
}

func ns0(v uint32) *ua.NodeID {
	return ua.NewNumericNodeID(0, v)
}

func scalar(name string, dataType *ua.NodeID) *ua.StructureField {
	return &ua.StructureField{Name: name, DataType: dataType, ValueRank: -1}
}

func structure(fields ...*ua.StructureField) *ua.StructureDefinition {
	return &ua.StructureDefinition{
		BaseDataType:  ns0(id.Structure),
		StructureType: ua.StructureTypeStructure,
		Fields:        fields,
	}
}

func desc(name string, encoding *ua.NodeID) addrspace.Description {
	return addrspace.Description{Name: name, Encoding: encoding}
}

func addStructure(t *testing.T, s *addrspace.Space, typeID *ua.NodeID, name string, def *ua.StructureDefinition, binary *ua.NodeID) {
	t.Helper()
	encodings := map[string]*ua.NodeID{}
	if binary != nil {
		encodings[DefaultBinary] = binary
	}
	require.NoError(t, s.AddDataType(addrspace.DataType{ID: typeID, Name: name, Definition: def, Encodings: encodings}))
}

func addPoint(t *testing.T, s *addrspace.Space) {
	t.Helper()
	require.NoError(t, s.AddDataType(addrspace.DataType{
		ID:         pointID,
		Name:       "Point",
		Definition: structure(scalar("x", ns0(id.Double)), scalar("y", ns0(id.Double))),
		Encodings: map[string]*ua.NodeID{
			DefaultBinary: nid(2, 5001),
			DefaultXML:    nid(2, 5002),
			DefaultJSON:   nid(2, 5003),
		},
	}))
}

func addPolygon(t *testing.T, s *addrspace.Space) {
	t.Helper()
	addStructure(t, s, polygonID, "Polygon",
		structure(&ua.StructureField{Name: "points", DataType: pointID, ValueRank: 1}),
		nid(2, 5011))
}

// plantSpace exposes Point and Polygon in namespace 2 through a dictionary
// without a schema document. Polygon is described first.
func plantSpace(t *testing.T) *addrspace.Space {
	t.Helper()
	s := addrspace.New()
	s.SetNamespaces("urn:other", "urn:plant")
	addPoint(t, s)
	addPolygon(t, s)
	require.NoError(t, s.AddDictionary(addrspace.Dictionary{
		ID:           plantDictID,
		Name:         "PlantTypes",
		NamespaceURI: "urn:plant",
		Descriptions: []addrspace.Description{
			desc("Polygon", nid(2, 5011)),
			desc("Point", nid(2, 5001)),
		},
	}))
	return s
}

func boolPtr(v bool) *bool {
	return &v
}
