package addrspace

import (
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

// BaseNamespaceURI is the URI of namespace 0
const BaseNamespaceURI = "http://opcfoundation.org/UA/"

// Well-known nodes not covered by the constants discovery shares with the
// factory package.
const (
	PropertyType            = 68
	DataTypeDescriptionType = 69
	DataTypeDictionaryType  = 72
	DataTypeSystemType      = 75
	DataTypeEncodingType    = 76
	OPCBinaryTypeSystem     = 93
	Server                  = 2253
	ServerNamespaceArray    = 2255
	Duration                = 290
	UtcTime                 = 294
	OpcUaBinarySchema       = 7617
)

var standardDataTypes = []struct {
	id     uint32
	name   string
	parent uint32
}{
	{id.BaseDataType, "BaseDataType", 0},
	{id.Boolean, "Boolean", id.BaseDataType},
	{id.Number, "Number", id.BaseDataType},
	{id.Integer, "Integer", id.Number},
	{id.UInteger, "UInteger", id.Number},
	{id.SByte, "SByte", id.Integer},
	{id.Byte, "Byte", id.UInteger},
	{id.Int16, "Int16", id.Integer},
	{id.UInt16, "UInt16", id.UInteger},
	{id.Int32, "Int32", id.Integer},
	{id.UInt32, "UInt32", id.UInteger},
	{id.Int64, "Int64", id.Integer},
	{id.UInt64, "UInt64", id.UInteger},
	{id.Float, "Float", id.Number},
	{id.Double, "Double", id.Number},
	{id.String, "String", id.BaseDataType},
	{id.DateTime, "DateTime", id.BaseDataType},
	{id.GUID, "Guid", id.BaseDataType},
	{id.ByteString, "ByteString", id.BaseDataType},
	{id.XMLElement, "XmlElement", id.BaseDataType},
	{id.NodeID, "NodeId", id.BaseDataType},
	{id.ExpandedNodeID, "ExpandedNodeId", id.BaseDataType},
	{id.StatusCode, "StatusCode", id.BaseDataType},
	{id.QualifiedName, "QualifiedName", id.BaseDataType},
	{id.LocalizedText, "LocalizedText", id.BaseDataType},
	{id.Structure, "Structure", id.BaseDataType},
	{id.DataValue, "DataValue", id.BaseDataType},
	{id.DiagnosticInfo, "DiagnosticInfo", id.BaseDataType},
	{id.Enumeration, "Enumeration", id.BaseDataType},
	{Duration, "Duration", id.Double},
	{UtcTime, "UtcTime", id.DateTime},
}

func ns0(v uint32) *ua.NodeID {
	return ua.NewNumericNodeID(0, v)
}

func qn0(name string) *ua.QualifiedName {
	return &ua.QualifiedName{NamespaceIndex: 0, Name: name}
}

// seedStandard adds the base namespace nodes. Errors are impossible on an
// empty space, so they are not checked.
func seedStandard(s *Space) {
	for _, t := range []struct {
		id    uint32
		name  string
		class ua.NodeClass
	}{
		{PropertyType, "PropertyType", ua.NodeClassVariableType},
		{DataTypeDescriptionType, "DataTypeDescriptionType", ua.NodeClassVariableType},
		{DataTypeDictionaryType, "DataTypeDictionaryType", ua.NodeClassVariableType},
		{DataTypeSystemType, "DataTypeSystemType", ua.NodeClassObjectType},
		{DataTypeEncodingType, "DataTypeEncodingType", ua.NodeClassObjectType},
	} {
		_ = s.AddNode(&Node{ID: ns0(t.id), Class: t.class, BrowseName: qn0(t.name)})
	}

	for _, dt := range standardDataTypes {
		_ = s.AddNode(&Node{ID: ns0(dt.id), Class: ua.NodeClassDataType, BrowseName: qn0(dt.name)})
		if dt.parent != 0 {
			_ = s.AddReference(ns0(dt.parent), id.HasSubtype, ns0(dt.id))
		}
	}

	_ = s.AddNode(&Node{ID: ns0(Server), Class: ua.NodeClassObject, BrowseName: qn0("Server")})
	_ = s.AddNode(&Node{
		ID:             ns0(ServerNamespaceArray),
		Class:          ua.NodeClassVariable,
		BrowseName:     qn0("NamespaceArray"),
		TypeDefinition: ns0(PropertyType),
		Value:          []string{BaseNamespaceURI},
	})
	_ = s.AddReference(ns0(Server), id.HasProperty, ns0(ServerNamespaceArray))

	_ = s.AddNode(&Node{
		ID:             ns0(OPCBinaryTypeSystem),
		Class:          ua.NodeClassObject,
		BrowseName:     qn0("OPC Binary"),
		TypeDefinition: ns0(DataTypeSystemType),
	})

	// The base namespace dictionary is always present and never discovered.
	_ = s.AddNode(&Node{
		ID:             ns0(OpcUaBinarySchema),
		Class:          ua.NodeClassVariable,
		BrowseName:     qn0("Opc.Ua"),
		TypeDefinition: ns0(DataTypeDictionaryType),
		Value:          []byte("<opc:TypeDictionary/>"),
	})
	_ = s.AddReference(ns0(OPCBinaryTypeSystem), id.HasComponent, ns0(OpcUaBinarySchema))
}
