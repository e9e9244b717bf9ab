package factory

import (
	"time"
)

// Numeric identifiers of the built-in data type nodes in namespace 0.
const (
	BooleanID        uint32 = 1
	SByteID          uint32 = 2
	ByteID           uint32 = 3
	Int16ID          uint32 = 4
	UInt16ID         uint32 = 5
	Int32ID          uint32 = 6
	UInt32ID         uint32 = 7
	Int64ID          uint32 = 8
	UInt64ID         uint32 = 9
	FloatID          uint32 = 10
	DoubleID         uint32 = 11
	StringID         uint32 = 12
	DateTimeID       uint32 = 13
	GUIDID           uint32 = 14
	ByteStringID     uint32 = 15
	XMLElementID     uint32 = 16
	NodeIDID         uint32 = 17
	ExpandedNodeIDID uint32 = 18
	StatusCodeID     uint32 = 19
	QualifiedNameID  uint32 = 20
	LocalizedTextID  uint32 = 21
	StructureID      uint32 = 22
	DataValueID      uint32 = 23
	BaseDataTypeID   uint32 = 24
	DiagnosticInfoID uint32 = 25
	NumberID         uint32 = 26
	IntegerID        uint32 = 27
	UIntegerID       uint32 = 28
	EnumerationID    uint32 = 29
)

// ExtensionObjectName is the base type name of structures that directly
// extend the abstract Structure type.
const ExtensionObjectName = "ExtensionObject"

var builtInTypes = []*BasicType{
	{Name: "Boolean", BuiltIn: "Boolean", ID: BooleanID, Default: false},
	{Name: "SByte", BuiltIn: "SByte", ID: SByteID, Default: int8(0)},
	{Name: "Byte", BuiltIn: "Byte", ID: ByteID, Default: uint8(0)},
	{Name: "Int16", BuiltIn: "Int16", ID: Int16ID, Default: int16(0)},
	{Name: "UInt16", BuiltIn: "UInt16", ID: UInt16ID, Default: uint16(0)},
	{Name: "Int32", BuiltIn: "Int32", ID: Int32ID, Default: int32(0)},
	{Name: "UInt32", BuiltIn: "UInt32", ID: UInt32ID, Default: uint32(0)},
	{Name: "Int64", BuiltIn: "Int64", ID: Int64ID, Default: int64(0)},
	{Name: "UInt64", BuiltIn: "UInt64", ID: UInt64ID, Default: uint64(0)},
	{Name: "Float", BuiltIn: "Float", ID: FloatID, Default: float32(0)},
	{Name: "Double", BuiltIn: "Double", ID: DoubleID, Default: float64(0)},
	{Name: "String", BuiltIn: "String", ID: StringID, Default: ""},
	{Name: "DateTime", BuiltIn: "DateTime", ID: DateTimeID, Default: time.Time{}},
	{Name: "Guid", BuiltIn: "Guid", ID: GUIDID},
	{Name: "ByteString", BuiltIn: "ByteString", ID: ByteStringID},
	{Name: "XmlElement", BuiltIn: "XmlElement", ID: XMLElementID, Default: ""},
	{Name: "NodeId", BuiltIn: "NodeId", ID: NodeIDID},
	{Name: "ExpandedNodeId", BuiltIn: "ExpandedNodeId", ID: ExpandedNodeIDID},
	{Name: "StatusCode", BuiltIn: "StatusCode", ID: StatusCodeID, Default: uint32(0)},
	{Name: "QualifiedName", BuiltIn: "QualifiedName", ID: QualifiedNameID},
	{Name: "LocalizedText", BuiltIn: "LocalizedText", ID: LocalizedTextID},
	{Name: "ExtensionObject", BuiltIn: "ExtensionObject", ID: StructureID},
	{Name: "DataValue", BuiltIn: "DataValue", ID: DataValueID},
	{Name: "Variant", BuiltIn: "Variant", ID: BaseDataTypeID},
	{Name: "DiagnosticInfo", BuiltIn: "DiagnosticInfo", ID: DiagnosticInfoID},
}

// abstract or derived namespace 0 types that are encoded as a built-in
var aliasTypes = map[string]string{
	"BaseDataType":   "Variant",
	"Number":         "Variant",
	"Integer":        "Variant",
	"UInteger":       "Variant",
	"Structure":      "ExtensionObject",
	"Duration":       "Double",
	"UtcTime":        "DateTime",
	"Date":           "DateTime",
	"Time":           "String",
	"LocaleId":       "String",
	"NumericRange":   "String",
	"IntegerId":      "UInt32",
	"Counter":        "UInt32",
	"Index":          "UInt32",
	"VersionTime":    "UInt32",
	"Image":          "ByteString",
	"ImageBMP":       "ByteString",
	"ImageGIF":       "ByteString",
	"ImageJPG":       "ByteString",
	"ImagePNG":       "ByteString",
	"AudioDataType":  "ByteString",
	"ApplicationUri": "String",
}

var builtInByName = func() map[string]*BasicType {
	m := make(map[string]*BasicType, len(builtInTypes)+len(aliasTypes))
	for _, b := range builtInTypes {
		m[b.Name] = b
	}
	for alias, target := range aliasTypes {
		b := m[target]
		m[alias] = &BasicType{Name: alias, BuiltIn: b.BuiltIn, ID: b.ID, Default: b.Default}
	}
	return m
}()

// BuiltInType returns the basic type registered under a namespace 0 type name.
// "Variant" is accepted as the name of BaseDataType and "ExtensionObject" as
// the name of Structure.
func BuiltInType(name string) (*BasicType, bool) {
	b, ok := builtInByName[name]
	return b, ok
}

// IsBuiltInID reports whether id is the identifier of a namespace 0 type that
// roots a subtype chain: the primitive types, the abstract numeric types,
// BaseDataType, Structure and Enumeration.
func IsBuiltInID(id uint32) bool {
	return id >= BooleanID && id <= EnumerationID
}

// NewStandard creates the factory holding the built-in basic types. One is
// created per client session and used as the parent of every namespace
// factory.
func NewStandard() *DataTypeFactory {
	f := New()
	for name, b := range builtInByName {
		f.basics[name] = b
	}
	return f
}
