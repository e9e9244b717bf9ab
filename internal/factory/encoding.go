package factory

import (
	"github.com/gopcua/opcua/ua"
)

// DataTypeAndEncodingID groups the data type node of a custom type with its
// encoding nodes. Encoding slots the server does not provide stay nil.
type DataTypeAndEncodingID struct {
	DataTypeNodeID       *ua.NodeID
	BinaryEncodingNodeID *ua.NodeID
	XMLEncodingNodeID    *ua.NodeID
	JSONEncodingNodeID   *ua.NodeID
}

// Apply copies the identities onto a schema
func (d *DataTypeAndEncodingID) Apply(s *StructuredTypeSchema) {
	s.DataTypeNodeID = d.DataTypeNodeID
	s.EncodingDefaultBinary = expand(d.BinaryEncodingNodeID)
	s.EncodingDefaultXML = expand(d.XMLEncodingNodeID)
	s.EncodingDefaultJSON = expand(d.JSONEncodingNodeID)
}

func expand(id *ua.NodeID) *ua.ExpandedNodeID {
	if id == nil {
		return nil
	}
	return &ua.ExpandedNodeID{NodeID: id}
}

// EncodingLookup maps a type name, as written in a schema document, to the
// node identities the server assigned to it
type EncodingLookup interface {
	DataTypeAndEncodingID(name string) (*DataTypeAndEncodingID, bool)
}

// EncodingMap is an EncodingLookup backed by a map
type EncodingMap map[string]*DataTypeAndEncodingID

// DataTypeAndEncodingID implements EncodingLookup
func (m EncodingMap) DataTypeAndEncodingID(name string) (*DataTypeAndEncodingID, bool) {
	d, ok := m[name]
	return d, ok
}
