package addrspace

import (
	"fmt"
	"sort"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

// Browse names of the encoding objects below a data type
const (
	DefaultBinary = "Default Binary"
	DefaultXML    = "Default XML"
	DefaultJSON   = "Default JSON"
)

// DataType describes a data type node and its encoding objects
type DataType struct {
	ID   *ua.NodeID
	Name string

	// Parent is the supertype. It defaults to Enumeration for enum
	// definitions and to Structure otherwise.
	Parent *ua.NodeID

	// Definition is a *ua.StructureDefinition, a *ua.EnumDefinition or nil
	Definition any

	// Encodings maps encoding browse names to encoding object ids
	Encodings map[string]*ua.NodeID
}

// AddDataType adds the data type node, its HasSubtype reference and one
// object per encoding
func (s *Space) AddDataType(dt DataType) error {
	if dt.ID == nil || dt.Name == "" {
		return fmt.Errorf("add data type: id and name are required")
	}

	parent := dt.Parent
	if parent == nil {
		parent = ns0(id.Structure)
		if _, ok := dt.Definition.(*ua.EnumDefinition); ok {
			parent = ns0(id.Enumeration)
		}
	}

	if err := s.AddNode(&Node{
		ID:         dt.ID,
		Class:      ua.NodeClassDataType,
		BrowseName: &ua.QualifiedName{NamespaceIndex: dt.ID.Namespace(), Name: dt.Name},
		Definition: dt.Definition,
	}); err != nil {
		return err
	}
	if err := s.AddReference(parent, id.HasSubtype, dt.ID); err != nil {
		return fmt.Errorf("add data type %s: %w", dt.Name, err)
	}

	names := make([]string, 0, len(dt.Encodings))
	for name := range dt.Encodings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		encID := dt.Encodings[name]
		if err := s.AddNode(&Node{
			ID:             encID,
			Class:          ua.NodeClassObject,
			BrowseName:     qn0(name),
			TypeDefinition: ns0(DataTypeEncodingType),
		}); err != nil {
			return err
		}
		if err := s.AddReference(dt.ID, id.HasEncoding, encID); err != nil {
			return err
		}
	}
	return nil
}

// Dictionary describes a type dictionary variable below the OPC Binary type
// system
type Dictionary struct {
	ID   *ua.NodeID
	Name string

	// NamespaceURI becomes the NamespaceUri property when set
	NamespaceURI string

	// Deprecated becomes the Deprecated property when set
	Deprecated *bool

	// Schema is the raw schema document held in the dictionary value
	Schema []byte

	Descriptions []Description
}

// Description is a data type description variable of a dictionary. It is
// linked from the encoding object it describes.
type Description struct {
	ID       *ua.NodeID
	Name     string
	Encoding *ua.NodeID
}

// AddDictionary adds the dictionary, its properties and its descriptions.
// Property ids are allocated in the dictionary's namespace.
func (s *Space) AddDictionary(d Dictionary) error {
	if d.ID == nil || d.Name == "" {
		return fmt.Errorf("add dictionary: id and name are required")
	}
	ns := d.ID.Namespace()

	dict := &Node{
		ID:             d.ID,
		Class:          ua.NodeClassVariable,
		BrowseName:     &ua.QualifiedName{NamespaceIndex: ns, Name: d.Name},
		TypeDefinition: ns0(DataTypeDictionaryType),
	}
	if len(d.Schema) > 0 {
		dict.Value = d.Schema
	}
	if err := s.AddNode(dict); err != nil {
		return err
	}
	if err := s.AddReference(ns0(OPCBinaryTypeSystem), id.HasComponent, d.ID); err != nil {
		return err
	}

	if d.NamespaceURI != "" {
		if err := s.addProperty(d.ID, "NamespaceUri", d.NamespaceURI); err != nil {
			return err
		}
	}
	if d.Deprecated != nil {
		if err := s.addProperty(d.ID, "Deprecated", *d.Deprecated); err != nil {
			return err
		}
	}

	for _, desc := range d.Descriptions {
		descID := desc.ID
		if descID == nil {
			descID = s.allocate(ns)
		}
		if err := s.AddNode(&Node{
			ID:             descID,
			Class:          ua.NodeClassVariable,
			BrowseName:     &ua.QualifiedName{NamespaceIndex: ns, Name: desc.Name},
			TypeDefinition: ns0(DataTypeDescriptionType),
			Value:          desc.Name,
		}); err != nil {
			return err
		}
		if err := s.AddReference(d.ID, id.HasComponent, descID); err != nil {
			return err
		}
		if desc.Encoding != nil {
			if err := s.AddReference(desc.Encoding, id.HasDescription, descID); err != nil {
				return fmt.Errorf("describe %s: %w", desc.Name, err)
			}
		}
	}
	return nil
}

func (s *Space) addProperty(owner *ua.NodeID, name string, value any) error {
	prop := s.allocate(owner.Namespace())
	if err := s.AddNode(&Node{
		ID:             prop,
		Class:          ua.NodeClassVariable,
		BrowseName:     qn0(name),
		TypeDefinition: ns0(PropertyType),
		Value:          value,
	}); err != nil {
		return err
	}
	return s.AddReference(owner, id.HasProperty, prop)
}

// allocate returns an unused numeric node id in namespace ns
func (s *Space) allocate(ns uint16) *ua.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.next++
		nid := ua.NewNumericNodeID(ns, 1_000_000+s.next)
		if _, taken := s.nodes[nid.String()]; !taken {
			return nid
		}
	}
}
