package addrspace

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/gopcua/opcua/ua"
	"gopkg.in/yaml.v3"
)

// Snapshot is the YAML description of a server's custom types
type Snapshot struct {
	Namespaces   []string             `yaml:"namespaces"`
	DataTypes    []SnapshotType       `yaml:"data_types"`
	Dictionaries []SnapshotDictionary `yaml:"dictionaries"`
}

// SnapshotDictionary describes a type dictionary and the types it declares
type SnapshotDictionary struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	NamespaceURI string         `yaml:"namespace_uri"`
	Deprecated   *bool          `yaml:"deprecated"`
	Schema       string         `yaml:"schema"`
	Types        []SnapshotType `yaml:"types"`
}

// SnapshotType describes a data type. A type declared inside a dictionary
// gets a description variable linked from its binary encoding.
type SnapshotType struct {
	ID             string             `yaml:"id"`
	Name           string             `yaml:"name"`
	Parent         string             `yaml:"parent"`
	BinaryEncoding string             `yaml:"binary_encoding"`
	XMLEncoding    string             `yaml:"xml_encoding"`
	JSONEncoding   string             `yaml:"json_encoding"`
	Description    string             `yaml:"description"`
	Structure      *SnapshotStructure `yaml:"structure"`
	Enum           []SnapshotEnumItem `yaml:"enum"`
}

// SnapshotStructure is a structure definition
type SnapshotStructure struct {
	BaseType string          `yaml:"base_type"`
	Kind     string          `yaml:"kind"`
	Fields   []SnapshotField `yaml:"fields"`
}

// SnapshotField is a structure field
type SnapshotField struct {
	Name      string `yaml:"name"`
	DataType  string `yaml:"data_type"`
	ValueRank *int32 `yaml:"value_rank"`
	Optional  bool   `yaml:"optional"`
}

// SnapshotEnumItem is an enumeration member
type SnapshotEnumItem struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// LoadSnapshotFile reads a snapshot from path and builds its space
func LoadSnapshotFile(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := LoadSnapshot(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadSnapshot decodes a snapshot and builds its space
func LoadSnapshot(r io.Reader) (*Space, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap.Build()
}

// Build creates a space holding the snapshot's nodes
func (snap *Snapshot) Build() (*Space, error) {
	s := New()
	s.SetNamespaces(snap.Namespaces...)

	for _, t := range snap.DataTypes {
		if _, err := s.addSnapshotType(t); err != nil {
			return nil, err
		}
	}

	for _, d := range snap.Dictionaries {
		dictID, err := ua.ParseNodeID(d.ID)
		if err != nil {
			return nil, fmt.Errorf("dictionary %q: %w", d.Name, err)
		}
		dict := Dictionary{
			ID:           dictID,
			Name:         d.Name,
			NamespaceURI: d.NamespaceURI,
			Deprecated:   d.Deprecated,
			Schema:       []byte(d.Schema),
		}
		for _, t := range d.Types {
			binary, err := s.addSnapshotType(t)
			if err != nil {
				return nil, err
			}
			if binary == nil {
				continue
			}
			desc := Description{Name: t.Name, Encoding: binary}
			if t.Description != "" {
				if desc.ID, err = ua.ParseNodeID(t.Description); err != nil {
					return nil, fmt.Errorf("type %q description: %w", t.Name, err)
				}
			}
			dict.Descriptions = append(dict.Descriptions, desc)
		}
		if err := s.AddDictionary(dict); err != nil {
			return nil, fmt.Errorf("dictionary %q: %w", d.Name, err)
		}
	}
	return s, nil
}

// addSnapshotType adds t and returns its binary encoding id, if any
func (s *Space) addSnapshotType(t SnapshotType) (*ua.NodeID, error) {
	typeID, err := ua.ParseNodeID(t.ID)
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", t.Name, err)
	}
	dt := DataType{ID: typeID, Name: t.Name, Encodings: map[string]*ua.NodeID{}}

	if t.Parent != "" {
		if dt.Parent, err = ua.ParseNodeID(t.Parent); err != nil {
			return nil, fmt.Errorf("type %q parent: %w", t.Name, err)
		}
	}

	for name, raw := range map[string]string{
		DefaultBinary: t.BinaryEncoding,
		DefaultXML:    t.XMLEncoding,
		DefaultJSON:   t.JSONEncoding,
	} {
		if raw == "" {
			continue
		}
		encID, err := ua.ParseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("type %q %s: %w", t.Name, name, err)
		}
		dt.Encodings[name] = encID
	}

	switch {
	case t.Structure != nil && len(t.Enum) > 0:
		return nil, fmt.Errorf("type %q: structure and enum are exclusive", t.Name)
	case t.Structure != nil:
		def, err := t.Structure.definition()
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", t.Name, err)
		}
		dt.Definition = def
	case len(t.Enum) > 0:
		def := &ua.EnumDefinition{}
		for _, item := range t.Enum {
			def.Fields = append(def.Fields, &ua.EnumField{Name: item.Name, Value: item.Value})
		}
		dt.Definition = def
	}

	if err := s.AddDataType(dt); err != nil {
		return nil, err
	}
	return dt.Encodings[DefaultBinary], nil
}

func (st *SnapshotStructure) definition() (*ua.StructureDefinition, error) {
	def := &ua.StructureDefinition{BaseDataType: ns0(22)}
	if st.BaseType != "" {
		base, err := ua.ParseNodeID(st.BaseType)
		if err != nil {
			return nil, fmt.Errorf("base type: %w", err)
		}
		def.BaseDataType = base
	}

	switch st.Kind {
	case "", "structure":
		def.StructureType = ua.StructureTypeStructure
	case "optional":
		def.StructureType = ua.StructureTypeStructureWithOptionalFields
	case "union":
		def.StructureType = ua.StructureTypeUnion
	default:
		return nil, fmt.Errorf("unknown structure kind %q", st.Kind)
	}

	for _, f := range st.Fields {
		dataType, err := ua.ParseNodeID(f.DataType)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		rank := int32(-1)
		if f.ValueRank != nil {
			rank = *f.ValueRank
		}
		def.Fields = append(def.Fields, &ua.StructureField{
			Name:       f.Name,
			DataType:   dataType,
			ValueRank:  rank,
			IsOptional: f.Optional,
		})
	}
	return def, nil
}
