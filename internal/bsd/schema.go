// Package bsd reads OPC Binary type dictionaries, the schema documents held
// in the value of legacy dictionary nodes, and registers the types they
// declare into a data type factory.
package bsd

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Namespace URIs with a fixed meaning in type dictionaries
const (
	BinarySchemaURI = "http://opcfoundation.org/BinarySchema/"
	UANamespaceURI  = "http://opcfoundation.org/UA/"
)

type typeDictionary struct {
	XMLName         xml.Name
	TargetNamespace string           `xml:"TargetNamespace,attr"`
	Attrs           []xml.Attr       `xml:",any,attr"`
	Imports         []importDecl     `xml:"Import"`
	Opaque          []opaqueType     `xml:"OpaqueType"`
	Enums           []enumeratedType `xml:"EnumeratedType"`
	Structs         []structuredType `xml:"StructuredType"`

	prefixes map[string]string
}

type importDecl struct {
	Namespace string `xml:"Namespace,attr"`
	Location  string `xml:"Location,attr"`
}

type opaqueType struct {
	Name         string `xml:"Name,attr"`
	LengthInBits int    `xml:"LengthInBits,attr"`
}

type enumeratedType struct {
	Name         string           `xml:"Name,attr"`
	LengthInBits int              `xml:"LengthInBits,attr"`
	Values       []enumeratedItem `xml:"EnumeratedValue"`
}

type enumeratedItem struct {
	Name  string `xml:"Name,attr"`
	Value int64  `xml:"Value,attr"`
}

type structuredType struct {
	Name     string  `xml:"Name,attr"`
	BaseType string  `xml:"BaseType,attr"`
	Fields   []field `xml:"Field"`
}

type field struct {
	Name        string `xml:"Name,attr"`
	TypeName    string `xml:"TypeName,attr"`
	LengthField string `xml:"LengthField,attr"`
	SwitchField string `xml:"SwitchField,attr"`
	SwitchValue string `xml:"SwitchValue,attr"`
	SourceType  string `xml:"SourceType,attr"`
}

// namespace of a qualified type name
type scope int

const (
	scopeLocal scope = iota
	scopeBinary
	scopeUA
	scopeForeign
)

type typeRef struct {
	scope scope
	name  string
}

func decode(raw string) (*typeDictionary, error) {
	var d typeDictionary
	if err := xml.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode type dictionary: %w", err)
	}
	if d.XMLName.Local != "TypeDictionary" {
		return nil, fmt.Errorf("decode type dictionary: unexpected root element %q", d.XMLName.Local)
	}

	d.prefixes = make(map[string]string)
	for _, a := range d.Attrs {
		switch {
		case a.Name.Space == "xmlns":
			d.prefixes[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			d.prefixes[""] = a.Value
		}
	}
	return &d, nil
}

// ref splits a qualified type name such as "opc:Double" or "tns:Point" and
// classifies its namespace. Undeclared prefixes fall back to the usual
// opc, ua and tns conventions.
func (d *typeDictionary) ref(qualified string) typeRef {
	prefix, name := "", qualified
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		prefix, name = qualified[:i], qualified[i+1:]
	}

	uri, declared := d.prefixes[prefix]
	if !declared {
		switch prefix {
		case "opc":
			return typeRef{scopeBinary, name}
		case "ua":
			return typeRef{scopeUA, name}
		default:
			return typeRef{scopeLocal, name}
		}
	}

	switch uri {
	case BinarySchemaURI:
		return typeRef{scopeBinary, name}
	case UANamespaceURI:
		return typeRef{scopeUA, name}
	case d.TargetNamespace:
		return typeRef{scopeLocal, name}
	default:
		return typeRef{scopeForeign, name}
	}
}

// lengthFields returns the names of fields that only carry the length of an
// array field
func (s *structuredType) lengthFields() map[string]bool {
	names := make(map[string]bool)
	for _, f := range s.Fields {
		if f.LengthField != "" {
			names[f.LengthField] = true
		}
	}
	return names
}
