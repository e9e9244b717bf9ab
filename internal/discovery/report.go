package discovery

import (
	"github.com/gopcua/opcua/ua"
)

// Path is the extraction strategy used for a dictionary
type Path string

const (
	// PathLegacy parses the schema document held by the dictionary
	PathLegacy Path = "legacy"
	// PathModern reads the DataTypeDefinition attribute of each data type
	PathModern Path = "modern"
)

// TypeFailure is a type that could not be registered
type TypeFailure struct {
	Name   string     `json:"name"`
	NodeID *ua.NodeID `json:"-"`
	Err    error      `json:"-"`
}

// Error returns the failure message
func (f TypeFailure) Error() string {
	if f.Err == nil {
		return f.Name
	}
	return f.Name + ": " + f.Err.Error()
}

// DictionaryReport is the outcome of one dictionary pipeline
type DictionaryReport struct {
	NodeID       *ua.NodeID `json:"-"`
	Name         string     `json:"name"`
	Namespace    uint16     `json:"namespace"`
	NamespaceURI string     `json:"namespaceUri"`
	Deprecated   bool       `json:"deprecated"`
	Path         Path       `json:"path"`

	// Registered lists the types this pipeline added to the factory
	Registered []string `json:"registered"`
	// Failures lists the types left out by contained errors
	Failures []TypeFailure `json:"-"`

	// Verified counts the members whose constructor produced an object
	Verified int `json:"verified"`
	// Missing lists members the factory has no structure or enumeration for
	Missing []string `json:"missing,omitempty"`
	// VerifyErr aggregates constructor failures
	VerifyErr error `json:"-"`
}

// Report is the outcome of Populate
type Report struct {
	PassID       string              `json:"passId"`
	Namespaces   []string            `json:"namespaces"`
	Dictionaries []*DictionaryReport `json:"dictionaries"`
}

// Registered counts the types registered by all dictionaries
func (r *Report) Registered() int {
	n := 0
	for _, d := range r.Dictionaries {
		n += len(d.Registered)
	}
	return n
}

// Failures returns the contained failures of all dictionaries
func (r *Report) Failures() []TypeFailure {
	var out []TypeFailure
	for _, d := range r.Dictionaries {
		out = append(out, d.Failures...)
	}
	return out
}
