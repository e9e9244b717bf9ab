// Package addrspace provides an in-memory OPC UA address space that answers
// browse, read and translate requests. It backs the offline snapshot mode of
// the CLI and the discovery tests.
package addrspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/session"
)

var (
	// ErrDuplicateNode is returned when a node id is added twice
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrUnknownNode is returned when a reference names a missing node
	ErrUnknownNode = errors.New("unknown node")
)

// Node is a single node of the address space
type Node struct {
	ID             *ua.NodeID
	Class          ua.NodeClass
	BrowseName     *ua.QualifiedName
	TypeDefinition *ua.NodeID

	// Value is returned for the Value attribute of variables
	Value any

	// Definition is returned for the DataTypeDefinition attribute of data
	// types. It holds a *ua.StructureDefinition or a *ua.EnumDefinition.
	Definition any
}

type reference struct {
	refType uint32
	target  string
	forward bool
}

// Space is an address space held in memory. It is safe for concurrent use.
type Space struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	refs  map[string][]reference
	next  uint32
}

// New returns a space seeded with the standard nodes discovery relies on.
// Namespace 0 is the only namespace until SetNamespaces is called.
func New() *Space {
	s := &Space{
		nodes: make(map[string]*Node),
		refs:  make(map[string][]reference),
	}
	seedStandard(s)
	return s
}

// AddNode adds n to the space
func (s *Space) AddNode(n *Node) error {
	if n == nil || n.ID == nil {
		return fmt.Errorf("add node: missing id")
	}
	key := n.ID.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, key)
	}
	s.nodes[key] = n
	if n.TypeDefinition != nil {
		s.link(key, id.HasTypeDefinition, n.TypeDefinition.String(), true)
	}
	return nil
}

// Node returns the node with the given id
func (s *Space) Node(nid *ua.NodeID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nid.String()]
	return n, ok
}

// AddReference links source to target with refType in both directions
func (s *Space) AddReference(source *ua.NodeID, refType uint32, target *ua.NodeID) error {
	src, dst := source.String(), target.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[src]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, src)
	}
	if _, ok := s.nodes[dst]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, dst)
	}
	s.link(src, refType, dst, true)
	s.link(dst, refType, src, false)
	return nil
}

// RemoveForwardReference drops the forward half of a reference while the
// inverse half stays visible from target. Some servers expose references
// from one side only.
func (s *Space) RemoveForwardReference(source *ua.NodeID, refType uint32, target *ua.NodeID) {
	src, dst := source.String(), target.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.refs[src][:0]
	for _, r := range s.refs[src] {
		if r.forward && r.refType == refType && r.target == dst {
			continue
		}
		kept = append(kept, r)
	}
	s.refs[src] = kept
}

func (s *Space) link(from string, refType uint32, to string, forward bool) {
	s.refs[from] = append(s.refs[from], reference{refType: refType, target: to, forward: forward})
}

// SetNamespaces replaces the server namespace array. The base namespace URI
// is always kept at index 0.
func (s *Space) SetNamespaces(uris ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	array := append([]string{BaseNamespaceURI}, uris...)
	s.nodes[ua.NewNumericNodeID(0, id.Server_NamespaceArray).String()].Value = array
}

// Namespaces returns the server namespace array
func (s *Space) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	array, _ := s.nodes[ua.NewNumericNodeID(0, id.Server_NamespaceArray).String()].Value.([]string)
	return append([]string(nil), array...)
}

// Browse implements session.Session
func (s *Space) Browse(ctx context.Context, nodes []*ua.BrowseDescription) ([]*ua.BrowseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*ua.BrowseResult, len(nodes))
	for i, d := range nodes {
		results[i] = s.browse(d)
	}
	return results, nil
}

func (s *Space) browse(d *ua.BrowseDescription) *ua.BrowseResult {
	if d == nil || d.NodeID == nil {
		return &ua.BrowseResult{StatusCode: ua.StatusBadNodeIDInvalid}
	}
	key := d.NodeID.String()
	if _, ok := s.nodes[key]; !ok {
		return &ua.BrowseResult{StatusCode: ua.StatusBadNodeIDUnknown}
	}

	var filter uint32
	if d.ReferenceTypeID != nil && !session.IsNull(d.ReferenceTypeID) {
		filter = d.ReferenceTypeID.IntID()
	}

	var out []*ua.ReferenceDescription
	for _, r := range s.refs[key] {
		switch d.BrowseDirection {
		case ua.BrowseDirectionForward:
			if !r.forward {
				continue
			}
		case ua.BrowseDirectionInverse:
			if r.forward {
				continue
			}
		}
		if filter != 0 && !isReferenceSubtype(r.refType, filter, d.IncludeSubtypes) {
			continue
		}
		target, ok := s.nodes[r.target]
		if !ok {
			continue
		}
		if d.NodeClassMask != 0 && d.NodeClassMask&uint32(target.Class) == 0 {
			continue
		}
		out = append(out, s.describe(r, target))
	}
	return &ua.BrowseResult{StatusCode: ua.StatusOK, References: out}
}

func (s *Space) describe(r reference, target *Node) *ua.ReferenceDescription {
	rd := &ua.ReferenceDescription{
		ReferenceTypeID: ua.NewNumericNodeID(0, r.refType),
		IsForward:       r.forward,
		NodeID:          &ua.ExpandedNodeID{NodeID: target.ID},
		BrowseName:      target.BrowseName,
		DisplayName:     &ua.LocalizedText{Text: target.BrowseName.Name},
		NodeClass:       target.Class,
	}
	if target.TypeDefinition != nil {
		rd.TypeDefinition = &ua.ExpandedNodeID{NodeID: target.TypeDefinition}
	}
	return rd
}

// Read implements session.Session
func (s *Space) Read(ctx context.Context, nodes []*ua.ReadValueID) ([]*ua.DataValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]*ua.DataValue, len(nodes))
	for i, rv := range nodes {
		values[i] = s.read(rv)
	}
	return values, nil
}

func (s *Space) read(rv *ua.ReadValueID) *ua.DataValue {
	if rv == nil || rv.NodeID == nil {
		return &ua.DataValue{Status: ua.StatusBadNodeIDInvalid}
	}
	n, ok := s.nodes[rv.NodeID.String()]
	if !ok {
		return &ua.DataValue{Status: ua.StatusBadNodeIDUnknown}
	}

	var v any
	switch rv.AttributeID {
	case ua.AttributeIDNodeID:
		v = n.ID
	case ua.AttributeIDNodeClass:
		v = int32(n.Class)
	case ua.AttributeIDBrowseName:
		v = n.BrowseName
	case ua.AttributeIDDisplayName:
		v = &ua.LocalizedText{Text: n.BrowseName.Name}
	case ua.AttributeIDValue:
		if n.Class != ua.NodeClassVariable {
			return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
		}
		v = n.Value
	case ua.AttributeIDDataTypeDefinition:
		if n.Class != ua.NodeClassDataType || n.Definition == nil {
			return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
		}
		v = &ua.ExtensionObject{Value: n.Definition}
	default:
		return &ua.DataValue{Status: ua.StatusBadAttributeIDInvalid}
	}

	dv := &ua.DataValue{Status: ua.StatusOK}
	if v != nil {
		variant, err := ua.NewVariant(v)
		if err != nil {
			return &ua.DataValue{Status: ua.StatusBadInternalError}
		}
		dv.Value = variant
	}
	return dv
}

// TranslateBrowsePaths implements session.Session
func (s *Space) TranslateBrowsePaths(ctx context.Context, paths []*ua.BrowsePath) ([]*ua.BrowsePathResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*ua.BrowsePathResult, len(paths))
	for i, p := range paths {
		results[i] = s.translate(p)
	}
	return results, nil
}

func (s *Space) translate(p *ua.BrowsePath) *ua.BrowsePathResult {
	if p == nil || p.StartingNode == nil {
		return &ua.BrowsePathResult{StatusCode: ua.StatusBadNodeIDInvalid}
	}
	start := p.StartingNode.String()
	if _, ok := s.nodes[start]; !ok {
		return &ua.BrowsePathResult{StatusCode: ua.StatusBadNodeIDUnknown}
	}
	if p.RelativePath == nil || len(p.RelativePath.Elements) == 0 {
		return &ua.BrowsePathResult{StatusCode: ua.StatusBadNothingToDo}
	}

	current := []string{start}
	for _, el := range p.RelativePath.Elements {
		var next []string
		for _, key := range current {
			next = append(next, s.follow(key, el)...)
		}
		if len(next) == 0 {
			return &ua.BrowsePathResult{StatusCode: ua.StatusBadNoMatch}
		}
		current = next
	}

	targets := make([]*ua.BrowsePathTarget, len(current))
	for i, key := range current {
		targets[i] = &ua.BrowsePathTarget{
			TargetID:           &ua.ExpandedNodeID{NodeID: s.nodes[key].ID},
			RemainingPathIndex: 0xFFFFFFFF,
		}
	}
	return &ua.BrowsePathResult{StatusCode: ua.StatusOK, Targets: targets}
}

func (s *Space) follow(key string, el *ua.RelativePathElement) []string {
	var filter uint32
	if el.ReferenceTypeID != nil && !session.IsNull(el.ReferenceTypeID) {
		filter = el.ReferenceTypeID.IntID()
	}
	var out []string
	for _, r := range s.refs[key] {
		if r.forward == el.IsInverse {
			continue
		}
		if filter != 0 && !isReferenceSubtype(r.refType, filter, el.IncludeSubtypes) {
			continue
		}
		target, ok := s.nodes[r.target]
		if !ok {
			continue
		}
		if el.TargetName != nil && (target.BrowseName.Name != el.TargetName.Name ||
			target.BrowseName.NamespaceIndex != el.TargetName.NamespaceIndex) {
			continue
		}
		out = append(out, r.target)
	}
	return out
}
