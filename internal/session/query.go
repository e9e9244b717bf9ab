package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

var (
	// ErrResultCount is returned when a server answers a batch with a
	// different number of results than requested
	ErrResultCount = errors.New("result count does not match request")

	// ErrBadStatus is returned by the single item helpers when the server
	// reports a non good status for the item
	ErrBadStatus = errors.New("bad status")
)

// IsGood reports whether a status code has good severity
func IsGood(code ua.StatusCode) bool {
	return uint32(code)&0xC0000000 == 0
}

// IsNull reports whether n is missing or the null node id
func IsNull(n *ua.NodeID) bool {
	if n == nil {
		return true
	}
	switch n.Type() {
	case ua.NodeIDTypeTwoByte, ua.NodeIDTypeFourByte, ua.NodeIDTypeNumeric:
		return n.Namespace() == 0 && n.IntID() == 0
	case ua.NodeIDTypeString:
		return n.Namespace() == 0 && n.StringID() == ""
	}
	return false
}

// NodeClassMask combines node classes into a browse mask. No classes means all.
func NodeClassMask(classes ...ua.NodeClass) uint32 {
	var mask uint32
	for _, c := range classes {
		mask |= uint32(c)
	}
	return mask
}

// Forward describes a forward browse of node along refType
func Forward(node *ua.NodeID, refType uint32, includeSubtypes bool, classes ...ua.NodeClass) *ua.BrowseDescription {
	return describe(node, ua.BrowseDirectionForward, refType, includeSubtypes, classes)
}

// Inverse describes an inverse browse of node along refType
func Inverse(node *ua.NodeID, refType uint32, includeSubtypes bool, classes ...ua.NodeClass) *ua.BrowseDescription {
	return describe(node, ua.BrowseDirectionInverse, refType, includeSubtypes, classes)
}

func describe(node *ua.NodeID, dir ua.BrowseDirection, refType uint32, includeSubtypes bool, classes []ua.NodeClass) *ua.BrowseDescription {
	return &ua.BrowseDescription{
		NodeID:          node,
		BrowseDirection: dir,
		ReferenceTypeID: ua.NewNumericNodeID(0, refType),
		IncludeSubtypes: includeSubtypes,
		NodeClassMask:   NodeClassMask(classes...),
		ResultMask:      uint32(ua.BrowseResultMaskAll),
	}
}

// BrowseOne browses a single node. A bad result status is returned as an
// error wrapping ErrBadStatus.
func BrowseOne(ctx context.Context, s Session, d *ua.BrowseDescription) ([]*ua.ReferenceDescription, error) {
	results, err := s.Browse(ctx, []*ua.BrowseDescription{d})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("browse %s: %w", d.NodeID, ErrResultCount)
	}
	r := results[0]
	if r == nil {
		return nil, nil
	}
	if !IsGood(r.StatusCode) {
		return nil, fmt.Errorf("browse %s: %w: %s", d.NodeID, ErrBadStatus, r.StatusCode)
	}
	return r.References, nil
}

// BrowseAll browses a batch in one round trip, checking the result count
func BrowseAll(ctx context.Context, s Session, ds []*ua.BrowseDescription) ([]*ua.BrowseResult, error) {
	if len(ds) == 0 {
		return nil, nil
	}
	results, err := s.Browse(ctx, ds)
	if err != nil {
		return nil, err
	}
	if len(results) != len(ds) {
		return nil, fmt.Errorf("browse %d nodes, got %d results: %w", len(ds), len(results), ErrResultCount)
	}
	return results, nil
}

// ReadAll reads attr of every node in one round trip
func ReadAll(ctx context.Context, s Session, nodes []*ua.NodeID, attr ua.AttributeID) ([]*ua.DataValue, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	req := make([]*ua.ReadValueID, len(nodes))
	for i, n := range nodes {
		req[i] = &ua.ReadValueID{NodeID: n, AttributeID: attr}
	}
	values, err := s.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(values) != len(nodes) {
		return nil, fmt.Errorf("read %d nodes, got %d values: %w", len(nodes), len(values), ErrResultCount)
	}
	return values, nil
}

// ReadOne reads a single attribute. A bad status is returned as an error
// wrapping ErrBadStatus.
func ReadOne(ctx context.Context, s Session, node *ua.NodeID, attr ua.AttributeID) (any, error) {
	values, err := ReadAll(ctx, s, []*ua.NodeID{node}, attr)
	if err != nil {
		return nil, err
	}
	dv := values[0]
	if dv == nil {
		return nil, fmt.Errorf("read %s: %w: empty value", node, ErrBadStatus)
	}
	if !IsGood(dv.Status) {
		return nil, fmt.Errorf("read %s: %w: %s", node, ErrBadStatus, dv.Status)
	}
	return Value(dv), nil
}

// Value unwraps the variant carried by a data value, or nil
func Value(dv *ua.DataValue) any {
	if dv == nil || dv.Value == nil {
		return nil
	}
	return dv.Value.Value()
}

// ReadBrowseName reads the browse name of a node
func ReadBrowseName(ctx context.Context, s Session, node *ua.NodeID) (*ua.QualifiedName, error) {
	v, err := ReadOne(ctx, s, node, ua.AttributeIDBrowseName)
	if err != nil {
		return nil, err
	}
	switch qn := v.(type) {
	case *ua.QualifiedName:
		return qn, nil
	case ua.QualifiedName:
		return &qn, nil
	default:
		return nil, fmt.Errorf("read browse name of %s: unexpected %T", node, v)
	}
}

// TranslateOne resolves a single browse path. It returns nil without error
// when the path has no target.
func TranslateOne(ctx context.Context, s Session, path *ua.BrowsePath) (*ua.NodeID, error) {
	results, err := s.TranslateBrowsePaths(ctx, []*ua.BrowsePath{path})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("translate %s: %w", path.StartingNode, ErrResultCount)
	}
	r := results[0]
	if r == nil || !IsGood(r.StatusCode) || len(r.Targets) == 0 {
		return nil, nil
	}
	target := r.Targets[0].TargetID
	if target == nil {
		return nil, nil
	}
	return target.NodeID, nil
}

// PropertyPath builds the browse path from node to a standard property
// named name, following Aggregates and its subtypes
func PropertyPath(node *ua.NodeID, name string) *ua.BrowsePath {
	return &ua.BrowsePath{
		StartingNode: node,
		RelativePath: &ua.RelativePath{
			Elements: []*ua.RelativePathElement{{
				ReferenceTypeID: ua.NewNumericNodeID(0, id.Aggregates),
				IsInverse:       false,
				IncludeSubtypes: true,
				TargetName:      &ua.QualifiedName{NamespaceIndex: 0, Name: name},
			}},
		},
	}
}

// ResolveProperty finds the property named name below node, or nil
func ResolveProperty(ctx context.Context, s Session, node *ua.NodeID, name string) (*ua.NodeID, error) {
	return TranslateOne(ctx, s, PropertyPath(node, name))
}
