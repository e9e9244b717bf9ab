package discovery

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// Browse names of encoding objects
const (
	DefaultBinary = "Default Binary"
	DefaultXML    = "Default XML"
	DefaultJSON   = "Default JSON"
)

// FindEncodings returns the encoding nodes of a data type. A data type
// without any HasEncoding reference fails with ErrNoEncodings; encodings
// other than the three defaults are logged and ignored.
func FindEncodings(ctx context.Context, s session.Session, typeID *ua.NodeID, opts ...Option) (*factory.DataTypeAndEncodingID, error) {
	return findEncodings(ctx, s, typeID, newOptions(opts).logger)
}

func findEncodings(ctx context.Context, s session.Session, typeID *ua.NodeID, logger *zap.Logger) (*factory.DataTypeAndEncodingID, error) {
	refs, err := session.BrowseOne(ctx, s, encodingsOf(typeID))
	if err != nil {
		return nil, opError("find encodings", typeID, err)
	}
	if len(refs) == 0 {
		return nil, opError("find encodings", typeID, ErrNoEncodings)
	}
	ids := &factory.DataTypeAndEncodingID{DataTypeNodeID: typeID}
	applyEncodings(ids, refs, logger)
	return ids, nil
}

// FindEncodingsBatch looks up the encodings of many data types in one round
// trip. Unlike FindEncodings it tolerates types without encodings; their
// slots stay nil.
func FindEncodingsBatch(ctx context.Context, s session.Session, typeIDs []*ua.NodeID, opts ...Option) ([]*factory.DataTypeAndEncodingID, error) {
	return findEncodingsBatch(ctx, s, typeIDs, newOptions(opts).logger)
}

func findEncodingsBatch(ctx context.Context, s session.Session, typeIDs []*ua.NodeID, logger *zap.Logger) ([]*factory.DataTypeAndEncodingID, error) {
	ds := make([]*ua.BrowseDescription, len(typeIDs))
	for i, t := range typeIDs {
		ds[i] = encodingsOf(t)
	}
	results, err := session.BrowseAll(ctx, s, ds)
	if err != nil {
		return nil, opError("find encodings", nil, err)
	}

	out := make([]*factory.DataTypeAndEncodingID, len(typeIDs))
	for i, r := range results {
		ids := &factory.DataTypeAndEncodingID{DataTypeNodeID: typeIDs[i]}
		out[i] = ids
		if r == nil || !session.IsGood(r.StatusCode) {
			logger.Debug("cannot browse encodings", zap.Stringer("nodeId", typeIDs[i]))
			continue
		}
		applyEncodings(ids, r.References, logger)
	}
	return out, nil
}

func encodingsOf(typeID *ua.NodeID) *ua.BrowseDescription {
	return session.Forward(typeID, id.HasEncoding, true, ua.NodeClassObject)
}

func applyEncodings(ids *factory.DataTypeAndEncodingID, refs []*ua.ReferenceDescription, logger *zap.Logger) {
	for _, r := range refs {
		if r.BrowseName == nil || r.NodeID == nil {
			continue
		}
		switch r.BrowseName.Name {
		case DefaultBinary:
			ids.BinaryEncodingNodeID = r.NodeID.NodeID
		case DefaultXML:
			ids.XMLEncodingNodeID = r.NodeID.NodeID
		case DefaultJSON:
			ids.JSONEncodingNodeID = r.NodeID.NodeID
		default:
			logger.Info("ignoring encoding",
				zap.Stringer("dataType", ids.DataTypeNodeID),
				zap.String("encoding", r.BrowseName.Name))
		}
	}
}

// DefaultBinaryEncoding returns the single Default Binary encoding of a data
// type. Anything but exactly one fails with ErrReferenceMultiplicity; the
// error names the node class and browse name of the data type.
func DefaultBinaryEncoding(ctx context.Context, s session.Session, typeID *ua.NodeID) (*ua.NodeID, error) {
	refs, err := session.BrowseOne(ctx, s, session.Forward(typeID, id.HasEncoding, false, ua.NodeClassObject))
	if err != nil {
		return nil, opError("find default binary encoding", typeID, err)
	}
	var binary []*ua.ReferenceDescription
	for _, r := range refs {
		if r != nil && r.BrowseName != nil && r.BrowseName.Name == DefaultBinary {
			binary = append(binary, r)
		}
	}
	if len(binary) == 1 && binary[0].NodeID != nil && binary[0].NodeID.NodeID != nil {
		return binary[0].NodeID.NodeID, nil
	}

	return nil, opError("find default binary encoding", typeID,
		fmt.Errorf("%w: %d Default Binary encodings among %d on %s", ErrReferenceMultiplicity, len(binary), len(refs), describeNode(ctx, s, typeID)))
}

// describeNode reads the node class and browse name of a node for error
// messages. Failures are folded into the text.
func describeNode(ctx context.Context, s session.Session, nid *ua.NodeID) string {
	values, err := s.Read(ctx, []*ua.ReadValueID{
		{NodeID: nid, AttributeID: ua.AttributeIDNodeClass},
		{NodeID: nid, AttributeID: ua.AttributeIDBrowseName},
	})
	if err != nil || len(values) != 2 {
		return "unreadable node"
	}

	class := "unknown class"
	if v, ok := session.Value(values[0]).(int32); ok {
		class = fmt.Sprintf("node class %d", v)
	}
	name := "unknown name"
	if qn, ok := session.Value(values[1]).(*ua.QualifiedName); ok {
		name = qn.Name
	}
	return fmt.Sprintf("%s %q", class, name)
}
