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

// dataTypeDescriptionType is the type definition of description variables
const dataTypeDescriptionType = 69

// member is a type declared by a dictionary, joined with its data type node
type member struct {
	// Name is the browse name of the description, the name used in the
	// schema document
	Name        string
	Description *ua.NodeID
	// Encoding is the encoding object the description is attached to
	Encoding *ua.NodeID

	// DataTypeName is the browse name of the data type node
	DataTypeName string
	IDs          *factory.DataTypeAndEncodingID
}

// descriptions returns the description variables of a dictionary
func descriptions(ctx context.Context, s session.Session, dict *ua.NodeID) ([]*ua.ReferenceDescription, error) {
	refs, err := session.BrowseOne(ctx, s, session.Forward(dict, id.HasComponent, false, ua.NodeClassVariable))
	if err != nil {
		return nil, opError("browse descriptions", dict, err)
	}
	var out []*ua.ReferenceDescription
	for _, r := range refs {
		if r.NodeID == nil || r.BrowseName == nil {
			continue
		}
		if td := r.TypeDefinition; td != nil && td.NodeID != nil {
			if v, ok := wellKnown(td.NodeID); ok && v != dataTypeDescriptionType {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// members discovers the types a dictionary declares. Each description leads
// to its encoding object through an inverse HasDescription, which must be
// unique, and on to the data type through an inverse HasEncoding. A member
// whose data type cannot be found is logged and left out. The encodings of
// all data types are then looked up in one batch.
func (p *pass) members(ctx context.Context, dict *ua.NodeID) ([]member, error) {
	descs, err := descriptions(ctx, p.s, dict)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, nil
	}

	toEncoding := make([]*ua.BrowseDescription, len(descs))
	for i, d := range descs {
		toEncoding[i] = session.Inverse(d.NodeID.NodeID, id.HasDescription, false, ua.NodeClassObject)
	}
	encodingResults, err := session.BrowseAll(ctx, p.s, toEncoding)
	if err != nil {
		return nil, opError("browse description encodings", dict, err)
	}

	encodings := make([]*ua.NodeID, len(descs))
	for i, r := range encodingResults {
		desc := descs[i].NodeID.NodeID
		if r == nil || !session.IsGood(r.StatusCode) {
			return nil, opError("find described encoding", desc, ErrBadStatus)
		}
		if len(r.References) != 1 || r.References[0].NodeID == nil {
			return nil, opError("find described encoding", desc,
				fmt.Errorf("%w: %d HasDescription sources for %s", ErrReferenceMultiplicity, len(r.References), descs[i].BrowseName.Name))
		}
		encodings[i] = r.References[0].NodeID.NodeID
	}

	toDataType := make([]*ua.BrowseDescription, len(encodings))
	for i, enc := range encodings {
		toDataType[i] = session.Inverse(enc, id.HasEncoding, false, ua.NodeClassDataType)
	}
	dataTypeResults, err := session.BrowseAll(ctx, p.s, toDataType)
	if err != nil {
		return nil, opError("browse encoded data types", dict, err)
	}

	var out []member
	var typeIDs []*ua.NodeID
	for i, r := range dataTypeResults {
		name := descs[i].BrowseName.Name
		if r == nil || !session.IsGood(r.StatusCode) || len(r.References) != 1 || r.References[0].NodeID == nil {
			p.logger.Warn("cannot find data type of dictionary member",
				zap.String("type", name),
				zap.Stringer("encoding", encodings[i]))
			continue
		}
		ref := r.References[0]
		dtName := name
		if ref.BrowseName != nil && ref.BrowseName.Name != "" {
			dtName = ref.BrowseName.Name
			p.names[ref.NodeID.NodeID.String()] = dtName
		}
		out = append(out, member{
			Name:         name,
			Description:  descs[i].NodeID.NodeID,
			Encoding:     encodings[i],
			DataTypeName: dtName,
		})
		typeIDs = append(typeIDs, ref.NodeID.NodeID)
	}
	if len(typeIDs) == 0 {
		return out, nil
	}

	ids, err := findEncodingsBatch(ctx, p.s, typeIDs, p.logger)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].IDs = ids[i]
	}
	return out, nil
}

// encodingLookup keys the identities of members by their schema name
func encodingLookup(members []member) factory.EncodingMap {
	m := make(factory.EncodingMap, len(members))
	for _, mb := range members {
		m[mb.Name] = mb.IDs
	}
	return m
}
