package discovery

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// GetDataTypeDefinition returns the registered schema of a structured data
// type. The dictionary holding the type is found by following its Default
// Binary encoding to the description and from there to the dictionary; the
// schema is then looked up by browse name in that dictionary's factory.
func GetDataTypeDefinition(ctx context.Context, s session.Session, typeID *ua.NodeID, m *Manager) (*factory.StructuredTypeSchema, error) {
	enc, err := DefaultBinaryEncoding(ctx, s, typeID)
	if err != nil {
		return nil, err
	}
	desc, err := single(ctx, s, session.Forward(enc, id.HasDescription, false, ua.NodeClassVariable), "find description")
	if err != nil {
		return nil, err
	}
	dict, err := single(ctx, s, session.Inverse(desc, id.HasComponent, false, ua.NodeClassVariable), "find dictionary")
	if err != nil {
		return nil, err
	}

	f, err := m.Factory(dict.Namespace())
	if err != nil {
		return nil, opError("get data type definition", typeID, err)
	}
	qn, err := session.ReadBrowseName(ctx, s, typeID)
	if err != nil {
		return nil, opError("read browse name", typeID, err)
	}
	return f.GetStructuredTypeSchema(qn.Name)
}

// single browses d and returns its only target
func single(ctx context.Context, s session.Session, d *ua.BrowseDescription, op string) (*ua.NodeID, error) {
	refs, err := session.BrowseOne(ctx, s, d)
	if err != nil {
		return nil, opError(op, d.NodeID, err)
	}
	if len(refs) != 1 || refs[0].NodeID == nil {
		return nil, opError(op, d.NodeID, fmt.Errorf("%w: %d targets", ErrReferenceMultiplicity, len(refs)))
	}
	return refs[0].NodeID.NodeID, nil
}

// ConvertDataTypeDefinition assembles the schema of one structure from its
// definition: fields and base type are resolved against the factories of m,
// converting and registering unseen dependencies on the way, and the
// encodings of typeID are attached. The returned schema itself is not
// registered.
func ConvertDataTypeDefinition(ctx context.Context, s session.Session, typeID *ua.NodeID, name string, def *ua.StructureDefinition, m *Manager, opts ...Option) (*factory.StructuredTypeSchema, error) {
	if def == nil {
		return nil, opError("convert definition", typeID, fmt.Errorf("%w: no structure definition", ErrUnsupportedDefinition))
	}
	f, err := m.Factory(typeID.Namespace())
	if err != nil {
		return nil, opError("convert definition", typeID, err)
	}
	o := newOptions(opts)
	return newPass(s, m, f, o, o.logger).convert(ctx, typeID, name, def)
}
