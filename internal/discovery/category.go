package discovery

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// superType returns the single parent of a data type
func (p *pass) superType(ctx context.Context, typeID *ua.NodeID) (*ua.NodeID, error) {
	refs, err := session.BrowseOne(ctx, p.s, session.Inverse(typeID, id.HasSubtype, false, ua.NodeClassDataType))
	if err != nil {
		return nil, opError("find supertype", typeID, err)
	}
	if len(refs) != 1 || refs[0].NodeID == nil {
		return nil, opError("find supertype", typeID,
			fmt.Errorf("%w: %d HasSubtype parents", ErrReferenceMultiplicity, len(refs)))
	}
	return refs[0].NodeID.NodeID, nil
}

// rootCategory matches a base namespace parent against the roots of the
// three categories. ok is false when the climb has to go on.
func rootCategory(parent *ua.NodeID) (c factory.FieldCategory, ok bool) {
	v, known := wellKnown(parent)
	if !known {
		return 0, false
	}
	switch {
	case v == factory.StructureID:
		return factory.Complex, true
	case v == factory.EnumerationID:
		return factory.Enumeration, true
	case factory.IsBuiltInID(v):
		return factory.Basic, true
	}
	return 0, false
}

// classify climbs the subtype chain of a data type until it reaches
// Structure, Enumeration or another built-in root. Every node on the way is
// cached, so each parent is browsed at most once per pass.
func (p *pass) classify(ctx context.Context, typeID *ua.NodeID) (factory.FieldCategory, error) {
	key := typeID.String()
	if c, ok := p.categories[key]; ok {
		return c, nil
	}

	parent, err := p.superType(ctx, typeID)
	if err != nil {
		return 0, err
	}
	c, ok := rootCategory(parent)
	if !ok {
		if c, err = p.classify(ctx, parent); err != nil {
			return 0, err
		}
	}
	p.categories[key] = c
	return c, nil
}

// basicTypeOf climbs the subtype chain of a basic data type to the built-in
// root it derives from
func (p *pass) basicTypeOf(ctx context.Context, typeID *ua.NodeID) (*factory.BasicType, error) {
	key := typeID.String()
	if b, ok := p.basics[key]; ok {
		return b, nil
	}

	parent, err := p.superType(ctx, typeID)
	if err != nil {
		return nil, err
	}

	var b *factory.BasicType
	c, ok := rootCategory(parent)
	switch {
	case ok && c != factory.Basic:
		return nil, opError("resolve basic type", typeID,
			fmt.Errorf("%w: derives from %s, not a basic type", ErrUnsupportedDefinition, parent))
	case ok:
		name, err := p.browseName(ctx, parent)
		if err != nil {
			return nil, err
		}
		builtIn, found := factory.BuiltInType(name)
		if !found {
			return nil, opError("resolve basic type", parent,
				fmt.Errorf("%w: no built-in type named %q", ErrUnsupportedDefinition, name))
		}
		b = builtIn
	default:
		if b, err = p.basicTypeOf(ctx, parent); err != nil {
			return nil, err
		}
	}
	p.basics[key] = b
	return b, nil
}
