package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// extractModern registers the structures of a dictionary from the
// DataTypeDefinition attribute of their data types. A type that fails to
// convert or register is recorded in the report and skipped.
func (p *pass) extractModern(ctx context.Context, dict *ua.NodeID, members []member, rep *DictionaryReport) error {
	defs, err := p.readDefinitions(ctx, members)
	if err != nil {
		return err
	}
	sorted, err := SortDefinitions(defs)
	if err != nil {
		return opError("order definitions", dict, err)
	}

	for _, d := range sorted {
		if p.f.HasStructuredType(d.Name) {
			p.logger.Debug("structure already registered", zap.String("type", d.Name))
			continue
		}
		if err := p.extractOne(ctx, d); err != nil {
			p.logger.Warn("cannot register structure",
				zap.String("type", d.Name),
				zap.Stringer("nodeId", d.DataTypeNodeID),
				zap.Error(err))
			rep.Failures = append(rep.Failures, TypeFailure{Name: d.Name, NodeID: d.DataTypeNodeID, Err: err})
		}
	}
	return nil
}

func (p *pass) extractOne(ctx context.Context, d Definition) error {
	schema, err := p.convert(ctx, d.DataTypeNodeID, d.Name, d.Definition)
	if err != nil {
		return err
	}
	_, err = p.f.RegisterStructuredType(schema)
	if errors.Is(err, factory.ErrDuplicateType) {
		return nil
	}
	if err != nil {
		return err
	}
	p.registered = append(p.registered, schema.Name)
	return nil
}

// readDefinitions reads the definitions of all members in one batch and
// keeps the structure definitions
func (p *pass) readDefinitions(ctx context.Context, members []member) ([]Definition, error) {
	if len(members) == 0 {
		return nil, nil
	}
	nodes := make([]*ua.NodeID, len(members))
	for i, m := range members {
		nodes[i] = m.IDs.DataTypeNodeID
	}
	values, err := session.ReadAll(ctx, p.s, nodes, ua.AttributeIDDataTypeDefinition)
	if err != nil {
		return nil, opError("read data type definitions", nil, err)
	}

	var defs []Definition
	for i, dv := range values {
		m := members[i]
		if dv == nil {
			continue
		}
		if !session.IsGood(dv.Status) {
			p.logger.Debug("no data type definition",
				zap.String("type", m.DataTypeName),
				zap.Uint32("status", uint32(dv.Status)))
			continue
		}
		switch def := unwrapDefinition(session.Value(dv)).(type) {
		case *ua.StructureDefinition:
			defs = append(defs, Definition{Name: m.DataTypeName, DataTypeNodeID: m.IDs.DataTypeNodeID, Definition: def})
		case *ua.EnumDefinition:
			p.logger.Debug("skipping enumeration definition", zap.String("type", m.DataTypeName))
		default:
			p.logger.Debug("skipping unknown definition",
				zap.String("type", m.DataTypeName),
				zap.String("definition", fmt.Sprintf("%T", def)))
		}
	}
	return defs, nil
}
