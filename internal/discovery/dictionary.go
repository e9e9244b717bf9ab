package discovery

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/session"
)

// extractDictionary runs the pipeline of one dictionary: read its flags and
// schema document, discover its members, extract them along the legacy or
// the modern path and check the registered constructors.
func extractDictionary(ctx context.Context, s session.Session, m *Manager, dict *ua.NodeID, o *options, logger *zap.Logger) (rep *DictionaryReport, err error) {
	ctx, span := o.tracer.Start(ctx, "discovery.dictionary",
		trace.WithAttributes(attribute.String("opcua.dictionary", dict.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	f, err := m.Factory(dict.Namespace())
	if err != nil {
		return nil, opError("extract dictionary", dict, err)
	}
	logger = logger.With(zap.Stringer("dictionary", dict))
	p := newPass(s, m, f, o, logger)

	deprecated, err := p.readDeprecated(ctx, dict)
	if err != nil {
		return nil, err
	}
	raw, name, err := p.readDictionary(ctx, dict)
	if err != nil {
		return nil, err
	}

	rep = &DictionaryReport{
		NodeID:       dict,
		Name:         name,
		Namespace:    dict.Namespace(),
		NamespaceURI: p.readNamespaceURI(ctx, dict),
		Deprecated:   deprecated,
	}

	members, err := p.members(ctx, dict)
	if err != nil {
		return nil, err
	}

	if deprecated || raw == "" {
		rep.Path = PathModern
		logger.Debug("extracting from data type definitions",
			zap.String("name", name), zap.Bool("deprecated", deprecated), zap.Bool("schema", raw != ""))
		err = p.extractModern(ctx, dict, members, rep)
	} else {
		rep.Path = PathLegacy
		logger.Debug("extracting from schema document", zap.String("name", name))
		err = p.extractLegacy(ctx, dict, raw, members)
	}
	if err != nil {
		return nil, err
	}
	rep.Registered = p.registered
	span.SetAttributes(
		attribute.String("opcua.path", string(rep.Path)),
		attribute.Int("opcua.registered", len(rep.Registered)))

	if o.verify {
		p.verify(members, rep)
	}

	logger.Info("dictionary extracted",
		zap.String("name", name),
		zap.String("path", string(rep.Path)),
		zap.Int("registered", len(rep.Registered)),
		zap.Int("failed", len(rep.Failures)))
	return rep, nil
}

// readDeprecated reads the Deprecated property of a dictionary. A dictionary
// without one is not deprecated.
func (p *pass) readDeprecated(ctx context.Context, dict *ua.NodeID) (bool, error) {
	prop, err := session.ResolveProperty(ctx, p.s, dict, "Deprecated")
	if err != nil {
		return false, opError("find Deprecated property", dict, err)
	}
	if prop == nil {
		p.logger.Debug("dictionary has no Deprecated property")
		return false, nil
	}
	v, err := session.ReadOne(ctx, p.s, prop, ua.AttributeIDValue)
	if err != nil {
		p.logger.Debug("cannot read Deprecated property", zap.Error(err))
		return false, nil
	}
	deprecated, _ := v.(bool)
	return deprecated, nil
}

// readNamespaceURI reads the NamespaceUri property of a dictionary. It is
// informational; failures yield "".
func (p *pass) readNamespaceURI(ctx context.Context, dict *ua.NodeID) string {
	prop, err := session.ResolveProperty(ctx, p.s, dict, "NamespaceUri")
	if err != nil || prop == nil {
		p.logger.Debug("dictionary has no NamespaceUri property", zap.Error(err))
		return ""
	}
	v, err := session.ReadOne(ctx, p.s, prop, ua.AttributeIDValue)
	if err != nil {
		p.logger.Debug("cannot read NamespaceUri property", zap.Error(err))
		return ""
	}
	uri, _ := v.(string)
	return uri
}

// readDictionary reads the schema document and browse name of a dictionary
// in one round trip. A missing document reads as "".
func (p *pass) readDictionary(ctx context.Context, dict *ua.NodeID) (raw, name string, err error) {
	values, err := p.s.Read(ctx, []*ua.ReadValueID{
		{NodeID: dict, AttributeID: ua.AttributeIDValue},
		{NodeID: dict, AttributeID: ua.AttributeIDBrowseName},
	})
	if err != nil {
		return "", "", opError("read dictionary", dict, err)
	}
	if len(values) != 2 {
		return "", "", opError("read dictionary", dict, fmt.Errorf("%w: %d values for 2 attributes", session.ErrResultCount, len(values)))
	}

	if values[0] != nil && session.IsGood(values[0].Status) {
		switch v := session.Value(values[0]).(type) {
		case []byte:
			raw = string(v)
		case string:
			raw = v
		}
	}
	name = dict.String()
	if values[1] != nil && session.IsGood(values[1].Status) {
		if qn, ok := session.Value(values[1]).(*ua.QualifiedName); ok && qn.Name != "" {
			name = qn.Name
			p.names[dict.String()] = name
		}
	}
	return raw, name, nil
}

// verify instantiates every member the factory holds a structure for and
// checks the binary encoding it carries against the dictionary. Problems are
// collected in the report; none of them fail the pipeline.
func (p *pass) verify(members []member, rep *DictionaryReport) {
	var result *multierror.Error
	for _, mb := range members {
		name := mb.DataTypeName
		if !p.f.HasStructuredType(name) {
			name = mb.Name
		}
		switch {
		case p.f.HasStructuredType(name):
			obj, err := p.f.NewObject(name)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("construct %s: %w", name, err))
				continue
			}
			enc := obj.TypeID()
			if enc == nil || enc.NodeID == nil {
				result = multierror.Append(result, fmt.Errorf("construct %s: no binary encoding", name))
				continue
			}
			if mb.Encoding != nil && enc.NodeID.String() != mb.Encoding.String() {
				result = multierror.Append(result, fmt.Errorf("construct %s: binary encoding %s, dictionary describes %s", name, enc.NodeID, mb.Encoding))
				continue
			}
			rep.Verified++
		case p.f.HasEnumeration(mb.DataTypeName) || p.f.HasEnumeration(mb.Name):
			rep.Verified++
		default:
			rep.Missing = append(rep.Missing, mb.Name)
		}
	}

	rep.VerifyErr = result.ErrorOrNil()
	if rep.VerifyErr != nil {
		p.logger.Warn("constructor check failed", zap.Error(rep.VerifyErr))
	}
	if len(rep.Missing) > 0 {
		p.logger.Debug("members without a registered type", zap.Strings("types", rep.Missing))
	}
}
