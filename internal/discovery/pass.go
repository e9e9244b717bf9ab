package discovery

import (
	"context"

	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// pass holds the state of one dictionary extraction. It is owned by a single
// goroutine and dropped when the dictionary is done, so cache entries are
// written once and never shared.
type pass struct {
	s      session.Session
	m      *Manager
	f      *factory.DataTypeFactory
	opts   *options
	logger *zap.Logger

	names      map[string]string
	fields     map[string]*resolvedType
	categories map[string]factory.FieldCategory
	basics     map[string]*factory.BasicType
	inProgress map[string]bool

	// registered lists the types this pass added, in registration order
	registered []string
}

func newPass(s session.Session, m *Manager, f *factory.DataTypeFactory, o *options, logger *zap.Logger) *pass {
	return &pass{
		s:          s,
		m:          m,
		f:          f,
		opts:       o,
		logger:     logger,
		names:      make(map[string]string),
		fields:     make(map[string]*resolvedType),
		categories: make(map[string]factory.FieldCategory),
		basics:     make(map[string]*factory.BasicType),
		inProgress: make(map[string]bool),
	}
}

// browseName reads the browse name of a node once per pass
func (p *pass) browseName(ctx context.Context, nid *ua.NodeID) (string, error) {
	key := nid.String()
	if name, ok := p.names[key]; ok {
		return name, nil
	}
	qn, err := session.ReadBrowseName(ctx, p.s, nid)
	if err != nil {
		return "", opError("read browse name", nid, err)
	}
	p.names[key] = qn.Name
	return qn.Name, nil
}

// readDefinition reads the DataTypeDefinition attribute and unwraps the
// extension object carrying it
func (p *pass) readDefinition(ctx context.Context, nid *ua.NodeID) (any, error) {
	v, err := session.ReadOne(ctx, p.s, nid, ua.AttributeIDDataTypeDefinition)
	if err != nil {
		return nil, opError("read data type definition", nid, err)
	}
	return unwrapDefinition(v), nil
}

func unwrapDefinition(v any) any {
	if eo, ok := v.(*ua.ExtensionObject); ok {
		return eo.Value
	}
	return v
}

// wellKnown returns the numeric identifier of a base namespace node
func wellKnown(nid *ua.NodeID) (uint32, bool) {
	if nid == nil || nid.Namespace() != 0 {
		return 0, false
	}
	switch nid.Type() {
	case ua.NodeIDTypeTwoByte, ua.NodeIDTypeFourByte, ua.NodeIDTypeNumeric:
		return nid.IntID(), true
	}
	return 0, false
}

// isPlaceholder reports whether a data type reference means "no further
// specialization": the null node id or the abstract Structure
func isPlaceholder(nid *ua.NodeID) bool {
	if session.IsNull(nid) {
		return true
	}
	v, ok := wellKnown(nid)
	return ok && v == factory.StructureID
}
