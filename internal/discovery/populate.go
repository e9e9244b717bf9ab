package discovery

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/uadiscover/internal/session"
)

// Well-known nodes of the dictionary walk
const (
	dataTypeDictionaryType = 72
	opcBinaryTypeSystem    = 93
	serverNamespaceArray   = 2255
)

// Populate discovers the custom data types of every non-base namespace of
// the server behind s and registers them into the factories of m.
//
// Dictionaries are extracted concurrently, one pipeline each. The first
// pipeline to fail cancels the others and its error is returned; failures
// of single types inside the modern path are contained and show up in the
// report instead.
func Populate(ctx context.Context, s session.Session, m *Manager, opts ...Option) (rep *Report, err error) {
	o := newOptions(opts)
	passID := uuid.NewString()
	logger := o.logger.With(zap.String("pass", passID))

	ctx, span := o.tracer.Start(ctx, "discovery.populate")
	span.SetAttributes(attribute.String("discovery.pass", passID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := readNamespaceArray(ctx, s, m, logger); err != nil {
		return nil, err
	}

	dicts, err := FindDictionaries(ctx, s)
	if err != nil {
		return nil, err
	}
	logger.Info("discovering data types",
		zap.Int("namespaces", len(m.NamespaceArray())),
		zap.Int("dictionaries", len(dicts)))

	reports := make([]*DictionaryReport, len(dicts))
	g, gctx := errgroup.WithContext(ctx)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, dict := range dicts {
		g.Go(func() error {
			r, err := extractDictionary(gctx, s, m, dict, o, logger)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("discovery failed", zap.Error(err))
		return nil, err
	}

	rep = &Report{
		PassID:       passID,
		Namespaces:   m.NamespaceArray(),
		Dictionaries: reports,
	}
	span.SetAttributes(attribute.Int("discovery.registered", rep.Registered()))
	return rep, nil
}

// readNamespaceArray records the server namespace table and makes sure every
// custom namespace has a factory. A server that does not expose the table
// leaves the recorded one untouched.
func readNamespaceArray(ctx context.Context, s session.Session, m *Manager, logger *zap.Logger) error {
	v, err := session.ReadOne(ctx, s, ua.NewNumericNodeID(0, serverNamespaceArray), ua.AttributeIDValue)
	if err != nil {
		if !errors.Is(err, ErrBadStatus) {
			return opError("read namespace array", nil, err)
		}
		logger.Warn("cannot read namespace array", zap.Error(err))
	} else if uris, ok := v.([]string); ok {
		m.SetNamespaceArray(uris)
	}

	uris := m.NamespaceArray()
	for ns := 1; ns < len(uris); ns++ {
		if !m.HasFactory(uint16(ns)) {
			logger.Debug("creating factory", zap.Int("namespace", ns), zap.String("uri", uris[ns]))
		}
		m.EnsureFactory(uint16(ns))
	}
	return nil
}

// FindDictionaries returns the type dictionaries below the OPC Binary type
// system that belong to custom namespaces, ordered by node id
func FindDictionaries(ctx context.Context, s session.Session) ([]*ua.NodeID, error) {
	refs, err := session.BrowseOne(ctx, s,
		session.Forward(ua.NewNumericNodeID(0, opcBinaryTypeSystem), id.HasComponent, false, ua.NodeClassVariable))
	if err != nil {
		return nil, opError("browse type dictionaries", nil, err)
	}

	var dicts []*ua.NodeID
	for _, r := range refs {
		if r.NodeID == nil || r.NodeID.NodeID == nil || r.NodeID.NodeID.Namespace() == 0 {
			continue
		}
		if r.TypeDefinition == nil {
			continue
		}
		if v, ok := wellKnown(r.TypeDefinition.NodeID); !ok || v != dataTypeDictionaryType {
			continue
		}
		dicts = append(dicts, r.NodeID.NodeID)
	}
	sort.Slice(dicts, func(i, j int) bool { return dicts[i].String() < dicts[j].String() })
	return dicts, nil
}
