package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/depsort"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

// extractLegacy hands the schema document of a dictionary to the schema
// parser together with the node identities of its members. The document
// itself is never interpreted here.
func (p *pass) extractLegacy(ctx context.Context, dict *ua.NodeID, raw string, members []member) error {
	before := localNames(p.f)

	p.logger.Debug("parsing schema document", zap.Int("bytes", len(raw)), zap.Int("members", len(members)))
	if err := p.opts.parser.Parse(ctx, raw, encodingLookup(members), p.f); err != nil {
		var cycle depsort.CycleError[string]
		if errors.As(err, &cycle) {
			err = fmt.Errorf("%w: %w", ErrDependencyCycle, err)
		}
		return opError("parse schema document", dict, err)
	}

	var added []string
	for name := range localNames(p.f) {
		if !before[name] {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	p.registered = append(p.registered, added...)
	return nil
}

func localNames(f *factory.DataTypeFactory) map[string]bool {
	names := make(map[string]bool)
	for _, s := range f.StructuredTypes() {
		names[s.Name] = true
	}
	for _, e := range f.Enumerations() {
		names[e.Name] = true
	}
	return names
}
