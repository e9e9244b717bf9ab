package discovery

import (
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/depsort"
	"github.com/conduit-lang/uadiscover/internal/session"
)

// Definition is a structure definition read from the server together with
// the data type it belongs to
type Definition struct {
	Name           string
	DataTypeNodeID *ua.NodeID
	Definition     *ua.StructureDefinition
}

// SortDefinitions orders defs so that every definition comes after the
// definitions of its base type and field types found in the same batch.
// A cycle inside the batch fails with ErrDependencyCycle.
func SortDefinitions(defs []Definition) ([]Definition, error) {
	sorted, err := depsort.Sort(defs, definitionKey, definitionDeps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDependencyCycle, err)
	}
	return sorted, nil
}

func definitionKey(d Definition) string {
	return d.DataTypeNodeID.String()
}

func definitionDeps(d Definition) []string {
	if d.Definition == nil {
		return nil
	}
	deps := make([]string, 0, len(d.Definition.Fields)+1)
	if !session.IsNull(d.Definition.BaseDataType) {
		deps = append(deps, d.Definition.BaseDataType.String())
	}
	for _, f := range d.Definition.Fields {
		if f != nil && !session.IsNull(f.DataType) {
			deps = append(deps, f.DataType.String())
		}
	}
	return deps
}
