package addrspace

import "github.com/gopcua/opcua/id"

// referenceSupertypes maps each standard reference type to its supertype
var referenceSupertypes = map[uint32]uint32{
	id.HierarchicalReferences:    id.References,
	id.NonHierarchicalReferences: id.References,
	id.HasChild:                  id.HierarchicalReferences,
	id.Organizes:                 id.HierarchicalReferences,
	id.Aggregates:                id.HasChild,
	id.HasSubtype:                id.HasChild,
	id.HasComponent:              id.Aggregates,
	id.HasProperty:               id.Aggregates,
	id.HasEncoding:               id.NonHierarchicalReferences,
	id.HasDescription:            id.NonHierarchicalReferences,
	id.HasTypeDefinition:         id.NonHierarchicalReferences,
	id.HasModellingRule:          id.NonHierarchicalReferences,
}

// isReferenceSubtype reports whether refType equals base or, when
// includeSubtypes is set, descends from it
func isReferenceSubtype(refType, base uint32, includeSubtypes bool) bool {
	if refType == base {
		return true
	}
	if !includeSubtypes {
		return false
	}
	for {
		parent, ok := referenceSupertypes[refType]
		if !ok {
			return false
		}
		if parent == base {
			return true
		}
		refType = parent
	}
}
