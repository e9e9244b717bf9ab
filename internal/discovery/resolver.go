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

// resolvedType is what a data type reference resolves to
type resolvedType struct {
	name     string
	category factory.FieldCategory
	schema   factory.TypeDefinition
}

// resolveFieldType turns a data type reference into its name, category and
// schema. Placeholders resolve to nil. Types the factories do not know yet
// are classified and, for structures and enumerations, converted and
// registered into the factory of their own namespace.
func (p *pass) resolveFieldType(ctx context.Context, typeID *ua.NodeID) (*resolvedType, error) {
	if isPlaceholder(typeID) {
		return nil, nil
	}
	key := typeID.String()
	if r, ok := p.fields[key]; ok {
		return r, nil
	}

	name, err := p.browseName(ctx, typeID)
	if err != nil {
		return nil, err
	}

	r := p.lookup(typeID, name)
	if r == nil {
		if r, err = p.discover(ctx, typeID, name); err != nil {
			return nil, err
		}
	}
	p.fields[key] = r
	return r, nil
}

// lookup finds a type already known to the factories: by data type node
// first, then by name in the factory of the type's own namespace (which
// falls back to the standard factory). The dictionary's factory is searched
// only when that namespace has none. A name match registered for another
// data type node is not the type being resolved.
func (p *pass) lookup(typeID *ua.NodeID, name string) *resolvedType {
	if def, ok := p.m.FindByDataTypeID(typeID); ok {
		return &resolvedType{name: def.TypeName(), category: def.Category(), schema: def}
	}

	f, err := p.m.Factory(typeID.Namespace())
	if err != nil {
		f = p.f
	}
	if s, err := f.GetStructuredTypeSchema(name); err == nil && sameNode(s.DataTypeNodeID, typeID) {
		return &resolvedType{name: name, category: factory.Complex, schema: s}
	}
	if b, err := f.GetSimpleType(name); err == nil {
		return &resolvedType{name: name, category: factory.Basic, schema: b}
	}
	if e, err := f.GetEnumeration(name); err == nil && sameNode(e.DataTypeNodeID, typeID) {
		return &resolvedType{name: name, category: factory.Enumeration, schema: e}
	}
	return nil
}

// sameNode reports whether a registered schema may stand for typeID. Schemas
// registered without a data type node match by name alone.
func sameNode(registered, typeID *ua.NodeID) bool {
	return registered == nil || registered.String() == typeID.String()
}

func (p *pass) discover(ctx context.Context, typeID *ua.NodeID, name string) (*resolvedType, error) {
	p.logger.Debug("resolving unseen data type", zap.Stringer("nodeId", typeID), zap.String("type", name))

	category, err := p.classify(ctx, typeID)
	if err != nil {
		return nil, err
	}

	var schema factory.TypeDefinition
	switch category {
	case factory.Basic:
		schema, err = p.basicTypeOf(ctx, typeID)
	case factory.Complex:
		schema, err = p.structureOnDemand(ctx, typeID, name)
	case factory.Enumeration:
		schema, err = p.enumerationOnDemand(ctx, typeID, name)
	}
	if err != nil {
		return nil, err
	}
	return &resolvedType{name: name, category: category, schema: schema}, nil
}

// structureOnDemand converts a structure that is not registered yet and
// registers it into its namespace's factory
func (p *pass) structureOnDemand(ctx context.Context, typeID *ua.NodeID, name string) (*factory.StructuredTypeSchema, error) {
	if p.inProgress[typeID.String()] {
		return nil, opError("resolve field type", typeID, fmt.Errorf("%w: %s refers to itself", ErrDependencyCycle, name))
	}
	target, err := p.m.Factory(typeID.Namespace())
	if err != nil {
		return nil, opError("resolve field type", typeID, err)
	}

	def, err := p.readDefinition(ctx, typeID)
	if err != nil {
		return nil, err
	}
	sd, ok := def.(*ua.StructureDefinition)
	if !ok {
		return nil, opError("resolve field type", typeID, fmt.Errorf("%w: %T for structure %s", ErrUnsupportedDefinition, def, name))
	}

	schema, err := p.convert(ctx, typeID, name, sd)
	if err != nil {
		return nil, err
	}
	return p.register(target, schema)
}

// register adds schema to f or, when another pipeline got there first,
// returns the schema already registered under its name
func (p *pass) register(f *factory.DataTypeFactory, schema *factory.StructuredTypeSchema) (*factory.StructuredTypeSchema, error) {
	_, err := f.RegisterStructuredType(schema)
	if errors.Is(err, factory.ErrDuplicateType) {
		return f.GetStructuredTypeSchema(schema.Name)
	}
	if err != nil {
		return nil, err
	}
	p.registered = append(p.registered, schema.Name)
	p.logger.Debug("registered structure", zap.String("type", schema.Name), zap.Stringer("nodeId", schema.DataTypeNodeID))
	return schema, nil
}

// enumerationOnDemand builds an enumeration from its EnumDefinition, or from
// the EnumValues or EnumStrings property on servers without definitions
func (p *pass) enumerationOnDemand(ctx context.Context, typeID *ua.NodeID, name string) (*factory.EnumerationSchema, error) {
	target, err := p.m.Factory(typeID.Namespace())
	if err != nil {
		return nil, opError("resolve field type", typeID, err)
	}

	values, err := p.enumValues(ctx, typeID)
	if err != nil {
		return nil, err
	}
	e := &factory.EnumerationSchema{Name: name, DataTypeNodeID: typeID, Values: values}

	err = target.RegisterEnumeration(e)
	if errors.Is(err, factory.ErrDuplicateType) {
		return target.GetEnumeration(name)
	}
	if err != nil {
		return nil, err
	}
	p.registered = append(p.registered, name)
	return e, nil
}

func (p *pass) enumValues(ctx context.Context, typeID *ua.NodeID) ([]factory.EnumValue, error) {
	values, err := session.ReadAll(ctx, p.s, []*ua.NodeID{typeID}, ua.AttributeIDDataTypeDefinition)
	if err != nil {
		return nil, opError("read data type definition", typeID, err)
	}
	if session.IsGood(values[0].Status) {
		if ed, ok := unwrapDefinition(session.Value(values[0])).(*ua.EnumDefinition); ok {
			out := make([]factory.EnumValue, 0, len(ed.Fields))
			for _, f := range ed.Fields {
				out = append(out, factory.EnumValue{Name: f.Name, Value: f.Value})
			}
			return out, nil
		}
	}

	if prop, err := session.ResolveProperty(ctx, p.s, typeID, "EnumValues"); err != nil {
		return nil, opError("find EnumValues", typeID, err)
	} else if prop != nil {
		v, err := session.ReadOne(ctx, p.s, prop, ua.AttributeIDValue)
		if err != nil {
			return nil, opError("read EnumValues", prop, err)
		}
		return enumValuesFromProperty(v), nil
	}

	if prop, err := session.ResolveProperty(ctx, p.s, typeID, "EnumStrings"); err != nil {
		return nil, opError("find EnumStrings", typeID, err)
	} else if prop != nil {
		v, err := session.ReadOne(ctx, p.s, prop, ua.AttributeIDValue)
		if err != nil {
			return nil, opError("read EnumStrings", prop, err)
		}
		return enumValuesFromStrings(v), nil
	}

	return nil, opError("resolve enumeration", typeID, fmt.Errorf("%w: no definition, EnumValues or EnumStrings", ErrUnsupportedDefinition))
}

func enumValuesFromProperty(v any) []factory.EnumValue {
	objects, _ := v.([]*ua.ExtensionObject)
	out := make([]factory.EnumValue, 0, len(objects))
	for _, eo := range objects {
		if eo == nil {
			continue
		}
		ev, ok := eo.Value.(*ua.EnumValueType)
		if !ok {
			continue
		}
		name := ""
		if ev.DisplayName != nil {
			name = ev.DisplayName.Text
		}
		out = append(out, factory.EnumValue{Name: name, Value: ev.Value})
	}
	return out
}

func enumValuesFromStrings(v any) []factory.EnumValue {
	var names []string
	switch texts := v.(type) {
	case []*ua.LocalizedText:
		for _, t := range texts {
			if t != nil {
				names = append(names, t.Text)
			} else {
				names = append(names, "")
			}
		}
	case []string:
		names = texts
	}
	out := make([]factory.EnumValue, len(names))
	for i, n := range names {
		out[i] = factory.EnumValue{Name: n, Value: int64(i)}
	}
	return out
}

// convert assembles the schema of one structure: fields and base type via
// the resolver, then encodings. The schema is returned unregistered.
func (p *pass) convert(ctx context.Context, typeID *ua.NodeID, name string, def *ua.StructureDefinition) (*factory.StructuredTypeSchema, error) {
	if def.StructureType > ua.StructureTypeUnion {
		return nil, opError("convert definition", typeID, fmt.Errorf("%w: structure type %d", ErrUnsupportedDefinition, def.StructureType))
	}

	key := typeID.String()
	p.inProgress[key] = true
	defer delete(p.inProgress, key)

	union := def.StructureType == ua.StructureTypeUnion
	schema := &factory.StructuredTypeSchema{Name: name, StructureType: def.StructureType}
	for _, fd := range def.Fields {
		r, err := p.resolveFieldType(ctx, fd.DataType)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", name, fd.Name, err)
		}
		fs := factory.FieldSchema{
			Name:       fd.Name,
			IsArray:    fd.ValueRank >= 0,
			IsOptional: fd.IsOptional || union,
		}
		if r == nil {
			eo, _ := factory.BuiltInType(factory.ExtensionObjectName)
			fs.FieldType, fs.Category, fs.Schema = eo.Name, factory.Basic, eo
		} else {
			fs.FieldType, fs.Category, fs.Schema = r.name, r.category, r.schema
		}
		schema.Fields = append(schema.Fields, fs)
	}

	base, err := p.resolveFieldType(ctx, def.BaseDataType)
	if err != nil {
		return nil, fmt.Errorf("base type of %s: %w", name, err)
	}
	schema.BaseType = factory.ExtensionObjectName
	if base != nil {
		schema.BaseType = base.name
	}

	ids, err := findEncodings(ctx, p.s, typeID, p.logger)
	if err != nil {
		return nil, err
	}
	ids.Apply(schema)
	return schema, nil
}
