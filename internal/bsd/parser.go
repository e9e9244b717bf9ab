package bsd

import (
	"context"
	"errors"
	"fmt"

	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/depsort"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

// ErrUnknownType is returned when a field or base type names a type that is
// neither built in nor declared by the dictionary
var ErrUnknownType = errors.New("unknown type")

// binaryAliases maps OPC Binary primitive names onto built-in types
var binaryAliases = map[string]string{
	"CharArray":     "String",
	"WideString":    "String",
	"WideCharArray": "String",
}

// Parser registers the types of a type dictionary
type Parser struct {
	logger *zap.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a parser
func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes raw and registers its opaque, enumerated and structured
// types into f. Types already known to f are left untouched. Node ids come
// from ids, keyed by type name.
func (p *Parser) Parse(ctx context.Context, raw string, ids factory.EncodingLookup, f *factory.DataTypeFactory) error {
	dict, err := decode(raw)
	if err != nil {
		return err
	}
	logger := p.logger.With(zap.String("targetNamespace", dict.TargetNamespace))

	for _, o := range dict.Opaque {
		if f.HasSimpleType(o.Name) {
			continue
		}
		bs, _ := factory.BuiltInType("ByteString")
		err := f.RegisterSimpleType(&factory.BasicType{Name: o.Name, BuiltIn: bs.BuiltIn, ID: bs.ID})
		if err != nil && !errors.Is(err, factory.ErrDuplicateType) {
			return err
		}
	}

	for _, e := range dict.Enums {
		if f.HasEnumeration(e.Name) {
			continue
		}
		schema := &factory.EnumerationSchema{Name: e.Name}
		for _, v := range e.Values {
			schema.Values = append(schema.Values, factory.EnumValue{Name: v.Name, Value: v.Value})
		}
		if known, ok := ids.DataTypeAndEncodingID(e.Name); ok && known != nil {
			schema.DataTypeNodeID = known.DataTypeNodeID
		}
		if err := f.RegisterEnumeration(schema); err != nil && !errors.Is(err, factory.ErrDuplicateType) {
			return err
		}
	}

	sorted, err := depsort.Sort(dict.Structs,
		func(s structuredType) string { return s.Name },
		func(s structuredType) []string { return dict.localDependencies(s) })
	if err != nil {
		return fmt.Errorf("order structured types: %w", err)
	}

	for _, st := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.HasStructuredType(st.Name) {
			continue
		}
		schema, err := p.structure(logger, dict, st, f)
		if err != nil {
			return fmt.Errorf("structured type %s: %w", st.Name, err)
		}
		if known, ok := ids.DataTypeAndEncodingID(st.Name); ok && known != nil {
			known.Apply(schema)
		} else {
			logger.Warn("no node ids for structured type", zap.String("type", st.Name))
		}
		if _, err := f.RegisterStructuredType(schema); err != nil && !errors.Is(err, factory.ErrDuplicateType) {
			return err
		}
		logger.Debug("registered structured type", zap.String("type", st.Name), zap.Int("fields", len(schema.Fields)))
	}
	return nil
}

func (d *typeDictionary) localDependencies(s structuredType) []string {
	var deps []string
	if s.BaseType != "" {
		if r := d.ref(s.BaseType); r.scope == scopeLocal {
			deps = append(deps, r.name)
		}
	}
	for _, fld := range s.Fields {
		if r := d.ref(fld.TypeName); r.scope == scopeLocal {
			deps = append(deps, r.name)
		}
	}
	return deps
}

func (p *Parser) structure(logger *zap.Logger, d *typeDictionary, st structuredType, f *factory.DataTypeFactory) (*factory.StructuredTypeSchema, error) {
	schema := &factory.StructuredTypeSchema{
		Name:          st.Name,
		BaseType:      factory.ExtensionObjectName,
		StructureType: ua.StructureTypeStructure,
	}
	if st.BaseType != "" {
		base := d.ref(st.BaseType)
		if base.scope == scopeLocal {
			if !f.HasStructuredType(base.name) {
				return nil, fmt.Errorf("base type %s: %w", base.name, ErrUnknownType)
			}
			schema.BaseType = base.name
		}
	}

	lengths := st.lengthFields()
	for _, fld := range st.Fields {
		ref := d.ref(fld.TypeName)
		if ref.scope == scopeBinary && ref.name == "Bit" {
			continue
		}
		if lengths[fld.Name] {
			continue
		}

		def, err := p.resolve(logger, ref, f)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fld.Name, err)
		}
		fs := factory.FieldSchema{
			Name:       fld.Name,
			FieldType:  def.TypeName(),
			Category:   def.Category(),
			IsArray:    fld.LengthField != "",
			IsOptional: fld.SwitchField != "",
			Schema:     def,
		}
		switch {
		case fld.SwitchValue != "":
			schema.StructureType = ua.StructureTypeUnion
		case fld.SwitchField != "" && schema.StructureType == ua.StructureTypeStructure:
			schema.StructureType = ua.StructureTypeStructureWithOptionalFields
		}
		schema.Fields = append(schema.Fields, fs)
	}
	return schema, nil
}

func (p *Parser) resolve(logger *zap.Logger, ref typeRef, f *factory.DataTypeFactory) (factory.TypeDefinition, error) {
	switch ref.scope {
	case scopeBinary:
		name := ref.name
		if alias, ok := binaryAliases[name]; ok {
			name = alias
		}
		if b, ok := factory.BuiltInType(name); ok {
			return b, nil
		}
	case scopeUA:
		if b, ok := factory.BuiltInType(ref.name); ok {
			return b, nil
		}
	}

	if s, err := f.GetStructuredTypeSchema(ref.name); err == nil {
		return s, nil
	}
	if e, err := f.GetEnumeration(ref.name); err == nil {
		return e, nil
	}
	if b, err := f.GetSimpleType(ref.name); err == nil {
		return b, nil
	}

	if ref.scope == scopeUA || ref.scope == scopeForeign {
		// Standard structures are not held by the factory; they travel as
		// extension objects.
		logger.Debug("treating imported type as extension object", zap.String("typeName", ref.name))
		b, _ := factory.BuiltInType(factory.ExtensionObjectName)
		return b, nil
	}
	return nil, fmt.Errorf("%s: %w", ref.name, ErrUnknownType)
}
