package discovery

import (
	"context"
	"testing"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/addrspace"
	"github.com/conduit-lang/uadiscover/internal/factory"
	"github.com/conduit-lang/uadiscover/internal/session"
)

var (
	secondsID    = nid(2, 3201)
	amountID     = nid(2, 3202)
	valveStateID = nid(2, 3301)
	modeID       = nid(2, 3302)
	flagsID      = nid(2, 3303)
	treeID       = nid(2, 3401)
	point3DID    = nid(2, 3601)
	oddID        = nid(2, 3701)
)

// typesSpace adds basic, enumerated and derived types next to the plant types
func typesSpace(t *testing.T) *addrspace.Space {
	t.Helper()
	s := plantSpace(t)

	require.NoError(t, s.AddDataType(addrspace.DataType{ID: secondsID, Name: "Seconds", Parent: ns0(addrspace.Duration)}))
	require.NoError(t, s.AddDataType(addrspace.DataType{ID: amountID, Name: "Amount", Parent: ns0(id.Number)}))

	require.NoError(t, s.AddDataType(addrspace.DataType{
		ID:   valveStateID,
		Name: "ValveState",
		Definition: &ua.EnumDefinition{Fields: []*ua.EnumField{
			{Name: "Closed", Value: 0},
			{Name: "Open", Value: 1},
		}},
	}))

	require.NoError(t, s.AddDataType(addrspace.DataType{ID: modeID, Name: "Mode", Parent: ns0(id.Enumeration)}))
	require.NoError(t, s.AddNode(&addrspace.Node{
		ID:         nid(2, 9001),
		Class:      ua.NodeClassVariable,
		BrowseName: &ua.QualifiedName{Name: "EnumStrings"},
		Value:      []string{"Auto", "Manual"},
	}))
	require.NoError(t, s.AddReference(modeID, id.HasProperty, nid(2, 9001)))

	require.NoError(t, s.AddDataType(addrspace.DataType{ID: flagsID, Name: "Flags", Parent: ns0(id.Enumeration)}))

	addStructure(t, s, treeID, "TreeNode",
		structure(&ua.StructureField{Name: "children", DataType: treeID, ValueRank: 1}),
		nid(2, 5401))

	require.NoError(t, s.AddDataType(addrspace.DataType{
		ID:         point3DID,
		Name:       "Point3D",
		Parent:     pointID,
		Definition: structure(scalar("x", ns0(id.Double)), scalar("y", ns0(id.Double)), scalar("z", ns0(id.Double))),
		Encodings:  map[string]*ua.NodeID{DefaultBinary: nid(2, 5601)},
	}))

	addStructure(t, s, oddID, "Odd", structure(), nid(2, 5701))
	require.NoError(t, s.AddReference(ns0(id.BaseDataType), id.HasSubtype, oddID))
	return s
}

func newTestPass(s session.Session, m *Manager, ns uint16) *pass {
	return newPass(s, m, m.EnsureFactory(ns), newOptions(nil), zap.NewNop())
}

func TestResolveFieldType_Memoized(t *testing.T) {
	s := session.NewCounting(plantSpace(t))
	m := NewManager()
	p := newTestPass(s, m, 2)
	ctx := context.Background()

	first, err := p.resolveFieldType(ctx, pointID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Point", first.name)
	assert.Equal(t, factory.Complex, first.category)

	before := s.Stats()
	second, err := p.resolveFieldType(ctx, pointID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first.schema, second.schema)
	assert.Equal(t, before, s.Stats(), "a cached type costs no round trip")

	assert.Equal(t, 1, s.Reads(pointID, ua.AttributeIDBrowseName))
	assert.Equal(t, 1, s.Reads(pointID, ua.AttributeIDDataTypeDefinition))

	f, err := m.Factory(2)
	require.NoError(t, err)
	registered, err := f.GetStructuredTypeSchema("Point")
	require.NoError(t, err)
	assert.Same(t, registered, first.schema)
	assert.Equal(t, []string{"Point"}, p.registered)

	t.Run("next pass finds the registered schema", func(t *testing.T) {
		next := newTestPass(s, m, 2)
		r, err := next.resolveFieldType(ctx, pointID)
		require.NoError(t, err)
		assert.Same(t, registered, r.schema)
		assert.Equal(t, 1, s.Reads(pointID, ua.AttributeIDDataTypeDefinition))
		assert.Empty(t, next.registered)
	})
}

func TestResolveFieldType(t *testing.T) {
	s := typesSpace(t)
	ctx := context.Background()

	t.Run("placeholders", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		for _, n := range []*ua.NodeID{nil, ns0(0), ns0(id.Structure)} {
			r, err := p.resolveFieldType(ctx, n)
			require.NoError(t, err)
			assert.Nil(t, r)
		}
	})

	t.Run("built-in", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		r, err := p.resolveFieldType(ctx, ns0(id.Double))
		require.NoError(t, err)
		assert.Equal(t, "Double", r.name)
		assert.Equal(t, factory.Basic, r.category)
	})

	t.Run("subtype of a built-in subtype", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		r, err := p.resolveFieldType(ctx, secondsID)
		require.NoError(t, err)
		assert.Equal(t, "Seconds", r.name)
		assert.Equal(t, factory.Basic, r.category)
		b, ok := r.schema.(*factory.BasicType)
		require.True(t, ok)
		assert.Equal(t, "Double", b.BuiltIn)
	})

	t.Run("subtype of an abstract number", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		r, err := p.resolveFieldType(ctx, amountID)
		require.NoError(t, err)
		assert.Equal(t, factory.Basic, r.category)
		assert.Equal(t, "Variant", r.schema.(*factory.BasicType).BuiltIn)
	})

	t.Run("enumeration from its definition", func(t *testing.T) {
		m := NewManager()
		p := newTestPass(s, m, 2)
		r, err := p.resolveFieldType(ctx, valveStateID)
		require.NoError(t, err)
		assert.Equal(t, factory.Enumeration, r.category)
		e, ok := r.schema.(*factory.EnumerationSchema)
		require.True(t, ok)
		assert.Equal(t, []factory.EnumValue{{Name: "Closed", Value: 0}, {Name: "Open", Value: 1}}, e.Values)

		f, err := m.Factory(2)
		require.NoError(t, err)
		assert.True(t, f.HasEnumeration("ValveState"))
	})

	t.Run("enumeration from EnumStrings", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		r, err := p.resolveFieldType(ctx, modeID)
		require.NoError(t, err)
		e := r.schema.(*factory.EnumerationSchema)
		assert.Equal(t, []factory.EnumValue{{Name: "Auto", Value: 0}, {Name: "Manual", Value: 1}}, e.Values)
	})

	t.Run("enumeration without values", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		_, err := p.resolveFieldType(ctx, flagsID)
		assert.ErrorIs(t, err, ErrUnsupportedDefinition)
	})

	t.Run("self reference", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		_, err := p.resolveFieldType(ctx, treeID)
		assert.ErrorIs(t, err, ErrDependencyCycle)
		assert.Empty(t, p.inProgress)
	})

	t.Run("namespace without factory", func(t *testing.T) {
		m := NewManager()
		p := newPass(s, m, m.EnsureFactory(1), newOptions(nil), zap.NewNop())
		_, err := p.resolveFieldType(ctx, pointID)
		assert.ErrorIs(t, err, ErrNoFactory)
	})
}

func TestResolveFieldType_SameNameInAnotherNamespace(t *testing.T) {
	labPointID := nid(3, 3001)
	labSpace := func(t *testing.T) *addrspace.Space {
		s := plantSpace(t)
		s.SetNamespaces("urn:other", "urn:plant", "urn:lab")
		addStructure(t, s, labPointID, "Point", structure(scalar("z", ns0(id.Int32))), nid(3, 5001))
		return s
	}
	ctx := context.Background()

	t.Run("binds the type of its own namespace", func(t *testing.T) {
		m := NewManager()
		lab := m.EnsureFactory(3)
		p := newTestPass(labSpace(t), m, 2)

		plant, err := p.resolveFieldType(ctx, pointID)
		require.NoError(t, err)

		r, err := p.resolveFieldType(ctx, labPointID)
		require.NoError(t, err)
		assert.NotSame(t, plant.schema, r.schema)

		got, ok := r.schema.(*factory.StructuredTypeSchema)
		require.True(t, ok)
		require.Len(t, got.Fields, 1)
		assert.Equal(t, "z", got.Fields[0].Name)
		assert.Equal(t, labPointID.String(), got.DataTypeNodeID.String())

		registered, err := lab.GetStructuredTypeSchema("Point")
		require.NoError(t, err)
		assert.Same(t, got, registered)
	})

	t.Run("finds an already registered type by node", func(t *testing.T) {
		m := NewManager()
		m.EnsureFactory(3)
		s := labSpace(t)

		first, err := newTestPass(s, m, 3).resolveFieldType(ctx, labPointID)
		require.NoError(t, err)
		plant, err := newTestPass(s, m, 2).resolveFieldType(ctx, pointID)
		require.NoError(t, err)
		again, err := newTestPass(s, m, 2).resolveFieldType(ctx, labPointID)
		require.NoError(t, err)

		assert.Same(t, first.schema, again.schema)
		assert.NotSame(t, plant.schema, again.schema)
	})

	t.Run("no factory for the namespace", func(t *testing.T) {
		m := NewManager()
		p := newTestPass(labSpace(t), m, 2)
		_, err := p.resolveFieldType(ctx, pointID)
		require.NoError(t, err)

		_, err = p.resolveFieldType(ctx, labPointID)
		assert.ErrorIs(t, err, ErrNoFactory)
	})
}

func TestClassify(t *testing.T) {
	s := session.NewCounting(typesSpace(t))
	ctx := context.Background()
	p := newTestPass(s, NewManager(), 2)

	tests := []struct {
		name string
		id   *ua.NodeID
		want factory.FieldCategory
	}{
		{"structure", pointID, factory.Complex},
		{"derived structure", point3DID, factory.Complex},
		{"enumeration", valveStateID, factory.Enumeration},
		{"built-in subtype", secondsID, factory.Basic},
		{"abstract number", amountID, factory.Basic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.classify(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("cached climbs", func(t *testing.T) {
		before := s.Stats()
		for _, tt := range tests {
			_, err := p.classify(ctx, tt.id)
			require.NoError(t, err)
		}
		assert.Equal(t, before, s.Stats())
	})

	t.Run("two parents", func(t *testing.T) {
		_, err := p.classify(ctx, oddID)
		assert.ErrorIs(t, err, ErrReferenceMultiplicity)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := p.classify(ctx, nid(2, 99999))
		assert.ErrorIs(t, err, ErrBadStatus)
	})
}

func TestConvert(t *testing.T) {
	s := typesSpace(t)
	ctx := context.Background()

	t.Run("arrays and enumerations", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		def := structure(
			&ua.StructureField{Name: "readings", DataType: ns0(id.Double), ValueRank: 1},
			&ua.StructureField{Name: "grid", DataType: ns0(id.Int32), ValueRank: 2},
			scalar("state", valveStateID),
			scalar("payload", ns0(0)),
		)
		schema, err := p.convert(ctx, pointID, "Sample", def)
		require.NoError(t, err)
		require.Len(t, schema.Fields, 4)
		assert.True(t, schema.Fields[0].IsArray)
		assert.True(t, schema.Fields[1].IsArray)
		assert.False(t, schema.Fields[2].IsArray)
		assert.Equal(t, factory.Enumeration, schema.Fields[2].Category)
		assert.Equal(t, "ValveState", schema.Fields[2].FieldType)
		assert.Equal(t, factory.ExtensionObjectName, schema.Fields[3].FieldType)
		assert.Equal(t, factory.Basic, schema.Fields[3].Category)
		assert.Equal(t, "ns=2;i=5001", schema.EncodingDefaultBinary.NodeID.String())
	})

	t.Run("derived base type", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		def := structure(scalar("z", ns0(id.Double)))
		def.BaseDataType = pointID
		schema, err := p.convert(ctx, point3DID, "Point3D", def)
		require.NoError(t, err)
		assert.Equal(t, "Point", schema.BaseType)
	})

	t.Run("union members are optional", func(t *testing.T) {
		p := newTestPass(s, NewManager(), 2)
		def := structure(scalar("number", ns0(id.Int32)), scalar("text", ns0(id.String)))
		def.StructureType = ua.StructureTypeUnion
		schema, err := p.convert(ctx, pointID, "Choice", def)
		require.NoError(t, err)
		assert.True(t, schema.IsUnion())
		for _, f := range schema.Fields {
			assert.True(t, f.IsOptional, f.Name)
		}
	})

	t.Run("unsupported structure type", func(t *testing.T) {
		counting := session.NewCounting(s)
		p := newTestPass(counting, NewManager(), 2)
		def := structure()
		def.StructureType = ua.StructureType(3)
		_, err := p.convert(ctx, pointID, "Subtyped", def)
		assert.ErrorIs(t, err, ErrUnsupportedDefinition)
		assert.Zero(t, counting.Stats().RoundTrips())
	})
}

func TestConvertDataTypeDefinition(t *testing.T) {
	s := plantSpace(t)
	m := NewManager()
	m.EnsureFactory(2)
	def := structure(&ua.StructureField{Name: "points", DataType: pointID, ValueRank: 1})

	schema, err := ConvertDataTypeDefinition(context.Background(), s, polygonID, "Polygon", def, m)
	require.NoError(t, err)
	assert.Equal(t, "Point", schema.Fields[0].FieldType)
	assert.Equal(t, "ns=2;i=5011", schema.EncodingDefaultBinary.NodeID.String())

	f, err := m.Factory(2)
	require.NoError(t, err)
	assert.True(t, f.HasStructuredType("Point"), "dependencies are registered")
	assert.False(t, f.HasStructuredType("Polygon"), "the converted type is not")

	_, err = ConvertDataTypeDefinition(context.Background(), s, polygonID, "Polygon", nil, m)
	assert.ErrorIs(t, err, ErrUnsupportedDefinition)
}
