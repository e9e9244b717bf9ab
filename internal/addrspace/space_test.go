package addrspace

import (
	"context"
	"strings"
	"testing"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/uadiscover/internal/session"
)

var _ session.Session = (*Space)(nil)

func pointSpace(t *testing.T) *Space {
	t.Helper()
	s := New()
	s.SetNamespaces("urn:test")
	require.NoError(t, s.AddDataType(DataType{
		ID:   ua.NewNumericNodeID(1, 3001),
		Name: "Point",
		Definition: &ua.StructureDefinition{
			BaseDataType: ns0(id.Structure),
			Fields: []*ua.StructureField{
				{Name: "x", DataType: ns0(id.Double), ValueRank: -1},
				{Name: "y", DataType: ns0(id.Double), ValueRank: -1},
			},
		},
		Encodings: map[string]*ua.NodeID{
			DefaultBinary: ua.NewNumericNodeID(1, 5001),
			DefaultXML:    ua.NewNumericNodeID(1, 5002),
		},
	}))
	deprecated := true
	require.NoError(t, s.AddDictionary(Dictionary{
		ID:           ua.NewNumericNodeID(1, 7000),
		Name:         "TestTypes",
		NamespaceURI: "urn:test",
		Deprecated:   &deprecated,
		Descriptions: []Description{
			{ID: ua.NewNumericNodeID(1, 6001), Name: "Point", Encoding: ua.NewNumericNodeID(1, 5001)},
		},
	}))
	return s
}

func refNames(refs []*ua.ReferenceDescription) []string {
	var names []string
	for _, r := range refs {
		names = append(names, r.BrowseName.Name)
	}
	return names
}

func TestSpace_Browse(t *testing.T) {
	s := pointSpace(t)
	ctx := context.Background()
	point := ua.NewNumericNodeID(1, 3001)

	t.Run("forward has encoding", func(t *testing.T) {
		refs, err := session.BrowseOne(ctx, s, session.Forward(point, id.HasEncoding, false, ua.NodeClassObject))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{DefaultBinary, DefaultXML}, refNames(refs))
	})

	t.Run("inverse has subtype", func(t *testing.T) {
		refs, err := session.BrowseOne(ctx, s, session.Inverse(point, id.HasSubtype, false, ua.NodeClassDataType))
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, uint32(id.Structure), refs[0].NodeID.NodeID.IntID())
		assert.False(t, refs[0].IsForward)
	})

	t.Run("node class mask filters targets", func(t *testing.T) {
		refs, err := session.BrowseOne(ctx, s, session.Forward(point, id.HasEncoding, false, ua.NodeClassVariable))
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("subtypes of aggregates", func(t *testing.T) {
		dict := ua.NewNumericNodeID(1, 7000)
		exact, err := session.BrowseOne(ctx, s, session.Forward(dict, id.Aggregates, false))
		require.NoError(t, err)
		assert.Empty(t, exact)

		all, err := session.BrowseOne(ctx, s, session.Forward(dict, id.Aggregates, true))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"NamespaceUri", "Deprecated", "Point"}, refNames(all))
	})

	t.Run("dictionary type definition", func(t *testing.T) {
		refs, err := session.BrowseOne(ctx, s, session.Forward(ns0(OPCBinaryTypeSystem), id.HasComponent, false, ua.NodeClassVariable))
		require.NoError(t, err)
		require.Len(t, refs, 2)
		for _, r := range refs {
			assert.Equal(t, uint32(DataTypeDictionaryType), r.TypeDefinition.NodeID.IntID())
		}
	})

	t.Run("unknown node", func(t *testing.T) {
		results, err := s.Browse(ctx, []*ua.BrowseDescription{session.Forward(ua.NewNumericNodeID(9, 9), id.HasComponent, false)})
		require.NoError(t, err)
		assert.Equal(t, ua.StatusBadNodeIDUnknown, results[0].StatusCode)
	})
}

func TestSpace_Read(t *testing.T) {
	s := pointSpace(t)
	ctx := context.Background()
	point := ua.NewNumericNodeID(1, 3001)

	values, err := session.ReadAll(ctx, s, []*ua.NodeID{point, point, ns0(ServerNamespaceArray)}, ua.AttributeIDDataTypeDefinition)
	require.NoError(t, err)
	require.Len(t, values, 3)

	eo, ok := session.Value(values[0]).(*ua.ExtensionObject)
	require.True(t, ok)
	def, ok := eo.Value.(*ua.StructureDefinition)
	require.True(t, ok)
	assert.Len(t, def.Fields, 2)
	assert.Equal(t, ua.StatusBadAttributeIDInvalid, values[2].Status)

	ns, err := session.ReadOne(ctx, s, ns0(ServerNamespaceArray), ua.AttributeIDValue)
	require.NoError(t, err)
	assert.Equal(t, []string{BaseNamespaceURI, "urn:test"}, ns)

	qn, err := session.ReadBrowseName(ctx, s, point)
	require.NoError(t, err)
	assert.Equal(t, "Point", qn.Name)

	class, err := session.ReadOne(ctx, s, point, ua.AttributeIDNodeClass)
	require.NoError(t, err)
	assert.Equal(t, int32(ua.NodeClassDataType), class)

	_, err = session.ReadOne(ctx, s, point, ua.AttributeIDValue)
	assert.ErrorIs(t, err, session.ErrBadStatus)
}

func TestSpace_TranslateBrowsePaths(t *testing.T) {
	s := pointSpace(t)
	ctx := context.Background()
	dict := ua.NewNumericNodeID(1, 7000)

	prop, err := session.ResolveProperty(ctx, s, dict, "Deprecated")
	require.NoError(t, err)
	require.NotNil(t, prop)
	v, err := session.ReadOne(ctx, s, prop, ua.AttributeIDValue)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	missing, err := session.ResolveProperty(ctx, s, ns0(OpcUaBinarySchema), "Deprecated")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSpace_RemoveForwardReference(t *testing.T) {
	s := pointSpace(t)
	ctx := context.Background()
	point := ua.NewNumericNodeID(1, 3001)
	binary := ua.NewNumericNodeID(1, 5001)

	s.RemoveForwardReference(point, id.HasEncoding, binary)

	fwd, err := session.BrowseOne(ctx, s, session.Forward(point, id.HasEncoding, false))
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultXML}, refNames(fwd))

	inv, err := session.BrowseOne(ctx, s, session.Inverse(binary, id.HasEncoding, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"Point"}, refNames(inv))
}

func TestSpace_Errors(t *testing.T) {
	s := New()
	err := s.AddNode(&Node{ID: ns0(id.Structure), Class: ua.NodeClassDataType, BrowseName: qn0("Structure")})
	assert.ErrorIs(t, err, ErrDuplicateNode)

	err = s.AddReference(ns0(id.Structure), id.HasSubtype, ua.NewNumericNodeID(3, 1))
	assert.ErrorIs(t, err, ErrUnknownNode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Browse(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

const snapshotYAML = `
namespaces:
  - urn:plant
data_types:
  - id: "ns=1;i=3100"
    name: Color
    enum:
      - {name: Red, value: 0}
      - {name: Green, value: 1}
dictionaries:
  - id: "ns=1;i=7000"
    name: PlantTypes
    namespace_uri: urn:plant
    types:
      - id: "ns=1;i=3001"
        name: Point
        binary_encoding: "ns=1;i=5001"
        json_encoding: "ns=1;i=5003"
        structure:
          fields:
            - {name: x, data_type: "i=11"}
            - {name: y, data_type: "i=11"}
      - id: "ns=1;i=3002"
        name: Polygon
        binary_encoding: "ns=1;i=5011"
        description: "ns=1;i=6002"
        structure:
          kind: optional
          fields:
            - {name: points, data_type: "ns=1;i=3001", value_rank: 1}
            - {name: color, data_type: "ns=1;i=3100", optional: true}
`

func TestLoadSnapshot(t *testing.T) {
	s, err := LoadSnapshot(strings.NewReader(snapshotYAML))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, []string{BaseNamespaceURI, "urn:plant"}, s.Namespaces())

	color, ok := s.Node(ua.NewNumericNodeID(1, 3100))
	require.True(t, ok)
	enum, ok := color.Definition.(*ua.EnumDefinition)
	require.True(t, ok)
	assert.Len(t, enum.Fields, 2)

	parent, err := session.BrowseOne(ctx, s, session.Inverse(color.ID, id.HasSubtype, false))
	require.NoError(t, err)
	require.Len(t, parent, 1)
	assert.Equal(t, uint32(id.Enumeration), parent[0].NodeID.NodeID.IntID())

	polygon, ok := s.Node(ua.NewNumericNodeID(1, 3002))
	require.True(t, ok)
	def := polygon.Definition.(*ua.StructureDefinition)
	assert.Equal(t, ua.StructureTypeStructureWithOptionalFields, def.StructureType)
	assert.Equal(t, int32(1), def.Fields[0].ValueRank)
	assert.Equal(t, int32(-1), def.Fields[1].ValueRank)
	assert.True(t, def.Fields[1].IsOptional)

	desc, ok := s.Node(ua.NewNumericNodeID(1, 6002))
	require.True(t, ok)
	assert.Equal(t, "Polygon", desc.BrowseName.Name)

	comps, err := session.BrowseOne(ctx, s, session.Forward(ua.NewNumericNodeID(1, 7000), id.HasComponent, false, ua.NodeClassVariable))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Point", "Polygon"}, refNames(comps))

	v, err := session.ReadOne(ctx, s, ua.NewNumericNodeID(1, 7000), ua.AttributeIDValue)
	require.NoError(t, err)
	assert.Nil(t, v, "a dictionary without schema has no value")
}

func TestLoadSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "namespacez: []\n"},
		{"bad node id", "data_types:\n  - {id: \"bogus\", name: X}\n"},
		{"structure and enum", "data_types:\n  - id: \"ns=1;i=1\"\n    name: X\n    structure: {}\n    enum: [{name: A, value: 0}]\n"},
		{"bad kind", "data_types:\n  - id: \"ns=1;i=1\"\n    name: X\n    structure: {kind: weird}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSnapshot(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}
