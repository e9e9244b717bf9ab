package discovery

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/uadiscover/internal/depsort"
)

func newDefinition(name string, typeID *ua.NodeID, base *ua.NodeID, fieldTypes ...*ua.NodeID) Definition {
	sd := &ua.StructureDefinition{BaseDataType: base}
	for i, ft := range fieldTypes {
		sd.Fields = append(sd.Fields, scalar(fmt.Sprintf("f%d", i), ft))
	}
	return Definition{Name: name, DataTypeNodeID: typeID, Definition: sd}
}

func definitionNames(defs []Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

// assertDependencyOrder checks that every same-batch dependency of a
// definition comes strictly before it
func assertDependencyOrder(t *testing.T, sorted []Definition) {
	t.Helper()
	position := make(map[string]int, len(sorted))
	for i, d := range sorted {
		position[d.DataTypeNodeID.String()] = i
	}
	for i, d := range sorted {
		for _, dep := range definitionDeps(d) {
			if j, inBatch := position[dep]; inBatch && dep != d.DataTypeNodeID.String() {
				assert.Less(t, j, i, "%s must come after its dependency %s", d.Name, sorted[j].Name)
			}
		}
	}
}

func TestSortDefinitions(t *testing.T) {
	a, b, c, d := nid(2, 1), nid(2, 2), nid(2, 3), nid(2, 4)
	structureID := ns0(id.Structure)

	t.Run("field dependency", func(t *testing.T) {
		sorted, err := SortDefinitions([]Definition{
			newDefinition("B", b, structureID, a),
			newDefinition("A", a, structureID, ns0(id.Double)),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, definitionNames(sorted))
	})

	t.Run("base type dependency", func(t *testing.T) {
		sorted, err := SortDefinitions([]Definition{
			newDefinition("Derived", b, a),
			newDefinition("Base", a, structureID),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Base", "Derived"}, definitionNames(sorted))
	})

	t.Run("external dependencies are ignored", func(t *testing.T) {
		sorted, err := SortDefinitions([]Definition{
			newDefinition("A", a, nid(3, 1), nid(3, 2)),
			newDefinition("B", b, structureID),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, definitionNames(sorted))
	})

	t.Run("diamond", func(t *testing.T) {
		sorted, err := SortDefinitions([]Definition{
			newDefinition("D", d, structureID, b, c),
			newDefinition("C", c, structureID, a),
			newDefinition("B", b, structureID, a),
			newDefinition("A", a, structureID),
		})
		require.NoError(t, err)
		assert.Len(t, sorted, 4)
		assertDependencyOrder(t, sorted)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := SortDefinitions([]Definition{
			newDefinition("A", a, structureID, b),
			newDefinition("B", b, structureID, c),
			newDefinition("C", c, structureID, a),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDependencyCycle)
		var cycle depsort.CycleError[string]
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
	})

	t.Run("random acyclic batches", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for round := 0; round < 50; round++ {
			n := 2 + rng.Intn(12)
			defs := make([]Definition, n)
			for i := range defs {
				// only earlier ids can be dependencies, so the batch is acyclic
				var fields []*ua.NodeID
				for j := 0; j < i; j++ {
					if rng.Intn(3) == 0 {
						fields = append(fields, nid(2, uint32(j+1)))
					}
				}
				base := structureID
				if i > 0 && rng.Intn(4) == 0 {
					base = nid(2, uint32(rng.Intn(i)+1))
				}
				defs[i] = newDefinition(fmt.Sprintf("T%d", i), nid(2, uint32(i+1)), base, fields...)
			}
			rng.Shuffle(len(defs), func(i, j int) { defs[i], defs[j] = defs[j], defs[i] })

			sorted, err := SortDefinitions(defs)
			require.NoError(t, err)
			require.Len(t, sorted, n)
			assertDependencyOrder(t, sorted)
		}
	})
}
