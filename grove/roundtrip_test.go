package grove

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/grove/chunk"
)

// ============================================================
// Tree comparison helpers
// ============================================================

// collectPreOrder returns every referent in the dom in pre-order.
func collectPreOrder(dom *WeakDom) []Ref {
	if dom.Len() == 0 {
		return nil
	}
	var refs []Ref
	it := dom.Descendants(dom.RootRef())
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		refs = append(refs, r)
	}
	return refs
}

// assertSameTree checks that two doms hold structurally equal trees:
// same shape, same names and classes, and bit-exact property values.
// Referents differ between doms, so reference properties are compared
// through the positional correspondence of the two pre-order walks.
func assertSameTree(t *testing.T, want, got *WeakDom) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len(), "instance count")
	if want.Len() == 0 {
		return
	}

	wantRefs := collectPreOrder(want)
	gotRefs := collectPreOrder(got)
	require.Len(t, gotRefs, len(wantRefs))

	correspond := make(map[Ref]Ref, len(wantRefs))
	for i, wr := range wantRefs {
		correspond[wr] = gotRefs[i]
	}

	for i, wr := range wantRefs {
		wi := want.Get(wr)
		gi := got.Get(gotRefs[i])
		require.NotNil(t, gi)

		where := want.FullName(wr)
		assert.Equal(t, wi.Name, gi.Name, "%s: name", where)
		assert.Equal(t, wi.Class, gi.Class, "%s: class", where)
		require.Len(t, gi.Children(), len(wi.Children()), "%s: child count", where)

		require.Len(t, gi.Properties, len(wi.Properties), "%s: property count", where)
		names := make([]string, 0, len(wi.Properties))
		for name := range wi.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			wv := wi.Properties[name]
			gv, ok := gi.Properties[name]
			require.True(t, ok, "%s.%s: missing", where, name)

			if target, isRef := wv.AsReference(); isRef {
				gotTarget, ok := gv.AsReference()
				require.True(t, ok, "%s.%s: not a reference", where, name)
				if target == NilRef {
					assert.Equal(t, NilRef, gotTarget, "%s.%s", where, name)
				} else {
					mapped, inTree := correspond[target]
					require.True(t, inTree, "%s.%s: reference leaves the tree", where, name)
					assert.Equal(t, mapped, gotTarget, "%s.%s", where, name)
				}
				continue
			}
			assert.True(t, wv.Equal(gv), "%s.%s: %s != %s", where, name, wv, gv)
		}
	}
}

// roundTrip serializes the dom and decodes it back.
func roundTrip(t *testing.T, dom *WeakDom, schema SchemaProvider, opts ...SerializeOption) *DecodeResult {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, SerializeWith(&buf, dom, schema, opts...))
	result, err := Deserialize(&buf, schema)
	require.NoError(t, err)
	return result
}

// ============================================================
// Round trips
// ============================================================

func TestRoundTrip_Basic(t *testing.T) {
	root := NewInstanceBuilder("DataModel").
		WithName("Root").
		WithChildren(
			NewInstanceBuilder("Workspace").
				WithName("Workspace").
				WithProperty("FilteringEnabled", NewBool(true)),
			NewInstanceBuilder("Lighting").
				WithName("Lighting").
				WithProperty("Ambient", NewColor3(1, 0, 0)),
		)
	dom := NewWeakDom(root)
	schema := MapSchema{}.
		Add("Workspace", "FilteringEnabled", TypeBool).
		Add("Lighting", "Ambient", TypeColor3)

	result := roundTrip(t, dom, schema)
	assertSameTree(t, dom, result.Dom)
	assert.Nil(t, result.Metadata)
}

func TestRoundTrip_AllTypes(t *testing.T) {
	pose := CFrame{
		Position: Vector3{X: 10, Y: -4, Z: 0.125},
		Rotation: [9]float32{0.36, 0.48, -0.8, -0.8, 0.6, 0, 0.48, 0.64, 0.6},
	}
	rest := IdentityCFrame()
	rest.Position = Vector3{X: 0, Y: 5, Z: 0}

	first := NewInstanceBuilder("Thing").
		WithName("First").
		WithProperty("Label", NewString("héllo ✓ wörld")).
		WithProperty("Active", NewBool(true)).
		WithProperty("Count", NewInt32(-123456)).
		WithProperty("Total", NewInt64(math.MinInt64)).
		WithProperty("Ratio", NewFloat32(float32(math.NaN()))).
		WithProperty("Precise", NewFloat64(math.Copysign(0, -1))).
		WithProperty("Blob", NewBytes([]byte{0xFF, 0xFE, 0x00, 0x01})).
		WithProperty("Anchor", NewVector2(1.5, -2.5)).
		WithProperty("Size", NewVector3(4, 2, 1)).
		WithProperty("Tint", NewColor3(0.1, 0.2, 0.3)).
		WithProperty("Paint", NewColor3uint8(255, 128, 0)).
		WithProperty("Pose", NewCFrame(pose)).
		WithProperty("Material", NewEnum("Material", 256)).
		WithProperty("Link", NewReference(NilRef))

	second := NewInstanceBuilder("Thing").
		WithName("Second").
		WithProperty("Label", NewString("plain")).
		WithProperty("Active", NewBool(false)).
		WithProperty("Count", NewInt32(math.MaxInt32)).
		WithProperty("Total", NewInt64(42)).
		WithProperty("Ratio", NewFloat32(float32(math.Copysign(0, -1)))).
		WithProperty("Precise", NewFloat64(math.NaN())).
		WithProperty("Blob", NewBytes(nil)).
		WithProperty("Anchor", NewVector2(0, 0)).
		WithProperty("Size", NewVector3(-1, -2, -3)).
		WithProperty("Tint", NewColor3(1, 1, 1)).
		WithProperty("Paint", NewColor3uint8(0, 0, 0)).
		WithProperty("Pose", NewCFrame(rest)).
		WithProperty("Material", NewEnum("Material", 0)).
		WithProperty("Link", NewReference(first.Referent()))

	dom := NewWeakDom(NewInstanceBuilder("Folder").
		WithName("Everything").
		WithChildren(first, second))

	schema := MapSchema{}.
		Add("Thing", "Label", TypeString).
		Add("Thing", "Active", TypeBool).
		Add("Thing", "Count", TypeInt32).
		Add("Thing", "Total", TypeInt64).
		Add("Thing", "Ratio", TypeFloat32).
		Add("Thing", "Precise", TypeFloat64).
		Add("Thing", "Blob", TypeBytes).
		Add("Thing", "Anchor", TypeVector2).
		Add("Thing", "Size", TypeVector3).
		Add("Thing", "Tint", TypeColor3).
		Add("Thing", "Paint", TypeColor3uint8).
		Add("Thing", "Pose", TypeCFrame).
		Add("Thing", "Material", TypeEnum).
		Add("Thing", "Link", TypeReference)

	result := roundTrip(t, dom, schema)
	assertSameTree(t, dom, result.Dom)
}

func TestRoundTrip_Codecs(t *testing.T) {
	dom, schema := makePartsDom(40)

	for _, tc := range []struct {
		name  string
		codec chunk.Codec
	}{
		{"none", chunk.None},
		{"snappy", chunk.Snappy},
		{"zstd", chunk.Zstd},
	} {
		t.Run(tc.name, func(t *testing.T) {
			result := roundTrip(t, dom, schema, WithCodec(tc.codec))
			assertSameTree(t, dom, result.Dom)
		})
	}
}

func TestRoundTrip_Metadata(t *testing.T) {
	dom := NewWeakDom(NewInstanceBuilder("Folder"))
	meta := map[string]string{
		"generator": "grove 0.1.0",
		"comment":   "round trip fixture",
	}

	result := roundTrip(t, dom, MapSchema{}, WithMetadata(meta))
	assert.Equal(t, meta, result.Metadata)
}

func TestRoundTrip_EmptyDom(t *testing.T) {
	result := roundTrip(t, NewEmptyWeakDom(), MapSchema{})
	require.NotNil(t, result.Dom)
	assert.Zero(t, result.Dom.Len())
	assert.Equal(t, NilRef, result.Dom.RootRef())
}

func TestRoundTrip_MissingPropertyDefaults(t *testing.T) {
	full := NewInstanceBuilder("Part").
		WithName("Full").
		WithProperty("Transparency", NewFloat32(0.5)).
		WithProperty("Paint", NewColor3uint8(10, 20, 30))
	bare := NewInstanceBuilder("Part").WithName("Bare")

	dom := NewWeakDom(NewInstanceBuilder("Folder").WithChildren(full, bare))
	schema := MapSchema{}.
		Add("Part", "Transparency", TypeFloat32).
		Add("Part", "Paint", TypeColor3uint8)

	result := roundTrip(t, dom, schema)
	refs := collectPreOrder(result.Dom)
	require.Len(t, refs, 3)

	decoded := result.Dom.Get(refs[2])
	require.Equal(t, "Bare", decoded.Name)
	assert.True(t, decoded.Properties["Transparency"].Equal(NewFloat32(0)),
		"absent rows decode to the column type's zero value")
	assert.True(t, decoded.Properties["Paint"].Equal(NewColor3uint8(0, 0, 0)))
}

func TestRoundTrip_ByteLedger(t *testing.T) {
	dom, schema := makePartsDom(10)

	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, dom, schema))
	streamLen := buf.Len()

	result, err := Deserialize(&buf, schema)
	require.NoError(t, err)

	total := 0
	for _, r := range collectPreOrder(result.Dom) {
		inst := result.Dom.Get(r)
		id, ok := inst.BinaryID()
		require.True(t, ok, "decoded instances carry their compact id")
		size := inst.ByteSize(result.ByteSizes)
		assert.Positive(t, size, "id %d", id)
		total += size
	}
	// Shares are floored per instance and PRNT/META/END chunks are not
	// attributed, so the total stays below the stream size.
	assert.LessOrEqual(t, total, streamLen)
}

// makePartsDom builds a dom with enough repetitive property data to give
// the codecs something to chew on.
func makePartsDom(n int) (*WeakDom, MapSchema) {
	root := NewInstanceBuilder("Folder").WithName("Parts")
	prev := root
	for i := 0; i < n; i++ {
		part := NewInstanceBuilder("Part").
			WithName(fmt.Sprintf("Part%03d", i)).
			WithProperty("Anchored", NewBool(i%2 == 0)).
			WithProperty("Size", NewVector3(float32(i), 4, 2)).
			WithProperty("Source", NewString("local part = workspace.Part\npart.Anchored = true\n")).
			WithProperty("Next", NewReference(prev.Referent()))
		root.AddChild(part)
		prev = part
	}
	schema := MapSchema{}.
		Add("Part", "Anchored", TypeBool).
		Add("Part", "Size", TypeVector3).
		Add("Part", "Source", TypeString).
		Add("Part", "Next", TypeReference)
	return NewWeakDom(root), schema
}
