package grove

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/grove/chunk"
)

// domWithOffender puts one misbehaving Part under a Folder root.
func domWithOffender(offender *InstanceBuilder) *WeakDom {
	return NewWeakDom(NewInstanceBuilder("Folder").
		WithName("Root").
		WithChild(offender))
}

// ============================================================
// Schema enforcement
// ============================================================

func TestSerialize_PropTypeMismatch(t *testing.T) {
	dom := domWithOffender(NewInstanceBuilder("Part").
		WithName("Offender").
		WithProperty("Size", NewInt32(7)))
	schema := MapSchema{}.Add("Part", "Size", TypeVector3)

	err := Serialize(io.Discard, dom, schema)
	var merr *PropTypeMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "Root/Offender", merr.Instance)
	assert.Equal(t, "Part", merr.Class)
	assert.Equal(t, "Size", merr.Prop)
	assert.Equal(t, "Vector3", merr.Valid)
	assert.Equal(t, "Int32", merr.Actual)
	assert.ErrorContains(t, err, "expected Part.Size to be of type Vector3")
}

func TestSerialize_UnknownProperty(t *testing.T) {
	cases := []struct {
		name   string
		schema MapSchema
	}{
		{"no schema entry", MapSchema{}},
		{"schema declares Invalid", MapSchema{}.Add("Part", "Mystery", TypeInvalid)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dom := domWithOffender(NewInstanceBuilder("Part").
				WithProperty("Mystery", NewFloat32(1)))

			err := Serialize(io.Discard, dom, tc.schema)
			var uerr *UnsupportedPropTypeError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, "Part", uerr.Class)
			assert.Equal(t, "Mystery", uerr.Prop)
			assert.Equal(t, "Float32", uerr.PropType)
		})
	}
}

func TestSerialize_InvalidValues(t *testing.T) {
	t.Run("string with bad utf8", func(t *testing.T) {
		dom := domWithOffender(NewInstanceBuilder("Part").
			WithName("Offender").
			WithProperty("Label", NewString("ok\xff")))
		schema := MapSchema{}.Add("Part", "Label", TypeString)

		err := Serialize(io.Discard, dom, schema)
		var verr *InvalidPropValueError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Root/Offender", verr.Instance)
		assert.Equal(t, "Label", verr.Prop)
		assert.Equal(t, "String", verr.PropType)
	})

	t.Run("name with bad utf8", func(t *testing.T) {
		dom := domWithOffender(NewInstanceBuilder("Part").WithName("bad\xffname"))

		err := Serialize(io.Discard, dom, MapSchema{})
		var verr *InvalidPropValueError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Name", verr.Prop)
	})

	t.Run("mixed enum types in one column", func(t *testing.T) {
		root := NewInstanceBuilder("Folder").WithName("Root").WithChildren(
			NewInstanceBuilder("Part").
				WithName("A").
				WithProperty("Material", NewEnum("Material", 1)),
			NewInstanceBuilder("Part").
				WithName("B").
				WithProperty("Material", NewEnum("Surface", 2)),
		)
		schema := MapSchema{}.Add("Part", "Material", TypeEnum)

		err := Serialize(io.Discard, NewWeakDom(root), schema)
		var verr *InvalidPropValueError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Root/B", verr.Instance)
		assert.Equal(t, "Material", verr.Prop)
	})
}

func TestSerialize_DanglingReference(t *testing.T) {
	ghost := NewRef()
	dom := domWithOffender(NewInstanceBuilder("Part").
		WithProperty("Link", NewReference(ghost)))
	schema := MapSchema{}.Add("Part", "Link", TypeReference)

	err := Serialize(io.Discard, dom, schema)
	var ierr *InvalidInstanceIDError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, ghost, ierr.Referent)
	assert.ErrorContains(t, err, "was not present in the dom")
}

// ============================================================
// Stream shape
// ============================================================

func TestSerialize_Deterministic(t *testing.T) {
	dom, schema := makePartsDom(25)
	meta := WithMetadata(map[string]string{"a": "1", "b": "2", "c": "3"})

	var first, second bytes.Buffer
	require.NoError(t, SerializeWith(&first, dom, schema, meta))
	require.NoError(t, SerializeWith(&second, dom, schema, meta))
	assert.True(t, bytes.Equal(first.Bytes(), second.Bytes()),
		"the same dom must serialize to the same bytes")
}

func TestSerialize_ChunkSequence(t *testing.T) {
	dom, schema := makePartsDom(10)

	var buf bytes.Buffer
	require.NoError(t, SerializeWith(&buf, dom, schema,
		WithMetadata(map[string]string{"tool": "grove"})))

	cr := chunk.NewReader(&buf)
	header, err := cr.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), header.ClassCount, "Folder and Part")
	assert.Equal(t, uint32(11), header.InstanceCount)

	var kinds []string
	for {
		c, err := cr.Next()
		require.NoError(t, err)
		kinds = append(kinds, c.Kind.String())
		if c.Kind == chunk.KindEnd {
			break
		}
	}
	// One PROP per class column: Folder has only Name; Part has Name
	// plus its four declared properties.
	assert.Equal(t, []string{
		"META",
		"INST", "INST",
		"PROP", "PROP", "PROP", "PROP", "PROP", "PROP",
		"PRNT",
		"END",
	}, kinds)
}

func TestSerialize_NameShadowing(t *testing.T) {
	// A literal "Name" property never reaches the stream; the intrinsic
	// name column wins and the schema is not consulted for it.
	dom := NewWeakDom(NewInstanceBuilder("Folder").
		WithName("Actual").
		WithProperty("Name", NewInt32(99)))

	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, dom, MapSchema{}))

	result, err := Deserialize(&buf, MapSchema{})
	require.NoError(t, err)
	root := result.Dom.Root()
	assert.Equal(t, "Actual", root.Name)
	_, hasNameProp := root.Properties["Name"]
	assert.False(t, hasNameProp)
}

func TestSerialize_NilCodec(t *testing.T) {
	dom, schema := makePartsDom(3)

	var buf bytes.Buffer
	require.NoError(t, SerializeWith(&buf, dom, schema, WithCodec(nil)))

	result, err := Deserialize(&buf, schema)
	require.NoError(t, err)
	assertSameTree(t, dom, result.Dom)
}
