package grove

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/grove/chunk"
)

// ============================================================
// Stream crafting helpers
// ============================================================

type rawChunk struct {
	kind chunk.Kind
	body []byte
}

// rawStream assembles a container from hand-built chunk bodies, stored
// verbatim so corruption offsets stay predictable.
func rawStream(t *testing.T, chunks ...rawChunk) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, chunk.WithCodec(chunk.None))
	require.NoError(t, cw.WriteHeader(chunk.Header{}))
	for _, c := range chunks {
		require.NoError(t, cw.WriteChunk(c.kind, c.body))
	}
	return buf.Bytes()
}

func rawInstBody(classID uint32, className string, ids []int32) []byte {
	w := &colWriter{}
	w.writeU32(classID)
	w.writeString(className)
	w.writeU32(uint32(len(ids)))
	writeIDColumn(w, ids)
	return w.bytes()
}

// rawPropStart frames a PROP body up to the column payload; the caller
// appends the column and takes bytes().
func rawPropStart(classID uint32, name string, typ Type) *colWriter {
	w := &colWriter{}
	w.writeU32(classID)
	w.writeString(name)
	w.writeU8(uint8(typ))
	return w
}

func rawPrntBody(children, parents []int32) []byte {
	w := &colWriter{}
	w.writeU8(0)
	w.writeU32(uint32(len(children)))
	writeIDColumn(w, children)
	writeIDColumn(w, parents)
	return w.bytes()
}

// singleFolder is a minimal well-formed stream: one Folder instance as
// the root.
func singleFolder(t *testing.T, extra ...rawChunk) []byte {
	t.Helper()
	chunks := []rawChunk{{chunk.KindInstance, rawInstBody(0, "Folder", []int32{0})}}
	chunks = append(chunks, extra...)
	chunks = append(chunks,
		rawChunk{chunk.KindParent, rawPrntBody([]int32{0}, []int32{-1})},
		rawChunk{chunk.KindEnd, nil},
	)
	return rawStream(t, chunks...)
}

// ============================================================
// Stream-level failures
// ============================================================

func TestDeserialize_BadMagic(t *testing.T) {
	junk := []byte("definitely not a container, but long enough to read")
	_, err := Deserialize(bytes.NewReader(junk), MapSchema{})

	var ioe *IoError
	require.ErrorAs(t, err, &ioe)
	assert.ErrorIs(t, err, chunk.ErrBadMagic)
}

func TestDeserialize_MissingEnd(t *testing.T) {
	stream := singleFolder(t)
	// Drop the END chunk, which is the trailing bare frame.
	stream = stream[:len(stream)-20]

	_, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDeserialize_TruncatedMidChunk(t *testing.T) {
	stream := singleFolder(t)
	// Cut off the END chunk and part of the PRNT body.
	_, err := Deserialize(bytes.NewReader(stream[:len(stream)-27]), MapSchema{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDeserialize_CRCCorruption(t *testing.T) {
	stream := singleFolder(t)
	stream[24+20] ^= 0xFF // first body byte of the INST chunk

	_, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	var cerr *chunk.CRCError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, chunk.KindInstance, cerr.Kind)

	// The same stream decodes when verification is off; the corrupted
	// class id is nonsense but structurally harmless here.
	_, err = DeserializeWith(bytes.NewReader(stream), MapSchema{}, WithoutCRCCheck())
	require.NoError(t, err)
}

func TestDeserialize_MaxChunkBody(t *testing.T) {
	stream := singleFolder(t)
	_, err := DeserializeWith(bytes.NewReader(stream), MapSchema{}, WithMaxChunkBody(8))

	var berr *chunk.BodyTooLargeError
	require.ErrorAs(t, err, &berr)
}

func TestDeserialize_UnknownChunkKindSkipped(t *testing.T) {
	extra := rawChunk{chunk.Kind{'X', 'T', 'R', 'A'}, []byte("future data")}
	stream := singleFolder(t, extra)

	result, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dom.Len())
	assert.Equal(t, "Folder", result.Dom.Root().Class)
}

// ============================================================
// INST failures
// ============================================================

func TestDeserialize_InstErrors(t *testing.T) {
	cases := []struct {
		name string
		inst []rawChunk
		want string
	}{
		{
			name: "duplicate class id",
			inst: []rawChunk{
				{chunk.KindInstance, rawInstBody(0, "Folder", []int32{0})},
				{chunk.KindInstance, rawInstBody(0, "Part", []int32{1})},
			},
			want: "class id 0 declared twice",
		},
		{
			name: "duplicate instance id",
			inst: []rawChunk{
				{chunk.KindInstance, rawInstBody(0, "Folder", []int32{0})},
				{chunk.KindInstance, rawInstBody(1, "Part", []int32{0})},
			},
			want: "instance id 0 declared twice",
		},
		{
			name: "negative instance id",
			inst: []rawChunk{
				{chunk.KindInstance, rawInstBody(0, "Folder", []int32{-2})},
			},
			want: "negative instance id",
		},
		{
			name: "trailing body bytes",
			inst: []rawChunk{
				{chunk.KindInstance, append(rawInstBody(0, "Folder", []int32{0}), 1, 2, 3)},
			},
			want: "3 trailing bytes",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stream := rawStream(t, append(tc.inst, rawChunk{chunk.KindEnd, nil})...)
			_, err := Deserialize(bytes.NewReader(stream), MapSchema{})

			var ioe *IoError
			require.ErrorAs(t, err, &ioe)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

// ============================================================
// PROP failures
// ============================================================

func TestDeserialize_PropForUndeclaredClass(t *testing.T) {
	prop := rawPropStart(9, "Size", TypeVector3)
	writeVector3Column(prop, []Vector3{{1, 2, 3}})
	stream := rawStream(t,
		rawChunk{chunk.KindProperty, prop.bytes()},
		rawChunk{chunk.KindEnd, nil},
	)

	_, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	var ioe *IoError
	require.ErrorAs(t, err, &ioe)
	assert.ErrorContains(t, err, "undeclared class id 9")
}

func TestDeserialize_PropTypeMismatch(t *testing.T) {
	prop := rawPropStart(0, "Size", TypeInt32)
	writeInt32Column(prop, []int32{7})
	stream := singleFolder(t, rawChunk{chunk.KindProperty, prop.bytes()})

	schema := MapSchema{}.Add("Folder", "Size", TypeVector3)
	_, err := Deserialize(bytes.NewReader(stream), schema)

	var merr *PropTypeMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "Folder", merr.Class)
	assert.Equal(t, "Size", merr.Prop)
	assert.Equal(t, "Vector3", merr.Valid)
	assert.Equal(t, "Int32", merr.Actual)
}

func TestDeserialize_UnknownProp(t *testing.T) {
	prop := rawPropStart(0, "Mystery", TypeFloat32)
	writeFloat32Column(prop, []float32{1})
	stream := singleFolder(t, rawChunk{chunk.KindProperty, prop.bytes()})

	_, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	var uerr *UnsupportedPropTypeError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "Folder", uerr.Class)
	assert.Equal(t, "Mystery", uerr.Prop)
	assert.Equal(t, "Float32", uerr.PropType)
}

func TestDeserialize_NameColumnMustBeString(t *testing.T) {
	prop := rawPropStart(0, "Name", TypeInt32)
	writeInt32Column(prop, []int32{1})
	stream := singleFolder(t, rawChunk{chunk.KindProperty, prop.bytes()})

	_, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	var merr *PropTypeMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "Name", merr.Prop)
	assert.Equal(t, "String", merr.Valid)
}

func TestDeserialize_DanglingReferenceID(t *testing.T) {
	prop := rawPropStart(0, "Link", TypeReference)
	writeIDColumn(prop, []int32{7})
	stream := singleFolder(t, rawChunk{chunk.KindProperty, prop.bytes()})

	schema := MapSchema{}.Add("Folder", "Link", TypeReference)
	_, err := Deserialize(bytes.NewReader(stream), schema)

	var ierr *InvalidInstanceIDError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, int32(7), ierr.BinaryID)
	assert.ErrorContains(t, err, "was not declared before it was referenced")
}

func TestDeserialize_NilReference(t *testing.T) {
	prop := rawPropStart(0, "Link", TypeReference)
	writeIDColumn(prop, []int32{-1})
	stream := singleFolder(t, rawChunk{chunk.KindProperty, prop.bytes()})

	schema := MapSchema{}.Add("Folder", "Link", TypeReference)
	result, err := Deserialize(bytes.NewReader(stream), schema)
	require.NoError(t, err)

	link, ok := result.Dom.Root().Properties["Link"].AsReference()
	require.True(t, ok)
	assert.Equal(t, NilRef, link)
}

// ============================================================
// PRNT and wiring failures
// ============================================================

func TestDeserialize_ParentErrors(t *testing.T) {
	two := []rawChunk{
		{chunk.KindInstance, rawInstBody(0, "Folder", []int32{0})},
		{chunk.KindInstance, rawInstBody(1, "Part", []int32{1})},
	}

	cases := []struct {
		name string
		prnt []byte
		want string
	}{
		{
			name: "unknown version",
			prnt: append([]byte{9}, rawPrntBody([]int32{0, 1}, []int32{-1, 0})[1:]...),
			want: "unknown version 9",
		},
		{
			name: "dangling child id",
			prnt: rawPrntBody([]int32{0, 5}, []int32{-1, 0}),
			want: "id 5 was not declared",
		},
		{
			name: "dangling parent id",
			prnt: rawPrntBody([]int32{0, 1}, []int32{-1, 5}),
			want: "id 5 was not declared",
		},
		{
			name: "duplicate parent edge",
			prnt: rawPrntBody([]int32{0, 1, 1}, []int32{-1, 0, 0}),
			want: "two parent edges",
		},
		{
			name: "two roots",
			prnt: rawPrntBody([]int32{0, 1}, []int32{-1, -1}),
			want: "both claim the root",
		},
		{
			name: "no root",
			prnt: rawPrntBody([]int32{0, 1}, []int32{1, 0}),
			want: "no root instance",
		},
		{
			name: "missing parent edge",
			prnt: rawPrntBody([]int32{0}, []int32{-1}),
			want: "instance id 1 has no parent edge",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := append(append([]rawChunk{}, two...),
				rawChunk{chunk.KindParent, tc.prnt},
				rawChunk{chunk.KindEnd, nil},
			)
			_, err := Deserialize(bytes.NewReader(rawStream(t, chunks...)), MapSchema{})
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestDeserialize_UnreachableCycle(t *testing.T) {
	chunks := []rawChunk{
		{chunk.KindInstance, rawInstBody(0, "Folder", []int32{0})},
		{chunk.KindInstance, rawInstBody(1, "Part", []int32{1, 2})},
		// 1 and 2 parent each other, orphaning them from the root.
		{chunk.KindParent, rawPrntBody([]int32{0, 1, 2}, []int32{-1, 2, 1})},
		{chunk.KindEnd, nil},
	}
	_, err := Deserialize(bytes.NewReader(rawStream(t, chunks...)), MapSchema{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "unreachable")
}

func TestDeserialize_MetaMergesAcrossChunks(t *testing.T) {
	first := &colWriter{}
	first.writeU32(1)
	first.writeString("author")
	first.writeString("someone")
	second := &colWriter{}
	second.writeU32(1)
	second.writeString("tool")
	second.writeString("grove")

	stream := singleFolder(t,
		rawChunk{chunk.KindMeta, first.bytes()},
		rawChunk{chunk.KindMeta, second.bytes()},
	)
	result, err := Deserialize(bytes.NewReader(stream), MapSchema{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"author": "someone", "tool": "grove"}, result.Metadata)
}
