package grove

import (
	"fmt"
	"io"

	"github.com/Neumenon/grove/chunk"
)

// Deserializer: chunked binary container + SchemaProvider -> WeakDom.
//
// The pass is linear: INST chunks populate the compact-id translation
// table, PROP chunks fill schema-checked property columns through it,
// PRNT supplies the tree edges, END terminates. Decoding fails fast; a
// partial dom is never returned.

// ByteLedger maps an instance's compact binary id to the number of
// stream bytes its declaration and property columns occupied. Instance
// byte sizes are diagnostics; see Instance.ByteSize.
type ByteLedger map[int32]int

// DecodeResult is everything one deserialization pass produced.
type DecodeResult struct {
	Dom       *WeakDom
	ByteSizes ByteLedger
	// Metadata holds the stream's META entries, nil when there were none.
	Metadata map[string]string
}

// ============================================================
// Options
// ============================================================

// DeserializeOptions configures a deserialization pass.
type DeserializeOptions struct {
	// MaxChunkBody bounds a single chunk's declared body size.
	// Defaults to chunk.DefaultMaxBody.
	MaxChunkBody int
	// VerifyCRC enables chunk checksum verification. On by default.
	VerifyCRC bool
}

// DefaultDeserializeOptions returns the options Deserialize uses.
func DefaultDeserializeOptions() DeserializeOptions {
	return DeserializeOptions{MaxChunkBody: chunk.DefaultMaxBody, VerifyCRC: true}
}

// DeserializeOption mutates DeserializeOptions.
type DeserializeOption func(*DeserializeOptions)

// WithMaxChunkBody bounds a single chunk's declared body size.
func WithMaxChunkBody(n int) DeserializeOption {
	return func(o *DeserializeOptions) {
		o.MaxChunkBody = n
	}
}

// WithoutCRCCheck skips chunk checksum verification, trading corruption
// detection for speed on trusted inputs.
func WithoutCRCCheck() DeserializeOption {
	return func(o *DeserializeOptions) {
		o.VerifyCRC = false
	}
}

// ============================================================
// Entry points
// ============================================================

// Deserialize reads a container from r with default options.
func Deserialize(r io.Reader, schema SchemaProvider) (*DecodeResult, error) {
	return DeserializeWith(r, schema)
}

// DeserializeWith reads a container from r.
func DeserializeWith(r io.Reader, schema SchemaProvider, opts ...DeserializeOption) (*DecodeResult, error) {
	options := DefaultDeserializeOptions()
	for _, opt := range opts {
		opt(&options)
	}

	readerOpts := []chunk.ReaderOption{chunk.WithMaxBody(options.MaxChunkBody)}
	if !options.VerifyCRC {
		readerOpts = append(readerOpts, chunk.WithoutCRCVerification())
	}
	cr := chunk.NewReader(r, readerOpts...)

	header, err := cr.ReadHeader()
	if err != nil {
		return nil, ioErr("read header", err)
	}

	d := &decoder{
		schema:  schema,
		refs:    make(map[int32]Ref, header.InstanceCount),
		insts:   make(map[int32]*decInstance, header.InstanceCount),
		classes: make(map[uint32]*decClass, header.ClassCount),
		ledger:  make(ByteLedger, header.InstanceCount),
	}

	for {
		c, err := cr.Next()
		if err == io.EOF {
			// The stream ended without an END chunk.
			return nil, ioErr("read chunk", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, ioErr("read chunk", err)
		}
		if c.Kind == chunk.KindEnd {
			break
		}
		if err := d.decodeChunk(c); err != nil {
			return nil, err
		}
	}

	dom, err := d.wire()
	if err != nil {
		return nil, err
	}
	return &DecodeResult{Dom: dom, ByteSizes: d.ledger, Metadata: d.meta}, nil
}

// ============================================================
// Decoder state
// ============================================================

// decInstance is one declared instance awaiting tree wiring.
type decInstance struct {
	builder   *InstanceBuilder
	children  []int32
	hasParent bool
}

// decClass is one declared class: its name and member ids in column
// order.
type decClass struct {
	name string
	ids  []int32
}

type decoder struct {
	schema SchemaProvider

	refs    map[int32]Ref
	insts   map[int32]*decInstance
	classes map[uint32]*decClass
	ledger  ByteLedger
	meta    map[string]string
	rootID  int32
	hasRoot bool
}

func (d *decoder) decodeChunk(c *chunk.Chunk) error {
	switch c.Kind {
	case chunk.KindMeta:
		return d.decodeMeta(c)
	case chunk.KindInstance:
		return d.decodeInst(c)
	case chunk.KindProperty:
		return d.decodeProp(c)
	case chunk.KindParent:
		return d.decodeParent(c)
	default:
		// Unknown kinds are skipped so old readers survive additions.
		return nil
	}
}

// addShare charges each covered instance an equal slice of the chunk's
// wire footprint.
func (d *decoder) addShare(c *chunk.Chunk, ids []int32) {
	if len(ids) == 0 {
		return
	}
	share := c.WireSize / len(ids)
	for _, id := range ids {
		d.ledger[id] += share
	}
}

// bodyDone errors unless the reader consumed the whole body.
func bodyDone(c *chunk.Chunk, r *colReader) error {
	if n := r.remaining(); n != 0 {
		return ioErr(fmt.Sprintf("decode %s chunk", c.Kind), fmt.Errorf("%d trailing bytes", n))
	}
	return nil
}

// ============================================================
// Chunk decoders
// ============================================================

func (d *decoder) decodeMeta(c *chunk.Chunk) error {
	r := newColReader(c.Body)
	count, err := r.readU32()
	if err != nil {
		return ioErr("decode META chunk", err)
	}
	if d.meta == nil {
		d.meta = make(map[string]string, count)
	}
	for i := uint32(0); i < count; i++ {
		key, err := r.readString()
		if err != nil {
			return ioErr("decode META chunk", err)
		}
		value, err := r.readString()
		if err != nil {
			return ioErr("decode META chunk", err)
		}
		d.meta[key] = value
	}
	return bodyDone(c, r)
}

func (d *decoder) decodeInst(c *chunk.Chunk) error {
	r := newColReader(c.Body)
	classID, err := r.readU32()
	if err != nil {
		return ioErr("decode INST chunk", err)
	}
	className, err := r.readString()
	if err != nil {
		return ioErr("decode INST chunk", err)
	}
	count, err := r.readU32()
	if err != nil {
		return ioErr("decode INST chunk", err)
	}
	ids, err := readIDColumn(r, int(count))
	if err != nil {
		return ioErr("decode INST chunk", err)
	}
	if err := bodyDone(c, r); err != nil {
		return err
	}

	if _, dup := d.classes[classID]; dup {
		return ioErr("decode INST chunk", fmt.Errorf("class id %d declared twice", classID))
	}
	className = Intern(className)
	d.classes[classID] = &decClass{name: className, ids: ids}

	for _, id := range ids {
		if id < 0 {
			return ioErr("decode INST chunk", fmt.Errorf("negative instance id %d", id))
		}
		if _, dup := d.refs[id]; dup {
			return ioErr("decode INST chunk", fmt.Errorf("instance id %d declared twice", id))
		}
		b := NewInstanceBuilder(className).WithBinaryID(id)
		d.refs[id] = b.Referent()
		d.insts[id] = &decInstance{builder: b}
	}
	d.addShare(c, ids)
	return nil
}

func (d *decoder) decodeProp(c *chunk.Chunk) error {
	r := newColReader(c.Body)
	classID, err := r.readU32()
	if err != nil {
		return ioErr("decode PROP chunk", err)
	}
	propName, err := r.readString()
	if err != nil {
		return ioErr("decode PROP chunk", err)
	}
	typeByte, err := r.readU8()
	if err != nil {
		return ioErr("decode PROP chunk", err)
	}

	cls := d.classes[classID]
	if cls == nil {
		return ioErr("decode PROP chunk", fmt.Errorf("undeclared class id %d", classID))
	}
	propName = Intern(propName)
	wireType := Type(typeByte)
	count := len(cls.ids)

	// "Name" is the intrinsic display-name column; it bypasses the
	// schema but must be a String column.
	if propName == "Name" {
		if wireType != TypeString {
			return &PropTypeMismatchError{
				Instance: cls.name,
				Class:    cls.name,
				Prop:     propName,
				Valid:    TypeString.String(),
				Actual:   wireType.String(),
			}
		}
		names, err := readStringColumn(r, count)
		if err != nil {
			return ioErr("decode PROP chunk", err)
		}
		if err := bodyDone(c, r); err != nil {
			return err
		}
		for i, id := range cls.ids {
			d.insts[id].builder.SetName(names[i])
		}
		d.addShare(c, cls.ids)
		return nil
	}

	expected, ok := d.schema.Lookup(cls.name, propName)
	if !ok || expected == TypeInvalid {
		return &UnsupportedPropTypeError{
			Class:    cls.name,
			Prop:     propName,
			PropType: wireType.String(),
		}
	}
	if expected != wireType {
		return &PropTypeMismatchError{
			Instance: d.columnInstanceName(cls),
			Class:    cls.name,
			Prop:     propName,
			Valid:    expected.String(),
			Actual:   wireType.String(),
		}
	}

	values, err := d.readColumn(r, wireType, count)
	if err != nil {
		return err
	}
	if err := bodyDone(c, r); err != nil {
		return err
	}
	for i, id := range cls.ids {
		d.insts[id].builder.AddProperty(propName, values[i])
	}
	d.addShare(c, cls.ids)
	return nil
}

// columnInstanceName names a column-level failure after the first
// covered instance, falling back to the class name for empty columns.
// Diagnostics only; the full tree path is not known until PRNT.
func (d *decoder) columnInstanceName(cls *decClass) string {
	if len(cls.ids) > 0 {
		return d.insts[cls.ids[0]].builder.name
	}
	return cls.name
}

// readColumn decodes one value per instance for the given wire type.
func (d *decoder) readColumn(r *colReader, wireType Type, count int) ([]Variant, error) {
	values := make([]Variant, count)
	switch wireType {
	case TypeString:
		strs, err := readStringColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, s := range strs {
			values[i] = NewString(s)
		}

	case TypeBool:
		bools, err := readBoolColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, b := range bools {
			values[i] = NewBool(b)
		}

	case TypeInt32:
		ints, err := readInt32Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range ints {
			values[i] = NewInt32(v)
		}

	case TypeInt64:
		ints, err := readInt64Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range ints {
			values[i] = NewInt64(v)
		}

	case TypeFloat32:
		floats, err := readFloat32Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range floats {
			values[i] = NewFloat32(v)
		}

	case TypeFloat64:
		floats, err := readFloat64Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range floats {
			values[i] = NewFloat64(v)
		}

	case TypeBytes:
		blobs, err := readBytesColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, b := range blobs {
			values[i] = NewBytes(b)
		}

	case TypeVector2:
		vecs, err := readVector2Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range vecs {
			values[i] = NewVector2(v.X, v.Y)
		}

	case TypeVector3:
		vecs, err := readVector3Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range vecs {
			values[i] = NewVector3(v.X, v.Y, v.Z)
		}

	case TypeColor3:
		colors, err := readColor3Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range colors {
			values[i] = NewColor3(v.R, v.G, v.B)
		}

	case TypeColor3uint8:
		colors, err := readColor3uint8Column(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range colors {
			values[i] = NewColor3uint8(v.R, v.G, v.B)
		}

	case TypeCFrame:
		frames, err := readCFrameColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range frames {
			values[i] = NewCFrame(v)
		}

	case TypeEnum:
		enumType, err := r.readString()
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		items, err := readEnumColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, v := range items {
			values[i] = NewEnum(enumType, v)
		}

	case TypeReference:
		ids, err := readIDColumn(r, count)
		if err != nil {
			return nil, ioErr("decode PROP chunk", err)
		}
		for i, id := range ids {
			if id == -1 {
				values[i] = NewReference(NilRef)
				continue
			}
			ref, ok := d.refs[id]
			if !ok {
				return nil, invalidIDErr(id)
			}
			values[i] = NewReference(ref)
		}

	default:
		return nil, ioErr("decode PROP chunk", fmt.Errorf("unknown type id 0x%02x", uint8(wireType)))
	}
	return values, nil
}

func (d *decoder) decodeParent(c *chunk.Chunk) error {
	r := newColReader(c.Body)
	version, err := r.readU8()
	if err != nil {
		return ioErr("decode PRNT chunk", err)
	}
	if version != 0 {
		return ioErr("decode PRNT chunk", fmt.Errorf("unknown version %d", version))
	}
	count, err := r.readU32()
	if err != nil {
		return ioErr("decode PRNT chunk", err)
	}
	children, err := readIDColumn(r, int(count))
	if err != nil {
		return ioErr("decode PRNT chunk", err)
	}
	parents, err := readIDColumn(r, int(count))
	if err != nil {
		return ioErr("decode PRNT chunk", err)
	}
	if err := bodyDone(c, r); err != nil {
		return err
	}

	for i, childID := range children {
		child := d.insts[childID]
		if child == nil {
			return invalidIDErr(childID)
		}
		if child.hasParent {
			return ioErr("decode PRNT chunk", fmt.Errorf("instance id %d has two parent edges", childID))
		}
		parentID := parents[i]
		child.hasParent = true

		if parentID == -1 {
			if d.hasRoot {
				return ioErr("decode PRNT chunk", fmt.Errorf("instance ids %d and %d both claim the root", d.rootID, childID))
			}
			d.rootID = childID
			d.hasRoot = true
			continue
		}
		parent := d.insts[parentID]
		if parent == nil {
			return invalidIDErr(parentID)
		}
		// Entry order is child order.
		parent.children = append(parent.children, childID)
	}
	return nil
}

// ============================================================
// Tree wiring
// ============================================================

// wire assembles the decoded instances into a WeakDom. Every instance
// must carry exactly one parent edge and be reachable from the single
// root; anything else is format corruption.
func (d *decoder) wire() (*WeakDom, error) {
	if len(d.insts) == 0 {
		return NewEmptyWeakDom(), nil
	}
	if !d.hasRoot {
		return nil, ioErr("wire tree", fmt.Errorf("no root instance"))
	}
	for id, inst := range d.insts {
		if !inst.hasParent {
			return nil, ioErr("wire tree", fmt.Errorf("instance id %d has no parent edge", id))
		}
	}

	visited := make(map[int32]bool, len(d.insts))
	root, err := d.buildTree(d.rootID, visited)
	if err != nil {
		return nil, err
	}
	if len(visited) != len(d.insts) {
		return nil, ioErr("wire tree", fmt.Errorf("%d instances unreachable from the root", len(d.insts)-len(visited)))
	}
	return NewWeakDom(root), nil
}

func (d *decoder) buildTree(id int32, visited map[int32]bool) (*InstanceBuilder, error) {
	if visited[id] {
		return nil, ioErr("wire tree", fmt.Errorf("instance id %d reached twice", id))
	}
	visited[id] = true

	inst := d.insts[id]
	for _, childID := range inst.children {
		child, err := d.buildTree(childID, visited)
		if err != nil {
			return nil, err
		}
		inst.builder.AddChild(child)
	}
	return inst.builder, nil
}
