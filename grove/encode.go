package grove

import (
	"io"
	"sort"
	"unicode/utf8"

	"github.com/Neumenon/grove/chunk"
)

// Serializer: WeakDom + SchemaProvider -> chunked binary container.
//
// The stream stores compact file-local ids (i32, assigned 0..n-1 in
// pre-order from the root), never process referents. Instances are
// grouped by class so same-typed property values sit in one column per
// chunk and compress well together. Chunk order: META (optional), one
// INST per class, one PROP per class property, PRNT, END.
//
// Serialization fails fast. A failed call makes no promise about what
// was already written; callers must discard the output.

// ============================================================
// Options
// ============================================================

// SerializeOptions configures a serialization pass.
type SerializeOptions struct {
	// Codec compresses chunk bodies. Defaults to chunk.Zstd.
	Codec chunk.Codec
	// Metadata is written as a META chunk when non-empty, keys sorted.
	Metadata map[string]string
}

// DefaultSerializeOptions returns the options Serialize uses.
func DefaultSerializeOptions() SerializeOptions {
	return SerializeOptions{Codec: chunk.Zstd}
}

// SerializeOption mutates SerializeOptions.
type SerializeOption func(*SerializeOptions)

// WithCodec selects the chunk-body compression codec.
func WithCodec(c chunk.Codec) SerializeOption {
	return func(o *SerializeOptions) {
		o.Codec = c
	}
}

// WithMetadata attaches key/value metadata to the stream.
func WithMetadata(meta map[string]string) SerializeOption {
	return func(o *SerializeOptions) {
		o.Metadata = meta
	}
}

// ============================================================
// Entry points
// ============================================================

// Serialize writes the whole dom to w with default options.
func Serialize(w io.Writer, dom *WeakDom, schema SchemaProvider) error {
	return SerializeWith(w, dom, schema)
}

// SerializeWith writes the whole dom to w.
func SerializeWith(w io.Writer, dom *WeakDom, schema SchemaProvider, opts ...SerializeOption) error {
	options := DefaultSerializeOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Codec == nil {
		options.Codec = chunk.None
	}

	enc := &encoder{
		dom:    dom,
		schema: schema,
		ids:    make(map[Ref]int32, dom.Len()),
	}
	if err := enc.plan(); err != nil {
		return err
	}

	cw := chunk.NewWriter(w, chunk.WithCodec(options.Codec))
	header := chunk.Header{
		ClassCount:    uint32(len(enc.classes)),
		InstanceCount: uint32(len(enc.refs)),
	}
	if err := cw.WriteHeader(header); err != nil {
		return ioErr("write header", err)
	}

	if len(options.Metadata) > 0 {
		if err := cw.WriteChunk(chunk.KindMeta, metaBody(options.Metadata)); err != nil {
			return ioErr("write META chunk", err)
		}
	}

	for _, cp := range enc.classes {
		if err := cw.WriteChunk(chunk.KindInstance, enc.instBody(cp)); err != nil {
			return ioErr("write INST chunk", err)
		}
	}
	for _, cp := range enc.classes {
		for _, col := range cp.props {
			body, err := enc.propBody(cp, col)
			if err != nil {
				return err
			}
			if err := cw.WriteChunk(chunk.KindProperty, body); err != nil {
				return ioErr("write PROP chunk", err)
			}
		}
	}
	if err := cw.WriteChunk(chunk.KindParent, enc.parentBody()); err != nil {
		return ioErr("write PRNT chunk", err)
	}
	if err := cw.WriteChunk(chunk.KindEnd, nil); err != nil {
		return ioErr("write END chunk", err)
	}
	return nil
}

// ============================================================
// Planning
// ============================================================

// encoder carries the id assignment and class layout for one pass.
type encoder struct {
	dom    *WeakDom
	schema SchemaProvider

	refs    []Ref         // pre-order; index is the compact id
	ids     map[Ref]int32 // referent -> compact id
	classes []*classPlan  // sorted by class name
}

// classPlan is one class's slice of the stream: its instances in id
// order and the property columns it will emit.
type classPlan struct {
	name  string
	id    uint32
	refs  []Ref
	props []propColumn
}

// propColumn names one PROP chunk: property name plus the column type
// the schema declares for it.
type propColumn struct {
	name string
	typ  Type
}

// plan assigns compact ids in pre-order, groups instances by class, and
// resolves every property column's type against the schema. Value-level
// checks happen later, while each column is built.
func (e *encoder) plan() error {
	it := e.dom.Descendants(e.dom.RootRef())
	for r, ok := it.Next(); ok; r, ok = it.Next() {
		e.ids[r] = int32(len(e.refs))
		e.refs = append(e.refs, r)
	}

	byClass := make(map[string]*classPlan)
	for _, r := range e.refs {
		name := e.dom.Get(r).Class
		cp := byClass[name]
		if cp == nil {
			cp = &classPlan{name: name}
			byClass[name] = cp
			e.classes = append(e.classes, cp)
		}
		cp.refs = append(cp.refs, r)
	}
	sort.Slice(e.classes, func(i, j int) bool {
		return e.classes[i].name < e.classes[j].name
	})
	for i, cp := range e.classes {
		cp.id = uint32(i)
	}

	for _, cp := range e.classes {
		if err := e.planColumns(cp); err != nil {
			return err
		}
	}
	return nil
}

// planColumns computes the union of property names across a class and
// the schema type of each column. Every property needs a schema entry
// with an encodable type; "Name" is intrinsic and always a String
// column taken from Instance.Name, shadowing any property of that name.
func (e *encoder) planColumns(cp *classPlan) error {
	firstSeen := make(map[string]Type)
	var names []string
	for _, r := range cp.refs {
		for name, value := range e.dom.Get(r).Properties {
			if name == "Name" {
				continue
			}
			if _, ok := firstSeen[name]; !ok {
				firstSeen[name] = value.Type()
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	cp.props = append(cp.props, propColumn{name: "Name", typ: TypeString})
	for _, name := range names {
		expected, ok := e.schema.Lookup(cp.name, name)
		if !ok || expected == TypeInvalid {
			return &UnsupportedPropTypeError{
				Class:    cp.name,
				Prop:     name,
				PropType: firstSeen[name].String(),
			}
		}
		cp.props = append(cp.props, propColumn{name: name, typ: expected})
	}
	return nil
}

// ============================================================
// Chunk bodies
// ============================================================

// metaBody lays out key/value pairs with sorted keys so identical
// metadata always produces identical bytes.
func metaBody(meta map[string]string) []byte {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := &colWriter{}
	w.writeU32(uint32(len(keys)))
	for _, k := range keys {
		w.writeString(k)
		w.writeString(meta[k])
	}
	return w.bytes()
}

// instBody declares one class: class id, class name, count, and the
// compact ids of its instances as a delta column.
func (e *encoder) instBody(cp *classPlan) []byte {
	w := &colWriter{}
	w.writeU32(cp.id)
	w.writeString(cp.name)
	w.writeU32(uint32(len(cp.refs)))

	ids := make([]int32, len(cp.refs))
	for i, r := range cp.refs {
		ids[i] = e.ids[r]
	}
	writeIDColumn(w, ids)
	return w.bytes()
}

// parentBody emits every tree edge: version byte, count, child ids,
// then parent ids, both as delta columns. Entries follow pre-order, so
// a decoder appending children in entry order reproduces child order.
// The root's parent is -1.
func (e *encoder) parentBody() []byte {
	w := &colWriter{}
	w.writeU8(0)
	w.writeU32(uint32(len(e.refs)))

	children := make([]int32, len(e.refs))
	parents := make([]int32, len(e.refs))
	for i, r := range e.refs {
		children[i] = int32(i)
		if parent := e.dom.Get(r).Parent(); parent.IsNil() {
			parents[i] = -1
		} else {
			parents[i] = e.ids[parent]
		}
	}
	writeIDColumn(w, children)
	writeIDColumn(w, parents)
	return w.bytes()
}

// propBody builds one property column: class id, property name, type
// id, then one value per instance of the class in id order. Instances
// lacking the property contribute the type's zero value.
func (e *encoder) propBody(cp *classPlan, col propColumn) ([]byte, error) {
	w := &colWriter{}
	w.writeU32(cp.id)
	w.writeString(col.name)
	w.writeU8(uint8(col.typ))

	if col.name == "Name" {
		names := make([]string, len(cp.refs))
		for i, r := range cp.refs {
			name := e.dom.Get(r).Name
			if !utf8.ValidString(name) {
				return nil, &InvalidPropValueError{
					Instance: e.dom.FullName(r),
					Class:    cp.name,
					Prop:     "Name",
					PropType: TypeString.String(),
				}
			}
			names[i] = name
		}
		writeStringColumn(w, names)
		return w.bytes(), nil
	}

	values := make([]Variant, len(cp.refs))
	for i, r := range cp.refs {
		value, ok := e.dom.Get(r).Properties[col.name]
		if !ok {
			value = zeroVariant(col.typ)
		} else if value.Type() != col.typ {
			return nil, &PropTypeMismatchError{
				Instance: e.dom.FullName(r),
				Class:    cp.name,
				Prop:     col.name,
				Valid:    col.typ.String(),
				Actual:   value.Type().String(),
			}
		}
		values[i] = value
	}
	if err := e.writeColumn(w, cp, col, values); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// writeColumn encodes the gathered values with the column layout for
// their type. All values are already known to match col.typ.
func (e *encoder) writeColumn(w *colWriter, cp *classPlan, col propColumn, values []Variant) error {
	switch col.typ {
	case TypeString:
		strs := make([]string, len(values))
		for i, v := range values {
			s, _ := v.AsString()
			if !utf8.ValidString(s) {
				return e.invalidValue(cp, col, i)
			}
			strs[i] = s
		}
		writeStringColumn(w, strs)

	case TypeBool:
		bools := make([]bool, len(values))
		for i, v := range values {
			bools[i], _ = v.AsBool()
		}
		writeBoolColumn(w, bools)

	case TypeInt32:
		ints := make([]int32, len(values))
		for i, v := range values {
			ints[i], _ = v.AsInt32()
		}
		writeInt32Column(w, ints)

	case TypeInt64:
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i], _ = v.AsInt64()
		}
		writeInt64Column(w, ints)

	case TypeFloat32:
		floats := make([]float32, len(values))
		for i, v := range values {
			floats[i], _ = v.AsFloat32()
		}
		writeFloat32Column(w, floats)

	case TypeFloat64:
		floats := make([]float64, len(values))
		for i, v := range values {
			floats[i], _ = v.AsFloat64()
		}
		writeFloat64Column(w, floats)

	case TypeBytes:
		blobs := make([][]byte, len(values))
		for i, v := range values {
			blobs[i], _ = v.AsBytes()
		}
		writeBytesColumn(w, blobs)

	case TypeVector2:
		vecs := make([]Vector2, len(values))
		for i, v := range values {
			vecs[i], _ = v.AsVector2()
		}
		writeVector2Column(w, vecs)

	case TypeVector3:
		vecs := make([]Vector3, len(values))
		for i, v := range values {
			vecs[i], _ = v.AsVector3()
		}
		writeVector3Column(w, vecs)

	case TypeColor3:
		colors := make([]Color3, len(values))
		for i, v := range values {
			colors[i], _ = v.AsColor3()
		}
		writeColor3Column(w, colors)

	case TypeColor3uint8:
		colors := make([]Color3uint8, len(values))
		for i, v := range values {
			colors[i], _ = v.AsColor3uint8()
		}
		writeColor3uint8Column(w, colors)

	case TypeCFrame:
		frames := make([]CFrame, len(values))
		for i, v := range values {
			frames[i], _ = v.AsCFrame()
		}
		writeCFrameColumn(w, frames)

	case TypeEnum:
		// The column stores one shared enum type name; items must agree.
		// Absent properties contribute an empty name, which never
		// conflicts.
		var enumType string
		items := make([]EnumItem, len(values))
		for i, v := range values {
			item, _ := v.AsEnum()
			if item.EnumType != "" {
				if enumType == "" {
					enumType = item.EnumType
				} else if item.EnumType != enumType {
					return e.invalidValue(cp, col, i)
				}
			}
			items[i] = item
		}
		w.writeString(enumType)
		ids := make([]uint32, len(items))
		for i, item := range items {
			ids[i] = item.Value
		}
		writeEnumColumn(w, ids)

	case TypeReference:
		ids := make([]int32, len(values))
		for i, v := range values {
			target, _ := v.AsReference()
			if target.IsNil() {
				ids[i] = -1
				continue
			}
			id, ok := e.ids[target]
			if !ok {
				return invalidRefErr(target)
			}
			ids[i] = id
		}
		writeIDColumn(w, ids)

	default:
		return &UnsupportedPropTypeError{
			Class:    cp.name,
			Prop:     col.name,
			PropType: col.typ.String(),
		}
	}
	return nil
}

func (e *encoder) invalidValue(cp *classPlan, col propColumn, i int) error {
	return &InvalidPropValueError{
		Instance: e.dom.FullName(cp.refs[i]),
		Class:    cp.name,
		Prop:     col.name,
		PropType: col.typ.String(),
	}
}
