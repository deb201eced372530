package grove

// Instance is one node owned by a WeakDom.
//
// Operations that could affect other instances in the same WeakDom
// (reparenting, destruction) cannot be performed through an Instance;
// they go through the dom so the arena invariants hold.
type Instance struct {
	referent Ref
	children []Ref
	parent   Ref

	// Name is the instance's display name. Mutable; serialized as the
	// intrinsic "Name" property column.
	Name string

	// Class is the instance's class name, interned.
	Class string

	// Properties holds every property other than Name and Class. Keys are
	// interned property names; keys are unique and a later write replaces
	// an earlier one.
	Properties map[string]Variant

	// binaryID is the compact id this instance had in the stream it was
	// decoded from. Instances built in memory have none. Diagnostics only.
	binaryID   int32
	fromBinary bool
}

// Referent returns this instance's referent. It is never NilRef.
func (inst *Instance) Referent() Ref {
	return inst.referent
}

// Parent returns the referent of this instance's parent, or NilRef for
// a root.
func (inst *Instance) Parent() Ref {
	return inst.parent
}

// Children returns the referents of this instance's children in order.
// The slice is owned by the dom; callers must not modify it.
func (inst *Instance) Children() []Ref {
	return inst.children
}

// BinaryID returns the compact id recorded when this instance was
// decoded from a binary stream, and whether one exists.
func (inst *Instance) BinaryID() (int32, bool) {
	return inst.binaryID, inst.fromBinary
}

// ByteSize reports how many bytes of the originating stream this
// instance was responsible for, looked up in the ledger produced by
// Deserialize. Instances built in memory always report 0.
func (inst *Instance) ByteSize(ledger ByteLedger) int {
	if !inst.fromBinary {
		return 0
	}
	return ledger[inst.binaryID]
}

// ============================================================
// InstanceBuilder
// ============================================================

// propEntry is one staged property. The list keeps insertion order and
// tolerates duplicate names; the last occurrence wins when the builder
// is resolved into an Instance.
type propEntry struct {
	name  string
	value Variant
}

// InstanceBuilder stages an instance tree that no WeakDom owns yet.
//
// Builders are mutated freely, then consumed exactly once by
// WeakDom.Insert or NewWeakDom; afterwards the builder is spent. Every
// mutator comes in two equivalent styles: a chaining With form that
// returns the builder, and an in-place Set/Add form.
type InstanceBuilder struct {
	referent   Ref
	name       string
	class      string
	properties []propEntry
	children   []*InstanceBuilder
	binaryID   int32
	fromBinary bool
}

// NewInstanceBuilder creates a builder with the given class name, which
// doubles as the instance's name unless overwritten later.
func NewInstanceBuilder(class string) *InstanceBuilder {
	class = Intern(class)
	return &InstanceBuilder{
		referent: NewRef(),
		name:     class,
		class:    class,
	}
}

// NewInstanceBuilderWithCapacity creates a builder whose property list
// has room for at least capacity entries.
func NewInstanceBuilderWithCapacity(class string, capacity int) *InstanceBuilder {
	b := NewInstanceBuilder(class)
	b.properties = make([]propEntry, 0, capacity)
	return b
}

// EmptyInstanceBuilder creates a builder with every field empty. A fresh
// referent is still assigned.
func EmptyInstanceBuilder() *InstanceBuilder {
	return &InstanceBuilder{referent: NewRef()}
}

// Referent returns the referent the built instance will have.
func (b *InstanceBuilder) Referent() Ref {
	return b.referent
}

// WithReferent overrides the referent, e.g. to reconstruct identifiers
// recorded elsewhere. The referent must be unique within the target dom.
func (b *InstanceBuilder) WithReferent(r Ref) *InstanceBuilder {
	b.referent = r
	return b
}

// WithBinaryID records the compact id the instance had in a binary
// stream, for byte-size accounting.
func (b *InstanceBuilder) WithBinaryID(id int32) *InstanceBuilder {
	b.binaryID = id
	b.fromBinary = true
	return b
}

// WithName changes the staged name.
func (b *InstanceBuilder) WithName(name string) *InstanceBuilder {
	b.name = name
	return b
}

// SetName changes the staged name.
func (b *InstanceBuilder) SetName(name string) {
	b.name = name
}

// WithClass changes the staged class.
func (b *InstanceBuilder) WithClass(class string) *InstanceBuilder {
	b.class = Intern(class)
	return b
}

// SetClass changes the staged class.
func (b *InstanceBuilder) SetClass(class string) {
	b.class = Intern(class)
}

// WithProperty appends a property. Duplicates are allowed; the last
// occurrence wins on insertion.
func (b *InstanceBuilder) WithProperty(name string, value Variant) *InstanceBuilder {
	b.properties = append(b.properties, propEntry{name: Intern(name), value: value})
	return b
}

// AddProperty appends a property.
func (b *InstanceBuilder) AddProperty(name string, value Variant) {
	b.properties = append(b.properties, propEntry{name: Intern(name), value: value})
}

// WithProperties appends properties in map iteration order. Use repeated
// WithProperty calls when ordering between duplicate keys matters.
func (b *InstanceBuilder) WithProperties(props map[string]Variant) *InstanceBuilder {
	for name, value := range props {
		b.AddProperty(name, value)
	}
	return b
}

// AddProperties appends properties in map iteration order.
func (b *InstanceBuilder) AddProperties(props map[string]Variant) {
	for name, value := range props {
		b.AddProperty(name, value)
	}
}

// HasProperty reports whether any staged entry uses the given name,
// irrespective of duplicates.
func (b *InstanceBuilder) HasProperty(name string) bool {
	for _, p := range b.properties {
		if p.name == name {
			return true
		}
	}
	return false
}

// WithChild appends a child builder. Order is preserved.
func (b *InstanceBuilder) WithChild(child *InstanceBuilder) *InstanceBuilder {
	b.children = append(b.children, child)
	return b
}

// AddChild appends a child builder.
func (b *InstanceBuilder) AddChild(child *InstanceBuilder) {
	b.children = append(b.children, child)
}

// WithChildren appends children in order.
func (b *InstanceBuilder) WithChildren(children ...*InstanceBuilder) *InstanceBuilder {
	b.children = append(b.children, children...)
	return b
}

// AddChildren appends children in order.
func (b *InstanceBuilder) AddChildren(children ...*InstanceBuilder) {
	b.children = append(b.children, children...)
}

// build resolves the builder (one level, not children) into an owned
// Instance. Duplicate property names collapse to the last occurrence.
func (b *InstanceBuilder) build(parent Ref) *Instance {
	props := make(map[string]Variant, len(b.properties))
	for _, p := range b.properties {
		props[p.name] = p.value
	}
	return &Instance{
		referent:   b.referent,
		parent:     parent,
		Name:       b.name,
		Class:      b.class,
		Properties: props,
		binaryID:   b.binaryID,
		fromBinary: b.fromBinary,
	}
}
