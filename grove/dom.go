package grove

import (
	"fmt"
	"strings"
)

// WeakDom is the arena that owns every Instance of one tree, keyed by
// Ref. It is the only place mutation of the tree is legal.
//
// A WeakDom is single-owner: mutation and serialization assume exclusive
// access for their duration. Concurrent readers are safe only while no
// writer is active.
type WeakDom struct {
	instances map[Ref]*Instance
	rootRef   Ref
}

// NewWeakDom creates a dom whose root is the given builder tree. The
// builder is consumed.
func NewWeakDom(root *InstanceBuilder) *WeakDom {
	dom := NewEmptyWeakDom()
	if _, err := dom.Insert(NilRef, root); err != nil {
		// Inserting into a fresh arena cannot name a missing parent.
		panic(fmt.Sprintf("grove: insert root: %v", err))
	}
	return dom
}

// NewEmptyWeakDom creates a dom with no instances. The first Insert with
// a NilRef parent establishes the root.
func NewEmptyWeakDom() *WeakDom {
	return &WeakDom{instances: make(map[Ref]*Instance)}
}

// RootRef returns the referent of the root instance, or NilRef when the
// dom is empty.
func (dom *WeakDom) RootRef() Ref {
	return dom.rootRef
}

// Root returns the root instance, or nil when the dom is empty.
func (dom *WeakDom) Root() *Instance {
	return dom.instances[dom.rootRef]
}

// Len returns the number of instances in the arena.
func (dom *WeakDom) Len() int {
	return len(dom.instances)
}

// Get returns the instance with the given referent, or nil if the arena
// does not contain it. Absence is not an error at this layer; callers
// translate nil into their own failure as needed.
func (dom *WeakDom) Get(r Ref) *Instance {
	return dom.instances[r]
}

// Insert materializes the builder tree into owned instances under the
// given parent, assigning fresh referents where the builder carries
// NilRef, and returns the referent of the subtree root.
//
// A NilRef parent is legal only for the very first insertion into an
// empty dom, which establishes the root. Any other parent must already
// exist in the arena or Insert fails with an InvalidInstanceIDError.
func (dom *WeakDom) Insert(parent Ref, tree *InstanceBuilder) (Ref, error) {
	if parent.IsNil() {
		if dom.rootRef != NilRef {
			return NilRef, invalidRefErr(parent)
		}
	} else if dom.instances[parent] == nil {
		return NilRef, invalidRefErr(parent)
	}

	root := dom.insertTree(parent, tree)
	if parent.IsNil() {
		dom.rootRef = root
	} else {
		p := dom.instances[parent]
		p.children = append(p.children, root)
	}
	return root, nil
}

// insertTree recursively adds the builder and its descendants to the
// arena, wiring parent and child links. Child order is preserved.
func (dom *WeakDom) insertTree(parent Ref, b *InstanceBuilder) Ref {
	if b.referent.IsNil() {
		b.referent = NewRef()
	}
	if _, taken := dom.instances[b.referent]; taken {
		panic(fmt.Sprintf("grove: referent %s is already in the dom", b.referent))
	}

	inst := b.build(parent)
	dom.instances[inst.referent] = inst
	for _, child := range b.children {
		ref := dom.insertTree(inst.referent, child)
		inst.children = append(inst.children, ref)
	}
	return inst.referent
}

// Destroy removes the subtree rooted at the given referent from the
// arena and detaches it from its parent's child list. Every referent in
// the removed subtree becomes invalid for further lookup and is never
// reused. Destroying an unknown referent fails with an
// InvalidInstanceIDError.
func (dom *WeakDom) Destroy(r Ref) error {
	inst := dom.instances[r]
	if inst == nil {
		return invalidRefErr(r)
	}

	if parent := dom.instances[inst.parent]; parent != nil {
		parent.children = removeRef(parent.children, r)
	}
	if r == dom.rootRef {
		dom.rootRef = NilRef
	}

	it := dom.Descendants(r)
	for ref, ok := it.Next(); ok; ref, ok = it.Next() {
		delete(dom.instances, ref)
	}
	return nil
}

func removeRef(refs []Ref, r Ref) []Ref {
	for i, ref := range refs {
		if ref == r {
			return append(refs[:i], refs[i+1:]...)
		}
	}
	return refs
}

// FullName returns the slash-joined path of instance names from the root
// down to the given referent, e.g. "DataModel/Workspace/Part". Used for
// diagnostics only. Unknown referents yield the referent's own string.
func (dom *WeakDom) FullName(r Ref) string {
	if dom.instances[r] == nil {
		return r.String()
	}
	var names []string
	it := dom.Ancestors(r)
	for ref, ok := it.Next(); ok; ref, ok = it.Next() {
		names = append(names, dom.instances[ref].Name)
	}
	// Ancestors walks leaf to root; reverse into path order.
	var sb strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteString(names[i])
		if i > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// ============================================================
// Traversal
// ============================================================

// iterKind selects what a RefIterator walks.
type iterKind uint8

const (
	iterDescendants iterKind = iota
	iterAncestors
)

// RefIterator lazily yields referents. It is finite and restartable:
// Reset rewinds it to its starting instance. Descendant iterators yield
// in pre-order (parent before children, children in stored order);
// ancestor iterators walk from the starting instance up to the root.
//
// Mutating the dom while an iterator is live invalidates the iterator.
type RefIterator struct {
	dom   *WeakDom
	start Ref
	kind  iterKind

	stack []Ref // pending refs for descendant walks
	cur   Ref   // cursor for ancestor walks
	done  bool
}

// Descendants returns an iterator over the subtree rooted at r,
// including r itself. An unknown referent yields an empty sequence.
func (dom *WeakDom) Descendants(r Ref) *RefIterator {
	it := &RefIterator{dom: dom, start: r, kind: iterDescendants}
	it.Reset()
	return it
}

// Ancestors returns an iterator from r up to the root, including r
// itself. An unknown referent yields an empty sequence.
func (dom *WeakDom) Ancestors(r Ref) *RefIterator {
	it := &RefIterator{dom: dom, start: r, kind: iterAncestors}
	it.Reset()
	return it
}

// Reset rewinds the iterator to its starting instance.
func (it *RefIterator) Reset() {
	it.done = false
	switch it.kind {
	case iterDescendants:
		it.stack = it.stack[:0]
		if it.dom.instances[it.start] != nil {
			it.stack = append(it.stack, it.start)
		}
	case iterAncestors:
		it.cur = it.start
		if it.dom.instances[it.start] == nil {
			it.done = true
		}
	}
}

// Next returns the next referent and true, or NilRef and false when the
// sequence is exhausted.
func (it *RefIterator) Next() (Ref, bool) {
	switch it.kind {
	case iterDescendants:
		if len(it.stack) == 0 {
			return NilRef, false
		}
		r := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		if inst := it.dom.instances[r]; inst != nil {
			// Push children reversed so the first child pops first.
			for i := len(inst.children) - 1; i >= 0; i-- {
				it.stack = append(it.stack, inst.children[i])
			}
		}
		return r, true
	case iterAncestors:
		if it.done {
			return NilRef, false
		}
		r := it.cur
		inst := it.dom.instances[r]
		if inst == nil {
			it.done = true
			return NilRef, false
		}
		if inst.parent.IsNil() {
			it.done = true
		} else {
			it.cur = inst.parent
		}
		return r, true
	}
	return NilRef, false
}

// ============================================================
// Migration
// ============================================================

// Transfer moves the subtree rooted at r out of this dom and under
// dstParent in dst, assigning fresh referents to every moved instance.
// Reference properties whose target moved are remapped to the new
// referents; references out of the moved subtree are left as they are
// and will no longer resolve in dst.
//
// A NilRef dstParent is legal only when dst is empty, making the moved
// subtree dst's root. Transferring within the same dom is not supported;
// structure is preserved but referent identity is not.
func (dom *WeakDom) Transfer(r Ref, dst *WeakDom, dstParent Ref) error {
	if dom == dst {
		panic("grove: transfer within the same dom")
	}
	if dom.instances[r] == nil {
		return invalidRefErr(r)
	}
	if dstParent.IsNil() {
		if dst.rootRef != NilRef {
			return invalidRefErr(dstParent)
		}
	} else if dst.instances[dstParent] == nil {
		return invalidRefErr(dstParent)
	}

	// Collect the subtree in pre-order and mint its new identity.
	var moved []Ref
	it := dom.Descendants(r)
	for ref, ok := it.Next(); ok; ref, ok = it.Next() {
		moved = append(moved, ref)
	}
	remap := make(map[Ref]Ref, len(moved))
	for _, old := range moved {
		remap[old] = NewRef()
	}

	// Detach from the source tree before rewriting anything.
	src := dom.instances[r]
	if parent := dom.instances[src.parent]; parent != nil {
		parent.children = removeRef(parent.children, r)
	}
	if r == dom.rootRef {
		dom.rootRef = NilRef
	}

	for _, old := range moved {
		inst := dom.instances[old]
		delete(dom.instances, old)

		inst.referent = remap[old]
		if next, ok := remap[inst.parent]; ok {
			inst.parent = next
		}
		for i, child := range inst.children {
			inst.children[i] = remap[child]
		}
		for name, value := range inst.Properties {
			if target, ok := value.AsReference(); ok {
				if next, ok := remap[target]; ok {
					inst.Properties[name] = NewReference(next)
				}
			}
		}
		dst.instances[inst.referent] = inst
	}

	root := remap[r]
	if dstParent.IsNil() {
		dst.rootRef = root
		dst.instances[root].parent = NilRef
	} else {
		dst.instances[root].parent = dstParent
		p := dst.instances[dstParent]
		p.children = append(p.children, root)
	}
	return nil
}
