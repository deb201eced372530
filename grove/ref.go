package grove

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Ref is an opaque identifier for one Instance inside a WeakDom.
//
// Refs are 128 random bits, unique for the life of the process and never
// reused, even after the instance they named is destroyed. The zero value
// is NilRef, which means "no instance": a root's parent, or an unset
// Reference property.
type Ref [16]byte

// NilRef is the null referent.
var NilRef Ref

// NewRef returns a fresh referent that no other call has returned.
func NewRef() Ref {
	return Ref(uuid.New())
}

// IsNil reports whether the referent is the null sentinel.
func (r Ref) IsNil() bool {
	return r == NilRef
}

// String returns the referent as 32 lowercase hex digits, or "null" for
// NilRef. The representation is diagnostic only and never written to the
// wire format.
func (r Ref) String() string {
	if r.IsNil() {
		return "null"
	}
	return hex.EncodeToString(r[:])
}
