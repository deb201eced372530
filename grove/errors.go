package grove

import "fmt"

// The serializer and deserializer fail fast: the first error below aborts
// the whole call and the partially written stream or partially built dom
// must be discarded. None of these are recovered internally.

// IoError wraps a transport or stream failure encountered while reading
// or writing the container, including malformed low-level byte sequences.
type IoError struct {
	Op  string // what the codec was doing, e.g. "read chunk body"
	Err error  // underlying cause, passed through verbatim
}

func (e *IoError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IoError) Unwrap() error {
	return e.Err
}

func ioErr(op string, err error) *IoError {
	return &IoError{Op: op, Err: err}
}

// PropTypeMismatchError reports a property whose value kind disagrees
// with the kind the schema declares for it.
type PropTypeMismatchError struct {
	Instance string // full name of the offending instance, diagnostics only
	Class    string
	Prop     string
	Valid    string // the type name(s) the schema accepts
	Actual   string
}

func (e *PropTypeMismatchError) Error() string {
	return fmt.Sprintf(
		"property type mismatch: expected %s.%s to be of type %s, but it was of type %s on instance %s",
		e.Class, e.Prop, e.Valid, e.Actual, e.Instance)
}

// UnsupportedPropTypeError reports a property the schema has no entry
// for, or whose declared kind has no binary encoding.
type UnsupportedPropTypeError struct {
	Class    string
	Prop     string
	PropType string
}

func (e *UnsupportedPropTypeError) Error() string {
	return fmt.Sprintf("unsupported property type: %s.%s is of type %s",
		e.Class, e.Prop, e.PropType)
}

// InvalidPropValueError reports a value of the right kind that still
// cannot be represented in the wire encoding.
type InvalidPropValueError struct {
	Instance string
	Class    string
	Prop     string
	PropType string
}

func (e *InvalidPropValueError) Error() string {
	return fmt.Sprintf(
		"invalid property value: instance %s had a property (%s.%s) of type %s with a value that could not be written",
		e.Instance, e.Class, e.Prop, e.PropType)
}

// InvalidInstanceIDError reports a referent that does not exist where it
// was required to: a Reference property or tree edge naming an instance
// absent from the dom being serialized, or a compact file-local id never
// declared by any INST chunk. Exactly one of Referent and BinaryID is
// meaningful, depending on which side of the codec failed.
type InvalidInstanceIDError struct {
	Referent Ref
	BinaryID int32
	fromWire bool
}

func invalidRefErr(r Ref) *InvalidInstanceIDError {
	return &InvalidInstanceIDError{Referent: r}
}

func invalidIDErr(id int32) *InvalidInstanceIDError {
	return &InvalidInstanceIDError{BinaryID: id, fromWire: true}
}

func (e *InvalidInstanceIDError) Error() string {
	if e.fromWire {
		return fmt.Sprintf("the instance with id %d was not declared before it was referenced", e.BinaryID)
	}
	return fmt.Sprintf("the instance with referent %s was not present in the dom", e.Referent)
}
