package grove

import (
	"bytes"
	"fmt"
	"math"
)

// Type identifies the kind held by a Variant.
//
// The numeric values are the wire type ids written into PROP chunks and
// must never be renumbered.
type Type uint8

const (
	TypeInvalid     Type = 0x00
	TypeString      Type = 0x01
	TypeBool        Type = 0x02
	TypeInt32       Type = 0x03
	TypeFloat32     Type = 0x04
	TypeFloat64     Type = 0x05
	TypeInt64       Type = 0x06
	TypeVector2     Type = 0x07
	TypeVector3     Type = 0x08
	TypeColor3      Type = 0x09
	TypeColor3uint8 Type = 0x0A
	TypeCFrame      Type = 0x0B
	TypeEnum        Type = 0x0C
	TypeReference   Type = 0x0D
	TypeBytes       Type = 0x0E
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeBool:
		return "Bool"
	case TypeInt32:
		return "Int32"
	case TypeFloat32:
		return "Float32"
	case TypeFloat64:
		return "Float64"
	case TypeInt64:
		return "Int64"
	case TypeVector2:
		return "Vector2"
	case TypeVector3:
		return "Vector3"
	case TypeColor3:
		return "Color3"
	case TypeColor3uint8:
		return "Color3uint8"
	case TypeCFrame:
		return "CFrame"
	case TypeEnum:
		return "Enum"
	case TypeReference:
		return "Ref"
	case TypeBytes:
		return "Bytes"
	default:
		return fmt.Sprintf("Invalid(0x%02x)", uint8(t))
	}
}

// TypeFromName resolves a type name as it appears in schemas and error
// messages back to a Type.
func TypeFromName(name string) (Type, bool) {
	switch name {
	case "String":
		return TypeString, true
	case "Bool":
		return TypeBool, true
	case "Int32":
		return TypeInt32, true
	case "Float32":
		return TypeFloat32, true
	case "Float64":
		return TypeFloat64, true
	case "Int64":
		return TypeInt64, true
	case "Vector2":
		return TypeVector2, true
	case "Vector3":
		return TypeVector3, true
	case "Color3":
		return TypeColor3, true
	case "Color3uint8":
		return TypeColor3uint8, true
	case "CFrame":
		return TypeCFrame, true
	case "Enum":
		return TypeEnum, true
	case "Ref":
		return TypeReference, true
	case "Bytes":
		return TypeBytes, true
	default:
		return TypeInvalid, false
	}
}

// Variant is a closed tagged union over every property value kind the
// codec understands. Exactly one kind is active; the zero Variant holds
// TypeInvalid and cannot be encoded. The codec never coerces between
// kinds — conversions are the caller's business.
type Variant struct {
	typ Type

	// Scalar values (one valid based on typ)
	boolVal    bool
	int32Val   int32
	int64Val   int64
	float32Val float32
	float64Val float64
	strVal     string
	bytesVal   []byte

	// Composite values
	vec2Val   Vector2
	vec3Val   Vector3
	color3Val Color3
	color8Val Color3uint8
	cframeVal CFrame
	enumVal   EnumItem
	refVal    Ref
}

// ============================================================
// Constructors
// ============================================================

// NewString creates a String variant. The string must be valid UTF-8 by
// the time it is serialized; use NewBytes for arbitrary data.
func NewString(v string) Variant {
	return Variant{typ: TypeString, strVal: v}
}

// NewBool creates a Bool variant.
func NewBool(v bool) Variant {
	return Variant{typ: TypeBool, boolVal: v}
}

// NewInt32 creates an Int32 variant.
func NewInt32(v int32) Variant {
	return Variant{typ: TypeInt32, int32Val: v}
}

// NewInt64 creates an Int64 variant.
func NewInt64(v int64) Variant {
	return Variant{typ: TypeInt64, int64Val: v}
}

// NewFloat32 creates a Float32 variant.
func NewFloat32(v float32) Variant {
	return Variant{typ: TypeFloat32, float32Val: v}
}

// NewFloat64 creates a Float64 variant.
func NewFloat64(v float64) Variant {
	return Variant{typ: TypeFloat64, float64Val: v}
}

// NewBytes creates a Bytes variant holding an opaque binary blob. The
// slice is not copied; the caller must not mutate it afterwards.
func NewBytes(v []byte) Variant {
	return Variant{typ: TypeBytes, bytesVal: v}
}

// NewVector2 creates a Vector2 variant.
func NewVector2(x, y float32) Variant {
	return Variant{typ: TypeVector2, vec2Val: Vector2{X: x, Y: y}}
}

// NewVector3 creates a Vector3 variant.
func NewVector3(x, y, z float32) Variant {
	return Variant{typ: TypeVector3, vec3Val: Vector3{X: x, Y: y, Z: z}}
}

// NewColor3 creates a linear Color3 variant.
func NewColor3(r, g, b float32) Variant {
	return Variant{typ: TypeColor3, color3Val: Color3{R: r, G: g, B: b}}
}

// NewColor3uint8 creates a perceptual Color3uint8 variant.
func NewColor3uint8(r, g, b uint8) Variant {
	return Variant{typ: TypeColor3uint8, color8Val: Color3uint8{R: r, G: g, B: b}}
}

// NewCFrame creates a CFrame variant.
func NewCFrame(cf CFrame) Variant {
	return Variant{typ: TypeCFrame, cframeVal: cf}
}

// NewEnum creates an Enum variant.
func NewEnum(enumType string, value uint32) Variant {
	return Variant{typ: TypeEnum, enumVal: EnumItem{EnumType: enumType, Value: value}}
}

// NewReference creates a Reference variant pointing at another instance,
// or at nothing when r is NilRef.
func NewReference(r Ref) Variant {
	return Variant{typ: TypeReference, refVal: r}
}

// zeroVariant returns the default value encoded for instances that lack
// a property present elsewhere in their class.
func zeroVariant(t Type) Variant {
	switch t {
	case TypeString:
		return NewString("")
	case TypeBool:
		return NewBool(false)
	case TypeInt32:
		return NewInt32(0)
	case TypeFloat32:
		return NewFloat32(0)
	case TypeFloat64:
		return NewFloat64(0)
	case TypeInt64:
		return NewInt64(0)
	case TypeVector2:
		return NewVector2(0, 0)
	case TypeVector3:
		return NewVector3(0, 0, 0)
	case TypeColor3:
		return NewColor3(0, 0, 0)
	case TypeColor3uint8:
		return NewColor3uint8(0, 0, 0)
	case TypeCFrame:
		return NewCFrame(IdentityCFrame())
	case TypeEnum:
		return NewEnum("", 0)
	case TypeReference:
		return NewReference(NilRef)
	case TypeBytes:
		return NewBytes(nil)
	default:
		return Variant{}
	}
}

// ============================================================
// Accessors
// ============================================================

// Type returns the active kind.
func (v Variant) Type() Type {
	return v.typ
}

// AsString returns the string value if the variant holds one.
func (v Variant) AsString() (string, bool) {
	return v.strVal, v.typ == TypeString
}

// AsBool returns the boolean value if the variant holds one.
func (v Variant) AsBool() (bool, bool) {
	return v.boolVal, v.typ == TypeBool
}

// AsInt32 returns the int32 value if the variant holds one.
func (v Variant) AsInt32() (int32, bool) {
	return v.int32Val, v.typ == TypeInt32
}

// AsInt64 returns the int64 value if the variant holds one.
func (v Variant) AsInt64() (int64, bool) {
	return v.int64Val, v.typ == TypeInt64
}

// AsFloat32 returns the float32 value if the variant holds one.
func (v Variant) AsFloat32() (float32, bool) {
	return v.float32Val, v.typ == TypeFloat32
}

// AsFloat64 returns the float64 value if the variant holds one.
func (v Variant) AsFloat64() (float64, bool) {
	return v.float64Val, v.typ == TypeFloat64
}

// AsBytes returns the blob if the variant holds one. The slice is shared,
// not copied.
func (v Variant) AsBytes() ([]byte, bool) {
	return v.bytesVal, v.typ == TypeBytes
}

// AsVector2 returns the Vector2 value if the variant holds one.
func (v Variant) AsVector2() (Vector2, bool) {
	return v.vec2Val, v.typ == TypeVector2
}

// AsVector3 returns the Vector3 value if the variant holds one.
func (v Variant) AsVector3() (Vector3, bool) {
	return v.vec3Val, v.typ == TypeVector3
}

// AsColor3 returns the Color3 value if the variant holds one.
func (v Variant) AsColor3() (Color3, bool) {
	return v.color3Val, v.typ == TypeColor3
}

// AsColor3uint8 returns the Color3uint8 value if the variant holds one.
func (v Variant) AsColor3uint8() (Color3uint8, bool) {
	return v.color8Val, v.typ == TypeColor3uint8
}

// AsCFrame returns the CFrame value if the variant holds one.
func (v Variant) AsCFrame() (CFrame, bool) {
	return v.cframeVal, v.typ == TypeCFrame
}

// AsEnum returns the EnumItem value if the variant holds one.
func (v Variant) AsEnum() (EnumItem, bool) {
	return v.enumVal, v.typ == TypeEnum
}

// AsReference returns the referent if the variant holds one.
func (v Variant) AsReference() (Ref, bool) {
	return v.refVal, v.typ == TypeReference
}

// Equal reports whether two variants hold the same kind and the same
// value. Floats compare bit-exactly, so NaNs with identical payloads are
// equal and +0 differs from -0.
func (v Variant) Equal(other Variant) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.strVal == other.strVal
	case TypeBool:
		return v.boolVal == other.boolVal
	case TypeInt32:
		return v.int32Val == other.int32Val
	case TypeInt64:
		return v.int64Val == other.int64Val
	case TypeFloat32:
		return math.Float32bits(v.float32Val) == math.Float32bits(other.float32Val)
	case TypeFloat64:
		return math.Float64bits(v.float64Val) == math.Float64bits(other.float64Val)
	case TypeBytes:
		return bytes.Equal(v.bytesVal, other.bytesVal)
	case TypeVector2:
		return float32Eq(v.vec2Val.X, other.vec2Val.X) && float32Eq(v.vec2Val.Y, other.vec2Val.Y)
	case TypeVector3:
		return vector3Eq(v.vec3Val, other.vec3Val)
	case TypeColor3:
		return float32Eq(v.color3Val.R, other.color3Val.R) &&
			float32Eq(v.color3Val.G, other.color3Val.G) &&
			float32Eq(v.color3Val.B, other.color3Val.B)
	case TypeColor3uint8:
		return v.color8Val == other.color8Val
	case TypeCFrame:
		if !vector3Eq(v.cframeVal.Position, other.cframeVal.Position) {
			return false
		}
		for i := range v.cframeVal.Rotation {
			if !float32Eq(v.cframeVal.Rotation[i], other.cframeVal.Rotation[i]) {
				return false
			}
		}
		return true
	case TypeEnum:
		return v.enumVal == other.enumVal
	case TypeReference:
		return v.refVal == other.refVal
	default:
		return true
	}
}

// String returns a debug representation of the variant.
func (v Variant) String() string {
	switch v.typ {
	case TypeString:
		return fmt.Sprintf("%q", v.strVal)
	case TypeBool:
		return fmt.Sprintf("%t", v.boolVal)
	case TypeInt32:
		return fmt.Sprintf("%d", v.int32Val)
	case TypeInt64:
		return fmt.Sprintf("%d", v.int64Val)
	case TypeFloat32:
		return fmt.Sprintf("%g", v.float32Val)
	case TypeFloat64:
		return fmt.Sprintf("%g", v.float64Val)
	case TypeBytes:
		return fmt.Sprintf("bytes[%d]", len(v.bytesVal))
	case TypeVector2:
		return v.vec2Val.String()
	case TypeVector3:
		return v.vec3Val.String()
	case TypeColor3:
		return v.color3Val.String()
	case TypeColor3uint8:
		return v.color8Val.String()
	case TypeCFrame:
		return v.cframeVal.String()
	case TypeEnum:
		return v.enumVal.String()
	case TypeReference:
		return "^" + v.refVal.String()
	default:
		return "invalid"
	}
}

func float32Eq(a, b float32) bool {
	return math.Float32bits(a) == math.Float32bits(b)
}

func vector3Eq(a, b Vector3) bool {
	return float32Eq(a.X, b.X) && float32Eq(a.Y, b.Y) && float32Eq(a.Z, b.Z)
}
