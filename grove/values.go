package grove

import "fmt"

// ============================================================
// Composite Property Values
// ============================================================

// Vector2 is a 2D vector.
type Vector2 struct {
	X, Y float32
}

// String returns "(x, y)".
func (v Vector2) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Vector3 is a 3D vector.
type Vector3 struct {
	X, Y, Z float32
}

// String returns "(x, y, z)".
func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Color3 is a color with linear float components, each nominally in [0, 1].
type Color3 struct {
	R, G, B float32
}

// String returns "rgb(r, g, b)".
func (c Color3) String() string {
	return fmt.Sprintf("rgb(%g, %g, %g)", c.R, c.G, c.B)
}

// Color3uint8 is a color with 8-bit perceptual components.
type Color3uint8 struct {
	R, G, B uint8
}

// String returns "rgb8(r, g, b)".
func (c Color3uint8) String() string {
	return fmt.Sprintf("rgb8(%d, %d, %d)", c.R, c.G, c.B)
}

// CFrame is a rigid transform: a position and a 3x3 rotation matrix.
//
// Rotation is stored row-major: [r00 r01 r02 r10 r11 r12 r20 r21 r22].
type CFrame struct {
	Position Vector3
	Rotation [9]float32
}

// IdentityCFrame returns a CFrame at the origin with the identity rotation.
func IdentityCFrame() CFrame {
	return CFrame{Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// String returns the position followed by the rotation rows.
func (cf CFrame) String() string {
	return fmt.Sprintf("cframe(%s, %v)", cf.Position, cf.Rotation)
}

// EnumItem is one value of a named enumeration: the enum's type name plus
// the numeric id the engine assigns to the item.
type EnumItem struct {
	EnumType string
	Value    uint32
}

// String returns "EnumType(value)", or just the value when the type name
// is unknown.
func (e EnumItem) String() string {
	if e.EnumType == "" {
		return fmt.Sprintf("enum(%d)", e.Value)
	}
	return fmt.Sprintf("%s(%d)", e.EnumType, e.Value)
}
