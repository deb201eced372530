package grove

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wire-level value columns. A PROP chunk carries one column: the same
// property for every instance of one class, value layouts chosen so that
// same-typed bytes sit together and compress well:
//
//   - integer and id columns are byte-transposed ("interleaved") in
//     big-endian plane order, most significant plane first
//   - signed columns are zigzag-mapped first; id columns are also
//     delta-from-previous ("accumulated" back on read)
//   - float32 columns rotate the sign bit to the LSB before interleaving
//     so small magnitudes share leading zero bytes; float64 columns are
//     stored positionally, little-endian
//   - strings and blobs are u32 length-prefixed, positional
//
// Readers never trust declared lengths: every read is bounds-checked and
// truncation surfaces as io.ErrUnexpectedEOF for the caller to wrap.

// ============================================================
// Buffer primitives
// ============================================================

// colWriter accumulates a chunk body.
type colWriter struct {
	buf bytes.Buffer
}

func (w *colWriter) bytes() []byte {
	return w.buf.Bytes()
}

func (w *colWriter) writeU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *colWriter) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *colWriter) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *colWriter) writeRaw(p []byte) {
	w.buf.Write(p)
}

// writeString writes a u32 length prefix followed by the raw bytes.
func (w *colWriter) writeString(s string) {
	w.writeU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// colReader consumes a chunk body at an offset.
type colReader struct {
	buf []byte
	off int
}

func newColReader(body []byte) *colReader {
	return &colReader{buf: body}
}

func (r *colReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *colReader) readU8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *colReader) readU32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *colReader) readU64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// readRaw returns a sub-slice of the body; callers must copy if they
// keep it.
func (r *colReader) readRaw(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

func (r *colReader) readString() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	raw, err := r.readRaw(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ============================================================
// Bit transforms
// ============================================================

func zigzag32(v int32) uint32 {
	return uint32(v<<1) ^ uint32(v>>31)
}

func unzigzag32(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

func zigzag64(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func unzigzag64(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// rotateF32 moves the sign bit to the least significant position so that
// floats of small magnitude share leading zero bytes after interleaving.
func rotateF32(f float32) uint32 {
	bits := math.Float32bits(f)
	return bits<<1 | bits>>31
}

func unrotateF32(u uint32) float32 {
	return math.Float32frombits(u>>1 | u<<31)
}

// ============================================================
// Interleaving
// ============================================================

// writeInterleaved32 byte-transposes the values: all most significant
// bytes first, then the next plane, down to the least significant.
func writeInterleaved32(w *colWriter, vals []uint32) {
	out := make([]byte, 4*len(vals))
	n := len(vals)
	for i, v := range vals {
		out[i] = byte(v >> 24)
		out[n+i] = byte(v >> 16)
		out[2*n+i] = byte(v >> 8)
		out[3*n+i] = byte(v)
	}
	w.writeRaw(out)
}

func readInterleaved32(r *colReader, count int) ([]uint32, error) {
	raw, err := r.readRaw(4 * count)
	if err != nil {
		return nil, err
	}
	vals := make([]uint32, count)
	for i := range vals {
		vals[i] = uint32(raw[i])<<24 |
			uint32(raw[count+i])<<16 |
			uint32(raw[2*count+i])<<8 |
			uint32(raw[3*count+i])
	}
	return vals, nil
}

func writeInterleaved64(w *colWriter, vals []uint64) {
	out := make([]byte, 8*len(vals))
	n := len(vals)
	for i, v := range vals {
		for plane := 0; plane < 8; plane++ {
			out[plane*n+i] = byte(v >> (8 * (7 - plane)))
		}
	}
	w.writeRaw(out)
}

func readInterleaved64(r *colReader, count int) ([]uint64, error) {
	raw, err := r.readRaw(8 * count)
	if err != nil {
		return nil, err
	}
	vals := make([]uint64, count)
	for i := range vals {
		var v uint64
		for plane := 0; plane < 8; plane++ {
			v = v<<8 | uint64(raw[plane*count+i])
		}
		vals[i] = v
	}
	return vals, nil
}

// ============================================================
// Typed columns
// ============================================================

func writeStringColumn(w *colWriter, vals []string) {
	for _, s := range vals {
		w.writeString(s)
	}
}

func readStringColumn(r *colReader, count int) ([]string, error) {
	vals := make([]string, count)
	for i := range vals {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		vals[i] = s
	}
	return vals, nil
}

func writeBytesColumn(w *colWriter, vals [][]byte) {
	for _, b := range vals {
		w.writeU32(uint32(len(b)))
		w.writeRaw(b)
	}
}

func readBytesColumn(r *colReader, count int) ([][]byte, error) {
	vals := make([][]byte, count)
	for i := range vals {
		n, err := r.readU32()
		if err != nil {
			return nil, err
		}
		raw, err := r.readRaw(int(n))
		if err != nil {
			return nil, err
		}
		vals[i] = append([]byte(nil), raw...)
	}
	return vals, nil
}

func writeBoolColumn(w *colWriter, vals []bool) {
	for _, b := range vals {
		if b {
			w.writeU8(1)
		} else {
			w.writeU8(0)
		}
	}
}

func readBoolColumn(r *colReader, count int) ([]bool, error) {
	raw, err := r.readRaw(count)
	if err != nil {
		return nil, err
	}
	vals := make([]bool, count)
	for i, b := range raw {
		vals[i] = b != 0
	}
	return vals, nil
}

func writeInt32Column(w *colWriter, vals []int32) {
	u := make([]uint32, len(vals))
	for i, v := range vals {
		u[i] = zigzag32(v)
	}
	writeInterleaved32(w, u)
}

func readInt32Column(r *colReader, count int) ([]int32, error) {
	u, err := readInterleaved32(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]int32, count)
	for i, v := range u {
		vals[i] = unzigzag32(v)
	}
	return vals, nil
}

func writeInt64Column(w *colWriter, vals []int64) {
	u := make([]uint64, len(vals))
	for i, v := range vals {
		u[i] = zigzag64(v)
	}
	writeInterleaved64(w, u)
}

func readInt64Column(r *colReader, count int) ([]int64, error) {
	u, err := readInterleaved64(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]int64, count)
	for i, v := range u {
		vals[i] = unzigzag64(v)
	}
	return vals, nil
}

func writeFloat32Column(w *colWriter, vals []float32) {
	u := make([]uint32, len(vals))
	for i, v := range vals {
		u[i] = rotateF32(v)
	}
	writeInterleaved32(w, u)
}

func readFloat32Column(r *colReader, count int) ([]float32, error) {
	u, err := readInterleaved32(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]float32, count)
	for i, v := range u {
		vals[i] = unrotateF32(v)
	}
	return vals, nil
}

func writeFloat64Column(w *colWriter, vals []float64) {
	for _, v := range vals {
		w.writeU64(math.Float64bits(v))
	}
}

func readFloat64Column(r *colReader, count int) ([]float64, error) {
	vals := make([]float64, count)
	for i := range vals {
		u, err := r.readU64()
		if err != nil {
			return nil, err
		}
		vals[i] = math.Float64frombits(u)
	}
	return vals, nil
}

// writeEnumColumn stores the enum values as plain u32s, interleaved but
// not zigzagged; enum ids are small non-negative numbers already.
func writeEnumColumn(w *colWriter, vals []uint32) {
	writeInterleaved32(w, vals)
}

func readEnumColumn(r *colReader, count int) ([]uint32, error) {
	return readInterleaved32(r, count)
}

// writeIDColumn stores compact file-local ids: delta from the previous
// entry, zigzag, then interleave. Used for INST declarations, PRNT edges
// and Reference property columns; -1 is the null sentinel.
func writeIDColumn(w *colWriter, ids []int32) {
	u := make([]uint32, len(ids))
	var prev int32
	for i, id := range ids {
		u[i] = zigzag32(id - prev)
		prev = id
	}
	writeInterleaved32(w, u)
}

func readIDColumn(r *colReader, count int) ([]int32, error) {
	u, err := readInterleaved32(r, count)
	if err != nil {
		return nil, err
	}
	ids := make([]int32, count)
	var prev int32
	for i, v := range u {
		prev += unzigzag32(v)
		ids[i] = prev
	}
	return ids, nil
}

// ============================================================
// Component-plane columns
// ============================================================

func writeVector2Column(w *colWriter, vals []Vector2) {
	comp := make([]float32, len(vals))
	for _, get := range []func(Vector2) float32{
		func(v Vector2) float32 { return v.X },
		func(v Vector2) float32 { return v.Y },
	} {
		for i, v := range vals {
			comp[i] = get(v)
		}
		writeFloat32Column(w, comp)
	}
}

func readVector2Column(r *colReader, count int) ([]Vector2, error) {
	xs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	ys, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]Vector2, count)
	for i := range vals {
		vals[i] = Vector2{X: xs[i], Y: ys[i]}
	}
	return vals, nil
}

func writeVector3Column(w *colWriter, vals []Vector3) {
	comp := make([]float32, len(vals))
	for _, get := range []func(Vector3) float32{
		func(v Vector3) float32 { return v.X },
		func(v Vector3) float32 { return v.Y },
		func(v Vector3) float32 { return v.Z },
	} {
		for i, v := range vals {
			comp[i] = get(v)
		}
		writeFloat32Column(w, comp)
	}
}

func readVector3Column(r *colReader, count int) ([]Vector3, error) {
	xs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	ys, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	zs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]Vector3, count)
	for i := range vals {
		vals[i] = Vector3{X: xs[i], Y: ys[i], Z: zs[i]}
	}
	return vals, nil
}

func writeColor3Column(w *colWriter, vals []Color3) {
	comp := make([]float32, len(vals))
	for _, get := range []func(Color3) float32{
		func(c Color3) float32 { return c.R },
		func(c Color3) float32 { return c.G },
		func(c Color3) float32 { return c.B },
	} {
		for i, c := range vals {
			comp[i] = get(c)
		}
		writeFloat32Column(w, comp)
	}
}

func readColor3Column(r *colReader, count int) ([]Color3, error) {
	rs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	gs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	bs, err := readFloat32Column(r, count)
	if err != nil {
		return nil, err
	}
	vals := make([]Color3, count)
	for i := range vals {
		vals[i] = Color3{R: rs[i], G: gs[i], B: bs[i]}
	}
	return vals, nil
}

func writeColor3uint8Column(w *colWriter, vals []Color3uint8) {
	plane := make([]byte, len(vals))
	for _, get := range []func(Color3uint8) uint8{
		func(c Color3uint8) uint8 { return c.R },
		func(c Color3uint8) uint8 { return c.G },
		func(c Color3uint8) uint8 { return c.B },
	} {
		for i, c := range vals {
			plane[i] = get(c)
		}
		w.writeRaw(plane)
	}
}

func readColor3uint8Column(r *colReader, count int) ([]Color3uint8, error) {
	rs, err := r.readRaw(count)
	if err != nil {
		return nil, err
	}
	gs, err := r.readRaw(count)
	if err != nil {
		return nil, err
	}
	bs, err := r.readRaw(count)
	if err != nil {
		return nil, err
	}
	vals := make([]Color3uint8, count)
	for i := range vals {
		vals[i] = Color3uint8{R: rs[i], G: gs[i], B: bs[i]}
	}
	return vals, nil
}

// ============================================================
// CFrame columns
// ============================================================

// CFrame columns store one rotation record per value (an id byte from
// the axis-aligned table, or 0x00 followed by the nine matrix cells as
// raw little-endian float32), then every position as an interleaved
// Vector3 column.

const rotationExplicit = 0x00

// axisRotations holds the 24 proper axis-aligned rotation matrices; ids
// on the wire are table index + 1 so that 0x00 stays "explicit matrix".
var axisRotations = buildAxisRotations()

func buildAxisRotations() [][9]float32 {
	var out [][9]float32
	// Enumerate permutations in a fixed order, then sign choices; keep
	// the 24 with determinant +1. Cells are written directly so zeros
	// stay positive zero and table matches stay bit-exact.
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		for signBits := 0; signBits < 8; signBits++ {
			var m [9]float32
			for row := 0; row < 3; row++ {
				sign := float32(1)
				if signBits&(1<<row) != 0 {
					sign = -1
				}
				m[row*3+p[row]] = sign
			}
			if det3(m) > 0 {
				out = append(out, m)
			}
		}
	}
	return out
}

func det3(m [9]float32) float32 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// rotationID returns the wire id for an axis-aligned rotation, or 0 when
// the matrix must be written explicitly. Matching compares bit patterns,
// not float equality, so -0.0 cells never alias a table entry.
func rotationID(rot [9]float32) uint8 {
	for i, m := range axisRotations {
		if rotationBitsEqual(m, rot) {
			return uint8(i + 1)
		}
	}
	return rotationExplicit
}

func rotationBitsEqual(a, b [9]float32) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func writeCFrameColumn(w *colWriter, vals []CFrame) {
	for _, cf := range vals {
		if id := rotationID(cf.Rotation); id != rotationExplicit {
			w.writeU8(id)
			continue
		}
		w.writeU8(rotationExplicit)
		for _, cell := range cf.Rotation {
			w.writeU32(math.Float32bits(cell))
		}
	}
	positions := make([]Vector3, len(vals))
	for i, cf := range vals {
		positions[i] = cf.Position
	}
	writeVector3Column(w, positions)
}

func readCFrameColumn(r *colReader, count int) ([]CFrame, error) {
	vals := make([]CFrame, count)
	for i := range vals {
		id, err := r.readU8()
		if err != nil {
			return nil, err
		}
		switch {
		case id == rotationExplicit:
			for cell := 0; cell < 9; cell++ {
				u, err := r.readU32()
				if err != nil {
					return nil, err
				}
				vals[i].Rotation[cell] = math.Float32frombits(u)
			}
		case int(id) <= len(axisRotations):
			vals[i].Rotation = axisRotations[id-1]
		default:
			return nil, fmt.Errorf("unknown rotation id 0x%02x", id)
		}
	}
	positions, err := readVector3Column(r, count)
	if err != nil {
		return nil, err
	}
	for i := range vals {
		vals[i].Position = positions[i]
	}
	return vals, nil
}
