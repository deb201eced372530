package chunk

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses chunk bodies. Implementations must
// be safe for concurrent use; one Codec value is shared by every writer
// and reader in the process.
type Codec interface {
	// ID is the codec byte written into chunk headers.
	ID() uint8
	// Compress returns the stored form of src.
	Compress(src []byte) []byte
	// Decompress inverts Compress. rawLen is the expected decompressed
	// size from the chunk header; a result of any other size is an error.
	Decompress(src []byte, rawLen int) ([]byte, error)
}

// Codec ids as they appear in chunk headers.
const (
	codecNoneID   uint8 = 0
	codecZstdID   uint8 = 1
	codecSnappyID uint8 = 2
)

// The built-in codecs.
var (
	None   Codec = noneCodec{}
	Zstd   Codec = newZstdCodec()
	Snappy Codec = snappyCodec{}
)

// ByID returns the built-in codec with the given header id.
func ByID(id uint8) (Codec, bool) {
	switch id {
	case codecNoneID:
		return None, true
	case codecZstdID:
		return Zstd, true
	case codecSnappyID:
		return Snappy, true
	default:
		return nil, false
	}
}

// CodecName returns a printable name for a codec header id.
func CodecName(id uint8) string {
	switch id {
	case codecNoneID:
		return "none"
	case codecZstdID:
		return "zstd"
	case codecSnappyID:
		return "snappy"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}

// ============================================================
// Implementations
// ============================================================

// noneCodec stores bodies verbatim.
type noneCodec struct{}

func (noneCodec) ID() uint8                  { return codecNoneID }
func (noneCodec) Compress(src []byte) []byte { return src }

func (noneCodec) Decompress(src []byte, rawLen int) ([]byte, error) {
	if len(src) != rawLen {
		return nil, fmt.Errorf("stored length %d disagrees with raw length %d", len(src), rawLen)
	}
	return src, nil
}

// zstdCodec wraps a shared zstd encoder/decoder pair. EncodeAll and
// DecodeAll are stateless with respect to the streams they produce, so
// one pair serves the whole process.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("chunk: init zstd encoder: %v", err))
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("chunk: init zstd decoder: %v", err))
	}
	return &zstdCodec{enc: enc, dec: dec}
}

func (c *zstdCodec) ID() uint8 { return codecZstdID }

func (c *zstdCodec) Compress(src []byte) []byte {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2))
}

func (c *zstdCodec) Decompress(src []byte, rawLen int) ([]byte, error) {
	dst, err := c.dec.DecodeAll(src, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(dst) != rawLen {
		return nil, fmt.Errorf("zstd: decompressed %d bytes, header declared %d", len(dst), rawLen)
	}
	return dst, nil
}

// snappyCodec uses snappy's block format.
type snappyCodec struct{}

func (snappyCodec) ID() uint8 { return codecSnappyID }

func (snappyCodec) Compress(src []byte) []byte {
	return snappy.Encode(nil, src)
}

func (snappyCodec) Decompress(src []byte, rawLen int) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	if len(dst) != rawLen {
		return nil, fmt.Errorf("snappy: decompressed %d bytes, header declared %d", len(dst), rawLen)
	}
	return dst, nil
}
