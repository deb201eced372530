// Package chunk implements the grove binary container framing.
//
// A container is a fixed file header followed by typed, length-delimited
// chunks, each independently compressed by a pluggable codec and guarded
// by a CRC-32:
//
//	magic[12] version:u16 classCount:u32 instanceCount:u32 reserved:u16
//	( kind[4] codec:u8 reserved[3] rawLen:u32 storedLen:u32 crc:u32
//	  body[storedLen] )*
//
// All integers are little-endian. Chunk headers are never compressed;
// CRC-32 (IEEE) covers the stored body bytes exactly as they appear in
// the stream. The framing layer knows nothing about chunk payloads.
package chunk

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// Version is the container format version this package writes.
const Version uint16 = 1

// magic opens every container. The trailing guard bytes catch 7-bit
// strippers and newline-translating transports before any chunk parsing
// starts.
var magic = [12]byte{'G', 'R', 'O', 'V', 'E', '!', 0x89, 0xFF, '\r', '\n', 0x1A, '\n'}

// headerSize is the fixed file header length in bytes.
const headerSize = len(magic) + 2 + 4 + 4 + 2

// frameSize is the fixed per-chunk header length in bytes.
const frameSize = 4 + 1 + 3 + 4 + 4 + 4

// DefaultMaxBody caps how large a single decompressed chunk body may be
// before the reader refuses it.
const DefaultMaxBody = 256 << 20 // 256 MiB

// Kind is a chunk's four-character code.
type Kind [4]byte

// Chunk kinds in their required stream order: instance declarations,
// property blocks, parent edges, terminal marker. META may appear
// anywhere before END.
var (
	KindMeta     = Kind{'M', 'E', 'T', 'A'}
	KindInstance = Kind{'I', 'N', 'S', 'T'}
	KindProperty = Kind{'P', 'R', 'O', 'P'}
	KindParent   = Kind{'P', 'R', 'N', 'T'}
	KindEnd      = Kind{'E', 'N', 'D', 0}
)

// String returns the printable code, dropping padding bytes.
func (k Kind) String() string {
	n := len(k)
	for n > 0 && k[n-1] == 0 {
		n--
	}
	return string(k[:n])
}

// Header is the decoded file header. The class and instance counts are
// hints for preallocation; the chunk sequence is authoritative.
type Header struct {
	Version       uint16
	ClassCount    uint32
	InstanceCount uint32
}

// Chunk is one decoded chunk: kind, decompressed body, and the number of
// stream bytes the chunk occupied (frame header plus stored body).
// CodecID and StoredSize describe how the body sat on the wire.
type Chunk struct {
	Kind       Kind
	Body       []byte
	WireSize   int
	CodecID    uint8
	StoredSize int
}

// crcTable is the IEEE CRC-32 table.
var crcTable = crc32.MakeTable(crc32.IEEE)

// checksum computes CRC-32 IEEE of the given bytes.
func checksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// ============================================================
// Errors
// ============================================================

// ErrBadMagic reports that the stream does not start with the container
// magic, including streams damaged by text-mode transports.
var ErrBadMagic = errors.New("bad magic: not a grove container")

// VersionError reports a container written by an unknown format version.
type VersionError struct {
	Version uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported container version %d (have %d)", e.Version, Version)
}

// CRCError reports a chunk whose stored bytes do not match their CRC.
type CRCError struct {
	Kind     Kind
	Expected uint32
	Got      uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("%s chunk: crc mismatch: expected %08x, got %08x", e.Kind, e.Expected, e.Got)
}

// UnknownCodecError reports a chunk compressed with a codec id this
// build does not know.
type UnknownCodecError struct {
	ID uint8
}

func (e *UnknownCodecError) Error() string {
	return fmt.Sprintf("unknown chunk codec id %d", e.ID)
}

// BodyTooLargeError reports a chunk whose declared body exceeds the
// reader's limit.
type BodyTooLargeError struct {
	Kind Kind
	Size int
	Max  int
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("%s chunk: body too large: %d > %d", e.Kind, e.Size, e.Max)
}
