package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads a container from an io.Reader.
type Reader struct {
	r         io.Reader
	maxBody   int
	verifyCRC bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxBody sets the maximum decompressed body size accepted for a
// single chunk (default DefaultMaxBody).
func WithMaxBody(n int) ReaderOption {
	return func(r *Reader) {
		r.maxBody = n
	}
}

// WithoutCRCVerification disables CRC checking, e.g. when re-reading a
// stream that was already verified.
func WithoutCRCVerification() ReaderOption {
	return func(r *Reader) {
		r.verifyCRC = false
	}
}

// NewReader creates a container reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		r:         r,
		maxBody:   DefaultMaxBody,
		verifyCRC: true,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// ReadHeader reads and validates the file header. It must be called
// once, before Next.
func (r *Reader) ReadHeader() (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(buf[:len(magic)], magic[:]) {
		return Header{}, ErrBadMagic
	}
	off := len(magic)
	h := Header{
		Version:       binary.LittleEndian.Uint16(buf[off:]),
		ClassCount:    binary.LittleEndian.Uint32(buf[off+2:]),
		InstanceCount: binary.LittleEndian.Uint32(buf[off+6:]),
	}
	if h.Version != Version {
		return Header{}, &VersionError{Version: h.Version}
	}
	return h, nil
}

// Next reads the next chunk, decompressing and CRC-checking its body.
// It returns io.EOF at a clean end of stream; a stream truncated inside
// a chunk yields io.ErrUnexpectedEOF wrapped in a descriptive error.
//
// Next does not interpret chunk kinds; callers decide when an END chunk
// terminates their walk.
func (r *Reader) Next() (*Chunk, error) {
	frame := make([]byte, frameSize)
	if _, err := io.ReadFull(r.r, frame); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read chunk header: %w", err)
	}

	var kind Kind
	copy(kind[:], frame[:4])
	codecID := frame[4]
	rawLen := int(binary.LittleEndian.Uint32(frame[8:]))
	storedLen := int(binary.LittleEndian.Uint32(frame[12:]))
	crc := binary.LittleEndian.Uint32(frame[16:])

	if rawLen > r.maxBody {
		return nil, &BodyTooLargeError{Kind: kind, Size: rawLen, Max: r.maxBody}
	}
	if storedLen > r.maxBody {
		return nil, &BodyTooLargeError{Kind: kind, Size: storedLen, Max: r.maxBody}
	}

	stored := make([]byte, storedLen)
	if _, err := io.ReadFull(r.r, stored); err != nil {
		return nil, fmt.Errorf("read %s chunk body: %w", kind, err)
	}

	if r.verifyCRC {
		if got := checksum(stored); got != crc {
			return nil, &CRCError{Kind: kind, Expected: crc, Got: got}
		}
	}

	codec, ok := ByID(codecID)
	if !ok {
		return nil, &UnknownCodecError{ID: codecID}
	}
	body, err := codec.Decompress(stored, rawLen)
	if err != nil {
		return nil, fmt.Errorf("decompress %s chunk: %w", kind, err)
	}

	return &Chunk{
		Kind:       kind,
		Body:       body,
		WireSize:   frameSize + storedLen,
		CodecID:    codecID,
		StoredSize: storedLen,
	}, nil
}
