package chunk

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes a container to an io.Writer: one header, then chunks.
type Writer struct {
	w           io.Writer
	codec       Codec
	minCompress int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec selects the compression codec for chunk bodies. The default
// is Zstd.
func WithCodec(c Codec) WriterOption {
	return func(w *Writer) {
		w.codec = c
	}
}

// WithMinCompress sets the body size below which compression is skipped
// and the body stored verbatim (default 64 bytes). Tiny bodies rarely
// shrink and the codec id in each chunk header keeps mixed streams
// readable.
func WithMinCompress(n int) WriterOption {
	return func(w *Writer) {
		w.minCompress = n
	}
}

// NewWriter creates a container writer.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{
		w:           w,
		codec:       Zstd,
		minCompress: 64,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return writer
}

// WriteHeader writes the file header. It must be called once, before any
// chunk.
func (w *Writer) WriteHeader(h Header) error {
	buf := make([]byte, headerSize)
	copy(buf, magic[:])
	off := len(magic)
	binary.LittleEndian.PutUint16(buf[off:], Version)
	binary.LittleEndian.PutUint32(buf[off+2:], h.ClassCount)
	binary.LittleEndian.PutUint32(buf[off+6:], h.InstanceCount)
	// Reserved u16 stays zero.
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteChunk frames and writes one chunk. The body is compressed with
// the writer's codec unless it is small or compression does not shrink
// it, in which case it is stored verbatim with the None codec id.
func (w *Writer) WriteChunk(kind Kind, body []byte) error {
	codec := w.codec
	stored := body
	if codec.ID() != codecNoneID && len(body) >= w.minCompress {
		if c := codec.Compress(body); len(c) < len(body) {
			stored = c
		} else {
			codec = None
		}
	} else {
		codec = None
	}

	frame := make([]byte, frameSize)
	copy(frame, kind[:])
	frame[4] = codec.ID()
	// frame[5:8] reserved.
	binary.LittleEndian.PutUint32(frame[8:], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[12:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(frame[16:], checksum(stored))

	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write %s chunk header: %w", kind, err)
	}
	if _, err := w.w.Write(stored); err != nil {
		return fmt.Errorf("write %s chunk body: %w", kind, err)
	}
	return nil
}
