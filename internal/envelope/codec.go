// Package envelope implements the L2 container envelope: compressing,
// digesting, limiting, and length-delimiting wrappers around the L1
// byte-stream primitives.
package envelope

import (
	"io"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// Tag identifies a compression codec on the wire — the single
// "compression byte" that prefixes a chunk's compressed payload.
type Tag byte

const (
	TagNone         Tag = 0
	TagBrotli       Tag = 'b'
	TagZstd         Tag = 'z'
	TagSnappy       Tag = 's'
	TagHadoopSnappy Tag = 'h'
)

// CodecOptions configures a compressor. Only the fields relevant to the
// selected codec are consulted; see the per-codec doc comments.
type CodecOptions struct {
	// CompressionLevel is brotli quality [0..11] or zstd level [-32..22]
	// (default 9), depending on the codec.
	CompressionLevel int
	// WindowLog is brotli's window-log [10..30] or zstd's [10..31]; -1
	// means let the codec choose.
	WindowLog int
	// FinalSize, if >= 0, is the exact decoded size; zstd treats a wrong
	// value as fatal, other codecs ignore it.
	FinalSize int64
	// SizeHint is an informational estimate of the decoded size, used
	// only to presize buffers.
	SizeHint int64
	// StoreChecksum is not consulted by any codec: the zstd writer uses
	// the encoder library's default content-checksum setting whatever
	// its value.
	StoreChecksum bool
	// BufferSize is not consulted by any codec; every codec uses its
	// own default internal buffer size whatever its value.
	BufferSize int
	// BlockSize is the Hadoop-snappy frame size; <= 0 means the codec
	// default.
	BlockSize int
}

// Codec compresses and decompresses chunk payloads for one tag. NewWriter
// wraps a byte-stream sink, returning an io.WriteCloser whose Write calls
// compress incrementally and whose Close flushes the trailing frame.
// NewReader wraps a flat compressed payload, returning an io.ReadCloser
// that decompresses on demand.
type Codec interface {
	Tag() Tag
	NewWriter(w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error)
	NewReader(r io.Reader, opts CodecOptions) (io.ReadCloser, error)
}

// codecRegistry mirrors the teacher's RegisterTransformer/GetUntransformer
// pattern (grailbio-base/recordio/writerv2.go, recordioflate.Init,
// recordiozstd.Init): codecs self-register by tag byte at init time
// instead of the registry hard-coding every implementation.
var codecRegistry = map[Tag]Codec{}

// Register installs c under its own Tag. Re-registering the same tag
// panics, matching the teacher's behavior for duplicate transformer
// names in writerv2.go.
func Register(c Codec) {
	tag := c.Tag()
	if _, dup := codecRegistry[tag]; dup {
		panic("envelope: codec already registered for tag " + string(tag))
	}
	codecRegistry[tag] = c
}

// Lookup returns the codec registered for tag, if any.
func Lookup(tag Tag) (Codec, bool) {
	c, ok := codecRegistry[tag]
	return c, ok
}

// NewWriter resolves tag and wraps w through the codec's writer.
func NewWriter(tag Tag, w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error) {
	c, ok := Lookup(tag)
	if !ok {
		return nil, rerror.New(rerror.InvalidArgument, "envelope: unknown compression tag %q", byte(tag))
	}
	return c.NewWriter(w, opts)
}

// asIOWriter adapts a bytestream.Writer to io.Writer so that third-party
// streaming compressors (which only know io.Writer) can sit directly on
// top of the L1 buffered writer.
type asIOWriter struct {
	w bytestream.Writer
}

func (a asIOWriter) Write(p []byte) (int, error) {
	if !a.w.Write(p) {
		if err := a.w.Status(); err != nil {
			return 0, err
		}
		return 0, io.ErrShortWrite
	}
	return len(p), nil
}

// NewReader resolves tag and wraps r through the codec's reader.
func NewReader(tag Tag, r io.Reader, opts CodecOptions) (io.ReadCloser, error) {
	c, ok := Lookup(tag)
	if !ok {
		return nil, rerror.New(rerror.InvalidArgument, "envelope: unknown compression tag %q", byte(tag))
	}
	return c.NewReader(r, opts)
}
