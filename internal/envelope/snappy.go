package envelope

import (
	"bytes"
	"io"

	"github.com/golang/snappy"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// snappyCodec wraps github.com/golang/snappy, the original implementation's
// own chosen algorithm for this tag (_examples/original_source/riegeli/snappy).
// Not present in any pack go.mod, so it is named rather than pack-grounded
// — see DESIGN.md.
//
// snappy.Writer is a block codec, not a streaming one: it has no partial
// flush, so this codec buffers the whole payload and emits one block on
// Close. Chunk payloads are bounded by the chunk's target size, so this
// is the same tradeoff the format already makes for the transpose
// encoder's backward writer.
type snappyCodec struct{}

func init() { Register(snappyCodec{}) }

func (snappyCodec) Tag() Tag { return TagSnappy }

func (snappyCodec) NewWriter(w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	if opts.SizeHint > 0 {
		buf.Grow(int(opts.SizeHint))
	}
	return &snappyWriter{dst: w, buf: buf}, nil
}

func (snappyCodec) NewReader(r io.Reader, _ CodecOptions) (io.ReadCloser, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, rerror.Annotate(err, "reading snappy frame")
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, rerror.WithKind(rerror.DataLoss, err)
	}
	return nopReadCloser{bytes.NewReader(decoded)}, nil
}

type snappyWriter struct {
	dst bytestream.Writer
	buf *bytes.Buffer
}

func (sw *snappyWriter) Write(p []byte) (int, error) {
	return sw.buf.Write(p)
}

func (sw *snappyWriter) Close() error {
	encoded := snappy.Encode(nil, sw.buf.Bytes())
	if !sw.dst.Write(encoded) {
		if err := sw.dst.Status(); err != nil {
			return err
		}
		return io.ErrShortWrite
	}
	return nil
}
