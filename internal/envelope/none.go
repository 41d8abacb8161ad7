package envelope

import (
	"io"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
)

// noneCodec is the identity transform (tag 0): no ecosystem compressor
// has an "uncompressed" mode worth wrapping, so this one stays on the
// standard library by design.
type noneCodec struct{}

func init() { Register(noneCodec{}) }

func (noneCodec) Tag() Tag { return TagNone }

func (noneCodec) NewWriter(w bytestream.Writer, _ CodecOptions) (io.WriteCloser, error) {
	return nopWriteCloser{asIOWriter{w}}, nil
}

func (noneCodec) NewReader(r io.Reader, _ CodecOptions) (io.ReadCloser, error) {
	return nopReadCloser{r}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }
