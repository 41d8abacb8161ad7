package envelope

import (
	"bytes"
	"io"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// memSink adapts a *bytes.Buffer to io.WriteCloser so a Codec's streaming
// writer can target memory instead of a real sink.
type memSink struct{ buf *bytes.Buffer }

func (memSink) Close() error { return nil }

func (m memSink) Write(p []byte) (int, error) { return m.buf.Write(p) }

// CompressBytes runs data through tag's codec in one shot, used by
// internal/transpose to compress the node-table header, each data
// bucket, and the transitions stream — self-contained blobs rather than
// the streaming chunk payloads the rest of this package targets.
func CompressBytes(tag Tag, data []byte, opts CodecOptions) ([]byte, error) {
	var buf bytes.Buffer
	sink := bytestream.Owned[io.WriteCloser](memSink{&buf})
	bw := bytestream.NewBufferedWriter(sink, 4096)
	cw, err := NewWriter(tag, bw, opts)
	if err != nil {
		return nil, err
	}
	if _, err := cw.Write(data); err != nil {
		return nil, rerror.Annotate(err, "compressing")
	}
	if err := cw.Close(); err != nil {
		return nil, rerror.Annotate(err, "closing compressor")
	}
	if !bw.Flush(bytestream.FromObject) {
		if err := bw.Status(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecompressBytes reverses CompressBytes. decodedSize is the exact
// decoded length if known (zstd enforces it as fatal on mismatch) or
// -1 if only an estimate is available, used solely to presize the
// output buffer.
func DecompressBytes(tag Tag, compressed []byte, decodedSize int64) ([]byte, error) {
	sizeHint := decodedSize
	if sizeHint < 0 {
		sizeHint = 0
	}
	opts := CodecOptions{FinalSize: decodedSize, SizeHint: sizeHint}
	cr, err := NewReader(tag, bytes.NewReader(compressed), opts)
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	n, err := io.Copy(buf, cr)
	if err != nil {
		return nil, rerror.Annotate(err, "decompressing")
	}
	if tag == TagZstd {
		if err := checkFinalSize(opts, n); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
