package envelope

import (
	"io"

	"github.com/andybalholm/brotli"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
)

// brotliCodec wraps github.com/andybalholm/brotli (pack-grounded via
// kluzzebass-gastrolog's go.mod). Quality and window-log map directly
// onto brotli.WriterOptions; a negative window log means "let the
// library choose" (spec.md §4.2.1).
type brotliCodec struct{}

func init() { Register(brotliCodec{}) }

func (brotliCodec) Tag() Tag { return TagBrotli }

func (brotliCodec) NewWriter(w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error) {
	bw := brotli.NewWriterOptions(asIOWriter{w}, brotli.WriterOptions{
		Quality: brotliQuality(opts.CompressionLevel),
		LGWin:   brotliWindowLog(opts.WindowLog),
	})
	return bw, nil
}

func (brotliCodec) NewReader(r io.Reader, _ CodecOptions) (io.ReadCloser, error) {
	return nopReadCloser{brotli.NewReader(r)}, nil
}

func brotliQuality(level int) int {
	if level <= 0 {
		return brotli.DefaultCompression
	}
	if level > 11 {
		return 11
	}
	return level
}

func brotliWindowLog(windowLog int) int {
	if windowLog < 10 || windowLog > 30 {
		return 0 // let brotli pick its default
	}
	return windowLog
}
