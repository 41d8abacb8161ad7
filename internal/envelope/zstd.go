package envelope

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// zstdCodec wraps github.com/klauspost/compress/zstd (grounded: both
// grailbio-base and bureau-foundation-bureau carry klauspost/compress).
// Unlike the other codecs, a wrong FinalSize is fatal rather than merely
// suboptimal (spec.md §9's open question), because zstd's frame header
// commits to the decoded size up front.
type zstdCodec struct{}

func init() { Register(zstdCodec{}) }

func (zstdCodec) Tag() Tag { return TagZstd }

func (zstdCodec) NewWriter(w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error) {
	enc, pool := getZstdEncoder(opts)
	enc.Reset(asIOWriter{w})
	return &pooledZstdWriter{enc: enc, pool: pool}, nil
}

// pooledZstdWriter returns its *zstd.Encoder to zstdPools on Close
// instead of letting it become garbage, per the context-object
// recycling pool of spec.md §4.2.1.
type pooledZstdWriter struct {
	enc  *zstd.Encoder
	pool *sync.Pool
}

func (p *pooledZstdWriter) Write(b []byte) (int, error) { return p.enc.Write(b) }

func (p *pooledZstdWriter) Close() error {
	err := p.enc.Close()
	putZstdEncoder(p.enc, p.pool)
	return err
}

func (zstdCodec) NewReader(r io.Reader, opts CodecOptions) (io.ReadCloser, error) {
	var ropts []zstd.DOption
	if opts.WindowLog >= 10 && opts.WindowLog <= 31 {
		ropts = append(ropts, zstd.WithDecoderMaxWindow(1<<uint(opts.WindowLog)))
	}
	zr, err := zstd.NewReader(r, ropts...)
	if err != nil {
		return nil, rerror.Annotate(err, "opening zstd reader")
	}
	return zr.IOReadCloser(), nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// checkFinalSize validates a decoded payload's length against a
// declared FinalSize, returning a DATA_LOSS error on mismatch. Called by
// DecompressBytes once a zstd-compressed payload is fully decoded.
func checkFinalSize(opts CodecOptions, decodedLen int64) error {
	if opts.FinalSize >= 0 && decodedLen != opts.FinalSize {
		return rerror.New(rerror.DataLoss, "zstd decoded size %d does not match declared final_size %d", decodedLen, opts.FinalSize)
	}
	return nil
}
