package envelope

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdWriterKey identifies a reusable zstd encoder by the configuration
// that shapes its internal tables; encoders with different levels or
// window sizes cannot share a pool entry.
type zstdWriterKey struct {
	level     zstd.EncoderLevel
	windowLog int
}

// zstdPools recycles zstd.Encoder objects keyed by configuration, the
// same way the teacher's scannerFreePool recycles *scannerv2 and
// recordiozstd's tmpBufPool recycles scratch buffers (scannerv2.go,
// recordiozstd.go): constructing an *encoder table is the expensive
// part, not compressing any one chunk.
var zstdPools sync.Map // zstdWriterKey -> *sync.Pool

func zstdPoolFor(key zstdWriterKey) *sync.Pool {
	if p, ok := zstdPools.Load(key); ok {
		return p.(*sync.Pool)
	}
	p, _ := zstdPools.LoadOrStore(key, &sync.Pool{
		New: func() interface{} {
			opts := []zstd.EOption{zstd.WithEncoderLevel(key.level)}
			if key.windowLog >= 10 {
				opts = append(opts, zstd.WithWindowSize(1<<uint(key.windowLog)))
			}
			enc, err := zstd.NewWriter(nil, opts...)
			if err != nil {
				panic(err) // configuration was already validated by the caller
			}
			return enc
		},
	})
	return p.(*sync.Pool)
}

// getZstdEncoder borrows an *zstd.Encoder configured per opts; the
// caller binds it to its sink with Reset. putZstdEncoder returns it to
// the pool once the caller is done; the encoder must already be Close()d or Reset() by the caller.
func getZstdEncoder(opts CodecOptions) (*zstd.Encoder, *sync.Pool) {
	key := zstdWriterKey{level: zstdLevel(opts.CompressionLevel), windowLog: opts.WindowLog}
	pool := zstdPoolFor(key)
	return pool.Get().(*zstd.Encoder), pool
}

func putZstdEncoder(enc *zstd.Encoder, pool *sync.Pool) {
	pool.Put(enc)
}

// scratchPool recycles the flat byte slices used to present a non-
// contiguous compressed bucket to a streaming decompressor, the Go
// equivalent of recordiozstd.go's tmpBufPool / recordioiov.Slice
// flattening idiom.
var scratchPool = sync.Pool{New: func() interface{} { return make([]byte, 0, 64<<10) }}

// GetScratch borrows a scratch slice with at least the given capacity.
func GetScratch(capacityHint int) []byte {
	buf := scratchPool.Get().([]byte)
	if cap(buf) < capacityHint {
		buf = make([]byte, 0, capacityHint)
	}
	return buf[:0]
}

// PutScratch returns a scratch slice obtained from GetScratch.
func PutScratch(buf []byte) {
	scratchPool.Put(buf[:0])
}
