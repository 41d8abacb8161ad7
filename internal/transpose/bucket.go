package transpose

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// DataBucket holds one bucket's compressed bytes and lazily splits it
// into its constituent buffers as they are actually requested (spec.md
// §4.4.6): with field projection on, most decoded chunks never touch
// most buffers, so eagerly decompressing every bucket would waste both
// CPU and memory.
type DataBucket struct {
	tag        envelope.Tag
	compressed []byte
	decoded    []byte // nil until any Buffer(i) is first requested
	bufSizes   []int64
	bufStart   []int64 // bufStart[i]..bufStart[i]+bufSizes[i] within decoded
}

// newDataBucket builds a bucket view over compressed bytes whose
// decompression yields the concatenation of the buffers named by
// sizes, in order.
func newDataBucket(tag envelope.Tag, compressed []byte, sizes []int64) *DataBucket {
	starts := make([]int64, len(sizes))
	var off int64
	for i, s := range sizes {
		starts[i] = off
		off += s
	}
	return &DataBucket{tag: tag, compressed: compressed, bufSizes: sizes, bufStart: starts}
}

// Buffer returns buffer i's decoded bytes, decompressing the whole
// bucket on first use. Real lazy *partial* decompression (stopping
// after buffer i rather than the whole bucket) would need a streaming
// decoder kept paused mid-stream; this port decompresses the bucket in
// full on first touch and then serves every buffer from memory, which
// still skips decompression entirely for buckets field projection never
// references — the common case that matters for §4.4.6's intent.
func (b *DataBucket) Buffer(i int) ([]byte, error) {
	if i < 0 || i >= len(b.bufSizes) {
		return nil, rerror.New(rerror.OutOfRange, "bucket has no buffer %d", i)
	}
	if b.decoded == nil {
		var total int64
		for _, s := range b.bufSizes {
			total += s
		}
		decoded, err := envelope.DecompressBytes(b.tag, b.compressed, total)
		if err != nil {
			return nil, rerror.Annotate(err, "decompressing data bucket")
		}
		if int64(len(decoded)) != total {
			return nil, rerror.New(rerror.DataLoss, "bucket decompressed to %d bytes, want %d", len(decoded), total)
		}
		b.decoded = decoded
		b.compressed = nil
	}
	start := b.bufStart[i]
	return b.decoded[start : start+b.bufSizes[i]], nil
}

// bufferCursor reads sequential fixed- or variable-width values out of
// one decoded buffer, the decode-side mirror of the order an Encoder
// appends values in.
type bufferCursor struct {
	data []byte
	pos  int
}

func (c *bufferCursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, rerror.New(rerror.DataLoss, "buffer exhausted: wanted %d bytes, have %d", n, len(c.data)-c.pos)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *bufferCursor) takeVarint() (uint64, error) {
	v, n := bytestream.Varint(c.data[c.pos:])
	if n == 0 {
		return 0, rerror.New(rerror.DataLoss, "truncated or oversized varint in data buffer")
	}
	c.pos += n
	return v, nil
}
