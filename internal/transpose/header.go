package transpose

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// nodeTable is the decoded form of a transposed chunk's state machine
// plus the bucket/buffer layout it reads from (spec.md §4.4.2).
type nodeTable struct {
	Nodes       []Node
	FirstNode   int
	BufferSizes []int64 // decoded length of each buffer, in bucket order

	// bucketBufferCounts[i] is how many consecutive buffers (starting
	// right after the previous bucket's share) live in bucket i.
	bucketBufferCounts []int
	bucketLengths      []int64 // compressed length of each bucket

	// NonProtoLenBuffer is the shared buffer every NON_PROTO node reads
	// its record's length from, or noBuffer if the chunk has none.
	NonProtoLenBuffer int
}

func appendVarint(dst []byte, x uint64) []byte { return bytestream.PutVarint(dst, x) }

func appendVarints(dst []byte, xs []int64) []byte {
	for _, x := range xs {
		dst = appendVarint(dst, uint64(x))
	}
	return dst
}

// serializeHeader encodes t (including the bucket byte lengths, which
// the caller sets once bucket compression is known) into the varint/raw
// layout spec.md §4.4.2 describes, extended with the extra per-node
// fields this port stores explicitly (see Node's doc comment).
func serializeHeader(t *nodeTable) []byte {
	var buf []byte
	buf = appendVarint(buf, uint64(len(t.bucketBufferCounts)))
	buf = appendVarint(buf, uint64(len(t.BufferSizes)))
	buf = appendVarints(buf, t.bucketLengths)
	for _, c := range t.bucketBufferCounts {
		buf = appendVarint(buf, uint64(c))
	}
	buf = appendVarints(buf, t.BufferSizes)

	buf = appendVarint(buf, uint64(len(t.Nodes)))
	for _, n := range t.Nodes {
		buf = appendVarint(buf, n.Tag)
	}
	for _, n := range t.Nodes {
		buf = append(buf, byte(n.Callback))
	}
	for _, n := range t.Nodes {
		buf = appendVarint(buf, uint64(n.Next))
	}
	for _, n := range t.Nodes {
		buf = append(buf, byte(n.VarintWidth))
	}
	for _, n := range t.Nodes {
		buf = appendVarint(buf, uint64(n.Buffer+1))
	}
	for _, n := range t.Nodes {
		buf = appendVarint(buf, uint64(n.SubmessageField))
	}
	for _, n := range t.Nodes {
		buf = appendVarint(buf, uint64(len(n.TagData)))
	}
	for _, n := range t.Nodes {
		buf = append(buf, n.TagData...)
	}
	buf = appendVarint(buf, uint64(t.FirstNode))
	buf = appendVarint(buf, uint64(t.NonProtoLenBuffer+1))
	return buf
}

// parseHeader is serializeHeader's inverse.
func parseHeader(buf []byte) (*nodeTable, error) {
	r := &byteCursor{data: buf}

	numBuckets, err := r.varint()
	if err != nil {
		return nil, err
	}
	numBuffers, err := r.varint()
	if err != nil {
		return nil, err
	}
	t := &nodeTable{}
	t.bucketLengths = make([]int64, numBuckets)
	for i := range t.bucketLengths {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.bucketLengths[i] = int64(v)
	}
	t.bucketBufferCounts = make([]int, numBuckets)
	for i := range t.bucketBufferCounts {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.bucketBufferCounts[i] = int(v)
	}
	t.BufferSizes = make([]int64, numBuffers)
	for i := range t.BufferSizes {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.BufferSizes[i] = int64(v)
	}

	numNodes, err := r.varint()
	if err != nil {
		return nil, err
	}
	t.Nodes = make([]Node, numNodes)
	for i := range t.Nodes {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].Tag = v
	}
	for i := range t.Nodes {
		b, err := r.byt()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].Callback = CallbackType(b)
	}
	for i := range t.Nodes {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].Next = int(v)
	}
	for i := range t.Nodes {
		b, err := r.byt()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].VarintWidth = int(b)
	}
	for i := range t.Nodes {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].Buffer = int(v) - 1
	}
	for i := range t.Nodes {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		t.Nodes[i].SubmessageField = uint32(v)
	}
	tagLens := make([]int, numNodes)
	for i := range tagLens {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		tagLens[i] = int(v)
	}
	for i, n := range tagLens {
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		t.Nodes[i].TagData = b
	}
	first, err := r.varint()
	if err != nil {
		return nil, err
	}
	t.FirstNode = int(first)
	nonProto, err := r.varint()
	if err != nil {
		return nil, err
	}
	t.NonProtoLenBuffer = int(nonProto) - 1
	return t, nil
}

// byteCursor sequentially consumes a flat byte slice, used to decode
// serializeHeader's output without the streaming-reader overhead the
// rest of this module carries (the whole header is already in memory
// after bucket decompression).
type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) varint() (uint64, error) {
	v, n := bytestream.Varint(c.data[c.pos:])
	if n == 0 {
		return 0, rerror.New(rerror.DataLoss, "truncated varint in node-table header")
	}
	c.pos += n
	return v, nil
}

func (c *byteCursor) byt() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, rerror.New(rerror.DataLoss, "truncated node-table header")
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, rerror.New(rerror.DataLoss, "truncated node-table header")
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// payload is the fully assembled, still-to-be-compressed shape of a
// transposed chunk, handed from Encoder to the chunk writer and back
// out the other side to Decoder.
type payload struct {
	Tag         envelope.Tag
	Table       *nodeTable
	Buckets     [][]byte // raw (pre-compression) bucket bytes
	Transitions []byte   // raw (pre-compression) transitions bytes
}

// Encode compresses the header, each bucket, and the transitions
// stream under p.Tag and assembles them into one flat payload per
// spec.md §4.4.2's top-level framing.
func (p *payload) Encode(opts envelope.CodecOptions) ([]byte, error) {
	p.Table.bucketBufferCounts = make([]int, len(p.Buckets))
	compressedBuckets := make([][]byte, len(p.Buckets))
	bufIdx := 0
	for i, raw := range p.Buckets {
		c, err := envelope.CompressBytes(p.Tag, raw, opts)
		if err != nil {
			return nil, rerror.Annotate(err, "compressing data bucket")
		}
		compressedBuckets[i] = c
		// Every buffer whose decoded bytes fall inside this bucket's raw
		// span belongs to it; buffers are packed contiguously in order.
		count := 0
		var consumed int64
		for bufIdx < len(p.Table.BufferSizes) && consumed < int64(len(raw)) {
			consumed += p.Table.BufferSizes[bufIdx]
			bufIdx++
			count++
		}
		p.Table.bucketBufferCounts[i] = count
	}
	p.Table.bucketLengths = make([]int64, len(compressedBuckets))
	for i, c := range compressedBuckets {
		p.Table.bucketLengths[i] = int64(len(c))
	}

	headerRaw := serializeHeader(p.Table)
	compressedHeader, err := envelope.CompressBytes(p.Tag, headerRaw, opts)
	if err != nil {
		return nil, rerror.Annotate(err, "compressing node-table header")
	}
	compressedTransitions, err := envelope.CompressBytes(p.Tag, p.Transitions, opts)
	if err != nil {
		return nil, rerror.Annotate(err, "compressing transitions stream")
	}

	var out []byte
	out = append(out, byte(p.Tag))
	out = appendVarint(out, uint64(len(compressedHeader)))
	out = append(out, compressedHeader...)
	for _, b := range compressedBuckets {
		out = append(out, b...)
	}
	out = append(out, compressedTransitions...)
	return out, nil
}

// decodePayload reverses Encode, leaving the buckets as lazily
// decompressible DataBuckets and the transitions/header eagerly
// decompressed, since the state machine always needs every transition.
func decodePayload(raw []byte) (*nodeTable, []*DataBucket, []byte, error) {
	if len(raw) < 1 {
		return nil, nil, nil, rerror.New(rerror.DataLoss, "empty transposed chunk payload")
	}
	tag := envelope.Tag(raw[0])
	rest := raw[1:]
	headerLen, n := bytestream.Varint(rest)
	if n == 0 {
		return nil, nil, nil, rerror.New(rerror.DataLoss, "truncated node-table header length")
	}
	rest = rest[n:]
	if int64(len(rest)) < int64(headerLen) {
		return nil, nil, nil, rerror.New(rerror.DataLoss, "truncated node-table header")
	}
	compressedHeader := rest[:headerLen]
	rest = rest[headerLen:]

	// The header's own decoded size isn't known until it's been parsed,
	// so its length is unenforced here.
	headerRaw, err := envelope.DecompressBytes(tag, compressedHeader, -1)
	if err != nil {
		return nil, nil, nil, rerror.Annotate(err, "decompressing node-table header")
	}
	table, err := parseHeader(headerRaw)
	if err != nil {
		return nil, nil, nil, err
	}

	buckets := make([]*DataBucket, len(table.bucketLengths))
	bufIdx := 0
	for i, clen := range table.bucketLengths {
		if int64(len(rest)) < clen {
			return nil, nil, nil, rerror.New(rerror.DataLoss, "truncated data bucket %d", i)
		}
		compressed := rest[:clen]
		rest = rest[clen:]
		count := table.bucketBufferCounts[i]
		sizes := table.BufferSizes[bufIdx : bufIdx+count]
		buckets[i] = newDataBucket(tag, compressed, sizes)
		bufIdx += count
	}

	transitions, err := envelope.DecompressBytes(tag, rest, -1)
	if err != nil {
		return nil, nil, nil, rerror.Annotate(err, "decompressing transitions stream")
	}
	return table, buckets, transitions, nil
}
