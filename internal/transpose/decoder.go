package transpose

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// excludedID marks "inside a submessage the projection excluded"; kept
// distinct from Invalid (the root sentinel) so a lookup under an
// excluded subtree can short-circuit instead of accidentally matching
// an unrelated root-level path that happens to reuse the same field
// numbers.
const excludedID = Invalid - 1

// includeAllID marks "inside a submessage a Fully include covers"; once
// pushed onto projStack, every field beneath it (however deep) resolves
// as Fully included without any further projection-tree lookup, since
// AddPath never materializes nodes for a Fully path's descendants.
const includeAllID = Invalid - 2

// submessageFrame is one entry of the decoder's length-computation
// stack (spec.md §4.4.4): pushed at SUBMESSAGE_END (visited first,
// since the decoder walks each record in reverse), popped at the
// matching SUBMESSAGE_START once every byte of the submessage's content
// has been prepended.
type submessageFrame struct {
	pos     int64
	tagData []byte
}

// Decoder reconstructs the original per-record protobuf bytes from a
// transposed chunk payload (spec.md §4.4.3/§4.4.4).
type Decoder struct {
	Projection *FieldProjection
}

// NewDecoder returns a Decoder. A nil or empty Projection decodes every
// field.
func NewDecoder(projection *FieldProjection) *Decoder {
	return &Decoder{Projection: projection}
}

// Decode parses a transposed chunk's raw payload (as stored by the
// chunk writer, after the 40-byte chunk header) into numRecords
// records, in original order.
func (d *Decoder) Decode(raw []byte, numRecords uint64) ([][]byte, error) {
	table, buckets, transitions, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	if err := checkNoImplicitLoop(table.Nodes); err != nil {
		return nil, err
	}

	cursors := make([]*bufferCursor, len(table.BufferSizes))
	bucketOf := make([]int, len(table.BufferSizes))
	{
		idx := 0
		for bi, count := range table.bucketBufferCounts {
			for j := 0; j < count; j++ {
				bucketOf[idx] = bi
				idx++
			}
		}
	}
	cursorFor := func(i int) (*bufferCursor, error) {
		if i < 0 || i >= len(cursors) {
			return nil, rerror.New(rerror.DataLoss, "node references out-of-range buffer %d", i)
		}
		if cursors[i] == nil {
			b, err := buckets[bucketOf[i]].Buffer(indexWithinBucket(table, i))
			if err != nil {
				return nil, err
			}
			cursors[i] = &bufferCursor{data: b}
		}
		return cursors[i], nil
	}

	bw := bytestream.NewChainBackwardWriter(0)
	var stack []submessageFrame
	projStack := []uint32{Invalid}
	var limits []int64
	node := table.FirstNode
	var recordsDone uint64
	transPos := 0

	for recordsDone < numRecords {
		if node < 0 || node >= len(table.Nodes) {
			return nil, rerror.New(rerror.DataLoss, "transposed chunk: node index %d out of range", node)
		}
		n := &table.Nodes[node]
		advanced, err := d.execNode(n, table.NonProtoLenBuffer, bw, &stack, &projStack, &limits, cursorFor)
		if err != nil {
			return nil, err
		}
		if advanced {
			recordsDone++
		}
		if n.Callback.IsImplicit() {
			node = n.Next
			continue
		}
		if transPos >= len(transitions) {
			return nil, rerror.New(rerror.DataLoss, "transposed chunk: transitions stream exhausted")
		}
		delta := int(int8(transitions[transPos]))
		transPos++
		node += delta
	}
	if len(stack) != 0 {
		return nil, rerror.New(rerror.DataLoss, "transposed chunk: unterminated submessage")
	}

	total := bw.Len()
	lens := make([]int64, len(limits))
	var prev int64
	for i, l := range limits {
		lens[i] = l - prev
		prev = l
	}
	if prev != total {
		return nil, rerror.New(rerror.DataLoss, "transposed chunk: record boundaries don't cover the decoded stream")
	}
	reverseInt64(lens)

	flat := bw.Bytes()
	records := make([][]byte, len(lens))
	var off int64
	for i, l := range lens {
		records[i] = flat[off : off+l]
		off += l
	}
	return records, nil
}

// indexWithinBucket converts a global buffer index into its position
// within its own bucket, since DataBucket.Buffer is indexed locally.
func indexWithinBucket(t *nodeTable, global int) int {
	idx := 0
	for _, count := range t.bucketBufferCounts {
		if global < idx+count {
			return global - idx
		}
		idx += count
	}
	return global - idx
}

func reverseInt64(s []int64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// execNode runs one node's effect, honoring field projection, and
// reports whether it completed a record (MESSAGE_START).
func (d *Decoder) execNode(
	n *Node,
	nonProtoLenBuf int,
	bw *bytestream.ChainBackwardWriter,
	stack *[]submessageFrame,
	projStack *[]uint32,
	limits *[]int64,
	cursorFor func(int) (*bufferCursor, error),
) (bool, error) {
	top := (*projStack)[len(*projStack)-1]
	include, writable := d.resolve(top, n.SubmessageField)

	switch n.Callback.Base() {
	case NoOp, Failure:
		if n.Callback.Base() == Failure {
			return false, rerror.New(rerror.DataLoss, "transposed chunk: hit a guard node")
		}
		return false, nil

	case MessageStart:
		*limits = append(*limits, bw.Len())
		return true, nil

	case NonProto:
		lenCur, err := cursorFor(nonProtoLenBuf)
		if err != nil {
			return false, err
		}
		valCur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		n2, err := lenCur.takeVarint()
		if err != nil {
			return false, err
		}
		b, err := valCur.take(int(n2))
		if err != nil {
			return false, err
		}
		if !bw.Write(b) {
			return false, bw.Status()
		}
		return false, nil

	case SubmessageEnd:
		childID, excl := d.childProjection(top, n.SubmessageField)
		if excl {
			// Not included: skip emitting anything for this submessage,
			// but still push/pop a frame pair so the matching START's
			// backward-stack arithmetic stays balanced.
			*stack = append(*stack, submessageFrame{})
			*projStack = append(*projStack, excludedID)
			return false, nil
		}
		*stack = append(*stack, submessageFrame{pos: bw.Len(), tagData: n.TagData})
		if include == ExistenceOnly {
			*projStack = append(*projStack, excludedID)
		} else {
			*projStack = append(*projStack, childID)
		}
		return false, nil

	case SubmessageStart:
		*projStack = (*projStack)[:len(*projStack)-1]
		frame := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		if frame.tagData == nil {
			return false, nil
		}
		length := bw.Len() - frame.pos
		if !bw.WriteVarint(uint64(length)) || !bw.Write(frame.tagData) {
			return false, bw.Status()
		}
		return false, nil

	case Varint:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		raw, err := cur.take(n.VarintWidth)
		if err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		if include == ExistenceOnly {
			return false, writeTagAndBytes(bw, n.TagData, []byte{0})
		}
		return false, writeTagAndBytes(bw, n.TagData, raw)

	case Fixed32:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		raw, err := cur.take(4)
		if err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		if include == ExistenceOnly {
			return false, writeTagAndBytes(bw, n.TagData, []byte{0, 0, 0, 0})
		}
		return false, writeTagAndBytes(bw, n.TagData, raw)

	case Fixed32Existence:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		if _, err := cur.take(4); err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		return false, writeTagAndBytes(bw, n.TagData, []byte{0, 0, 0, 0})

	case Fixed64:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		raw, err := cur.take(8)
		if err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		if include == ExistenceOnly {
			return false, writeTagAndBytes(bw, n.TagData, make([]byte, 8))
		}
		return false, writeTagAndBytes(bw, n.TagData, raw)

	case Fixed64Existence:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		if _, err := cur.take(8); err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		return false, writeTagAndBytes(bw, n.TagData, make([]byte, 8))

	case String:
		cur, err := cursorFor(n.Buffer)
		if err != nil {
			return false, err
		}
		slen, err := cur.takeVarint()
		if err != nil {
			return false, err
		}
		raw, err := cur.take(int(slen))
		if err != nil {
			return false, err
		}
		if !writable {
			return false, nil
		}
		if include == ExistenceOnly {
			raw = nil
		}
		if !bw.Write(raw) || !bw.WriteVarint(uint64(len(raw))) || !bw.Write(n.TagData) {
			return false, bw.Status()
		}
		return false, nil

	case CopyTag:
		if !writable {
			return false, nil
		}
		if !bw.Write(n.TagData) {
			return false, bw.Status()
		}
		return false, nil

	case SkippedSubmessageStart, SkippedSubmessageEnd:
		return false, nil

	default:
		return false, rerror.New(rerror.DataLoss, "transposed chunk: unhandled callback %s", n.Callback)
	}
}

// writeTagAndBytes prepends value then tag (backward-writer order: the
// last Write ends up first in Bytes()), so the final forward bytes read
// tag-then-value.
func writeTagAndBytes(bw *bytestream.ChainBackwardWriter, tagData, value []byte) error {
	if !bw.Write(value) || !bw.Write(tagData) {
		return bw.Status()
	}
	return nil
}

// resolve looks up field under the current projection-tree node top,
// returning whether it should be written at all and, if so, how fully.
func (d *Decoder) resolve(top uint32, field uint32) (IncludeType, bool) {
	if top == excludedID {
		return 0, false
	}
	if top == includeAllID {
		return Fully, true
	}
	if d.Projection.Empty() {
		return Fully, true
	}
	_, include, found := d.Projection.Resolve(top, field)
	if !found {
		return 0, false
	}
	return include, true
}

// childProjection resolves the node id a submesage's content should
// use as its own projStack top, or reports that the submessage is
// excluded outright. A Fully-included submessage has no projection
// nodes of its own beneath it (AddPath only records the path actually
// given), so its content is handed includeAllID rather than its literal
// node id, propagating "everything beneath this is included" down
// through arbitrarily nested submessages.
func (d *Decoder) childProjection(top uint32, field uint32) (childID uint32, excluded bool) {
	if top == excludedID {
		return excludedID, true
	}
	if top == includeAllID {
		return includeAllID, false
	}
	if d.Projection.Empty() {
		return Invalid, false
	}
	id, include, found := d.Projection.Resolve(top, field)
	if !found {
		return excludedID, true
	}
	if include == Fully {
		return includeAllID, false
	}
	return id, false
}
