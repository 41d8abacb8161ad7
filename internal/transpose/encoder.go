package transpose

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
)

// Encoder builds transposed chunk payloads from a batch of records
// (spec.md §4.4.8). Unlike the real format's tag interning (common-
// suffix sharing across records, inline-numeric subtype folding), this
// port gives every record its own linear chain of nodes and packs every
// buffer into a single bucket — correct but not space-optimal, a
// tradeoff recorded in DESIGN.md since nothing outside this port reads
// the resulting bytes.
type Encoder struct {
	Tag  envelope.Tag
	Opts envelope.CodecOptions
}

// NewEncoder returns an Encoder that compresses buckets, header, and
// transitions under tag.
func NewEncoder(tag envelope.Tag, opts envelope.CodecOptions) *Encoder {
	return &Encoder{Tag: tag, Opts: opts}
}

// step is one forward-order element of a record's tag trace, carrying
// everything needed to place it into the global node table once every
// record's trace has been built and reversed.
type step struct {
	callback    CallbackType
	tag         uint64
	tagData     []byte
	bufKey      string
	varintWidth int
	value       []byte
	field       uint32
}

// EncodeChunk builds one transposed chunk payload for records, returning
// the payload bytes (ready to hand to the chunk writer) and the
// logical decoded size (the sum of the records' own lengths).
func (e *Encoder) EncodeChunk(records [][]byte) ([]byte, uint64, error) {
	var global []step
	var decodedSize uint64
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		decodedSize += uint64(len(rec))
		fwd := buildRecordSteps(rec)
		reverseSteps(fwd)
		global = append(global, fwd...)
	}

	bufOrder := make([]string, 0)
	bufIndex := map[string]int{}
	bufBytes := map[string]*bytes.Buffer{}
	getBuf := func(key string) int {
		if idx, ok := bufIndex[key]; ok {
			return idx
		}
		idx := len(bufOrder)
		bufIndex[key] = idx
		bufOrder = append(bufOrder, key)
		bufBytes[key] = &bytes.Buffer{}
		return idx
	}

	const nonProtoLenKey = "\x00nonproto_len"
	nonProtoLenBuf := noBuffer

	nodes := make([]Node, len(global))
	for i, s := range global {
		n := Node{
			Callback:        s.callback,
			Tag:             s.tag,
			TagData:         s.tagData,
			Buffer:          noBuffer,
			VarintWidth:     s.varintWidth,
			Next:            i + 1,
			SubmessageField: s.field,
		}
		if s.callback == NonProto {
			if nonProtoLenBuf == noBuffer {
				nonProtoLenBuf = getBuf(nonProtoLenKey)
			}
			lenPrefix := bytestream.PutVarint(nil, uint64(len(s.value)))
			bufBytes[nonProtoLenKey].Write(lenPrefix)
			n.Buffer = getBuf(s.bufKey)
			bufBytes[s.bufKey].Write(s.value)
		} else if s.bufKey != "" {
			n.Buffer = getBuf(s.bufKey)
			bufBytes[s.bufKey].Write(s.value)
		}
		nodes[i] = n
	}
	if len(nodes) > 0 {
		nodes[len(nodes)-1].Next = -1
	}

	bufSizes := make([]int64, len(bufOrder))
	var bucketRaw bytes.Buffer
	for i, key := range bufOrder {
		b := bufBytes[key].Bytes()
		bufSizes[i] = int64(len(b))
		bucketRaw.Write(b)
	}

	transitions := make([]byte, len(nodes))
	for i, n := range nodes {
		delta := n.Next - i
		if n.Next < 0 {
			delta = 0
		}
		transitions[i] = byte(int8(delta))
	}

	table := &nodeTable{
		Nodes:             nodes,
		FirstNode:         0,
		BufferSizes:       bufSizes,
		NonProtoLenBuffer: nonProtoLenBuf,
	}
	p := &payload{
		Tag:         e.Tag,
		Table:       table,
		Buckets:     [][]byte{bucketRaw.Bytes()},
		Transitions: transitions,
	}
	out, err := p.Encode(e.Opts)
	if err != nil {
		return nil, 0, err
	}
	return out, decodedSize, nil
}

func reverseSteps(s []step) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// buildRecordSteps parses rec as a protobuf message into its forward
// tag trace, preceded by a synthetic MESSAGE_START marker, or falls
// back to a single NON_PROTO step if rec doesn't parse.
func buildRecordSteps(rec []byte) []step {
	steps := []step{{callback: MessageStart, tag: StartOfMessageTag}}
	events, ok := parseRecord(rec)
	if !ok {
		steps = append(steps, step{
			callback: NonProto,
			tag:      NonProtoTag,
			bufKey:   "nonproto:val",
			value:    rec,
		})
		return steps
	}
	return append(steps, convertEvents(events)...)
}

func bufKey(num protowire.Number, kind string) string {
	return fmt.Sprintf("%d:%s", num, kind)
}

func convertEvents(events []event) []step {
	out := make([]step, 0, len(events))
	for _, ev := range events {
		switch ev.kind {
		case evVarint:
			val := bytestream.PutVarint(nil, ev.varint)
			out = append(out, step{
				callback:    Varint,
				tag:         protowire.EncodeTag(ev.num, protowire.VarintType),
				tagData:     encodeTag(ev.num, protowire.VarintType),
				bufKey:      bufKey(ev.num, "v"),
				varintWidth: len(val),
				value:       val,
				field:       uint32(ev.num),
			})
		case evFixed32:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], ev.fixed32)
			out = append(out, step{
				callback: Fixed32,
				tag:      protowire.EncodeTag(ev.num, protowire.Fixed32Type),
				tagData:  encodeTag(ev.num, protowire.Fixed32Type),
				bufKey:   bufKey(ev.num, "f32"),
				value:    append([]byte{}, b[:]...),
				field:    uint32(ev.num),
			})
		case evFixed64:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], ev.fixed64)
			out = append(out, step{
				callback: Fixed64,
				tag:      protowire.EncodeTag(ev.num, protowire.Fixed64Type),
				tagData:  encodeTag(ev.num, protowire.Fixed64Type),
				bufKey:   bufKey(ev.num, "f64"),
				value:    append([]byte{}, b[:]...),
				field:    uint32(ev.num),
			})
		case evString:
			lenPrefix := bytestream.PutVarint(nil, uint64(len(ev.bytes)))
			value := append(lenPrefix, ev.bytes...)
			out = append(out, step{
				callback: String,
				tag:      protowire.EncodeTag(ev.num, protowire.BytesType),
				tagData:  encodeTag(ev.num, protowire.BytesType),
				bufKey:   bufKey(ev.num, "s"),
				value:    value,
				field:    uint32(ev.num),
			})
		case evSubmessageStart:
			out = append(out, step{
				callback: SubmessageStart,
				tag:      StartOfSubmsgTag,
				field:    uint32(ev.num),
			})
		case evSubmessageEnd:
			out = append(out, step{
				callback: SubmessageEnd,
				tag:      submessageEndTag(ev.num),
				tagData:  encodeTag(ev.num, protowire.BytesType),
				field:    uint32(ev.num),
			})
		}
	}
	return out
}
