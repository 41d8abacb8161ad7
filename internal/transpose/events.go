package transpose

import "google.golang.org/protobuf/encoding/protowire"

// eventKind tags the union in event.
type eventKind int

const (
	evVarint eventKind = iota
	evFixed32
	evFixed64
	evString
	evSubmessageStart
	evSubmessageEnd
)

// event is one step of a record's linear tag trace (spec.md §4.4.8
// step 1), in the forward order fields appear in the serialized
// message.
type event struct {
	kind     eventKind
	num      protowire.Number
	varint   uint64
	fixed32  uint32
	fixed64  uint64
	bytes    []byte
}

// parseRecord scans data as a top-level protobuf message and returns
// its linear event trace. ok is false if data isn't valid protobuf, in
// which case the caller should fall back to a NON_PROTO node instead.
func parseRecord(data []byte) (events []event, ok bool) {
	return parseMessage(data)
}

// parseMessage recursively scans one message's bytes into events,
// recursing into length-delimited fields that themselves parse as
// valid submessages — the same "try it and see" heuristic any
// protobuf-agnostic transposer must use, since the wire format cannot
// otherwise distinguish a submessage from a string/bytes field.
func parseMessage(data []byte) ([]event, bool) {
	var events []event
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, false
		}
		rest = rest[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, false
			}
			rest = rest[n:]
			events = append(events, event{kind: evVarint, num: num, varint: v})
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return nil, false
			}
			rest = rest[n:]
			events = append(events, event{kind: evFixed32, num: num, fixed32: v})
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return nil, false
			}
			rest = rest[n:]
			events = append(events, event{kind: evFixed64, num: num, fixed64: v})
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, false
			}
			rest = rest[n:]
			if inner, ok := parseMessage(b); ok {
				events = append(events, event{kind: evSubmessageStart, num: num})
				events = append(events, inner...)
				events = append(events, event{kind: evSubmessageEnd, num: num})
			} else {
				events = append(events, event{kind: evString, num: num, bytes: b})
			}
		default:
			// Groups and unknown wire types aren't supported by this
			// port's projection model; the caller falls back to treating
			// the whole record as an opaque NON_PROTO blob.
			return nil, false
		}
	}
	return events, true
}
