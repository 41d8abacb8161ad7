// Package transpose implements the L4 columnar chunk codec: a tag
// stream walked by a small state machine, per-field data buckets, and a
// transitions stream, per spec.md §4.4. It is the one layer with no
// direct teacher analogue — grounded instead on protowire for wire-tag
// parsing and internal/envelope's codec registry for bucket and header
// compression.
package transpose

// CallbackType names what a Node does when the decoder's state machine
// visits it (spec.md §4.4.3). The high bit (Implicit) is ORed onto any
// of these to mark the edge to Node.Next as not consuming a transition
// byte; it is kept separate from the base type rather than doubling the
// enum, since every type can carry it.
type CallbackType byte

const (
	NoOp CallbackType = iota
	MessageStart
	SubmessageStart
	SubmessageEnd
	SkippedSubmessageStart
	SkippedSubmessageEnd
	CopyTag
	Varint
	Fixed32
	Fixed64
	Fixed32Existence
	Fixed64Existence
	String
	NonProto
	SelectCallback
	Failure
)

// Implicit marks a node's outgoing edge as not consuming a transitions
// byte; the decoder follows Node.Next directly instead.
const Implicit CallbackType = 0x80

// Base strips the Implicit flag, returning the underlying callback.
func (c CallbackType) Base() CallbackType { return c &^ Implicit }

// IsImplicit reports whether the Implicit flag is set.
func (c CallbackType) IsImplicit() bool { return c&Implicit != 0 }

func (c CallbackType) String() string {
	names := [...]string{
		"NO_OP", "MESSAGE_START", "SUBMESSAGE_START", "SUBMESSAGE_END",
		"SKIPPED_SUBMESSAGE_START", "SKIPPED_SUBMESSAGE_END", "COPY_TAG",
		"VARINT", "FIXED32", "FIXED64", "FIXED32_EXISTENCE",
		"FIXED64_EXISTENCE", "STRING", "NON_PROTO", "SELECT_CALLBACK",
		"FAILURE",
	}
	base := c.Base()
	if int(base) >= len(names) {
		return "UNKNOWN"
	}
	if c.IsImplicit() {
		return names[base] + "+IMPLICIT"
	}
	return names[base]
}

// noBuffer marks a Node that does not draw from any data buffer.
const noBuffer = -1

// Node is one state of the transposed chunk's tag-stream state machine
// (spec.md §4.4.3). Unlike the original format, Callback is stored
// directly per node rather than re-derived from Tag plus decode-time
// context — a size-for-simplicity tradeoff recorded in DESIGN.md, since
// nothing outside this port ever reads the header bytes it produces.
type Node struct {
	Callback CallbackType

	// Tag is the raw tag value as it appears in the tag stream: one of
	// the sentinels NoOpTag/NonProtoTag/StartOfMessageTag/
	// StartOfSubmessageTag, or an actual protobuf wire tag.
	Tag uint64

	// TagData holds the pre-encoded wire-tag bytes this node emits
	// ahead of its value (COPY_TAG/VARINT/FIXED32/FIXED64/STRING), or
	// the start tag a SUBMESSAGE_END node hands to its matching START.
	TagData []byte

	// Buffer is the index into the decoder's flat buffer list this node
	// reads its value from, or noBuffer.
	Buffer int

	// VarintWidth is the number of value bytes a VARINT node reads (its
	// subtype, 1..10); unused by other callback types.
	VarintWidth int

	// Next is the node to visit after this one.
	Next int

	// SubmessageField is the field number a SKIPPED_SUBMESSAGE_{START,END}
	// or SUBMESSAGE_{START,END} node belongs to, used by the field
	// projection resolver.
	SubmessageField uint32
}

// Tag-stream sentinel values (spec.md §4.4.2).
const (
	NoOpTag           uint64 = 0
	NonProtoTag       uint64 = 1
	StartOfMessageTag uint64 = 2
	StartOfSubmsgTag  uint64 = 3
)

// submessageWireType is the internal wire type glued onto a field
// number to form a SUBMESSAGE_END tag (spec.md §4.4.2): real protobuf
// only uses wire types 0-5, so 6 can never collide with a real tag.
const submessageWireType = 6
