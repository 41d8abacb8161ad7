package transpose

import "google.golang.org/protobuf/encoding/protowire"

// encodeTag returns the pre-encoded wire-tag bytes for (num, typ), the
// TagData every value-carrying Node prefixes its output with.
func encodeTag(num protowire.Number, typ protowire.Type) []byte {
	return protowire.AppendTag(nil, num, typ)
}

// submessageEndTag packs a field number and the internal
// submessageWireType into the same numeric space as a real wire tag,
// so SUBMESSAGE_END nodes can be told apart from ordinary value tags
// purely by inspecting Node.Tag (spec.md §4.4.2).
func submessageEndTag(num protowire.Number) uint64 {
	return uint64(num)<<3 | submessageWireType
}
