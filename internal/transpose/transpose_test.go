package transpose

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ChiZhang0907/riegeli/internal/envelope"
)

func buildSubmessage(fieldNum uint32, value uint64) []byte {
	b := protowire.AppendTag(nil, protowire.Number(fieldNum), protowire.VarintType)
	return protowire.AppendVarint(b, value)
}

// sampleRecords returns three records: two exercising varint, fixed32,
// fixed64, string, and nested-submessage fields, plus one record that
// isn't valid protobuf at all.
func sampleRecords() [][]byte {
	r1 := protowire.AppendTag(nil, 1, protowire.VarintType)
	r1 = protowire.AppendVarint(r1, 150)
	r1 = protowire.AppendTag(r1, 2, protowire.BytesType)
	r1 = protowire.AppendBytes(r1, []byte("hello"))
	r1 = protowire.AppendTag(r1, 3, protowire.BytesType)
	r1 = protowire.AppendBytes(r1, buildSubmessage(1, 7))

	r2 := protowire.AppendTag(nil, 5, protowire.Fixed64Type)
	r2 = protowire.AppendFixed64(r2, 1234567890123)
	r2 = protowire.AppendTag(r2, 6, protowire.Fixed32Type)
	r2 = protowire.AppendFixed32(r2, 42)

	r3 := protowire.AppendTag(nil, 1, protowire.StartGroupType)
	r3 = append(r3, 0xff, 0xff, 0x00)

	return [][]byte{r1, r2, r3}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	records := sampleRecords()
	enc := NewEncoder(envelope.TagNone, envelope.CodecOptions{})
	payload, decodedSize, err := enc.EncodeChunk(records)
	require.NoError(t, err)

	var wantSize uint64
	for _, r := range records {
		wantSize += uint64(len(r))
	}
	require.Equal(t, wantSize, decodedSize)

	dec := NewDecoder(nil)
	got, err := dec.Decode(payload, uint64(len(records)))
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestEncodeDecodeRoundTrip_Compressed(t *testing.T) {
	records := sampleRecords()
	enc := NewEncoder(envelope.TagZstd, envelope.CodecOptions{})
	payload, _, err := enc.EncodeChunk(records)
	require.NoError(t, err)

	dec := NewDecoder(nil)
	got, err := dec.Decode(payload, uint64(len(records)))
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestFieldProjection_DropsUnlistedFields(t *testing.T) {
	records := sampleRecords()[:1]
	enc := NewEncoder(envelope.TagNone, envelope.CodecOptions{})
	payload, _, err := enc.EncodeChunk(records)
	require.NoError(t, err)

	proj := NewFieldProjection()
	proj.AddPath([]uint32{1}, false)
	proj.AddPath([]uint32{2}, false)

	dec := NewDecoder(proj)
	got, err := dec.Decode(payload, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 150)
	want = protowire.AppendTag(want, 2, protowire.BytesType)
	want = protowire.AppendBytes(want, []byte("hello"))
	require.Equal(t, want, got[0])
}

func TestFieldProjection_ExistenceOnly(t *testing.T) {
	records := sampleRecords()[:1]
	enc := NewEncoder(envelope.TagNone, envelope.CodecOptions{})
	payload, _, err := enc.EncodeChunk(records)
	require.NoError(t, err)

	proj := NewFieldProjection()
	proj.AddPath([]uint32{1}, true)

	dec := NewDecoder(proj)
	got, err := dec.Decode(payload, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = append(want, 0)
	require.Equal(t, want, got[0])
}

func TestFieldProjection_FullyIncludesNestedSubmessage(t *testing.T) {
	records := sampleRecords()[:1]
	enc := NewEncoder(envelope.TagNone, envelope.CodecOptions{})
	payload, _, err := enc.EncodeChunk(records)
	require.NoError(t, err)

	// Field 3 is a submessage (buildSubmessage(1, 7)); projecting it
	// Fully must reproduce everything beneath it, not just an empty
	// submessage.
	proj := NewFieldProjection()
	proj.AddPath([]uint32{3}, false)

	dec := NewDecoder(proj)
	got, err := dec.Decode(payload, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := protowire.AppendTag(nil, 3, protowire.BytesType)
	want = protowire.AppendBytes(want, buildSubmessage(1, 7))
	require.Equal(t, want, got[0])
}

func TestFieldProjectionResolve(t *testing.T) {
	p := NewFieldProjection()
	require.True(t, p.Empty())

	p.AddPath([]uint32{1, 2}, false)
	p.AddPath([]uint32{1, 3}, true)
	require.False(t, p.Empty())

	childID, include, found := p.Resolve(Invalid, 1)
	require.True(t, found)
	require.Equal(t, ChildOnly, include)

	_, include, found = p.Resolve(childID, 2)
	require.True(t, found)
	require.Equal(t, Fully, include)

	_, include, found = p.Resolve(childID, 3)
	require.True(t, found)
	require.Equal(t, ExistenceOnly, include)

	_, _, found = p.Resolve(childID, 99)
	require.False(t, found)

	_, _, found = p.Resolve(Invalid, 99)
	require.False(t, found)
}

func TestCheckNoImplicitLoop_DetectsCycle(t *testing.T) {
	nodes := []Node{
		{Callback: Varint | Implicit, Next: 1},
		{Callback: Varint | Implicit, Next: 2},
		{Callback: Varint | Implicit, Next: 0},
	}
	err := checkNoImplicitLoop(nodes)
	require.Error(t, err)
}

func TestCheckNoImplicitLoop_AllowsLinearChain(t *testing.T) {
	nodes := []Node{
		{Callback: Varint | Implicit, Next: 1},
		{Callback: Varint | Implicit, Next: 2},
		{Callback: Varint, Next: -1},
	}
	err := checkNoImplicitLoop(nodes)
	require.NoError(t, err)
}

func TestCheckNoImplicitLoop_AllowsSharedTail(t *testing.T) {
	// Two independent implicit chains that converge on the same
	// non-implicit tail node must not be reported as a cycle.
	nodes := []Node{
		{Callback: Varint | Implicit, Next: 2},
		{Callback: Varint | Implicit, Next: 2},
		{Callback: Varint, Next: -1},
	}
	err := checkNoImplicitLoop(nodes)
	require.NoError(t, err)
}

func TestCallbackTypeImplicitFlag(t *testing.T) {
	c := Varint | Implicit
	require.True(t, c.IsImplicit())
	require.Equal(t, Varint, c.Base())
	require.False(t, Varint.IsImplicit())
}
