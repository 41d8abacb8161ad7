package envelope

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// WriteLengthDelimited writes a varint length prefix followed by data
// (spec.md §4.2.4). Simple chunks do not use it: they frame records
// with a separate sizes stream. Grounded on the teacher's generatePackedHeaderv2's
// length-then-payload pairing in writerv2.go.
func WriteLengthDelimited(w bytestream.Writer, data []byte) bool {
	var tmp [10]byte
	n := len(bytestream.PutVarint(tmp[:0], uint64(len(data))))
	return w.Write(tmp[:n]) && w.Write(data)
}

// ReadLengthDelimited reads one varint-length-prefixed record from r,
// grounded on the teacher's parseChunksToItems/binary.Uvarint pairing
// in scannerv2.go. The returned slice is a fresh allocation.
func ReadLengthDelimited(r bytestream.Reader) ([]byte, error) {
	length, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if !r.ReadInto(data) {
		if err := r.Status(); err != nil {
			return nil, err
		}
		return nil, rerror.New(rerror.DataLoss, "truncated length-delimited record: wanted %d bytes", length)
	}
	return data, nil
}

// readVarint decodes one varint from r's cursor protocol, pulling more
// bytes as needed up to the 10-byte maximum varint width.
func readVarint(r bytestream.Reader) (uint64, error) {
	for n := 1; n <= 10; n++ {
		if !r.Pull(n) {
			if err := r.Status(); err != nil {
				return 0, err
			}
			if n == 1 {
				return 0, rerror.New(rerror.OutOfRange, "end of stream")
			}
			return 0, rerror.New(rerror.DataLoss, "truncated varint")
		}
		cursor := r.Cursor()
		if v, consumed := bytestream.Varint(cursor[:n]); consumed > 0 {
			r.MoveCursor(consumed)
			return v, nil
		}
	}
	return 0, rerror.New(rerror.DataLoss, "varint longer than 10 bytes")
}
