package riegeli

import (
	"bytes"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// encodeSimpleChunk builds a simple chunk's payload (spec.md §3): a
// compression tag byte, the compressed "sizes" stream holding one
// varint length per record, and the compressed concatenation of the
// records themselves, framed the way internal/transpose's payload.Encode
// frames a node-table header next to its buckets — a length-prefixed
// side stream next to the main data — since a simple chunk needs the
// same "know where one compressed section ends and the next begins"
// problem solved, just without buckets or a node table.
func encodeSimpleChunk(tag envelope.Tag, opts envelope.CodecOptions, records [][]byte) ([]byte, uint64, error) {
	var sizes []byte
	var data bytes.Buffer
	var decodedSize uint64
	for _, r := range records {
		sizes = bytestream.PutVarint(sizes, uint64(len(r)))
		data.Write(r)
		decodedSize += uint64(len(r))
	}
	compressedSizes, err := envelope.CompressBytes(tag, sizes, opts)
	if err != nil {
		return nil, 0, rerror.Annotate(err, "compressing record sizes")
	}
	compressedData, err := envelope.CompressBytes(tag, data.Bytes(), opts)
	if err != nil {
		return nil, 0, rerror.Annotate(err, "compressing record data")
	}

	var out []byte
	out = append(out, byte(tag))
	out = bytestream.PutVarint(out, uint64(len(compressedSizes)))
	out = append(out, compressedSizes...)
	out = append(out, compressedData...)
	return out, decodedSize, nil
}

// decodeSimpleChunk reverses encodeSimpleChunk, returning numRecords
// records in their original order.
func decodeSimpleChunk(payload []byte, numRecords uint64) ([][]byte, error) {
	if len(payload) < 1 {
		return nil, rerror.New(rerror.DataLoss, "empty simple chunk payload")
	}
	tag := envelope.Tag(payload[0])
	rest := payload[1:]

	sizesLen, n := bytestream.Varint(rest)
	if n == 0 {
		return nil, rerror.New(rerror.DataLoss, "truncated simple chunk sizes length")
	}
	rest = rest[n:]
	if uint64(len(rest)) < sizesLen {
		return nil, rerror.New(rerror.DataLoss, "truncated simple chunk sizes stream")
	}
	compressedSizes := rest[:sizesLen]
	compressedData := rest[sizesLen:]

	sizesRaw, err := envelope.DecompressBytes(tag, compressedSizes, -1)
	if err != nil {
		return nil, rerror.Annotate(err, "decompressing record sizes")
	}
	sizes := make([]uint64, 0, numRecords)
	var total uint64
	for len(sizesRaw) > 0 {
		v, n := bytestream.Varint(sizesRaw)
		if n == 0 {
			return nil, rerror.New(rerror.DataLoss, "truncated record size varint")
		}
		sizesRaw = sizesRaw[n:]
		sizes = append(sizes, v)
		total += v
	}
	if uint64(len(sizes)) != numRecords {
		return nil, rerror.New(rerror.DataLoss, "simple chunk declares %d records, sizes stream has %d", numRecords, len(sizes))
	}

	dataRaw, err := envelope.DecompressBytes(tag, compressedData, int64(total))
	if err != nil {
		return nil, rerror.Annotate(err, "decompressing record data")
	}
	if uint64(len(dataRaw)) != total {
		return nil, rerror.New(rerror.DataLoss, "simple chunk data decompressed to %d bytes, want %d", len(dataRaw), total)
	}

	records := make([][]byte, numRecords)
	var off uint64
	for i, s := range sizes {
		records[i] = dataRaw[off : off+s]
		off += s
	}
	return records, nil
}
