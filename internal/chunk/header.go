// Package chunk implements the L3 chunk container: a 40-byte hashed
// header, block-aligned padding, and the chunk writer/reader pair.
package chunk

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/ChiZhang0907/riegeli/rerror"
)

// Size is the fixed on-disk size of a Header (spec.md §3): 8 bytes of
// header hash, 8 of data size, 8 of data hash, 8 of record count, 7 of
// decoded data size, and 1 chunk-type byte.
const Size = 40

// BlockSize is the alignment granularity that lets a reader locate a
// chunk header by scanning forward at most one block (spec.md §3).
const BlockSize = 64 << 10

// Type identifies what a chunk's payload holds.
type Type byte

const (
	FileSignature Type = 0x73
	FileMetadata  Type = 0x6d
	Padding       Type = 0x70
	Simple        Type = 0x72
	Transposed    Type = 0x74
)

func (t Type) String() string {
	switch t {
	case FileSignature:
		return "signature"
	case FileMetadata:
		return "metadata"
	case Padding:
		return "padding"
	case Simple:
		return "simple"
	case Transposed:
		return "transposed"
	default:
		return "unknown"
	}
}

// Header is the 40-byte record that precedes every chunk payload,
// grounded byte-for-byte on the teacher's little-endian chunkHeader
// accessor style in recordio/internal/chunk.go, extended from a 28-byte
// CRC32 header to the 40-byte XXH64 header spec.md §3 specifies.
type Header struct {
	HeaderHash      uint64
	DataSize        uint64
	DataHash        uint64
	NumRecords      uint64
	DecodedDataSize uint64 // stored on the wire in 7 bytes, max 2^56-1
	ChunkType       Type
}

// maxDecodedDataSize is the largest value that fits in the header's
// 7-byte decoded_data_size field.
const maxDecodedDataSize = (1 << 56) - 1

// Encode serializes h into a 40-byte array, recomputing HeaderHash as
// the XXH64 of the 32 bytes that follow it so a caller never has to
// remember to keep the two in sync.
func (h Header) Encode() ([Size]byte, error) {
	var buf [Size]byte
	if h.DecodedDataSize > maxDecodedDataSize {
		return buf, rerror.New(rerror.ResourceExhausted, "decoded data size %d exceeds the 7-byte header field", h.DecodedDataSize)
	}
	binary.LittleEndian.PutUint64(buf[8:16], h.DataSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.DataHash)
	binary.LittleEndian.PutUint64(buf[24:32], h.NumRecords)
	put7(buf[32:39], h.DecodedDataSize)
	buf[39] = byte(h.ChunkType)
	binary.LittleEndian.PutUint64(buf[0:8], xxhash.Sum64(buf[8:Size]))
	return buf, nil
}

// Decode parses a 40-byte header and verifies HeaderHash, returning a
// DATA_LOSS error on mismatch (spec.md §4.3.2: "on read, both hashes are
// recomputed; any mismatch -> DATA_LOSS").
func Decode(buf [Size]byte) (Header, error) {
	wantHash := binary.LittleEndian.Uint64(buf[0:8])
	gotHash := xxhash.Sum64(buf[8:Size])
	if gotHash != wantHash {
		return Header{}, rerror.New(rerror.DataLoss, "chunk header hash mismatch: got %#x, want %#x", gotHash, wantHash)
	}
	return Header{
		HeaderHash:      wantHash,
		DataSize:        binary.LittleEndian.Uint64(buf[8:16]),
		DataHash:        binary.LittleEndian.Uint64(buf[16:24]),
		NumRecords:      binary.LittleEndian.Uint64(buf[24:32]),
		DecodedDataSize: get7(buf[32:39]),
		ChunkType:       Type(buf[39]),
	}, nil
}

func put7(dst []byte, x uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], x)
	copy(dst, tmp[:7])
}

func get7(src []byte) uint64 {
	var tmp [8]byte
	copy(tmp[:7], src)
	return binary.LittleEndian.Uint64(tmp[:])
}
