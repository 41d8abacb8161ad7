package chunk

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// hashBytes computes a payload's digest through the same envelope.Digester
// the reader's DigestingReader tees its reads through, rather than a
// direct xxhash call, so the hash algorithm lives in one place (spec.md
// §4.2.2). The header-before-payload wire layout means the hash must be
// known before the payload is written, so there is nothing to tee here;
// DigestingWriter's tee-while-writing shape fits the reader's
// verify-while-reading side of this same check instead (see reader.go).
func hashBytes(payload []byte) uint64 {
	dig := envelope.NewXXH64()
	dig.Write(payload)
	return dig.Sum64()
}

// Writer serializes chunk headers and payloads to an underlying byte-
// stream writer, inserting padding chunks to keep every non-padding
// header inside one 64 KiB block (spec.md §3/§4.3.1), grounded on the
// teacher's ChunkWriter.Write multi-chunk splitting loop in
// recordio/internal/chunk.go — generalized from "split an oversized
// block into fixed-size chunks" to "insert one padding chunk before a
// header that would straddle a block boundary."
//
// A padding chunk's own header is the one exception to the alignment
// guarantee: when the current position leaves less than Size bytes
// before the next boundary, there is no way to fit even a padding
// header without straddling, so the padding header is allowed to
// straddle and its payload is sized to land the chunk that follows it
// exactly on the next block boundary.
type Writer struct {
	w   bytestream.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w bytestream.Writer) *Writer {
	return &Writer{w: w}
}

func (cw *Writer) fail(err error) error {
	if cw.err == nil {
		cw.err = err
	}
	return cw.err
}

// Status returns the sticky error, if any.
func (cw *Writer) Status() error { return cw.err }

// Pos returns the current byte offset of the underlying sink, the
// offset a caller should record as a chunk's begin position before
// calling WriteChunk.
func (cw *Writer) Pos() int64 { return cw.w.Pos() }

// WriteChunk writes one chunk: chunkType, numRecords, decodedDataSize,
// and payload, preceded by whatever padding the block-alignment
// invariant requires.
func (cw *Writer) WriteChunk(chunkType Type, numRecords, decodedDataSize uint64, payload []byte) error {
	if cw.err != nil {
		return cw.err
	}
	if err := cw.padForHeader(); err != nil {
		return err
	}
	hdr := Header{
		DataSize:        uint64(len(payload)),
		DataHash:        hashBytes(payload),
		NumRecords:      numRecords,
		DecodedDataSize: decodedDataSize,
		ChunkType:       chunkType,
	}
	return cw.writeHeaderAndPayload(hdr, payload)
}

// padForHeader inserts a padding chunk if the current position leaves
// fewer than Size bytes before the next block boundary.
func (cw *Writer) padForHeader() error {
	pos := cw.w.Pos()
	rem := BlockSize - pos%BlockSize
	if rem >= Size {
		return nil
	}
	target := ceilToMultiple(pos+Size, BlockSize)
	paddingLen := target - pos - Size
	hdr := Header{
		DataSize:  uint64(paddingLen),
		DataHash:  hashBytes(make([]byte, paddingLen)),
		ChunkType: Padding,
	}
	return cw.writeHeaderAndZeroPayload(hdr, paddingLen)
}

func ceilToMultiple(x, m int64) int64 {
	return ((x + m - 1) / m) * m
}

func (cw *Writer) writeHeaderAndPayload(hdr Header, payload []byte) error {
	buf, err := hdr.Encode()
	if err != nil {
		return cw.fail(err)
	}
	if !cw.w.Write(buf[:]) || !cw.w.Write(payload) {
		return cw.fail(cw.writerError())
	}
	return nil
}

func (cw *Writer) writeHeaderAndZeroPayload(hdr Header, payloadLen int64) error {
	buf, err := hdr.Encode()
	if err != nil {
		return cw.fail(err)
	}
	if !cw.w.Write(buf[:]) || !cw.w.WriteZeros(payloadLen) {
		return cw.fail(cw.writerError())
	}
	return nil
}

func (cw *Writer) writerError() error {
	if err := cw.w.Status(); err != nil {
		return rerror.Annotate(err, "writing chunk")
	}
	return rerror.New(rerror.Other, "writing chunk failed")
}

// Flush propagates buffered chunk bytes to the sink.
func (cw *Writer) Flush(kind bytestream.FlushKind) error {
	if cw.err != nil {
		return cw.err
	}
	if !cw.w.Flush(kind) {
		return cw.fail(cw.writerError())
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (cw *Writer) Close() error {
	if err := cw.w.Close(); err != nil && cw.err == nil {
		cw.err = err
	}
	return cw.err
}
