package riegeli

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/chunk"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/internal/transpose"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// RecordWriter batches records into chunks and writes them through an
// underlying chunk.Writer, choosing simple-vs-transposed encoding per
// Options.ChunkTypePolicy (spec.md §4.5.1). Grounded on the teacher's
// writerv2.go Writer: a pending-block record accumulator flushed by
// size, by an explicit Flush, or by Close — generalized from "pack
// items into one fixed-shape block" to "batch records into a chunk
// whose encoding is chosen per Options."
type RecordWriter struct {
	cw   *chunk.Writer
	opts Options

	pending     [][]byte
	pendingSize int64

	err    error
	closed bool
}

// NewRecordWriter wraps w, writing the mandatory file-signature chunk
// (and, if opts.Metadata is set, the metadata chunk right after it)
// before any record.
func NewRecordWriter(w bytestream.Writer, opts Options) (*RecordWriter, error) {
	if opts.MaxSize > 0 {
		w = envelope.NewLimitingWriter(w, opts.MaxSize)
	}
	rw := &RecordWriter{cw: chunk.NewWriter(w), opts: opts}
	if err := rw.cw.WriteChunk(chunk.FileSignature, 0, 0, nil); err != nil {
		return nil, rw.fail(err)
	}
	if opts.Metadata != nil {
		if err := rw.writeMetadata(*opts.Metadata); err != nil {
			return nil, err
		}
	}
	return rw, nil
}

func (rw *RecordWriter) fail(err error) error {
	if rw.err == nil {
		rw.err = err
	}
	return rw.err
}

// Status returns the sticky error, if any.
func (rw *RecordWriter) Status() error { return rw.err }

func (rw *RecordWriter) writeMetadata(m RecordsMetadata) error {
	payload, decodedSize, err := transpose.NewEncoder(rw.opts.CompressionTag, rw.opts.CodecOptions).
		EncodeChunk([][]byte{m.marshal()})
	if err != nil {
		return rw.fail(rerror.Annotate(err, "encoding metadata chunk"))
	}
	if err := rw.cw.WriteChunk(chunk.FileMetadata, 1, decodedSize, payload); err != nil {
		return rw.fail(err)
	}
	return nil
}

// WriteRecord appends one record to the pending chunk, flushing the
// current pending chunk first if adding the record would exceed
// Options.ChunkSize.
func (rw *RecordWriter) WriteRecord(record []byte) error {
	if rw.err != nil {
		return rw.err
	}
	if rw.pendingSize > 0 && rw.pendingSize+int64(len(record)) > rw.opts.chunkSize() {
		if err := rw.flushPending(); err != nil {
			return err
		}
	}
	rw.pending = append(rw.pending, record)
	rw.pendingSize += int64(len(record))
	return nil
}

func (rw *RecordWriter) flushPending() error {
	if len(rw.pending) == 0 {
		return nil
	}
	var chunkType chunk.Type
	var payload []byte
	var decodedSize uint64
	var err error
	switch rw.opts.ChunkTypePolicy {
	case PreferSimple:
		chunkType = chunk.Simple
		payload, decodedSize, err = encodeSimpleChunk(rw.opts.CompressionTag, rw.opts.CodecOptions, rw.pending)
	default:
		chunkType = chunk.Transposed
		payload, decodedSize, err = transpose.NewEncoder(rw.opts.CompressionTag, rw.opts.CodecOptions).EncodeChunk(rw.pending)
	}
	if err != nil {
		return rw.fail(rerror.Annotate(err, "encoding chunk"))
	}
	if err := rw.cw.WriteChunk(chunkType, uint64(len(rw.pending)), decodedSize, payload); err != nil {
		return rw.fail(err)
	}
	rw.pending = rw.pending[:0]
	rw.pendingSize = 0
	return nil
}

// Flush writes out any non-empty pending chunk and propagates buffered
// bytes to the underlying sink.
func (rw *RecordWriter) Flush() error {
	if rw.err != nil {
		return rw.err
	}
	if err := rw.flushPending(); err != nil {
		return err
	}
	if err := rw.cw.Flush(bytestream.FromObject); err != nil {
		return rw.fail(err)
	}
	return nil
}

// Close flushes any pending chunk and closes the underlying chunk
// writer.
func (rw *RecordWriter) Close() error {
	if rw.closed {
		return rw.err
	}
	rw.closed = true
	if rw.err == nil {
		if err := rw.flushPending(); err != nil {
			return rw.err
		}
	}
	if err := rw.cw.Close(); err != nil && rw.err == nil {
		rw.err = err
	}
	return rw.err
}
