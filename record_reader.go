package riegeli

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/chunk"
	"github.com/ChiZhang0907/riegeli/internal/rlog"
	"github.com/ChiZhang0907/riegeli/internal/transpose"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// Ordering is the three/four-way comparison result a Search predicate
// reports for one candidate record against the caller's target
// (spec.md §4.5.2).
type Ordering int

const (
	Less Ordering = iota
	Equal
	Greater
	Unordered
)

// RecordReader reads records sequentially or by seek from a chunk
// stream, decoding each non-padding, non-metadata chunk's payload on
// first touch and caching its records until the cursor moves to a
// different chunk (spec.md §4.5.2). Grounded on the teacher's
// scannerv2.Seek/scanNextBlock "re-read the target block, otherwise
// just advance nextItem" logic, generalized to Riegeli's two-level
// (chunk_begin, record_index) position.
type RecordReader struct {
	cr         *chunk.Reader
	projection *transpose.FieldProjection
	opts       ReaderOptions

	chunkBegin  int64
	chunkHeader chunk.Header
	records     [][]byte
	recordIndex uint64
	haveChunk   bool

	metadata *RecordsMetadata

	err error
}

// NewRecordReader wraps r, validating the file signature and consuming
// a metadata chunk if one immediately follows it.
func NewRecordReader(r bytestream.Reader, opts ReaderOptions) (*RecordReader, error) {
	rr := &RecordReader{cr: chunk.NewReader(r), opts: opts}
	if err := rr.cr.CheckFileFormat(); err != nil {
		return nil, rr.fail(err)
	}
	rr.readMetadataIfPresent()
	return rr, nil
}

func (rr *RecordReader) fail(err error) error {
	if rr.err == nil {
		rr.err = err
	}
	return rr.err
}

// Status returns the sticky error, if any.
func (rr *RecordReader) Status() error { return rr.err }

// Metadata returns the file's metadata, or nil if the file carries
// none.
func (rr *RecordReader) Metadata() *RecordsMetadata { return rr.metadata }

// readMetadataIfPresent peeks at the chunk following the signature. A
// pull failure here (including a clean end of stream on an otherwise
// empty file) is left as the chunk reader's own sticky state rather
// than propagated to rr.err: the first real ReadRecord call will
// naturally observe it and report "no records," which is the correct
// outcome for a file with nothing beyond its signature.
func (rr *RecordReader) readMetadataIfPresent() {
	hdr, err := rr.cr.PullHeader()
	if err != nil {
		return
	}
	if hdr.ChunkType != chunk.FileMetadata {
		return
	}
	begin := rr.cr.Pos()
	_, payload, err := rr.cr.ReadChunk()
	if err != nil {
		rr.fail(err)
		return
	}
	records, err := transpose.NewDecoder(nil).Decode(payload, hdr.NumRecords)
	if err != nil {
		rr.fail(rerror.Annotate(err, "decoding metadata chunk at byte %d", begin))
		return
	}
	if len(records) != 1 {
		rr.fail(rerror.New(rerror.DataLoss, "metadata chunk at byte %d has %d records, want 1", begin, len(records)))
		return
	}
	m, err := unmarshalMetadata(records[0])
	if err != nil {
		rr.fail(rerror.Annotate(err, "unmarshaling metadata at byte %d", begin))
		return
	}
	rr.metadata = &m
}

// SetFieldProjection installs p (nil or empty means "every field"),
// re-decoding the current chunk if one is loaded so the change takes
// effect immediately rather than only on the next chunk boundary.
func (rr *RecordReader) SetFieldProjection(p *transpose.FieldProjection) error {
	rr.projection = p
	if !rr.haveChunk {
		return nil
	}
	idx := rr.recordIndex
	begin := rr.chunkBegin
	if !rr.cr.SeekToChunkContaining(begin) {
		return rr.fail(rr.cr.Status())
	}
	if err := rr.loadChunk(); err != nil {
		return err
	}
	if idx > uint64(len(rr.records)) {
		idx = uint64(len(rr.records))
	}
	rr.recordIndex = idx
	return nil
}

// loadChunk reads and decodes the chunk at the reader's current
// position, skipping over padding and (if one appears out of its
// expected place) metadata chunks, and resets the cursor to that
// chunk's first record.
func (rr *RecordReader) loadChunk() error {
	for {
		begin := rr.cr.Pos()
		hdr, err := rr.cr.PullHeader()
		if err != nil {
			return rr.fail(err)
		}
		if hdr.ChunkType == chunk.Padding || hdr.ChunkType == chunk.FileMetadata || hdr.ChunkType == chunk.FileSignature {
			if _, err := rr.cr.SkipChunk(); err != nil {
				return rr.fail(err)
			}
			continue
		}
		_, payload, err := rr.cr.ReadChunk()
		if err != nil {
			return rr.fail(err)
		}
		records, err := rr.decodeChunkPayload(hdr, payload, begin)
		if err != nil {
			return rr.fail(err)
		}
		rr.chunkBegin = begin
		rr.chunkHeader = hdr
		rr.records = records
		rr.recordIndex = 0
		rr.haveChunk = true
		return nil
	}
}

func (rr *RecordReader) decodeChunkPayload(hdr chunk.Header, payload []byte, begin int64) ([][]byte, error) {
	switch hdr.ChunkType {
	case chunk.Simple:
		records, err := decodeSimpleChunk(payload, hdr.NumRecords)
		if err != nil {
			return nil, rerror.Annotate(err, "decoding simple chunk at byte %d", begin)
		}
		return records, nil
	case chunk.Transposed:
		records, err := transpose.NewDecoder(rr.projection).Decode(payload, hdr.NumRecords)
		if err != nil {
			return nil, rerror.Annotate(err, "decoding transposed chunk at byte %d", begin)
		}
		return records, nil
	default:
		return nil, rerror.New(rerror.DataLoss, "unexpected chunk type %s at byte %d", hdr.ChunkType, begin)
	}
}

// ReadRecord returns the next record, advancing the cursor. It returns
// an OutOfRange error once the stream is exhausted.
func (rr *RecordReader) ReadRecord() ([]byte, error) {
	for {
		if rr.err != nil {
			return nil, rr.err
		}
		if rr.haveChunk && rr.recordIndex < uint64(len(rr.records)) {
			rec := rr.records[rr.recordIndex]
			rr.recordIndex++
			return rec, nil
		}
		if err := rr.loadChunk(); err != nil {
			if rr.opts.Recovery != NoRecovery && rerror.KindOf(err) == rerror.DataLoss {
				if _, ok := rr.Recover(); ok {
					continue
				}
			}
			return nil, err
		}
	}
}

// Recover skips the reader forward past the region its last failure
// left it in, clearing the failed state, and reports what was given up
// on (spec.md §4.5.2's recover(&skipped_region)). Callers who disabled
// automatic recovery can call this directly after a ReadRecord error to
// drive recovery themselves.
func (rr *RecordReader) Recover() (chunk.SkippedRegion, bool) {
	region, ok := rr.cr.Recover()
	if !ok {
		return region, false
	}
	rr.err = nil
	rr.haveChunk = false
	rlog.Errorf("riegeli: %s", region)
	return region, true
}

// Seek moves the cursor to pos. If pos names a record within the
// currently loaded chunk, this is a pure in-memory move; otherwise the
// target chunk is (re-)read. A zero RecordIndex defers decoding the
// target chunk until the next ReadRecord, so seeking to a one-past-end
// position that names a chunk that doesn't exist isn't itself an error.
func (rr *RecordReader) Seek(pos RecordPosition) error {
	if rr.err != nil {
		return rr.err
	}
	if rr.haveChunk && pos.ChunkBegin == rr.chunkBegin {
		if pos.RecordIndex > uint64(len(rr.records)) {
			return rr.fail(rerror.New(rerror.OutOfRange, "record index %d exceeds chunk's %d records", pos.RecordIndex, len(rr.records)))
		}
		rr.recordIndex = pos.RecordIndex
		return nil
	}
	if !rr.cr.SeekToChunkContaining(pos.ChunkBegin) {
		return rr.fail(rerror.New(rerror.OutOfRange, "no chunk at byte %d", pos.ChunkBegin))
	}
	if pos.RecordIndex == 0 {
		rr.haveChunk = false
		rr.chunkBegin = pos.ChunkBegin
		return nil
	}
	if err := rr.loadChunk(); err != nil {
		return err
	}
	if pos.RecordIndex > uint64(len(rr.records)) {
		return rr.fail(rerror.New(rerror.OutOfRange, "record index %d exceeds chunk's %d records", pos.RecordIndex, len(rr.records)))
	}
	rr.recordIndex = pos.RecordIndex
	return nil
}

// SeekToByteOffset moves the cursor to the first record of the chunk
// containing byte offset pos.
func (rr *RecordReader) SeekToByteOffset(pos int64) error {
	if rr.err != nil {
		return rr.err
	}
	if !rr.cr.SeekToChunkContaining(pos) {
		return rr.fail(rerror.New(rerror.OutOfRange, "no chunk at byte %d", pos))
	}
	rr.haveChunk = false
	return rr.loadChunk()
}

// SeekBack moves the cursor one record backward, crossing into the
// previous chunk (and skipping over any chunk with zero records) when
// the current chunk's first record has already been reached.
func (rr *RecordReader) SeekBack() error {
	if rr.err != nil {
		return rr.err
	}
	if rr.haveChunk && rr.recordIndex > 0 {
		rr.recordIndex--
		return nil
	}
	begin := rr.chunkBegin
	if !rr.haveChunk {
		begin = rr.cr.Pos()
	}
	for {
		if !rr.cr.SeekToChunkBefore(begin) {
			return rr.fail(rerror.New(rerror.OutOfRange, "no record before byte %d", begin))
		}
		candidateBegin := rr.cr.Pos()
		if err := rr.loadChunk(); err != nil {
			return err
		}
		if len(rr.records) > 0 {
			rr.recordIndex = uint64(len(rr.records)) - 1
			return nil
		}
		begin = candidateBegin
	}
}

// Size returns the total stream size, if the underlying source supports
// it, required by Search's binary search.
func (rr *RecordReader) Size() (int64, bool) { return rr.cr.Size() }

// Search performs a byte-offset binary search over chunks by each
// chunk's first record, then a linear scan over the landing chunk's
// records, using cmp to compare a candidate record against the
// caller's target. It returns the position of the first record for
// which cmp reports anything other than Less, or an OutOfRange error if
// none exists. Unordered comparisons are treated the same as
// Equal/Greater (search leftward) rather than widening the search
// interval, a simplification over the original's explicit low/high
// bookkeeping for an "unordered" outcome — see DESIGN.md.
func (rr *RecordReader) Search(cmp func([]byte) Ordering) (RecordPosition, error) {
	if rr.err != nil {
		return RecordPosition{}, rr.err
	}
	size, ok := rr.Size()
	if !ok {
		return RecordPosition{}, rr.fail(rerror.New(rerror.Unimplemented, "search requires a sized source"))
	}
	low, high := int64(0), size
	for low < high {
		mid := low + (high-low)/2
		if !rr.cr.SeekToChunkBefore(mid + 1) {
			low = mid + 1
			continue
		}
		chunkBegin := rr.cr.Pos()
		if err := rr.loadChunk(); err != nil {
			return RecordPosition{}, err
		}
		if len(rr.records) > 0 && cmp(rr.records[0]) == Less {
			low = chunkBegin + chunk.Size + int64(rr.chunkHeader.DataSize)
		} else {
			high = chunkBegin
		}
	}
	if !rr.cr.SeekToChunkContaining(low) {
		return RecordPosition{}, rr.fail(rerror.New(rerror.OutOfRange, "search found no record"))
	}
	if err := rr.loadChunk(); err != nil {
		return RecordPosition{}, err
	}
	for i, rec := range rr.records {
		if cmp(rec) != Less {
			rr.recordIndex = uint64(i)
			return RecordPosition{ChunkBegin: rr.chunkBegin, RecordIndex: uint64(i)}, nil
		}
	}
	return RecordPosition{}, rr.fail(rerror.New(rerror.OutOfRange, "search found no matching record"))
}
