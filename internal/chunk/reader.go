package chunk

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// Reader reads chunk headers and payloads from an underlying byte-stream
// reader, grounded on the teacher's ChunkScanner.Scan/Seek/LimitShard/
// ReadLastBlock block-aligned scanning idiom in recordio/internal/chunk.go,
// generalized from "always scan a whole fixed-size block" to "scan at
// most one block forward to find a chunk header," since Riegeli chunks
// vary in size rather than being fixed at 32 KiB.
type Reader struct {
	r   bytestream.Reader
	err error

	// pending holds a header already pulled by PullHeader but not yet
	// consumed by ReadChunk/SkipChunk.
	pending    *Header
	pendingPos int64
}

// NewReader wraps r.
func NewReader(r bytestream.Reader) *Reader {
	return &Reader{r: r}
}

func (cr *Reader) fail(err error) error {
	if cr.err == nil {
		cr.err = err
	}
	return cr.err
}

// Status returns the sticky error, if any.
func (cr *Reader) Status() error { return cr.err }

// Size returns the underlying stream's total size, if known, letting a
// caller binary-search the chunk sequence by byte offset.
func (cr *Reader) Size() (int64, bool) { return cr.r.Size() }

// Pos returns the position of the next unread byte, which is the
// position a not-yet-consumed pending header was pulled at.
func (cr *Reader) Pos() int64 {
	if cr.pending != nil {
		return cr.pendingPos
	}
	return cr.r.Pos()
}

// PullHeader peeks at the next chunk header without consuming the
// payload, repeating the same Header on subsequent calls until the
// chunk is actually consumed by ReadChunk or SkipChunk.
func (cr *Reader) PullHeader() (Header, error) {
	if cr.err != nil {
		return Header{}, cr.err
	}
	if cr.pending != nil {
		return *cr.pending, nil
	}
	pos := cr.r.Pos()
	var raw [Size]byte
	if !cr.r.ReadInto(raw[:]) {
		if err := cr.r.Status(); err != nil {
			return Header{}, cr.fail(err)
		}
		return Header{}, cr.fail(rerror.New(rerror.OutOfRange, "end of stream at byte %d", pos))
	}
	hdr, err := Decode(raw)
	if err != nil {
		return Header{}, cr.fail(err)
	}
	cr.pending = &hdr
	cr.pendingPos = pos
	return hdr, nil
}

// ReadChunk fully consumes the pending (or next) chunk, returning its
// header and payload after verifying the data hash.
func (cr *Reader) ReadChunk() (Header, []byte, error) {
	hdr, err := cr.PullHeader()
	if err != nil {
		return Header{}, nil, err
	}
	payload := make([]byte, hdr.DataSize)
	dig := envelope.NewDigestingReader(cr.r, envelope.NewXXH64())
	if !dig.ReadInto(payload) {
		if err := cr.r.Status(); err != nil {
			return Header{}, nil, cr.fail(err)
		}
		return Header{}, nil, cr.fail(rerror.New(rerror.DataLoss, "truncated chunk payload at byte %d", cr.pendingPos))
	}
	cr.pending = nil
	if err := envelope.VerifyDigest("chunk data", dig.Sum64(), hdr.DataHash); err != nil {
		return Header{}, nil, cr.fail(rerror.Annotate(err, "at byte %d", cr.pendingPos))
	}
	return hdr, payload, nil
}

// SkipChunk consumes the pending (or next) chunk's payload without
// validating its hash, used while scanning past chunks that aren't of
// interest (e.g. padding chunks during seeking).
func (cr *Reader) SkipChunk() (Header, error) {
	hdr, err := cr.PullHeader()
	if err != nil {
		return Header{}, err
	}
	if !cr.r.Skip(int64(hdr.DataSize)) {
		if err := cr.r.Status(); err != nil {
			return Header{}, cr.fail(err)
		}
		return Header{}, cr.fail(rerror.New(rerror.DataLoss, "truncated chunk payload at byte %d", cr.pendingPos))
	}
	cr.pending = nil
	return hdr, nil
}

// CheckFileFormat reads the mandatory leading signature chunk and
// validates its shape (spec.md §3: "must be the first chunk; data_size
// = 0, num_records = 0").
func (cr *Reader) CheckFileFormat() error {
	hdr, err := cr.SkipChunk()
	if err != nil {
		return err
	}
	if hdr.ChunkType != FileSignature || hdr.DataSize != 0 || hdr.NumRecords != 0 {
		return cr.fail(rerror.New(rerror.InvalidArgument, "missing or malformed file signature chunk"))
	}
	return nil
}

// SeekToChunkContaining repositions the reader at the header of the
// chunk whose [begin, begin+Size+DataSize) range contains pos, exploiting
// block alignment: it starts scanning from the block boundary at or
// before pos and reads forward at most one block's worth of chunks.
func (cr *Reader) SeekToChunkContaining(pos int64) bool {
	blockStart := pos - pos%BlockSize
	if !cr.seekTo(blockStart) {
		return false
	}
	for {
		hdr, err := cr.PullHeader()
		if err != nil {
			return false
		}
		begin := cr.pendingPos
		end := begin + Size + int64(hdr.DataSize)
		if pos < end {
			return true
		}
		if _, err := cr.SkipChunk(); err != nil {
			return false
		}
	}
}

// SeekToChunkBefore repositions the reader at the header of the last
// chunk beginning strictly before pos.
func (cr *Reader) SeekToChunkBefore(pos int64) bool {
	blockStart := pos - pos%BlockSize
	if !cr.seekTo(blockStart) {
		return false
	}
	lastBegin := int64(-1)
	for {
		if _, err := cr.PullHeader(); err != nil {
			if lastBegin >= 0 {
				return cr.seekTo(lastBegin)
			}
			return false
		}
		begin := cr.pendingPos
		if begin >= pos {
			if lastBegin < 0 {
				return false
			}
			return cr.seekTo(lastBegin)
		}
		lastBegin = begin
		if _, err := cr.SkipChunk(); err != nil {
			return false
		}
	}
}

// seekTo repositions the underlying reader at an absolute offset,
// discarding any pending header.
func (cr *Reader) seekTo(pos int64) bool {
	cr.pending = nil
	if !cr.r.Seek(pos) {
		if err := cr.r.Status(); err != nil {
			cr.fail(err)
		}
		return false
	}
	// A successful reposition supersedes any sticky error from a prior
	// Pull running off the end of the stream (e.g. SeekToChunkBefore
	// scanning past the last chunk) — otherwise every PullHeader after
	// this Seek would keep failing on stale state.
	cr.err = nil
	return true
}

// Recover skips forward from the current position looking for the next
// chunk header whose hash validates, returning the region given up on.
// Grounded on spec.md §4.3.2's recover(&skipped_region) contract.
func (cr *Reader) Recover() (SkippedRegion, bool) {
	begin := cr.Pos()
	cr.pending = nil
	cr.err = nil
	pos := begin
	for {
		if !cr.r.Seek(pos) {
			return SkippedRegion{Begin: begin, End: pos, Message: "no valid chunk header found before end of stream"}, false
		}
		hdr, err := cr.PullHeader()
		if err == nil && hdr.ChunkType != Padding {
			return SkippedRegion{Begin: begin, End: pos, Message: "skipped corrupt region"}, true
		}
		cr.pending = nil
		cr.err = nil
		pos++
		if pos-begin > BlockSize*2 {
			return SkippedRegion{Begin: begin, End: pos, Message: "giving up after scanning two blocks without a valid header"}, false
		}
	}
}
