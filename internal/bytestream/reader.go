package bytestream

import (
	"io"

	"github.com/ChiZhang0907/riegeli/rerror"
)

// Reader is the forward-reading half of the cursor protocol (spec.md
// §4.1.1). Pull ensures bytes are available at Cursor(); callers that
// want zero-copy access read directly from Cursor() and advance with
// MoveCursor. ReadInto/CopyTo are convenience wrappers around that
// protocol for callers that just want bytes delivered into their own
// buffer.
type Reader interface {
	// Pull ensures at least min bytes (default 1 if min <= 0) are
	// available at Cursor(). It returns false at end of stream or on
	// error; Status distinguishes the two.
	Pull(min int) bool

	// Cursor returns the bytes already pulled and not yet consumed. The
	// slice is invalidated by the next Pull, MoveCursor, or any other
	// state-changing call.
	Cursor() []byte

	// MoveCursor advances the cursor by n bytes, which must be <=
	// len(Cursor()).
	MoveCursor(n int)

	// ReadInto copies exactly len(dst) bytes into dst, pulling as
	// needed. A short read at end of stream is a failure.
	ReadInto(dst []byte) bool

	// CopyTo copies exactly n bytes to w.
	CopyTo(w io.Writer, n int64) bool

	// Skip advances the logical position by n bytes without copying
	// them out, failing if fewer than n bytes remain.
	Skip(n int64) bool

	// Seek moves to an absolute position, if supported.
	Seek(pos int64) bool

	// Size returns the total stream size, if known.
	Size() (int64, bool)

	// Pos returns the current logical position.
	Pos() int64

	// Available returns the number of bytes currently at Cursor().
	Available() int

	// VerifyEnd asserts that no more data remains.
	VerifyEnd() bool

	// Close releases owned dependencies. Idempotent.
	Close() error

	// Status returns the sticky error, if any.
	Status() error
}

// BufferedReader is a concrete Reader over an io.Reader, with the
// scratch-buffer rescue of spec.md §4.1.4: a Pull whose requested
// minimum exceeds the configured buffer capacity is satisfied by a
// larger, one-off scratch allocation rather than growing the steady-
// state buffer. CopyTo and ReadInto always move data through the
// buffer, whatever the transfer size; there is no read-through path
// that reads a large transfer directly into the destination.
type BufferedReader struct {
	src Dependency[io.ReadCloser]

	buf    []byte // steady-state buffer, capacity == bufferSize
	start  int    // first unread byte in buf
	filled int    // first byte past valid data in buf

	scratch []byte // non-nil while a rescue is in progress
	scrPos  int     // consumed offset within scratch

	pos    int64 // logical position of buf[start] / scratch[scrPos]
	err    error
	closed bool

	sizer func() (int64, bool) // optional Size() support
	seeker func(int64) bool    // optional Seek() support
}

// NewBufferedReader wraps src. bufferSize <= 0 selects a 64 KiB default.
func NewBufferedReader(src Dependency[io.ReadCloser], bufferSize int) *BufferedReader {
	if bufferSize <= 0 {
		bufferSize = 64 << 10
	}
	return &BufferedReader{src: src, buf: make([]byte, bufferSize)}
}

// SetSeeker installs seek support backed by an io.Seeker-like callback;
// concrete wrappers (e.g. a file-backed reader) call this after
// construction. Readers that don't support seeking leave it nil.
func (r *BufferedReader) SetSeeker(seek func(pos int64) bool, size func() (int64, bool)) {
	r.seeker = seek
	r.sizer = size
}

func (r *BufferedReader) fail(err error) bool {
	if r.err == nil {
		r.err = err
	}
	return false
}

func (r *BufferedReader) Status() error { return r.err }

func (r *BufferedReader) inScratch() bool { return r.scratch != nil }

// drainScratch discards the scratch buffer once it has been fully
// consumed by the caller's MoveCursor calls, re-establishing the real
// buffer pointers. Per spec.md §4.1.4 this must happen before any other
// state-changing call observes the reader.
func (r *BufferedReader) drainScratch() {
	if r.scratch != nil && r.scrPos >= len(r.scratch) {
		r.scratch = nil
		r.scrPos = 0
	}
}

func (r *BufferedReader) Pull(min int) bool {
	if r.err != nil {
		return false
	}
	if min <= 0 {
		min = 1
	}
	r.drainScratch()
	if r.inScratch() {
		if len(r.scratch)-r.scrPos >= min {
			return true
		}
		return r.growScratch(min)
	}
	if r.filled-r.start >= min {
		return true
	}
	// Compact remaining bytes to the front, then refill.
	if r.start > 0 {
		n := copy(r.buf, r.buf[r.start:r.filled])
		r.start, r.filled = 0, n
	}
	if len(r.buf) < min {
		// The steady-state buffer can never satisfy this request; engage
		// the scratch rescue instead of growing buf.
		return r.engageScratch(min)
	}
	for r.filled-r.start < min {
		n, err := r.src.Get().Read(r.buf[r.filled:])
		r.filled += n
		if n == 0 {
			if err == nil {
				err = io.ErrNoProgress
			}
			if err == io.EOF {
				if r.filled-r.start >= min {
					break
				}
				return r.fail(rerror.WithKind(rerror.OutOfRange, io.EOF))
			}
			return r.fail(rerror.Annotate(err, "reading"))
		}
	}
	return true
}

func (r *BufferedReader) engageScratch(min int) bool {
	scratch := make([]byte, 0, min)
	scratch = append(scratch, r.buf[r.start:r.filled]...)
	r.start, r.filled = 0, 0
	for len(scratch) < min {
		if cap(scratch) < min {
			grown := make([]byte, len(scratch), min)
			copy(grown, scratch)
			scratch = grown
		}
		n, err := r.src.Get().Read(scratch[len(scratch):cap(scratch)])
		scratch = scratch[:len(scratch)+n]
		if n == 0 {
			if err == io.EOF {
				r.scratch, r.scrPos = scratch, 0
				return r.fail(rerror.WithKind(rerror.OutOfRange, io.EOF))
			}
			if err == nil {
				err = io.ErrNoProgress
			}
			return r.fail(rerror.Annotate(err, "reading"))
		}
	}
	r.scratch, r.scrPos = scratch, 0
	return true
}

func (r *BufferedReader) growScratch(min int) bool {
	needed := len(r.scratch) - r.scrPos
	grown := make([]byte, 0, min)
	grown = append(grown, r.scratch[r.scrPos:]...)
	r.scratch, r.scrPos = grown, 0
	for len(r.scratch) < min {
		n, err := r.src.Get().Read(r.scratch[len(r.scratch):cap(r.scratch)])
		r.scratch = r.scratch[:len(r.scratch)+n]
		if n == 0 {
			if err == io.EOF {
				if len(r.scratch) >= needed && len(r.scratch) > 0 {
					break
				}
				return r.fail(rerror.WithKind(rerror.OutOfRange, io.EOF))
			}
			if err == nil {
				err = io.ErrNoProgress
			}
			return r.fail(rerror.Annotate(err, "reading"))
		}
	}
	return len(r.scratch)-r.scrPos >= min
}

func (r *BufferedReader) Cursor() []byte {
	if r.inScratch() {
		return r.scratch[r.scrPos:]
	}
	return r.buf[r.start:r.filled]
}

func (r *BufferedReader) MoveCursor(n int) {
	r.pos += int64(n)
	if r.inScratch() {
		r.scrPos += n
		r.drainScratch()
		return
	}
	r.start += n
}

func (r *BufferedReader) Available() int { return len(r.Cursor()) }

func (r *BufferedReader) ReadInto(dst []byte) bool {
	for len(dst) > 0 {
		if r.Available() == 0 {
			if !r.Pull(1) {
				return false
			}
		}
		n := copy(dst, r.Cursor())
		r.MoveCursor(n)
		dst = dst[n:]
	}
	return true
}

func (r *BufferedReader) CopyTo(w io.Writer, n int64) bool {
	for n > 0 {
		if r.Available() == 0 {
			if !r.Pull(1) {
				return false
			}
		}
		c := r.Cursor()
		if int64(len(c)) > n {
			c = c[:n]
		}
		if _, err := w.Write(c); err != nil {
			return r.fail(rerror.Annotate(err, "copying"))
		}
		r.MoveCursor(len(c))
		n -= int64(len(c))
	}
	return true
}

func (r *BufferedReader) Skip(n int64) bool {
	for n > 0 {
		if r.Available() == 0 {
			if !r.Pull(1) {
				return false
			}
		}
		c := int64(r.Available())
		if c > n {
			c = n
		}
		r.MoveCursor(int(c))
		n -= c
	}
	return true
}

func (r *BufferedReader) Seek(pos int64) bool {
	if r.seeker == nil {
		return r.fail(rerror.New(rerror.Unimplemented, "Seek not supported"))
	}
	r.scratch, r.scrPos = nil, 0
	r.start, r.filled = 0, 0
	if !r.seeker(pos) {
		return false
	}
	r.pos = pos
	// A successful reposition supersedes any prior sticky error (e.g. the
	// OutOfRange a Pull past end of stream leaves behind); otherwise every
	// Pull after a successful Seek would keep failing on stale state.
	r.err = nil
	return true
}

func (r *BufferedReader) Size() (int64, bool) {
	if r.sizer == nil {
		return 0, false
	}
	return r.sizer()
}

func (r *BufferedReader) Pos() int64 { return r.pos }

func (r *BufferedReader) VerifyEnd() bool {
	if r.Available() > 0 {
		return r.fail(rerror.New(rerror.InvalidArgument, "unexpected trailing data at byte %d", r.pos))
	}
	if !r.Pull(1) {
		if rerror.KindOf(r.err) == rerror.OutOfRange {
			r.err = nil
		}
		return r.err == nil
	}
	return r.fail(rerror.New(rerror.InvalidArgument, "unexpected trailing data at byte %d", r.pos))
}

func (r *BufferedReader) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	if err := r.src.Close(); err != nil && r.err == nil {
		r.err = rerror.Annotate(err, "closing")
	}
	return r.err
}
