package bytestream

import "github.com/ChiZhang0907/riegeli/rerror"

// BackwardWriter mirrors Writer but grows its buffer toward lower
// addresses (spec.md §4.1.3): each Push reserves space immediately
// before the data written so far, so a caller that only learns a
// value's length after writing it (the transpose encoder's submessage
// lengths, spec.md §4.4.4) can prepend the length prefix without a
// second pass over already-emitted bytes. It is kept as its own
// interface rather than unified with Writer, per spec.md §9: the cursor
// arithmetic is inverted and conflating the two invites bugs.
//
// Zero-copy callers that Push(n) and then fill Cursor() themselves must
// fill it starting from the END of the slice (the end adjacent to
// already-committed data) and report how many bytes they filled via
// MoveCursor; this keeps committed bytes contiguous without a shift.
// Callers that don't need zero-copy should just use Write/WriteByte.
type BackwardWriter interface {
	// Push ensures at least min bytes of writable space are reserved
	// immediately before the already-written data.
	Push(min int) bool

	// Cursor returns the reserved-but-unwritten space. Fill it from the
	// end backward (see type doc) and report progress via MoveCursor.
	Cursor() []byte

	// MoveCursor commits the last n bytes of Cursor() (the n bytes
	// nearest the existing data) as written.
	MoveCursor(n int)

	// Write prepends p in its original (not reversed) byte order: after
	// Write(p), Bytes() begins with p followed by whatever was already
	// written.
	Write(p []byte) bool

	// WriteByte prepends a single byte.
	WriteByte(b byte) bool

	// WriteZeros prepends n zero bytes.
	WriteZeros(n int64) bool

	// Len returns the total number of bytes written so far.
	Len() int64

	// Bytes returns the accumulated data in final (forward) order. The
	// returned slice aliases internal storage and is invalidated by any
	// further write.
	Bytes() []byte

	// Close releases any owned resources. Idempotent.
	Close() error

	// Status returns the sticky error, if any.
	Status() error
}

// ChainBackwardWriter is a BackwardWriter backed entirely by memory,
// used to build one chunk's transposed payload before it is handed to
// the chunk writer (spec.md §4.4.4). It grows by reallocating and
// copying already-committed data to the tail of a larger buffer.
type ChainBackwardWriter struct {
	buf     []byte // capacity is the current allocation
	pos     int    // buf[pos:] holds committed data
	reserve int    // buf[pos-reserve:pos] is the active Push reservation
	err     error
	closed  bool
}

// NewChainBackwardWriter returns an empty ChainBackwardWriter with an
// initial capacity hint.
func NewChainBackwardWriter(capacityHint int) *ChainBackwardWriter {
	if capacityHint <= 0 {
		capacityHint = 4096
	}
	buf := make([]byte, capacityHint)
	return &ChainBackwardWriter{buf: buf, pos: capacityHint}
}

func (w *ChainBackwardWriter) fail(err error) bool {
	if w.err == nil {
		w.err = err
	}
	return false
}

func (w *ChainBackwardWriter) Status() error { return w.err }

func (w *ChainBackwardWriter) Push(min int) bool {
	if w.err != nil {
		return false
	}
	if min <= 0 {
		min = 1
	}
	if w.reserve >= min {
		return true
	}
	need := min - w.reserve
	if w.pos-w.reserve >= need {
		w.reserve = min
		return true
	}
	committed := len(w.buf) - w.pos
	newCap := len(w.buf)*2 + min
	newBuf := make([]byte, newCap)
	newPos := newCap - committed
	copy(newBuf[newPos:], w.buf[w.pos:])
	w.buf = newBuf
	w.pos = newPos
	w.reserve = min
	return true
}

func (w *ChainBackwardWriter) Cursor() []byte {
	return w.buf[w.pos-w.reserve : w.pos]
}

func (w *ChainBackwardWriter) MoveCursor(n int) {
	if n > w.reserve {
		n = w.reserve
	}
	w.pos -= n
	w.reserve -= n
}

func (w *ChainBackwardWriter) Write(p []byte) bool {
	if len(p) == 0 {
		return w.err == nil
	}
	if !w.Push(len(p)) {
		return false
	}
	c := w.Cursor()
	copy(c[len(c)-len(p):], p)
	w.MoveCursor(len(p))
	return true
}

func (w *ChainBackwardWriter) WriteByte(b byte) bool {
	if !w.Push(1) {
		return false
	}
	c := w.Cursor()
	c[len(c)-1] = b
	w.MoveCursor(1)
	return true
}

func (w *ChainBackwardWriter) WriteZeros(n int64) bool {
	for n > 0 {
		chunk := n
		if chunk > 4096 {
			chunk = 4096
		}
		if !w.Push(int(chunk)) {
			return false
		}
		c := w.Cursor()
		c = c[len(c)-int(chunk):]
		for i := range c {
			c[i] = 0
		}
		w.MoveCursor(len(c))
		n -= int64(len(c))
	}
	return true
}

// WriteVarint prepends the varint encoding of x, most natural use being
// a submessage length prefix written after its body (spec.md §4.4.4
// step 2).
func (w *ChainBackwardWriter) WriteVarint(x uint64) bool {
	var tmp [10]byte
	n := len(PutVarint(tmp[:0], x))
	return w.Write(tmp[:n])
}

func (w *ChainBackwardWriter) Len() int64 { return int64(len(w.buf) - w.pos) }

func (w *ChainBackwardWriter) Bytes() []byte { return w.buf[w.pos:] }

func (w *ChainBackwardWriter) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.reserve != 0 {
		w.fail(rerror.New(rerror.FailedPrecondition, "closed with an open Push reservation"))
	}
	return w.err
}
