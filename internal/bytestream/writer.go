package bytestream

import (
	"io"

	"github.com/ChiZhang0907/riegeli/rerror"
)

// FlushKind selects how durably Flush propagates buffered data
// (spec.md §4.1.2).
type FlushKind int

const (
	// FromObject merely drains in-process buffers into the sink.
	FromObject FlushKind = iota
	// FromProcess ensures the OS has the data (e.g. past a pipe buffer).
	FromProcess
	// FromMachine ensures the data survives a machine crash (fsync).
	FromMachine
)

// Writer is the forward-writing half of the cursor protocol (spec.md
// §4.1.2). Push reserves space at Cursor(); callers that want zero-copy
// access write directly into Cursor() and advance with MoveCursor.
// Write/WriteChain/WriteZeros are convenience wrappers for callers that
// just want bytes delivered from their own buffer.
type Writer interface {
	// Push ensures at least min bytes (default 1 if min <= 0) of
	// writable space are available at Cursor(). hint is the writer's
	// best estimate of how much more data is coming, used to size a
	// scratch rescue if one is needed; it may be 0.
	Push(min int, hint int64) bool

	// Cursor returns the writable space reserved by the last Push. The
	// slice is invalidated by the next Push, MoveCursor, or any other
	// state-changing call.
	Cursor() []byte

	// MoveCursor commits n bytes written into Cursor(), which must be
	// <= len(Cursor()).
	MoveCursor(n int)

	// Write copies p in full.
	Write(p []byte) bool

	// WriteChain copies every fragment of c in full.
	WriteChain(c Chain) bool

	// WriteZeros writes n zero bytes.
	WriteZeros(n int64) bool

	// Flush propagates buffered data to the sink at the requested
	// durability.
	Flush(kind FlushKind) bool

	// Pos returns the current logical position.
	Pos() int64

	// Available returns the number of bytes currently at Cursor().
	Available() int

	// Close flushes and releases owned dependencies. Idempotent.
	Close() error

	// Status returns the sticky error, if any.
	Status() error
}

// BufferedWriter is a concrete Writer over an io.Writer, with the
// scratch-buffer rescue of spec.md §4.1.4 for Push requests that exceed
// the configured buffer capacity, and the write-through threshold of
// spec.md §4.1.6 for large direct Write calls.
type BufferedWriter struct {
	sink Dependency[io.WriteCloser]

	buf    []byte // steady-state buffer, capacity == bufferSize
	cursor int    // first unwritten byte in buf

	scratch []byte // non-nil while a rescue is in progress

	pos    int64
	err    error
	closed bool

	flusher func(FlushKind) bool
}

// NewBufferedWriter wraps sink. bufferSize <= 0 selects a 64 KiB default.
func NewBufferedWriter(sink Dependency[io.WriteCloser], bufferSize int) *BufferedWriter {
	if bufferSize <= 0 {
		bufferSize = 64 << 10
	}
	return &BufferedWriter{sink: sink, buf: make([]byte, bufferSize)}
}

// SetFlusher installs durability-specific flush support (e.g. fsync for
// FromMachine); writers that don't support it leave it nil and treat
// every Flush kind as FromObject.
func (w *BufferedWriter) SetFlusher(f func(FlushKind) bool) { w.flusher = f }

func (w *BufferedWriter) fail(err error) bool {
	if w.err == nil {
		w.err = err
	}
	return false
}

func (w *BufferedWriter) Status() error { return w.err }

func (w *BufferedWriter) inScratch() bool { return w.scratch != nil }

// flushBuffer drains the steady-state buffer to the sink. It does not
// touch the scratch buffer; callers must drainScratch first if a
// rescue is active.
func (w *BufferedWriter) flushBuffer() bool {
	if w.cursor == 0 {
		return true
	}
	n, err := w.sink.Get().Write(w.buf[:w.cursor])
	w.cursor -= n
	if w.cursor > 0 {
		copy(w.buf, w.buf[n:n+w.cursor])
	}
	if err != nil {
		return w.fail(rerror.Annotate(err, "writing at byte %d", w.pos))
	}
	return true
}

// drainScratch flushes the buffer, then the scratch contents, directly
// to the sink, and deactivates the rescue. Called from every
// state-changing entry point per spec.md §4.1.4.
func (w *BufferedWriter) drainScratch() bool {
	if !w.inScratch() {
		return true
	}
	if !w.flushBuffer() {
		return false
	}
	if len(w.scratch) > 0 {
		if _, err := w.sink.Get().Write(w.scratch); err != nil {
			w.scratch = nil
			return w.fail(rerror.Annotate(err, "writing at byte %d", w.pos))
		}
	}
	w.scratch = nil
	return true
}

func (w *BufferedWriter) Push(min int, hint int64) bool {
	if w.err != nil {
		return false
	}
	if min <= 0 {
		min = 1
	}
	if w.inScratch() {
		if cap(w.scratch)-len(w.scratch) >= min {
			return true
		}
		size := min
		if hint > int64(size) {
			size = int(hint)
		}
		grown := make([]byte, len(w.scratch), len(w.scratch)+size)
		copy(grown, w.scratch)
		w.scratch = grown
		return true
	}
	if len(w.buf)-w.cursor >= min {
		return true
	}
	if !w.flushBuffer() {
		return false
	}
	if len(w.buf) >= min {
		return true
	}
	// The steady-state buffer can never satisfy this request; engage
	// the scratch rescue instead of growing buf.
	size := min
	if hint > int64(size) {
		size = int(hint)
	}
	w.scratch = make([]byte, 0, size)
	return true
}

func (w *BufferedWriter) Cursor() []byte {
	if w.inScratch() {
		return w.scratch[len(w.scratch):cap(w.scratch)]
	}
	return w.buf[w.cursor:]
}

func (w *BufferedWriter) MoveCursor(n int) {
	w.pos += int64(n)
	if w.inScratch() {
		w.scratch = w.scratch[:len(w.scratch)+n]
		return
	}
	w.cursor += n
}

func (w *BufferedWriter) Available() int { return len(w.Cursor()) }

func (w *BufferedWriter) Write(p []byte) bool {
	if len(p) == 0 {
		return w.err == nil
	}
	// Pushing exactly the available bytes must not invoke the slow
	// path (spec.md §8 boundary behavior).
	if w.Available() >= len(p) {
		copy(w.Cursor(), p)
		w.MoveCursor(len(p))
		return true
	}
	if len(p) >= len(w.buf) && !w.inScratch() {
		if !w.drainScratch() || !w.flushBuffer() {
			return false
		}
		n, err := w.sink.Get().Write(p)
		w.pos += int64(n)
		if err != nil {
			return w.fail(rerror.Annotate(err, "writing at byte %d", w.pos))
		}
		return true
	}
	for len(p) > 0 {
		if !w.Push(1, int64(len(p))) {
			return false
		}
		n := copy(w.Cursor(), p)
		w.MoveCursor(n)
		p = p[n:]
	}
	return true
}

func (w *BufferedWriter) WriteChain(c Chain) bool {
	for _, f := range c.Fragments() {
		if !w.Write(f) {
			return false
		}
	}
	return true
}

func (w *BufferedWriter) WriteZeros(n int64) bool {
	if n == 0 {
		return w.err == nil
	}
	for n > 0 {
		if !w.Push(1, n) {
			return false
		}
		c := w.Cursor()
		z := int64(len(c))
		if z > n {
			z = n
		}
		for i := int64(0); i < z; i++ {
			c[i] = 0
		}
		w.MoveCursor(int(z))
		n -= z
	}
	return true
}

func (w *BufferedWriter) Flush(kind FlushKind) bool {
	if w.err != nil {
		return false
	}
	if !w.drainScratch() || !w.flushBuffer() {
		return false
	}
	if kind == FromObject || w.flusher == nil {
		return true
	}
	return w.flusher(kind)
}

func (w *BufferedWriter) Pos() int64 { return w.pos }

func (w *BufferedWriter) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	w.Flush(FromObject)
	if err := w.sink.Close(); err != nil && w.err == nil {
		w.err = rerror.Annotate(err, "closing")
	}
	return w.err
}
