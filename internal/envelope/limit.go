package envelope

import (
	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// LimitingWriter enforces spec.md §4.2.3's bound: start_pos + written <=
// size_limit. It is grounded on grailbio-base/limitbuf's size-capping
// io.Writer wrapper, generalized from a plain byte-count cap to
// explicit start+limit position tracking so a writer opened partway
// through an existing stream still enforces an absolute limit.
type LimitingWriter struct {
	bytestream.Writer
	limit int64
	err   error
}

// NewLimitingWriter wraps w, failing any write that would push w.Pos()
// past limit.
func NewLimitingWriter(w bytestream.Writer, limit int64) *LimitingWriter {
	return &LimitingWriter{Writer: w, limit: limit}
}

func (l *LimitingWriter) checkRoom(n int64) bool {
	if l.err != nil {
		return false
	}
	pos := l.Writer.Pos()
	if pos+n > l.limit {
		l.err = rerror.New(rerror.ResourceExhausted, "write of %d bytes at position %d exceeds size limit %d", n, pos, l.limit)
		return false
	}
	return true
}

func (l *LimitingWriter) Write(p []byte) bool {
	return l.checkRoom(int64(len(p))) && l.Writer.Write(p)
}

func (l *LimitingWriter) WriteChain(c bytestream.Chain) bool {
	return l.checkRoom(c.Len()) && l.Writer.WriteChain(c)
}

func (l *LimitingWriter) WriteZeros(n int64) bool {
	return l.checkRoom(n) && l.Writer.WriteZeros(n)
}

func (l *LimitingWriter) Status() error {
	if l.err != nil {
		return l.err
	}
	return l.Writer.Status()
}

// Remaining returns how many more bytes may be written before the limit
// is hit.
func (l *LimitingWriter) Remaining() int64 {
	r := l.limit - l.Writer.Pos()
	if r < 0 {
		return 0
	}
	return r
}
