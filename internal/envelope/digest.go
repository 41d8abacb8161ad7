package envelope

import (
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// Digester is any running checksum that consumes bytes incrementally and
// reports a final value on demand (spec.md §4.2.2). The concrete
// instance used throughout L3/L4 is github.com/cespare/xxhash/v2 — the
// modern checksum the teacher's own doc comments call out by name
// (grailbio-base/recordio mentions XXH64-class hashing in passing) but
// never actually imports a library for.
type Digester interface {
	Write(p []byte) (int, error)
	Sum64() uint64
	Reset()
}

// NewXXH64 returns a fresh xxhash/v2 digester.
func NewXXH64() Digester { return xxhash.New() }

// DigestingWriter tees every byte written through an inner writer and a
// Digester, exposing a Sum64 accessor once the caller is done. It is
// indistinguishable from its inner Writer except for that one extra
// accessor, per spec.md §4.2.2.
type DigestingWriter struct {
	bytestream.Writer
	dig Digester
}

// NewDigestingWriter wraps w, hashing everything that passes through
// Write/WriteChain/WriteZeros. Bytes written directly into Cursor() and
// committed with MoveCursor() are not hashed, since this wrapper cannot
// see them.
func NewDigestingWriter(w bytestream.Writer, dig Digester) *DigestingWriter {
	return &DigestingWriter{Writer: w, dig: dig}
}

func (d *DigestingWriter) Write(p []byte) bool {
	if !d.Writer.Write(p) {
		return false
	}
	d.dig.Write(p)
	return true
}

func (d *DigestingWriter) WriteChain(c bytestream.Chain) bool {
	for _, f := range c.Fragments() {
		if !d.Write(f) {
			return false
		}
	}
	return true
}

func (d *DigestingWriter) WriteZeros(n int64) bool {
	var zeros [4096]byte
	for n > 0 {
		chunk := int64(len(zeros))
		if chunk > n {
			chunk = n
		}
		if !d.Write(zeros[:chunk]) {
			return false
		}
		n -= chunk
	}
	return true
}

// Sum64 returns the running digest of everything written so far.
func (d *DigestingWriter) Sum64() uint64 { return d.dig.Sum64() }

// DigestingReader tees every byte consumed from an inner reader through
// a Digester. Like DigestingWriter, zero-copy Cursor() consumers bypass
// the digest; callers that need a digest over the whole stream should
// use ReadInto/CopyTo rather than the raw cursor.
type DigestingReader struct {
	bytestream.Reader
	dig Digester
}

// NewDigestingReader wraps r.
func NewDigestingReader(r bytestream.Reader, dig Digester) *DigestingReader {
	return &DigestingReader{Reader: r, dig: dig}
}

func (d *DigestingReader) ReadInto(dst []byte) bool {
	if !d.Reader.ReadInto(dst) {
		return false
	}
	d.dig.Write(dst)
	return true
}

func (d *DigestingReader) CopyTo(w io.Writer, n int64) bool {
	return d.Reader.CopyTo(io.MultiWriter(w, digestSink{d.dig}), n)
}

// Sum64 returns the running digest of everything consumed so far.
func (d *DigestingReader) Sum64() uint64 { return d.dig.Sum64() }

type digestSink struct{ dig Digester }

func (s digestSink) Write(p []byte) (int, error) { return s.dig.Write(p) }

// VerifyDigest compares a computed digest against an expected value,
// returning a DATA_LOSS error on mismatch (spec.md §4.3.2's "any hash
// mismatch → DATA_LOSS").
func VerifyDigest(what string, got, want uint64) error {
	if got != want {
		return rerror.New(rerror.DataLoss, "%s hash mismatch: got %#x, want %#x", what, got, want)
	}
	return nil
}
