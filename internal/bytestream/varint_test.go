package bytestream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 300, 1<<14 - 1, 1 << 14, 1 << 35, ^uint64(0)}
	for _, v := range vals {
		buf := PutVarint(nil, v)
		require.Equal(t, VarintLength(v), len(buf))
		got, n := Varint(buf)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestVarint_TruncatedReportsNoMatch(t *testing.T) {
	buf := PutVarint(nil, 1<<20)
	_, n := Varint(buf[:len(buf)-1])
	require.Equal(t, 0, n)
}

func TestVarint_TooManyContinuationBytes(t *testing.T) {
	// 11 bytes, every one carrying the continuation bit: never a valid
	// varint regardless of what follows.
	src := bytes.Repeat([]byte{0x80}, 11)
	_, n := Varint(src)
	require.Equal(t, 0, n)
}

type nopWriteCloser struct{ buf *bytes.Buffer }

func (w nopWriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w nopWriteCloser) Close() error                { return nil }

type nopReadCloser struct{ r *bytes.Reader }

func (r nopReadCloser) Read(p []byte) (int, error) { return r.r.Read(p) }
func (r nopReadCloser) Close() error               { return nil }

func TestBufferedReaderWriter_RoundTrip_AcrossSmallBuffer(t *testing.T) {
	var buf bytes.Buffer
	w := NewBufferedWriter(Owned[io.WriteCloser](nopWriteCloser{&buf}), 8)
	want := "hello world, this is longer than the steady-state buffer"
	require.True(t, w.Write([]byte(want)))
	require.NoError(t, w.Close())

	r := NewBufferedReader(Owned[io.ReadCloser](nopReadCloser{bytes.NewReader(buf.Bytes())}), 8)
	got := make([]byte, buf.Len())
	require.True(t, r.ReadInto(got))
	require.Equal(t, want, string(got))
}

func TestBufferedReader_PullPastEndSetsStickyOutOfRange(t *testing.T) {
	r := NewBufferedReader(Owned[io.ReadCloser](nopReadCloser{bytes.NewReader([]byte("abc"))}), 8)
	require.False(t, r.ReadInto(make([]byte, 10)))
	require.Error(t, r.Status())
}

func TestBufferedReader_SeekClearsStickyError(t *testing.T) {
	data := []byte("0123456789")
	br := bytes.NewReader(data)
	r := NewBufferedReader(Owned[io.ReadCloser](nopReadCloser{br}), 4)
	r.SetSeeker(func(pos int64) bool {
		_, err := br.Seek(pos, io.SeekStart)
		return err == nil
	}, func() (int64, bool) { return int64(len(data)), true })

	require.False(t, r.ReadInto(make([]byte, 20)))
	require.Error(t, r.Status())

	// A successful Seek must clear the sticky error left by running off
	// the end of the stream, or every later Pull stays permanently wedged.
	require.True(t, r.Seek(2))
	require.NoError(t, r.Status())

	got := make([]byte, 3)
	require.True(t, r.ReadInto(got))
	require.Equal(t, "234", string(got))
}
