package envelope

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

func TestCompressDecompressBytes_AllTags(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 50)
	for _, tag := range []Tag{TagNone, TagBrotli, TagZstd, TagSnappy, TagHadoopSnappy} {
		compressed, err := CompressBytes(tag, data, CodecOptions{})
		require.NoError(t, err, "tag %v", tag)

		got, err := DecompressBytes(tag, compressed, int64(len(data)))
		require.NoError(t, err, "tag %v", tag)
		require.Equal(t, data, got, "tag %v", tag)
	}
}

func TestCompressDecompressBytes_UnknownDecodedSize(t *testing.T) {
	data := []byte("short payload")
	compressed, err := CompressBytes(TagZstd, data, CodecOptions{})
	require.NoError(t, err)

	got, err := DecompressBytes(TagZstd, compressed, -1)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

type memWriteCloser struct{ buf *bytes.Buffer }

func (m memWriteCloser) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m memWriteCloser) Close() error                { return nil }

func TestDigestingWriterReader_TeeAgree(t *testing.T) {
	var buf bytes.Buffer
	w := bytestream.NewBufferedWriter(bytestream.Owned[io.WriteCloser](memWriteCloser{&buf}), 0)
	dw := NewDigestingWriter(w, NewXXH64())
	require.True(t, dw.Write([]byte("hello, ")))
	require.True(t, dw.Write([]byte("digest")))
	require.NoError(t, w.Close())

	want := dw.Sum64()

	r := bytestream.NewBufferedReader(bytestream.Owned[io.ReadCloser](io.NopCloser(bytes.NewReader(buf.Bytes()))), 0)
	dr := NewDigestingReader(r, NewXXH64())
	got := make([]byte, buf.Len())
	require.True(t, dr.ReadInto(got))
	require.Equal(t, "hello, digest", string(got))
	require.Equal(t, want, dr.Sum64())
}

func TestVerifyDigest_Mismatch(t *testing.T) {
	err := VerifyDigest("payload", 1, 2)
	require.Error(t, err)
	require.Equal(t, rerror.DataLoss, rerror.KindOf(err))
}

func TestVerifyDigest_Match(t *testing.T) {
	require.NoError(t, VerifyDigest("payload", 42, 42))
}

func TestLimitingWriter_FailsPastLimit(t *testing.T) {
	var buf bytes.Buffer
	w := bytestream.NewBufferedWriter(bytestream.Owned[io.WriteCloser](memWriteCloser{&buf}), 0)
	lw := NewLimitingWriter(w, 10)

	require.True(t, lw.Write([]byte("12345")))
	require.Equal(t, int64(5), lw.Remaining())
	require.False(t, lw.Write([]byte("too long to fit")))
	require.Error(t, lw.Status())
	require.Equal(t, rerror.ResourceExhausted, rerror.KindOf(lw.Status()))
}
