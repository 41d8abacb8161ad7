package chunk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

type memWriteCloser struct{ buf *bytes.Buffer }

func (m memWriteCloser) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m memWriteCloser) Close() error                { return nil }

func newMemWriter(buf *bytes.Buffer) bytestream.Writer {
	return bytestream.NewBufferedWriter(bytestream.Owned[io.WriteCloser](memWriteCloser{buf}), 0)
}

func newMemReader(data []byte) *bytestream.BufferedReader {
	br := bytes.NewReader(data)
	r := bytestream.NewBufferedReader(bytestream.Owned[io.ReadCloser](io.NopCloser(br)), 0)
	r.SetSeeker(func(pos int64) bool {
		_, err := br.Seek(pos, io.SeekStart)
		return err == nil
	}, func() (int64, bool) {
		return int64(len(data)), true
	})
	return r
}

func TestChunkWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(FileSignature, 0, 0, nil))
	require.NoError(t, cw.WriteChunk(Simple, 2, 10, []byte("0123456789")))
	require.NoError(t, cw.Close())

	cr := NewReader(newMemReader(buf.Bytes()))
	require.NoError(t, cr.CheckFileFormat())

	hdr, payload, err := cr.ReadChunk()
	require.NoError(t, err)
	require.Equal(t, Simple, hdr.ChunkType)
	require.Equal(t, uint64(2), hdr.NumRecords)
	require.Equal(t, []byte("0123456789"), payload)

	_, err = cr.PullHeader()
	require.Equal(t, rerror.OutOfRange, rerror.KindOf(err))
}

func TestChunkReader_DataHashMismatch(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(Simple, 1, 5, []byte("hello")))
	require.NoError(t, cw.Close())

	corrupted := append([]byte(nil), buf.Bytes()...)
	corrupted[len(corrupted)-1] ^= 0xff // flip a payload byte, header hash untouched

	cr := NewReader(newMemReader(corrupted))
	_, _, err := cr.ReadChunk()
	require.Error(t, err)
	require.Equal(t, rerror.DataLoss, rerror.KindOf(err))
}

func TestChunkReader_HeaderHashMismatch(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(Simple, 1, 5, []byte("hello")))
	require.NoError(t, cw.Close())

	corrupted := append([]byte(nil), buf.Bytes()...)
	corrupted[10] ^= 0xff // flip a header field without updating HeaderHash

	cr := NewReader(newMemReader(corrupted))
	_, err := cr.PullHeader()
	require.Error(t, err)
	require.Equal(t, rerror.DataLoss, rerror.KindOf(err))
}

func TestCheckFileFormat_RejectsMissingSignature(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(Simple, 1, 5, []byte("hello")))
	require.NoError(t, cw.Close())

	cr := NewReader(newMemReader(buf.Bytes()))
	err := cr.CheckFileFormat()
	require.Error(t, err)
	require.Equal(t, rerror.InvalidArgument, rerror.KindOf(err))
}

// TestSeekToChunkBefore_PastEndClearsStickyError guards against
// SeekToChunkBefore leaving the reader permanently wedged after its
// internal scan runs off the end of the stream looking for a chunk
// boundary at or after pos.
func TestSeekToChunkBefore_PastEndClearsStickyError(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(FileSignature, 0, 0, nil))
	require.NoError(t, cw.WriteChunk(Simple, 1, 5, []byte("hello")))
	require.NoError(t, cw.Close())

	cr := NewReader(newMemReader(buf.Bytes()))
	require.True(t, cr.SeekToChunkBefore(int64(len(buf.Bytes()))+1000))
	require.NoError(t, cr.Status())

	hdr, _, err := cr.ReadChunk()
	require.NoError(t, err)
	require.Equal(t, Simple, hdr.ChunkType)
}

func TestReader_Recover_SkipsCorruptRegion(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(newMemWriter(&buf))
	require.NoError(t, cw.WriteChunk(FileSignature, 0, 0, nil))
	good := cw.Pos()
	require.NoError(t, cw.WriteChunk(Simple, 1, 5, []byte("hello")))
	require.NoError(t, cw.Close())

	data := append([]byte(nil), buf.Bytes()...)
	for i := good; i < good+Size; i++ {
		data[i] = 0xff
	}

	cr := NewReader(newMemReader(data))
	require.NoError(t, cr.CheckFileFormat())
	_, _, err := cr.ReadChunk()
	require.Error(t, err)

	_, ok := cr.Recover()
	require.False(t, ok) // corrupted header has no later valid chunk to find
}
