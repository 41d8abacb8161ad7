package riegeli

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/internal/transpose"
	"github.com/ChiZhang0907/riegeli/rerror"
)

type memWriteCloser struct{ buf *bytes.Buffer }

func (m memWriteCloser) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m memWriteCloser) Close() error                { return nil }

func newMemWriter(buf *bytes.Buffer) bytestream.Writer {
	return bytestream.NewBufferedWriter(bytestream.Owned[io.WriteCloser](memWriteCloser{buf}), 0)
}

type memReadCloser struct{ r *bytes.Reader }

func (m memReadCloser) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m memReadCloser) Close() error               { return nil }

func newMemReader(data []byte) bytestream.Reader {
	br := bytes.NewReader(data)
	bwr := bytestream.NewBufferedReader(bytestream.Owned[io.ReadCloser](memReadCloser{br}), 0)
	bwr.SetSeeker(func(pos int64) bool {
		_, err := br.Seek(pos, io.SeekStart)
		return err == nil
	}, func() (int64, bool) {
		return int64(len(data)), true
	})
	return bwr
}

func writeRecords(t *testing.T, opts Options, records [][]byte) []byte {
	var buf bytes.Buffer
	rw, err := NewRecordWriter(newMemWriter(&buf), opts)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, rw.WriteRecord(r))
	}
	require.NoError(t, rw.Close())
	return buf.Bytes()
}

func TestRecordWriterReader_RoundTrip_Transposed(t *testing.T) {
	records := [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie")}
	data := writeRecords(t, Options{ChunkTypePolicy: PreferTransposed}, records)

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	for _, want := range records {
		got, err := rr.ReadRecord()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err = rr.ReadRecord()
	require.Equal(t, rerror.OutOfRange, rerror.KindOf(err))
}

func TestRecordWriterReader_RoundTrip_Simple(t *testing.T) {
	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	data := writeRecords(t, Options{ChunkTypePolicy: PreferSimple}, records)

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	for _, want := range records {
		got, err := rr.ReadRecord()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRecordWriterReader_Metadata(t *testing.T) {
	meta := RecordsMetadata{
		FileComment: "test file",
		Custom:      map[string]string{"owner": "riegeli-go", "unit": "bytes"},
	}
	data := writeRecords(t, Options{Metadata: &meta}, [][]byte{[]byte("only-record")})

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	require.NotNil(t, rr.Metadata())
	require.Equal(t, meta.FileComment, rr.Metadata().FileComment)
	require.Equal(t, meta.Custom, rr.Metadata().Custom)

	got, err := rr.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, []byte("only-record"), got)
}

func TestRecordReader_SeekAndSeekBack(t *testing.T) {
	records := [][]byte{[]byte("r0"), []byte("r1"), []byte("r2"), []byte("r3")}
	// ChunkSize 1 forces each record into its own chunk.
	data := writeRecords(t, Options{ChunkSize: 1}, records)

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)

	var positions []RecordPosition
	// Read sequentially with a second reader, recording each chunk's
	// begin offset so rr can seek to known positions below.
	rr2, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	for range records {
		_, err := rr2.ReadRecord()
		require.NoError(t, err)
		positions = append(positions, RecordPosition{ChunkBegin: rr2.chunkBegin, RecordIndex: 0})
	}

	require.NoError(t, rr.Seek(positions[2]))
	got, err := rr.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, records[2], got)

	require.NoError(t, rr.SeekBack())
	require.NoError(t, rr.SeekBack())
	got, err = rr.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, records[1], got)
}

func TestRecordReader_Search(t *testing.T) {
	records := [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie"), []byte("delta")}
	data := writeRecords(t, Options{ChunkSize: 1}, records)

	cmpTo := func(target []byte) func([]byte) Ordering {
		return func(rec []byte) Ordering {
			switch c := bytes.Compare(rec, target); {
			case c < 0:
				return Less
			case c == 0:
				return Equal
			default:
				return Greater
			}
		}
	}

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	pos, err := rr.Search(cmpTo([]byte("charlie")))
	require.NoError(t, err)
	got, err := rr.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, []byte("charlie"), got)
	_ = pos

	rr2, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)
	_, err = rr2.Search(cmpTo([]byte("cherry")))
	require.NoError(t, err)
	got, err = rr2.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, []byte("delta"), got)
}

func TestRecordWriter_MaxSizeEnforced(t *testing.T) {
	var buf bytes.Buffer
	rw, err := NewRecordWriter(newMemWriter(&buf), Options{ChunkSize: 1, MaxSize: 50})
	require.NoError(t, err)

	var failed error
	for i := 0; i < 20 && failed == nil; i++ {
		failed = rw.WriteRecord([]byte("some moderately sized record"))
	}
	require.Error(t, failed)
	require.Equal(t, rerror.ResourceExhausted, rerror.KindOf(failed))
}

func TestShardedWriter_RotatesAndEachShardReadsBack(t *testing.T) {
	var shardBufs []*bytes.Buffer
	opener := func(index int) (bytestream.Writer, error) {
		buf := &bytes.Buffer{}
		shardBufs = append(shardBufs, buf)
		return newMemWriter(buf), nil
	}

	sw := NewShardedWriter(opener, 64, Options{ChunkSize: 1})
	records := [][]byte{
		[]byte("shard-record-one"),
		[]byte("shard-record-two"),
		[]byte("shard-record-three"),
		[]byte("shard-record-four"),
	}
	for _, r := range records {
		require.NoError(t, sw.WriteRecord(r))
	}
	require.NoError(t, sw.Close())
	require.Greater(t, len(shardBufs), 1)

	var got [][]byte
	for _, buf := range shardBufs {
		rr, err := NewRecordReader(newMemReader(buf.Bytes()), ReaderOptions{})
		require.NoError(t, err)
		for {
			rec, err := rr.ReadRecord()
			if err != nil {
				require.Equal(t, rerror.OutOfRange, rerror.KindOf(err))
				break
			}
			got = append(got, rec)
		}
	}
	require.Equal(t, records, got)
}

func buildProjectableRecord() []byte {
	r := protowire.AppendTag(nil, 1, protowire.VarintType)
	r = protowire.AppendVarint(r, 99)
	r = protowire.AppendTag(r, 2, protowire.BytesType)
	r = protowire.AppendBytes(r, []byte("ignored"))
	return r
}

func TestRecordReader_FieldProjection_FromStart(t *testing.T) {
	rec := buildProjectableRecord()
	data := writeRecords(t, Options{ChunkTypePolicy: PreferTransposed}, [][]byte{rec})

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)

	proj := transpose.NewFieldProjection()
	proj.AddPath([]uint32{1}, false)
	require.NoError(t, rr.SetFieldProjection(proj))

	got, err := rr.ReadRecord()
	require.NoError(t, err)

	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 99)
	require.Equal(t, want, got)
}

func TestRecordReader_FieldProjection_Reload(t *testing.T) {
	rec := buildProjectableRecord()
	data := writeRecords(t, Options{ChunkTypePolicy: PreferTransposed}, [][]byte{rec})

	rr, err := NewRecordReader(newMemReader(data), ReaderOptions{})
	require.NoError(t, err)

	full, err := rr.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, rec, full)

	begin := rr.chunkBegin
	proj := transpose.NewFieldProjection()
	proj.AddPath([]uint32{2}, false)
	require.NoError(t, rr.SetFieldProjection(proj))
	require.NoError(t, rr.Seek(RecordPosition{ChunkBegin: begin, RecordIndex: 0}))

	got, err := rr.ReadRecord()
	require.NoError(t, err)

	want := protowire.AppendTag(nil, 2, protowire.BytesType)
	want = protowire.AppendBytes(want, []byte("ignored"))
	require.Equal(t, want, got)
}
