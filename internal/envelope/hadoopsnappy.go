package envelope

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

const defaultHadoopBlockSize = 64 << 10

// hadoopSnappyCodec frames golang/snappy blocks the way Hadoop's
// SnappyCodec does: each frame is
//
//	uncompressed_length (big-endian uint32)
//	compressed_length   (big-endian uint32)
//	compressed bytes
//
// with input split into BlockSize chunks before compression (spec.md
// §4.2.1's hadoop-snappy block_size option).
type hadoopSnappyCodec struct{}

func init() { Register(hadoopSnappyCodec{}) }

func (hadoopSnappyCodec) Tag() Tag { return TagHadoopSnappy }

func (hadoopSnappyCodec) NewWriter(w bytestream.Writer, opts CodecOptions) (io.WriteCloser, error) {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = defaultHadoopBlockSize
	}
	return &hadoopSnappyWriter{dst: w, blockSize: blockSize, pending: make([]byte, 0, blockSize)}, nil
}

func (hadoopSnappyCodec) NewReader(r io.Reader, _ CodecOptions) (io.ReadCloser, error) {
	return &hadoopSnappyReader{src: r}, nil
}

type hadoopSnappyWriter struct {
	dst       bytestream.Writer
	blockSize int
	pending   []byte
}

func (hw *hadoopSnappyWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		room := hw.blockSize - len(hw.pending)
		n := room
		if n > len(p) {
			n = len(p)
		}
		hw.pending = append(hw.pending, p[:n]...)
		p = p[n:]
		if len(hw.pending) == hw.blockSize {
			if err := hw.flushBlock(); err != nil {
				return total - len(p) - n, err
			}
		}
	}
	return total, nil
}

func (hw *hadoopSnappyWriter) flushBlock() error {
	if len(hw.pending) == 0 {
		return nil
	}
	compressed := snappy.Encode(nil, hw.pending)
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(hw.pending)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(compressed)))
	if !hw.dst.Write(header[:]) || !hw.dst.Write(compressed) {
		if err := hw.dst.Status(); err != nil {
			return err
		}
		return io.ErrShortWrite
	}
	hw.pending = hw.pending[:0]
	return nil
}

func (hw *hadoopSnappyWriter) Close() error { return hw.flushBlock() }

type hadoopSnappyReader struct {
	src     io.Reader
	pending []byte
}

func (hr *hadoopSnappyReader) Read(p []byte) (int, error) {
	for len(hr.pending) == 0 {
		var header [8]byte
		if _, err := io.ReadFull(hr.src, header[:]); err != nil {
			if err == io.ErrUnexpectedEOF {
				return 0, rerror.WithKind(rerror.DataLoss, err)
			}
			return 0, err
		}
		uncompressedLen := binary.BigEndian.Uint32(header[0:4])
		compressedLen := binary.BigEndian.Uint32(header[4:8])
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(hr.src, compressed); err != nil {
			return 0, rerror.WithKind(rerror.DataLoss, err)
		}
		decoded, err := snappy.Decode(make([]byte, 0, uncompressedLen), compressed)
		if err != nil {
			return 0, rerror.WithKind(rerror.DataLoss, err)
		}
		if uint32(len(decoded)) != uncompressedLen {
			return 0, rerror.New(rerror.DataLoss, "hadoop-snappy block declared %d bytes, decoded %d", uncompressedLen, len(decoded))
		}
		hr.pending = decoded
	}
	n := copy(p, hr.pending)
	hr.pending = hr.pending[n:]
	return n, nil
}

func (hr *hadoopSnappyReader) Close() error { return nil }
