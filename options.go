package riegeli

import "github.com/ChiZhang0907/riegeli/internal/envelope"

// ChunkTypePolicy selects which chunk encoding a RecordWriter uses for
// each pending batch of records (spec.md §4.5.1).
type ChunkTypePolicy int

const (
	// PreferTransposed encodes every chunk through the columnar
	// transpose codec, the default: it is what makes field projection
	// on read possible.
	PreferTransposed ChunkTypePolicy = iota
	// PreferSimple encodes every chunk as a simple length-delimited
	// chunk, skipping the transpose codec entirely.
	PreferSimple
)

// Options configures a RecordWriter.
type Options struct {
	ChunkTypePolicy ChunkTypePolicy
	CompressionTag  envelope.Tag
	CodecOptions    envelope.CodecOptions

	// ChunkSize is the target uncompressed payload size, in bytes, that
	// triggers an automatic chunk boundary. <= 0 selects a 1 MiB default.
	ChunkSize int64

	// Metadata, if non-nil, is written as the file's metadata chunk
	// immediately after the mandatory signature chunk.
	Metadata *RecordsMetadata

	// MaxSize, if > 0, bounds the total size of the written stream
	// (spec.md §4.2.3): any write that would push the sink's position
	// past MaxSize fails with a ResourceExhausted error instead of
	// growing the stream further. Enforced by wrapping the sink in an
	// envelope.LimitingWriter.
	MaxSize int64
}

func (o Options) chunkSize() int64 {
	if o.ChunkSize <= 0 {
		return 1 << 20
	}
	return o.ChunkSize
}

// Recovery selects what, if anything, a RecordReader automatically
// recovers from when a chunk fails to validate or decode (spec.md
// §4.5.2). The underlying chunk.Reader.Recover byte-scan is identical
// regardless of which layer detected the corruption, so this port
// doesn't distinguish "bad chunk framing" from "bad transpose state" at
// the recovery call site the way the original's two separate recovery
// hooks do (see DESIGN.md).
type Recovery int

const (
	// NoRecovery fails the reader permanently on the first corruption.
	NoRecovery Recovery = iota
	// RecoverAndSkip scans forward past a corrupt region and resumes.
	RecoverAndSkip
)

// ReaderOptions configures a RecordReader.
type ReaderOptions struct {
	Recovery Recovery
}
