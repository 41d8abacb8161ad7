package envelope

import "github.com/ChiZhang0907/riegeli/internal/bytestream"

// ShardOpener opens the writer backing shard index, called lazily the
// first time a shard-rotating writer needs it and again every time the
// previous shard is closed for rotation. The actual on-disk naming
// scheme lives outside this module, per spec.md's file-backend
// boundary.
//
// A raw byte-level splitter in the shape of grailbio-base/limitbuf (cut
// the stream every N bytes, regardless of what's mid-flight) cannot
// back a chunk.Writer: a single WriteChunk call writes a chunk's header
// and payload as two separate Write calls, so a byte-granularity
// rotation could sever a header from its payload mid-chunk, producing a
// shard that doesn't even parse as a chunk stream. Real riegeli
// sharding instead rotates between whole, independently-readable chunk
// streams, each with its own signature chunk — riegeli.ShardedWriter
// (sharded_writer.go) is the rotation built against that chunk-aligned
// boundary, using this same ShardOpener collaborator.
type ShardOpener func(index int) (bytestream.Writer, error)
