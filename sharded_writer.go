package riegeli

import (
	"github.com/ChiZhang0907/riegeli/internal/envelope"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// ShardedWriter distributes records across a sequence of independent
// Riegeli streams, rotating to the next shard (opened lazily through an
// envelope.ShardOpener, the same collaborator envelope.ShardOpener
// documents) once the current shard's byte size reaches ShardSize. Each
// shard is a complete, independently readable stream with its own
// signature (and, when Options.Metadata is set, metadata) chunk — sharding
// happens between chunks, never inside one, so a reader never needs to
// see more than one shard to make progress.
type ShardedWriter struct {
	open      envelope.ShardOpener
	shardSize int64
	opts      Options

	index   int
	current *RecordWriter

	err error
}

// NewShardedWriter builds a ShardedWriter that opens shards through
// open, rotating once a shard's underlying stream reaches shardSize
// bytes. shardSize <= 0 disables rotation (everything goes to shard 0).
func NewShardedWriter(open envelope.ShardOpener, shardSize int64, opts Options) *ShardedWriter {
	return &ShardedWriter{open: open, shardSize: shardSize, opts: opts}
}

func (sw *ShardedWriter) fail(err error) error {
	if sw.err == nil {
		sw.err = err
	}
	return sw.err
}

// Status returns the sticky error, if any.
func (sw *ShardedWriter) Status() error { return sw.err }

func (sw *ShardedWriter) ensureShard() error {
	if sw.current != nil {
		return nil
	}
	w, err := sw.open(sw.index)
	if err != nil {
		return sw.fail(rerror.Annotate(err, "opening shard %d", sw.index))
	}
	rw, err := NewRecordWriter(w, sw.opts)
	if err != nil {
		return sw.fail(rerror.Annotate(err, "starting shard %d", sw.index))
	}
	sw.current = rw
	return nil
}

// rotateIfFull closes the current shard and advances to the next index
// once ShardSize has been reached; the next WriteRecord call opens the
// new shard lazily.
func (sw *ShardedWriter) rotateIfFull() error {
	if sw.current == nil || sw.shardSize <= 0 {
		return nil
	}
	if sw.current.cw.Pos() < sw.shardSize {
		return nil
	}
	if err := sw.current.Close(); err != nil {
		return sw.fail(err)
	}
	sw.index++
	sw.current = nil
	return nil
}

// WriteRecord appends record to the current shard, rotating to a fresh
// shard first if the current one has already reached ShardSize.
func (sw *ShardedWriter) WriteRecord(record []byte) error {
	if sw.err != nil {
		return sw.err
	}
	if err := sw.rotateIfFull(); err != nil {
		return err
	}
	if err := sw.ensureShard(); err != nil {
		return err
	}
	if err := sw.current.WriteRecord(record); err != nil {
		return sw.fail(err)
	}
	return nil
}

// Close flushes and closes whichever shard is currently open.
func (sw *ShardedWriter) Close() error {
	if sw.current != nil {
		if err := sw.current.Close(); err != nil && sw.err == nil {
			sw.err = err
		}
		sw.current = nil
	}
	return sw.err
}
