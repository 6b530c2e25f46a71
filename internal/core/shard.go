package core

import (
	"tracefilt/internal/filter"
	"tracefilt/internal/sink"
	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// Shard is the per-shard filtering state. After registration it is owned
// exclusively by the worker driving that shard; nothing here is shared.
type Shard struct {
	index      int
	src        source.Source
	outputPath string

	out     sink.Sink
	archive sink.Archive // non-nil only for chunked archive sinks
	closed  bool

	// enabled is the stop-timestamp gate: one-way true -> false.
	enabled bool

	chunkOrdinal     uint64
	removedFromChunk uint64 // logical units dropped since the prior ordinal marker

	inputCount  uint64
	outputCount uint64

	// lastEncoding buffers the encoding sequence immediately preceding the
	// current record; delayedEncodings holds sequences whose instruction was
	// filtered out, keyed by instruction address, latest wins.
	lastEncoding     []trace.Record
	delayedEncodings map[uint64][]trace.Record

	filterStates []filter.State

	err error // first fatal error; nil means healthy
}

// Index returns the shard's registration index.
func (sh *Shard) Index() int { return sh.index }

// OutputPath returns the path the shard's sink writes to.
func (sh *Shard) OutputPath() string { return sh.outputPath }

// Counts returns the shard's input and output record tallies.
func (sh *Shard) Counts() (in, out uint64) { return sh.inputCount, sh.outputCount }

// closeSink releases the shard's sink exactly once, forcing a flush.
func (sh *Shard) closeSink() error {
	if sh.closed || sh.out == nil {
		return nil
	}
	sh.closed = true
	return sh.out.Close()
}
