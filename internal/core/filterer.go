// Package core implements the shard-state machine of the trace filtering
// pipeline: the stop-timestamp gate, the conjunctive filter chain, marker
// rewriting, the deferred encoding cache, and chunk/archive maintenance.
//
// The hard constraint throughout is that trace metadata assumes positions in
// the pre-filter stream: encoding records belong to the next instruction at
// the same address, chunk footers carry their ordinal, and record-ordinal
// markers count records. Dropping records naively would corrupt all three,
// so every keep/drop decision flows through the patching logic here.
package core

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"tracefilt/internal/filter"
	"tracefilt/internal/sink"
	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// Filterer owns one filtering run. The only cross-shard state is the shard
// registry and the global success flag, both guarded by mu and touched only
// during registration and failure marking, never across record processing.
type Filterer struct {
	outputDir     string
	filters       []filter.Filter
	stopTimestamp uint64
	log           *zap.Logger

	mu      sync.Mutex
	shards  map[int]*Shard
	success bool
}

// New creates a Filterer writing each shard's survivors under outputDir.
// A zero stopTimestamp disables the gate. A nil logger is replaced by a nop.
func New(outputDir string, filters []filter.Filter, stopTimestamp uint64, log *zap.Logger) *Filterer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filterer{
		outputDir:     outputDir,
		filters:       filters,
		stopTimestamp: stopTimestamp,
		log:           log,
		shards:        make(map[int]*Shard),
		success:       true,
	}
}

// fail records the shard's first fatal error and flips the global success
// flag. The flag is monotonic: once false it never resets.
func (f *Filterer) fail(sh *Shard, err error) {
	if sh.err == nil {
		sh.err = err
	}
	f.mu.Lock()
	f.success = false
	f.mu.Unlock()
}

// InitShard creates and registers the state for one shard. The returned
// handle is always usable for error inspection and reporting; on failure the
// shard is marked fatally failed and the global flag flipped, leaving other
// shards unaffected.
func (f *Filterer) InitShard(index int, src source.Source) *Shard {
	sh := &Shard{
		index:            index,
		src:              src,
		enabled:          true,
		delayedEncodings: make(map[uint64][]trace.Record),
	}
	sh.outputPath = filepath.Join(f.outputDir, src.Name())
	out, err := sink.Open(sh.outputPath)
	if err != nil {
		f.fail(sh, fmt.Errorf("failure in opening writer: %w", err))
	} else {
		sh.out = out
		if ar, ok := out.(sink.Archive); ok {
			sh.archive = ar
			if err := ar.OpenComponent(trace.ChunkComponent(sh.chunkOrdinal)); err != nil {
				f.fail(sh, err)
			}
		}
		f.log.Debug("opened writer",
			zap.String("path", sh.outputPath),
			zap.Bool("archive", sh.archive != nil))
	}
	if sh.err == nil {
		for _, flt := range f.filters {
			st, err := flt.InitShard(src, f.stopTimestamp != 0)
			if err != nil {
				// No state is recorded for a filter that failed to
				// initialize, so its finalizer never runs.
				f.fail(sh, fmt.Errorf("failure in initializing filter: %w", err))
				break
			}
			sh.filterStates = append(sh.filterStates, st)
		}
	}
	f.mu.Lock()
	f.shards[index] = sh
	f.mu.Unlock()
	return sh
}

// Process runs one record through the shard's pipeline: gate, filter chain,
// marker rewriting, encoding cache, write. It returns false on a fatal shard
// error, after which the caller must stop feeding the shard.
func (f *Filterer) Process(sh *Shard, in trace.Record) bool {
	sh.inputCount++
	rec := in
	keep := true
	units := trace.Units(&rec)

	if sh.enabled && f.stopTimestamp != 0 && sh.src.LastTimestamp() >= f.stopTimestamp {
		// Gate fires once, before the triggering record, and is permanent.
		sh.enabled = false
		boundary := trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerFilterEndpoint)}
		if !f.writeBoundary(sh, &boundary) {
			return false
		}
		f.log.Debug("stop timestamp reached, disabling filtering",
			zap.Int("shard", sh.index),
			zap.Uint64("timestamp", sh.src.LastTimestamp()))
	}

	if sh.enabled {
		// Every filter runs even after a rejection so each keeps its own
		// state current.
		for i, flt := range f.filters {
			if !flt.Keep(&rec, sh.filterStates[i]) {
				keep = false
			}
		}
		if !keep {
			if trace.IsInstr(rec.Type) && sh.archive != nil {
				// Chunks carry fixed instruction counts downstream; dropping
				// an instruction would desynchronize them.
				f.fail(sh, errors.New("removing instructions from archive output is not supported"))
				return false
			}
			sh.removedFromChunk += units
		}
	}

	if rec.Type == trace.TypeMarker {
		switch trace.MarkerType(rec.Size) {
		case trace.MarkerFiletype:
			if f.stopTimestamp != 0 {
				rec.Addr |= trace.FiletypeBimodalFilteredWarmup
			}
		case trace.MarkerChunkFooter:
			if !keep {
				f.fail(sh, errors.New("removing chunk footers is not supported"))
				return false
			}
			if sh.archive == nil {
				f.fail(sh, errors.New("chunk markers in non-archive output"))
				return false
			}
			if rec.Addr != sh.chunkOrdinal {
				f.fail(sh, fmt.Errorf("chunk ordinal mismatch: found %d expected %d",
					rec.Addr, sh.chunkOrdinal))
				return false
			}
			if !f.writeRecord(sh, &rec) {
				return false
			}
			sh.chunkOrdinal++
			if err := sh.archive.OpenComponent(trace.ChunkComponent(sh.chunkOrdinal)); err != nil {
				f.fail(sh, err)
				return false
			}
			return true
		case trace.MarkerRecordOrdinal:
			if !keep {
				f.fail(sh, errors.New("removing ordinal markers is not supported"))
				return false
			}
			// Patch the ordinal down by what was filtered out before it.
			rec.Addr -= sh.removedFromChunk
			sh.removedFromChunk = 0
		}
	}

	if !keep {
		if trace.IsInstr(rec.Type) && len(sh.lastEncoding) > 0 {
			// The instruction this encoding belonged to was dropped. Park
			// the encoding under its address; a later surviving instance of
			// the same instruction still needs it. Latest wins.
			sh.delayedEncodings[rec.Addr] = sh.lastEncoding
			sh.lastEncoding = nil
		}
		return true
	}

	if rec.Type == trace.TypeEncoding {
		// Deferred until the following instruction's fate is known.
		sh.lastEncoding = append(sh.lastEncoding, rec)
		return true
	}

	if trace.IsInstr(rec.Type) {
		if len(sh.lastEncoding) > 0 {
			if !f.writeRecords(sh, sh.lastEncoding) {
				return false
			}
			sh.lastEncoding = nil
			// A fresh encoding supersedes any stale parked one.
			delete(sh.delayedEncodings, rec.Addr)
		} else if enc, ok := sh.delayedEncodings[rec.Addr]; ok {
			// The prior instance of this instruction was dropped with its
			// encoding parked; this surviving instance needs it first.
			if !f.writeRecords(sh, enc) {
				return false
			}
			delete(sh.delayedEncodings, rec.Addr)
		}
	}

	return f.writeRecord(sh, &rec)
}

func (f *Filterer) writeRecord(sh *Shard, rec *trace.Record) bool {
	buf := trace.Marshal(rec)
	if _, err := sh.out.Write(buf[:]); err != nil {
		f.fail(sh, fmt.Errorf("failed to write to output file %s: %w", sh.outputPath, err))
		return false
	}
	sh.outputCount++
	return true
}

func (f *Filterer) writeRecords(sh *Shard, recs []trace.Record) bool {
	for i := range recs {
		if !f.writeRecord(sh, &recs[i]) {
			return false
		}
	}
	return true
}

// writeBoundary emits the synthetic filter-endpoint marker. It joins the
// input tally, not the output tally.
func (f *Filterer) writeBoundary(sh *Shard, rec *trace.Record) bool {
	buf := trace.Marshal(rec)
	if _, err := sh.out.Write(buf[:]); err != nil {
		f.fail(sh, fmt.Errorf("failed to write to output file %s: %w", sh.outputPath, err))
		return false
	}
	sh.inputCount++
	return true
}

// ExitShard finalizes one shard: every filter's ExitShard runs regardless of
// earlier failures, then the sink is closed exactly once, forcing a flush.
// The shard's first error, if any, is returned.
func (f *Filterer) ExitShard(sh *Shard) error {
	for i, flt := range f.filters {
		if i >= len(sh.filterStates) {
			break
		}
		if err := flt.ExitShard(sh.filterStates[i]); err != nil {
			f.fail(sh, fmt.Errorf("failure in finalizing filter: %w", err))
		}
	}
	if err := sh.closeSink(); err != nil {
		f.fail(sh, fmt.Errorf("failed to close output file %s: %w", sh.outputPath, err))
	}
	return sh.err
}

// Fail records a fatal error raised outside Process, such as a source read
// failure, against the shard. The shard's first error is retained.
func (f *Filterer) Fail(sh *Shard, err error) { f.fail(sh, err) }

// FailShard registers a shard that never got far enough to own a source or
// sink, keeping the aggregate report and success flag accurate.
func (f *Filterer) FailShard(index int, name string, err error) *Shard {
	sh := &Shard{index: index, outputPath: name, err: err}
	f.mu.Lock()
	f.shards[index] = sh
	f.success = false
	f.mu.Unlock()
	return sh
}

// Errors returns the first error of every failed shard, ordered by index.
func (f *Filterer) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	indexes := make([]int, 0, len(f.shards))
	for i := range f.shards {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var errs []error
	for _, i := range indexes {
		if err := f.shards[i].err; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ShardError returns the shard's first fatal error, or nil.
func (f *Filterer) ShardError(sh *Shard) error { return sh.err }

// Succeeded reports whether no shard has failed.
func (f *Filterer) Succeeded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.success
}

// Report writes the aggregate record tallies across all registered shards.
// Counts stay accurate under partial shard failure.
func (f *Filterer) Report(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var in, out uint64
	for _, sh := range f.shards {
		in += sh.inputCount
		out += sh.outputCount
	}
	fmt.Fprintf(w, "Output %d entries from %d entries.\n", out, in)
}

// Close releases any sink not already closed by ExitShard. It is the
// registry owner's teardown and is safe to call after a partial run.
func (f *Filterer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, sh := range f.shards {
		if err := sh.closeSink(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
