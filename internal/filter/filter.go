// Package filter defines the per-record filter predicate interface and the
// standard predicates shipped with the tool. Predicates are composed by
// conjunction: a record survives only if every configured filter keeps it.
package filter

import (
	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// State is a filter's per-shard state. It is created by InitShard, owned and
// interpreted only by the filter that made it, and never inspected by the
// engine.
type State interface{}

// Filter is one predicate in the chain. Keep must update its state even when
// another filter has already rejected the record, so it is invoked for every
// record regardless of the chain's running decision.
type Filter interface {
	// InitShard creates the filter's state for one shard.
	// hasStopTimestamp tells the filter the run may switch to pass-through
	// mode partway through the stream.
	InitShard(src source.Source, hasStopTimestamp bool) (State, error)

	// Keep decides whether rec survives, updating st.
	Keep(rec *trace.Record, st State) bool

	// ExitShard finalizes the shard's state. All filters' ExitShard run at
	// teardown even if an earlier one fails.
	ExitShard(st State) error
}
