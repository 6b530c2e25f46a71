package filter

import (
	"fmt"
	"sort"
	"strings"

	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// TypeFilter drops records whose type tag, or marker subtype, is in a
// configured set. Structural records the downstream format depends on
// (headers, footers, chunk and ordinal markers) cannot be targeted.
type TypeFilter struct {
	types   map[trace.Type]bool
	markers map[trace.MarkerType]bool
}

// Record type and marker subtype names accepted by NewTypeFilter.
var (
	typeNames = map[string]trace.Type{
		"memory_read":       trace.TypeRead,
		"memory_write":      trace.TypeWrite,
		"prefetch":          trace.TypePrefetch,
		"instr":             trace.TypeInstr,
		"instr_maybe_fetch": trace.TypeInstrMaybeFetch,
		"instr_no_fetch":    trace.TypeInstrNoFetch,
		"instr_bundle":      trace.TypeInstrBundle,
		"encoding":          trace.TypeEncoding,
	}
	markerNames = map[string]trace.MarkerType{
		"marker_cpu_id":    trace.MarkerCPUID,
		"marker_window_id": trace.MarkerWindowID,
	}
)

// NewTypeFilter builds a TypeFilter from type names. Unknown names are
// errors; so are names of structural types, which are simply absent from the
// accepted sets.
func NewTypeFilter(names []string) (*TypeFilter, error) {
	f := &TypeFilter{
		types:   make(map[trace.Type]bool),
		markers: make(map[trace.MarkerType]bool),
	}
	for _, name := range names {
		if t, ok := typeNames[name]; ok {
			f.types[t] = true
			continue
		}
		if mt, ok := markerNames[name]; ok {
			f.markers[mt] = true
			continue
		}
		return nil, fmt.Errorf("filter: unknown record type %q (known: %s)",
			name, strings.Join(knownTypeNames(), ", "))
	}
	return f, nil
}

func knownTypeNames() []string {
	names := make([]string, 0, len(typeNames)+len(markerNames))
	for name := range typeNames {
		names = append(names, name)
	}
	for name := range markerNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitShard returns nil state; the type set is shard-independent.
func (f *TypeFilter) InitShard(src source.Source, hasStopTimestamp bool) (State, error) {
	return nil, nil
}

func (f *TypeFilter) Keep(rec *trace.Record, st State) bool {
	if rec.Type == trace.TypeMarker {
		return !f.markers[trace.MarkerType(rec.Size)]
	}
	return !f.types[rec.Type]
}

func (f *TypeFilter) ExitShard(st State) error { return nil }
