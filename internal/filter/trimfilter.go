package filter

import (
	"fmt"

	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// TrimFilter drops records outside a half-open timestamp window
// [Start, End). A zero End means no upper bound. Stream headers and footers,
// along with version, filetype, chunk footer, and record ordinal markers, are
// always kept so the trimmed shard remains structurally valid.
type TrimFilter struct {
	Start uint64
	End   uint64
}

type trimState struct {
	// inWindow tracks whether the shard's current position, as established
	// by the most recent timestamp marker, lies inside the window.
	inWindow bool
}

// NewTrimFilter validates the window bounds.
func NewTrimFilter(start, end uint64) (*TrimFilter, error) {
	if end != 0 && end <= start {
		return nil, fmt.Errorf("filter: trim window end %d not after start %d", end, start)
	}
	return &TrimFilter{Start: start, End: end}, nil
}

func (f *TrimFilter) InitShard(src source.Source, hasStopTimestamp bool) (State, error) {
	return &trimState{inWindow: f.Start == 0}, nil
}

func (f *TrimFilter) Keep(rec *trace.Record, st State) bool {
	ts := st.(*trimState)
	if trace.Marker(rec, trace.MarkerTimestamp) {
		ts.inWindow = rec.Addr >= f.Start && (f.End == 0 || rec.Addr < f.End)
		return ts.inWindow
	}
	switch rec.Type {
	case trace.TypeThreadHeader, trace.TypePidHeader, trace.TypeThreadFooter:
		return true
	case trace.TypeMarker:
		switch trace.MarkerType(rec.Size) {
		case trace.MarkerVersion, trace.MarkerFiletype,
			trace.MarkerChunkFooter, trace.MarkerRecordOrdinal:
			return true
		}
	}
	return ts.inWindow
}

func (f *TrimFilter) ExitShard(st State) error { return nil }
