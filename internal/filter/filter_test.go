package filter

import (
	"testing"

	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

func TestTypeFilter(t *testing.T) {
	t.Parallel()

	f, err := NewTypeFilter([]string{"memory_read", "memory_write", "marker_cpu_id"})
	if err != nil {
		t.Fatalf("NewTypeFilter: %v", err)
	}
	st, err := f.InitShard(&source.SliceSource{StreamName: "s"}, false)
	if err != nil {
		t.Fatalf("InitShard: %v", err)
	}

	cases := []struct {
		name string
		rec  trace.Record
		keep bool
	}{
		{"read_dropped", trace.Record{Type: trace.TypeRead, Addr: 0x10}, false},
		{"write_dropped", trace.Record{Type: trace.TypeWrite, Addr: 0x10}, false},
		{"instr_kept", trace.Record{Type: trace.TypeInstr, Addr: 0x10}, true},
		{"encoding_kept", trace.Record{Type: trace.TypeEncoding, Addr: 0x10}, true},
		{"cpu_marker_dropped", trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerCPUID)}, false},
		{"timestamp_marker_kept", trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerTimestamp)}, true},
		{"footer_marker_kept", trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerChunkFooter)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Keep(&tc.rec, st); got != tc.keep {
				t.Errorf("Keep(%+v) = %v, want %v", tc.rec, got, tc.keep)
			}
		})
	}

	if err := f.ExitShard(st); err != nil {
		t.Errorf("ExitShard: %v", err)
	}
}

func TestTypeFilterRejectsUnknownAndStructural(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"bogus", "thread_header", "marker_chunk_footer"} {
		if _, err := NewTypeFilter([]string{name}); err == nil {
			t.Errorf("NewTypeFilter(%q) succeeded, want error", name)
		}
	}
}

func TestTrimFilter(t *testing.T) {
	t.Parallel()

	f, err := NewTrimFilter(1000, 2000)
	if err != nil {
		t.Fatalf("NewTrimFilter: %v", err)
	}
	st, err := f.InitShard(&source.SliceSource{StreamName: "s"}, false)
	if err != nil {
		t.Fatalf("InitShard: %v", err)
	}

	ts := func(v uint64) trace.Record {
		return trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerTimestamp), Addr: v}
	}
	mk := func(mt trace.MarkerType, v uint64) trace.Record {
		return trace.Record{Type: trace.TypeMarker, Size: uint16(mt), Addr: v}
	}
	instr := trace.Record{Type: trace.TypeInstr, Addr: 0x40}
	header := trace.Record{Type: trace.TypeThreadHeader}
	footer := trace.Record{Type: trace.TypeThreadFooter}

	steps := []struct {
		name string
		rec  trace.Record
		keep bool
	}{
		{"header_always_kept", header, true},
		{"version_marker_kept", mk(trace.MarkerVersion, 3), true},
		{"filetype_marker_kept", mk(trace.MarkerFiletype, 1), true},
		{"instr_before_window", instr, false},
		{"timestamp_below_start", ts(500), false},
		{"instr_still_outside", instr, false},
		{"timestamp_in_window", ts(1500), true},
		{"instr_inside", instr, true},
		{"timestamp_at_end", ts(2000), false},
		{"instr_after_window", instr, false},
		{"ordinal_marker_kept", mk(trace.MarkerRecordOrdinal, 10), true},
		{"chunk_footer_kept", mk(trace.MarkerChunkFooter, 0), true},
		{"footer_always_kept", footer, true},
	}
	for _, step := range steps {
		if got := f.Keep(&step.rec, st); got != step.keep {
			t.Errorf("%s: Keep = %v, want %v", step.name, got, step.keep)
		}
	}
}

func TestTrimFilterBadWindow(t *testing.T) {
	t.Parallel()

	if _, err := NewTrimFilter(2000, 1000); err == nil {
		t.Error("inverted window accepted")
	}
	if _, err := NewTrimFilter(1000, 1000); err == nil {
		t.Error("empty window accepted")
	}
}

// Two independent shards must not share trim state.
func TestTrimFilterShardIsolation(t *testing.T) {
	t.Parallel()

	f, err := NewTrimFilter(1000, 0)
	if err != nil {
		t.Fatalf("NewTrimFilter: %v", err)
	}
	st1, _ := f.InitShard(&source.SliceSource{StreamName: "a"}, false)
	st2, _ := f.InitShard(&source.SliceSource{StreamName: "b"}, false)

	enter := trace.Record{Type: trace.TypeMarker, Size: uint16(trace.MarkerTimestamp), Addr: 1500}
	f.Keep(&enter, st1)

	instr := trace.Record{Type: trace.TypeInstr, Addr: 0x40}
	if !f.Keep(&instr, st1) {
		t.Error("shard 1 should be inside the window")
	}
	if f.Keep(&instr, st2) {
		t.Error("shard 2 leaked shard 1's window state")
	}
}
