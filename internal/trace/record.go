// Package trace defines the fixed-size trace record format shared by every
// stage of the filtering pipeline: the type tags, marker subtypes, filetype
// flag bits, and the binary codec used to move records in and out of sinks.
package trace

// RecordSize is the encoded size of a Record in bytes.
const RecordSize = 12

// ChunkPrefix is the literal prefix of archive chunk component names.
// Components are named ChunkPrefix + 4-digit zero-padded ordinal ("chunk.0000").
const ChunkPrefix = "chunk."

// Record is one fixed-size trace entry. The interpretation of Size and Addr
// depends on Type: for markers Size holds a MarkerType subtype and Addr the
// marker value; for instructions Size is the instruction length and Addr the
// pc; for encoding records Size counts the raw bytes packed into Addr.
type Record struct {
	Type Type
	Size uint16
	Addr uint64
}

// Type tags a record with its kind.
type Type uint16

const (
	TypeInvalid Type = iota

	// Data records.
	TypeRead     // memory load
	TypeWrite    // memory store
	TypePrefetch // software prefetch

	// Instruction-like records. An instruction bundle packs several
	// consecutive instruction fetches into one record (Size = count).
	TypeInstr
	TypeInstrMaybeFetch
	TypeInstrNoFetch
	TypeInstrBundle

	// TypeEncoding carries raw instruction-encoding bytes for the next
	// instruction-like record at the same address.
	TypeEncoding

	// TypeMarker records carry a MarkerType in Size and a value in Addr.
	TypeMarker

	// Stream structure records.
	TypeThreadHeader
	TypePidHeader
	TypeThreadFooter
)

// MarkerType is the subtype tag of a TypeMarker record.
type MarkerType uint16

const (
	MarkerInvalid MarkerType = iota

	MarkerVersion
	MarkerFiletype       // value carries Filetype flag bits
	MarkerTimestamp      // value is the shard's wall-clock position
	MarkerCPUID
	MarkerWindowID
	MarkerChunkFooter    // value is the ordinal of the chunk being closed
	MarkerRecordOrdinal  // value is the record's position in the stream
	MarkerFilterEndpoint // synthetic boundary between filtered and raw spans
)

// Filetype flag bits carried in a MarkerFiletype record's value.
const (
	// FiletypeFiltered marks a trace whose records were filtered.
	FiletypeFiltered uint64 = 1 << 0
	// FiletypeInstrOnly marks a trace with data records removed.
	FiletypeInstrOnly uint64 = 1 << 1
	// FiletypeBimodalFilteredWarmup marks output that may mix filtered and
	// unfiltered spans, as produced by a stop-timestamp run.
	FiletypeBimodalFilteredWarmup uint64 = 1 << 12
)

// IsInstr reports whether t is an instruction-like type: fetched,
// maybe-fetched, not-fetched, or a bundle of fetches.
func IsInstr(t Type) bool {
	switch t {
	case TypeInstr, TypeInstrMaybeFetch, TypeInstrNoFetch, TypeInstrBundle:
		return true
	}
	return false
}

// Units returns the record's logical-unit contribution to the record
// ordinal. A bundle represents Size instruction fetches; every other record
// counts as one unit.
func Units(rec *Record) uint64 {
	if rec.Type == TypeInstrBundle {
		return uint64(rec.Size)
	}
	return 1
}

// Marker reports whether rec is a marker of the given subtype.
func Marker(rec *Record, mt MarkerType) bool {
	return rec.Type == TypeMarker && MarkerType(rec.Size) == mt
}
