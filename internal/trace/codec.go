package trace

import (
	"encoding/binary"
	"fmt"
)

// Marshal encodes rec into its fixed 12-byte little-endian wire form.
func Marshal(rec *Record) [RecordSize]byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(rec.Type))
	binary.LittleEndian.PutUint16(buf[2:4], rec.Size)
	binary.LittleEndian.PutUint64(buf[4:12], rec.Addr)
	return buf
}

// Append appends rec's wire form to dst and returns the extended slice.
func Append(dst []byte, rec *Record) []byte {
	buf := Marshal(rec)
	return append(dst, buf[:]...)
}

// Unmarshal decodes one record from the first RecordSize bytes of p.
func Unmarshal(p []byte, rec *Record) error {
	if len(p) < RecordSize {
		return fmt.Errorf("trace: short record: %d bytes, want %d", len(p), RecordSize)
	}
	rec.Type = Type(binary.LittleEndian.Uint16(p[0:2]))
	rec.Size = binary.LittleEndian.Uint16(p[2:4])
	rec.Addr = binary.LittleEndian.Uint64(p[4:12])
	return nil
}

// ChunkComponent returns the archive component name for the given chunk
// ordinal: ChunkPrefix plus a 4-digit zero-padded decimal.
func ChunkComponent(ordinal uint64) string {
	return fmt.Sprintf("%s%04d", ChunkPrefix, ordinal)
}
