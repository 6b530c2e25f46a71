// Package source provides pull-model readers of per-shard trace record
// streams. A Source hands out records strictly in stream order and tracks the
// shard's last observed timestamp so downstream stages can gate on it.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"tracefilt/internal/trace"
)

// Source is a sequential reader of one shard's records.
//
// Next fills rec with the next record and returns io.EOF at end of stream.
// LastTimestamp returns the value of the most recent timestamp marker that
// Next has returned; it is updated before the marker itself is handed to the
// caller, so a caller processing the marker already observes its value.
type Source interface {
	Name() string
	LastTimestamp() uint64
	Next(rec *trace.Record) error
}

// FileSource reads records from a trace file, transparently decompressing
// .gz and .zst inputs by suffix.
type FileSource struct {
	name          string
	file          *os.File
	r             io.Reader
	closer        io.Closer // decompressor, if any
	lastTimestamp uint64
	buf           [trace.RecordSize]byte
}

// OpenFile opens path as a record stream. The source's Name is the file's
// base name and doubles as the shard display name downstream.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	src := &FileSource{name: filepath.Base(path), file: f, r: f}
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("source: open gzip %s: %w", path, err)
		}
		src.r = zr
		src.closer = zr
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("source: open zstd %s: %w", path, err)
		}
		rc := zr.IOReadCloser()
		src.r = rc
		src.closer = rc
	}
	return src, nil
}

// Name returns the shard display name.
func (s *FileSource) Name() string { return s.name }

// LastTimestamp returns the most recently decoded timestamp marker value.
func (s *FileSource) LastTimestamp() uint64 { return s.lastTimestamp }

// Next reads the next record. A truncated trailing record is an error, not EOF.
func (s *FileSource) Next(rec *trace.Record) error {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("source: read %s: %w", s.name, err)
	}
	if err := trace.Unmarshal(s.buf[:], rec); err != nil {
		return err
	}
	if trace.Marker(rec, trace.MarkerTimestamp) {
		s.lastTimestamp = rec.Addr
	}
	return nil
}

// Close releases the underlying file and any decompressor.
func (s *FileSource) Close() error {
	if s.closer != nil {
		s.closer.Close()
	}
	return s.file.Close()
}

// SliceSource serves records from memory. It exists for tests and for
// callers that synthesize streams programmatically.
type SliceSource struct {
	StreamName    string
	Records       []trace.Record
	pos           int
	lastTimestamp uint64
}

func (s *SliceSource) Name() string { return s.StreamName }

func (s *SliceSource) LastTimestamp() uint64 { return s.lastTimestamp }

func (s *SliceSource) Next(rec *trace.Record) error {
	if s.pos >= len(s.Records) {
		return io.EOF
	}
	*rec = s.Records[s.pos]
	s.pos++
	if trace.Marker(rec, trace.MarkerTimestamp) {
		s.lastTimestamp = rec.Addr
	}
	return nil
}
