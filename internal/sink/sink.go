// Package sink provides the output side of the filtering pipeline: plain,
// gzip, zstd, and chunked zip-archive record sinks, selected by output path
// suffix.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Sink is a destination for serialized trace records. Close flushes and
// releases the underlying file; calling Close more than once is safe.
type Sink interface {
	io.Writer
	Close() error
}

// Archive is a sink split into named components. OpenComponent finishes the
// current component, if any, and starts a new one; writes then go to it.
type Archive interface {
	Sink
	OpenComponent(name string) error
}

// Open selects a sink for path by suffix: ".gz" gzip, ".zst" zstd, ".zip"
// chunked archive, anything else a plain truncating binary file. For archive
// sinks the caller is expected to open the first component before writing.
func Open(path string) (Sink, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return openGzip(path)
	case strings.HasSuffix(path, ".zst"):
		return openZstd(path)
	case strings.HasSuffix(path, ".zip"):
		return openZip(path)
	}
	return openPlain(path)
}

// ===========================================================================
// PLAIN
// ===========================================================================

type plainSink struct {
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func openPlain(path string) (*plainSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}
	return &plainSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *plainSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *plainSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// ===========================================================================
// GZIP / ZSTD
// ===========================================================================

type gzipSink struct {
	f      *os.File
	zw     *gzip.Writer
	closed bool
}

func openGzip(path string) (*gzipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}
	return &gzipSink{f: f, zw: gzip.NewWriter(f)}, nil
}

func (s *gzipSink) Write(p []byte) (int, error) { return s.zw.Write(p) }

func (s *gzipSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

type zstdSink struct {
	f      *os.File
	zw     *zstd.Encoder
	closed bool
}

func openZstd(path string) (*zstdSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: zstd %s: %w", path, err)
	}
	return &zstdSink{f: f, zw: zw}, nil
}

func (s *zstdSink) Write(p []byte) (int, error) { return s.zw.Write(p) }

func (s *zstdSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// ===========================================================================
// ZIP ARCHIVE
// ===========================================================================

// zipSink writes each component as one entry of a zip archive. Writes made
// before the first OpenComponent fail.
type zipSink struct {
	f      *os.File
	zw     *zip.Writer
	cur    io.Writer
	closed bool
}

func openZip(path string) (*zipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}
	return &zipSink{f: f, zw: zip.NewWriter(f)}, nil
}

func (s *zipSink) OpenComponent(name string) error {
	w, err := s.zw.Create(name)
	if err != nil {
		return fmt.Errorf("sink: open component %s: %w", name, err)
	}
	s.cur = w
	return nil
}

func (s *zipSink) Write(p []byte) (int, error) {
	if s.cur == nil {
		return 0, fmt.Errorf("sink: write before first archive component")
	}
	return s.cur.Write(p)
}

func (s *zipSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
