package sink

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsBySuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		name    string
		archive bool
	}{
		{"shard.trace", false},
		{"shard.trace.gz", false},
		{"shard.trace.zst", false},
		{"shard.trace.zip", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(filepath.Join(dir, tc.name))
			require.NoError(t, err)
			defer s.Close()
			_, isArchive := s.(Archive)
			require.Equal(t, tc.archive, isArchive)
		})
	}
}

func TestOpenFailure(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "missing", "shard.trace"))
	require.Error(t, err)
}

func TestPlainSinkRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shard.trace")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Write([]byte("hello records"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello records", string(data))
}

func TestGzipSinkRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shard.trace.gz")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Write([]byte("compressed records"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "compressed records", string(data))
}

func TestZipSinkComponents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shard.trace.zip")
	s, err := Open(path)
	require.NoError(t, err)
	ar := s.(Archive)

	require.NoError(t, ar.OpenComponent("chunk.0000"))
	_, err = ar.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, ar.OpenComponent("chunk.0001"))
	_, err = ar.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, ar.Close())

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	require.Equal(t, "chunk.0000", zr.File[0].Name)
	require.Equal(t, "chunk.0001", zr.File[1].Name)
	for i, want := range []string{"first", "second"} {
		rc, err := zr.File[i].Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		require.Equal(t, want, string(data))
	}
}

func TestZipSinkWriteBeforeComponent(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "shard.trace.zip"))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write([]byte("x"))
	require.Error(t, err)
}

func TestDoubleClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.trace", "a.trace.gz", "a.trace.zst", "a.trace.zip"} {
		s, err := Open(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "second Close of %s must be a no-op", name)
	}
}
