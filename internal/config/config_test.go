package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
output_dir: /tmp/out
stop_timestamp: 12345
jobs: 4
filters:
  - kind: remove_types
    types: [memory_read, memory_write]
  - kind: trim
    start_timestamp: 1000
    end_timestamp: 2000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/out", cfg.OutputDir)
	require.Equal(t, uint64(12345), cfg.StopTimestamp)
	require.Equal(t, 4, cfg.Jobs)
	require.Len(t, cfg.Filters, 2)

	filters, err := cfg.BuildFilters()
	require.NoError(t, err)
	require.Len(t, filters, 2)
}

func TestLoadDefaultsJobs(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "output_dir: /tmp/out\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, runtime.GOMAXPROCS(0), cfg.Jobs)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"unknown_kind",
			"filters:\n  - kind: frobnicate\n",
			`unknown kind "frobnicate"`,
		},
		{
			"remove_types_empty",
			"filters:\n  - kind: remove_types\n",
			"non-empty types list",
		},
		{
			"trim_no_bounds",
			"filters:\n  - kind: trim\n",
			"trim needs start_timestamp or end_timestamp",
		},
		{
			"bad_yaml",
			"filters: [\n",
			"parse",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.content))
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestBuildFiltersBadType(t *testing.T) {
	t.Parallel()

	cfg := Config{Filters: []FilterSpec{{Kind: "remove_types", Types: []string{"bogus"}}}}
	_, err := cfg.BuildFilters()
	require.ErrorContains(t, err, "unknown record type")
}
