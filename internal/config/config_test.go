package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "mount_path: /mnt/pmem1\ntcp_port: 9000\nindex_size: 512MB\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/mnt/pmem1", cfg.MountPath)
	require.EqualValues(t, 9000, cfg.TCPPort)
	require.Equal(t, 512*datasize.MB, cfg.IndexSize)
	// Unset fields keep their default.
	require.Equal(t, 1*datasize.GB, cfg.LogSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
