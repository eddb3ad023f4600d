package refdata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type table struct{ Version string }

func parseTable(data []byte) (*table, error) {
	v := strings.TrimSpace(string(data))
	if v == "" {
		return nil, errors.New("empty")
	}
	return &table{Version: v}, nil
}

func TestStoreUsesFallbackWithoutPath(t *testing.T) {
	s, err := NewStore("table", "", []byte("v1"), parseTable)
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Current().Version)
}

func TestReloadSwapsSnapshotAndKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	s, err := NewStore("table", path, nil, parseTable)
	require.NoError(t, err)
	first := s.Current()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	_, err = s.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Current().Version)
	assert.Equal(t, "v1", first.Version)

	require.NoError(t, os.WriteFile(path, []byte(" "), 0o600))
	_, err = s.Reload()
	require.Error(t, err)
	assert.Equal(t, "v2", s.Current().Version)
}
