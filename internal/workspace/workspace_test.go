package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)
	b, err := New(root)
	require.NoError(t, err)
	assert.NotEqual(t, a.Dir(), b.Dir())

	st, err := os.Stat(a.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), st.Mode().Perm())

	require.NoError(t, a.WriteFile("input.txt", []byte("1 2\n"), 0o644))
	assert.True(t, a.Exists("input.txt"))
	got, err := a.ReadFile("input.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", string(got))

	s, err := a.ReadFileLimit("input.txt", 2)
	require.NoError(t, err)
	assert.Equal(t, "1 ", s)
	s, err = a.ReadFileLimit("missing.txt", 10)
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, a.Remove("input.txt", "missing.txt"))
	assert.False(t, a.Exists("input.txt"))

	require.NoError(t, a.Close())
	_, err = os.Stat(a.Dir())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, b.Close())
}
