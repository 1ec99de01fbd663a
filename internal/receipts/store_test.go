package receipts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndRelease(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStore(filepath.Join(dir, "receipts"))
	require.NoError(t, err)

	ref, err := st.Save("upi.png", strings.NewReader("payload"))
	require.NoError(t, err)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.True(t, strings.HasSuffix(ref, "_upi.png"))

	require.NoError(t, st.Release(ref))
	_, err = os.Stat(ref)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveSanitizesName(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ref, err := st.Save("../../etc/pass wd?.png", strings.NewReader("x"))
	require.NoError(t, err)

	// Saved inside the store dir under a cleaned base name.
	assert.True(t, strings.HasSuffix(ref, "_pass_wd_.png"))
	_, err = os.Stat(ref)
	assert.NoError(t, err)
}

func TestSaveUniqueNames(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a, err := st.Save("same.png", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := st.Save("same.png", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestReleaseMissingAndEmpty(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, st.Release(""))
	assert.NoError(t, st.Release("never-existed.png"))
}

func TestReleaseIgnoresTraversal(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))

	st, err := NewStore(filepath.Join(dir, "receipts"))
	require.NoError(t, err)

	// A ref pointing outside the store only resolves to its base name.
	require.NoError(t, st.Release("../outside.txt"))
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
