package maildir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesStandardSubdirs(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root)
	require.NoError(t, err)

	for _, sub := range []string{"tmp", "new", "cur"} {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestMoveToNewDeliversIntoNewDir(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	msg, err := d.Create()
	require.NoError(t, err)
	_, err = msg.Write([]byte("From: a@b\r\n\r\nbody"))
	require.NoError(t, err)

	dest, err := msg.MoveToNew()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dest, filepath.Join(root, "new")+string(os.PathSeparator)))

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "From: a@b\r\n\r\nbody", string(contents))

	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMoveToCurAppendsFlagSuffix(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	msg, err := d.Create()
	require.NoError(t, err)
	_, err = msg.Write([]byte("x"))
	require.NoError(t, err)

	dest, err := msg.MoveToCur("S")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dest, ":2,S"))
}

func TestFinishTwiceErrors(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	msg, err := d.Create()
	require.NoError(t, err)
	_, err = msg.MoveToNew()
	require.NoError(t, err)

	_, err = msg.MoveToNew()
	assert.Error(t, err)
}

func TestDiscardRemovesTmpFile(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	msg, err := d.Create()
	require.NoError(t, err)
	require.NoError(t, msg.Discard())

	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFlagsToMaildirOrdersAndFiltersFlags(t *testing.T) {
	assert.Equal(t, "", FlagsToMaildir(false, false, false, false))
	assert.Equal(t, "S", FlagsToMaildir(false, false, true, false))
	assert.Equal(t, "DFRS", FlagsToMaildir(true, true, true, true))
}
