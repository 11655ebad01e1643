package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

func TestWriteReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")

	var uids uidset.Set
	for _, uid := range []uint32{3, 4, 5, 7, 8, 9} {
		uids.Push(uid)
	}
	want := Journal{Mailbox: "INBOX", UIDValidity: 1234567, UIDs: uids}

	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want.Mailbox, got.Mailbox)
	assert.Equal(t, want.UIDValidity, got.UIDValidity)
	assert.Equal(t, want.UIDs.Copy(), got.UIDs.Copy())
}

func TestReadMissingFileReturnsErrNoJournal(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "does-not-exist"))
	assert.ErrorIs(t, err, ErrNoJournal)
}

func TestReadCorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")
	require.NoError(t, os.WriteFile(path, []byte("INBOX\nnot-a-number\n"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJournal)
}

func TestWriteEmptyUIDsOmitsRangeLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")

	require.NoError(t, Write(path, Journal{Mailbox: "INBOX", UIDValidity: 1}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.True(t, got.UIDs.Empty())
}

func TestRemoveIsIdempotentWhenMissing(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, Remove(filepath.Join(dir, "does-not-exist")))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")
	assert.False(t, Exists(path))
	require.NoError(t, Write(path, Journal{Mailbox: "INBOX", UIDValidity: 1}))
	assert.True(t, Exists(path))
}
