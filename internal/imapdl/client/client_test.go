package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/imapdl/internal/imapdl/header"
	"github.com/hkdb/imapdl/internal/imapdl/logging"
	"github.com/hkdb/imapdl/internal/imapdl/maildir"
	"github.com/hkdb/imapdl/internal/imapdl/timer"
	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

const (
	testUser = "testuser"
	testPass = "testpass"

	testMessage = "Date: Mon, 1 Jan 2024 00:00:00 +0000\r\nFrom: a@example.com\r\nSubject: hello\r\n\r\nbody\r\n"
)

// startTestServer grounds on pkgs/email/imap_test.go's newTestIMAPServer:
// an in-memory IMAP server reachable over plain TCP, advertising only
// IMAP4rev1 (no UIDPLUS), exercising the plain-EXPUNGE fallback path.
func startTestServer(t *testing.T) string {
	t.Helper()

	memSrv := imapmemserver.New()
	user := imapmemserver.NewUser(testUser, testPass)
	user.Create("INBOX", nil)
	memSrv.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(_ *imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memSrv.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
		},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

func appendMessage(t *testing.T, addr, mailbox, raw string) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	c := imapclient.New(conn, nil)
	require.NoError(t, c.Login(testUser, testPass).Wait())

	appendCmd := c.Append(mailbox, int64(len(raw)), nil)
	_, err = appendCmd.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, appendCmd.Close())
	_, err = appendCmd.Wait()
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func dialTestClient(t *testing.T, addr string) *imapclient.Client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	c := imapclient.New(conn, nil)
	require.NoError(t, c.WaitGreeting())
	return c
}

func newHarness(t *testing.T) (*maildir.Dir, *timer.Timer, *header.Printer, string) {
	t.Helper()
	root := t.TempDir()
	md, err := maildir.Open(root)
	require.NoError(t, err)
	tm := timer.New(&nullBytesReader{}, zerolog.Nop())
	hp := header.New(zerolog.Nop(), logging.SeverityInfo, logging.SeverityFatal)
	return &md, tm, hp, root
}

type nullBytesReader struct{}

func (nullBytesReader) BytesRead() int64 { return 0 }

func TestDownloadHappyPathNoDelete(t *testing.T) {
	addr := startTestServer(t)
	appendMessage(t, addr, "INBOX", testMessage)

	imapC := dialTestClient(t, addr)
	defer imapC.Close()

	md, tm, hp, root := newHarness(t)
	opts := Options{Username: testUser, Password: testPass, Mailbox: "INBOX", Delete: false}
	drv := New(imapC, opts, zerolog.Nop(), md, tm, hp, TaskDownload, "", 0, uidset.Set{})

	err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, End, drv.State())

	entries, err := os.ReadDir(filepath.Join(root, "new"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadHappyPathWithDelete(t *testing.T) {
	addr := startTestServer(t)
	appendMessage(t, addr, "INBOX", testMessage)

	imapC := dialTestClient(t, addr)
	defer imapC.Close()

	md, tm, hp, _ := newHarness(t)
	opts := Options{Username: testUser, Password: testPass, Mailbox: "INBOX", Delete: true}
	drv := New(imapC, opts, zerolog.Nop(), md, tm, hp, TaskDownload, "", 0, uidset.Set{})

	err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, End, drv.State())

	_, uidvalidity, uids := drv.Journal()
	assert.NotZero(t, uidvalidity)
	assert.True(t, uids.Empty(), "uids should be cleared after a clean expunge")
	assert.False(t, drv.ShouldWriteJournal())
}

func TestDownloadEmptyMailboxSkipsFetch(t *testing.T) {
	addr := startTestServer(t)

	imapC := dialTestClient(t, addr)
	defer imapC.Close()

	md, tm, hp, _ := newHarness(t)
	opts := Options{Username: testUser, Password: testPass, Mailbox: "INBOX", Delete: true}
	drv := New(imapC, opts, zerolog.Nop(), md, tm, hp, TaskDownload, "", 0, uidset.Set{})

	require.NoError(t, drv.Run(context.Background()))
	assert.Equal(t, End, drv.State())
}

func TestCleanupTaskExpungesJournaledUIDsThenDownloads(t *testing.T) {
	addr := startTestServer(t)
	appendMessage(t, addr, "INBOX", testMessage)
	appendMessage(t, addr, "INBOX", testMessage)

	imapC := dialTestClient(t, addr)
	defer imapC.Close()

	md, tm, hp, _ := newHarness(t)

	var journaledUIDs uidset.Set
	journaledUIDs.Push(1)

	opts := Options{Username: testUser, Password: testPass, Mailbox: "INBOX", Delete: true}
	drv := New(imapC, opts, zerolog.Nop(), md, tm, hp, TaskCleanup, "INBOX", 1, journaledUIDs)

	err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, End, drv.State())
}

func TestLoginDisabledIsRejected(t *testing.T) {
	addr := startTestServer(t)
	imapC := dialTestClient(t, addr)
	defer imapC.Close()

	md, tm, hp, _ := newHarness(t)
	opts := Options{Username: testUser, Password: testPass, Mailbox: "INBOX"}
	drv := New(imapC, opts, zerolog.Nop(), md, tm, hp, TaskDownload, "", 0, uidset.Set{})
	drv.caps = imap.CapSet{imap.CapIMAP4rev1: struct{}{}, imap.CapLoginDisabled: struct{}{}}
	drv.machine.state = Established

	err := drv.login()
	assert.Error(t, err)
}
