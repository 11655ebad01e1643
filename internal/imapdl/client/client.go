package client

import (
	"context"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/hkdb/imapdl/internal/imapdl/header"
	"github.com/hkdb/imapdl/internal/imapdl/maildir"
	"github.com/hkdb/imapdl/internal/imapdl/timer"
	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

// Options holds the subset of config.Config the driver needs,
// decoupled from the config package so client stays independently
// testable (cmd/imapdl copies the matching config.Config fields in).
type Options struct {
	Username string
	Password string
	Mailbox  string

	Delete        bool
	GreetingWait  int // milliseconds
	SimulateError int
}

// Client drives one IMAP connection through its full lifecycle:
// CAPABILITY, LOGIN, SELECT, FETCH, STORE, [UID] EXPUNGE, LOGOUT.
// Grounded on client.cc's IMAP::Copy::Client.
type Client struct {
	imap *imapclient.Client
	opts Options
	log  zerolog.Logger

	machine *Machine
	task    Task

	caps imap.CapSet

	mailbox     string
	uidvalidity uint32
	uids        uidset.Set
	exists      uint32

	maildir *maildir.Dir
	timer   *timer.Timer
	headers *header.Printer

	lastUID    imap.UID
	flags      []imap.Flag
	fetchCount int

	ctx context.Context
}

// New wires up a driver around an already-connected imapclient.Client.
// journalMailbox/journalUIDValidity/journalUIDs seed state recovered
// from a prior run's journal (spec.md I4/I5); when there is none, pass
// TaskDownload as task and "", 0, an empty Set.
func New(
	imapClient *imapclient.Client,
	opts Options,
	log zerolog.Logger,
	md *maildir.Dir,
	t *timer.Timer,
	hp *header.Printer,
	task Task,
	journalMailbox string,
	journalUIDValidity uint32,
	journalUIDs uidset.Set,
) *Client {
	mailbox := opts.Mailbox
	if task == TaskCleanup {
		mailbox = journalMailbox
	}
	return &Client{
		imap:        imapClient,
		opts:        opts,
		log:         log,
		machine:     NewMachine(),
		task:        task,
		mailbox:     mailbox,
		uidvalidity: journalUIDValidity,
		uids:        journalUIDs,
		maildir:     md,
		timer:       t,
		headers:     hp,
	}
}

// State exposes the driver's current lifecycle state, used by the
// transport layer's benign-close classification.
func (c *Client) State() State {
	return c.machine.State()
}

// SeedCapabilities primes the driver with capabilities already learned
// from the server greeting (imapclient.Client.Caps(), populated by an
// untagged CAPABILITY response delivered with the greeting), so
// condCapabilities can actually take its "greeting already carried it"
// shortcut instead of always issuing an explicit CAPABILITY command.
// Call this before Run, once WaitGreeting has returned.
func (c *Client) SeedCapabilities(caps imap.CapSet) {
	c.caps = caps
}

// Journal returns the (mailbox, uidvalidity, uids) triple to persist
// to disk if the process is interrupted, matching client.cc's
// write_journal() source fields.
func (c *Client) Journal() (mailbox string, uidvalidity uint32, uids uidset.Set) {
	return c.mailbox, c.uidvalidity, c.uids
}

// ShouldWriteJournal matches write_journal()'s guard: only write when
// there are outstanding UIDs to clean up AND the run was configured to
// delete at all.
func (c *Client) ShouldWriteJournal() bool {
	return !c.uids.Empty() && c.opts.Delete
}
