// driver.go implements the Command Driver of spec.md §4.F: the fixed
// CAPABILITY/LOGIN/SELECT/FETCH/STORE/[UID] EXPUNGE/LOGOUT sequence.
//
// client.cc chains these as nested std::function continuations because
// Boost.Asio's handlers are callbacks; go-imap/v2's Wait()-style API
// already blocks the calling goroutine, so the same sequence reads as
// ordinary straight-line Go — the "linear async function awaiting each
// step" shape spec.md §9 calls out as an acceptable redesign.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"

	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

// ErrShutdownRequested is returned by Run when a signal interrupted
// the sequence before it reached LOGOUT. It is not a failure: the
// caller should still persist the journal (client.cc relies on this
// same path — do_signal_wait calls do_quit() directly on the first
// signal, short-circuiting the rest of the command sequence, and
// leaves write_journal() in the destructor to record whatever state
// had accumulated so far).
var ErrShutdownRequested = errors.New("client: shutdown requested")

// Run drives the connection from its current state through to LOGOUT,
// dispatching to do_cleanup or do_download depending on c.task, and
// always chaining cleanup into a subsequent download exactly as
// async_cleanup's finish_fn unconditionally calls do_download. ctx
// being canceled mid-sequence (spec.md §4.H, a first SIGINT/SIGTERM)
// skips the remaining FETCH/STORE/EXPUNGE steps and goes straight to
// LOGOUT and quit().
func (c *Client) Run(ctx context.Context) error {
	c.ctx = ctx

	if err := c.preLogin(); err != nil {
		return err
	}

	var runErr error
	switch c.task {
	case TaskCleanup:
		runErr = c.doCleanup()
	default:
		runErr = c.doDownload()
	}
	if errors.Is(runErr, errShutdown) {
		if c.machine.State() < LoggingOut {
			if err := c.logout(); err != nil {
				return err
			}
		}
		if err := c.quit(); err != nil {
			return err
		}
		return ErrShutdownRequested
	}
	return runErr
}

// errShutdown is the internal sentinel checkAborted returns; Run
// translates it to the exported ErrShutdownRequested after calling
// quit().
var errShutdown = errors.New("client: internal shutdown sentinel")

// checkAborted is consulted between command-driver steps and between
// fetched messages; it reports errShutdown once ctx has been canceled.
func (c *Client) checkAborted() error {
	if c.ctx == nil {
		return nil
	}
	select {
	case <-c.ctx.Done():
		return errShutdown
	default:
		return nil
	}
}

// preLogin waits for the server's greeting-time CAPABILITY (bounded by
// opts.GreetingWait, enforced by the caller's read-loop timeout), then
// fetches capabilities if the greeting didn't already supply them, then
// logs in. Matches do_pre_login + cond_async_capabilities +
// async_login_capabilities + do_task.
func (c *Client) preLogin() error {
	if err := c.machine.Advance(Established); err != nil {
		return err
	}
	if err := c.condCapabilities(); err != nil {
		return err
	}
	return c.login()
}

// condCapabilities matches cond_async_capabilities: skip the explicit
// CAPABILITY command if the greeting already delivered one.
func (c *Client) condCapabilities() error {
	if len(c.caps) > 0 {
		c.log.Debug().Msg("not fetching capabilities (already received)")
		return c.machine.Advance(GotInitialCapabilities)
	}
	caps, err := c.imap.Capability().Wait()
	if err != nil {
		return fmt.Errorf("client: CAPABILITY: %w", err)
	}
	c.caps = caps
	return c.machine.Advance(GotInitialCapabilities)
}

// login matches async_login: requires IMAP4rev1, rejects
// LOGINDISABLED, and re-fetches capabilities post-login (most servers
// change their advertised capability set once authenticated).
func (c *Client) login() error {
	if !c.caps.Has(imap.CapIMAP4rev1) {
		return fmt.Errorf("client: server lacks IMAP4rev1 capability")
	}
	if c.caps.Has(imap.CapLoginDisabled) {
		return fmt.Errorf("client: cannot login, server advertises LOGINDISABLED")
	}

	c.log.Debug().Msg("clearing capabilities")
	c.caps = imap.CapSet{}
	c.exists = 0

	if err := c.imap.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		return fmt.Errorf("client: LOGIN: %w", err)
	}
	if err := c.machine.Advance(LoggedIn); err != nil {
		return err
	}

	caps, err := c.imap.Capability().Wait()
	if err != nil {
		return fmt.Errorf("client: post-login CAPABILITY: %w", err)
	}
	c.caps = caps
	return c.machine.Advance(GotCapabilities)
}

// doCleanup matches async_cleanup: select the journaled mailbox, STORE
// \Deleted over the journaled UIDs, expunge them, clear the recovered
// state, then unconditionally fall through to a fresh download.
func (c *Client) doCleanup() error {
	c.log.Info().Msg("cleaning up messages from a previous, interrupted run")

	if err := c.checkAborted(); err != nil {
		return err
	}
	if err := c.selectMailbox(); err != nil {
		return err
	}
	if err := c.checkAborted(); err != nil {
		return err
	}
	if err := c.store(); err != nil {
		return err
	}
	if err := c.uidOrSimpleExpunge(); err != nil {
		return err
	}

	c.uids.Clear()
	c.mailbox = c.opts.Mailbox
	c.log.Info().Msg("deleting messages from last time ... finished")

	// The download phase re-enters SELECTED_MAILBOX/FETCHING/... on the
	// same connection; rewind past the cleanup run's states so Advance's
	// monotonicity check doesn't reject it (see Machine.rewind).
	c.machine.rewind(GotCapabilities)

	return c.doDownload()
}

// doDownload matches do_download: select, fetch-or-skip, store-or-skip
// (deletion is opt-in), expunge, clear state, logout, quit.
func (c *Client) doDownload() error {
	if err := c.checkAborted(); err != nil {
		return err
	}
	if err := c.selectMailbox(); err != nil {
		return err
	}

	// async_fetch_or_logout: an empty mailbox skips straight to LOGOUT,
	// with no STORE/EXPUNGE step in between — matching client.cc's
	// separate logout_fn continuation rather than falling through the
	// fetch/store/expunge chain.
	if c.exists == 0 {
		c.log.Info().Msgf("Mailbox %s is empty.", c.mailbox)
		if err := c.logout(); err != nil {
			return err
		}
		return c.quit()
	}

	if err := c.fetch(); err != nil {
		return err
	}
	if err := c.checkAborted(); err != nil {
		return err
	}
	c.timer.Stop()

	// async_store_or_logout: when the run isn't configured to delete,
	// skip STORE/EXPUNGE entirely and go straight to LOGOUT — mirroring
	// client.cc's separate finish_fn continuation, not a fallthrough.
	if !c.opts.Delete {
		if err := c.logout(); err != nil {
			return err
		}
		return c.quit()
	}

	if err := c.store(); err != nil {
		return err
	}
	if err := c.uidOrSimpleExpunge(); err != nil {
		return err
	}

	c.uids.Clear()
	if err := c.logout(); err != nil {
		return err
	}
	return c.quit()
}

// selectMailbox matches async_select.
func (c *Client) selectMailbox() error {
	data, err := c.imap.Select(c.mailbox, nil).Wait()
	if err != nil {
		return fmt.Errorf("client: SELECT %q: %w", c.mailbox, err)
	}
	if err := c.machine.Advance(SelectedMailbox); err != nil {
		return err
	}

	c.log.Info().Uint32("messages", data.NumMessages).Str("mailbox", c.mailbox).
		Msgf("Mailbox %s contains %d messages", c.mailbox, data.NumMessages)
	c.exists = data.NumMessages

	if data.UIDValidity != c.uidvalidity {
		c.log.Debug().Uint32("old", c.uidvalidity).Uint32("new", data.UIDValidity).
			Msg("replacing UIDVALIDITY")
		c.uids.Clear()
	}
	c.uidvalidity = data.UIDValidity

	return nil
}

// fetch matches the FETCHING half of async_fetch_or_logout: start the
// throughput timer and stream every message into the Maildir.
func (c *Client) fetch() error {
	c.log.Info().Msg("fetching messages")
	if err := c.machine.Advance(Fetching); err != nil {
		return err
	}
	c.timer.Start()
	if err := c.fetchAll(); err != nil {
		return err
	}
	return c.machine.Advance(Fetched)
}

// store matches async_store: STORE +FLAGS.SILENT (\Deleted) over every
// UID in c.uids (the journaled UIDs during cleanup, the UIDs fetched
// this run during download).
func (c *Client) store() error {
	if c.uids.Empty() {
		return c.machine.Advance(Stored)
	}
	uidSet := rangesToUIDSet(c.uids.Copy())
	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagDeleted},
		Silent: true,
	}
	if err := c.imap.Store(uidSet, storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("client: STORE: %w", err)
	}
	return c.machine.Advance(Stored)
}

// hasUIDPlus matches has_uidplus().
func (c *Client) hasUIDPlus() bool {
	has := c.caps.Has(imap.CapUIDPlus)
	c.log.Debug().Bool("uidplus", has).Msg("checked UIDPLUS capability")
	return has
}

// uidOrSimpleExpunge matches async_uid_or_simple_expunge: UID EXPUNGE
// when UIDPLUS is advertised (touches only our UIDs), else a plain
// EXPUNGE (touches every \Deleted message on the server).
func (c *Client) uidOrSimpleExpunge() error {
	if c.uids.Empty() {
		return c.machine.Advance(Expunged)
	}
	if c.hasUIDPlus() {
		uidSet := rangesToUIDSet(c.uids.Copy())
		if err := c.imap.UIDExpunge(uidSet).Close(); err != nil {
			return fmt.Errorf("client: UID EXPUNGE: %w", err)
		}
	} else {
		if err := c.imap.Expunge().Close(); err != nil {
			return fmt.Errorf("client: EXPUNGE: %w", err)
		}
	}
	return c.machine.Advance(Expunged)
}

// logout matches async_logout.
func (c *Client) logout() error {
	if err := c.machine.Advance(LoggingOut); err != nil {
		return err
	}
	if err := c.imap.Logout().Wait(); err != nil {
		return fmt.Errorf("client: LOGOUT: %w", err)
	}
	return nil
}

// quit matches do_quit: mark LOGGED_OUT so the read loop and
// transport's close classifier know a close now is expected, then
// close the connection.
func (c *Client) quit() error {
	if err := c.machine.Advance(LoggedOut); err != nil {
		return err
	}
	if err := c.imap.Close(); err != nil {
		return fmt.Errorf("client: close: %w", err)
	}
	return c.machine.Advance(End)
}

func rangesToUIDSet(ranges []uidset.Range) imap.UIDSet {
	set := imap.UIDSet{}
	for _, r := range ranges {
		if r.Lo == r.Hi {
			set.AddNum(imap.UID(r.Lo))
		} else {
			set.AddRange(imap.UID(r.Lo), imap.UID(r.Hi))
		}
	}
	return set
}
