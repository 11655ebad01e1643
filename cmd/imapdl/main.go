// Command imapdl fetches every message in a mailbox over IMAP, writes
// each one into a Maildir, and optionally deletes it from the server
// afterward. Grounded on client.cc's IMAP::Copy::main() and on
// cmd/cli/watch_cmd.go's flag-parse + signal.NotifyContext + run
// shape, adapted to the first-signal-graceful/second-signal-fatal
// handling spec.md §4.H asks for.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/hkdb/imapdl/internal/imapdl/client"
	"github.com/hkdb/imapdl/internal/imapdl/config"
	"github.com/hkdb/imapdl/internal/imapdl/header"
	"github.com/hkdb/imapdl/internal/imapdl/journal"
	"github.com/hkdb/imapdl/internal/imapdl/logging"
	"github.com/hkdb/imapdl/internal/imapdl/maildir"
	"github.com/hkdb/imapdl/internal/imapdl/timer"
	"github.com/hkdb/imapdl/internal/imapdl/transport"
	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapdl: %v\n", err)
		os.Exit(2)
	}

	closer, err := logging.Init(cfg.Severity, cfg.FileSeverity, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapdl: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	log := logging.WithComponent("main")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("imapdl exiting with error")
		os.Exit(1)
	}
}

// run drives one IMAP connection end to end: read-and-consume any
// leftover journal, dial, authenticate, fetch/delete, then persist a
// fresh journal if cleanup debt remains (spec.md §4.C, I4/I5).
func run(cfg config.Config, log zerolog.Logger) error {
	md, err := maildir.Open(cfg.Maildir)
	if err != nil {
		return fmt.Errorf("main: open maildir: %w", err)
	}

	task := client.TaskDownload
	var journalMailbox string
	var journalUIDValidity uint32
	var journalUIDs uidset.Set

	j, err := journal.Read(cfg.JournalFile)
	switch {
	case err == nil:
		log.Info().Str("journal", cfg.JournalFile).Msg("found journal from a previous, interrupted run")
		task = client.TaskCleanup
		journalMailbox = j.Mailbox
		journalUIDValidity = j.UIDValidity
		journalUIDs = j.UIDs
		if err := journal.Remove(cfg.JournalFile); err != nil {
			return fmt.Errorf("main: remove consumed journal: %w", err)
		}
	case errors.Is(err, journal.ErrNoJournal):
		// normal: no prior cleanup debt.
	default:
		return fmt.Errorf("main: read journal: %w", err)
	}

	shutdown := client.NewShutdownController(log)
	shutdown.Start(client.FatalOnSecondSignal)
	defer shutdown.Stop()
	ctx := shutdown.Context()

	transportCfg := transport.DefaultConfig()
	transportCfg.Host = cfg.Host
	transportCfg.Port = cfg.Port

	conn, err := transport.Dial(ctx, transportCfg)
	if err != nil {
		return fmt.Errorf("main: dial: %w", err)
	}

	imapC := imapclient.New(conn, nil)
	greetingWait := time.Duration(cfg.GreetingWaitMS) * time.Millisecond
	if err := waitGreeting(conn, imapC, greetingWait); err != nil {
		imapC.Close()
		return fmt.Errorf("main: server greeting: %w", err)
	}

	fetchTimer := timer.New(conn, logging.WithComponent("timer"))
	headers := header.New(logging.WithComponent("header"), cfg.Severity, cfg.FileSeverity)

	opts := client.Options{
		Username:      cfg.Username,
		Password:      cfg.Password,
		Mailbox:       cfg.Mailbox,
		Delete:        cfg.Delete,
		GreetingWait:  cfg.GreetingWaitMS,
		SimulateError: cfg.SimulateError,
	}

	drv := client.New(imapC, opts, logging.WithComponent("client"), &md, fetchTimer, headers,
		task, journalMailbox, journalUIDValidity, journalUIDs)
	drv.SeedCapabilities(imapC.Caps())

	runErr := drv.Run(ctx)

	mailbox, uidvalidity, uids := drv.Journal()
	if drv.ShouldWriteJournal() {
		jw := journal.Journal{Mailbox: mailbox, UIDValidity: uidvalidity, UIDs: uids}
		if err := journal.Write(cfg.JournalFile, jw); err != nil {
			log.Error().Err(err).Msg("failed to write crash-recovery journal")
		} else {
			log.Info().Str("journal", cfg.JournalFile).Msg("wrote crash-recovery journal")
		}
	}

	if runErr != nil {
		if errors.Is(runErr, client.ErrShutdownRequested) {
			log.Error().Msg("interrupted by signal")
			return nil
		}
		loggedOut := drv.State() == client.LoggedOut || drv.State() == client.End
		if transport.IsBenignClose(runErr, loggedOut) {
			return nil
		}
		return runErr
	}
	return nil
}

// waitGreeting bounds imapclient.Client.WaitGreeting by d: go-imap/v2's
// API has no context-aware variant, so a goroutine races the blocking
// call against a timer exactly as transport.Dial races tls.Dial against
// ctx.Done — closing the connection is what actually unblocks the
// pending Read on timeout.
func waitGreeting(conn *transport.Conn, imapC *imapclient.Client, d time.Duration) error {
	if d <= 0 {
		return imapC.WaitGreeting()
	}

	done := make(chan error, 1)
	go func() { done <- imapC.WaitGreeting() }()

	select {
	case err := <-done:
		return err
	case <-time.After(d):
		conn.Close()
		<-done
		return fmt.Errorf("timed out waiting %s for server greeting", d)
	}
}
