// Package config parses the CLI flags of spec.md §6 and resolves the
// account password, either from the flag, from IMAPDL_PASSWORD, or
// from the OS keyring — grounded on internal/credentials/store.go's
// "prefer the OS keyring, fall back" idiom (the encrypted-DB half of
// that file has no counterpart here; see DESIGN.md).
package config

import (
	"fmt"
	"os"

	gokeyring "github.com/zalando/go-keyring"
	flag "github.com/spf13/pflag"

	"github.com/hkdb/imapdl/internal/imapdl/logging"
)

// serviceName is the OS keyring service under which imapdl looks up a
// saved password when neither --password nor IMAPDL_PASSWORD is set.
const serviceName = "imapdl"

// Config holds every option spec.md §6 names.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	Mailbox     string
	Maildir     string
	JournalFile string
	Delete      bool

	GreetingWaitMS int
	SimulateError  int

	Severity     logging.Severity
	FileSeverity logging.Severity
	LogFile      string
}

// Parse parses args (normally os.Args[1:]) into a Config, applying the
// password-resolution fallback chain: --password, then IMAPDL_PASSWORD,
// then the OS keyring entry for --username.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("imapdl", flag.ContinueOnError)

	var cfg Config
	var severity, fileSeverity string

	fs.StringVar(&cfg.Host, "host", "", "IMAP server host (required)")
	fs.IntVar(&cfg.Port, "port", 993, "IMAP server port")
	fs.StringVar(&cfg.Username, "username", "", "IMAP account username (required)")
	fs.StringVar(&cfg.Password, "password", "", "IMAP account password (overrides IMAPDL_PASSWORD and keyring)")
	fs.StringVar(&cfg.Mailbox, "mailbox", "INBOX", "mailbox to fetch from")
	fs.StringVar(&cfg.Maildir, "maildir", "", "destination Maildir (required)")
	fs.StringVar(&cfg.JournalFile, "journal-file", "imapdl.journal", "crash-recovery journal path")
	fs.BoolVar(&cfg.Delete, "delete", false, "delete messages from the server after a successful fetch")
	fs.IntVar(&cfg.GreetingWaitMS, "greeting-wait", 100, "milliseconds to wait for an untagged CAPABILITY in the server greeting")
	fs.IntVar(&cfg.SimulateError, "simulate-error", 0, "abort after fetching this many messages, for crash-recovery testing (0 disables)")
	fs.StringVar(&severity, "severity", "msg", "stderr log severity: fatal|error|msg|info|debug")
	fs.StringVar(&fileSeverity, "file-severity", "fatal", "log-file severity: fatal|error|msg|info|debug")
	fs.StringVar(&cfg.LogFile, "log-file", "", "optional log file (in addition to stderr)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	sev, ok := logging.ParseSeverity(severity)
	if !ok {
		return Config{}, fmt.Errorf("config: unknown --severity %q", severity)
	}
	cfg.Severity = sev

	fsev, ok := logging.ParseSeverity(fileSeverity)
	if !ok {
		return Config{}, fmt.Errorf("config: unknown --file-severity %q", fileSeverity)
	}
	cfg.FileSeverity = fsev

	if cfg.Host == "" {
		return Config{}, fmt.Errorf("config: --host is required")
	}
	if cfg.Username == "" {
		return Config{}, fmt.Errorf("config: --username is required")
	}
	if cfg.Maildir == "" {
		return Config{}, fmt.Errorf("config: --maildir is required")
	}

	pw, err := resolvePassword(cfg.Username, cfg.Password)
	if err != nil {
		return Config{}, err
	}
	cfg.Password = pw

	return cfg, nil
}

// resolvePassword implements the fallback chain: an explicit flag
// wins, then the IMAPDL_PASSWORD environment variable, then the OS
// keyring entry saved for username under the imapdl service name.
func resolvePassword(username, flagPassword string) (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	if env := os.Getenv("IMAPDL_PASSWORD"); env != "" {
		return env, nil
	}
	pw, err := gokeyring.Get(serviceName, username)
	if err != nil {
		return "", fmt.Errorf("config: no --password, IMAPDL_PASSWORD, or keyring entry for %q: %w", username, err)
	}
	return pw, nil
}
