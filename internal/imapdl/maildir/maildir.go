// Package maildir implements the minimal Maildir sink of spec.md §4.E:
// a message body is streamed into tmp/, then atomically linked into
// new/ (no flags) or cur/ (with a flag suffix) once delivery is known
// complete.
//
// No Maildir library appeared anywhere in the retrieved pack, so this
// is hand-written (see DESIGN.md). It still avoids a bare-stdlib feel
// for unique naming by reusing the teacher's uuid.New().String() idiom
// (e.g. internal/smtp/message.go, internal/pgp/store.go) in place of
// the classic Maildir "pid.hostname" tmpname scheme.
package maildir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir represents a single Maildir rooted at path, with the standard
// tmp/new/cur subdirectories.
type Dir struct {
	root string
}

// Open returns a Dir rooted at path, creating tmp/new/cur if absent.
func Open(path string) (Dir, error) {
	d := Dir{root: path}
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0o700); err != nil {
			return Dir{}, fmt.Errorf("maildir: mkdir %s/%s: %w", path, sub, err)
		}
	}
	return d, nil
}

// Message is an in-progress delivery: a file open in tmp/, pending a
// move into new/ or cur/.
type Message struct {
	dir      Dir
	tmpName  string
	tmpPath  string
	f        *os.File
	finished bool
}

// Create opens a new file in tmp/ under a uuid-derived unique name,
// ready to receive a streamed message body.
func (d Dir) Create() (*Message, error) {
	name := uuid.New().String()
	path := filepath.Join(d.root, "tmp", name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("maildir: create %s: %w", path, err)
	}
	return &Message{dir: d, tmpName: name, tmpPath: path, f: f}, nil
}

// Write appends to the message body. Implements io.Writer so callers
// can io.Copy directly from the fetch literal (spec.md §4.E step 2).
func (m *Message) Write(p []byte) (int, error) {
	return m.f.Write(p)
}

// MoveToNew finishes delivery with no flags: closes the tmp file and
// renames it into new/, matching client.cc's move_to_new().
func (m *Message) MoveToNew() (string, error) {
	return m.finish("new", "")
}

// MoveToCur finishes delivery with the given Maildir flag suffix
// (e.g. "S" for \Seen), renaming into cur/<name>:2,<flags>, matching
// client.cc's move_to_cur(flags_).
func (m *Message) MoveToCur(flags string) (string, error) {
	suffix := ":2,"
	if flags != "" {
		suffix += flags
	}
	return m.finish("cur", suffix)
}

func (m *Message) finish(subdir, suffix string) (string, error) {
	if m.finished {
		return "", fmt.Errorf("maildir: message %s already finished", m.tmpName)
	}
	if err := m.f.Close(); err != nil {
		return "", fmt.Errorf("maildir: close %s: %w", m.tmpPath, err)
	}
	dest := filepath.Join(m.dir.root, subdir, m.tmpName+suffix)
	if err := os.Rename(m.tmpPath, dest); err != nil {
		return "", fmt.Errorf("maildir: rename %s -> %s: %w", m.tmpPath, dest, err)
	}
	m.finished = true
	return dest, nil
}

// Discard abandons an in-progress delivery, removing the tmp file.
// Used when a fetch is aborted mid-body (e.g. on shutdown).
func (m *Message) Discard() error {
	if m.finished {
		return nil
	}
	m.f.Close()
	m.finished = true
	return os.Remove(m.tmpPath)
}

// FlagsToMaildir maps the IMAP flags imapdl tracks to a Maildir flag
// suffix, in the fixed alphabetical order Maildir requires. Mirrors
// client.cc's imap_flag(): ANSWERED->R, SEEN->S, FLAGGED->F, DRAFT->D;
// RECENT and DELETED are never written to the suffix.
func FlagsToMaildir(answered, flagged, seen, draft bool) string {
	var out string
	if draft {
		out += "D"
	}
	if flagged {
		out += "F"
	}
	if answered {
		out += "R"
	}
	if seen {
		out += "S"
	}
	return out
}
