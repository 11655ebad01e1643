// Package journal implements the crash-recovery journal of spec.md
// §4.C: a small self-describing text file holding
// {mailbox, uidvalidity, uid-set}, persisting server-side cleanup debt
// across runs (spec.md §3 Journal, I4/I5).
//
// original_source/copy/serialize.cc round-trips the same three fields
// through a boost::archive::text_*archive. imapdl keeps the
// "self-describing text, human inspectable" property without pulling
// in a serialization framework: a line-oriented format is enough and
// is trivial to `cat`.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hkdb/imapdl/internal/imapdl/uidset"
)

// ErrNoJournal is returned by Read when the journal file does not
// exist — spec.md I5's "normal signal: no prior state", not an error
// condition the caller should treat as fatal.
var ErrNoJournal = errors.New("journal: no prior state")

// Journal is the persisted {mailbox, uidvalidity, uids} record.
type Journal struct {
	Mailbox     string
	UIDValidity uint32
	UIDs        uidset.Set
}

// Read deserializes the journal at path. A missing file yields
// ErrNoJournal; any other I/O or parse error is fatal per spec.md §7.7
// ("corrupted state must be examined by an operator").
func Read(path string) (Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Journal{}, ErrNoJournal
		}
		return Journal{}, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var j Journal

	if !sc.Scan() {
		return Journal{}, fmt.Errorf("journal: %s: missing mailbox line", path)
	}
	j.Mailbox = sc.Text()

	if !sc.Scan() {
		return Journal{}, fmt.Errorf("journal: %s: missing uidvalidity line", path)
	}
	uv, err := strconv.ParseUint(sc.Text(), 10, 32)
	if err != nil {
		return Journal{}, fmt.Errorf("journal: %s: bad uidvalidity %q: %w", path, sc.Text(), err)
	}
	j.UIDValidity = uint32(uv)

	var ranges []uidset.Range
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return Journal{}, fmt.Errorf("journal: %s: bad range line %q", path, line)
		}
		lo, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return Journal{}, fmt.Errorf("journal: %s: bad range lo %q: %w", path, fields[0], err)
		}
		hi, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return Journal{}, fmt.Errorf("journal: %s: bad range hi %q: %w", path, fields[1], err)
		}
		ranges = append(ranges, uidset.Range{Lo: uint32(lo), Hi: uint32(hi)})
	}
	if err := sc.Err(); err != nil {
		return Journal{}, fmt.Errorf("journal: %s: read: %w", path, err)
	}
	j.UIDs = uidset.FromRanges(ranges)

	return j, nil
}

// Write serializes j to path atomically: write to path+".tmp", then
// rename into place, matching spec.md §6's "write-to-temp + rename
// recommended" journal-file contract.
func Write(path string, j Journal) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, j.Mailbox)
	fmt.Fprintln(w, j.UIDValidity)
	for _, r := range j.UIDs.Copy() {
		fmt.Fprintf(w, "%d %d\n", r.Lo, r.Hi)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("journal: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("journal: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("journal: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// Remove deletes the journal file at path, used after it has been
// consumed on startup (spec.md I5: "read, then unlinked").
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("journal: remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a journal file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
