// fetch.go implements the Parser Adapter of spec.md §4.E: for each
// message in the mailbox, FETCH (UID FLAGS BODY.PEEK[HEADER.FIELDS
// (Date From Subject)] BODY.PEEK[]), print the requested headers,
// stream the full body straight into a Maildir tmp file, then move it
// into new/ or cur/ depending on whether any flag translates.
//
// client.cc's parser_ is an external push-parser fed raw socket bytes;
// imapclient.FetchCommand's Next()/msg.Next() streaming iterator is
// the Go-idiomatic equivalent push surface (see internal/sync/fetch.go
// and pkgs/email/watch.go's fetchRawEmailReader for the two
// independent teacher-family examples this is grounded on): both
// avoid buffering a whole mailbox, or even a whole message, in memory.
package client

import (
	"fmt"
	"io"
	"math"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hkdb/imapdl/internal/imapdl/maildir"
)

var headerFields = []string{"Date", "From", "Subject"}

func fetchOptions() *imap.FetchOptions {
	return &imap.FetchOptions{
		UID:   true,
		Flags: true,
		BodySection: []*imap.FetchItemBodySection{
			{
				Specifier:    imap.PartSpecifierHeader,
				HeaderFields: headerFields,
				Peek:         true,
			},
			{
				Specifier: imap.PartSpecifierNone,
				Peek:      true,
			},
		},
	}
}

// fetchAll issues one FETCH 1:* covering every message currently in
// the mailbox and streams the response, matching async_fetch's
// {1, max uint32} sequence set.
func (c *Client) fetchAll() error {
	seqSet := imap.SeqSet{}
	seqSet.AddRange(1, math.MaxUint32)

	fetchCmd := c.imap.Fetch(seqSet, fetchOptions())
	defer fetchCmd.Close()

	for {
		if err := c.checkAborted(); err != nil {
			fetchCmd.Close()
			return err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		if err := c.fetchOneMessage(msg); err != nil {
			return err
		}
	}
	return fetchCmd.Close()
}

// fetchOneMessage matches imap_data_fetch_begin/imap_uid/imap_flag/
// imap_body_section_inner/imap_body_section_end/imap_data_fetch_end:
// reset per-message state, apply the simulate_error hook, stream each
// body section, then require a UID was observed before recording it.
func (c *Client) fetchOneMessage(msg *imapclient.FetchMessageData) error {
	c.flags = nil
	c.lastUID = 0

	if c.opts.SimulateError > 0 && c.opts.SimulateError == int(c.timer.Messages()) {
		return fmt.Errorf("client: simulated error after fetched message: %d", c.timer.Messages())
	}

	var deliveredPath string

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			c.lastUID = data.UID
			c.log.Debug().Uint32("uid", uint32(data.UID)).Msg("UID")

		case imapclient.FetchItemDataFlags:
			c.flags = data.Flags
			for _, f := range data.Flags {
				c.log.Debug().Str("flag", string(f)).Msg("got flag")
			}

		case imapclient.FetchItemDataBodySection:
			path, err := c.handleBodySection(data)
			if err != nil {
				return err
			}
			if path != "" {
				deliveredPath = path
			}
		}
	}

	if c.lastUID == 0 {
		return fmt.Errorf("client: did not retrieve any UID")
	}

	c.log.Debug().Uint32("uid", uint32(c.lastUID)).Msg("storing UID")
	c.uids.Push(uint32(c.lastUID))
	c.timer.IncreaseMessages()
	c.fetchCount++

	if deliveredPath != "" {
		c.log.Debug().Str("path", deliveredPath).Msg("delivered message")
	}
	return nil
}

// handleBodySection dispatches a single BODY[...] literal: the
// HEADER.FIELDS section goes to the Header Printer (buffered, small),
// the full-body section streams directly into a new Maildir message.
func (c *Client) handleBodySection(data imapclient.FetchItemDataBodySection) (string, error) {
	if data.Literal == nil {
		return "", nil
	}

	if len(data.Section.HeaderFields) > 0 {
		buf, err := io.ReadAll(data.Literal)
		if err != nil {
			return "", fmt.Errorf("client: reading header section: %w", err)
		}
		c.headers.Print(buf)
		return "", nil
	}

	return c.deliverBody(data.Literal)
}

// deliverBody streams a full BODY.PEEK[] literal straight to a
// Maildir tmp file and moves it into new/ or cur/ depending on whether
// any flag survived translation, matching imap_body_section_inner
// swapping buffer_proxy_ to a file buffer, and move_to_new()/
// move_to_cur(flags_) on completion.
func (c *Client) deliverBody(r io.Reader) (string, error) {
	msg, err := c.maildir.Create()
	if err != nil {
		return "", fmt.Errorf("client: creating maildir message: %w", err)
	}

	if _, err := io.Copy(msg, r); err != nil {
		msg.Discard()
		return "", fmt.Errorf("client: writing maildir message: %w", err)
	}

	// Matches client.cc's flags_.empty() test: route on whether any
	// Maildir-representable flag survived translation, not solely on
	// \Seen — an \Answered/\Flagged/\Draft message with no \Seen flag
	// still belongs in cur/ with its suffix, not new/ with the suffix
	// silently dropped.
	if mf := maildirFlags(c.flags); mf != "" {
		return msg.MoveToCur(mf)
	}
	return msg.MoveToNew()
}

// maildirFlags matches client.cc's imap_flag(): ANSWERED->R,
// FLAGGED->F, SEEN->S, DRAFT->D; RECENT and DELETED never appear in
// the Maildir flag suffix.
func maildirFlags(flags []imap.Flag) string {
	var answered, flagged, isSeen, draft bool
	for _, f := range flags {
		switch f {
		case imap.FlagAnswered:
			answered = true
		case imap.FlagFlagged:
			flagged = true
		case imap.FlagSeen:
			isSeen = true
		case imap.FlagDraft:
			draft = true
		}
	}
	return maildir.FlagsToMaildir(answered, flagged, isSeen, draft)
}
