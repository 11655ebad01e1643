// Package header implements the header printer of spec.md §4.B: a
// severity-gated decoder that renders BODY.PEEK[HEADER.FIELDS(...)]
// bytes as one left-padded "NAME value" log line per field, grounded
// on client.cc's Header_Printer::print().
package header

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/emersion/go-message/textproto"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hkdb/imapdl/internal/imapdl/logging"
)

// Printer decodes and logs the requested header fields of one
// message, one BODY.PEEK[HEADER.FIELDS] buffer at a time.
type Printer struct {
	log       zerolog.Logger
	severity  logging.Severity
	fileLevel logging.Severity
	upper     cases.Caser
}

// New returns a Printer gated by severity/fileSeverity exactly as
// client.cc's constructor options (opts_.severity / opts_.file_severity).
func New(log zerolog.Logger, severity, fileSeverity logging.Severity) *Printer {
	return &Printer{
		log:       log,
		severity:  severity,
		fileLevel: fileSeverity,
		upper:     cases.Upper(language.Und),
	}
}

// Print decodes one header buffer and logs each field, left-padded
// to width 10, uppercase field name first. Mirrors Header_Printer::print():
// a short-circuit when neither sink is at INFO+, a raw dump at DEBUG+,
// and a non-fatal log (never a returned error) on decode failure —
// a malformed header must not abort the fetch.
func (p *Printer) Print(buf []byte) {
	if !p.severity.AtLeastInfo() && !p.fileLevel.AtLeastInfo() {
		return
	}

	if p.severity.AtLeastDebug() || p.fileLevel.AtLeastDebug() {
		p.log.Debug().Msgf("Header: |%s|", string(buf))
	}

	fields, err := decodeFields(buf, p.upper)
	if err != nil {
		p.log.Error().Err(err).Msg("header decode failed")
		return
	}

	for _, f := range fields {
		p.log.Info().Msgf("%-10s %s", f.name, f.value)
	}
}

type field struct {
	name  string
	value string
}

// decodeFields parses an RFC 5322 header block and returns one entry
// per field, name uppercased, matching the constructor's
// boost::to_upper_copy(name) callback and its CRLF-tolerant "Ending::LF"
// policy (go-message/textproto accepts bare LF line endings already).
func decodeFields(buf []byte, upper cases.Caser) ([]field, error) {
	r := bufio.NewReader(bytes.NewReader(ensureTerminated(buf)))
	h, err := textproto.ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("header: decode: %w", err)
	}

	var out []field
	hf := h.Fields()
	for hf.Next() {
		out = append(out, field{
			name:  upper.String(hf.Key()),
			value: hf.Value(),
		})
	}
	return out, nil
}

// ensureTerminated appends the blank-line terminator textproto.ReadHeader
// requires, since IMAP's HEADER.FIELDS literal omits the trailing CRLF
// that would otherwise mark end-of-header.
func ensureTerminated(buf []byte) []byte {
	if bytes.HasSuffix(buf, []byte("\r\n\r\n")) || bytes.HasSuffix(buf, []byte("\n\n")) {
		return buf
	}
	out := make([]byte, 0, len(buf)+2)
	out = append(out, buf...)
	if bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	} else {
		out = append(out, '\r', '\n', '\r', '\n')
	}
	return out
}
