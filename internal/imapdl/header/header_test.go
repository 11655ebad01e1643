package header

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/imapdl/internal/imapdl/logging"
)

func newTestLogger(buf *bytes.Buffer) zerolog.Logger {
	return zerolog.New(buf)
}

func TestPrintSkippedBelowInfoSeverity(t *testing.T) {
	var buf bytes.Buffer
	p := New(newTestLogger(&buf), logging.SeverityError, logging.SeverityError)
	p.Print([]byte("Subject: hello\r\n\r\n"))
	assert.Empty(t, buf.String())
}

func TestPrintDecodesFieldsAtInfoSeverity(t *testing.T) {
	var buf bytes.Buffer
	p := New(newTestLogger(&buf), logging.SeverityInfo, logging.SeverityFatal)
	p.Print([]byte("Subject: hello\r\nDate: Mon, 1 Jan 2024 00:00:00 +0000\r\n\r\n"))

	out := buf.String()
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "DATE")
}

func TestPrintLogsRawHeaderAtDebugSeverity(t *testing.T) {
	var buf bytes.Buffer
	p := New(newTestLogger(&buf), logging.SeverityDebug, logging.SeverityFatal)
	p.Print([]byte("Subject: hello\r\n\r\n"))

	assert.Contains(t, buf.String(), "Header: |Subject: hello")
}

func TestPrintOnMalformedHeaderLogsErrorNotPanic(t *testing.T) {
	var buf bytes.Buffer
	p := New(newTestLogger(&buf), logging.SeverityInfo, logging.SeverityFatal)
	require.NotPanics(t, func() {
		p.Print([]byte{0xff, 0xfe, 0x00})
	})
}
