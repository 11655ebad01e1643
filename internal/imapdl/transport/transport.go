// Package transport dials the TLS connection imapdl speaks IMAP over,
// and classifies read-loop errors as benign (expected at LOGOUT) or
// fatal. Grounded on internal/imap/client.go's deadlineConn wrapping
// and on client.cc's do_read()/do_quit() close-handling.
//
// spec.md excludes STARTTLS from the core pipeline (implicit TLS
// only), so unlike the teacher's three-way Security switch, Dial only
// ever does tls.DialWithDialer.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// Config holds the dial parameters for the single IMAP connection
// imapdl drives for its lifetime (spec.md §3: one mailbox, one
// connection, no reconnect).
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLSConfig      *tls.Config
}

// DefaultConfig mirrors internal/imap/client.go's DefaultConfig, minus
// the STARTTLS/plaintext branches spec.md's Non-goals exclude.
func DefaultConfig() Config {
	return Config{
		Port:           993,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    3 * time.Minute,
		WriteTimeout:   30 * time.Second,
	}
}

// Conn wraps a net.Conn with per-operation read/write deadlines (as
// deadlineConn does) and a running byte-read counter feeding the
// Fetch Timer's throughput meter (client.cc's Net::Client::bytes_read()).
type Conn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	bytesRead    int64
}

// Dial connects to cfg.Host:cfg.Port over implicit TLS and waits for
// nothing further — the caller constructs an imapclient.Client around
// the returned Conn and awaits the server greeting itself.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: cfg.Host}
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", addr, r.err)
		}
		return &Conn{
			Conn:         r.conn,
			readTimeout:  cfg.ReadTimeout,
			writeTimeout: cfg.WriteTimeout,
		}, nil
	}
}

// Read sets a fresh read deadline before each read and tallies bytes
// successfully read, matching deadlineConn.Read plus the byte counter
// client.cc's Fetch_Timer reads from.
func (c *Conn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(b)
	if n > 0 {
		atomic.AddInt64(&c.bytesRead, int64(n))
	}
	return n, err
}

// Write sets a fresh write deadline before each write, matching
// deadlineConn.Write.
func (c *Conn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// BytesRead implements timer.BytesReader.
func (c *Conn) BytesRead() int64 {
	return atomic.LoadInt64(&c.bytesRead)
}

// IsBenignClose reports whether err is the kind of close client.cc's
// do_read() treats as expected rather than fatal: an EOF, an unexpected
// EOF, or a read on an already-closed connection, seen only after the
// connection has already been told to log out. A nil err is always
// benign.
// loggedOut must reflect the state machine's current state at the
// moment the read failed.
func IsBenignClose(err error, loggedOut bool) bool {
	if err == nil {
		return true
	}
	if !loggedOut {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
