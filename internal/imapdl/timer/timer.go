// Package timer implements the fetch-throughput meter of spec.md
// §4.A: a once-per-second progress line ("Fetched N messages (B bytes)
// in S s (@ R KiB/s)"), grounded directly on client.cc's Fetch_Timer.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// BytesReader reports the cumulative bytes read on a connection so
// far, matching client.cc's Net::Client::Base::bytes_read().
type BytesReader interface {
	BytesRead() int64
}

// Timer prints a throughput line once per second while running, and a
// final summary line on Stop. All exported methods are safe for
// concurrent use: Stop/IncreaseMessages are called from the command
// driver while the print loop runs on its own goroutine.
type Timer struct {
	client BytesReader
	log    zerolog.Logger

	start      time.Time
	bytesStart int64
	messages   int64

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// New returns a Timer that reports against client's byte counter.
func New(client BytesReader, log zerolog.Logger) *Timer {
	return &Timer{client: client, log: log}
}

// Start begins timing a fetch phase and starts the once-per-second
// print loop, matching Fetch_Timer::start().
func (t *Timer) Start() {
	t.start = time.Now()
	t.bytesStart = t.client.BytesRead()
	t.Resume()
}

// Resume (re)starts the one-second print ticker without resetting the
// start time or byte baseline, matching Fetch_Timer::resume()'s
// self-rearming async_wait chain.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		return
	}
	t.ticker = time.NewTicker(time.Second)
	t.done = make(chan struct{})
	ticker, done := t.ticker, t.done
	go func() {
		for {
			select {
			case <-ticker.C:
				t.print()
			case <-done:
				return
			}
		}
	}()
}

// Stop prints a final summary line and cancels the print loop,
// matching Fetch_Timer::stop().
func (t *Timer) Stop() {
	t.print()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.done)
		t.ticker = nil
	}
}

// IncreaseMessages increments the fetched-message counter.
func (t *Timer) IncreaseMessages() {
	atomic.AddInt64(&t.messages, 1)
}

// Messages returns the number of messages fetched so far, used by the
// simulate_error check (spec.md §6), which aborts once this count
// reaches the configured number.
func (t *Timer) Messages() int64 {
	return atomic.LoadInt64(&t.messages)
}

func (t *Timer) print() {
	elapsed := time.Since(t.start)
	b := t.client.BytesRead() - t.bytesStart
	ms := elapsed.Milliseconds()
	var rate float64
	if ms > 0 {
		rate = (float64(b) * 1024.0) / (float64(ms) * 1000.0)
	}
	t.log.Info().
		Int64("messages", t.Messages()).
		Int64("bytes", b).
		Float64("seconds", float64(ms)/1000.0).
		Float64("kib_per_s", rate).
		Msgf("Fetched %d messages (%d bytes) in %.3f s (@ %.2f KiB/s)",
			t.Messages(), b, float64(ms)/1000.0, rate)
}
