// signal.go implements the Signal/Shutdown Controller of spec.md
// §4.H, grounded on client.cc's do_signal_wait(): the first SIGINT or
// SIGTERM triggers a graceful logout; a second one is treated as the
// operator demanding an immediate exit and is fatal.
package client

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
)

// ShutdownController arms SIGINT/SIGTERM handling for the lifetime of
// a run. Call Start once, then Context to get a context that is
// canceled on the first signal; a second signal instead calls the
// fatal hook passed to Start (main passes FatalOnSecondSignal, which
// calls os.Exit), matching client.cc's
// "second signal = immediate exit" behavior (it throws, unwinding
// straight out of the event loop).
type ShutdownController struct {
	log      zerolog.Logger
	signaled int32

	ch     chan os.Signal
	ctx    context.Context
	cancel context.CancelFunc
}

// NewShutdownController wires up signal.Notify for SIGINT and SIGTERM.
func NewShutdownController(log zerolog.Logger) *ShutdownController {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownController{
		log:    log,
		ch:     make(chan os.Signal, 2),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns a context canceled on the first SIGINT/SIGTERM. The
// command driver should watch it (or a derived channel) to unwind to
// quit() rather than continuing its normal sequence.
func (s *ShutdownController) Context() context.Context {
	return s.ctx
}

// Start begins listening for signals in the background. onFatal is
// invoked, with the signal number, on a second signal — the caller is
// expected to terminate the process from it.
func (s *ShutdownController) Start(onFatal func(signalNumber int)) {
	signal.Notify(s.ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range s.ch {
			s.log.Error().Str("signal", sig.String()).Msg("got signal")
			if !atomic.CompareAndSwapInt32(&s.signaled, 0, 1) {
				onFatal(signalNumber(sig))
				return
			}
			s.cancel()
		}
	}()
}

// Stop cancels signal delivery, matching do_quit()'s signals_.cancel().
func (s *ShutdownController) Stop() {
	signal.Stop(s.ch)
	close(s.ch)
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}

// FatalOnSecondSignal is the onFatal hook main passes to Start: it mirrors
// client.cc's THROW_MSG("Got a signal ... the second time - immediate
// exit") by printing and exiting non-zero rather than attempting any
// further cleanup.
func FatalOnSecondSignal(signalNumber int) {
	fmt.Fprintf(os.Stderr, "imapdl: got a signal (%d) the second time - immediate exit\n", signalNumber)
	os.Exit(1)
}
