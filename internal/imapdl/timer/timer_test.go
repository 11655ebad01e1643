package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeBytesReader struct {
	n int64
}

func (f *fakeBytesReader) BytesRead() int64 {
	return atomic.LoadInt64(&f.n)
}

func TestIncreaseMessagesCountsUp(t *testing.T) {
	tm := New(&fakeBytesReader{}, zerolog.Nop())
	assert.Equal(t, int64(0), tm.Messages())
	tm.IncreaseMessages()
	tm.IncreaseMessages()
	assert.Equal(t, int64(2), tm.Messages())
}

func TestStartAndStopDoesNotPanic(t *testing.T) {
	r := &fakeBytesReader{}
	tm := New(r, zerolog.Nop())
	tm.Start()
	atomic.AddInt64(&r.n, 4096)
	time.Sleep(10 * time.Millisecond)
	tm.Stop()
}

func TestResumeIsIdempotentWhileRunning(t *testing.T) {
	tm := New(&fakeBytesReader{}, zerolog.Nop())
	tm.Start()
	tm.Resume()
	tm.Resume()
	tm.Stop()
}
