package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waddu20-ops/SmartDo/internal/audio"
)

type recordSink struct {
	mu     sync.Mutex
	writes []time.Time
}

func (r *recordSink) Write(_ *audio.Buffer) {
	r.mu.Lock()
	r.writes = append(r.writes, time.Now())
	r.mu.Unlock()
}

func (r *recordSink) snapshot() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.writes...)
}

// 30ms of 16kHz mono.
func testBuffer() *audio.Buffer {
	return &audio.Buffer{Data: make([]float32, 480), SampleRate: 16000, Channels: 1}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestScheduler_SequentialNonOverlappingStarts(t *testing.T) {
	sink := &recordSink{}
	quiet := make(chan struct{}, 1)
	s := New(sink, zerolog.Nop(), WithOnQuiet(func() {
		select {
		case quiet <- struct{}{}:
		default:
		}
	}))

	s.Schedule(testBuffer())
	s.Schedule(testBuffer())
	assert.Equal(t, 2, s.ActiveCount())

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	writes := sink.snapshot()
	// second buffer must not start before the first one's 30ms finished
	assert.GreaterOrEqual(t, writes[1].Sub(writes[0]), 20*time.Millisecond)

	waitFor(t, func() bool { return s.ActiveCount() == 0 })
	select {
	case <-quiet:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected all-quiet signal after completion")
	}
}

func TestScheduler_FlushAllStopsEverythingImmediately(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, zerolog.Nop())

	// one playing, one queued behind it
	s.Schedule(testBuffer())
	s.Schedule(testBuffer())
	waitFor(t, func() bool { return len(sink.snapshot()) >= 1 })

	s.FlushAll()
	assert.Zero(t, s.ActiveCount())

	// the queued buffer must never start
	before := len(sink.snapshot())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, len(sink.snapshot()))
}

func TestScheduler_ScheduleAfterFlushStartsAtFlushClock(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, zerolog.Nop())

	// build up a long backlog, then flush it away
	for i := 0; i < 5; i++ {
		s.Schedule(testBuffer())
	}
	s.FlushAll()
	flushedAt := time.Now()
	before := len(sink.snapshot())

	s.Schedule(testBuffer())
	waitFor(t, func() bool { return len(sink.snapshot()) > before })
	writes := sink.snapshot()
	last := writes[len(writes)-1]
	require.False(t, last.Before(flushedAt.Add(-time.Millisecond)))
	// and it must not inherit the flushed backlog's 150ms of lead time
	assert.Less(t, last.Sub(flushedAt), 100*time.Millisecond)
}

func TestScheduler_EmptyBufferCompletesQuickly(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.Schedule(&audio.Buffer{SampleRate: 24000, Channels: 1})
	waitFor(t, func() bool { return s.ActiveCount() == 0 })
}
