// Package playback queues decoded audio buffers for gapless sequential
// playback and supports immediate flush on interruption.
package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waddu20-ops/SmartDo/internal/audio"
)

// Clock abstracts the playback clock so scheduling decisions are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sink receives a buffer when its scheduled start time arrives.
type Sink interface {
	Write(buf *audio.Buffer)
}

// Scheduler owns the set of in-flight playback sources. It is the only
// component allowed to mutate that set; everyone else goes through Schedule,
// FlushAll and ActiveCount.
type Scheduler struct {
	clock Clock
	sink  Sink
	log   zerolog.Logger

	mu        sync.Mutex
	nextStart time.Time
	active    map[uint64]*source
	seq       uint64
	onQuiet   func()
	onFlush   func()
}

type source struct {
	start *time.Timer
	done  *time.Timer
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithOnQuiet registers a callback fired each time the active set drains to
// empty through normal completion.
func WithOnQuiet(fn func()) Option {
	return func(s *Scheduler) { s.onQuiet = fn }
}

// WithOnFlush registers a callback fired after FlushAll clears a non-empty
// active set, so interruption can be propagated downstream.
func WithOnFlush(fn func()) Option {
	return func(s *Scheduler) { s.onFlush = fn }
}

// New constructs a Scheduler delivering started buffers to sink. A nil sink
// is allowed; buffers then only occupy the timeline.
func New(sink Sink, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  systemClock{},
		sink:   sink,
		log:    logger,
		active: make(map[uint64]*source),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues buf to begin at max(nextStart, now) and advances the
// next-start clock by the buffer's duration. Buffers are never reordered.
func (s *Scheduler) Schedule(buf *audio.Buffer) {
	dur := buf.Duration()

	s.mu.Lock()
	now := s.clock.Now()
	start := s.nextStart
	if start.Before(now) {
		start = now
	}
	s.nextStart = start.Add(dur)

	id := s.seq
	s.seq++
	src := &source{}
	s.active[id] = src
	src.start = time.AfterFunc(start.Sub(now), func() {
		if s.sink != nil {
			s.sink.Write(buf)
		}
		s.mu.Lock()
		if cur, ok := s.active[id]; ok && cur == src {
			src.done = time.AfterFunc(dur, func() { s.finish(id, src) })
		}
		s.mu.Unlock()
	})
	s.mu.Unlock()
}

func (s *Scheduler) finish(id uint64, src *source) {
	s.mu.Lock()
	if cur, ok := s.active[id]; !ok || cur != src {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	quiet := len(s.active) == 0
	fn := s.onQuiet
	s.mu.Unlock()
	if quiet && fn != nil {
		fn()
	}
}

// FlushAll stops every queued and playing source immediately and resets the
// next-start clock to now, so audio scheduled after an interruption begins
// without artificial delay.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	for _, src := range s.active {
		if src.start != nil {
			src.start.Stop()
		}
		if src.done != nil {
			src.done.Stop()
		}
	}
	n := len(s.active)
	s.active = make(map[uint64]*source)
	s.nextStart = s.clock.Now()
	fn := s.onFlush
	s.mu.Unlock()
	if n > 0 {
		s.log.Debug().Int("flushed", n).Msg("playback flushed")
		if fn != nil {
			fn()
		}
	}
}

// ActiveCount reports how many sources are queued or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
