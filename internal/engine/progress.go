package engine

import (
	"sync"
	"sync/atomic"
)

// ProgressSink observes progress events. Implementations must be safe for
// concurrent use and must not block for long; events are sent from the
// worker goroutines.
type ProgressSink interface {
	Progress(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(e ProgressEvent) {
	f(e)
}

// ChannelSink delivers events on a bounded channel. When the channel is
// full the event is dropped and counted rather than stalling a worker.
type ChannelSink struct {
	ch      chan ProgressEvent
	dropped atomic.Int64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewChannelSink returns a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan ProgressEvent, size)}
}

// Events returns the receive side of the channel. It is closed by Close.
func (s *ChannelSink) Events() <-chan ProgressEvent {
	return s.ch
}

// Progress implements ProgressSink.
func (s *ChannelSink) Progress(e ProgressEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes the channel. Later events are ignored.
func (s *ChannelSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// MultiSink fans events out to several sinks.
type MultiSink []ProgressSink

// Progress implements ProgressSink.
func (m MultiSink) Progress(e ProgressEvent) {
	for _, s := range m {
		if s != nil {
			s.Progress(e)
		}
	}
}
