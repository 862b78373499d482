package server

import (
	"sync"
)

const streamSubBuffer = 64

// StreamSub is one push-stream subscription to a room's broadcast events.
// The stream is unidirectional and broadcast-only: it never receives
// identity-targeted events.
type StreamSub struct {
	ch   chan *ServerMessage
	done chan struct{}
	once sync.Once
}

func newStreamSub() *StreamSub {
	return &StreamSub{
		ch:   make(chan *ServerMessage, streamSubBuffer),
		done: make(chan struct{}),
	}
}

// Events is the subscription's event channel.
func (s *StreamSub) Events() <-chan *ServerMessage {
	return s.ch
}

// Done is closed when the room goes away.
func (s *StreamSub) Done() <-chan struct{} {
	return s.done
}

func (s *StreamSub) close() {
	s.once.Do(func() {
		close(s.done)
	})
}
