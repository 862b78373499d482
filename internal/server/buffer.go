package server

import (
	"sync"
)

const defaultBufferCapacity = 1000

// EventBuffer is a bounded, append-only window over a room's broadcast
// events, read by the pull-based poll transport. Oldest entries fall off
// past capacity. Appends come from the room loop; reads from HTTP handlers.
type EventBuffer struct {
	mu     sync.Mutex
	cap    int
	events []*ServerMessage
}

func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &EventBuffer{cap: capacity}
}

func (b *EventBuffer) Append(msg *ServerMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, msg)
	if len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
}

// After returns the ordered events with a sequence number greater than
// cursor, plus the next cursor value. An up-to-date cursor is echoed back.
func (b *EventBuffer) After(cursor uint64) ([]*ServerMessage, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := cursor
	var out []*ServerMessage
	for _, e := range b.events {
		if e.Seq > cursor {
			out = append(out, e)
			next = e.Seq
		}
	}
	return out, next
}

// Redact replaces the buffered payloads of a recalled artifact with scrubbed
// copies. Replay may still show that the artifact existed, never its content
// or a reachable reference. Entries are replaced, not mutated, because the
// originals may still sit in socket send queues.
func (b *EventBuffer) Redact(artifactId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.events {
		switch {
		case e.Chat != nil && e.Chat.ArtifactId == artifactId:
			scrubbed := *e
			chat := *e.Chat
			chat.Text = ""
			scrubbed.Chat = &chat
			b.events[i] = &scrubbed
		case e.File != nil && e.File.ArtifactId == artifactId:
			scrubbed := *e
			file := *e.File
			file.Url = ""
			scrubbed.File = &file
			b.events[i] = &scrubbed
		}
	}
}

func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
