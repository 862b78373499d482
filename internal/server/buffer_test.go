package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqMsg(seq uint64) *ServerMessage {
	return &ServerMessage{BaseMessage: BaseMessage{Seq: seq}}
}

func TestEventBuffer(t *testing.T) {
	t.Run("returns events after the cursor in order", func(t *testing.T) {
		b := NewEventBuffer(10)
		for i := uint64(1); i <= 5; i++ {
			b.Append(seqMsg(i))
		}

		events, next := b.After(2)
		assert.Len(t, events, 3, "expected three events past the cursor")
		assert.Equal(t, uint64(3), events[0].Seq, "expected events ordered by sequence")
		assert.Equal(t, uint64(5), events[2].Seq, "expected latest event last")
		assert.Equal(t, uint64(5), next, "expected next cursor at the latest sequence")
	})

	t.Run("echoes an up-to-date cursor", func(t *testing.T) {
		b := NewEventBuffer(10)
		b.Append(seqMsg(1))

		events, next := b.After(1)
		assert.Empty(t, events, "expected no events past an up-to-date cursor")
		assert.Equal(t, uint64(1), next, "expected cursor echoed back")

		events, next = b.After(99)
		assert.Empty(t, events, "expected no events past a future cursor")
		assert.Equal(t, uint64(99), next, "expected future cursor echoed back")
	})

	t.Run("empty buffer echoes the cursor", func(t *testing.T) {
		b := NewEventBuffer(10)

		events, next := b.After(7)
		assert.Empty(t, events, "expected no events from an empty buffer")
		assert.Equal(t, uint64(7), next, "expected cursor echoed back")
	})

	t.Run("drops the oldest past capacity", func(t *testing.T) {
		b := NewEventBuffer(3)
		for i := uint64(1); i <= 5; i++ {
			b.Append(seqMsg(i))
		}

		assert.Equal(t, 3, b.Len(), "expected buffer trimmed to capacity")

		events, next := b.After(0)
		assert.Len(t, events, 3, "expected only the retained window")
		assert.Equal(t, uint64(3), events[0].Seq, "expected oldest entries dropped")
		assert.Equal(t, uint64(5), next, "expected next cursor at the latest sequence")
	})

	t.Run("redact scrubs content but keeps order and sequence", func(t *testing.T) {
		b := NewEventBuffer(10)
		chat := &ServerMessage{
			BaseMessage: BaseMessage{Seq: 1},
			Chat:        &ChatEvent{ArtifactId: "a-1", From: "10.0.0.1", Text: "secret"},
		}
		file := &ServerMessage{
			BaseMessage: BaseMessage{Seq: 2},
			File:        &FileEvent{ArtifactId: "a-2", Name: "pub.txt", Url: "/files/u-1.txt"},
		}
		b.Append(chat)
		b.Append(file)

		b.Redact("a-1")

		events, next := b.After(0)
		require.Len(t, events, 2, "expected both events retained")
		assert.Equal(t, uint64(2), next, "expected cursor unchanged")

		assert.Equal(t, uint64(1), events[0].Seq, "expected sequence preserved")
		assert.Empty(t, events[0].Chat.Text, "expected recalled text scrubbed")
		assert.Equal(t, "10.0.0.1", events[0].Chat.From, "expected sender kept")
		assert.Equal(t, "secret", chat.Chat.Text, "expected the original message untouched")

		assert.Equal(t, "/files/u-1.txt", events[1].File.Url, "expected other artifacts untouched")

		b.Redact("a-2")
		events, _ = b.After(0)
		assert.Empty(t, events[1].File.Url, "expected recalled file url scrubbed")
		assert.Equal(t, "pub.txt", events[1].File.Name, "expected file metadata kept")
	})

	t.Run("zero capacity falls back to the default", func(t *testing.T) {
		b := NewEventBuffer(0)
		assert.Equal(t, defaultBufferCapacity, b.cap, "expected default capacity")
	})
}
