package server

import (
	"errors"
	"log"
	"slices"
	"sync"

	"github.com/nvellon/sidedrop/internal/artifact"
	"github.com/nvellon/sidedrop/internal/types"
)

// roomCapacity is the hard membership bound: a room relays between exactly
// two participants and a third join is rejected, never queued.
const roomCapacity = 2

type exitReq struct {
	// force exits even with members present, used at process shutdown
	force bool
	done  chan bool
}

// Room serializes all state changes for one room on a single loop
// goroutine and fans every broadcast event out to the active transports.
type Room struct {
	name    string
	rs      *RelayServer
	members []*Client

	joinChan      chan *Client
	leaveChan     chan *Client
	clientMsgChan chan *ClientMessage
	publishChan   chan *ServerMessage
	exit          chan exitReq

	seq    uint64
	buffer *EventBuffer

	streams     map[*StreamSub]struct{}
	streamsLock sync.Mutex
	closed      bool

	log *log.Logger
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.name)

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Chat != nil:
				r.handleChat(msg)
			case msg.Recall != nil:
				r.handleRecall(msg)
			}
		case msg := <-r.publishChan:
			r.dispatch(msg)
		case e := <-r.exit:
			if r.handleExit(e) {
				return
			}
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	if len(r.members) >= roomCapacity {
		r.log.Printf("room %q full, rejecting %q", r.name, c.sessionId)
		c.queueMessage(ErrRoomFull(0))
		c.reject(CloseRoomFull, "room full")
		return
	}

	r.members = append(r.members, c)
	c.setRoom(r)

	// welcome goes to the new member only, then presence to everyone,
	// the new member included
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Welcome: &Welcome{
			SessionId: c.sessionId,
			Room:      r.name,
			Members:   r.memberList(),
		},
	})

	r.dispatch(&ServerMessage{
		Presence: &Presence{Room: r.name, Members: r.memberList()},
	})
}

func (r *Room) handleLeave(c *Client) {
	idx := slices.Index(r.members, c)
	if idx < 0 {
		r.log.Printf("client %q not found in room %q", c.sessionId, r.name)
		return
	}

	r.members = slices.Delete(r.members, idx, idx+1)
	c.setRoom(nil)
	r.log.Printf("removed client %q from room %q", c.sessionId, r.name)

	if len(r.members) == 0 {
		r.rs.requestUnload(r.name)
		return
	}

	r.dispatch(&ServerMessage{
		Presence: &Presence{Room: r.name, Members: r.memberList()},
	})
}

func (r *Room) handleChat(msg *ClientMessage) {
	c := msg.client
	snap, err := r.rs.artifacts.CreateChat(r.name, artifact.Requester{
		Identity: c.identity,
		Session:  c.sessionId,
	}, msg.Chat.Text)
	if err != nil {
		r.log.Println("create chat:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))

	r.dispatch(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id},
		Chat: &ChatEvent{
			ArtifactId: snap.Id,
			From:       c.identity,
			SessionId:  c.sessionId,
			Text:       snap.Text,
		},
	})
}

func (r *Room) handleRecall(msg *ClientMessage) {
	c := msg.client
	err := r.rs.artifacts.Recall(msg.Recall.ArtifactId, artifact.Requester{
		Identity: c.identity,
		Session:  c.sessionId,
	})
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		c.queueMessage(ErrArtifactNotFound(msg.Id))
	case errors.Is(err, artifact.ErrForbidden):
		c.queueMessage(ErrNotOwner(msg.Id))
	case err != nil:
		r.log.Println("recall:", err)
		c.queueMessage(ErrInternalError(msg.Id))
	default:
		// the recalled/receipt events arrive through the publish channel
		c.queueMessage(NoErrOK(msg.Id, nil))
	}
}

func (r *Room) handleExit(e exitReq) bool {
	if !e.force && len(r.members) > 0 {
		// a join slipped in after the unload request; keep running
		if e.done != nil {
			e.done <- false
		}
		return false
	}

	r.log.Printf("room %q is exiting", r.name)
	r.closeStreams()

	if e.done != nil {
		e.done <- true
	}
	return true
}

// dispatch assigns the room sequence number and delivers the event to every
// active transport: socket members, stream subscribers and the poll buffer.
// A targeted event reaches only matching socket members and never enters
// the broadcast-only transports. A slow sink never blocks the others.
func (r *Room) dispatch(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	if msg.TargetIdentity != "" {
		for _, c := range r.members {
			if c.identity == msg.TargetIdentity {
				c.queueMessage(msg)
			}
		}
		return
	}

	r.seq++
	msg.Seq = r.seq
	if msg.Recalled != nil {
		r.buffer.Redact(msg.Recalled.ArtifactId)
	}
	r.buffer.Append(msg)

	for _, c := range r.members {
		if msg.SkipSession != "" && c.sessionId == msg.SkipSession {
			continue
		}
		c.queueMessage(msg)
	}

	r.broadcastStreams(msg)
}

func (r *Room) broadcastStreams(msg *ServerMessage) {
	r.streamsLock.Lock()
	defer r.streamsLock.Unlock()

	for sub := range r.streams {
		select {
		case sub.ch <- msg:
		default:
			r.log.Printf("slow stream subscriber on room %q, dropping event", r.name)
		}
	}
}

// Subscribe attaches a push-stream subscription to the room.
func (r *Room) Subscribe() (*StreamSub, error) {
	r.streamsLock.Lock()
	defer r.streamsLock.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}

	sub := newStreamSub()
	r.streams[sub] = struct{}{}
	return sub, nil
}

func (r *Room) Unsubscribe(sub *StreamSub) {
	r.streamsLock.Lock()
	defer r.streamsLock.Unlock()

	delete(r.streams, sub)
	sub.close()
}

func (r *Room) closeStreams() {
	r.streamsLock.Lock()
	defer r.streamsLock.Unlock()

	r.closed = true
	for sub := range r.streams {
		sub.close()
		delete(r.streams, sub)
	}
}

func (r *Room) memberList() []types.Member {
	members := make([]types.Member, len(r.members))
	for i, c := range r.members {
		members[i] = c.member()
	}
	return members
}
