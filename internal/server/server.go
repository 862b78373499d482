package server

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/nvellon/sidedrop/internal/artifact"
	"github.com/nvellon/sidedrop/internal/stats"
)

// DefaultRoom is used when the request carries no room name.
const DefaultRoom = "lobby"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomClosed   = errors.New("room closed")
)

// RelayServer owns the room registry and routes freshly admitted
// connections, room teardown and artifact events between the rooms and the
// transports. It is the artifact registry's Notifier.
type RelayServer struct {
	log       *log.Logger
	artifacts *artifact.Registry
	stats     stats.StatsProvider

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	rooms     map[string]*Room
	roomsLock sync.RWMutex

	joinChan       chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	stop           chan struct{}
	done           chan struct{}
}

func NewRelayServer(logger *log.Logger, reg *artifact.Registry, sp stats.StatsProvider) (*RelayServer, error) {
	sp.RegisterMetric("NumActiveRooms")
	sp.RegisterMetric("NumConnectedClients")

	rs := &RelayServer{
		log:            logger,
		artifacts:      reg,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		joinChan:       make(chan *Client, 64),
		deRegisterChan: make(chan *Client, 64),
		unloadRoomChan: make(chan string, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	reg.SetNotifier(rs)

	return rs, nil
}

func (rs *RelayServer) Run() {
	for {
		select {
		case c := <-rs.joinChan:
			room := rs.getRoom(c.roomName)
			if room == nil {
				room = rs.createRoom(c.roomName)
				go room.start()
			}
			select {
			case room.joinChan <- c:
			default:
				rs.log.Printf("join channel full on room %q", room.name)
				c.queueMessage(ErrServiceUnavailable(0))
				c.stopClient()
			}
		case c := <-rs.deRegisterChan:
			rs.removeClient(c)
		case name := <-rs.unloadRoomChan:
			rs.unloadRoom(name)
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			rs.shutdownRooms()
			close(rs.done)
			return
		}
	}
}

// Join hands a freshly upgraded connection to the admission path.
func (rs *RelayServer) Join(c *Client) {
	rs.addClient(c)

	select {
	case rs.joinChan <- c:
	default:
		rs.log.Println("join channel full")
		c.queueMessage(ErrServiceUnavailable(0))
		c.stopClient()
	}
}

func (rs *RelayServer) addClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	rs.clients[c] = struct{}{}
	rs.stats.Incr("NumConnectedClients")
}

func (rs *RelayServer) removeClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; !ok {
		return
	}
	delete(rs.clients, c)
	rs.stats.Decr("NumConnectedClients")
}

func (rs *RelayServer) createRoom(name string) *Room {
	room := &Room{
		name:          name,
		rs:            rs,
		joinChan:      make(chan *Client, 16),
		leaveChan:     make(chan *Client, 16),
		clientMsgChan: make(chan *ClientMessage, 256),
		publishChan:   make(chan *ServerMessage, 256),
		exit:          make(chan exitReq),
		buffer:        NewEventBuffer(defaultBufferCapacity),
		streams:       make(map[*StreamSub]struct{}),
		log:           rs.log,
	}

	rs.roomsLock.Lock()
	rs.rooms[name] = room
	rs.roomsLock.Unlock()

	rs.stats.Incr("NumActiveRooms")
	return room
}

func (rs *RelayServer) getRoom(name string) *Room {
	rs.roomsLock.RLock()
	defer rs.roomsLock.RUnlock()
	return rs.rooms[name]
}

// requestUnload is called from a room loop when its last member leaves.
func (rs *RelayServer) requestUnload(name string) {
	select {
	case rs.unloadRoomChan <- name:
	default:
		rs.log.Printf("unload channel full for room %q", name)
	}
}

func (rs *RelayServer) unloadRoom(name string) {
	room := rs.getRoom(name)
	if room == nil {
		return
	}

	done := make(chan bool)
	room.exit <- exitReq{done: done}
	if !<-done {
		// the room picked up a member between the unload request and the
		// exit; leave it alone
		return
	}

	rs.roomsLock.Lock()
	delete(rs.rooms, name)
	rs.roomsLock.Unlock()

	rs.stats.Decr("NumActiveRooms")
	rs.log.Printf("removed room %q", name)
}

func (rs *RelayServer) shutdownRooms() {
	rs.roomsLock.Lock()
	rooms := make([]*Room, 0, len(rs.rooms))
	for _, room := range rs.rooms {
		rooms = append(rooms, room)
	}
	rs.rooms = make(map[string]*Room)
	rs.roomsLock.Unlock()

	for _, room := range rooms {
		done := make(chan bool)
		room.exit <- exitReq{force: true, done: done}
		<-done
		rs.stats.Decr("NumActiveRooms")
	}
}

func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.log.Println("received shutdown signal")

	rs.clientsLock.Lock()
	for c := range rs.clients {
		c.stopClient()
	}
	rs.clientsLock.Unlock()

	close(rs.stop)

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues an event for a room's dispatcher. Events for rooms that no
// longer exist are dropped: the artifact transition already happened and
// there is no one left to tell.
func (rs *RelayServer) Publish(roomName string, msg *ServerMessage) {
	room := rs.getRoom(roomName)
	if room == nil {
		return
	}

	select {
	case room.publishChan <- msg:
	default:
		rs.log.Printf("publish channel full for room %q, dropping event", roomName)
	}
}

// ArtifactRecalled emits the two recall events: the peer-facing notice,
// broadcast with the owner's socket skipped, and the owner receipt, targeted
// at the owner only and carrying the retrieval reference for files.
func (rs *RelayServer) ArtifactRecalled(a artifact.Snapshot, reason artifact.RecallReason) {
	rs.Publish(a.Room, &ServerMessage{
		Recalled: &RecalledEvent{
			ArtifactId: a.Id,
			Kind:       string(a.Kind),
			Reason:     string(reason),
		},
		SkipSession: a.OwnerSession,
	})

	receipt := &RecallReceipt{
		ArtifactId: a.Id,
		Kind:       string(a.Kind),
		Reason:     string(reason),
	}
	if a.Kind == artifact.KindFile {
		receipt.OwnerUrl = artifact.OwnerRefPath(a.Id)
	}
	rs.Publish(a.Room, &ServerMessage{
		RecallReceipt:  receipt,
		TargetIdentity: a.OwnerIdentity,
	})
}

// ArtifactUnlocked broadcasts the restricted reference. Only the unlocked
// identity will pass the access check on the peer endpoint, so broadcast is
// safe.
func (rs *RelayServer) ArtifactUnlocked(a artifact.Snapshot, identity string) {
	rs.Publish(a.Room, &ServerMessage{
		Unlocked: &UnlockedEvent{
			ArtifactId: a.Id,
			Url:        artifact.PeerRefPath(a.Id),
		},
	})
}

// AnnounceFile broadcasts availability of a freshly uploaded file artifact.
func (rs *RelayServer) AnnounceFile(a artifact.Snapshot) {
	ev := &FileEvent{
		ArtifactId: a.Id,
		From:       a.OwnerIdentity,
		Name:       a.Name,
		Size:       a.Size,
		MimeType:   a.MimeType,
		Protected:  a.Protected,
		ViewOnly:   a.ViewOnly,
	}
	if a.HasPublicPath {
		ev.Url = artifact.PublicRefPath(a.StoredName)
	}
	if !a.ExpiresAt.IsZero() {
		t := a.ExpiresAt
		ev.ExpiresAt = &t
	}

	rs.Publish(a.Room, &ServerMessage{File: ev})
}

// Poll returns the room's broadcast events after the cursor. A missing room
// yields an empty page with the cursor echoed back.
func (rs *RelayServer) Poll(roomName string, cursor uint64) ([]*ServerMessage, uint64) {
	room := rs.getRoom(roomName)
	if room == nil {
		return nil, cursor
	}
	return room.buffer.After(cursor)
}

// Stream subscribes to a room's push stream.
func (rs *RelayServer) Stream(roomName string) (*StreamSub, error) {
	room := rs.getRoom(roomName)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room.Subscribe()
}

// StopStream detaches a push-stream subscription.
func (rs *RelayServer) StopStream(roomName string, sub *StreamSub) {
	if room := rs.getRoom(roomName); room != nil {
		room.Unsubscribe(sub)
		return
	}
	sub.close()
}

// NormalizeRoom maps an empty or blank room parameter to the default room.
func NormalizeRoom(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultRoom
	}
	return name
}
