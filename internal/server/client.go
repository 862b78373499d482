package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nvellon/sidedrop/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// CloseRoomFull is the close code sent when a join is rejected because the
// room already has two members.
const CloseRoomFull = 4003

type Client struct {
	conn      *websocket.Conn
	relay     *RelayServer
	log       *log.Logger
	sessionId string
	identity  string
	roomName  string

	room     *Room
	roomLock sync.RWMutex

	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once

	// control frame sent on stop; written before stop is closed, read by
	// the write pump after
	closeCode int
	closeText string
}

func NewClient(sessionId, identity, roomName string, conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Client {
	return &Client{
		conn:      conn,
		relay:     rs,
		log:       l,
		sessionId: sessionId,
		identity:  identity,
		roomName:  roomName,
		send:      make(chan *ServerMessage, 256),
		stop:      make(chan struct{}),
	}
}

func (c *Client) SessionId() string {
	return c.sessionId
}

func (c *Client) member() types.Member {
	return types.Member{SessionId: c.sessionId, Identity: c.identity}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for %q", c.sessionId)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			if c.closeCode != 0 {
				// anything queued before the stop goes out ahead of the
				// close frame
				c.flushSend()
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeText))
			}
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for %q", c.sessionId)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// one bad frame from an unreliable peer must not break the
			// session; drop it
			c.log.Println("dropping unparseable frame:", err)
			continue
		}

		msg.client = c
		msg.Timestamp = Now()

		switch {
		case msg.Chat != nil, msg.Recall != nil:
			r := c.getRoom()
			if r == nil {
				c.queueMessage(ErrNotJoined(msg.Id))
				continue
			}
			select {
			case r.clientMsgChan <- &msg:
			default:
				c.queueMessage(ErrServiceUnavailable(msg.Id))
				c.log.Printf("clientMsgChan full for room %q", r.name)
			}
		default:
			c.log.Println("dropping frame with no known variant")
		}
	}
}

func (c *Client) flushSend() {
	for {
		select {
		case msg := <-c.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}
			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send channel full for %q, dropping message", c.sessionId)
		return false
	}

	return true
}

// reject marks the connection for a distinguishable close and stops it.
// Called by the room loop on a refused admission.
func (c *Client) reject(code int, text string) {
	c.closeCode, c.closeText = code, text
	c.stopClient()
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.relay.deRegisterChan <- c
	if r := c.getRoom(); r != nil {
		r.leaveChan <- c
	}
	c.stopClient()
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
