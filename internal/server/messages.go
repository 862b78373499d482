package server

import (
	"net/http"
	"time"

	"github.com/nvellon/sidedrop/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the closed set of frames a client may send over the
// socket. A frame that parses into none of the variants is dropped.
type ClientMessage struct {
	BaseMessage
	Chat   *ChatRequest   `json:"chat,omitempty"`
	Recall *RecallRequest `json:"recall,omitempty"`

	client *Client
}

type ChatRequest struct {
	Text string `json:"text"`
}

type RecallRequest struct {
	ArtifactId string `json:"artifact_id"`
}

// ServerMessage is the canonical event value consumed by every transport
// sink. SkipSession and TargetIdentity are delivery directives for the
// dispatcher and never serialized.
type ServerMessage struct {
	BaseMessage
	Response      *Response      `json:"response,omitempty"`
	Welcome       *Welcome       `json:"welcome,omitempty"`
	Presence      *Presence      `json:"presence,omitempty"`
	Chat          *ChatEvent     `json:"chat,omitempty"`
	File          *FileEvent     `json:"file,omitempty"`
	Recalled      *RecalledEvent `json:"recalled,omitempty"`
	RecallReceipt *RecallReceipt `json:"recall_receipt,omitempty"`
	Unlocked      *UnlockedEvent `json:"unlocked,omitempty"`

	SkipSession    string `json:"-"`
	TargetIdentity string `json:"-"`
}

type Welcome struct {
	SessionId string         `json:"session_id"`
	Room      string         `json:"room"`
	Members   []types.Member `json:"members"`
}

type Presence struct {
	Room    string         `json:"room"`
	Members []types.Member `json:"members"`
}

type ChatEvent struct {
	ArtifactId string `json:"artifact_id"`
	From       string `json:"from"`
	SessionId  string `json:"session_id"`
	Text       string `json:"text"`
}

type FileEvent struct {
	ArtifactId string     `json:"artifact_id"`
	From       string     `json:"from"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	MimeType   string     `json:"mime_type"`
	Protected  bool       `json:"protected"`
	ViewOnly   bool       `json:"view_only"`
	Url        string     `json:"url,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// RecalledEvent tells non-owner members the artifact is gone for them.
type RecalledEvent struct {
	ArtifactId string `json:"artifact_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// RecallReceipt confirms the recall to the owner; for files it carries the
// owner-only retrieval reference.
type RecallReceipt struct {
	ArtifactId string `json:"artifact_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	OwnerUrl   string `json:"owner_url,omitempty"`
}

type UnlockedEvent struct {
	ArtifactId string `json:"artifact_id"`
	Url        string `json:"url"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrArtifactNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "artifact not found",
		},
	}
}

func ErrNotOwner(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "only the owner can recall",
		},
	}
}

func ErrRoomFull(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        "room full",
		},
	}
}

func ErrNotJoined(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        "not joined to a room",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
