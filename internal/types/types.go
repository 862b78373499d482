package types

import (
	"time"
)

// Member is one live connection in a room.
type Member struct {
	SessionId string `json:"session_id"`
	Identity  string `json:"identity"`
}

// FileInfo is the wire summary of a file artifact returned to its uploader.
type FileInfo struct {
	Id        string     `json:"id"`
	Name      string     `json:"name"`
	Size      int64      `json:"size"`
	MimeType  string     `json:"mime_type"`
	Protected bool       `json:"protected"`
	ViewOnly  bool       `json:"view_only"`
	Url       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
