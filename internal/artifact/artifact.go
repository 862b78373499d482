package artifact

import (
	"errors"
	"net/url"
	"time"
)

type Kind string

const (
	KindChat Kind = "chat"
	KindFile Kind = "file"
)

// RecallReason distinguishes the trigger that moved an artifact to recalled.
type RecallReason string

const (
	RecallManual      RecallReason = "manual"
	RecallExpired     RecallReason = "expired"
	RecallBadPassword RecallReason = "bad_password"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFile      = errors.New("artifact is not a file")
	ErrNotProtected = errors.New("artifact is not password protected")
	ErrRecalled     = errors.New("artifact has been recalled")
	ErrUnlockFailed = errors.New("unlock failed, artifact recalled")
)

// Requester identifies who is asking: the network-derived identity and the
// session id issued at connect time. Ownership checks accept either, so a
// reconnect that changes one but not the other keeps recall working.
type Requester struct {
	Identity string
	Session  string
}

// Record is the registry's internal state for one artifact. It is never
// handed out; callers get a Snapshot.
type Record struct {
	Id            string
	Room          string
	Kind          Kind
	OwnerIdentity string
	OwnerSession  string
	CreatedAt     time.Time
	Recalled      bool

	// chat
	Text string

	// file
	Name           string
	StoredName     string
	Size           int64
	MimeType       string
	PublicPath     string
	RestrictedPath string
	Protected      bool
	ViewOnly       bool
	ViewerIdentity string
	UnlockedFor    string
	ExpiresAt      time.Time

	salt         []byte
	passwordHash []byte
	timer        *time.Timer
}

func (rec *Record) ownedBy(req Requester) bool {
	if req.Session != "" && req.Session == rec.OwnerSession {
		return true
	}
	return req.Identity != "" && req.Identity == rec.OwnerIdentity
}

// Snapshot is an immutable copy of a record, safe to use outside the
// registry lock. Secrets (salt, hash, storage paths) are not included.
type Snapshot struct {
	Id            string
	Room          string
	Kind          Kind
	OwnerIdentity string
	OwnerSession  string
	CreatedAt     time.Time
	Recalled      bool
	Text          string
	Name          string
	StoredName    string
	Size          int64
	MimeType      string
	Protected     bool
	ViewOnly      bool
	ExpiresAt     time.Time
	HasPublicPath bool
}

func (rec *Record) snapshot() Snapshot {
	return Snapshot{
		Id:            rec.Id,
		Room:          rec.Room,
		Kind:          rec.Kind,
		OwnerIdentity: rec.OwnerIdentity,
		OwnerSession:  rec.OwnerSession,
		CreatedAt:     rec.CreatedAt,
		Recalled:      rec.Recalled,
		Text:          rec.Text,
		Name:          rec.Name,
		StoredName:    rec.StoredName,
		Size:          rec.Size,
		MimeType:      rec.MimeType,
		Protected:     rec.Protected,
		ViewOnly:      rec.ViewOnly,
		ExpiresAt:     rec.ExpiresAt,
		HasPublicPath: rec.PublicPath != "",
	}
}

// OwnerRefPath is the owner-gated retrieval reference for a file artifact.
func OwnerRefPath(id string) string {
	return "/api/artifacts/owner?id=" + url.QueryEscape(id)
}

// PeerRefPath is the retrieval reference for the peer currently granted
// restricted access.
func PeerRefPath(id string) string {
	return "/api/artifacts/peer?id=" + url.QueryEscape(id)
}

// PublicRefPath is the reference for a publicly servable file.
func PublicRefPath(storedName string) string {
	return "/files/" + storedName
}
