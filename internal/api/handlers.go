package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/nvellon/sidedrop/internal/artifact"
	"github.com/nvellon/sidedrop/internal/server"
	"github.com/nvellon/sidedrop/internal/types"
)

const maxUploadBytes = 512 << 20

type UnlockRequest struct {
	Id       string `json:"id"`
	Password string `json:"password"`
}

type UnlockResponse struct {
	Unlocked bool   `json:"unlocked"`
	Url      string `json:"url"`
}

type UploadResponse struct {
	Artifacts []types.FileInfo `json:"artifacts"`
}

type PollResponse struct {
	Events []*server.ServerMessage `json:"events"`
	Cursor uint64                  `json:"cursor"`
}

func (s *SidedropApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// artifactError maps registry errors to the boundary taxonomy.
func artifactError(err error) *ApiError {
	switch {
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, artifact.ErrRecalled):
		return NewNotFoundError()
	case errors.Is(err, artifact.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, artifact.ErrNotFile), errors.Is(err, artifact.ErrNotProtected):
		return NewBadRequestError()
	default:
		return NewInternalServerError(err)
	}
}

func (s *SidedropApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomName := server.NormalizeRoom(r.URL.Query().Get("room"))

	sid, err := s.generateSessionId()
	if err != nil {
		s.log.Print("generateSessionId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(sid, clientIP(r), roomName, conn, s.rs, s.log)

	s.rs.Join(client)
	go client.Write()
	go client.Read()
}

func (s *SidedropApp) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room := server.NormalizeRoom(r.FormValue("room"))
	// unparseable ttl/view-only values fall back to safe defaults rather
	// than rejecting the upload
	ttl, _ := strconv.Atoi(r.FormValue("ttl_seconds"))
	viewOnly, _ := strconv.ParseBool(r.FormValue("view_only"))
	password := r.FormValue("password")

	owner := artifact.Requester{
		Identity: clientIP(r),
		Session:  r.FormValue("session_id"),
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acks := make([]types.FileInfo, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		snap, err := s.artifacts.CreateFile(room, owner, artifact.FileParams{
			Name:       fh.Filename,
			MimeType:   fh.Header.Get("Content-Type"),
			TTLSeconds: ttl,
			Password:   password,
			ViewOnly:   viewOnly,
		}, f)
		f.Close()
		if err != nil {
			s.log.Println("create file:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.rs.AnnounceFile(snap)

		ack := types.FileInfo{
			Id:        snap.Id,
			Name:      snap.Name,
			Size:      snap.Size,
			MimeType:  snap.MimeType,
			Protected: snap.Protected,
			ViewOnly:  snap.ViewOnly,
		}
		if snap.HasPublicPath {
			ack.Url = artifact.PublicRefPath(snap.StoredName)
		}
		if !snap.ExpiresAt.IsZero() {
			t := snap.ExpiresAt
			ack.ExpiresAt = &t
		}
		acks = append(acks, ack)
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{Artifacts: acks})
}

func (s *SidedropApp) unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	snap, err := s.artifacts.Unlock(req.Id, req.Password, clientIP(r))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, artifact.ErrUnlockFailed) {
			errResp = NewGoneError("wrong password, the file has been recalled")
		} else {
			errResp = artifactError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, UnlockResponse{
		Unlocked: true,
		Url:      artifact.PeerRefPath(snap.Id),
	})
}

func (s *SidedropApp) resolve(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ref, err := s.artifacts.Resolve(id, clientIP(r))
	if err != nil {
		errResp := artifactError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ref)
}

func (s *SidedropApp) ownerDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	path, snap, err := s.artifacts.OwnerFile(id, clientIP(r))
	if err != nil {
		errResp := artifactError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.serveArtifact(w, r, path, snap)
}

func (s *SidedropApp) peerDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	path, snap, err := s.artifacts.PeerFile(id, clientIP(r))
	if err != nil {
		errResp := artifactError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.serveArtifact(w, r, path, snap)
}

func (s *SidedropApp) serveArtifact(w http.ResponseWriter, r *http.Request, path string, snap artifact.Snapshot) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snap.Name))
	if snap.MimeType != "" {
		w.Header().Set("Content-Type", snap.MimeType)
	}
	http.ServeFile(w, r, path)
}

func (s *SidedropApp) publicFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.ServeFile(w, r, filepath.Join(s.publicDir, name))
}

func (s *SidedropApp) poll(w http.ResponseWriter, r *http.Request) {
	room := server.NormalizeRoom(r.URL.Query().Get("room"))

	var cursor uint64
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		var err error
		cursor, err = strconv.ParseUint(cursorStr, 10, 64)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	events, next := s.rs.Poll(room, cursor)
	if events == nil {
		events = []*server.ServerMessage{}
	}

	s.writeJson(w, http.StatusOK, PollResponse{Events: events, Cursor: next})
}

func (s *SidedropApp) stream(w http.ResponseWriter, r *http.Request) {
	room := server.NormalizeRoom(r.URL.Query().Get("room"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		errResp := NewInternalServerError(errors.New("streaming unsupported"))
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sub, err := s.rs.Stream(room)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer s.rs.StopStream(room, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg := <-sub.Events():
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Println("marshal stream event:", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-sub.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}
