package artifact

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvellon/sidedrop/internal/stats"
	"github.com/teris-io/shortid"
)

const (
	maxChatRunes = 4000
	maxTTL       = 31 * 24 * time.Hour
)

// Notifier receives the events produced by artifact state transitions.
// Implemented by the relay server, which fans them out per room.
type Notifier interface {
	ArtifactRecalled(a Snapshot, reason RecallReason)
	ArtifactUnlocked(a Snapshot, identity string)
}

// Registry exclusively owns all artifact records. One mutex serializes every
// mutation; TTL timers re-acquire it before touching state, so a timer racing
// a manual recall resolves to first caller wins, second is a no-op.
type Registry struct {
	mu        sync.Mutex
	artifacts map[string]*Record
	store     *Store
	notifier  Notifier
	stats     stats.StatsProvider
	log       *log.Logger

	generateId func() (string, error)
}

func NewRegistry(store *Store, sp stats.StatsProvider, logger *log.Logger) *Registry {
	sp.RegisterMetric("NumArtifactsCreated")
	sp.RegisterMetric("NumArtifactsRecalled")
	sp.RegisterMetric("NumFailedUnlocks")

	return &Registry{
		artifacts:  make(map[string]*Record),
		store:      store,
		stats:      sp,
		log:        logger,
		generateId: newArtifactId,
	}
}

// SetNotifier wires the fan-out sink. Must be called before traffic starts.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

func (r *Registry) Store() *Store {
	return r.store
}

func newArtifactId() (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sid), nil
}

// CreateChat registers a chat message artifact. Text beyond the length bound
// is truncated, not rejected.
func (r *Registry) CreateChat(room string, owner Requester, text string) (Snapshot, error) {
	if runes := []rune(text); len(runes) > maxChatRunes {
		text = string(runes[:maxChatRunes])
	}

	id, err := r.generateId()
	if err != nil {
		return Snapshot{}, err
	}

	rec := &Record{
		Id:            id,
		Room:          room,
		Kind:          KindChat,
		OwnerIdentity: owner.Identity,
		OwnerSession:  owner.Session,
		CreatedAt:     time.Now().UTC(),
		Text:          text,
	}

	r.mu.Lock()
	r.artifacts[id] = rec
	snap := rec.snapshot()
	r.mu.Unlock()

	r.stats.Incr("NumArtifactsCreated")
	return snap, nil
}

type FileParams struct {
	Name       string
	MimeType   string
	TTLSeconds int
	Password   string
	ViewOnly   bool
}

// CreateFile stores the uploaded bytes and registers the artifact. A
// non-empty password makes it protected; protected and view-only files are
// placed in the vault from the start. A positive TTL schedules auto-recall.
func (r *Registry) CreateFile(room string, owner Requester, params FileParams, src io.Reader) (Snapshot, error) {
	id, err := r.generateId()
	if err != nil {
		return Snapshot{}, err
	}

	protected := params.Password != ""
	restricted := protected || params.ViewOnly

	storedName := uuid.NewString() + filepath.Ext(params.Name)
	path, size, err := r.store.Save(storedName, src, restricted)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save file: %w", err)
	}

	rec := &Record{
		Id:            id,
		Room:          room,
		Kind:          KindFile,
		OwnerIdentity: owner.Identity,
		OwnerSession:  owner.Session,
		CreatedAt:     time.Now().UTC(),
		Name:          params.Name,
		StoredName:    storedName,
		Size:          size,
		MimeType:      params.MimeType,
		Protected:     protected,
		ViewOnly:      params.ViewOnly,
	}
	if restricted {
		rec.RestrictedPath = path
	} else {
		rec.PublicPath = path
	}

	if protected {
		salt, err := newSalt()
		if err != nil {
			r.store.Remove(path)
			return Snapshot{}, err
		}
		hash, err := hashPassword(params.Password, salt)
		if err != nil {
			r.store.Remove(path)
			return Snapshot{}, fmt.Errorf("hash password: %w", err)
		}
		rec.salt, rec.passwordHash = salt, hash
	}

	r.mu.Lock()
	if ttl := clampTTL(params.TTLSeconds); ttl > 0 {
		rec.ExpiresAt = rec.CreatedAt.Add(ttl)
		rec.timer = time.AfterFunc(ttl, func() { r.expire(id) })
	}
	r.artifacts[id] = rec
	snap := rec.snapshot()
	r.mu.Unlock()

	r.stats.Incr("NumArtifactsCreated")
	return snap, nil
}

func clampTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	// compare in seconds; converting first can overflow the duration
	if seconds >= int(maxTTL/time.Second) {
		return maxTTL
	}
	return time.Duration(seconds) * time.Second
}

func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.artifacts[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return rec.snapshot(), nil
}

// AuthorizeRecall reports whether the requester may recall the artifact.
func (r *Registry) AuthorizeRecall(id string, requester Requester) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.artifacts[id]
	if !ok {
		return false, ErrNotFound
	}
	return rec.ownedBy(requester), nil
}

// Recall is the owner-initiated transition to recalled. Recalling an
// already-recalled artifact is a no-op that still reports success.
func (r *Registry) Recall(id string, requester Requester) error {
	r.mu.Lock()
	rec, ok := r.artifacts[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !rec.ownedBy(requester) {
		r.mu.Unlock()
		return ErrForbidden
	}

	changed := r.recallLocked(rec, RecallManual)
	snap := rec.snapshot()
	r.mu.Unlock()

	if changed {
		r.notifyRecalled(snap, RecallManual)
	}
	return nil
}

// expire is the TTL trigger. The timer may fire after a manual recall beat
// it to the transition; recallLocked makes that a no-op.
func (r *Registry) expire(id string) {
	r.mu.Lock()
	rec, ok := r.artifacts[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	changed := r.recallLocked(rec, RecallExpired)
	snap := rec.snapshot()
	r.mu.Unlock()

	if changed {
		r.notifyRecalled(snap, RecallExpired)
	}
}

// recallLocked performs the live -> recalled transition. Every trigger path
// funnels through here; the first caller wins. Caller must hold r.mu.
func (r *Registry) recallLocked(rec *Record, reason RecallReason) bool {
	if rec.Recalled {
		return false
	}
	rec.Recalled = true

	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}

	if rec.Kind == KindFile && rec.PublicPath != "" {
		dst, err := r.store.MoveToVault(rec.PublicPath, rec.StoredName)
		if err != nil {
			// the store already deleted the file; worst case it is gone
			// rather than moved, which still leaves nothing public
			rec.PublicPath, rec.RestrictedPath = "", ""
		} else {
			rec.PublicPath, rec.RestrictedPath = "", dst
		}
	}

	rec.UnlockedFor = ""

	r.stats.Incr("NumArtifactsRecalled")
	r.log.Printf("artifact %q recalled (%s)", rec.Id, reason)
	return true
}

func (r *Registry) notifyRecalled(snap Snapshot, reason RecallReason) {
	if r.notifier != nil {
		r.notifier.ArtifactRecalled(snap, reason)
	}
}

// Unlock verifies the supplied password for a protected file. A mismatch
// recalls the artifact immediately: one wrong guess destroys access rather
// than allowing retries.
func (r *Registry) Unlock(id, password, identity string) (Snapshot, error) {
	r.mu.Lock()
	rec, ok := r.artifacts[id]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}

	switch {
	case rec.Recalled:
		r.mu.Unlock()
		return Snapshot{}, ErrRecalled
	case rec.Kind != KindFile:
		r.mu.Unlock()
		return Snapshot{}, ErrNotFile
	case !rec.Protected:
		r.mu.Unlock()
		return Snapshot{}, ErrNotProtected
	case identity == rec.OwnerIdentity:
		// the owner never needs to unlock
		r.mu.Unlock()
		return Snapshot{}, ErrForbidden
	}

	if !verifyPassword(rec.passwordHash, rec.salt, password) {
		changed := r.recallLocked(rec, RecallBadPassword)
		snap := rec.snapshot()
		r.mu.Unlock()

		r.stats.Incr("NumFailedUnlocks")
		if changed {
			r.notifyRecalled(snap, RecallBadPassword)
		}
		return Snapshot{}, ErrUnlockFailed
	}

	rec.UnlockedFor = identity
	snap := rec.snapshot()
	r.mu.Unlock()

	if r.notifier != nil {
		r.notifier.ArtifactUnlocked(snap, identity)
	}
	return snap, nil
}

// Close stops all pending TTL timers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.artifacts {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
	}
}
