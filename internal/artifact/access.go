package artifact

// AccessLevel labels the kind of reference a requester can reach.
type AccessLevel string

const (
	AccessOwner  AccessLevel = "owner"
	AccessPublic AccessLevel = "public"
	AccessPeer   AccessLevel = "peer"
)

// Ref is the best reachable reference for a requester.
type Ref struct {
	Level AccessLevel `json:"access"`
	Url   string      `json:"url"`
}

// Resolve determines what the requester identity can see right now. The
// answer is computed fresh on every call: recall or unlock may change it
// between requests, so it is never cached.
func (r *Registry) Resolve(id, identity string) (Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.artifacts[id]
	if !ok {
		return Ref{}, ErrNotFound
	}
	if rec.Kind != KindFile {
		return Ref{}, ErrNotFile
	}

	// the owner keeps restricted access forever, recall included
	if identity == rec.OwnerIdentity && rec.RestrictedPath != "" {
		return Ref{Level: AccessOwner, Url: OwnerRefPath(rec.Id)}, nil
	}

	if !rec.Protected && !rec.ViewOnly && !rec.Recalled && rec.PublicPath != "" {
		return Ref{Level: AccessPublic, Url: PublicRefPath(rec.StoredName)}, nil
	}

	if rec.ViewOnly && !rec.Protected && !rec.Recalled {
		if rec.ViewerIdentity == "" {
			// first resolver binds as the sole authorized viewer; there is
			// no re-binding or expiry (see DESIGN.md)
			rec.ViewerIdentity = identity
			return Ref{Level: AccessPeer, Url: PeerRefPath(rec.Id)}, nil
		}
		if rec.ViewerIdentity == identity {
			return Ref{Level: AccessPeer, Url: PeerRefPath(rec.Id)}, nil
		}
		return Ref{}, ErrForbidden
	}

	if rec.Protected && !rec.Recalled && rec.UnlockedFor != "" && rec.UnlockedFor == identity {
		return Ref{Level: AccessPeer, Url: PeerRefPath(rec.Id)}, nil
	}

	return Ref{}, ErrForbidden
}

// OwnerFile returns the on-disk path for an owner-gated download.
func (r *Registry) OwnerFile(id, identity string) (string, Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.artifacts[id]
	if !ok {
		return "", Snapshot{}, ErrNotFound
	}
	if rec.Kind != KindFile {
		return "", Snapshot{}, ErrNotFile
	}
	if identity != rec.OwnerIdentity {
		return "", Snapshot{}, ErrForbidden
	}

	path := rec.RestrictedPath
	if path == "" {
		path = rec.PublicPath
	}
	if path == "" {
		// the file was deleted by a failed vault move
		return "", Snapshot{}, ErrNotFound
	}
	return path, rec.snapshot(), nil
}

// PeerFile returns the on-disk path for the peer currently granted
// restricted access: the unlocked identity for a protected file, or the
// bound viewer for a view-only file. Recalled artifacts are gone for peers,
// past grants included.
func (r *Registry) PeerFile(id, identity string) (string, Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.artifacts[id]
	if !ok {
		return "", Snapshot{}, ErrNotFound
	}
	if rec.Kind != KindFile {
		return "", Snapshot{}, ErrNotFile
	}
	if rec.Recalled {
		return "", Snapshot{}, ErrRecalled
	}

	granted := (rec.Protected && rec.UnlockedFor != "" && rec.UnlockedFor == identity) ||
		(rec.ViewOnly && rec.ViewerIdentity != "" && rec.ViewerIdentity == identity)
	if !granted {
		return "", Snapshot{}, ErrForbidden
	}
	if rec.RestrictedPath == "" {
		return "", Snapshot{}, ErrNotFound
	}
	return rec.RestrictedPath, rec.snapshot(), nil
}
