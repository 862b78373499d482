package artifact

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("plain file resolves public for everyone", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "pub.txt"}, strings.NewReader("x"))
		require.NoError(t, err, "expected no error creating file")

		ref, err := reg.Resolve(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected public resolve to succeed")
		assert.Equal(t, AccessPublic, ref.Level, "expected public access level")
		assert.Equal(t, PublicRefPath(snap.StoredName), ref.Url, "expected public url")

		ref, err = reg.Resolve(snap.Id, owner.Identity)
		assert.NoError(t, err, "expected owner resolve to succeed")
		assert.Equal(t, AccessPublic, ref.Level, "expected public access level for owner of public file")
	})

	t.Run("owner keeps access after recall, peer loses it", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "pub.txt"}, strings.NewReader("x"))
		require.NoError(t, err, "expected no error creating file")
		require.NoError(t, reg.Recall(snap.Id, owner), "expected recall to succeed")

		ref, err := reg.Resolve(snap.Id, owner.Identity)
		assert.NoError(t, err, "expected owner resolve after recall to succeed")
		assert.Equal(t, AccessOwner, ref.Level, "expected owner access level")
		assert.Equal(t, OwnerRefPath(snap.Id), ref.Url, "expected owner url")

		_, err = reg.Resolve(snap.Id, peer.Identity)
		assert.ErrorIs(t, err, ErrForbidden, "expected peer resolve after recall to fail")
	})

	t.Run("view-only binds the first resolver", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "once.png", ViewOnly: true}, strings.NewReader("x"))
		require.NoError(t, err, "expected no error creating file")

		ref, err := reg.Resolve(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected first resolve to bind the viewer")
		assert.Equal(t, AccessPeer, ref.Level, "expected peer access level")
		assert.Equal(t, PeerRefPath(snap.Id), ref.Url, "expected peer url")

		// the bound viewer may resolve again
		ref, err = reg.Resolve(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected repeat resolve by the bound viewer to succeed")
		assert.Equal(t, AccessPeer, ref.Level, "expected peer access level on repeat")

		// anyone else is shut out for good
		_, err = reg.Resolve(snap.Id, "10.5.5.5")
		assert.ErrorIs(t, err, ErrForbidden, "expected second identity to be denied")
	})

	t.Run("owner resolving a view-only file does not consume the binding", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "once.png", ViewOnly: true}, strings.NewReader("x"))
		require.NoError(t, err, "expected no error creating file")

		ref, err := reg.Resolve(snap.Id, owner.Identity)
		assert.NoError(t, err, "expected owner resolve to succeed")
		assert.Equal(t, AccessOwner, ref.Level, "expected owner access level")

		ref, err = reg.Resolve(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected peer to still acquire the viewer binding")
		assert.Equal(t, AccessPeer, ref.Level, "expected peer access level")
	})

	t.Run("protected file resolves only for the unlocked identity", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "s.txt", Password: "pw"}, strings.NewReader("x"))
		require.NoError(t, err, "expected no error creating file")

		_, err = reg.Resolve(snap.Id, peer.Identity)
		assert.ErrorIs(t, err, ErrForbidden, "expected locked file to be unreachable")

		_, err = reg.Unlock(snap.Id, "pw", peer.Identity)
		require.NoError(t, err, "expected unlock to succeed")

		ref, err := reg.Resolve(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected resolve after unlock to succeed")
		assert.Equal(t, AccessPeer, ref.Level, "expected peer access level")

		_, err = reg.Resolve(snap.Id, "10.5.5.5")
		assert.ErrorIs(t, err, ErrForbidden, "expected other identities to stay shut out")
	})

	t.Run("chat artifacts have no reference", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateChat("alpha", owner, "hi")
		require.NoError(t, err, "expected no error creating chat")

		_, err = reg.Resolve(snap.Id, owner.Identity)
		assert.ErrorIs(t, err, ErrNotFile, "expected not-a-file error")
	})

	t.Run("unknown artifact", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Resolve("missing", peer.Identity)
		assert.ErrorIs(t, err, ErrNotFound, "expected not found")
	})
}

func TestOwnerFile(t *testing.T) {
	reg, _ := newTestRegistry(t)

	snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "pub.txt"}, strings.NewReader("data"))
	require.NoError(t, err, "expected no error creating file")

	t.Run("owner gets the live path", func(t *testing.T) {
		path, got, err := reg.OwnerFile(snap.Id, owner.Identity)
		assert.NoError(t, err, "expected owner download to succeed")
		assert.Equal(t, snap.Id, got.Id, "expected snapshot for the artifact")
		assert.FileExists(t, path, "expected path to exist on disk")
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		_, _, err := reg.OwnerFile(snap.Id, peer.Identity)
		assert.ErrorIs(t, err, ErrForbidden, "expected forbidden for non-owner")
	})

	t.Run("owner still downloads after recall", func(t *testing.T) {
		require.NoError(t, reg.Recall(snap.Id, owner), "expected recall to succeed")

		path, _, err := reg.OwnerFile(snap.Id, owner.Identity)
		assert.NoError(t, err, "expected owner download after recall to succeed")
		assert.FileExists(t, path, "expected vaulted path to exist")
	})

	t.Run("not found once the bytes are gone", func(t *testing.T) {
		rec := reg.artifacts[snap.Id]
		require.NoError(t, os.Remove(rec.RestrictedPath), "expected to delete the vaulted file")
		rec.RestrictedPath = ""

		_, _, err := reg.OwnerFile(snap.Id, owner.Identity)
		assert.ErrorIs(t, err, ErrNotFound, "expected not found with no stored path")
	})
}

func TestPeerFile(t *testing.T) {
	t.Run("unlocked peer downloads, others do not", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "s.txt", Password: "pw"}, strings.NewReader("data"))
		require.NoError(t, err, "expected no error creating file")

		_, _, err = reg.PeerFile(snap.Id, peer.Identity)
		assert.ErrorIs(t, err, ErrForbidden, "expected forbidden before unlock")

		_, err = reg.Unlock(snap.Id, "pw", peer.Identity)
		require.NoError(t, err, "expected unlock to succeed")

		path, got, err := reg.PeerFile(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected peer download to succeed")
		assert.Equal(t, snap.Id, got.Id, "expected snapshot for the artifact")
		assert.FileExists(t, path, "expected vaulted path to exist")

		_, _, err = reg.PeerFile(snap.Id, "10.5.5.5")
		assert.ErrorIs(t, err, ErrForbidden, "expected other identities to be rejected")
	})

	t.Run("bound viewer downloads a view-only file", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "once.png", ViewOnly: true}, strings.NewReader("img"))
		require.NoError(t, err, "expected no error creating file")

		_, err = reg.Resolve(snap.Id, peer.Identity)
		require.NoError(t, err, "expected resolve to bind the viewer")

		path, _, err := reg.PeerFile(snap.Id, peer.Identity)
		assert.NoError(t, err, "expected bound viewer download to succeed")
		assert.FileExists(t, path, "expected vaulted path to exist")

		_, _, err = reg.PeerFile(snap.Id, "10.5.5.5")
		assert.ErrorIs(t, err, ErrForbidden, "expected unbound identities to be rejected")
	})

	t.Run("recall revokes past grants", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		snap, err := reg.CreateFile("alpha", owner, FileParams{Name: "s.txt", Password: "pw"}, strings.NewReader("data"))
		require.NoError(t, err, "expected no error creating file")

		_, err = reg.Unlock(snap.Id, "pw", peer.Identity)
		require.NoError(t, err, "expected unlock to succeed")
		require.NoError(t, reg.Recall(snap.Id, owner), "expected recall to succeed")

		_, _, err = reg.PeerFile(snap.Id, peer.Identity)
		assert.ErrorIs(t, err, ErrRecalled, "expected recalled error for past grant holder")
	})
}
