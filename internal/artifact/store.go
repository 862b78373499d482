package artifact

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Store owns the two on-disk locations a file artifact can live in: the
// public directory, servable to anyone, and the vault, reachable only
// through identity-gated endpoints.
type Store struct {
	publicDir string
	vaultDir  string
	log       *log.Logger
}

func NewStore(publicDir, vaultDir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(publicDir, 0o755); err != nil {
		return nil, fmt.Errorf("create public dir: %w", err)
	}
	if err := os.MkdirAll(vaultDir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	return &Store{
		publicDir: publicDir,
		vaultDir:  vaultDir,
		log:       logger,
	}, nil
}

func (s *Store) PublicDir() string {
	return s.publicDir
}

// Save writes the uploaded bytes under the stored name. Protected and
// view-only files go straight to the vault and are never briefly public.
func (s *Store) Save(storedName string, src io.Reader, restricted bool) (string, int64, error) {
	dir := s.publicDir
	if restricted {
		dir = s.vaultDir
	}

	path := filepath.Join(dir, storedName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %q: %w", path, err)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Printf("remove partial upload %q: %v", path, rmErr)
		}
		return "", 0, fmt.Errorf("write %q: %w", path, err)
	}

	return path, n, nil
}

// MoveToVault relocates a public file into the vault. If the rename fails
// the file is deleted outright: recall must never leave a publicly
// reachable copy behind.
func (s *Store) MoveToVault(publicPath, storedName string) (string, error) {
	dst := filepath.Join(s.vaultDir, storedName)
	if err := os.Rename(publicPath, dst); err != nil {
		s.log.Printf("vault move failed for %q, deleting: %v", publicPath, err)
		if rmErr := os.Remove(publicPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Printf("delete fallback for %q: %v", publicPath, rmErr)
		}
		return "", fmt.Errorf("move to vault: %w", err)
	}

	return dst, nil
}

func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}
