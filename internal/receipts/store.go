package receipts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Store keeps uploaded receipt artifacts on local disk. Refs handed out are
// relative paths under the configured directory.
type Store struct {
	dir string
}

// NewStore creates the receipts directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create receipts dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes one artifact under a unique, sanitized name and returns its ref.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s_%s",
		time.Now().UnixMilli(), hex.EncodeToString(buf), sanitize(originalName))

	full := filepath.Join(s.dir, name)
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create receipt file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to write receipt file: %w", err)
	}
	return filepath.Join(s.dir, name), nil
}

// Release deletes an artifact by ref. Only the base name is honored, so a
// ref can never reach outside the receipts directory.
func (s *Store) Release(ref string) error {
	if ref == "" {
		return nil
	}
	full := filepath.Join(s.dir, filepath.Base(ref))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove receipt artifact %s: %w", ref, err)
	}
	return nil
}

func sanitize(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "receipt"
	}
	return unsafeChars.ReplaceAllString(name, "_")
}
