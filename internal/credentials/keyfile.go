package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoAPIKey is returned when the key file is missing or empty.
var ErrNoAPIKey = errors.New("no API key stored")

// KeyFile stores the API key in a plain file readable only by its owner.
type KeyFile struct {
	Path string
}

// NewKeyFile returns a KeyFile at path.
func NewKeyFile(path string) *KeyFile {
	return &KeyFile{Path: path}
}

// Load returns the stored key with surrounding whitespace removed.
func (k *KeyFile) Load() (string, error) {
	data, err := os.ReadFile(k.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key file %s: %w", k.Path, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// Save writes key to the file, creating parent directories as needed.
func (k *KeyFile) Save(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoAPIKey
	}
	if dir := filepath.Dir(k.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(k.Path, []byte(key), 0o600); err != nil {
		return fmt.Errorf("failed to write key file %s: %w", k.Path, err)
	}
	return nil
}

// Remove deletes the key file. A missing file is not an error.
func (k *KeyFile) Remove() error {
	if err := os.Remove(k.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove key file %s: %w", k.Path, err)
	}
	return nil
}
