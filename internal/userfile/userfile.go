// Package userfile handles reading and writing the user file: the
// authenticated user record, its API token, and the manual connectivity
// override. This is a leaf package imported by both the CLI commands and
// the remote client wiring, so neither depends on the other for
// credentials.
package userfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts the user file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// User is the authenticated user record cached from the login response.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Connectivity is the manual connectivity override. Its presence in the
// file means manual mode: automatic transport signals are ignored until
// the override is cleared, so a deliberately forced status is never
// silently overwritten.
type Connectivity struct {
	Connected bool `json:"connected"`
}

// File is the on-disk format of the user file.
type File struct {
	User  *User  `json:"user,omitempty"`
	Token string `json:"token,omitempty"`
	// Connectivity is nil in auto mode.
	Connectivity *Connectivity `json:"connectivity,omitempty"`
}

// Load reads the user file from disk. Returns (nil, nil) if the file does
// not exist; a missing file simply means nobody is logged in and no
// override is set.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("userfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("userfile: decoding %s: %w", path, err)
	}

	return &f, nil
}

// Save writes the user file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("userfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("userfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".user-*.tmp")
	if err != nil {
		return fmt.Errorf("userfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("userfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("userfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("userfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("userfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("userfile: renaming: %w", err)
	}

	success = true

	return nil
}

// SetUser records the logged-in user and token, preserving any existing
// connectivity override.
func SetUser(path string, user *User, token string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	if f == nil {
		f = &File{}
	}

	f.User = user
	f.Token = token

	return Save(path, f)
}

// ClearUser removes the user record and token, preserving any existing
// connectivity override.
func ClearUser(path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	if f == nil {
		return nil
	}

	f.User = nil
	f.Token = ""

	return Save(path, f)
}

// SetConnectivity forces manual connectivity mode with the given status.
func SetConnectivity(path string, connected bool) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	if f == nil {
		f = &File{}
	}

	f.Connectivity = &Connectivity{Connected: connected}

	return Save(path, f)
}

// ClearConnectivity returns connectivity to auto mode. Clearing when no
// override is set is a no-op.
func ClearConnectivity(path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	if f == nil || f.Connectivity == nil {
		return nil
	}

	f.Connectivity = nil

	return Save(path, f)
}

// TokenSource adapts the user file to the remote client's token interface,
// re-reading the file on every request so a re-login is picked up without
// restarting long-lived processes.
type TokenSource struct {
	Path string
}

// Token returns the stored API token, or an error when nobody is logged
// in.
func (s TokenSource) Token() (string, error) {
	f, err := Load(s.Path)
	if err != nil {
		return "", err
	}

	if f == nil || f.Token == "" {
		return "", fmt.Errorf("userfile: not logged in")
	}

	return f.Token, nil
}
