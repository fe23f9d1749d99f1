// Package disk implements the ability to save and load a snapshot as a
// single file on disk.
package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
)

// Disk represents the file implementation of the snapshot.Storer interface.
type Disk struct {
	path string
}

// New constructs a Disk value for use. The folder holding the file is
// created if needed.
func New(path string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	return &Disk{path: path}, nil
}

// Save writes the snapshot to a temporary file and renames it over the old
// one so a crash never leaves a half written snapshot behind.
func (d *Disk) Save(data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, d.path)
}

// Load reads the snapshot file.
func (d *Disk) Load() ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, snapshot.ErrNotFound
	}

	return data, err
}

// Path returns the location of the snapshot file.
func (d *Disk) Path() string {
	return d.path
}
