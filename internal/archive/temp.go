package archive

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempArchive is a scratch zip path owned by a single upload or download.
// Each value names a distinct file, so concurrent workflows never share one.
type TempArchive struct {
	Path string
}

// NewTempArchive reserves a unique path in dir (os.TempDir() when empty).
// The file itself is created by whoever writes to it.
func NewTempArchive(dir string) TempArchive {
	if dir == "" {
		dir = os.TempDir()
	}
	return TempArchive{Path: filepath.Join(dir, "jscrambler-"+uuid.NewString()+".zip")}
}

// Remove deletes the scratch file. A missing file is not an error.
func (t TempArchive) Remove() error {
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
