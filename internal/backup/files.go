package backup

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSystem is the slice of file operations the manager needs.
type FileSystem interface {
	MkdirAll(dir string) error
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	ReadDir(dir string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	Remove(name string) error
}

// OSFS is the FileSystem backed by the operating system.
type OSFS struct{}

func (OSFS) MkdirAll(dir string) error { return os.MkdirAll(dir, 0700) }

// WriteFile writes through a temporary file and renames it into place so a
// partial backup is never visible under its final name.
func (OSFS) WriteFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-"+filepath.Base(name))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func (OSFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OSFS) ReadDir(dir string) ([]fs.DirEntry, error) { return os.ReadDir(dir) }
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFS) Remove(name string) error { return os.Remove(name) }

// fileName builds "<prefix>_<yyyy-MM-dd>_<id[:8]><ext>".
func fileName(prefix, ext, id string, createdAt time.Time) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s%s", prefix, createdAt.UTC().Format(time.DateOnly), short, ext)
}

// tokenCandidates returns the readings of a backup file's content: as
// written, and with one standard base64 layer removed, which is how older
// releases wrapped the token.
func tokenCandidates(content []byte) []string {
	text := strings.TrimSpace(string(content))
	out := []string{text}
	if inner, err := base64.StdEncoding.DecodeString(text); err == nil {
		out = append(out, strings.TrimSpace(string(inner)))
	}
	return out
}
