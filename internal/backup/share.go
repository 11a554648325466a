package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dukerupert/ritual/internal/model"
)

// Sharer hands a finished backup file to the user.
type Sharer interface {
	Share(ctx context.Context, path string) error
}

// Picker asks the user for a backup file to import. It returns
// ErrNoFileSelected when the user cancels.
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// CopySharer shares a backup by copying it into Dir.
type CopySharer struct {
	Dir string
	FS  FileSystem
}

func (s CopySharer) Share(_ context.Context, path string) error {
	fsys := s.FS
	if fsys == nil {
		fsys = OSFS{}
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := fsys.MkdirAll(s.Dir); err != nil {
		return fmt.Errorf("create share dir: %w", err)
	}
	dst := filepath.Join(s.Dir, filepath.Base(path))
	if err := fsys.WriteFile(dst, data); err != nil {
		return fmt.Errorf("copy backup: %w", err)
	}
	return nil
}

// PathPicker picks a fixed path once Confirm approves it. A nil Confirm
// approves every path.
type PathPicker struct {
	Path    string
	Confirm func(path string) bool
}

func (p PathPicker) Pick(_ context.Context) (string, error) {
	if p.Path == "" {
		return "", ErrNoFileSelected
	}
	if p.Confirm != nil && !p.Confirm(p.Path) {
		return "", ErrNoFileSelected
	}
	return p.Path, nil
}

// ExportBackup creates a backup and shares it.
func (m *Manager) ExportBackup(ctx context.Context, sharer Sharer) (*model.BackupResult, error) {
	res, err := m.CreateFullBackup(ctx)
	if err != nil {
		return nil, err
	}
	if err := sharer.Share(ctx, res.FilePath); err != nil {
		return nil, fmt.Errorf("share backup: %w", err)
	}
	return res, nil
}

// ImportBackup restores a file chosen through picker. Files without the
// backup extension are rejected before they are read.
func (m *Manager) ImportBackup(ctx context.Context, picker Picker) (*model.BackupResult, error) {
	path, err := picker.Pick(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, m.cfg.Extension) {
		return nil, fmt.Errorf("%w: please select a %s file", ErrInvalidFormat, m.cfg.Extension)
	}
	return m.RestoreBackup(ctx, path)
}
