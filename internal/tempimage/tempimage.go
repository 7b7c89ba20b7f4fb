package tempimage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vbonduro/snackcheck/internal/domain"
)

// Store writes uploads to a scratch directory so the OCR engine can read
// them from disk. Files live only for the duration of one analysis.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Handle is a saved upload. Release removes it and is safe to call more
// than once.
type Handle struct {
	path string
	once sync.Once
	err  error
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = fmt.Errorf("failed to remove temp image: %w", err)
		}
	})
	return h.err
}

func (s *Store) Save(ctx context.Context, img domain.UploadedImage) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := normalizeExt(img.Ext)
	if ext == "" {
		return nil, fmt.Errorf("unsupported image extension %q", img.Ext)
	}

	filePath, err := s.safeJoin(fmt.Sprintf("upload_%s.%s", uuid.NewString(), ext))
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(img.Data); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return &Handle{path: filePath}, nil
}

// safeJoin resolves name relative to dir and rejects directory traversal.
func (s *Store) safeJoin(name string) (string, error) {
	absBase, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func normalizeExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "jpg"
	case "png":
		return "png"
	default:
		return ""
	}
}
