package upload

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	errs "SCProject/tools/errs"

	"github.com/pkg/errors"
)

// Content classes decide where a finished upload lands.
const (
	ClassAttachment = "chat" // chat attachments (images, video, voice, documents)
	ClassPackage    = "apps" // distributable application packages
)

// Storage owns the permanent media tree. Finished uploads move here and
// are addressed by a URL-style reference under BaseURL.
type Storage struct {
	BaseDir string
	BaseURL string
}

func NewStorage(baseDir, baseURL string) (*Storage, error) {
	for _, class := range []string{ClassAttachment, ClassPackage} {
		if err := os.MkdirAll(filepath.Join(baseDir, class), 0o755); err != nil {
			return nil, errors.Wrap(err, "storage mkdir")
		}
	}
	return &Storage{BaseDir: baseDir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Finalize moves the assembled temp file into permanent storage and
// returns the reference clients embed into chat messages. Idempotent: a
// retry whose temp file was already moved by an earlier attempt returns
// the same reference.
func (s *Storage) Finalize(tmpPath, class, name string) (string, error) {
	dest := filepath.Join(s.BaseDir, class, name)
	ref := path.Join(s.BaseURL, class, name)
	if err := os.Rename(tmpPath, dest); err != nil {
		if _, serr := os.Stat(tmpPath); os.IsNotExist(serr) {
			if _, derr := os.Stat(dest); derr == nil {
				return ref, nil
			}
			return "", errors.Wrap(err, "finalize upload")
		}
		// cross-device fallback
		if cerr := copyFile(tmpPath, dest); cerr != nil {
			return "", errors.Wrap(cerr, "finalize upload")
		}
		_ = os.Remove(tmpPath)
	}
	return ref, nil
}

// Remove deletes the stored file behind a reference produced by Finalize.
// References outside the media tree are rejected.
func (s *Storage) Remove(ref string) error {
	rel := strings.TrimPrefix(ref, s.BaseURL)
	rel = strings.TrimLeft(path.Clean("/"+rel), "/")
	if rel == "" || strings.Contains(rel, "..") {
		return errs.ErrBadRequest.WithDetail("bad file reference")
	}
	err := os.Remove(filepath.Join(s.BaseDir, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "remove file")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
