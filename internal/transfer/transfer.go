// Package transfer abstracts remote file access for the evaluator: the
// standard library and input localization consult a Transferer for any
// path that is not local.
package transfer

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/highwayhash"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
)

// Transferer moves content between URLs and the local filesystem.
// Local paths bypass the transferer entirely.
type Transferer interface {
	// Download fetches a URL into the transferer's staging directory and
	// returns the local path.
	Download(ctx context.Context, url string) (string, error)
	// Upload copies a local file to a URL.
	Upload(ctx context.Context, path, url string) error
	// Size reports the content length of a URL.
	Size(ctx context.Context, url string) (int64, error)
	// Walk visits every object below a URL.
	Walk(ctx context.Context, url string, visit func(path string, size int64) error) error
	// Exists reports whether a URL resolves to content.
	Exists(ctx context.Context, url string) (bool, error)
	// Digest returns a stable content digest for a URL.
	Digest(ctx context.Context, url string) (string, error)
}

// IsURL reports whether a path carries a URL scheme the transferer
// handles.
func IsURL(p string) bool {
	u, err := url.Parse(p)
	return err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1
}

var digestKey = []byte("wdlx-transfer-digest-key-32bytes")

// Service is the afs-backed transferer. It handles every scheme the
// abstract file storage supports, including http(s) and in-memory URLs.
type Service struct {
	fs       afs.Service
	stageDir string
}

// New creates a transferer staging downloads under the given directory.
func New(stageDir string) *Service {
	return &Service{fs: afs.New(), stageDir: stageDir}
}

func (s *Service) Download(ctx context.Context, sourceURL string) (string, error) {
	data, err := s.fs.DownloadWithURL(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("downloading `%s`: %w", sourceURL, err)
	}
	if err := os.MkdirAll(s.stageDir, 0o755); err != nil {
		return "", err
	}
	name := path.Base(sourceURL)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	sum, err := s.Digest(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.stageDir, sum)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("staging `%s`: %w", sourceURL, err)
	}
	return local, nil
}

func (s *Service) Upload(ctx context.Context, localPath, destURL string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := s.fs.Upload(ctx, destURL, file.DefaultFileOsMode, f); err != nil {
		return fmt.Errorf("uploading `%s` to `%s`: %w", localPath, destURL, err)
	}
	return nil
}

func (s *Service) Size(ctx context.Context, sourceURL string) (int64, error) {
	object, err := s.fs.Object(ctx, sourceURL)
	if err != nil {
		return 0, fmt.Errorf("sizing `%s`: %w", sourceURL, err)
	}
	return object.Size(), nil
}

func (s *Service) Walk(ctx context.Context, sourceURL string, visit func(path string, size int64) error) error {
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		p := parent
		if p != "" {
			p += "/"
		}
		if err := visit(p+info.Name(), info.Size()); err != nil {
			return false, err
		}
		return true, nil
	}
	return s.fs.Walk(ctx, sourceURL, visitor)
}

func (s *Service) Exists(ctx context.Context, sourceURL string) (bool, error) {
	return s.fs.Exists(ctx, sourceURL)
}

func (s *Service) Digest(ctx context.Context, sourceURL string) (string, error) {
	data, err := s.fs.DownloadWithURL(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("digesting `%s`: %w", sourceURL, err)
	}
	h, err := highwayhash.New(digestKey)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
