package eval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/funvibe/wdlx/internal/transfer"
)

// IO provides the standard library's view of the filesystem: a working
// directory for relative paths, a temporary directory for write_*
// results, the recorded stdout/stderr of a completed command, and a
// transferer for remote URLs.
type IO struct {
	WorkDir    string
	TempDir    string
	StdoutPath string
	StderrPath string
	Transfer   transfer.Transferer
}

// Resolve joins a relative path against the working directory; URLs and
// absolute paths pass through.
func (io *IO) Resolve(path string) string {
	if transfer.IsURL(path) || filepath.IsAbs(path) || io.WorkDir == "" {
		return path
	}
	return filepath.Join(io.WorkDir, path)
}

// Read loads a file's content, consulting the transferer for URLs.
func (io *IO) Read(ctx context.Context, path string) ([]byte, error) {
	if transfer.IsURL(path) {
		if io.Transfer == nil {
			return nil, fmt.Errorf("no transferer is configured for `%s`", path)
		}
		local, err := io.Transfer.Download(ctx, path)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(local)
	}
	return os.ReadFile(io.Resolve(path))
}

// Write creates a new file under the temporary directory.
func (io *IO) Write(pattern string, data []byte) (string, error) {
	dir := io.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// Size reports a path's content length in bytes.
func (io *IO) Size(ctx context.Context, path string) (int64, error) {
	if transfer.IsURL(path) {
		if io.Transfer == nil {
			return 0, fmt.Errorf("no transferer is configured for `%s`", path)
		}
		return io.Transfer.Size(ctx, path)
	}
	info, err := os.Stat(io.Resolve(path))
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		var total int64
		err := filepath.Walk(io.Resolve(path), func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		return total, err
	}
	return info.Size(), nil
}

// Exists reports whether a path resolves to content.
func (io *IO) Exists(ctx context.Context, path string) (bool, error) {
	if transfer.IsURL(path) {
		if io.Transfer == nil {
			return false, nil
		}
		return io.Transfer.Exists(ctx, path)
	}
	_, err := os.Stat(io.Resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
