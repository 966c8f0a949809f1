package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Files performs file operations on the remote host over SFTP. Remote
// failures keep their os sentinel mapping, so callers can classify them
// with errors.Is against os.ErrNotExist and os.ErrPermission.
type Files struct {
	sftp *sftp.Client
}

// Read returns the full content of a remote file.
func (f *Files) Read(ctx context.Context, remotePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := f.sftp.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", remotePath, err)
	}

	return data, nil
}

// Stat returns file info for a remote path.
func (f *Files) Stat(ctx context.Context, remotePath string) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := f.sftp.Stat(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", remotePath, err)
	}

	return info, nil
}

// WriteAtomic replaces the content of a remote file without exposing a
// partially written state. The data lands in a temporary file next to the
// target, which is renamed over the target once the write completes.
// Missing parent directories are created.
func (f *Files) WriteAtomic(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	dir := path.Dir(remotePath)
	if err := f.sftp.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%d", remotePath, time.Now().UnixNano())
	tmpFile, err := f.sftp.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if _, err := f.copyWithContext(ctx, tmpFile, bytes.NewReader(data)); err != nil {
		_ = tmpFile.Close()
		_ = f.sftp.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = f.sftp.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := f.sftp.Chmod(tmpPath, mode); err != nil {
		_ = f.sftp.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}

	if err := f.rename(tmpPath, remotePath); err != nil {
		_ = f.sftp.Remove(tmpPath)
		return err
	}

	log.Debug().
		Str("path", remotePath).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("remote file written")

	return nil
}

// rename moves tmpPath over remotePath. POSIX rename replaces the target in
// one step; servers without the extension need the target removed first.
func (f *Files) rename(tmpPath string, remotePath string) error {
	if err := f.sftp.PosixRename(tmpPath, remotePath); err == nil {
		return nil
	}

	if err := f.sftp.Remove(remotePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", remotePath, err)
	}

	if err := f.sftp.Rename(tmpPath, remotePath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, remotePath, err)
	}

	return nil
}

// Chmod sets permission bits on a remote path.
func (f *Files) Chmod(ctx context.Context, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.sftp.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", remotePath, err)
	}

	return nil
}

// Remove deletes a remote file.
func (f *Files) Remove(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.sftp.Remove(remotePath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", remotePath, err)
	}

	log.Debug().Str("path", remotePath).Msg("remote file removed")
	return nil
}

// copyWithContext copies src to dst, checking cancellation between chunks.
func (f *Files) copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return written, rerr
		}
	}

	return written, nil
}
