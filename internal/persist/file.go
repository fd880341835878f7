package persist

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofrs/flock"
	"github.com/klauspost/pgzip"
)

const lockRetryDelay = 25 * time.Millisecond

var _ Medium = (*FileMedium)(nil)

// FileMedium stores each key in its own file under a directory. Writes go
// to a temp file that is renamed over the target, so readers never see a
// partial value. A lock file serializes access across processes.
type FileMedium struct {
	dir      string
	compress bool
}

// FileOption configures a FileMedium.
type FileOption func(*FileMedium)

// WithCompression gzips stored values.
func WithCompression() FileOption {
	return func(m *FileMedium) { m.compress = true }
}

// OpenFile creates dir if needed and returns a medium rooted at it.
func OpenFile(dir string, opts ...FileOption) (*FileMedium, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	m := &FileMedium{dir: dir}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *FileMedium) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := m.path(key)
	if err != nil {
		return nil, err
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, errors.Wrap(err, "acquire read lock")
	}
	if !ok {
		return nil, errors.New("acquire read lock")
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, errors.Wrap(err, "read state file")
	}
	if !m.compress {
		return data, nil
	}

	zr, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip reader")
	}
	defer func() { _ = zr.Close() }()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "decompress state")
	}
	return out, nil
}

func (m *FileMedium) Put(ctx context.Context, key string, value []byte) error {
	path, err := m.path(key)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return errors.Wrap(err, "acquire write lock")
	}
	if !ok {
		return errors.New("acquire write lock")
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(m.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := m.write(tmp, value); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

func (m *FileMedium) write(w io.Writer, value []byte) error {
	if !m.compress {
		if _, err := w.Write(value); err != nil {
			return errors.Wrap(err, "write state")
		}
		return nil
	}
	zw := pgzip.NewWriter(w)
	if _, err := zw.Write(value); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "compress state")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flush gzip writer")
	}
	return nil
}

// Ping checks that the directory is still there.
func (m *FileMedium) Ping(context.Context) error {
	info, err := os.Stat(m.dir)
	if err != nil {
		return errors.Wrap(err, "stat state dir")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", m.dir)
	}
	return nil
}

func (m *FileMedium) Close() error { return nil }

func (m *FileMedium) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", errors.Errorf("invalid key %q", key)
	}
	name := key + ".json"
	if m.compress {
		name += ".gz"
	}
	return filepath.Join(m.dir, name), nil
}
