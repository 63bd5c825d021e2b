// Package atomicfile replaces a file's content atomically while other
// goroutines or processes keep reading it.
//
// A write is staged in a temporary file next to the target and published with
// a single rename, so a reader opening the path sees either the previous
// complete content or the new complete content. Readers that opened the file
// before the rename keep the old inode and read it to the end.
//
// Only one write may be staged per target path at a time within a process,
// no matter how many Files wrap it. A second BeginWrite fails with
// ErrConcurrentWrite instead of blocking.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

var (
	// ErrConcurrentWrite is returned by BeginWrite while another write is staged.
	ErrConcurrentWrite = errors.New("atomicfile: write already in progress")
	// ErrWriterClosed is returned when committing a writer that was already
	// committed or abandoned.
	ErrWriterClosed = errors.New("atomicfile: writer already finished")
)

const defaultPerm os.FileMode = 0644

// writeLocks maps a cleaned absolute target path to its *sync.Mutex.
var writeLocks sync.Map

func writeLock(path string) *sync.Mutex {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	mu, _ := writeLocks.LoadOrStore(key, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

// File wraps one target path.
type File struct {
	path    string
	perm    os.FileMode
	writing *sync.Mutex
}

// New returns a File for path. The file does not need to exist.
func New(path string) *File {
	return &File{path: path, perm: defaultPerm, writing: writeLock(path)}
}

// Path returns the target path.
func (f *File) Path() string {
	return f.path
}

// Writer is a staged write. Bytes written to it are invisible to readers
// until the owning File commits it.
type Writer struct {
	file    *File
	pending *renameio.PendingFile
	done    bool
}

var _ io.Writer = (*Writer)(nil)

func (w *Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrWriterClosed
	}
	return w.pending.Write(p)
}

// Name returns the path of the staging file.
func (w *Writer) Name() string {
	return w.pending.Name()
}

// BeginWrite creates a staging file in the target's directory.
func (f *File) BeginWrite() (*Writer, error) {
	if !f.writing.TryLock() {
		return nil, ErrConcurrentWrite
	}

	pending, err := renameio.NewPendingFile(f.path,
		renameio.WithTempDir(filepath.Dir(f.path)),
		renameio.WithPermissions(f.perm),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		f.writing.Unlock()
		return nil, fmt.Errorf("begin write %s: %w", f.path, err)
	}

	return &Writer{file: f, pending: pending}, nil
}

// Commit flushes the staged bytes and renames them over the target.
func (f *File) Commit(w *Writer) error {
	if w.file != f {
		return fmt.Errorf("commit %s: writer belongs to %s", f.path, w.file.path)
	}
	if w.done {
		return ErrWriterClosed
	}
	w.done = true
	defer f.writing.Unlock()

	if err := w.pending.CloseAtomicallyReplace(); err != nil {
		_ = w.pending.Cleanup()
		return fmt.Errorf("commit %s: %w", f.path, err)
	}

	// Best effort: some filesystems refuse fsync on directories.
	_ = syncDir(filepath.Dir(f.path))
	return nil
}

// Abandon discards the staged bytes and leaves the target untouched.
// Abandoning a writer that was already committed or abandoned does nothing,
// so it is safe to defer right after BeginWrite.
func (f *File) Abandon(w *Writer) error {
	if w.file != f {
		return fmt.Errorf("abandon %s: writer belongs to %s", f.path, w.file.path)
	}
	if w.done {
		return nil
	}
	w.done = true
	defer f.writing.Unlock()

	if err := w.pending.Cleanup(); err != nil {
		return fmt.Errorf("abandon %s: %w", f.path, err)
	}
	return nil
}

// OpenRead opens the currently committed content for reading. The handle
// stays bound to that content even if a later commit replaces the path.
func (f *File) OpenRead() (*os.File, error) {
	return os.Open(f.path)
}

// ModTime returns the modification time of the committed content.
func (f *File) ModTime() (time.Time, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// SetModTime sets the modification time of the committed content.
func (f *File) SetModTime(t time.Time) error {
	return os.Chtimes(f.path, time.Now(), t)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
