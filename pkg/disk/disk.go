// Package disk is the raw block device abstraction the rest of the page
// store treats as an external collaborator: synchronous, fixed-size page
// reads and writes, and identifier bookkeeping for allocation/deallocation.
// It does not know about frames, pins, or latches - those belong to the
// buffer pool.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ncw/directio"
	"github.com/otiai10/copy"

	"pagestore/pkg/config"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("disk: manager is closed")

// Manager is a synchronous, file-backed disk manager. Reads and writes are
// blocking; the asynchronous behavior callers want lives one layer up, in
// the disk scheduler.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	nextPage int64 // monotonically increasing; never reused, even across deletes
	closed   bool
}

// Open opens (creating if necessary) a file-backed disk manager at path.
func Open(path string) (*Manager, error) {
	file, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	if info.Size()%int64(config.PageSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("disk: %s is not page-aligned (size %d)", path, info.Size())
	}
	return &Manager{
		file:     file,
		path:     path,
		nextPage: info.Size() / int64(config.PageSize),
	}, nil
}

// Path returns the backing file's path.
func (m *Manager) Path() string {
	return m.path
}

// AllocatePage hands out the next page id. It never reuses an id that a
// prior DeallocatePage freed.
func (m *Manager) AllocatePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPage
	m.nextPage++
	return id
}

// DeallocatePage returns id to the disk manager's bookkeeping. It does not
// reclaim the id for reuse and does not touch the file's contents; whoever
// held the page already decided to discard it without writing back.
func (m *Manager) DeallocatePage(id int64) {
	// Intentionally a no-op beyond bookkeeping the caller already performed
	// upstream: page ids are never reused once allocated.
	_ = id
}

// ReadPage synchronously reads the page with the given id into buf, which
// must be exactly config.PageSize bytes.
func (m *Manager) ReadPage(id int64, buf []byte) error {
	if len(buf) != config.PageSize {
		return fmt.Errorf("disk: read buffer is %d bytes, want %d", len(buf), config.PageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	n, err := m.file.ReadAt(buf, id*int64(config.PageSize))
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("disk: read page %d: %w", id, err)
		}
		// A page that was allocated but never written reads as zeroes past
		// the file's current extent.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return nil
}

// WritePage synchronously writes buf, which must be exactly config.PageSize
// bytes, to the page with the given id.
func (m *Manager) WritePage(id int64, buf []byte) error {
	if len(buf) != config.PageSize {
		return fmt.Errorf("disk: write buffer is %d bytes, want %d", len(buf), config.PageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	_, err := m.file.WriteAt(buf, id*int64(config.PageSize))
	return err
}

// Close closes the backing file. Further operations return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.file.Close()
}

// Snapshot clones the disk manager's backing file to destPath, for test
// fixtures that want to reopen an independent copy of a database file
// without disturbing the original (e.g. a close/copy/reopen round trip).
// It does not flush in-memory pages first; callers that need a consistent
// snapshot should flush the buffer pool before calling Snapshot.
func (m *Manager) Snapshot(destPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync before snapshot: %w", err)
	}
	if err := copy.Copy(m.path, destPath); err != nil {
		return fmt.Errorf("disk: snapshot %s to %s: %w", m.path, destPath, err)
	}
	return nil
}
