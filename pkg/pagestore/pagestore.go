// Package pagestore implements DeepGraph's durable-mode page/block store:
// fixed 4 KiB pages whose file offset is computed from the page id, with a
// free list for reclaimed pages. There is no page directory, and the store
// has no checkpoint or truncate operation of its own.
//
// The teacher has no hand-rolled page store — its durable mode
// (pkg/storage/badger.go) delegates directly to dgraph-io/badger, a full
// LSM-tree KV store. DeepGraph's spec calls for an engine-owned page format
// instead, so this package is grounded on
// other_examples/4a6ca104_osakka-entitydb__src-storage-binary-format.go.go's
// fixed-size, encoding/binary-driven header/index layout, adapted from a
// record index to fixed-size pages at computed offsets.
package pagestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

const (
	PageSize = 4096

	headerMagic   uint32 = 0x44475350 // "DGSP"
	headerVersion uint32 = 1
	// file header: magic(4) version(4) pageCount(8) freeListHead(8)
	fileHeaderSize = 24
)

// PageID addresses one page within the store. PageID 0 is the file header
// itself and is never allocated to a caller.
type PageID uint64

// Store is a fixed-page file with free-list allocation. It is safe
// for concurrent use.
type Store struct {
	mu           sync.Mutex
	f            *os.File
	pageCount    uint64
	freeListHead uint64 // 0 means empty; otherwise a PageID whose first 8
	// bytes hold the next free PageID, forming a singly linked free list.
}

// Open opens or creates a page store file at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagestore: stat: %w", err)
	}
	s := &Store{f: f}
	if info.Size() == 0 {
		if err := s.initHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initHeader() error {
	s.pageCount = 0
	s.freeListHead = 0
	return s.writeHeaderLocked()
}

func (s *Store) writeHeaderLocked() error {
	buf := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], headerMagic)
	binary.BigEndian.PutUint32(buf[4:8], headerVersion)
	binary.BigEndian.PutUint64(buf[8:16], s.pageCount)
	binary.BigEndian.PutUint64(buf[16:24], s.freeListHead)
	if _, err := s.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("pagestore: write header: %w", err)
	}
	return nil
}

func (s *Store) readHeader() error {
	buf := make([]byte, fileHeaderSize)
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("pagestore: read header: %w", err)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != headerMagic {
		return fmt.Errorf("pagestore: bad magic, file is not a DeepGraph page store")
	}
	s.pageCount = binary.BigEndian.Uint64(buf[8:16])
	s.freeListHead = binary.BigEndian.Uint64(buf[16:24])
	return nil
}

func (s *Store) offsetOf(id PageID) int64 {
	return fileHeaderSize + int64(id-1)*PageSize
}

// Allocate returns a fresh PageID, reusing a freed page if the free list is
// non-empty, otherwise growing the file by one page.
func (s *Store) Allocate() (PageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freeListHead != 0 {
		id := PageID(s.freeListHead)
		next, err := s.readNextFreeLocked(id)
		if err != nil {
			return 0, err
		}
		s.freeListHead = next
		if err := s.writeHeaderLocked(); err != nil {
			return 0, err
		}
		return id, nil
	}

	s.pageCount++
	id := PageID(s.pageCount)
	if err := s.writeHeaderLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) readNextFreeLocked(id PageID) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := s.f.ReadAt(buf, s.offsetOf(id)); err != nil {
		return 0, fmt.Errorf("pagestore: read free list link: %w", err)
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Free returns id to the free list for reuse by a later Allocate.
func (s *Store) Free(id PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link := make([]byte, PageSize)
	binary.BigEndian.PutUint64(link[:8], s.freeListHead)
	if _, err := s.f.WriteAt(link, s.offsetOf(id)); err != nil {
		return fmt.Errorf("pagestore: write free list link: %w", err)
	}
	s.freeListHead = uint64(id)
	return s.writeHeaderLocked()
}

// Write stores exactly PageSize bytes of data at id. Callers are
// responsible for chunking larger payloads across multiple linked pages.
func (s *Store) Write(id PageID, data []byte) error {
	if len(data) > PageSize {
		return fmt.Errorf("pagestore: page payload exceeds %d bytes", PageSize)
	}
	buf := make([]byte, PageSize)
	copy(buf, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteAt(buf, s.offsetOf(id)); err != nil {
		return fmt.Errorf("pagestore: write page %d: %w", id, err)
	}
	return nil
}

// Read returns the PageSize bytes stored at id.
func (s *Store) Read(id PageID) ([]byte, error) {
	buf := make([]byte, PageSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.ReadAt(buf, s.offsetOf(id)); err != nil {
		return nil, fmt.Errorf("pagestore: read page %d: %w", id, err)
	}
	return buf, nil
}

// Sync flushes the underlying file to stable storage.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("pagestore: fsync: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.f.Close()
}

// PageCount reports the number of pages ever allocated (including those
// currently on the free list), for diagnostics and the CLI's size report.
func (s *Store) PageCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}
