package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepskilling/deepgraph/pkg/pagestore"
)

// metaFormatVersion tags the <dir>/meta file's layout: format version,
// page size and last checkpoint commit_ts. The file holds no next-id
// counters.
const metaFormatVersion uint32 = 1
const metaFileSize = 16 // version(4) + page size(4) + last checkpoint ts(8)

// DiskStorage is spec.md §4.8's durable variant: GraphStorage's WAL-backed
// index plus a page store used for checkpoint bookkeeping and
// size-on-disk accounting. Reopening a DiskStorage at the same directory
// replays the WAL (via GraphStorage.Open) to rebuild the same logical
// graph observable before the previous clean close.
type DiskStorage struct {
	*GraphStorage
	pages *pagestore.Store
	dir   string
}

// OpenDisk opens or creates a durable storage handle rooted at dir:
// <dir>/wal holds WAL segments, <dir>/pages holds the page store, <dir>/meta
// holds sealed metadata.
func OpenDisk(dir string) (*DiskStorage, error) {
	g, err := Open(dir)
	if err != nil {
		return nil, err
	}
	pagesDir := filepath.Join(dir, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		_ = g.Close()
		return nil, newError(KindDurability, "OpenDisk", err)
	}
	store, err := pagestore.Open(filepath.Join(pagesDir, "data.pg"))
	if err != nil {
		_ = g.Close()
		return nil, newError(KindDurability, "OpenDisk", err)
	}
	d := &DiskStorage{GraphStorage: g, pages: store, dir: dir}
	if err := d.writeMeta(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Close flushes and closes the page store before closing the underlying
// GraphStorage's WAL.
func (d *DiskStorage) Close() error {
	if err := d.pages.Sync(); err != nil {
		return newError(KindDurability, "Close", err)
	}
	if err := d.pages.Close(); err != nil {
		return newError(KindDurability, "Close", err)
	}
	return d.GraphStorage.Close()
}

// Checkpoint writes a WAL checkpoint record at the current commit
// timestamp and seals the metadata file. DeepGraph's structural index
// lives entirely in memory, so there are no dirty pages of live data to
// flush here. No WAL segment is truncated or removed: the next Open still
// replays every segment from the start.
func (d *DiskStorage) Checkpoint() error {
	ts := d.clock.Current()
	if err := d.log.Checkpoint(uint64(ts)); err != nil {
		return newError(KindDurability, "Checkpoint", err)
	}
	return d.writeMeta()
}

// SizeOnDiskBytes reports the combined size of the WAL segments and the
// page store, spec.md §4.8's size_on_disk_bytes statistic.
func (d *DiskStorage) SizeOnDiskBytes() (int64, error) {
	walBytes, err := dirSize(filepath.Join(d.dir, "wal"))
	if err != nil {
		return 0, newError(KindDurability, "SizeOnDiskBytes", err)
	}
	return walBytes + int64(d.pages.PageCount())*pagestore.PageSize, nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (d *DiskStorage) metaPath() string { return filepath.Join(d.dir, "meta") }

func (d *DiskStorage) writeMeta() error {
	buf := make([]byte, metaFileSize)
	binary.BigEndian.PutUint32(buf[0:4], metaFormatVersion)
	binary.BigEndian.PutUint32(buf[4:8], uint32(pagestore.PageSize))
	binary.BigEndian.PutUint64(buf[8:16], uint64(d.clock.Current()))
	if err := os.WriteFile(d.metaPath(), buf, 0o644); err != nil {
		return newError(KindDurability, "writeMeta", err)
	}
	return nil
}

// readMeta decodes the sealed metadata file under dir without opening the
// full engine. Nothing in the repository calls it.
func readMeta(dir string) (version uint32, pageSize uint32, lastCheckpointTS uint64, err error) {
	buf, err := os.ReadFile(filepath.Join(dir, "meta"))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("engine: read meta: %w", err)
	}
	if len(buf) < metaFileSize {
		return 0, 0, 0, fmt.Errorf("engine: meta file truncated")
	}
	version = binary.BigEndian.Uint32(buf[0:4])
	pageSize = binary.BigEndian.Uint32(buf[4:8])
	lastCheckpointTS = binary.BigEndian.Uint64(buf[8:16])
	return version, pageSize, lastCheckpointTS, nil
}
