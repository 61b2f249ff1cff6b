// Package device is the file-backed target used by the CLI and tests: an
// os.File with block-device detection, optional fdatasync after writes,
// direct-I/O reopen and page-cache eviction.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ncw/directio"
)

// Kind is the type of file backing a target.
type Kind int

const (
	KindRegular Kind = iota
	KindBlock
	KindChar
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular file"
	case KindBlock:
		return "block device"
	case KindChar:
		return "character device"
	default:
		return "other"
	}
}

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("device: closed")

// Options controls how a target is opened.
type Options struct {
	Write  bool // open read-write
	Create bool // create a missing regular file (implies Write)
	Sync   bool // fdatasync after every WriteAt
	Direct bool // bypass the page cache with O_DIRECT
}

// Device is an open target. It is not safe for concurrent use.
type Device struct {
	f      *os.File
	path   string
	kind   Kind
	id     uint64
	size   int64
	opts   Options
	direct bool
}

// Open opens path according to opts.
func Open(path string, opts Options) (*Device, error) {
	flag := os.O_RDONLY
	if opts.Write || opts.Create {
		flag = os.O_RDWR
	}
	if opts.Create {
		flag |= os.O_CREATE
	}

	open := os.OpenFile
	if opts.Direct {
		open = directio.OpenFile
	}
	f, err := open(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}

	kind, id, err := fileKind(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("device: stat %s: %w", path, err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("device: size %s: %w", path, err)
	}

	return &Device{f: f, path: path, kind: kind, id: id, size: size, opts: opts, direct: opts.Direct}, nil
}

// Name returns the path the device was opened with.
func (d *Device) Name() string { return d.path }

// Kind returns the type of the backing file.
func (d *Device) Kind() Kind { return d.kind }

// ID returns the inode number of a regular file or the device number of a
// device. It is zero where the platform does not expose one.
func (d *Device) ID() uint64 { return d.id }

// Size returns the size observed at open time.
func (d *Device) Size() int64 { return d.size }

// Direct reports whether the handle bypasses the page cache.
func (d *Device) Direct() bool { return d.direct }

// RandomAccess reports whether records can be reread at arbitrary offsets.
func (d *Device) RandomAccess() bool {
	return d.kind == KindRegular || d.kind == KindBlock
}

// ReadAt reads len(p) bytes at off.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if d.f == nil {
		return 0, ErrClosed
	}
	return d.f.ReadAt(p, off)
}

// WriteAt writes p at off, syncing data to stable storage when the device
// was opened with Sync.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if d.f == nil {
		return 0, ErrClosed
	}
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if end := off + int64(n); end > d.size {
		d.size = end
	}
	if d.opts.Sync {
		if err := fdatasync(d.f); err != nil {
			return n, fmt.Errorf("device: sync %s: %w", d.path, err)
		}
	}
	return n, nil
}

// Reopen opens an independent read-only handle on the same path.
func (d *Device) Reopen(direct bool) (*Device, error) {
	return Open(d.path, Options{Direct: direct})
}

// DropCache asks the kernel to evict cached pages for [off, off+n).
func (d *Device) DropCache(off, n int64) error {
	if d.f == nil {
		return ErrClosed
	}
	return dropCache(d.f, off, n)
}

// Close closes the handle. Closing twice is a no-op.
func (d *Device) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// AlignSize is the offset and length alignment required for direct I/O.
func AlignSize() int { return directio.AlignSize }

// Aligned reports whether [off, off+n) satisfies direct-I/O alignment.
func Aligned(off int64, n int) bool {
	a := directio.AlignSize
	if a == 0 {
		return true
	}
	return off%int64(a) == 0 && n%a == 0
}

// AlignedBuffer returns an n-byte buffer suitable for direct I/O.
func AlignedBuffer(n int) []byte {
	return directio.AlignedBlock(n)
}
