package reread

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"

	"github.com/joshuapare/dtcheck/internal/device"
)

// Session is the isolated reread context: its own handle, the failing range
// and its own buffer. It shares nothing with the verifier that created it.
type Session struct {
	dev    Device
	name   string
	off    int64
	buf    []byte
	direct bool
	closed bool
}

// directEligible reports whether the range can be reread with direct I/O.
func directEligible(t Target, off int64, n int) bool {
	k := t.Kind()
	return (k == device.KindRegular || k == device.KindBlock) && device.Aligned(off, n)
}

// OpenSession opens a read-only handle on t for [off, off+n). When direct is
// set and the open fails, it falls back to a buffered handle and reports
// the direct-open error as fallback.
func OpenSession(t Target, off int64, n int, direct bool) (s *Session, fallback error, err error) {
	if direct {
		dev, derr := t.Reopen(true)
		if derr == nil {
			return &Session{dev: dev, name: t.Name(), off: off, buf: device.AlignedBuffer(n), direct: true}, nil, nil
		}
		fallback = derr
	}
	dev, err := t.Reopen(false)
	if err != nil {
		return nil, fallback, fmt.Errorf("reread: reopen %s: %w", t.Name(), err)
	}
	return &Session{dev: dev, name: t.Name(), off: off, buf: make([]byte, n)}, fallback, nil
}

// Direct reports whether the session bypasses the page cache.
func (s *Session) Direct() bool { return s.direct }

// Read rereads the range. The returned slice is reused by the next Read.
func (s *Session) Read() ([]byte, error) {
	if !s.direct {
		if dc, ok := s.dev.(CacheDropper); ok {
			_ = dc.DropCache(s.off, int64(len(s.buf)))
		}
	}
	n, err := s.dev.ReadAt(s.buf, s.off)
	if n == len(s.buf) {
		return s.buf, nil
	}
	if err == nil {
		err = ErrShortRead
	}
	return nil, fmt.Errorf("reread: read %s at %d: got %d of %d bytes: %w", s.name, s.off, n, len(s.buf), err)
}

// Digest returns the xxhash of data.
func Digest(data []byte) uint64 { return xxhash.Sum64(data) }

// Close releases the handle, evicting any pages the buffered rereads
// populated. It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	var err error
	if dc, ok := s.dev.(CacheDropper); ok && !s.direct {
		err = multierr.Append(err, dc.DropCache(s.off, int64(len(s.buf))))
	}
	return multierr.Append(err, s.dev.Close())
}

// DeviceTarget adapts an open device to Target.
type DeviceTarget struct {
	*device.Device
}

// Reopen opens an independent read-only handle on the device's path.
func (t DeviceTarget) Reopen(direct bool) (Device, error) {
	d, err := t.Device.Reopen(direct)
	if err != nil {
		return nil, err
	}
	return d, nil
}
