// Package artifact saves corruption evidence files next to the target.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

// Kind names the evidence a file holds.
type Kind string

const (
	Expect  Kind = "EXPECT"
	Corrupt Kind = "CORRUPT"
	Reread  Kind = "REREAD"
)

// CompressedExt is appended to compressed artifacts.
const CompressedExt = ".zst"

const defaultMaxProbe = 10000

// ErrNoName is returned when every probed file name already exists.
var ErrNoName = errors.New("artifact: no free file name")

// Options configures where and how artifacts are written.
type Options struct {
	// Dir holds the artifacts. Defaults to the target's directory for
	// regular files and the system temp directory otherwise.
	Dir      string
	Compress bool
	Job      int
	Thread   int
	// MaxProbe bounds the per-kind sequence number search.
	MaxProbe int
}

// Writer names and writes artifacts for one target and thread.
type Writer struct {
	dir  string
	name string
	opts Options
}

// New returns a Writer for target. regular reports whether the target is a
// regular file.
func New(target string, regular bool, opts Options) *Writer {
	dir := opts.Dir
	if dir == "" {
		if regular {
			dir = filepath.Dir(target)
		} else {
			dir = os.TempDir()
		}
	}
	if opts.MaxProbe <= 0 {
		opts.MaxProbe = defaultMaxProbe
	}
	return &Writer{dir: dir, name: filepath.Base(target), opts: opts}
}

// Name returns the path of the n-th artifact of the given kind.
func (w *Writer) Name(kind Kind, n int) string {
	name := fmt.Sprintf("%s-%s%d-j%dt%d", w.name, kind, n, w.opts.Job, w.opts.Thread)
	if w.opts.Compress {
		name += CompressedExt
	}
	return filepath.Join(w.dir, name)
}

// Save writes data to the first unused artifact name of the given kind and
// returns its path. Existing files are never overwritten.
func (w *Writer) Save(kind Kind, data []byte) (string, error) {
	f, path, err := w.create(kind)
	if err != nil {
		return "", err
	}
	if err := write(f, data, w.opts.Compress); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("artifact: write %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) create(kind Kind) (*os.File, string, error) {
	for n := 0; n < w.opts.MaxProbe; n++ {
		path := w.Name(kind, n)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("artifact: create %s: %w", path, err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoName, w.Name(kind, w.opts.MaxProbe))
}

func write(f *os.File, data []byte, compress bool) (err error) {
	defer func() { err = multierr.Append(err, f.Close()) }()

	var dst io.Writer = f
	var enc *zstd.Encoder
	if compress {
		if enc, err = zstd.NewWriter(f); err != nil {
			return err
		}
		dst = enc
	}
	if _, err = dst.Write(data); err != nil {
		if enc != nil {
			err = multierr.Append(err, enc.Close())
		}
		return err
	}
	if enc != nil {
		if err = enc.Close(); err != nil {
			return err
		}
	}
	return f.Sync()
}

// Load reads an artifact, decompressing it when it carries CompressedExt.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: decompress %s: %w", path, err)
	}
	return out, nil
}
