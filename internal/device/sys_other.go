//go:build !linux

package device

import "os"

// fsync is the closest durable flush available off Linux.
func fdatasync(f *os.File) error {
	return f.Sync()
}

func dropCache(*os.File, int64, int64) error { return nil }
