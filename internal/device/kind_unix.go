//go:build unix

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileKind returns the file type and its identity: the inode number for
// regular files, the device number for block and character devices.
func fileKind(f *os.File) (Kind, uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return KindOther, 0, err
	}
	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFREG:
		return KindRegular, uint64(st.Ino), nil
	case unix.S_IFBLK:
		return KindBlock, uint64(st.Rdev), nil
	case unix.S_IFCHR:
		return KindChar, uint64(st.Rdev), nil
	default:
		return KindOther, uint64(st.Ino), nil
	}
}
