//go:build !unix

package device

import "os"

func fileKind(f *os.File) (Kind, uint64, error) {
	st, err := f.Stat()
	if err != nil {
		return KindOther, 0, err
	}
	m := st.Mode()
	switch {
	case m.IsRegular():
		return KindRegular, 0, nil
	case m&os.ModeCharDevice != 0:
		return KindChar, 0, nil
	case m&os.ModeDevice != 0:
		return KindBlock, 0, nil
	default:
		return KindOther, 0, nil
	}
}
