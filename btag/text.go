package btag

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Host names and serial numbers are stored as fixed-width single-byte text.
// ISO-8859-1 keeps one byte per rune so the field width is exact; runes
// outside the charset are replaced rather than failing the write path.
var (
	textEncoder = encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	textDecoder = charmap.ISO8859_1.NewDecoder()
)

// putText writes s into dst, truncating to len(dst) and NUL padding.
func putText(dst []byte, s string) {
	clear(dst)
	enc, err := textEncoder.Bytes([]byte(s))
	if err != nil {
		enc = []byte(s)
	}
	copy(dst, enc)
}

// getText reads a NUL padded fixed-width field.
func getText(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	dec, err := textDecoder.Bytes(src)
	if err != nil {
		return string(src)
	}
	return string(dec)
}

// normalizeText returns s as it will read back after a round trip through a
// field of width n.
func normalizeText(s string, n int) string {
	b := make([]byte, n)
	putText(b, s)
	return getText(b)
}
