package tartrans

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/xi2/xz"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte{'B', 'Z', 'h'}
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Decompress wraps a reader with the appropriate decompressor,
// autodetected by magic bytes.  Streams that match no known magic are
// passed through unchanged (plain tar).
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(peek, magicGzip):
		return gzip.NewReader(br)
	case bytes.HasPrefix(peek, magicBzip2):
		return bzip2.NewReader(br), nil
	case bytes.HasPrefix(peek, magicXz):
		return xz.NewReader(br, 0)
	default:
		return br, nil
	}
}
