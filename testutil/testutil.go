/*
	Helpers shared by tests: scratch directories and in-memory
	construction of the gzipped tarballs the importer consumes.
*/
package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
)

// WithTmpdir runs fn with a scratch directory which is removed again
// afterwards.
func WithTmpdir(fn func(tmpDir string)) {
	tmpDir, err := os.MkdirTemp("", "cider-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)
	fn(tmpDir)
}

// TarEntry describes one member of a fixture tarball.
type TarEntry struct {
	Name string
	Body []byte
	Mode int64
	Type byte   // defaults to tar.TypeReg ('0'); use tar.TypeDir, tar.TypeSymlink...
	Link string // symlink target, when Type is tar.TypeSymlink
}

// GzipTarball builds a gzip-compressed tar archive from the given
// entries, in the given order, entirely in memory.
func GzipTarball(entries ...TarEntry) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := tar.Header{
			Name:     e.Name,
			Mode:     e.Mode,
			Size:     int64(len(e.Body)),
			Typeflag: e.Type,
			Linkname: e.Link,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if err := tw.WriteHeader(&hdr); err != nil {
			panic(err)
		}
		if len(e.Body) > 0 {
			if _, err := tw.Write(e.Body); err != nil {
				panic(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
