package tartrans

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"strings"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/cider"
	"github.com/polydawn/cider/logging"
	"github.com/polydawn/cider/store"
)

/*
	TreeFromArchive converts a compressed tar archive into a stored
	directory tree and returns the tree's ID.

	The archive's single top-level directory is stripped: an entry
	`foo-1.0/src/main.c` lands at `src/main.c` in the produced tree.
	Entries not living under a leading path segment are skipped with a
	warning.  Directory entries are skipped outright; directories are
	implied by the paths of the files within them, and every ancestor
	directory of a file is materialized even if empty of direct files.

	May error with categories:

	  - `cider.ErrCorruptArchive` -- undecodable compression or tar framing
	  - `cider.ErrInvalidArchiveMode` -- unmappable permission bits
	  - `cider.ErrRepositoryWrite` -- the store failed to persist an object
	  - `cider.ErrCancelled` -- the context was cancelled mid-conversion
*/
func TreeFromArchive(ctx context.Context, st store.Store, archive []byte) (_ store.ObjectID, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	reader, err := Decompress(bytes.NewReader(archive))
	if err != nil {
		return "", Errorf(cider.ErrCorruptArchive, "corrupt archive compression: %s", err)
	}
	tr := tar.NewReader(reader)

	// One accumulator per directory path, keyed by path relative to
	// the stripped root ("" is the root itself).  Owned exclusively by
	// this invocation; discarded on return.
	asm := treeAssembly{st: st, dirs: map[string]store.TreeWriter{}}
	// The root is special: it must exist even for an archive with zero
	// usable entries, so that the result is always a defined tree.
	asm.dir("")

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", Errorf(cider.ErrCorruptArchive, "corrupt tar: %s", err)
		}
		if ctx.Err() != nil {
			return "", Errorf(cider.ErrCancelled, "cancelled")
		}

		if hdr.Typeflag == tar.TypeDir {
			continue
		}

		// Strip the leading path segment.
		cut := strings.IndexByte(hdr.Name, '/')
		if cut < 0 {
			logging.Warn("ignoring tar member not in sub-directory", "name", hdr.Name)
			continue
		}
		rel := hdr.Name[cut+1:]
		if rel == "" || strings.HasPrefix(rel, "..") {
			logging.Warn("ignoring tar member with unusable path", "name", hdr.Name)
			continue
		}

		var mode store.Mode
		var content []byte
		if hdr.Linkname != "" && (hdr.Typeflag == tar.TypeSymlink || hdr.Typeflag == tar.TypeLink) {
			// Links are stored as link-mode entries whose content is
			// the target path bytes.
			mode = store.ModeSymlink
			content = []byte(hdr.Linkname)
		} else {
			perms := hdr.Mode & 07777
			switch {
			case perms&0111 != 0:
				mode = store.ModeExecutable
			case perms&0444 != 0:
				mode = store.ModeRegular
			case perms == 0:
				// This occurs in some archives.
				mode = store.ModeRegular
			default:
				return "", Errorf(cider.ErrInvalidArchiveMode, "invalid tar archive mode %#o on %q", perms, hdr.Name)
			}
			content, err = io.ReadAll(tr)
			if err != nil {
				return "", Errorf(cider.ErrCorruptArchive, "corrupt tar: reading %q: %s", hdr.Name, err)
			}
		}

		blob, err := st.PutBlob(content)
		if err != nil {
			return "", err
		}
		dir, base := splitDirBase(rel)
		asm.dir(dir).Insert(base, blob, mode)
	}

	return asm.finalize()
}

type treeAssembly struct {
	st   store.Store
	dirs map[string]store.TreeWriter
}

// dir returns the accumulator for the given directory path, creating
// it -- and all its ancestors -- on first sight.
func (asm *treeAssembly) dir(path string) store.TreeWriter {
	if tw, ok := asm.dirs[path]; ok {
		return tw
	}
	if path != "" {
		parent, _ := splitDirBase(path)
		asm.dir(parent)
	}
	tw := asm.st.NewTree()
	asm.dirs[path] = tw
	return tw
}

// finalize writes out every accumulated directory, deepest paths
// first, inserting each finished tree into its parent, and returns
// the root tree's ID.  A child path is always strictly longer than
// its parent's, so longest-first order is bottom-up; equal-length
// paths are mutually independent and may finalize in any order.
func (asm *treeAssembly) finalize() (store.ObjectID, error) {
	keys := make([]string, 0, len(asm.dirs))
	for key := range asm.dirs {
		keys = append(keys, key)
	}
	sortByLengthDesc(keys)

	for _, key := range keys {
		id, err := asm.dirs[key].Finalize()
		if err != nil {
			return "", err
		}
		if key == "" {
			return id, nil
		}
		parent, base := splitDirBase(key)
		asm.dirs[parent].Insert(base, id, store.ModeDir)
	}
	panic("tree assembly must always hold a root accumulator")
}

func sortByLengthDesc(keys []string) {
	// Insertion sort; directory counts per archive are small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && len(keys[j]) > len(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func splitDirBase(path string) (dir string, base string) {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}
