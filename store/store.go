/*
	Package store defines the narrow capability surface cider needs
	from a target repository: content-addressed blobs, directory trees
	assembled from (name, id, mode) entries, commits with zero or one
	parent, forcibly-updatable tags, and a movable branch pointer.

	The interface is deliberately small so that the hard parts of the
	importer (tree assembly, commit chaining, deduplication) stay
	independent of any particular version control library.  The one
	real implementation is backed by go-git; tests use the same
	implementation over in-memory storage.
*/
package store

// ObjectID is an opaque content-derived handle to an immutable object
// in the target store.  Equal content yields equal IDs.  The zero
// value is not a valid ID.
type ObjectID string

func (id ObjectID) String() string { return string(id) }

// Mode describes how a tree entry should be materialized.
type Mode uint8

const (
	ModeRegular Mode = iota
	ModeExecutable
	ModeSymlink
	ModeDir
)

// TreeEntry is one (name, object, mode) row in a directory tree.
type TreeEntry struct {
	Name string
	ID   ObjectID
	Mode Mode
}

// TreeWriter accumulates entries for one directory and finalizes them
// into a stored, immutable tree object.  A TreeWriter is single-use:
// after Finalize it must not be touched again.
type TreeWriter interface {
	// Insert adds an entry, replacing any previous entry of the same name.
	Insert(name string, id ObjectID, mode Mode)

	// Finalize writes the accumulated entries as a tree object and
	// returns its ID.  Entry order given to Insert does not matter;
	// implementations store entries canonically.
	Finalize() (ObjectID, error)
}

// CommitOpts carries everything needed to create one commit.
type CommitOpts struct {
	Tree    ObjectID
	Parents []ObjectID // zero or one parent in this system
	Message string
}

// Store is the write capability for one target repository.
//
// Implementations are not required to be safe for concurrent writes;
// the importer maintains single-writer discipline per repository.
type Store interface {
	// PutBlob stores content bytes.  Idempotent: identical bytes
	// yield the same ID at no extra cost.
	PutBlob(data []byte) (ObjectID, error)

	// NewTree returns an empty accumulator for one directory.
	NewTree() TreeWriter

	// PutCommit stores a commit object.
	PutCommit(opts CommitOpts) (ObjectID, error)

	// PutTag creates (or overwrites) a tag of the given name pointing
	// at the given commit.
	PutTag(name string, commit ObjectID) error

	// SetBranch points the named branch at the given commit and makes
	// it the repository head.  If the repository has a working copy,
	// tracked files are reset to match.
	SetBranch(name string, commit ObjectID) error
}
