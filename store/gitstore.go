package store

import (
	"sort"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/storage"

	"github.com/polydawn/cider"
)

var _ Store = &GitStore{}

// The fixed identity used for all commits and tags.  Imports are
// reconstructions of published history, so a stable signature (and a
// stable timestamp) keeps re-imports byte-identical.
var importSignature = object.Signature{
	Name:  "Apple Open Source",
	Email: "opensource@apple.com",
	When:  time.Unix(1609459200, 0).UTC(),
}

// GitStore implements Store over a git repository via go-git plumbing.
type GitStore struct {
	repo *git.Repository
	sig  object.Signature
}

/*
	Initialize a git repository at the given path and return a store
	writing into it.  Errors are category cider.ErrRepositoryWrite
	(including the path already holding a repository).
*/
func InitGit(path string, bare bool) (*GitStore, error) {
	repo, err := git.PlainInit(path, bare)
	if err != nil {
		return nil, Errorf(cider.ErrRepositoryWrite, "initializing repository at %s: %s", path, err)
	}
	return &GitStore{repo: repo, sig: importSignature}, nil
}

/*
	Initialize a git repository over arbitrary go-git storage.
	A nil worktree yields a bare repository.  Used with memory storage
	and memfs in tests.
*/
func InitGitStorage(storer storage.Storer, worktree billy.Filesystem) (*GitStore, error) {
	repo, err := git.Init(storer, worktree)
	if err != nil {
		return nil, Errorf(cider.ErrRepositoryWrite, "initializing repository: %s", err)
	}
	return &GitStore{repo: repo, sig: importSignature}, nil
}

// Repository exposes the underlying go-git handle.  Read-side only;
// all writes go through the Store interface.
func (s *GitStore) Repository() *git.Repository {
	return s.repo
}

func (s *GitStore) setObject(obj plumbing.EncodedObject) (ObjectID, error) {
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", Errorf(cider.ErrRepositoryWrite, "storing %s object: %s", obj.Type(), err)
	}
	return ObjectID(hash.String()), nil
}

func (s *GitStore) PutBlob(data []byte) (ObjectID, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", Errorf(cider.ErrRepositoryWrite, "opening blob writer: %s", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", Errorf(cider.ErrRepositoryWrite, "writing blob: %s", err)
	}
	if err := w.Close(); err != nil {
		return "", Errorf(cider.ErrRepositoryWrite, "closing blob writer: %s", err)
	}
	return s.setObject(obj)
}

func (s *GitStore) NewTree() TreeWriter {
	return &gitTreeWriter{store: s}
}

type gitTreeWriter struct {
	store   *GitStore
	entries []TreeEntry
}

func (tw *gitTreeWriter) Insert(name string, id ObjectID, mode Mode) {
	for i := range tw.entries {
		if tw.entries[i].Name == name {
			tw.entries[i] = TreeEntry{name, id, mode}
			return
		}
	}
	tw.entries = append(tw.entries, TreeEntry{name, id, mode})
}

// Git orders tree entries by name bytes, with directories compared as
// if their name had a trailing slash.  go-git's Tree.Encode writes
// entries in the order given, so the sort happens here.
func treeSortKey(e TreeEntry) string {
	if e.Mode == ModeDir {
		return e.Name + "/"
	}
	return e.Name
}

func (tw *gitTreeWriter) Finalize() (ObjectID, error) {
	sort.Slice(tw.entries, func(i, j int) bool {
		return treeSortKey(tw.entries[i]) < treeSortKey(tw.entries[j])
	})
	tree := object.Tree{}
	for _, e := range tw.entries {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: modeToFilemode(e.Mode),
			Hash: plumbing.NewHash(string(e.ID)),
		})
	}
	obj := tw.store.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return "", Errorf(cider.ErrRepositoryWrite, "encoding tree: %s", err)
	}
	return tw.store.setObject(obj)
}

func modeToFilemode(m Mode) filemode.FileMode {
	switch m {
	case ModeRegular:
		return filemode.Regular
	case ModeExecutable:
		return filemode.Executable
	case ModeSymlink:
		return filemode.Symlink
	case ModeDir:
		return filemode.Dir
	default:
		panic("invalid store.Mode")
	}
}

func (s *GitStore) PutCommit(opts CommitOpts) (ObjectID, error) {
	commit := object.Commit{
		Author:    s.sig,
		Committer: s.sig,
		Message:   opts.Message,
		TreeHash:  plumbing.NewHash(string(opts.Tree)),
	}
	for _, parent := range opts.Parents {
		commit.ParentHashes = append(commit.ParentHashes, plumbing.NewHash(string(parent)))
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", Errorf(cider.ErrRepositoryWrite, "encoding commit: %s", err)
	}
	return s.setObject(obj)
}

func (s *GitStore) PutTag(name string, commit ObjectID) error {
	tag := object.Tag{
		Name:       name,
		Tagger:     s.sig,
		Message:    "tagging",
		TargetType: plumbing.CommitObject,
		Target:     plumbing.NewHash(string(commit)),
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tag.Encode(obj); err != nil {
		return Errorf(cider.ErrRepositoryWrite, "encoding tag %q: %s", name, err)
	}
	tagID, err := s.setObject(obj)
	if err != nil {
		return err
	}
	// SetReference overwrites, which gives us the forced-tag behavior.
	ref := plumbing.NewReferenceFromStrings("refs/tags/"+name, string(tagID))
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return Errorf(cider.ErrRepositoryWrite, "updating tag ref %q: %s", name, err)
	}
	return nil
}

func (s *GitStore) SetBranch(name string, commit ObjectID) error {
	hash := plumbing.NewHash(string(commit))
	branchRef := plumbing.NewBranchReferenceName(name)
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
		return Errorf(cider.ErrRepositoryWrite, "updating branch %q: %s", name, err)
	}
	if err := s.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return Errorf(cider.ErrRepositoryWrite, "pointing HEAD at %q: %s", name, err)
	}
	wt, err := s.repo.Worktree()
	switch err {
	case nil:
		if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: hash}); err != nil {
			return Errorf(cider.ErrRepositoryWrite, "resetting working copy: %s", err)
		}
		return nil
	case git.ErrIsBareRepository:
		return nil
	default:
		return Errorf(cider.ErrRepositoryWrite, "opening working copy: %s", err)
	}
}
