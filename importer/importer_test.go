package importer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "github.com/warpfork/go-errcat"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/storage/memory"

	"github.com/polydawn/cider"
	"github.com/polydawn/cider/catalog"
	"github.com/polydawn/cider/logging"
	"github.com/polydawn/cider/store"
	"github.com/polydawn/cider/testutil"
)

// stubSource serves canned catalog listings.
type stubSource struct {
	releases          []catalog.ReleaseRecord
	releaseComponents map[string][]catalog.ReleaseComponentRecord // keyed by release version
	components        []string
	versions          map[string][]catalog.ComponentRecord
	versionsErr       map[string]error
}

func (s *stubSource) Releases(ctx context.Context) ([]catalog.ReleaseRecord, error) {
	return s.releases, nil
}

func (s *stubSource) ReleaseComponents(ctx context.Context, record catalog.ReleaseRecord) ([]catalog.ReleaseComponentRecord, error) {
	return s.releaseComponents[record.Version], nil
}

func (s *stubSource) Components(ctx context.Context) ([]string, error) {
	return s.components, nil
}

func (s *stubSource) ComponentVersions(ctx context.Context, component string) ([]catalog.ComponentRecord, error) {
	if err := s.versionsErr[component]; err != nil {
		return nil, err
	}
	return s.versions[component], nil
}

// stubFetcher serves canned archives by URL and counts the fetches.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	count map[string]int
}

func newStubFetcher(pages map[string][]byte) *stubFetcher {
	return &stubFetcher{pages: pages, count: map[string]int{}}
}

func (f *stubFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count[url]++
	if data, ok := f.pages[url]; ok {
		return data, nil
	}
	return nil, Errorf(cider.ErrTransport, "%s not found (HTTP 404)", url)
}

func memStore() *store.GitStore {
	st, err := store.InitGitStorage(memory.NewStorage(), nil)
	if err != nil {
		panic(err)
	}
	return st
}

// tipCommit resolves the given branch to its commit object.
func tipCommit(repo *git.Repository, branch string) *object.Commit {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	So(err, ShouldBeNil)
	commit, err := repo.CommitObject(ref.Hash())
	So(err, ShouldBeNil)
	return commit
}

// taggedCommit resolves an annotated tag to the commit it targets.
func taggedCommit(repo *git.Repository, name string) *object.Commit {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/tags/"+name), false)
	So(err, ShouldBeNil)
	tag, err := repo.TagObject(ref.Hash())
	So(err, ShouldBeNil)
	commit, err := tag.Commit()
	So(err, ShouldBeNil)
	return commit
}

// manifest flattens a commit's tree into path->mode.
func manifest(repo *git.Repository, commit *object.Commit) map[string]filemode.FileMode {
	tree, err := commit.Tree()
	So(err, ShouldBeNil)
	out := map[string]filemode.FileMode{}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		out[name] = entry.Mode
	}
	return out
}

func TestComponentRepository(t *testing.T) {
	Convey("Standalone component import", t, func() {
		ctx := context.Background()
		src := &stubSource{
			versions: map[string][]catalog.ComponentRecord{
				"sample": {
					{Component: "sample", Version: "1.0", Filename: "sample-1.0.tar.gz", URL: "https://w.test/sample-1.0.tar.gz"},
					{Component: "sample", Version: "1.1", Filename: "sample-1.1.tar.gz", URL: "https://w.test/sample-1.1.tar.gz"},
				},
			},
		}
		fetcher := newStubFetcher(map[string][]byte{
			"https://w.test/sample-1.0.tar.gz": testutil.GzipTarball(
				testutil.TarEntry{Name: "sample-1.0/README", Body: []byte("v1.0\n"), Mode: 0644},
				testutil.TarEntry{Name: "sample-1.0/src/main.c", Body: []byte("int main;\n"), Mode: 0644},
			),
			"https://w.test/sample-1.1.tar.gz": testutil.GzipTarball(
				testutil.TarEntry{Name: "sample-1.1/README", Body: []byte("v1.1\n"), Mode: 0644},
				testutil.TarEntry{Name: "sample-1.1/src/main.c", Body: []byte("int main;\n"), Mode: 0644},
			),
		})

		Convey("two versions chain into tagged history on the branch", func() {
			st := memStore()
			err := ComponentRepository(ctx, src, fetcher, st, "sample")
			So(err, ShouldBeNil)

			repo := st.Repository()
			tip := tipCommit(repo, BranchName)
			So(tip.Message, ShouldEqual, "sample 1.1\n\nDownloaded from https://w.test/sample-1.1.tar.gz\n")
			So(len(tip.ParentHashes), ShouldEqual, 1)

			parent, err := tip.Parent(0)
			So(err, ShouldBeNil)
			So(parent.Message, ShouldStartWith, "sample 1.0\n")
			So(len(parent.ParentHashes), ShouldEqual, 0)

			So(taggedCommit(repo, "1.1").Hash, ShouldResemble, tip.Hash)
			So(taggedCommit(repo, "1.0").Hash, ShouldResemble, parent.Hash)

			// Archive content lands at the root, top directory stripped.
			files := manifest(repo, tip)
			So(files["README"], ShouldEqual, filemode.Regular)
			So(files["src"], ShouldEqual, filemode.Dir)
			So(files["src/main.c"], ShouldEqual, filemode.Regular)
		})
		Convey("a version that fails to fetch aborts the run", func() {
			src := &stubSource{
				versions: map[string][]catalog.ComponentRecord{
					"sample": {
						{Component: "sample", Version: "1.0", URL: "https://w.test/sample-1.0.tar.gz"},
						{Component: "sample", Version: "1.1", URL: "https://w.test/gone.tar.gz"},
					},
				},
			}
			st := memStore()
			err := ComponentRepository(ctx, src, fetcher, st, "sample")
			So(err, ShouldNotBeNil)
			So(Category(err), ShouldEqual, cider.ErrTransport)

			// The first version's objects stay, but no branch points at them.
			repo := st.Repository()
			_, err = repo.Reference(plumbing.NewBranchReferenceName(BranchName), false)
			So(err, ShouldEqual, plumbing.ErrReferenceNotFound)
			So(taggedCommit(repo, "1.0").Message, ShouldStartWith, "sample 1.0\n")
		})
		Convey("no published versions means no branch at all", func() {
			src := &stubSource{versions: map[string][]catalog.ComponentRecord{}}
			st := memStore()
			err := ComponentRepository(ctx, src, fetcher, st, "sample")
			So(err, ShouldBeNil)
			_, err = st.Repository().Reference(plumbing.NewBranchReferenceName(BranchName), false)
			So(err, ShouldEqual, plumbing.ErrReferenceNotFound)
		})
	})
}

func TestReleaseRepository(t *testing.T) {
	Convey("Composite release import", t, func() {
		ctx := context.Background()
		archiveA := testutil.GzipTarball(
			testutil.TarEntry{Name: "alpha-1/alpha.c", Body: []byte("a\n"), Mode: 0644},
		)
		archiveB := testutil.GzipTarball(
			testutil.TarEntry{Name: "beta-5/beta.c", Body: []byte("b\n"), Mode: 0644},
		)
		src := &stubSource{
			releases: []catalog.ReleaseRecord{
				{Entity: "os-x", Version: "10.10", URL: "https://w.test/release/os-x-1010.html"},
				{Entity: "macos", Version: "11.0", URL: "https://w.test/release/macos-110.html"},
				{Entity: "xnu-standalone", Version: "1.0", URL: "https://w.test/release/xnu-standalone-10.html"},
			},
			releaseComponents: map[string][]catalog.ReleaseComponentRecord{
				"10.10": {
					{Entity: "os-x", Component: "alpha", URL: "https://w.test/tarballs/alpha/alpha-1.tar.gz"},
				},
				"11.0": {
					{Entity: "macos", Component: "alpha", URL: "https://w.test/tarballs/alpha/alpha-1.tar.gz"},
					{Entity: "macos", Component: "beta", URL: "https://w.test/tarballs/beta/beta-5.tar.gz"},
				},
			},
		}

		Convey("versions across aliased entities chain, components become subdirectories", func() {
			fetcher := newStubFetcher(map[string][]byte{
				"https://w.test/tarballs/alpha/alpha-1.tar.gz": archiveA,
				"https://w.test/tarballs/beta/beta-5.tar.gz":   archiveB,
			})
			st := memStore()
			err := ReleaseRepository(ctx, src, fetcher, st, "macos")
			So(err, ShouldBeNil)

			repo := st.Repository()
			tip := tipCommit(repo, BranchName)
			So(tip.Message, ShouldEqual, "macos 11.0")
			parent, err := tip.Parent(0)
			So(err, ShouldBeNil)
			So(parent.Message, ShouldEqual, "os-x 10.10")

			files := manifest(repo, tip)
			So(files["alpha"], ShouldEqual, filemode.Dir)
			So(files["alpha/alpha.c"], ShouldEqual, filemode.Regular)
			So(files["beta/beta.c"], ShouldEqual, filemode.Regular)

			// The shared alpha archive was fetched only once.
			So(fetcher.count["https://w.test/tarballs/alpha/alpha-1.tar.gz"], ShouldEqual, 1)
		})
		Convey("a component that fails to fetch is omitted, the version still commits", func() {
			fetcher := newStubFetcher(map[string][]byte{
				"https://w.test/tarballs/alpha/alpha-1.tar.gz": archiveA,
			})
			st := memStore()
			var warnings strings.Builder
			prev := logging.Redirect(&warnings)
			err := ReleaseRepository(ctx, src, fetcher, st, "macos")
			logging.Redirect(prev)
			So(err, ShouldBeNil)

			repo := st.Repository()
			tip := tipCommit(repo, BranchName)
			So(tip.Message, ShouldEqual, "macos 11.0")
			files := manifest(repo, tip)
			So(files["alpha/alpha.c"], ShouldEqual, filemode.Regular)
			_, hasBeta := files["beta"]
			So(hasBeta, ShouldBeFalse)
			So(warnings.String(), ShouldContainSubstring, "failed to download")
			So(warnings.String(), ShouldContainSubstring, "beta-5.tar.gz")
		})
		Convey("an entity with no matching releases leaves the repository empty", func() {
			fetcher := newStubFetcher(nil)
			st := memStore()
			err := ReleaseRepository(ctx, src, fetcher, st, "developer-tools")
			So(err, ShouldBeNil)
			_, err = st.Repository().Reference(plumbing.NewBranchReferenceName(BranchName), false)
			So(err, ShouldEqual, plumbing.ErrReferenceNotFound)
		})
	})
}

func TestAllComponentRepositories(t *testing.T) {
	Convey("Full component sweep", t, func() {
		ctx := context.Background()
		src := &stubSource{
			components: []string{"bad", "good"},
			versions: map[string][]catalog.ComponentRecord{
				"good": {
					{Component: "good", Version: "1.0", URL: "https://w.test/good-1.0.tar.gz"},
				},
			},
			versionsErr: map[string]error{
				"bad": Errorf(cider.ErrTransport, "listing unavailable"),
			},
		}
		fetcher := newStubFetcher(map[string][]byte{
			"https://w.test/good-1.0.tar.gz": testutil.GzipTarball(
				testutil.TarEntry{Name: "good-1.0/hello", Body: []byte("hi\n"), Mode: 0644},
			),
		})

		Convey("one failing component does not disturb the rest", func() {
			testutil.WithTmpdir(func(tmpDir string) {
				var msgs strings.Builder
				prev := logging.Redirect(&msgs)
				err := AllComponentRepositories(ctx, src, fetcher, tmpDir, true)
				logging.Redirect(prev)
				So(err, ShouldBeNil)
				So(msgs.String(), ShouldContainSubstring, "component import failed")

				repo, err := git.PlainOpen(filepath.Join(tmpDir, "good"))
				So(err, ShouldBeNil)
				tip := tipCommit(repo, BranchName)
				So(tip.Message, ShouldStartWith, "good 1.0\n")
				files := manifest(repo, tip)
				So(files["hello"], ShouldEqual, filemode.Regular)
			})
		})
	})
}
