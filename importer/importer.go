/*
	Package importer builds version-controlled history out of released
	tarballs: one commit per published version, tagged with the
	version string, chained oldest to newest, with the working branch
	left on the newest version.

	Two shapes of history exist.  A standalone component maps each of
	its versions to the tree of one tarball.  A composite release maps
	each version to a root tree combining many component tarballs
	under directories named after the components; identical component
	archives recurring across versions are imported once per run via a
	URL-keyed tree cache.
*/
package importer

import (
	"context"
	"fmt"
	"path/filepath"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"

	"github.com/polydawn/cider"
	"github.com/polydawn/cider/catalog"
	"github.com/polydawn/cider/logging"
	"github.com/polydawn/cider/store"
	tartrans "github.com/polydawn/cider/transmat/tar"
)

// The branch every import leaves the repository on.
const BranchName = "main"

// How many repositories to build at once in AllComponentRepositories.
const repoFanout = 4

// MetadataSource supplies the catalog listings the importer consumes.
// Satisfied by catalog.Catalog.
type MetadataSource interface {
	Releases(ctx context.Context) ([]catalog.ReleaseRecord, error)
	ReleaseComponents(ctx context.Context, record catalog.ReleaseRecord) ([]catalog.ReleaseComponentRecord, error)
	Components(ctx context.Context) ([]string, error)
	ComponentVersions(ctx context.Context, component string) ([]catalog.ComponentRecord, error)
}

// Fetcher resolves an archive URL to raw bytes.  Satisfied by
// warehouse.Controller.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// chain tracks commit chaining: nil until the first version commits,
// afterwards the last commit written.
type chain struct {
	last *store.ObjectID
}

// commitVersion creates the commit for one version's tree, parented
// on the previous version's commit if any, tags it (forcibly) with
// the version string, and advances the chain.
func (c *chain) commitVersion(st store.Store, tree store.ObjectID, version string, message string) (store.ObjectID, error) {
	var parents []store.ObjectID
	if c.last != nil {
		parents = []store.ObjectID{*c.last}
	}
	commit, err := st.PutCommit(store.CommitOpts{Tree: tree, Parents: parents, Message: message})
	if err != nil {
		return "", err
	}
	if err := st.PutTag(version, commit); err != nil {
		return "", err
	}
	c.last = &commit
	return commit, nil
}

// finish points the working branch at the last commit, if there is
// one.  An empty chain leaves the repository with no branch update.
func (c *chain) finish(st store.Store) error {
	if c.last == nil {
		return nil
	}
	return st.SetBranch(BranchName, *c.last)
}

/*
	ComponentRepository imports every published version of one
	standalone component into the given store, oldest version first.

	A fetch or conversion failure aborts the rest of the run for this
	component; commits already written stay in place.
*/
func ComponentRepository(ctx context.Context, src MetadataSource, fetcher Fetcher, st store.Store, component string) (err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	records, err := src.ComponentVersions(ctx, component)
	if err != nil {
		return err
	}

	ch := chain{}
	for _, record := range records {
		archive, err := fetcher.FetchBytes(ctx, record.URL)
		if err != nil {
			return err
		}
		tree, err := tartrans.TreeFromArchive(ctx, st, archive)
		if err != nil {
			return err
		}
		message := fmt.Sprintf("%s %s\n\nDownloaded from %s\n", record.Component, record.Version, record.URL)
		commit, err := ch.commitVersion(st, tree, record.Version, message)
		if err != nil {
			return err
		}
		logging.Info("committed version", "component", record.Component, "version", record.Version, "commit", commit)
	}
	return ch.finish(st)
}

/*
	AllComponentRepositories imports every catalog component into its
	own repository at dest/<component>, a bounded number at a time.

	Component failures are logged and do not disturb sibling imports;
	only a failure to list the components at all is returned.
*/
func AllComponentRepositories(ctx context.Context, src MetadataSource, fetcher Fetcher, dest string, bare bool) (err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	components, err := src.Components(ctx)
	if err != nil {
		return err
	}

	errs := make([]error, len(components))
	var g errgroup.Group
	g.SetLimit(repoFanout)
	for i, name := range components {
		i, name := i, name
		g.Go(func() error {
			st, err := store.InitGit(filepath.Join(dest, name), bare)
			if err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = ComponentRepository(ctx, src, fetcher, st, name)
			return nil
		})
	}
	g.Wait()

	for i, err := range errs {
		if err != nil {
			logging.Error("component import failed", "component", components[i], "err", err)
		}
	}
	return nil
}

/*
	ReleaseRepository imports every version of one release family into
	the given store.  Each version's tree combines the trees of its
	component archives, one subdirectory per component.

	Component archives that fail to fetch or convert are logged and
	omitted from that version's tree; the version still commits.
	Failures listing the releases themselves, or a version's component
	listing, are fatal.
*/
func ReleaseRepository(ctx context.Context, src MetadataSource, fetcher Fetcher, st store.Store, release string) (err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	records, err := src.Releases(ctx)
	if err != nil {
		return err
	}

	// Maps a component archive URL to the tree already built for it.
	// Scoped to this whole run, so identical archives shared between
	// consecutive release versions import exactly once.
	seenTrees := map[string]store.ObjectID{}

	ch := chain{}
	for _, record := range records {
		if !record.MatchesEntity(release) {
			continue
		}
		logging.Info("building commit", "entity", record.Entity, "version", record.Version)

		components, err := src.ReleaseComponents(ctx, record)
		if err != nil {
			return err
		}

		root := st.NewTree()
		var missing []catalog.ReleaseComponentRecord
		for _, component := range components {
			if tree, ok := seenTrees[component.URL]; ok {
				logging.Info("using already imported archive", "url", component.URL)
				root.Insert(component.Component, tree, store.ModeDir)
			} else {
				missing = append(missing, component)
			}
		}

		// Fetches fan out; all must land before any tree is written,
		// since the store takes writes from one goroutine only.
		archives := fetchAll(ctx, fetcher, missing)

		for i, component := range missing {
			if archives[i].err != nil {
				logging.Warn("failed to download; skipping", "url", component.URL, "err", archives[i].err)
				continue
			}
			tree, err := tartrans.TreeFromArchive(ctx, st, archives[i].data)
			if err != nil {
				logging.Warn("failed to convert to tree; skipping", "url", component.URL, "err", err)
				continue
			}
			logging.Info("imported archive", "url", component.URL)
			seenTrees[component.URL] = tree
			root.Insert(component.Component, tree, store.ModeDir)
		}

		tree, err := root.Finalize()
		if err != nil {
			return err
		}
		message := fmt.Sprintf("%s %s", record.Entity, record.Version)
		commit, err := ch.commitVersion(st, tree, record.Version, message)
		if err != nil {
			return err
		}
		logging.Info("committed version", "entity", record.Entity, "version", record.Version, "commit", commit)
	}
	return ch.finish(st)
}

type fetchResult struct {
	data []byte
	err  error
}

// fetchAll launches every fetch concurrently and joins before
// returning.  Results line up with the given records; failures are
// per-record, never collective.
func fetchAll(ctx context.Context, fetcher Fetcher, records []catalog.ReleaseComponentRecord) []fetchResult {
	results := make([]fetchResult, len(records))
	var g errgroup.Group
	for i, record := range records {
		i, record := i, record
		g.Go(func() error {
			data, err := fetcher.FetchBytes(ctx, record.URL)
			results[i] = fetchResult{data, err}
			return nil
		})
	}
	g.Wait()
	return results
}
