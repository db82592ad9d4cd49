/*
	Package catalog lists what the release site has published: release
	families, the tarballs composing each release, and the versioned
	tarballs of every standalone component.

	The site offers no API, so this is screen-scraping of its
	directory listing pages.  Page structure that doesn't match
	expectations surfaces as `cider.ErrMalformedMetadata`.
*/
package catalog

import (
	"context"
	"sort"
	"strings"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"

	"github.com/polydawn/cider"
	"github.com/polydawn/cider/config"
)

// PageFetcher resolves a URL to raw page bytes.  Satisfied by
// warehouse.Controller.
type PageFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// How many component listing pages to fetch at once in
// AllComponentVersions.
const listingFanout = 8

type Catalog struct {
	base    string // always ends with "/"
	fetcher PageFetcher
}

// New returns a catalog rooted at the configured base URL
// (opensource.apple.com unless overridden).
func New(fetcher PageFetcher) *Catalog {
	return NewWithBase(fetcher, config.GetCatalogBaseURL())
}

func NewWithBase(fetcher PageFetcher, base string) *Catalog {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Catalog{base: base, fetcher: fetcher}
}

func (c *Catalog) anchors(ctx context.Context, url string) ([]anchor, error) {
	page, err := c.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	anchors, err := parseAnchors(page)
	if err != nil {
		return nil, Errorf(cider.ErrMalformedMetadata, "parsing %s: %s", url, err)
	}
	return anchors, nil
}

/*
	Releases lists the published top-level software releases, ordered
	by entity then version.

	Release links look like `/release/<entity>-<version>.html`; the
	entity name is the part of the page stem before the final hyphen,
	and the displayed link text is the version.
*/
func (c *Catalog) Releases(ctx context.Context) (_ []ReleaseRecord, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	anchors, err := c.anchors(ctx, c.base)
	if err != nil {
		return nil, err
	}

	var records []ReleaseRecord
	for _, a := range anchors {
		if a.text == "" || a.imgSrc != "" {
			continue
		}
		page := strings.TrimPrefix(a.href, "/release/")
		stem, ok := strings.CutSuffix(page, ".html")
		if !ok {
			continue
		}
		cut := strings.LastIndex(stem, "-")
		if cut < 0 {
			return nil, Errorf(cider.ErrMalformedMetadata, "release link %q does not contain a '-'", page)
		}
		records = append(records, ReleaseRecord{
			Entity:  stem[:cut],
			Version: a.text,
			URL:     c.base + "release/" + page,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return CompareReleases(records[i], records[j]) < 0
	})
	return records, nil
}

/*
	ReleaseComponents lists the tarballs composing one release
	version.  The component name is the first path segment of the
	tarball's location under /tarballs/.
*/
func (c *Catalog) ReleaseComponents(ctx context.Context, record ReleaseRecord) (_ []ReleaseComponentRecord, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	anchors, err := c.anchors(ctx, record.URL)
	if err != nil {
		return nil, err
	}

	var records []ReleaseComponentRecord
	for _, a := range anchors {
		path, ok := strings.CutPrefix(a.href, "/tarballs/")
		if !ok {
			continue
		}
		stem, ok := strings.CutSuffix(path, ".tar.gz")
		if !ok {
			continue
		}
		cut := strings.Index(stem, "/")
		if cut < 0 {
			return nil, Errorf(cider.ErrMalformedMetadata, "tarball link %q does not have a '/'", path)
		}
		records = append(records, ReleaseComponentRecord{
			Entity:    record.Entity,
			Component: stem[:cut],
			URL:       c.base + "tarballs/" + path,
		})
	}
	return records, nil
}

/*
	Components lists the names of all standalone components with
	published tarballs, sorted.  The tarball index marks component
	directories with a folder icon.
*/
func (c *Catalog) Components(ctx context.Context) (_ []string, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	anchors, err := c.anchors(ctx, c.base+"tarballs")
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, a := range anchors {
		if !strings.Contains(a.imgSrc, "folder.png") {
			continue
		}
		name := strings.TrimSuffix(a.href, "/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

/*
	ComponentVersions lists the published versions of one component,
	ordered by version.  Tarball filenames look like
	`<component>-<version>.tar.gz`; the version is everything after
	the first hyphen.
*/
func (c *Catalog) ComponentVersions(ctx context.Context, component string) (_ []ComponentRecord, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	dirURL := c.base + "tarballs/" + component + "/"
	anchors, err := c.anchors(ctx, dirURL)
	if err != nil {
		return nil, err
	}

	var records []ComponentRecord
	for _, a := range anchors {
		if !strings.Contains(a.imgSrc, "/icons/gz") {
			continue
		}
		stem, ok := strings.CutSuffix(a.href, ".tar.gz")
		if !ok {
			continue
		}
		cut := strings.Index(stem, "-")
		if cut < 0 {
			return nil, Errorf(cider.ErrMalformedMetadata, "tarball filename %q does not contain a '-'", a.href)
		}
		records = append(records, ComponentRecord{
			Component: component,
			Filename:  a.href,
			URL:       dirURL + a.href,
			Version:   stem[cut+1:],
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return CompareComponents(records[i], records[j]) < 0
	})
	return records, nil
}

/*
	AllComponentVersions fetches the version listings of every
	component, a bounded number of pages at a time.  Components with
	no published tarballs are omitted from the result.  Any single
	listing failure fails the whole call.
*/
func (c *Catalog) AllComponentVersions(ctx context.Context) (_ map[string][]ComponentRecord, err error) {
	defer RequireErrorHasCategory(&err, cider.ErrorCategory(""))

	components, err := c.Components(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]ComponentRecord, len(components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listingFanout)
	for i, name := range components {
		i, name := i, name
		g.Go(func() error {
			records, err := c.ComponentVersions(gctx, name)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := map[string][]ComponentRecord{}
	for i, records := range results {
		if len(records) > 0 {
			out[components[i]] = records
		}
	}
	return out, nil
}
