package catalog

import (
	"strings"

	"github.com/polydawn/refmt/obj/atlas"

	"github.com/polydawn/cider/lib/vercmp"
)

// ReleaseRecord describes one published version of a top-level
// software release (e.g. one macOS release).  Produced by the
// catalog, consumed by the importer.  Immutable once constructed.
type ReleaseRecord struct {
	Entity  string
	Version string
	URL     string
}

// The catalog has published the same platform under several names
// over the years; these are all one entity for matching and ordering.
func isMacOS(s string) bool {
	switch s {
	case "macos", "os-x", "mac-os-x":
		return true
	}
	return false
}

// MatchesEntity reports whether this record belongs to the named
// entity.  Comparison is case-sensitive, except the historical macOS
// aliases are treated as equal.
func (r ReleaseRecord) MatchesEntity(s string) bool {
	return s == r.Entity || (isMacOS(s) && isMacOS(r.Entity))
}

// CompareReleases orders records: same-entity records by version;
// otherwise lexicographically by entity, version breaking ties.
func CompareReleases(a, b ReleaseRecord) int {
	if a.MatchesEntity(b.Entity) {
		return vercmp.Compare(a.Version, b.Version)
	}
	if c := strings.Compare(a.Entity, b.Entity); c != 0 {
		return c
	}
	return vercmp.Compare(a.Version, b.Version)
}

// ReleaseComponentRecord describes one archive contributing to a
// release version.  No intrinsic ordering.
type ReleaseComponentRecord struct {
	Entity    string
	Component string
	URL       string
}

// ComponentRecord describes one published version of a standalone
// component.
type ComponentRecord struct {
	Component string
	Filename  string
	URL       string
	Version   string
}

// CompareComponents orders records by component name, then version.
func CompareComponents(a, b ComponentRecord) int {
	if c := strings.Compare(a.Component, b.Component); c != 0 {
		return c
	}
	return vercmp.Compare(a.Version, b.Version)
}

// Atlas covers the record types for serialized CLI output.
var Atlas = atlas.MustBuild(
	atlas.BuildEntry(ReleaseRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ReleaseComponentRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ComponentRecord{}).StructMap().Autogenerate().Complete(),
)
