package vercmp

import (
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompare(t *testing.T) {
	Convey("Version comparison heuristics", t, func() {
		Convey("numeric segments compare by magnitude", func() {
			So(Compare("1.9", "1.10"), ShouldEqual, -1)
			So(Compare("1.10", "1.9"), ShouldEqual, 1)
			So(Compare("2", "10"), ShouldEqual, -1)
			So(Compare("10.4.11", "10.4.2"), ShouldEqual, 1)
		})
		Convey("equal strings compare equal", func() {
			So(Compare("1.2.3", "1.2.3"), ShouldEqual, 0)
		})
		Convey("missing trailing segments count as zero", func() {
			So(Compare("1.2.1", "1.2"), ShouldEqual, 1)
			So(Compare("1.2", "1.2.1"), ShouldEqual, -1)
		})
		Convey("numerically equal strings fall back to lexicographic", func() {
			So(Compare("1.2", "1.2.0"), ShouldEqual, -1)
			So(Compare("1.2.0", "1.2"), ShouldEqual, 1)
		})
		Convey("textual tokens compare lexicographically", func() {
			So(Compare("alpha", "beta"), ShouldEqual, -1)
			So(Compare("1.0b2", "1.0b10"), ShouldEqual, 1) // known anomaly
		})
		Convey("sorts a realistic listing", func() {
			versions := []string{"10.10", "10.2", "9.8", "10.9.5"}
			sort.Slice(versions, func(i, j int) bool {
				return Compare(versions[i], versions[j]) < 0
			})
			So(versions, ShouldResemble, []string{"9.8", "10.2", "10.9.5", "10.10"})
		})
	})
}
