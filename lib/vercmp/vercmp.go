/*
	Best-effort ordering for version strings.

	This comparison is a heuristic and is likely wrong in edge cases!
	It exists to put release tarball listings in a sane-looking order,
	not to implement any versioning standard.  Callers must tolerate
	anomalies: purely textual tokens compare lexicographically, and
	mixed alphanumeric segments may order surprisingly.
*/
package vercmp

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0, or +1 ordering version strings a and b.
//
// Both strings are split on '.'; segments are compared positionally,
// numerically when both sides parse as non-negative integers.  The
// first unequal numeric pair decides.  Missing trailing segments on
// the b side count as "0".  If no numeric pair decides, the full
// original strings are compared lexicographically.
func Compare(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i, aPart := range aParts {
		bPart := "0"
		if i < len(bParts) {
			bPart = bParts[i]
		}

		aInt, aErr := strconv.ParseUint(aPart, 10, 32)
		bInt, bErr := strconv.ParseUint(bPart, 10, 32)
		if aErr != nil || bErr != nil {
			continue
		}
		switch {
		case aInt < bInt:
			return -1
		case aInt > bInt:
			return 1
		}
	}

	return strings.Compare(a, b)
}
