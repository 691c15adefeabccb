// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package index

import "strconv"

// Revision is a template revision: an integer in native indexes, an
// opaque string in simple-streams trees.
type Revision struct {
	num   int64
	str   string
	isInt bool
}

// IntRevision returns an integer revision.
func IntRevision(n int64) Revision {
	return Revision{num: n, isInt: true}
}

// StringRevision returns an opaque string revision.
func StringRevision(s string) Revision {
	return Revision{str: s}
}

// String returns the revision in the form used for cache file names.
func (r Revision) String() string {
	if r.isInt {
		return strconv.FormatInt(r.num, 10)
	}
	return r.str
}

// Compare orders two revisions. Homogeneous integer revisions compare
// numerically; any pair involving a string revision compares
// lexicographically after coercing the integer side to its decimal
// string form. The result is -1, 0 or 1.
func (r Revision) Compare(other Revision) int {
	if r.isInt && other.isInt {
		switch {
		case r.num < other.num:
			return -1
		case r.num > other.num:
			return 1
		}
		return 0
	}

	a, b := r.String(), other.String()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
