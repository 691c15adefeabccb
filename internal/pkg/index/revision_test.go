// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package index

import "testing"

func TestRevisionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Revision
		want int
	}{
		{
			name: "int less",
			a:    IntRevision(3),
			b:    IntRevision(10),
			want: -1,
		},
		{
			name: "int equal",
			a:    IntRevision(3),
			b:    IntRevision(3),
			want: 0,
		},
		{
			name: "int greater",
			a:    IntRevision(10),
			b:    IntRevision(3),
			want: 1,
		},
		{
			// Mixed comparison coerces the integer side to its
			// decimal string: "3" sorts after "10".
			name: "int vs string matches string vs string",
			a:    IntRevision(3),
			b:    StringRevision("10"),
			want: 1,
		},
		{
			name: "string vs string",
			a:    StringRevision("3"),
			b:    StringRevision("10"),
			want: 1,
		},
		{
			name: "string equal",
			a:    StringRevision("20180727"),
			b:    StringRevision("20180727"),
			want: 0,
		},
		{
			name: "date strings",
			a:    StringRevision("20180727"),
			b:    StringRevision("20190101"),
			want: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Compare(tt.a); got != -tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestRevisionString(t *testing.T) {
	if got := IntRevision(42).String(); got != "42" {
		t.Errorf("IntRevision(42).String() = %q", got)
	}
	if got := StringRevision("20180727").String(); got != "20180727" {
		t.Errorf("StringRevision.String() = %q", got)
	}
}
