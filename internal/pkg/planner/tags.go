// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package planner

import (
	"fmt"
	"strings"
)

// Tags is the planner state: which properties the image file has at a
// given point of the pipeline. The zero value of a field means the tag
// is absent.
type Tags struct {
	// Template marks the file as the pristine (possibly shared)
	// template that must not be modified in place.
	Template bool
	// Filename is the current file path.
	Filename string
	// Size is the virtual disk size in bytes.
	Size int64
	// Format is the disk format, e.g. "raw" or "qcow2".
	Format string
	// XZ marks the file as xz-compressed.
	XZ bool
}

// Key names one tag for goal exclusion sets.
type Key int

const (
	KeyTemplate Key = iota
	KeyFilename
	KeySize
	KeyFormat
	KeyXZ
)

func (k Key) String() string {
	switch k {
	case KeyTemplate:
		return "template"
	case KeyFilename:
		return "filename"
	case KeySize:
		return "size"
	case KeyFormat:
		return "format"
	case KeyXZ:
		return "xz"
	}
	return "unknown"
}

// Goal is what a finished plan must look like: every tag set in Have
// must be present with an equal value, and every key in NotKeys must be
// absent.
type Goal struct {
	Have    Tags
	NotKeys []Key
}

// Satisfies reports whether the tag set meets the goal.
func (t Tags) Satisfies(goal Goal) bool {
	have := goal.Have
	if have.Template && !t.Template {
		return false
	}
	if have.Filename != "" && t.Filename != have.Filename {
		return false
	}
	if have.Size != 0 && t.Size != have.Size {
		return false
	}
	if have.Format != "" && t.Format != have.Format {
		return false
	}
	if have.XZ && !t.XZ {
		return false
	}

	for _, k := range goal.NotKeys {
		switch k {
		case KeyTemplate:
			if t.Template {
				return false
			}
		case KeyFilename:
			if t.Filename != "" {
				return false
			}
		case KeySize:
			if t.Size != 0 {
				return false
			}
		case KeyFormat:
			if t.Format != "" {
				return false
			}
		case KeyXZ:
			if t.XZ {
				return false
			}
		}
	}
	return true
}

func (t Tags) String() string {
	var parts []string
	if t.Template {
		parts = append(parts, "template")
	}
	if t.Filename != "" {
		parts = append(parts, "filename="+t.Filename)
	}
	if t.Size != 0 {
		parts = append(parts, fmt.Sprintf("size=%d", t.Size))
	}
	if t.Format != "" {
		parts = append(parts, "format="+t.Format)
	}
	if t.XZ {
		parts = append(parts, "xz")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
