// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package index holds the template index model shared by the native and
// simple-streams parsers, and the native INI-with-subkeys parser
// itself.
package index

import (
	"fmt"

	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/trust"
)

// Note is one localized notes text attached to an entry.
type Note struct {
	// Lang is empty for the default language.
	Lang string
	Text string
}

// Entry is one template advertised by a repository index, keyed by
// (Name, Arch).
type Entry struct {
	// Name is the os-version identifier, e.g. "fedora-30".
	Name string
	// DisplayName is the optional human readable name.
	DisplayName string
	// OsinfoID is the optional libosinfo short id.
	OsinfoID string
	// FileURI is the absolute template URI, resolved against the
	// index location.
	FileURI string
	// Arch is the template architecture.
	Arch string
	// ArchGuessed is true when the architecture was not declared but
	// inferred, which only happens in template mode.
	ArchGuessed bool
	// SigURI is the optional detached signature URI.
	SigURI string
	// Checksums, when non-empty, are authoritative and the detached
	// signature is ignored.
	Checksums []trust.Checksum
	// Revision orders entries sharing (Name, Arch).
	Revision Revision
	// Format is the declared disk format, empty for unknown.
	Format string
	// Size is the uncompressed template size in bytes.
	Size int64
	// CompressedSize is the download size in bytes, -1 for unknown.
	CompressedSize int64
	// Expand is the optional partition to expand on resize.
	Expand string
	// LVExpand is the optional LVM logical volume to expand.
	LVExpand string
	// Notes are ordered (language, text) pairs.
	Notes []Note
	// Hidden entries are excluded from listings but still buildable.
	Hidden bool
	// Aliases are alternative names resolving to this entry.
	Aliases []string

	// Verifier is the trust chain of the source this entry came
	// from, used to verify the template itself.
	Verifier *trust.Chain
	// Proxy is inherited from the source.
	Proxy fetch.ProxyPolicy
}

// Key returns the (name, arch) dedup key.
func (e *Entry) Key() string {
	return e.Name + "\x00" + e.Arch
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (%s) revision %s", e.Name, e.Arch, e.Revision)
}

// Matches reports whether the entry is named nameOrAlias, directly or
// through one of its aliases.
func (e *Entry) Matches(nameOrAlias string) bool {
	if e.Name == nameOrAlias {
		return true
	}
	for _, a := range e.Aliases {
		if a == nameOrAlias {
			return true
		}
	}
	return false
}

// Resolve finds the entry for nameOrAlias and arch in a parsed entry
// list. Aliases resolve like names; the first match in source order
// wins.
func Resolve(entries []*Entry, nameOrAlias, arch string) (*Entry, error) {
	for _, e := range entries {
		if e.Arch == arch && e.Matches(nameOrAlias) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("cannot find os-version %q with architecture %q", nameOrAlias, arch)
}

// Dedup drops all but the highest-revision entry for each (name, arch)
// pair, keeping the first occurrence at that revision and preserving
// source order.
func Dedup(entries []*Entry) []*Entry {
	highest := make(map[string]Revision)
	for _, e := range entries {
		if best, ok := highest[e.Key()]; !ok || e.Revision.Compare(best) > 0 {
			highest[e.Key()] = e.Revision
		}
	}

	kept := make([]*Entry, 0, len(entries))
	taken := make(map[string]bool)
	for _, e := range entries {
		if taken[e.Key()] {
			continue
		}
		if e.Revision.Compare(highest[e.Key()]) == 0 {
			kept = append(kept, e)
			taken[e.Key()] = true
		}
	}
	return kept
}
