// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cache provides the content-addressable template cache. A
// template is keyed by (name, arch, revision); the canonical file name
// under the cache directory is "<name>.<arch>.<revision>". A file at the
// canonical name is always complete and trust-verified: downloads land
// in a random sibling and are renamed into place only after
// verification, so concurrent builders sharing one cache directory never
// observe partial files.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/util/fs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// Config describes how to create a cache handle.
type Config struct {
	// RootDir overrides the default cache location.
	RootDir string
	// Disable reports all lookups as misses and makes GetEntry fail.
	Disable bool
}

// Handle provides access to a cache directory.
type Handle struct {
	rootDir  string
	disabled bool
}

// Entry is the cache entry for one (name, arch, revision) key.
type Entry struct {
	// Exists is true when the canonical file is already present.
	Exists bool
	// Path is the canonical file path.
	Path string
	// TmpPath is the random sibling to download into before
	// Finalize renames it over Path.
	TmpPath string
}

// New creates a cache handle for cfg. The directory is created with
// permissions 0755 if missing.
func New(cfg Config) (*Handle, error) {
	if cfg.Disable {
		return &Handle{disabled: true}, nil
	}

	rootDir := cfg.RootDir
	if rootDir == "" {
		return nil, fmt.Errorf("%w: no cache directory specified", errkind.ErrCache)
	}

	if err := fs.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: could not create cache directory %s: %v", errkind.ErrCache, rootDir, err)
	}

	return &Handle{rootDir: rootDir}, nil
}

// IsDisabled returns true if the cache is disabled.
func (h *Handle) IsDisabled() bool {
	return h.disabled
}

// Dir returns the cache directory.
func (h *Handle) Dir() string {
	return h.rootDir
}

// FileName is the pure string transform from a template key to its
// canonical file name.
func FileName(name, arch, revision string) string {
	return fmt.Sprintf("%s.%s.%s", name, arch, revision)
}

// PathOf returns the canonical path for a template key.
func (h *Handle) PathOf(name, arch, revision string) string {
	return filepath.Join(h.rootDir, FileName(name, arch, revision))
}

// IsCached checks for the presence of the canonical file. It does not
// re-verify the trust chain: verification happens before the file is
// installed under the canonical name.
func (h *Handle) IsCached(name, arch, revision string) bool {
	if h.disabled {
		return false
	}
	return fs.IsFile(h.PathOf(name, arch, revision))
}

// GetEntry returns the entry for a template key. The caller downloads
// into TmpPath, verifies, then calls Finalize; CleanTmp should be
// deferred in all cases.
func (h *Handle) GetEntry(name, arch, revision string) (*Entry, error) {
	if h.disabled {
		return nil, fmt.Errorf("%w: cache is disabled", errkind.ErrCache)
	}

	path := h.PathOf(name, arch, revision)
	return &Entry{
		Exists:  fs.IsFile(path),
		Path:    path,
		TmpPath: fs.TmpSibling(path),
	}, nil
}

// Finalize renames the temporary download to the canonical name. It must
// only be called after trust verification succeeded.
func (e *Entry) Finalize() error {
	if err := os.Rename(e.TmpPath, e.Path); err != nil {
		return fmt.Errorf("%w: could not install %s: %v", errkind.ErrCache, e.Path, err)
	}
	e.Exists = true
	return nil
}

// CleanTmp removes the temporary download file if still present.
func (e *Entry) CleanTmp() {
	if err := os.Remove(e.TmpPath); err != nil && !os.IsNotExist(err) {
		vblog.Warningf("Could not remove %s: %v", e.TmpPath, err)
	}
}

// Clean removes every file below the cache directory.
func (h *Handle) Clean() error {
	if h.disabled {
		return nil
	}
	if err := os.RemoveAll(h.rootDir); err != nil {
		return fmt.Errorf("%w: could not clean %s: %v", errkind.ErrCache, h.rootDir, err)
	}
	return nil
}

// List writes a listing of the cached templates to w, sorted by file
// name, with an optional header line.
func (h *Handle) List(w io.Writer, header bool) error {
	if h.disabled {
		return nil
	}

	entries, err := os.ReadDir(h.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: could not read %s: %v", errkind.ErrCache, h.rootDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if header {
		fmt.Fprintf(tw, "NAME\tSIZE\n")
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\n", ent.Name(), info.Size())
	}
	return tw.Flush()
}
