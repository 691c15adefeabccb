// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package virtbuild

import (
	"io"

	"github.com/virtbuild/virtbuild/internal/pkg/cache"
	"github.com/virtbuild/virtbuild/pkg/vbfs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

func cacheHandle(dir string) (*cache.Handle, error) {
	if dir == "" {
		dir = vbfs.CacheDir()
	}
	return cache.New(cache.Config{RootDir: dir})
}

// CacheClean removes every cached template.
func CacheClean(dir string) error {
	h, err := cacheHandle(dir)
	if err != nil {
		return err
	}
	vblog.Infof("Removing %s", h.Dir())
	return h.Clean()
}

// CacheList prints the cached templates.
func CacheList(w io.Writer, dir string) error {
	h, err := cacheHandle(dir)
	if err != nil {
		return err
	}
	return h.List(w, true)
}
