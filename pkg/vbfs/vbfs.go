// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package vbfs provides functions to access virtbuild's file system
// layout, following the XDG base directory specification. Paths are
// resolved on every call so tests and wrapper processes can adjust the
// environment.
package vbfs

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/virtbuild/virtbuild/pkg/vblog"
)

const (
	progDir = "virtbuild"
	// ReposDir is the per-source configuration directory scanned below
	// each XDG config directory.
	ReposDir = "repos.d"
)

func homeDir() string {
	homedir := os.Getenv("HOME")
	if homedir != "" {
		return homedir
	}

	u, err := user.Current()
	if err != nil {
		vblog.Warningf("Could not lookup the current user's information: %s", err)

		cwd, err := os.Getwd()
		if err != nil {
			vblog.Warningf("Could not get current working directory: %s", err)
			return "."
		}
		return cwd
	}
	return u.HomeDir
}

// CacheDir returns the directory where downloaded templates are kept
// across invocations, honoring XDG_CACHE_HOME.
func CacheDir() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(homeDir(), ".cache")
	}
	return filepath.Join(cacheHome, progDir)
}

// ConfigDir returns the per-user virtbuild configuration directory,
// honoring XDG_CONFIG_HOME.
func ConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(homeDir(), ".config")
	}
	return filepath.Join(configHome, progDir)
}

// AmbientKeyring returns the default keyring file searched when a
// source pins a key by fingerprint.
func AmbientKeyring() string {
	return filepath.Join(ConfigDir(), "pubring.pgp")
}

// ConfigDirs returns the ordered list of directories searched for
// repos.d source descriptors: the user configuration directory first,
// then each entry of XDG_CONFIG_DIRS (default /etc/xdg).
func ConfigDirs() []string {
	dirs := []string{ConfigDir()}

	sysDirs := os.Getenv("XDG_CONFIG_DIRS")
	if sysDirs == "" {
		sysDirs = "/etc/xdg"
	}
	for _, d := range strings.Split(sysDirs, ":") {
		if d == "" {
			continue
		}
		dirs = append(dirs, filepath.Join(d, progDir))
	}
	return dirs
}
