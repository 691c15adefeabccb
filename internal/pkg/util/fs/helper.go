// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fs provides the small set of file system helpers shared by the
// build components.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IsFile checks if the path is an existing regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsDir checks if the path is an existing directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsBlockDevice checks if the path is an existing block device.
func IsBlockDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

// RandomSuffix returns an 8 character lowercase hex string suitable for
// in-flight sibling file names.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// TmpSibling returns the in-flight sibling name for path, formed by
// appending a dot and a random 8 hex character suffix.
func TmpSibling(path string) string {
	return path + "." + RandomSuffix()
}

// CopyFile copies src to dst with the given permission bits, failing if
// dst exists.
func CopyFile(src, dst string, perm os.FileMode) (err error) {
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("while opening destination file: %v", err)
	}
	defer func() {
		dstFile.Close()
		if err != nil {
			os.Remove(dst)
		}
	}()

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("while opening source file: %v", err)
	}
	defer srcFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return fmt.Errorf("while copying file from %s to %s: %v", src, dst, err)
	}

	return dstFile.Close()
}

// CopyFileAtomic copies src to a random sibling of dst and renames it
// into place, so that dst never exists partially written.
func CopyFileAtomic(src, dst string, perm os.FileMode) error {
	tmp := TmpSibling(dst)
	if err := CopyFile(src, tmp, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("while renaming %s to %s: %v", tmp, dst, err)
	}
	return nil
}

// MkdirAll creates dir and any missing parents with the given mode. Dir
// itself gets that mode regardless of the process umask; created parents
// keep the umask applied.
func MkdirAll(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return err
	}
	return os.Chmod(dir, mode)
}

// Abs behaves like filepath.Abs but leaves URIs containing a scheme
// separator untouched.
func Abs(path string) (string, error) {
	if strings.Contains(path, "://") {
		return path, nil
	}
	return filepath.Abs(path)
}
