// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package customize

import "os"

// hostTemp is a short-lived host file used to shuttle guest file
// contents through a transformation.
type hostTemp struct {
	path string
}

func hostTempFile() (*hostTemp, error) {
	f, err := os.CreateTemp("", "virtbuild-edit-")
	if err != nil {
		return nil, err
	}
	f.Close()
	return &hostTemp{path: f.Name()}, nil
}

func (h *hostTemp) read() ([]byte, error) {
	return os.ReadFile(h.path)
}

func (h *hostTemp) cleanup() {
	os.Remove(h.path)
}
