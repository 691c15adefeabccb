// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package bin

import (
	"os/exec"
	"testing"
)

func TestFindBin(t *testing.T) {
	tests := []struct {
		name    string
		bin     string
		wantErr bool
	}{
		{
			name:    "cp",
			bin:     "cp",
			wantErr: false,
		},
		{
			name:    "mv",
			bin:     "mv",
			wantErr: false,
		},
		{
			name:    "unknown",
			bin:     "not-a-tool",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.wantErr {
				if _, err := exec.LookPath(tt.bin); err != nil {
					t.Skipf("%s not found in $PATH", tt.bin)
				}
			}
			path, err := FindBin(tt.bin)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindBin(%q) error = %v, wantErr %v", tt.bin, err, tt.wantErr)
			}
			if err == nil && path == "" {
				t.Errorf("FindBin(%q) returned empty path", tt.bin)
			}
		})
	}
}

func TestFindBinEnvOverride(t *testing.T) {
	cpPath, err := exec.LookPath("cp")
	if err != nil {
		t.Skipf("cp not found in $PATH")
	}

	t.Setenv("VIRTBUILD_QEMU_IMG_PATH", cpPath)

	path, err := FindBin("qemu-img")
	if err != nil {
		t.Fatalf("FindBin(qemu-img) with override: %v", err)
	}
	if path != cpPath {
		t.Errorf("FindBin(qemu-img) = %q, want %q", path, cpPath)
	}
}
