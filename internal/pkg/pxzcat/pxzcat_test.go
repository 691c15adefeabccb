// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package pxzcat

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// makeTestData builds data with compressible runs and zero holes so
// both the multi-block path and the sparse write path are exercised.
func makeTestData(t *testing.T, size int) []byte {
	t.Helper()
	rnd := rand.New(rand.NewSource(1))
	data := make([]byte, size)
	for off := 0; off < size; off += 64 * 1024 {
		end := off + 64*1024
		if end > size {
			end = size
		}
		switch (off / (64 * 1024)) % 3 {
		case 0:
			rnd.Read(data[off:end])
		case 1:
			// leave as zeros
		case 2:
			for i := off; i < end; i++ {
				data[i] = 'a'
			}
		}
	}
	return data
}

// xzCompress compresses data with the system xz, or skips the test.
func xzCompress(t *testing.T, data []byte, args ...string) string {
	t.Helper()
	if _, err := exec.LookPath("xz"); err != nil {
		t.Skipf("xz not found in $PATH")
	}

	raw := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(raw, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command("xz", append(args, raw)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("xz: %v: %s", err, out)
	}
	return raw + ".xz"
}

func TestDecompressSingleBlock(t *testing.T) {
	data := makeTestData(t, 256*1024)
	in := xzCompress(t, data)
	out := filepath.Join(t.TempDir(), "out")

	if err := Decompress(in, out); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}
}

func TestDecompressMultiBlock(t *testing.T) {
	data := makeTestData(t, 1024*1024)
	in := xzCompress(t, data, "--block-size=65536")
	out := filepath.Join(t.TempDir(), "out")

	if err := Decompress(in, out); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}

	// The output must be exactly the advertised size, holes included.
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("output size %d, want %d", info.Size(), len(data))
	}
}

func TestDecompressMultiStream(t *testing.T) {
	first := makeTestData(t, 128*1024)
	second := bytes.Repeat([]byte{'b'}, 64*1024)

	a := xzCompress(t, first)
	b := xzCompress(t, second)

	concat := filepath.Join(t.TempDir(), "concat.xz")
	aData, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	bData, err := os.ReadFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(concat, append(aData, bData...), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "out")
	if err := Decompress(concat, out); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, append(first, second...)) {
		t.Error("multi-stream round trip mismatch")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	in := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(in, bytes.Repeat([]byte{0x42}, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Decompress(in, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Decompress: got %v, want format error", err)
	}
}

func TestDecompressRejectsTruncated(t *testing.T) {
	data := makeTestData(t, 128*1024)
	in := xzCompress(t, data)

	raw, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(t.TempDir(), "short.xz")
	if err := os.WriteFile(truncated, raw[:len(raw)/2], 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Decompress(truncated, filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("Decompress of truncated input did not fail")
	}
}

func TestReadVarint(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    int64
		wantLen int
		wantErr bool
	}{
		{
			name:    "single byte",
			in:      []byte{0x07},
			want:    7,
			wantLen: 1,
		},
		{
			name:    "two bytes",
			in:      []byte{0x80 | 0x01, 0x01},
			want:    129,
			wantLen: 2,
		},
		{
			name:    "unterminated",
			in:      []byte{0x80, 0x80},
			wantErr: true,
		},
		{
			name:    "non-minimal",
			in:      []byte{0x80, 0x00},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := readVarint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readVarint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want || n != tt.wantLen {
				t.Errorf("readVarint() = (%d, %d), want (%d, %d)", got, n, tt.want, tt.wantLen)
			}
		})
	}
}

func TestDictCapacity(t *testing.T) {
	tests := []struct {
		props byte
		want  int
	}{
		{0, 4096},
		{1, 6144},
		{2, 8192},
		{40, int(^uint32(0))},
	}
	for _, tt := range tests {
		got, err := dictCapacity(tt.props)
		if err != nil {
			t.Errorf("dictCapacity(%d): %v", tt.props, err)
			continue
		}
		if got != tt.want {
			t.Errorf("dictCapacity(%d) = %d, want %d", tt.props, got, tt.want)
		}
	}
	if _, err := dictCapacity(41); err == nil {
		t.Error("dictCapacity(41) did not fail")
	}
}

func TestAllZero(t *testing.T) {
	if !allZero(make([]byte, 1024)) {
		t.Error("allZero(zeros) = false")
	}
	buf := make([]byte, 1024)
	buf[1023] = 1
	if allZero(buf) {
		t.Error("allZero(non-zero) = true")
	}
	if !allZero(nil) {
		t.Error("allZero(nil) = false")
	}
}
