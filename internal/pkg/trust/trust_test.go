// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package trust

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
)

// testKey generates a signing key and writes its public part to a file,
// returning the entity and the key file path.
func testKey(t *testing.T) (*openpgp.Entity, string) {
	t.Helper()

	entity, err := openpgp.NewEntity("Phony Fedora", "", "phony@example.invalid", &packet.Config{RSABits: 1024})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}

	keyFile := filepath.Join(t.TempDir(), "repo.pub")
	f, err := os.Create(keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(f); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	f.Close()

	return entity, keyFile
}

func clearsignFile(t *testing.T, entity *openpgp.Entity, payload []byte) string {
	t.Helper()

	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, nil)
	if err != nil {
		t.Fatalf("clearsign.Encode: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	w.Close()

	file := filepath.Join(t.TempDir(), "index.asc")
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestVerifyInline(t *testing.T) {
	entity, keyFile := testKey(t)
	payload := []byte("[fedora]\nfile=fedora.xz\n")
	signed := clearsignFile(t, entity, payload)

	chain, err := New(KeyDescriptor{Kind: KeyFile, Path: keyFile}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer chain.Close()

	if !chain.Enabled() {
		t.Fatal("chain unexpectedly disabled")
	}
	if err := chain.Verify(signed); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// A chain pinned to a different key must reject the signature.
	_, otherKeyFile := testKey(t)
	other, err := New(KeyDescriptor{Kind: KeyFile, Path: otherKeyFile}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer other.Close()

	err = other.Verify(signed)
	if !errors.Is(err, errkind.ErrTrust) {
		t.Errorf("Verify with wrong key: got %v, want trust failure", err)
	}
}

func TestVerifyAndRemoveSignature(t *testing.T) {
	entity, keyFile := testKey(t)
	payload := []byte("[fedora]\nfile=fedora.xz\narch=x86_64\n")
	signed := clearsignFile(t, entity, payload)

	chain, err := New(KeyDescriptor{Kind: KeyFile, Path: keyFile}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer chain.Close()

	unsigned, err := chain.VerifyAndRemoveSignature(signed)
	if err != nil {
		t.Fatalf("VerifyAndRemoveSignature: %v", err)
	}
	defer os.Remove(unsigned)

	got, err := os.ReadFile(unsigned)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bytes.TrimRight(got, "\n"), bytes.TrimRight(payload, "\n")) {
		t.Errorf("stripped payload = %q, want %q", got, payload)
	}
}

func TestVerifyDetached(t *testing.T) {
	entity, keyFile := testKey(t)

	payload := []byte("template bytes")
	file := filepath.Join(t.TempDir(), "fedora.xz")
	if err := os.WriteFile(file, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(payload), nil); err != nil {
		t.Fatalf("ArmoredDetachSign: %v", err)
	}
	sigFile := file + ".sig"
	if err := os.WriteFile(sigFile, sig.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	chain, err := New(KeyDescriptor{Kind: KeyFile, Path: keyFile}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer chain.Close()

	if err := chain.VerifyDetached(file, sigFile); err != nil {
		t.Errorf("VerifyDetached: %v", err)
	}

	// Missing signature with verification enabled is a configuration
	// error, not a trust failure.
	err = chain.VerifyDetached(file, "")
	if !errors.Is(err, errkind.ErrConfig) {
		t.Errorf("VerifyDetached without signature: got %v, want config error", err)
	}
}

func TestDisabledChain(t *testing.T) {
	chain, err := New(KeyDescriptor{Kind: NoKey}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer chain.Close()

	if chain.Enabled() {
		t.Error("NoKey chain reports enabled")
	}
	if chain.ScopedDir() != "" {
		t.Error("NoKey chain owns a scoped keyring")
	}
	if err := chain.Verify("/nonexistent"); err != nil {
		t.Errorf("disabled Verify: %v", err)
	}
	if err := chain.VerifyDetached("/nonexistent", ""); err != nil {
		t.Errorf("disabled VerifyDetached: %v", err)
	}
}

func TestScopedKeyringRemoved(t *testing.T) {
	_, keyFile := testKey(t)

	chain, err := New(KeyDescriptor{Kind: KeyFile, Path: keyFile}, "", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := chain.ScopedDir()
	if _, err := os.Stat(filepath.Join(dir, scopedKeyringFile)); err != nil {
		t.Fatalf("scoped keyring not materialized: %v", err)
	}

	chain.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("scoped keyring directory still present after Close")
	}
	// Close is idempotent.
	chain.Close()
}

func TestVerifyChecksum(t *testing.T) {
	chain := &Chain{}

	file := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(file, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		kind    ChecksumKind
		hex     string
		wantErr bool
	}{
		{
			name: "sha256 good",
			kind: SHA256,
			hex:  "a948904f2f0f479b8f8197694b30184b0d2ed1c1cd2a1ec0fb85d299a192a447",
		},
		{
			name: "sha256 uppercase",
			kind: SHA256,
			hex:  "A948904F2F0F479B8F8197694B30184B0D2ED1C1CD2A1EC0FB85D299A192A447",
		},
		{
			name: "sha512 good",
			kind: SHA512,
			hex: "db3974a97f2407b7cae1ae637c0030687a11913274d578492558e39c16c017de" +
				"84eacdc8c62fe34ee4e12b4b1428817f09b6a2760c3f8a664ceae94d2434a593",
		},
		{
			name:    "sha256 mismatch",
			kind:    SHA256,
			hex:     "0000000000000000000000000000000000000000000000000000000000000000",
			wantErr: true,
		},
		{
			name:    "unsupported kind",
			kind:    ChecksumKind("md5"),
			hex:     "d41d8cd98f00b204e9800998ecf8427e",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chain.VerifyChecksum(tt.kind, tt.hex, file)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyChecksum() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errkind.ErrTrust) {
				t.Errorf("error %v is not a trust failure", err)
			}
		})
	}
}

func TestNormalizeFingerprint(t *testing.T) {
	want := "F7772793FB22B52A8F04A9C93BAEB0B72E417DB0"
	for _, in := range []string{
		"F7772793FB22B52A8F04A9C93BAEB0B72E417DB0",
		"f7772793fb22b52a8f04a9c93baeb0b72e417db0",
		"F777 2793 FB22 B52A 8F04  A9C9 3BAE B0B7 2E41 7DB0",
		"0xF7772793FB22B52A8F04A9C93BAEB0B72E417DB0",
	} {
		if got := NormalizeFingerprint(in); got != want {
			t.Errorf("NormalizeFingerprint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFingerprintDescriptor(t *testing.T) {
	entity, keyFile := testKey(t)
	fp := fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)

	// The key file doubles as the ambient keyring here.
	chain, err := New(KeyDescriptor{Kind: Fingerprint, Fingerprint: fp}, keyFile, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer chain.Close()

	if chain.Fingerprint() != fp {
		t.Errorf("Fingerprint() = %q, want %q", chain.Fingerprint(), fp)
	}

	_, err = New(KeyDescriptor{Kind: Fingerprint, Fingerprint: "DEADBEEF"}, keyFile, true)
	if !errors.Is(err, errkind.ErrTrust) {
		t.Errorf("unknown fingerprint: got %v, want trust failure", err)
	}
}
