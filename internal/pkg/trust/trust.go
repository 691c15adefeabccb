// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package trust implements the signature and checksum chain between a
// repository source and the bytes consumed by the build. Each source
// gets its own Chain pinned to one key; the chain owns a scoped keyring
// directory that must be released on every exit path.
package trust

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// KeyKind discriminates the key descriptor variants.
type KeyKind int

const (
	// NoKey performs no signature verification.
	NoKey KeyKind = iota
	// Fingerprint pins a key from the ambient keyring by fingerprint.
	Fingerprint
	// KeyFile imports the key material from a local file.
	KeyFile
)

// KeyDescriptor selects the key a chain is pinned to.
type KeyDescriptor struct {
	Kind KeyKind
	// Fingerprint is set for the Fingerprint kind.
	Fingerprint string
	// Path is set for the KeyFile kind.
	Path string
}

// ChecksumKind is a supported checksum algorithm.
type ChecksumKind string

const (
	SHA256 ChecksumKind = "sha256"
	SHA512 ChecksumKind = "sha512"
)

// Checksum pairs an algorithm with an expected hex digest.
type Checksum struct {
	Kind ChecksumKind
	Hex  string
}

// Chain verifies signatures and checksums for one repository source.
type Chain struct {
	keyring     openpgp.EntityList
	fingerprint string
	scopedDir   string
	check       bool
}

const scopedKeyringFile = "pubring.pgp"

// New constructs a chain for the given key descriptor. When
// checkSignature is false, or the descriptor is NoKey, the chain is a
// no-op verifier. ambientKeyring is the path of the keyring searched
// for Fingerprint descriptors. The caller must arrange for Close to run
// on all exit paths.
func New(desc KeyDescriptor, ambientKeyring string, checkSignature bool) (*Chain, error) {
	if !checkSignature || desc.Kind == NoKey {
		return &Chain{check: false}, nil
	}

	scopedDir, err := os.MkdirTemp("", "virtbuild-keyring-")
	if err != nil {
		return nil, fmt.Errorf("%w: could not create scoped keyring: %v", errkind.ErrTrust, err)
	}

	c := &Chain{scopedDir: scopedDir, check: true}
	if err := c.importKey(desc, ambientKeyring); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Chain) importKey(desc KeyDescriptor, ambientKeyring string) error {
	switch desc.Kind {
	case KeyFile:
		el, err := loadKeysFromFile(desc.Path)
		if err != nil {
			return fmt.Errorf("%w: could not import key from %s: %v", errkind.ErrTrust, desc.Path, err)
		}
		if len(el) == 0 {
			return fmt.Errorf("%w: no key found in %s", errkind.ErrTrust, desc.Path)
		}
		// The first primary key of the import is the pinned one.
		c.keyring = el
		c.fingerprint = fmt.Sprintf("%X", el[0].PrimaryKey.Fingerprint)
	case Fingerprint:
		el, err := loadKeysFromFile(ambientKeyring)
		if err != nil {
			return fmt.Errorf("%w: could not read keyring %s: %v", errkind.ErrTrust, ambientKeyring, err)
		}
		want := NormalizeFingerprint(desc.Fingerprint)
		for _, e := range el {
			if fmt.Sprintf("%X", e.PrimaryKey.Fingerprint) == want {
				c.keyring = openpgp.EntityList{e}
				c.fingerprint = want
				break
			}
		}
		if c.keyring == nil {
			return fmt.Errorf("%w: key %s not found in %s", errkind.ErrTrust, desc.Fingerprint, ambientKeyring)
		}
	default:
		return fmt.Errorf("%w: unsupported key descriptor", errkind.ErrTrust)
	}

	return c.storeScopedKeyring()
}

// storeScopedKeyring materializes the pinned key below the scoped
// directory so external inspection of a failed run sees exactly the key
// that was trusted.
func (c *Chain) storeScopedKeyring() error {
	f, err := os.OpenFile(filepath.Join(c.scopedDir, scopedKeyringFile), os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: could not write scoped keyring: %v", errkind.ErrTrust, err)
	}
	defer f.Close()

	for _, e := range c.keyring {
		if err := e.Serialize(f); err != nil {
			return fmt.Errorf("%w: could not serialize key: %v", errkind.ErrTrust, err)
		}
	}
	return f.Close()
}

// loadKeysFromFile loads one or more public keys from the specified
// file, in binary or ascii armored format.
func loadKeysFromFile(fn string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewReader(data)

	if entities, err := openpgp.ReadKeyRing(buf); err == nil {
		return entities, nil
	}

	// cannot load keys from file, perhaps it's ascii armored?
	// rewind and try again
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return openpgp.ReadArmoredKeyRing(buf)
}

// Enabled returns true when the chain actually verifies signatures.
func (c *Chain) Enabled() bool {
	return c.check
}

// Fingerprint returns the pinned key fingerprint, upper-case hex.
func (c *Chain) Fingerprint() string {
	return c.fingerprint
}

// ScopedDir returns the scoped keyring directory, empty for a no-op
// chain.
func (c *Chain) ScopedDir() string {
	return c.scopedDir
}

// Close removes the scoped keyring directory. It is safe to call more
// than once.
func (c *Chain) Close() {
	if c.scopedDir == "" {
		return
	}
	vblog.Debugf("Removing scoped keyring %s", c.scopedDir)
	if err := os.RemoveAll(c.scopedDir); err != nil {
		vblog.Warningf("Could not remove scoped keyring %s: %v", c.scopedDir, err)
	}
	c.scopedDir = ""
}

// NormalizeFingerprint upper-cases a fingerprint and strips whitespace
// and any 0x prefix, so differently formatted fingerprints compare
// equal.
func NormalizeFingerprint(fp string) string {
	fp = strings.TrimPrefix(fp, "0x")
	fp = strings.TrimPrefix(fp, "0X")
	return strings.ToUpper(strings.Join(strings.Fields(fp), ""))
}

func (c *Chain) checkSigner(signer *openpgp.Entity, err error) error {
	if err != nil {
		return fmt.Errorf("%w: signature verification failed: %v", errkind.ErrTrust, err)
	}
	got := fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint)
	if NormalizeFingerprint(got) != NormalizeFingerprint(c.fingerprint) {
		return fmt.Errorf("%w: signature valid but signing key %s does not match pinned key %s",
			errkind.ErrTrust, got, c.fingerprint)
	}
	return nil
}

// Verify checks the inline (clearsigned) signature of file against the
// pinned key. It is a no-op for a disabled chain.
func (c *Chain) Verify(file string) error {
	if !c.check {
		return nil
	}
	_, err := c.verifyInline(file)
	return err
}

func (c *Chain) verifyInline(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}

	b, _ := clearsign.Decode(data)
	if b == nil {
		return nil, fmt.Errorf("%w: %s carries no inline signature", errkind.ErrTrust, file)
	}

	signer, err := openpgp.CheckDetachedSignature(c.keyring, bytes.NewReader(b.Bytes), b.ArmoredSignature.Body, nil)
	if err := c.checkSigner(signer, err); err != nil {
		return nil, err
	}
	return b.Plaintext, nil
}

// VerifyDetached checks file against a detached signature. A missing
// signature path while verification is enabled is a configuration
// error.
func (c *Chain) VerifyDetached(file, sigFile string) error {
	if !c.check {
		return nil
	}
	if sigFile == "" {
		return fmt.Errorf("%w: signature verification requested but no signature available for %s",
			errkind.ErrConfig, file)
	}

	sig, err := os.ReadFile(sigFile)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}
	signed, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}
	defer signed.Close()

	var signer *openpgp.Entity
	if bytes.Contains(sig, []byte("-----BEGIN PGP")) {
		signer, err = openpgp.CheckArmoredDetachedSignature(c.keyring, signed, bytes.NewReader(sig), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(c.keyring, signed, bytes.NewReader(sig), nil)
	}
	return c.checkSigner(signer, err)
}

// VerifyAndRemoveSignature verifies the inline signature of file and
// writes the unwrapped payload to a new temporary file, returning its
// path. For a disabled chain the wrapper, if any, is stripped without
// verification. The empty string is returned when the file carries no
// signature wrapper.
func (c *Chain) VerifyAndRemoveSignature(file string) (string, error) {
	var plaintext []byte

	if c.check {
		var err error
		plaintext, err = c.verifyInline(file)
		if err != nil {
			return "", err
		}
	} else {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errkind.ErrTrust, err)
		}
		b, _ := clearsign.Decode(data)
		if b == nil {
			return "", nil
		}
		plaintext = b.Plaintext
	}

	out, err := os.CreateTemp("", "virtbuild-index-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}
	defer out.Close()

	if _, err := out.Write(plaintext); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}
	return out.Name(), nil
}

// VerifyChecksum computes the named checksum of file and compares it to
// the expected hex digest. Checksum verification is independent of the
// signature check flag.
func (c *Chain) VerifyChecksum(kind ChecksumKind, expected, file string) error {
	var h hash.Hash
	switch kind {
	case SHA256:
		h = sha256.New()
	case SHA512:
		h = sha512.New()
	default:
		return fmt.Errorf("%w: unsupported checksum %q", errkind.ErrTrust, kind)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrTrust, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, expected) {
		return fmt.Errorf("%w: %s checksum mismatch for %s: got %s, expected %s",
			errkind.ErrTrust, kind, file, got, expected)
	}
	return nil
}

// VerifyChecksums verifies every checksum in the list against file.
func (c *Chain) VerifyChecksums(sums []Checksum, file string) error {
	for _, s := range sums {
		if err := c.VerifyChecksum(s.Kind, s.Hex, file); err != nil {
			return err
		}
	}
	return nil
}
