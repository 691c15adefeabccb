// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package pxzcat decompresses .xz files block-parallel into a sparse
// output file. The stream index is parsed from the end of the file, the
// output is pre-sized to the advertised uncompressed length, and worker
// threads decode independent blocks directly to their final offset with
// positional writes. All-zero output buffers are skipped so holes in
// the uncompressed data stay holes on disk.
package pxzcat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/ulikunitz/xz/lzma"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// ErrFormat is returned for anything that is not a well-formed xz
// stream.
var ErrFormat = errors.New("invalid xz stream")

// ErrUnsupported is returned when a block uses a filter chain other
// than plain LZMA2; callers may fall back to the external xzcat.
var ErrUnsupported = errors.New("unsupported xz filter chain")

var headerMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

const (
	footerMagic0 = 'Y'
	footerMagic1 = 'Z'

	streamHeaderLen = 12
	streamFooterLen = 12

	lzma2FilterID = 0x21

	// writeChunk is the unit of output writes and of the all-zero
	// scan deciding whether a write can be skipped.
	writeChunk = 256 * 1024
)

// block is one compressed block with its input and output positions.
type block struct {
	compOff   int64 // offset of the block header in the input
	unpadded  int64 // unpadded size from the index record
	checkSize int64
	outOff    int64
	outLen    int64
}

// stream is one xz stream of a possibly multi-stream file.
type stream struct {
	headerPos int64
	checkSize int64
	records   []idxRecord
}

type idxRecord struct {
	unpadded     int64
	uncompressed int64
}

// Decompress uncompresses the xz file at input into a sparse regular
// file at output of exactly the stream's uncompressed size, using up to
// NumCPU worker threads.
func Decompress(input, output string) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	blocks, totalSize, err := parseIndexes(in)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	// Extend through a tiny write first: an ftruncate alone from zero
	// triggers ext4's auto_da_alloc flush heuristic on close.
	if totalSize > 0 {
		if _, err := out.WriteAt([]byte{0}, 0); err != nil {
			return err
		}
	}
	if err := out.Truncate(totalSize); err != nil {
		return err
	}

	nWorkers := runtime.NumCPU()
	if nWorkers > len(blocks) {
		nWorkers = len(blocks)
	}
	if nWorkers == 0 {
		return out.Close()
	}
	vblog.Debugf("Decompressing %d blocks with %d workers", len(blocks), nWorkers)

	// The block iterator is the only shared mutable state; input and
	// output descriptors are used positionally.
	var (
		mu   sync.Mutex
		next int
	)
	take := func() *block {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(blocks) {
			return nil
		}
		b := &blocks[next]
		next++
		return b
	}

	errCh := make(chan error, nWorkers)
	var wg sync.WaitGroup
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := take(); b != nil; b = take() {
				if err := decodeBlock(in, out, b); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}

	return out.Close()
}

// parseIndexes scans the file from EOF backward, parsing stream footers
// and indexes into a combined block list over all streams.
func parseIndexes(in *os.File) ([]block, int64, error) {
	info, err := in.Stat()
	if err != nil {
		return nil, 0, err
	}
	pos := info.Size()
	if pos < streamHeaderLen+streamFooterLen {
		return nil, 0, fmt.Errorf("%w: file too short", ErrFormat)
	}

	// Check the magic up front so a wrong file type gets a clear
	// error rather than a footer mismatch.
	magic := make([]byte, len(headerMagic))
	if _, err := in.ReadAt(magic, 0); err != nil {
		return nil, 0, err
	}
	for i, c := range headerMagic {
		if magic[i] != c {
			return nil, 0, fmt.Errorf("%w: bad header magic", ErrFormat)
		}
	}

	var streams []stream
	for pos > 0 {
		// Tolerate stream padding: runs of 4 null bytes between
		// streams.
		var pad [4]byte
		for pos >= 4 {
			if _, err := in.ReadAt(pad[:], pos-4); err != nil {
				return nil, 0, err
			}
			if pad != [4]byte{} {
				break
			}
			pos -= 4
		}
		if pos < streamHeaderLen+streamFooterLen {
			return nil, 0, fmt.Errorf("%w: truncated stream", ErrFormat)
		}

		s, newPos, err := parseStream(in, pos)
		if err != nil {
			return nil, 0, err
		}
		// Streams are found back to front.
		streams = append([]stream{s}, streams...)
		pos = newPos
	}

	var blocks []block
	var outOff int64
	for _, s := range streams {
		inOff := s.headerPos + streamHeaderLen
		for _, rec := range s.records {
			blocks = append(blocks, block{
				compOff:   inOff,
				unpadded:  rec.unpadded,
				checkSize: s.checkSize,
				outOff:    outOff,
				outLen:    rec.uncompressed,
			})
			inOff += roundup4(rec.unpadded)
			outOff += rec.uncompressed
		}
	}
	return blocks, outOff, nil
}

// parseStream parses the footer and index of the stream ending at end,
// returning the stream and the offset of its header.
func parseStream(in *os.File, end int64) (stream, int64, error) {
	footer := make([]byte, streamFooterLen)
	if _, err := in.ReadAt(footer, end-streamFooterLen); err != nil {
		return stream{}, 0, err
	}
	if footer[10] != footerMagic0 || footer[11] != footerMagic1 {
		return stream{}, 0, fmt.Errorf("%w: bad footer magic", ErrFormat)
	}
	backwardSize := (int64(binary.LittleEndian.Uint32(footer[4:8])) + 1) * 4
	flags := footer[8:10]
	if flags[0] != 0 {
		return stream{}, 0, fmt.Errorf("%w: bad stream flags", ErrFormat)
	}
	checkSize, err := checkSizeOf(flags[1])
	if err != nil {
		return stream{}, 0, err
	}

	indexPos := end - streamFooterLen - backwardSize
	if indexPos < streamHeaderLen {
		return stream{}, 0, fmt.Errorf("%w: index out of bounds", ErrFormat)
	}
	idx := make([]byte, backwardSize)
	if _, err := in.ReadAt(idx, indexPos); err != nil {
		return stream{}, 0, err
	}
	if idx[0] != 0 {
		return stream{}, 0, fmt.Errorf("%w: bad index indicator", ErrFormat)
	}

	p := 1
	count, n, err := readVarint(idx[p:])
	if err != nil {
		return stream{}, 0, err
	}
	p += n

	var records []idxRecord
	var blocksSize int64
	for i := int64(0); i < count; i++ {
		unpadded, n, err := readVarint(idx[p:])
		if err != nil {
			return stream{}, 0, err
		}
		p += n
		uncompressed, n, err := readVarint(idx[p:])
		if err != nil {
			return stream{}, 0, err
		}
		p += n
		records = append(records, idxRecord{unpadded: unpadded, uncompressed: uncompressed})
		blocksSize += roundup4(unpadded)
	}

	headerPos := indexPos - blocksSize - streamHeaderLen
	if headerPos < 0 {
		return stream{}, 0, fmt.Errorf("%w: blocks out of bounds", ErrFormat)
	}
	header := make([]byte, streamHeaderLen)
	if _, err := in.ReadAt(header, headerPos); err != nil {
		return stream{}, 0, err
	}
	for i, c := range headerMagic {
		if header[i] != c {
			return stream{}, 0, fmt.Errorf("%w: bad header magic", ErrFormat)
		}
	}
	if header[6] != flags[0] || header[7] != flags[1] {
		return stream{}, 0, fmt.Errorf("%w: header/footer flags mismatch", ErrFormat)
	}

	return stream{headerPos: headerPos, checkSize: checkSize, records: records}, headerPos, nil
}

// decodeBlock decodes one block and streams its output to the final
// offset, skipping all-zero buffers.
func decodeBlock(in, out *os.File, b *block) error {
	// The first header byte encodes the real header size.
	var sizeByte [1]byte
	if _, err := in.ReadAt(sizeByte[:], b.compOff); err != nil {
		return err
	}
	if sizeByte[0] == 0 {
		return fmt.Errorf("%w: index points at stream index", ErrFormat)
	}
	headerSize := (int64(sizeByte[0]) + 1) * 4

	header := make([]byte, headerSize)
	if _, err := in.ReadAt(header, b.compOff); err != nil {
		return err
	}
	dictCap, err := parseBlockHeader(header)
	if err != nil {
		return err
	}

	compLen := b.unpadded - headerSize - b.checkSize
	if compLen <= 0 {
		return fmt.Errorf("%w: implausible block sizes", ErrFormat)
	}

	cfg := lzma.Reader2Config{DictCap: dictCap}
	if err := cfg.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	dec, err := cfg.NewReader2(io.NewSectionReader(in, b.compOff+headerSize, compLen))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	buf := make([]byte, writeChunk)
	off := b.outOff
	remaining := b.outLen
	for remaining > 0 {
		want := int64(len(buf))
		if want > remaining {
			want = remaining
		}
		n, err := io.ReadFull(dec, buf[:want])
		if n > 0 {
			if !allZero(buf[:n]) {
				if _, werr := out.WriteAt(buf[:n], off); werr != nil {
					return werr
				}
			}
			off += int64(n)
			remaining -= int64(n)
		}
		if err != nil {
			return fmt.Errorf("%w: block decode: %v", ErrFormat, err)
		}
	}
	return nil
}

// parseBlockHeader extracts the LZMA2 dictionary capacity from a block
// header, rejecting any other filter configuration.
func parseBlockHeader(header []byte) (int, error) {
	flags := header[1]
	nFilters := int(flags&0x03) + 1
	if flags&0x3c != 0 {
		return 0, fmt.Errorf("%w: reserved block flags set", ErrFormat)
	}

	p := 2
	if flags&0x40 != 0 { // compressed size present
		_, n, err := readVarint(header[p:])
		if err != nil {
			return 0, err
		}
		p += n
	}
	if flags&0x80 != 0 { // uncompressed size present
		_, n, err := readVarint(header[p:])
		if err != nil {
			return 0, err
		}
		p += n
	}

	if nFilters != 1 {
		return 0, fmt.Errorf("%w: %d filters", ErrUnsupported, nFilters)
	}

	id, n, err := readVarint(header[p:])
	if err != nil {
		return 0, err
	}
	p += n
	if id != lzma2FilterID {
		return 0, fmt.Errorf("%w: filter id %#x", ErrUnsupported, id)
	}
	propsSize, n, err := readVarint(header[p:])
	if err != nil {
		return 0, err
	}
	p += n
	if propsSize != 1 || p >= len(header) {
		return 0, fmt.Errorf("%w: bad LZMA2 properties", ErrFormat)
	}

	return dictCapacity(header[p])
}

// dictCapacity decodes the LZMA2 dictionary size properties byte.
func dictCapacity(props byte) (int, error) {
	if props > 40 {
		return 0, fmt.Errorf("%w: dictionary size %d", ErrFormat, props)
	}
	if props == 40 {
		return int(^uint32(0)), nil
	}
	size := uint64(2|props&1) << (props/2 + 11)
	return int(size), nil
}

// readVarint decodes an xz multibyte integer: 7 bits per byte, least
// significant first, high bit marking continuation.
func readVarint(buf []byte) (int64, int, error) {
	var v uint64
	for i := 0; i < len(buf) && i < 9; i++ {
		v |= uint64(buf[i]&0x7f) << (7 * i)
		if buf[i]&0x80 == 0 {
			if buf[i] == 0 && i > 0 {
				return 0, 0, fmt.Errorf("%w: non-minimal integer encoding", ErrFormat)
			}
			return int64(v), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: unterminated integer", ErrFormat)
}

func roundup4(n int64) int64 {
	return (n + 3) &^ 3
}

func checkSizeOf(id byte) (int64, error) {
	switch id {
	case 0x00: // none
		return 0, nil
	case 0x01: // CRC32
		return 4, nil
	case 0x04: // CRC64
		return 8, nil
	case 0x0a: // SHA-256
		return 32, nil
	}
	return 0, fmt.Errorf("%w: unknown check id %#x", ErrFormat, id)
}

// allZero reports whether every byte of b is zero.
func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
