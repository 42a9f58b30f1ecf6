package lfg

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// VolumeOpener resolves archive volume paths to readable files. Reader
// calls it once for the first volume and again, via the continuation
// protocol, for every subsequent one.
type VolumeOpener interface {
	// Open opens the volume at path for reading.
	Open(path string) (io.ReadCloser, error)
}

// volumeSizer is implemented by volume handles that can report their
// total size, used to sanity-check a volume header's declared body
// length against the file it actually came from.
type volumeSizer interface {
	Size() (int64, error)
}

// OSVolumeOpener opens volumes directly from the filesystem.
type OSVolumeOpener struct{}

func (OSVolumeOpener) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return osVolumeHandle{f}, nil
}

// osVolumeHandle adds Size() to *os.File via Stat, satisfying volumeSizer.
type osVolumeHandle struct{ *os.File }

func (h osVolumeHandle) Size() (int64, error) {
	fi, err := h.File.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Reader extracts files from an LFG archive, transparently following
// volume continuations.
//
// Grounded on original_source/LFGExtract/extract.c's new_file/next
// archive handling, lifted out of module-level globals into an
// explicit instance.
type Reader struct {
	opener VolumeOpener
	warn   WarnFunc

	paths       []string
	pathIndex   int
	volPath     string
	f           io.ReadCloser
	volumesUsed int

	Name               string
	VolumeCount        byte
	TotalUncompressed  uint32
}

// NewReader opens the first volume of an archive. paths lists every
// volume path the caller already knows about (e.g. from a directory
// listing); the continuation protocol tries the "incremented filename"
// path first and falls back to the next unused entry in paths.
func NewReader(paths []string, opener VolumeOpener, warn WarnFunc) (*Reader, error) {
	if opener == nil {
		opener = OSVolumeOpener{}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no volume paths given", ErrNotAnArchive)
	}
	rd := &Reader{opener: opener, warn: warn, paths: paths}
	f, err := opener.Open(paths[0])
	if err != nil {
		return nil, err
	}
	rd.volPath = paths[0]
	rd.pathIndex = 1
	rd.f = f
	rd.volumesUsed = 1

	vh, err := readVolumeHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.checkVolumeLength(f, rd.volPath, vh)

	ah, err := readArchiveHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if ah.VolumeCount == 0 {
		emit(warn, &Warning{Kind: WarnDiskCountZero, Archive: rd.volPath, Message: "lfg: archive header declares zero volumes"})
	}
	rd.Name = ah.name()
	rd.VolumeCount = ah.VolumeCount
	rd.TotalUncompressed = ah.TotalUncompressed
	return rd, nil
}

// checkVolumeLength sanity-checks a volume's declared body length
// against the file it was read from (file size == body length + the
// 8-byte volume header), emitting a non-fatal WarnVolumeLength on
// mismatch. Volume handles that can't report their size (an opener not
// backed by a plain file) are silently skipped.
func (rd *Reader) checkVolumeLength(f io.ReadCloser, path string, vh volumeHeader) {
	sz, ok := f.(volumeSizer)
	if !ok {
		return
	}
	size, err := sz.Size()
	if err != nil {
		return
	}
	want := int64(vh.BodyLength) + volumeHeaderSize
	if size != want {
		emit(rd.warn, &Warning{
			Kind:    WarnVolumeLength,
			Archive: path,
			Message: fmt.Sprintf("lfg: volume %q declares body length %d (file size %d bytes, want %d)", path, vh.BodyLength, size, want),
		})
	}
}

// VolumesUsed returns how many volume files this reader has opened: the
// first volume plus every continuation volume, whether it was found by
// incrementing the filename or taken from the paths slice. When every
// volume is listed in paths, in order, this is the number of entries
// an outer loop iterating many archives can skip over.
func (rd *Reader) VolumesUsed() int { return rd.volumesUsed }

// Close releases the currently open volume file.
func (rd *Reader) Close() error {
	if rd.f != nil {
		return rd.f.Close()
	}
	return nil
}

// nextVolumePath computes the continuation path: the fifth character
// from the end of the current volume's filename is
// incremented (NAME___A.XXX -> NAME___B.XXX).
func nextVolumePath(current string) (string, bool) {
	if len(current) < 5 {
		return "", false
	}
	idx := len(current) - 5
	c := current[idx]
	if c == 'Z' || c == 'z' || c == '9' {
		return "", false
	}
	return current[:idx] + string(c+1) + current[idx+1:], true
}

// continuation implements ContinuationFunc for Explode: it rolls to the
// next volume when the current one is exhausted.
func (rd *Reader) continuation() (io.Reader, bool) {
	rd.f.Close()

	var candidates []string
	if p, ok := nextVolumePath(rd.volPath); ok {
		candidates = append(candidates, p)
	}
	for rd.pathIndex < len(rd.paths) {
		candidates = append(candidates, rd.paths[rd.pathIndex])
		rd.pathIndex++
		break
	}

	for _, p := range candidates {
		f, err := rd.opener.Open(p)
		if err != nil {
			continue
		}
		vh, err := readVolumeHeader(f)
		if err != nil {
			f.Close()
			continue
		}
		rd.checkVolumeLength(f, p, vh)
		rd.volPath = p
		rd.f = f
		rd.volumesUsed++
		return f, true
	}
	return nil, false
}

// NextHeader reads the next file record header, without decompressing
// its payload. It returns io.EOF once the current volume has no more
// FILE records and no continuation extends it further. The payload
// must subsequently be consumed with ExtractCurrent before the next
// call to NextHeader, even if the caller only wants the header (e.g.
// info-only listing): skipping it outright would require seeking
// across a possible volume straddle, which this reader does not
// attempt.
func (rd *Reader) NextHeader() (FileInfo, error) {
	hdr, err := readFileRecordHeader(rd.f)
	if err != nil && errors.Is(err, io.EOF) && rd.volumesUsed < int(rd.VolumeCount) {
		// The writer starts a new volume rather than split a record
		// header, so the next record may begin the next volume.
		if _, ok := rd.continuation(); ok {
			hdr, err = readFileRecordHeader(rd.f)
		}
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return FileInfo{}, io.EOF
		}
		return FileInfo{}, err
	}
	if !bytesEqual(hdr.Filler[:], fileFiller[:]) {
		emit(rd.warn, &Warning{Kind: WarnHeaderFiller, Archive: rd.volPath, Message: fmt.Sprintf("lfg: file record %q has unexpected filler bytes", hdr.name())})
	}
	return FileInfo{
		Name:               hdr.name(),
		UncompressedLength: hdr.UncompressedLength,
		CompressedLength:   hdr.CompressedLength,
	}, nil
}

// ExtractCurrent decompresses the payload of the file record most
// recently returned by NextHeader into out. A *LengthMismatch error is
// a warning (reported via the Reader's WarnFunc), not fatal; the data
// written to out is still complete.
func (rd *Reader) ExtractCurrent(out io.Writer, expectedLen uint32, stats *Stats) error {
	_, err := Explode(rd.f, out, expectedLen, rd.continuation, stats)
	if err != nil {
		var lm *LengthMismatch
		if errors.As(err, &lm) {
			emit(rd.warn, &Warning{Kind: WarnLengthMismatch, Archive: rd.volPath, Message: lm.Error()})
			return nil
		}
		return err
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
