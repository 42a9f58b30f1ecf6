package lfg

import (
	"fmt"
	"io"
	"os"
)

// VolumeCreator creates the files that make up an archive's volumes.
type VolumeCreator interface {
	// Create creates (or truncates) the volume at path for writing.
	Create(path string) (io.WriteCloser, error)
}

// OSVolumeCreator creates volumes directly on the filesystem.
type OSVolumeCreator struct{}

func (OSVolumeCreator) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// VolumePatchHandle is a previously-written volume reopened for a
// one-off header patch.
type VolumePatchHandle interface {
	io.WriteSeeker
	io.Closer
}

// VolumePatcher reopens an already-written volume for a later header
// patch. Writer uses this to fix up volume 1's archive header once the
// final volume count and total-uncompressed size are known, and to fix
// up a file record's compressed-length field in a volume that the
// encoder has since moved past.
type VolumePatcher interface {
	OpenForPatch(path string) (VolumePatchHandle, error)
}

func (OSVolumeCreator) OpenForPatch(path string) (VolumePatchHandle, error) {
	return os.OpenFile(path, os.O_RDWR, 0o644)
}

// volumeSeeker is satisfied by volume writers (notably *os.File) that
// allow patching a header field after more data has been written.
type volumeSeeker interface {
	io.WriteSeeker
}

// DictionaryMode selects how Writer picks the dictionary-size exponent
// for each file.
type DictionaryMode int

const (
	// DictAuto picks e from the input file's size:
	// <=1024 -> 4, <=2048 -> 5, else 6.
	DictAuto DictionaryMode = iota
	Dict1K
	Dict2K
	Dict4K
)

func (m DictionaryMode) exponent(size uint32) int {
	switch m {
	case Dict1K:
		return 4
	case Dict2K:
		return 5
	case Dict4K:
		return 6
	default:
		switch {
		case size <= 1024:
			return 4
		case size <= 2048:
			return 5
		default:
			return 6
		}
	}
}

// WriterOptions configures an archive Writer.
type WriterOptions struct {
	ArchiveName     string
	FirstVolumeSize uint32
	VolumeSize      uint32
	DictMode        DictionaryMode
	LiteralMode     int
	// Lazy selects the default encoder strategy for WriteFile: true for
	// the lazy-match optimizer ("optimization
	// level 3"), false for the greedy encoder ("optimization level 1").
	// Callers implementing "optimization level 5" (try every window size
	// and strategy, keep the smallest) should use WriteFileWithParams
	// directly instead of relying on this default.
	Lazy    bool
	Creator VolumeCreator
}

// Writer packs files into an LFG archive, opening new volumes as the
// byte budget is exhausted.
//
// Grounded on original_source/LFGPack/pack_lfg.c's space_left/
// max_reached volume-rolling logic, lifted out of module-level globals
// into an explicit instance.
type Writer struct {
	opts WriterOptions

	volPath     string
	f           volumeSeeker
	volumeIndex int // 0-based index of the current volume

	firstVolumePath string

	volumeSize int // total byte budget of the currently open volume
	spaceLeft  int

	volHeaderPos      int64 // offset of the current volume's BodyLength field
	totalUncompressed uint32
	fileCount         int

	archiveHeaderPos int64 // offset of VolumeCount/TotalUncompressed, volume 1 only
}

// NewWriter creates the first volume at path and emits the volume and
// archive headers with zero placeholders.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	if opts.Creator == nil {
		opts.Creator = OSVolumeCreator{}
	}
	wc, err := opts.Creator.Create(path)
	if err != nil {
		return nil, err
	}
	vs, ok := wc.(volumeSeeker)
	if !ok {
		return nil, fmt.Errorf("lfg: volume writer for %q does not support seeking", path)
	}

	w := &Writer{opts: opts, volPath: path, f: vs, firstVolumePath: path}

	w.volHeaderPos = 4 // Tag is 4 bytes, BodyLength follows
	if _, err := w.f.Write(volumeHeader{Tag: volumeTag}.encode()); err != nil {
		return nil, err
	}

	ah := newArchiveHeader(opts.ArchiveName, 0, 0)
	w.archiveHeaderPos = volumeHeaderSize + archiveNameSize + 1 // position of VolumeCount byte
	if _, err := w.f.Write(ah.encode()); err != nil {
		return nil, err
	}

	w.volumeSize = int(opts.FirstVolumeSize)
	w.spaceLeft = w.volumeSize - (volumeHeaderSize + archiveHeaderSize)
	return w, nil
}

// WriteFile compresses r (length bytes) as the next file record named
// name, using the Writer's configured dictionary mode and strategy.
func (w *Writer) WriteFile(name string, length uint32, r io.Reader, stats *Stats) error {
	dictExp := w.opts.DictMode.exponent(length)
	return w.WriteFileWithParams(name, length, r, dictExp, w.opts.Lazy, stats)
}

// WriteFileWithParams is WriteFile with an explicit dictionary exponent
// and strategy, for callers implementing their own per-file selection
// (e.g. "optimization level 5": try every combination and keep the
// smallest result).
func (w *Writer) WriteFileWithParams(name string, length uint32, r io.Reader, dictExp int, lazy bool, stats *Stats) error {
	if w.spaceLeft < fileRecordSize {
		if err := w.rollVolume(); err != nil {
			return err
		}
	}

	hdr, err := newFileRecordHeader(name, length)
	if err != nil {
		return err
	}
	recordVolPath := w.volPath
	recordPos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(hdr.encode()); err != nil {
		return err
	}
	w.spaceLeft -= fileRecordSize

	budget := &VolumeBudget{
		Remaining:  w.spaceLeft,
		NextVolume: w.nextVolumeForEncoder,
	}

	n, err := Implode(r, w.f, length, w.opts.LiteralMode, dictExp, lazy, budget, stats)
	if err != nil {
		return err
	}

	// Implode may have rolled into one or more further volumes via
	// budget.NextVolume (which keeps w.f / w.volumeSize in sync as it
	// goes); recompute the remaining budget directly from the current
	// volume's file position rather than trying to reconstruct it from
	// n, which is Implode's cumulative across-all-volumes byte count.
	cur, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.spaceLeft = w.volumeSize - int(cur)

	if err := w.patchCompressedLength(recordVolPath, recordPos, n); err != nil {
		return err
	}

	w.totalUncompressed += length
	w.fileCount++
	return nil
}

// FileCount returns how many files have been written so far.
func (w *Writer) FileCount() int { return w.fileCount }

// patchCompressedLength fills in the real compressed length at recordPos
// within recordVolPath, the volume the file record header was written
// to. If the encoder's payload later rolled into further volumes (the
// record header itself never does), recordVolPath no
// longer matches the currently open volume, so it is reopened
// specifically for this patch rather than seeking on the wrong file —
// the bug the original source's overlapping fp_first/fp_out variables
// risked.
func (w *Writer) patchCompressedLength(recordVolPath string, recordPos int64, payloadBytes uint32) error {
	total := payloadBytes + fileRecordSize

	if recordVolPath == w.volPath {
		cur, err := w.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if _, err := w.f.Seek(recordPos+4, io.SeekStart); err != nil {
			return err
		}
		if err := writeLE32(w.f, total); err != nil {
			return err
		}
		_, err = w.f.Seek(cur, io.SeekStart)
		return err
	}

	patcher, ok := w.opts.Creator.(VolumePatcher)
	if !ok {
		return fmt.Errorf("lfg: volume creator cannot reopen %q to patch the compressed length", recordVolPath)
	}
	f, err := patcher.OpenForPatch(recordVolPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(recordPos+4, io.SeekStart); err != nil {
		return err
	}
	return writeLE32(f, total)
}

// rollVolume closes the current volume (patching its body length) and
// opens the next one, used when fewer than fileRecordSize bytes remain
// in the budget before starting a new file record (a file record
// header must never straddle a volume).
func (w *Writer) rollVolume() error {
	if err := w.closeVolume(); err != nil {
		return err
	}
	return w.openNextVolume(int(w.opts.VolumeSize))
}

// nextVolumeForEncoder is the VolumeBudget.NextVolume callback: it
// closes the current volume, opens the next, and returns the new
// writer and budget for Implode to continue into.
func (w *Writer) nextVolumeForEncoder() (io.Writer, int, error) {
	if err := w.closeVolume(); err != nil {
		return nil, 0, err
	}
	if err := w.openNextVolume(int(w.opts.VolumeSize)); err != nil {
		return nil, 0, err
	}
	return w.f, w.spaceLeft, nil
}

// closeVolume patches the just-finished volume's body-length field and
// closes it; the real body length is computed from the current stream
// position.
func (w *Writer) closeVolume() error {
	end, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.f.Seek(int64(w.volHeaderPos), io.SeekStart); err != nil {
		return err
	}
	bodyLength := uint32(end) - volumeHeaderSize
	if err := writeLE32(w.f, bodyLength); err != nil {
		return err
	}
	if c, ok := w.f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *Writer) openNextVolume(nextSize int) error {
	path, ok := nextVolumePath(w.volPath)
	if !ok {
		return fmt.Errorf("lfg: cannot derive next volume name from %q", w.volPath)
	}
	wc, err := w.opts.Creator.Create(path)
	if err != nil {
		return err
	}
	vs, ok := wc.(volumeSeeker)
	if !ok {
		return fmt.Errorf("lfg: volume writer for %q does not support seeking", path)
	}
	w.volPath = path
	w.f = vs
	w.volumeIndex++
	w.volHeaderPos = 4
	if _, err := w.f.Write(volumeHeader{Tag: volumeTag}.encode()); err != nil {
		return err
	}
	w.volumeSize = nextSize
	w.spaceLeft = nextSize - volumeHeaderSize
	return nil
}

// Close patches the final volume's body length and the archive header's
// volume count and total-uncompressed fields, then closes the file.
func (w *Writer) Close() error {
	end, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.f.Seek(int64(w.volHeaderPos), io.SeekStart); err != nil {
		return err
	}
	if err := writeLE32(w.f, uint32(end)-volumeHeaderSize); err != nil {
		return err
	}

	if w.volumeIndex == 0 {
		if err := w.patchArchiveTrailer(w.f); err != nil {
			return err
		}
		if _, err := w.f.Seek(end, io.SeekStart); err != nil {
			return err
		}
	}

	if c, ok := w.f.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}

	if w.volumeIndex != 0 {
		patcher, ok := w.opts.Creator.(VolumePatcher)
		if !ok {
			return fmt.Errorf("lfg: volume creator cannot reopen %q to patch the archive trailer", w.firstVolumePath)
		}
		v1, err := patcher.OpenForPatch(w.firstVolumePath)
		if err != nil {
			return err
		}
		if err := w.patchArchiveTrailer(v1); err != nil {
			v1.Close()
			return err
		}
		return v1.Close()
	}
	return nil
}

// patchArchiveTrailer fills in VolumeCount and TotalUncompressed in
// volume 1's archive header, via whichever handle f currently gives
// access to it (the still-open volume 1 file, or one reopened for the
// purpose once later volumes exist).
func (w *Writer) patchArchiveTrailer(f io.WriteSeeker) error {
	if _, err := f.Seek(w.archiveHeaderPos, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write([]byte{byte(w.volumeIndex + 1)}); err != nil {
		return err
	}
	if _, err := f.Seek(w.archiveHeaderPos+2, io.SeekStart); err != nil {
		return err
	}
	return writeLE32(f, w.totalUncompressed)
}

func writeLE32(w io.Writer, v uint32) error {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := w.Write(b)
	return err
}
