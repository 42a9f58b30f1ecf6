package lfg

import (
	"fmt"
	"io"
)

const (
	ringSize        = 8192 // >= max window (4096) + max match length (518) + slack
	loadChunk       = 2048
	maxMatchLength  = 518
	minMatchLength  = 2
	length2MaxBytes = 255 // a length-2 match may only be encoded if its offset fits in 8 bits
)

// inputRing is the encoder's ring buffer: a circular window over the
// input file that holds both the already-encoded history (the
// dictionary) and enough not-yet-encoded lookahead to find the longest
// match. It is filled on demand in fixed-size chunks; end-of-file is
// remembered so no further reads are attempted once reached.
//
// Grounded on original_source/LFGPack/implode.c's encoding_buffer +
// ENCODE_BUFF_* constants, generalized into an explicit instance (no
// module-level globals).
type inputRing struct {
	r      io.Reader
	buf    []byte
	total  uint32 // total length of the file being encoded
	loaded uint32 // bytes loaded from r so far
	eof    bool
}

func newInputRing(r io.Reader, total uint32) *inputRing {
	return &inputRing{r: r, buf: make([]byte, ringSize), total: total}
}

// ensure makes sure at least min(want, total-pos) bytes starting at pos
// are loaded into the ring, refilling in loadChunk-sized reads.
func (ir *inputRing) ensure(pos uint32, want int) error {
	target := pos + uint32(want)
	if target > ir.total {
		target = ir.total
	}
	for !ir.eof && ir.loaded < target {
		toRead := loadChunk
		if remaining := ir.total - ir.loaded; uint32(toRead) > remaining {
			toRead = int(remaining)
		}
		start := int(ir.loaded) % len(ir.buf)
		n, err := ir.readInto(start, toRead)
		ir.loaded += uint32(n)
		if err != nil {
			return err
		}
		if n < toRead {
			ir.eof = true
		}
	}
	return nil
}

// readInto reads exactly n bytes into the ring starting at buffer
// offset start, wrapping around the end of the ring if necessary.
func (ir *inputRing) readInto(start, n int) (int, error) {
	if n == 0 {
		return 0, nil
	}
	end := start + n
	if end <= len(ir.buf) {
		read, err := io.ReadFull(ir.r, ir.buf[start:end])
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return read, nil
		}
		return read, err
	}
	firstLen := len(ir.buf) - start
	read1, err := io.ReadFull(ir.r, ir.buf[start:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return read1, err
	}
	if read1 < firstLen {
		return read1, nil
	}
	read2, err := io.ReadFull(ir.r, ir.buf[:n-firstLen])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return read1 + read2, nil
	}
	return read1 + read2, err
}

func (ir *inputRing) byteAt(pos uint32) byte {
	return ir.buf[pos%uint32(len(ir.buf))]
}

// compareLen returns how many bytes match between positions p1 and p2,
// up to maxLen.
func (ir *inputRing) compareLen(p1, p2 uint32, maxLen int) int {
	n := 0
	for n < maxLen && ir.byteAt(p1+uint32(n)) == ir.byteAt(p2+uint32(n)) {
		n++
	}
	return n
}

// findMatch searches offsets 1..windowSize for the longest match at
// position pos, returning found=false if nothing of length >=
// minMatchLength exists. offsetField is the 0-based encoded offset
// (one less than the back-distance), matching the convention used
// throughout the bit stream (see window.go).
//
// Grounded on original_source/LFGPack/implode.c's check_dictionary /
// compare_in_circular.
func (ir *inputRing) findMatch(pos uint32, windowSize int) (offsetField, length int, found bool) {
	maxLen := maxMatchLength
	if remaining := ir.total - pos; uint32(maxLen) > remaining {
		maxLen = int(remaining)
	}
	searchSize := windowSize
	if uint32(searchSize) > pos {
		searchSize = int(pos)
	}
	best := 1
	bestOff := 0
	for back := 1; back <= searchSize; back++ {
		n := ir.compareLen(pos, pos-uint32(back), maxLen)
		if n > best {
			best = n
			bestOff = back - 1
		}
	}
	if bestOff == 0 && best <= 1 {
		return 0, 0, false
	}
	return bestOff, best, true
}

// lengthCodeRow and offsetCodeRow encode the length/offset prefix tables in the
// direction implode needs: given a length (resp. upper offset value),
// produce the bits to write. Grounded directly on
// original_source/LFGPack/implode.c's length_table / offset_to_bits_table.
type lengthCodeRow struct {
	lookupMin int
	bits      int
	code      int
	lsbBits   int
}

var lengthCodeTable = []lengthCodeRow{
	{264, 7, 0, 8},
	{136, 7, 1, 7},
	{72, 6, 1, 6},
	{40, 6, 2, 5},
	{24, 6, 3, 4},
	{16, 5, 2, 3},
	{12, 5, 3, 2},
	{10, 5, 4, 1},
	{9, 5, 5, 0},
	{8, 4, 3, 0},
	{7, 4, 4, 0},
	{6, 4, 5, 0},
	{5, 3, 3, 0},
	{4, 3, 4, 0},
	{3, 2, 3, 0},
	{2, 3, 5, 0},
}

func findLengthCode(length int) lengthCodeRow {
	for _, row := range lengthCodeTable {
		if length >= row.lookupMin {
			return row
		}
	}
	// length < 2 should never reach here; fall back to the smallest row.
	return lengthCodeTable[len(lengthCodeTable)-1]
}

type offsetCodeRow struct {
	lookupMin int
	bits      int
	code      int
}

var offsetCodeTable = []offsetCodeRow{
	{0x30, 8, 0x0F},
	{0x16, 7, 0x21},
	{0x07, 6, 0x1F},
	{0x03, 5, 0x13},
	{0x01, 4, 0x0B},
	{0x00, 2, 0x03},
}

func findOffsetCode(upper int) offsetCodeRow {
	for _, row := range offsetCodeTable {
		if upper >= row.lookupMin {
			return row
		}
	}
	return offsetCodeTable[len(offsetCodeTable)-1]
}

// lowOffsetBits is k: 2 when length==2, else the
// dictionary exponent e.
func lowOffsetBits(length, dictBits int) int {
	if length == 2 {
		return 2
	}
	return dictBits
}

// matchBitLength returns the number of bits a (offsetField, length)
// match would take to encode, without writing it — used by the lazy
// match cost comparison.
func matchBitLength(offsetField, length, dictBits int) int {
	k := lowOffsetBits(length, dictBits)
	lr := findLengthCode(length)
	or := findOffsetCode(offsetField >> uint(k))
	return 1 + k + lr.bits + lr.lsbBits + or.bits
}

// writeMatch emits the bit encoding of a match.
func writeMatch(bw *BitWriter, offsetField, length, dictBits int) error {
	if err := bw.WriteBit(1); err != nil {
		return err
	}
	lr := findLengthCode(length)
	if err := bw.WriteBitsMSBFirst(lr.bits, lr.code); err != nil {
		return err
	}
	if err := bw.WriteBitsLSBFirst(lr.lsbBits, length-lr.lookupMin); err != nil {
		return err
	}
	k := lowOffsetBits(length, dictBits)
	or := findOffsetCode(offsetField >> uint(k))
	if err := bw.WriteBitsMSBFirst(or.bits, or.code-((offsetField>>uint(k))-or.lookupMin)); err != nil {
		return err
	}
	return bw.WriteBitsLSBFirst(k, offsetField)
}

func writeLiteral(bw *BitWriter, b byte) error {
	if err := bw.WriteBit(0); err != nil {
		return err
	}
	return bw.WriteBitsLSBFirst(8, int(b))
}

func writeEndMarker(bw *BitWriter) error {
	if err := bw.WriteBit(1); err != nil {
		return err
	}
	if err := bw.WriteBitsMSBFirst(7, 0); err != nil {
		return err
	}
	return bw.WriteBitsLSBFirst(8, 0xFF)
}

// VolumeBudget tells Implode how many bytes it may still write into the
// current volume, and how to obtain the next one once that budget is
// exhausted. Remaining is consulted before each literal/match decision
// (never mid-symbol), so a volume switch always falls between whole
// bytes of the bit stream. Bits still pending in a partial byte at the
// switch are written to the next volume, and the symbol written just
// before the switch may take the volume a few bytes past Remaining.
//
// Modeled after the capability-interface note in the design docs: this
// replaces the C max_reached(FILE*) function pointer with a typed
// collaborator, analogous to ContinuationFunc on the read side.
type VolumeBudget struct {
	Remaining int
	NextVolume func() (w io.Writer, nextRemaining int, err error)
}

// Implode compresses length bytes read from r, writing the 2-byte
// payload header (literalMode, dictExp) followed by the bit stream of
// the literal/match bit stream to w. lazy selects the optimization strategy: false
// is the greedy encoder (always take the best match found at the
// current position), true adds the one-position lookahead and bit-cost
// comparison against a one-step lazy lookahead. budget may be nil for a
// single-volume encode; stats may be nil to skip statistics collection.
// It returns the number of bytes written (including the 2-byte header).
//
// Grounded on original_source/LFGPack/implode.c's implode(), preserving
// its lazy-match bit-cost comparison (including the "re-lazy" third
// check) verbatim in semantics.
func Implode(r io.Reader, w io.Writer, length uint32, literalMode, dictExp int, lazy bool, budget *VolumeBudget, stats *Stats) (uint32, error) {
	if literalMode != 0 && literalMode != 1 {
		return 0, fmt.Errorf("%w: literal mode %d", ErrUnsupportedParameter, literalMode)
	}
	if literalMode != 0 {
		return 0, fmt.Errorf("%w: literal mode 1 is not implemented by this encoder", ErrUnsupportedParameter)
	}
	if dictExp < 4 || dictExp > 6 {
		return 0, fmt.Errorf("%w: dictionary exponent %d", ErrUnsupportedParameter, dictExp)
	}
	windowSize := 1 << uint(dictExp+6)

	bw := NewBitWriter(w)
	if err := bw.WriteBitsLSBFirst(8, literalMode); err != nil {
		return 0, err
	}
	if err := bw.WriteBitsLSBFirst(8, dictExp); err != nil {
		return 0, err
	}

	ring := newInputRing(r, length)
	var volumeBase int // bw.BytesWritten() value at the start of the current volume

	var pos uint32
	for pos < length {
		if budget != nil && bw.BytesWritten()-volumeBase >= budget.Remaining {
			newW, newRemaining, err := budget.NextVolume()
			if err != nil {
				return 0, err
			}
			bw.SetSink(newW)
			volumeBase = bw.BytesWritten()
			budget.Remaining = newRemaining
		}

		if err := ring.ensure(pos, maxMatchLength+1); err != nil {
			return 0, err
		}

		off1, len1, found1 := ring.findMatch(pos, windowSize)
		useLiteral := true

		if found1 {
			useLiteral = false
			if lazy && pos+1 < length {
				if err := ring.ensure(pos+1, maxMatchLength); err != nil {
					return 0, err
				}
				off2, len2, found2 := ring.findMatch(pos+1, windowSize)
				if found2 && (len2 > 2 || (len2 == 2 && off2 <= length2MaxBytes)) {
					possibleBits := matchBitLength(off1, len1, dictExp)
					literalBits := matchBitLength(off2, len2, dictExp)

					bitsPerByte := float64(possibleBits) / float64(len1)
					bitsPerByteLit := float64(literalBits+9) / float64(len2+1)
					if bitsPerByteLit <= bitsPerByte {
						useLiteral = true
					}

					relazyLen := len2 + 1 - len1
					if relazyLen > 0 {
						var relazyBits int
						switch {
						case relazyLen == 1:
							relazyBits = 9
						case relazyLen == 2 && off2 > length2MaxBytes:
							relazyBits = 18
						default:
							relazyBits = matchBitLength(off2, relazyLen, dictExp)
						}
						if possibleBits+relazyBits <= literalBits+9 {
							useLiteral = false
						}
					}
				}
			}
		}

		if useLiteral || (len1 == minMatchLength && off1 > length2MaxBytes) {
			if err := writeLiteral(bw, ring.byteAt(pos)); err != nil {
				return 0, err
			}
			if stats != nil {
				stats.recordLiteral()
			}
			pos++
		} else {
			if err := writeMatch(bw, off1, len1, dictExp); err != nil {
				return 0, err
			}
			if stats != nil {
				stats.recordMatch(off1, len1)
			}
			pos += uint32(len1)
		}
	}

	if err := writeEndMarker(bw); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return uint32(bw.BytesWritten()), nil
}
