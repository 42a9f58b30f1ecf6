package lfg

// Stats accumulates per-file codec counters: literal/match counts, the
// observed min/max offset and length, and a length histogram. It
// decouples measurement from the hot path of Explode/Implode — the
// codec merely calls recordLiteral/recordMatch on whatever instance the
// caller supplied (nil is fine: no stats collected).
//
// Grounded on original_source/LFGExtract/explode.c's explode struct
// (literal_count, dictionary_count, min/max offset/length, the
// length_histogram[520] array) and LFGPack/pack_lfg.c's verbose stats
// printing, moved out of module-level globals into an explicit,
// caller-owned instance.
type Stats struct {
	LiteralCount int
	MatchCount   int

	MinOffset int
	MaxOffset int
	MinLength int
	MaxLength int

	// LengthHistogram[l] counts how many matches of length l (2..518)
	// were encoded/decoded.
	LengthHistogram [519]int
}

// NewStats returns a Stats with Min fields seeded the way the original
// C initializes them (a large sentinel so the first real observation
// always lowers it).
func NewStats() *Stats {
	return &Stats{MinOffset: 1 << 15, MinLength: 1 << 15}
}

func (s *Stats) recordLiteral() {
	s.LiteralCount++
}

func (s *Stats) recordMatch(offset, length int) {
	s.MatchCount++
	if offset > s.MaxOffset {
		s.MaxOffset = offset
	}
	if offset < s.MinOffset {
		s.MinOffset = offset
	}
	if length > s.MaxLength {
		s.MaxLength = length
	}
	if length < s.MinLength {
		s.MinLength = length
	}
	if length >= 0 && length < len(s.LengthHistogram) {
		s.LengthHistogram[length]++
	}
}
