// Package lfg reads and writes the multi-volume archive format used by
// early-1990s LucasFilm Games installers (files with a .XXX extension,
// signature "LFG!"). Files are compressed with a PKWARE Data
// Compression Library "implode" variant: single-byte literals mixed
// with (length, offset) back-references into a sliding dictionary,
// encoded with a hand-built variable-length prefix code.
//
// Explode and Implode operate on a single file's compressed payload.
// Reader and Writer drive them across a whole archive, including the
// inter-volume continuation protocol that lets a payload straddle
// volume boundaries without ever splitting a file-record header.
package lfg
