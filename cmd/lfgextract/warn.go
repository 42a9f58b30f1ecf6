package main

import (
	"github.com/charmbracelet/log"

	"github.com/seltmann/lfg"
)

// warnLogger adapts archive-level warnings (header filler
// mismatches, volume length mismatches, a zero volume count, decoded
// length mismatches) onto
// charmbracelet/log, tagged with the archive path that produced them.
func warnLogger(archivePath string) lfg.WarnFunc {
	return func(w *lfg.Warning) {
		log.Warn(w.Message, "archive", archivePath)
	}
}
