// Command lfgpack builds LFG archives compatible with the LucasFilm
// Games installer format.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	heredoc "github.com/MakeNowJust/heredoc/v2"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/seltmann/lfg"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Error("lfgpack failed", "err", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the lfgpack command tree.
func NewRootCmd() *cobra.Command {
	var (
		listFile        string
		windowKiB       int
		literalMode     int
		firstVolumeSize uint32
		volumeSize      uint32
		optLevel        int
		verbose         bool
		archiveName     string
	)

	cmd := &cobra.Command{
		Use:   "lfgpack [flags] output.xxx file [more-files...]",
		Short: "Pack files into an LFG archive",
		Example: heredoc.Doc(`
			$ lfgpack GAME1.XXX intro.lbm sound.voc
			$ lfgpack -f filelist.txt --opt 5 GAME1.XXX
			$ lfgpack --first-volume 1457664 --volume 1457664 GAME1.XXX big.dat
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
			outPath := args[0]
			inputs := args[1:]
			if listFile != "" {
				fromFile, err := readListFile(listFile)
				if err != nil {
					return err
				}
				inputs = append(inputs, fromFile...)
			}
			if len(inputs) == 0 {
				return fmt.Errorf("lfgpack: no input files given")
			}

			if archiveName == "" {
				archiveName = strings.ToUpper(strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath)))
			}

			opts := packOptions{
				archiveName:     archiveName,
				windowKiB:       windowKiB,
				literalMode:     literalMode,
				firstVolumeSize: firstVolumeSize,
				volumeSize:      volumeSize,
				optLevel:        optLevel,
			}
			return runPack(outPath, inputs, opts)
		},
	}

	cmd.Flags().StringVarP(&listFile, "files", "f", "", "read input file paths from this list file, one per line")
	cmd.Flags().IntVarP(&windowKiB, "window", "w", 0, "dictionary window size in KiB: 1, 2, or 4 (0 = auto by file size)")
	cmd.Flags().IntVar(&literalMode, "literal-mode", 0, "payload literal mode (only 0 is supported)")
	cmd.Flags().Uint32Var(&firstVolumeSize, "first-volume", 1_457_664, "byte budget for the first volume, headers included")
	cmd.Flags().Uint32Var(&volumeSize, "volume", 1_457_664, "byte budget for subsequent volumes")
	cmd.Flags().IntVar(&optLevel, "opt", 3, "optimization level: 1 greedy, 3 lazy, 5 try-all-and-pick-smallest")
	cmd.Flags().StringVar(&archiveName, "name", "", "archive name stored in the header (default: output filename)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging and per-file stats")

	return cmd
}

// readListFile reads one path per line, trimming CR/LF and skipping
// blank lines.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	return paths, sc.Err()
}

type packOptions struct {
	archiveName     string
	windowKiB       int
	literalMode     int
	firstVolumeSize uint32
	volumeSize      uint32
	optLevel        int
}

func (o packOptions) dictMode() lfg.DictionaryMode {
	switch o.windowKiB {
	case 1:
		return lfg.Dict1K
	case 2:
		return lfg.Dict2K
	case 4:
		return lfg.Dict4K
	default:
		return lfg.DictAuto
	}
}

func runPack(outPath string, inputs []string, opts packOptions) error {
	w, err := lfg.NewWriter(outPath, lfg.WriterOptions{
		ArchiveName:     opts.archiveName,
		FirstVolumeSize: opts.firstVolumeSize,
		VolumeSize:      opts.volumeSize,
		DictMode:        opts.dictMode(),
		LiteralMode:     opts.literalMode,
		Lazy:            opts.optLevel != 1,
	})
	if err != nil {
		return err
	}

	for _, path := range inputs {
		if err := packOne(w, path, opts); err != nil {
			return fmt.Errorf("packing %q: %w", path, err)
		}
	}

	return w.Close()
}

func packOne(w *lfg.Writer, path string, opts packOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	length := uint32(len(data))

	var stats *lfg.Stats
	if log.GetLevel() <= log.DebugLevel {
		stats = lfg.NewStats()
	}

	if opts.optLevel == 5 {
		dictExp, lazy, err := bestEncoding(data, opts.literalMode)
		if err != nil {
			return err
		}
		if err := w.WriteFileWithParams(name, length, bytes.NewReader(data), dictExp, lazy, stats); err != nil {
			return err
		}
	} else {
		if err := w.WriteFile(name, length, bytes.NewReader(data), stats); err != nil {
			return err
		}
	}

	log.Info("packed", "file", name, "bytes", length)
	if stats != nil {
		log.Debug("stats", "literals", stats.LiteralCount, "matches", stats.MatchCount)
	}
	return nil
}

// bestEncoding implements "optimization level 5": try every dictionary
// size and strategy (greedy/lazy) on the whole file in memory and
// return whichever combination produces the smallest compressed
// payload.
func bestEncoding(data []byte, literalMode int) (dictExp int, lazy bool, err error) {
	bestSize := -1
	for _, e := range []int{4, 5, 6} {
		for _, l := range []bool{false, true} {
			var buf bytes.Buffer
			n, encErr := lfg.Implode(bytes.NewReader(data), &buf, uint32(len(data)), literalMode, e, l, nil, nil)
			if encErr != nil {
				return 0, false, encErr
			}
			if bestSize == -1 || int(n) < bestSize {
				bestSize = int(n)
				dictExp, lazy = e, l
			}
		}
	}
	return dictExp, lazy, nil
}
