// Command lfgextract unpacks LFG archives produced by the LucasFilm
// Games installer format.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	heredoc "github.com/MakeNowJust/heredoc/v2"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seltmann/lfg"
)

var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the lfgextract command tree.
func NewRootCmd() *cobra.Command {
	var (
		infoOnly  bool
		showStats bool
		force     bool
		outputDir string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "lfgextract [flags] archive.xxx [more-archives...]",
		Short: "Extract files from LFG archives",
		Example: heredoc.Doc(`
			$ lfgextract GAME1.XXX
			$ lfgextract --info GAME1.XXX GAME2.XXX
			$ lfgextract --output-dir ./out --force GAME1.XXX
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
			runExtract(args, infoOnly, showStats, viper.GetBool("force"), viper.GetString("output-dir"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&infoOnly, "info", false, "list archive contents without writing files")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print per-file codec statistics")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing output files")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory to write extracted files into")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	// --output-dir and --force can also come from $LFG_OUTPUT_DIR /
	// $LFG_FORCE, with the flag value (or its default) as fallback.
	viper.SetEnvPrefix("lfg")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("output-dir", cmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("force", cmd.Flags().Lookup("force"))

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lfgextract version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// runExtract iterates the given archive paths. An archive reader
// reports how many volume files it opened, and the outer loop skips
// that many entries to reach the next logical archive. Per-archive failures are logged and do not abort
// the remaining archives, matching the extractor's exit-code contract.
func runExtract(paths []string, infoOnly, showStats, force bool, outputDir string) {
	i := 0
	for i < len(paths) {
		used := extractOne(paths[i:], infoOnly, showStats, force, outputDir)
		if used < 1 {
			used = 1
		}
		i += used
	}
}

// extractOne extracts (or lists) a single logical archive starting at
// paths[0] and returns how many volume files it opened (see
// lfg.Reader.VolumesUsed).
func extractOne(paths []string, infoOnly, showStats, force bool, outputDir string) int {
	warn := warnLogger(paths[0])
	rd, err := lfg.NewReader(paths, nil, warn)
	if err != nil {
		log.Error("failed to open archive", "path", paths[0], "err", err)
		return 1
	}
	defer rd.Close()

	log.Info("opened archive", "name", rd.Name, "volumes", rd.VolumeCount, "total_uncompressed", rd.TotalUncompressed)

	for {
		info, err := rd.NextHeader()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("failed to read file record", "archive", rd.Name, "err", err)
			break
		}

		var stats *lfg.Stats
		if showStats {
			stats = lfg.NewStats()
		}

		if infoOnly {
			if err := rd.ExtractCurrent(io.Discard, info.UncompressedLength, stats); err != nil {
				log.Error("failed to decode file", "file", info.Name, "err", err)
				continue
			}
			fmt.Printf("%-13s %10d bytes\n", info.Name, info.UncompressedLength)
			if stats != nil {
				log.Info("stats", "file", info.Name, "literals", stats.LiteralCount, "matches", stats.MatchCount, "min_len", stats.MinLength, "max_len", stats.MaxLength)
			}
			continue
		}

		if err := extractFile(rd, info, outputDir, force, stats); err != nil {
			log.Error("failed to extract file", "file", info.Name, "err", err)
			continue
		}
		log.Info("extracted", "file", info.Name, "bytes", info.UncompressedLength)
		if showStats && stats != nil {
			log.Info("stats", "literals", stats.LiteralCount, "matches", stats.MatchCount, "min_len", stats.MinLength, "max_len", stats.MaxLength)
		}
	}

	return rd.VolumesUsed()
}

func extractFile(rd *lfg.Reader, info lfg.FileInfo, outputDir string, force bool, stats *lfg.Stats) error {
	path := filepath.Join(outputDir, info.Name)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%q: %w", path, lfg.ErrOutputExists)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return rd.ExtractCurrent(f, info.UncompressedLength, stats)
}
